//go:build windows

package capture

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"
	"unsafe"

	ole "github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"
)

var (
	clsidMMDeviceEnumerator = ole.NewGUID("{BCDE0395-E52F-467C-8E3D-C457929169E2}")
	iidIMMDeviceEnumerator  = ole.NewGUID("{A95664D2-9614-4F35-A746-DE8DB63617E6}")
	iidIAudioClient         = ole.NewGUID("{1CB9AD4C-DBFA-4C32-B178-C2F568A703B2}")
	iidIAudioCaptureClient  = ole.NewGUID("{C8ADBD64-E71E-48A0-A4DE-185C395CD317}")
)

const (
	eRender   = 0
	eConsole  = 0
	clsctxAll = 0x1 | 0x2 | 0x4 | 0x10

	audclntShareModeShared       = 0
	audclntStreamFlagsLoopback   = 0x00020000
	audclntStreamFlagsSrcDefault = 0x08000000
	audclntStreamFlagsAutoConv   = 0x80000000
	audclntBufferFlagsGap        = 0x1
	audclntBufferFlagsSilent     = 0x2
	audclntEDeviceInvalidated    = 0x88890004

	waveFormatIEEEFloat = 0x0003

	mmdeGetDefaultAudioEndpoint = 4
	mmdeGetDevice               = 5
	mmDeviceActivate            = 3
	audioClientInitialize       = 3
	audioClientGetMixFormat     = 8
	audioClientStart            = 10
	audioClientStop             = 11
	audioClientGetService       = 14
	capClientGetBuffer          = 3
	capClientReleaseBuffer      = 4

	wasapiBufferDuration = 200 * 10000 // 200ms in 100ns units
	wasapiPollInterval   = 10 * time.Millisecond
	// wasapiIdleAfter is how long the endpoint may deliver nothing before
	// the missing time is recorded as silence.
	wasapiIdleAfter = 3 * wasapiPollInterval
)

type waveFormatEx struct {
	FormatTag      uint16
	Channels       uint16
	SamplesPerSec  uint32
	AvgBytesPerSec uint32
	BlockAlign     uint16
	BitsPerSample  uint16
	CbSize         uint16
}

func findLoopback(ctx context.Context, opts LoopbackOptions) (LoopbackDevice, error) {
	dev := &wasapiDevice{id: opts.Device}

	errc := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		errc <- withEndpoint(dev.id, func(uintptr) error { return nil })
	}()
	if err := <-errc; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoLoopbackDevice, err)
	}
	return dev, nil
}

// withEndpoint resolves the render endpoint by id, or the default console
// endpoint when id is empty, and passes the IMMDevice to fn. The calling
// goroutine must be locked to its thread.
func withEndpoint(id string, fn func(device uintptr) error) error {
	if err := comInit(); err != nil {
		return err
	}
	defer ole.CoUninitialize()

	unk, err := ole.CreateInstance(clsidMMDeviceEnumerator, iidIMMDeviceEnumerator)
	if err != nil {
		return fmt.Errorf("create MMDeviceEnumerator: %w", err)
	}
	enumerator := uintptr(unsafe.Pointer(unk))
	defer comRelease(enumerator)

	var device uintptr
	if id == "" {
		_, err = comCall(enumerator, mmdeGetDefaultAudioEndpoint, eRender, eConsole, uintptr(unsafe.Pointer(&device)))
	} else {
		var wid *uint16
		wid, err = windows.UTF16PtrFromString(id)
		if err == nil {
			_, err = comCall(enumerator, mmdeGetDevice, uintptr(unsafe.Pointer(wid)), uintptr(unsafe.Pointer(&device)))
		}
	}
	if err != nil {
		return fmt.Errorf("resolve render endpoint: %w", err)
	}
	defer comRelease(device)

	return fn(device)
}

// wasapiDevice captures a render endpoint in shared-mode loopback.
type wasapiDevice struct {
	id string
}

func (d *wasapiDevice) Name() string {
	if d.id == "" {
		return "default output (WASAPI loopback)"
	}
	return d.id
}

func (d *wasapiDevice) Open(sampleRate, blockFrames int) (Recorder, error) {
	r := &wasapiRecorder{
		blocks: make(chan Block, 64),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	ready := make(chan error, 1)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(r.exited)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		err := withEndpoint(d.id, func(device uintptr) error {
			return r.capture(device, sampleRate, blockFrames, ready)
		})
		if err != nil {
			select {
			case ready <- err:
			default:
			}
			r.fail(err)
		}
	}()

	if err := <-ready; err != nil {
		r.wg.Wait()
		return nil, err
	}
	return r, nil
}

// wasapiRecorder polls the capture client on a dedicated OS thread and
// hands complete blocks to Record.
type wasapiRecorder struct {
	blocks chan Block
	done   chan struct{}
	exited chan struct{}
	wg     sync.WaitGroup

	errMu sync.Mutex
	err   error
	once  sync.Once
}

func (r *wasapiRecorder) fail(err error) {
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.errMu.Unlock()
}

func (r *wasapiRecorder) loopErr() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	if r.err == nil {
		return errors.New("wasapi capture stopped")
	}
	return r.err
}

func (r *wasapiRecorder) capture(device uintptr, sampleRate, blockFrames int, ready chan<- error) error {
	var client uintptr
	if _, err := comCall(device, mmDeviceActivate,
		uintptr(unsafe.Pointer(iidIAudioClient)), clsctxAll, 0, uintptr(unsafe.Pointer(&client))); err != nil {
		return fmt.Errorf("activate IAudioClient: %w", err)
	}
	defer comRelease(client)

	var mixPtr uintptr
	if _, err := comCall(client, audioClientGetMixFormat, uintptr(unsafe.Pointer(&mixPtr))); err != nil {
		return fmt.Errorf("GetMixFormat: %w", err)
	}
	channels := int((*waveFormatEx)(unsafe.Pointer(mixPtr)).Channels)
	ole.CoTaskMemFree(mixPtr)
	if channels <= 0 {
		channels = 2
	}

	format := waveFormatEx{
		FormatTag:      waveFormatIEEEFloat,
		Channels:       uint16(channels),
		SamplesPerSec:  uint32(sampleRate),
		BitsPerSample:  32,
		BlockAlign:     uint16(channels * 4),
		AvgBytesPerSec: uint32(sampleRate * channels * 4),
	}
	if _, err := comCall(client, audioClientInitialize,
		audclntShareModeShared,
		audclntStreamFlagsLoopback|audclntStreamFlagsAutoConv|audclntStreamFlagsSrcDefault,
		uintptr(wasapiBufferDuration), 0,
		uintptr(unsafe.Pointer(&format)), 0); err != nil {
		return fmt.Errorf("IAudioClient Initialize: %w", err)
	}

	var capClient uintptr
	if _, err := comCall(client, audioClientGetService,
		uintptr(unsafe.Pointer(iidIAudioCaptureClient)), uintptr(unsafe.Pointer(&capClient))); err != nil {
		return fmt.Errorf("GetService IAudioCaptureClient: %w", err)
	}
	defer comRelease(capClient)

	if _, err := comCall(client, audioClientStart); err != nil {
		return fmt.Errorf("IAudioClient Start: %w", err)
	}
	defer comCall(client, audioClientStop)

	log.Debug("wasapi loopback started", "channels", channels, "sampleRate", sampleRate)
	ready <- nil

	asm := newBlockAssembler(channels, blockFrames, sampleRate, wasapiIdleAfter, time.Now())
	ticker := time.NewTicker(wasapiPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return nil
		case <-ticker.C:
		}

		got := false
		for {
			var data uintptr
			var frames, flags uint32
			hr, _ := comCall(capClient, capClientGetBuffer,
				uintptr(unsafe.Pointer(&data)), uintptr(unsafe.Pointer(&frames)), uintptr(unsafe.Pointer(&flags)), 0, 0)
			if int32(hr) < 0 {
				if uint32(hr) == audclntEDeviceInvalidated {
					return errors.New("audio device invalidated")
				}
				log.Debug("wasapi GetBuffer transient error", "hr", fmt.Sprintf("0x%08X", uint32(hr)))
				break
			}
			if frames == 0 {
				break
			}
			got = true

			var samples []float32
			if flags&audclntBufferFlagsSilent == 0 && data != 0 {
				samples = unsafe.Slice((*float32)(unsafe.Pointer(data)), int(frames)*channels)
			}
			asm.packet(time.Now(), int(frames), samples, flags&audclntBufferFlagsGap != 0)

			if _, err := comCall(capClient, capClientReleaseBuffer, uintptr(frames)); err != nil {
				return fmt.Errorf("ReleaseBuffer: %w", err)
			}
		}
		if !got {
			asm.tick(time.Now())
		}

		for block, ok := asm.next(); ok; block, ok = asm.next() {
			select {
			case r.blocks <- block:
			case <-r.done:
				return nil
			}
		}
	}
}

func (r *wasapiRecorder) Record(ctx context.Context) (Block, error) {
	select {
	case b := <-r.blocks:
		return b, nil
	case <-ctx.Done():
		return Block{}, ctx.Err()
	case <-r.exited:
		select {
		case b := <-r.blocks:
			return b, nil
		default:
		}
		return Block{}, r.loopErr()
	}
}

func (r *wasapiRecorder) Close() error {
	r.once.Do(func() { close(r.done) })
	r.wg.Wait()
	return nil
}
