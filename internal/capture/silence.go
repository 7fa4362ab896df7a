package capture

import "time"

// blockAssembler cuts loopback packets into fixed-size blocks and keeps the
// stream continuous in wall-clock time. A loopback endpoint delivers no
// packets while nothing is playing; once the endpoint has been quiet for
// idleAfter, the missing time is written as zeros.
type blockAssembler struct {
	channels  int
	blockLen  int
	rate      int
	idleAfter time.Duration

	pending []float32
	// covered is the wall-clock instant the appended samples reach.
	covered time.Time
	// idle is set while the stream is being padded, and before the first
	// packet.
	idle   bool
	frames int64
}

func newBlockAssembler(channels, blockFrames, sampleRate int, idleAfter time.Duration, start time.Time) *blockAssembler {
	return &blockAssembler{
		channels:  channels,
		blockLen:  blockFrames * channels,
		rate:      sampleRate,
		idleAfter: idleAfter,
		pending:   make([]float32, 0, blockFrames*channels*2),
		covered:   start,
		idle:      true,
	}
}

// packet appends frames received at now. samples == nil is a packet the
// device flagged silent. The packet ends at now; after idle time or a
// discontinuity the gap before it is filled first.
func (a *blockAssembler) packet(now time.Time, frames int, samples []float32, discontinuity bool) {
	if a.idle || discontinuity {
		a.padTo(now.Add(-a.duration(int64(frames))))
		a.idle = false
	}
	if samples == nil {
		a.appendZeros(frames)
	} else {
		a.pending = append(a.pending, samples[:frames*a.channels]...)
		a.frames += int64(frames)
	}
	a.covered = now
}

// tick is called on every poll that produced no packet.
func (a *blockAssembler) tick(now time.Time) {
	if a.idle || now.Sub(a.covered) >= a.idleAfter {
		a.idle = true
		a.padTo(now)
	}
}

// next pops one complete block.
func (a *blockAssembler) next() (Block, bool) {
	if len(a.pending) < a.blockLen {
		return Block{}, false
	}
	b := Block{Samples: make([]float32, a.blockLen), Channels: a.channels}
	copy(b.Samples, a.pending[:a.blockLen])
	a.pending = append(a.pending[:0], a.pending[a.blockLen:]...)
	return b, true
}

func (a *blockAssembler) padTo(t time.Time) {
	gap := t.Sub(a.covered)
	if gap <= 0 {
		return
	}
	n := int(int64(gap) * int64(a.rate) / int64(time.Second))
	a.appendZeros(n)
	a.covered = a.covered.Add(a.duration(int64(n)))
}

func (a *blockAssembler) appendZeros(frames int) {
	if frames <= 0 {
		return
	}
	a.pending = append(a.pending, make([]float32, frames*a.channels)...)
	a.frames += int64(frames)
}

func (a *blockAssembler) duration(frames int64) time.Duration {
	return time.Duration(frames * int64(time.Second) / int64(a.rate))
}
