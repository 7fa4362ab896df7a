package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/breeze-rmm/recorder/internal/capture"
	"github.com/breeze-rmm/recorder/internal/collectors"
	"github.com/breeze-rmm/recorder/internal/config"
	"github.com/breeze-rmm/recorder/internal/encode"
	"github.com/breeze-rmm/recorder/internal/ffmpeg"
	"github.com/breeze-rmm/recorder/internal/publish"
)

const doctorTimeout = 15 * time.Second

var errUnhealthy = errors.New("recorder is not ready to record")

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that ffmpeg, the loopback device and the display are usable",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closer, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
		defer cancel()

		rep := runDoctor(ctx, cfg, newDoctorEnv())
		data, err := yaml.Marshal(rep)
		if err != nil {
			return err
		}
		os.Stdout.Write(data)

		if !rep.Ready {
			return errUnhealthy
		}
		return nil
	},
}

type doctorReport struct {
	Version  string `yaml:"version"`
	Platform string `yaml:"platform"`
	Ready    bool   `yaml:"ready"`

	FFmpeg   toolStatus `yaml:"ffmpeg"`
	FFprobe  toolStatus `yaml:"ffprobe"`
	Encoder  string     `yaml:"encoder"`
	Hardware bool       `yaml:"hardware_encoder"`

	Loopback      string   `yaml:"loopback_device,omitempty"`
	LoopbackError string   `yaml:"loopback_error,omitempty"`
	Displays      []string `yaml:"displays"`
	RegionVisible bool     `yaml:"region_visible"`

	Host      *collectors.HostResources `yaml:"host,omitempty"`
	HostError string                    `yaml:"host_error,omitempty"`
	Publish   string                    `yaml:"publish"`
}

type toolStatus struct {
	Path  string `yaml:"path,omitempty"`
	Error string `yaml:"error,omitempty"`
}

// doctorEnv is what runDoctor inspects.
type doctorEnv struct {
	Runner     ffmpeg.Runner
	Resources  *collectors.ResourceCollector
	Locate     func(configured, name string) (string, error)
	FindDevice func(ctx context.Context, opts capture.LoopbackOptions) (capture.LoopbackDevice, error)
	Displays   func() []image.Rectangle
}

func newDoctorEnv() doctorEnv {
	return doctorEnv{
		Runner:     ffmpeg.ExecRunner{},
		Resources:  collectors.NewResourceCollector(),
		Locate:     ffmpeg.Locate,
		FindDevice: capture.FindLoopback,
		Displays:   capture.DisplayBounds,
	}
}

// runDoctor checks every dependency of a recording in parallel. Check
// failures are recorded in the report, never returned.
func runDoctor(ctx context.Context, cfg config.Config, env doctorEnv) *doctorReport {
	rep := &doctorReport{
		Version:  version,
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
		Publish:  "disabled",
	}
	if publish.Enabled(cfg.Publish.S3) {
		rep.Publish = "s3://" + cfg.Publish.S3.Bucket + "/" + cfg.Publish.S3.Prefix
	}

	ffmpegPath, err := env.Locate(cfg.Encoder.FFmpegPath, ffmpeg.DefaultFFmpeg)
	rep.FFmpeg = status(ffmpegPath, err)
	ffprobePath, err := env.Locate(cfg.Encoder.FFprobePath, ffmpeg.DefaultFFprobe)
	rep.FFprobe = status(ffprobePath, err)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hw := ffmpegPath != "" && encode.HardwareAvailable(gctx, env.Runner, ffmpegPath, cfg.Encoder.NVENC)
		rep.Hardware = hw
		rep.Encoder = encode.Select(cfg.Encoder.Quality, hw).Codec
		return nil
	})

	g.Go(func() error {
		dev, err := env.FindDevice(gctx, capture.LoopbackOptions{
			Runner:     env.Runner,
			FFmpegPath: ffmpegPath,
			Device:     cfg.Audio.Device,
		})
		if err != nil {
			rep.LoopbackError = err.Error()
			return nil
		}
		rep.Loopback = dev.Name()
		return nil
	})

	g.Go(func() error {
		r := cfg.Video.Region
		region := capture.Region{Left: r.Left, Top: r.Top, Width: r.Width, Height: r.Height}.Rect()
		for _, b := range env.Displays() {
			rep.Displays = append(rep.Displays, b.String())
			if region.In(b) {
				rep.RegionVisible = true
			}
		}
		return nil
	})

	g.Go(func() error {
		if env.Resources == nil {
			return nil
		}
		host, err := env.Resources.Host(cfg.Output.Dir)
		rep.Host = host
		if err != nil {
			rep.HostError = err.Error()
		}
		return nil
	})

	_ = g.Wait()

	rep.Ready = rep.FFmpeg.Path != "" && rep.Loopback != "" && rep.RegionVisible
	return rep
}

func status(path string, err error) toolStatus {
	if err != nil {
		return toolStatus{Error: fmt.Sprint(err)}
	}
	return toolStatus{Path: path}
}
