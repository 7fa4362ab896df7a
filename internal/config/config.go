package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Region is a screen rectangle in physical pixels. It is never resized.
type Region struct {
	Left   int `mapstructure:"left" yaml:"left"`
	Top    int `mapstructure:"top" yaml:"top"`
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

type OutputConfig struct {
	Dir           string `mapstructure:"dir"`
	KeepTemp      bool   `mapstructure:"keep_temp"`
	TempPrefix    string `mapstructure:"temp_prefix"`
	TimeLayout    string `mapstructure:"time_layout"`
	WriteManifest bool   `mapstructure:"write_manifest"`
}

type AudioConfig struct {
	SampleRate  int    `mapstructure:"sample_rate"`
	Bitrate     string `mapstructure:"bitrate"`
	BlockFrames int    `mapstructure:"block_frames"`
	// Device overrides loopback discovery with an explicit source name.
	Device string `mapstructure:"device"`
}

type VideoConfig struct {
	FPS          int    `mapstructure:"fps"`
	Region       Region `mapstructure:"region"`
	Intermediate string `mapstructure:"intermediate"`
}

type EncoderConfig struct {
	Quality     string `mapstructure:"quality"`
	NVENC       string `mapstructure:"nvenc"`
	FFmpegPath  string `mapstructure:"ffmpeg_path"`
	FFprobePath string `mapstructure:"ffprobe_path"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	PathStyle       bool   `mapstructure:"path_style"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
}

type PublishConfig struct {
	S3 S3Config `mapstructure:"s3"`
}

// Config is loaded once per invocation and passed by value afterwards.
type Config struct {
	Output  OutputConfig  `mapstructure:"output"`
	Audio   AudioConfig   `mapstructure:"audio"`
	Video   VideoConfig   `mapstructure:"video"`
	Encoder EncoderConfig `mapstructure:"encoder"`
	Log     LogConfig     `mapstructure:"log"`
	Publish PublishConfig `mapstructure:"publish"`
}

const (
	QualityHigh     = "high"
	QualityInsane   = "insane"
	QualityLossless = "lossless"

	NVENCAuto = "auto"
	NVENCOn   = "on"
	NVENCOff  = "off"

	IntermediateRaw  = "raw"
	IntermediateFFV1 = "ffv1"
)

func Default() *Config {
	return &Config{
		Output: OutputConfig{
			Dir:        defaultOutputDir(),
			TempPrefix: "temp_",
			TimeLayout: "02-01-2006_15-04",
		},
		Audio: AudioConfig{
			SampleRate:  48000,
			Bitrate:     "320k",
			BlockFrames: 1024,
		},
		Video: VideoConfig{
			FPS:          30,
			Region:       Region{Left: 469, Top: 123, Width: 511, Height: 889},
			Intermediate: IntermediateRaw,
		},
		Encoder: EncoderConfig{
			Quality: QualityInsane,
			NVENC:   NVENCAuto,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  20,
			MaxBackups: 3,
		},
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"output":       "output.dir",
	"keep-temp":    "output.keep_temp",
	"manifest":     "output.write_manifest",
	"sample-rate":  "audio.sample_rate",
	"bitrate":      "audio.bitrate",
	"device":       "audio.device",
	"fps":          "video.fps",
	"left":         "video.region.left",
	"top":          "video.region.top",
	"width":        "video.region.width",
	"height":       "video.region.height",
	"intermediate": "video.intermediate",
	"quality":      "encoder.quality",
	"nvenc":        "encoder.nvenc",
	"ffmpeg":       "encoder.ffmpeg_path",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"log-file":     "log.file",
}

// Load reads configuration from defaults, the config file, BREEZE_RECORDER_*
// environment variables and any flags the caller explicitly set, in that
// order of increasing precedence. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("recorder")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BREEZE_RECORDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("output.dir", d.Output.Dir)
	v.SetDefault("output.keep_temp", d.Output.KeepTemp)
	v.SetDefault("output.temp_prefix", d.Output.TempPrefix)
	v.SetDefault("output.time_layout", d.Output.TimeLayout)
	v.SetDefault("output.write_manifest", d.Output.WriteManifest)

	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.bitrate", d.Audio.Bitrate)
	v.SetDefault("audio.block_frames", d.Audio.BlockFrames)
	v.SetDefault("audio.device", d.Audio.Device)

	v.SetDefault("video.fps", d.Video.FPS)
	v.SetDefault("video.region.left", d.Video.Region.Left)
	v.SetDefault("video.region.top", d.Video.Region.Top)
	v.SetDefault("video.region.width", d.Video.Region.Width)
	v.SetDefault("video.region.height", d.Video.Region.Height)
	v.SetDefault("video.intermediate", d.Video.Intermediate)

	v.SetDefault("encoder.quality", d.Encoder.Quality)
	v.SetDefault("encoder.nvenc", d.Encoder.NVENC)
	v.SetDefault("encoder.ffmpeg_path", d.Encoder.FFmpegPath)
	v.SetDefault("encoder.ffprobe_path", d.Encoder.FFprobePath)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)

	v.SetDefault("publish.s3.bucket", "")
	v.SetDefault("publish.s3.region", "")
	v.SetDefault("publish.s3.prefix", "")
	v.SetDefault("publish.s3.endpoint", "")
	v.SetDefault("publish.s3.path_style", false)
	v.SetDefault("publish.s3.access_key_id", "")
	v.SetDefault("publish.s3.secret_access_key", "")
	v.SetDefault("publish.s3.session_token", "")
}

func configDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "breeze-recorder")
	}
	return "."
}

func defaultOutputDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Videos", "breeze-recorder")
	}
	return "recordings"
}
