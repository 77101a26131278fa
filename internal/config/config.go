// Package config provides configuration loading and management functionality.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DiscordConfig holds credentials for the text gateway session that supplies
// ConnectionInfo to the voice driver (the Gateway collaborator of §6).
type DiscordConfig struct {
	BotToken string   `yaml:"bot_token"`
	GuildIDs []string `yaml:"guild_ids"`
}

// CryptoMode names one of the three encryption modes negotiated with the
// voice server (§6 "Encryption modes").
type CryptoMode string

const (
	CryptoModeXChaCha20Poly1305RTPSize CryptoMode = "xchacha20_poly1305_rtpsize"
	CryptoModeXSalsa20Poly1305Lite     CryptoMode = "xsalsa20_poly1305_lite"
	CryptoModeXSalsa20Poly1305Suffix   CryptoMode = "xsalsa20_poly1305_suffix"
)

// DecodeMode controls how much of the receive path runs for inbound RTP.
type DecodeMode string

const (
	// DecodeModePass is handled like DecodeModeDecrypt by the receive
	// Router: SRTP is opened and the Opus decoder is not run. Nothing is
	// re-transmitted.
	DecodeModePass DecodeMode = "pass"
	// DecodeModeDecrypt opens SRTP but does not run the Opus decoder.
	DecodeModeDecrypt DecodeMode = "decrypt"
	// DecodeModeDecode fully decodes Opus to PCM for each playout tick.
	DecodeModeDecode DecodeMode = "decode"
)

// DriveMode selects how Mixer workers are scheduled (§5).
type DriveMode string

const (
	DriveModeTokio    DriveMode = "tokio"    // cooperates with an async runtime's reactor
	DriveModeBlocking DriveMode = "blocking" // owns dedicated OS threads outright
)

// VoiceConfig enumerates every configuration knob named by spec §6.
type VoiceConfig struct {
	CryptoMode                 CryptoMode `yaml:"crypto_mode"`
	LiveTracksPerThread        int        `yaml:"live_tracks_per_thread"`
	PlayoutBufferLength        int        `yaml:"playout_buffer_length"`
	PlayoutSpikeLength         int        `yaml:"playout_spike_length"`
	DecodeMode                 DecodeMode `yaml:"decode_mode"`
	Softclip                   bool       `yaml:"softclip"`
	DriveMode                  DriveMode  `yaml:"drive_mode"`
	Bitrate                    int        `yaml:"bitrate"`
	MixAndReencodeWhenOneTrack bool       `yaml:"mix_and_reencode_when_one_track"`

	// WorkerTickBudget is the soft 18ms "work" budget of §4.4's overload
	// handling, expressed as a duration so tests can shrink it.
	WorkerTickBudget time.Duration `yaml:"-"`

	// SilenceTimeoutTicks prunes an SsrcState after this many ticks with
	// no inbound packets (§3 "SsrcState").
	SilenceTimeoutTicks int `yaml:"silence_timeout_ticks"`

	// StarvingTicks is the bounded "starving" window of §4.1 before a
	// track that keeps returning WouldBlock is paused.
	StarvingTicks int `yaml:"starving_ticks"`
}

type Config struct {
	Discord  DiscordConfig `yaml:"discord"`
	Voice    VoiceConfig   `yaml:"voice"`
	LogLevel string        `yaml:"log_level"`
}

func LoadConfig(filePath string) (*Config, error) {
	// #nosec G304 - filePath is provided by application during startup, not user input
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ValidateVoiceConfig(&cfg.Voice)

	return &cfg, nil
}

// ValidateVoiceConfig applies the defaults spec §6 calls out explicitly,
// and sensible ones for the fields it leaves to the implementation.
func ValidateVoiceConfig(cfg *VoiceConfig) {
	if cfg.LiveTracksPerThread == 0 {
		cfg.LiveTracksPerThread = 16
	}
	if cfg.PlayoutBufferLength == 0 {
		cfg.PlayoutBufferLength = 5
	}
	if cfg.PlayoutSpikeLength == 0 {
		cfg.PlayoutSpikeLength = 3
	}
	if cfg.DecodeMode == "" {
		cfg.DecodeMode = DecodeModeDecode
	}
	if cfg.DriveMode == "" {
		cfg.DriveMode = DriveModeBlocking
	}
	if cfg.Bitrate == 0 {
		cfg.Bitrate = 64000
	}
	if cfg.CryptoMode == "" {
		cfg.CryptoMode = CryptoModeXChaCha20Poly1305RTPSize
	}
	if cfg.WorkerTickBudget == 0 {
		cfg.WorkerTickBudget = 18 * time.Millisecond
	}
	if cfg.SilenceTimeoutTicks == 0 {
		cfg.SilenceTimeoutTicks = 100
	}
	if cfg.StarvingTicks == 0 {
		cfg.StarvingTicks = 5
	}
}
