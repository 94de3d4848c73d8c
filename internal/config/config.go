// Package config loads the YAML configuration of the flashfs tool.
//
// Loading runs in three stages: decode, Validate, Normalize. Validate
// never mutates; Normalize fills defaults and must only run on a
// validated Config.
package config

import (
	"log/slog"
	"time"
)

type Config struct {
	Transport TransportConfig `yaml:"transport"`
	Chip      ChipConfig      `yaml:"chip"`
	Directory DirectoryConfig `yaml:"directory"`
	Log       LogConfig       `yaml:"log"`
}

// ---- TRANSPORT ----

const (
	KindPeriph  = "periph"
	KindSerprog = "serprog"
	KindSim     = "sim"
)

type TransportConfig struct {
	Kind    string        `yaml:"kind"`
	Periph  PeriphConfig  `yaml:"periph"`
	Serprog SerprogConfig `yaml:"serprog"`
	Sim     SimConfig     `yaml:"sim"`
}

type PeriphConfig struct {
	Port    string `yaml:"port"`
	CS      string `yaml:"cs"`
	SpeedHz int64  `yaml:"speed_hz"`
	Mode    int    `yaml:"mode"`
}

type SerprogConfig struct {
	Device    string `yaml:"device"`
	Baud      int    `yaml:"baud"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

func (c SerprogConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

type SimConfig struct {
	Model string `yaml:"model"`
	// Image is loaded at start and saved back on exit when set.
	Image string `yaml:"image"`
}

// ---- CHIP ----

type ChipConfig struct {
	WaitTimeoutMs int `yaml:"wait_timeout_ms"` // 0 waits forever
	WakeupDelayUs int `yaml:"wakeup_delay_us"`
}

func (c ChipConfig) WaitTimeout() time.Duration {
	return time.Duration(c.WaitTimeoutMs) * time.Millisecond
}

func (c ChipConfig) WakeupDelay() time.Duration {
	return time.Duration(c.WakeupDelayUs) * time.Microsecond
}

// ---- DIRECTORY ----

// DirectoryConfig is the layout used to format blank flash.
type DirectoryConfig struct {
	MaxFiles    int `yaml:"max_files"`
	StringsSize int `yaml:"strings_size"`
}

// ---- LOG ----

type LogConfig struct {
	Level string `yaml:"level"`
}

func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
