// Package config loads bridgectl settings from TOML or YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/x64dbg/bridge/command"
	"github.com/x64dbg/bridge/errors"
	"github.com/x64dbg/bridge/msgqueue"
	"github.com/x64dbg/bridge/pool"
)

// EnvLogLevel overrides Log.Level when set.
const EnvLogLevel = "BRIDGE_LOG_LEVEL"

// Config is the full settings tree.
type Config struct {
	Log     LogConfig     `toml:"log" yaml:"log"`
	Queue   QueueConfig   `toml:"queue" yaml:"queue"`
	Pool    PoolConfig    `toml:"pool" yaml:"pool"`
	Plugin  PluginConfig  `toml:"plugin" yaml:"plugin"`
	Command CommandConfig `toml:"command" yaml:"command"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" yaml:"level"`
	// Format is console or json.
	Format string `toml:"format" yaml:"format"`
}

type QueueConfig struct {
	// Capacity bounds the event queue; 0 is unbounded.
	Capacity   int    `toml:"capacity" yaml:"capacity"`
	Discipline string `toml:"discipline" yaml:"discipline"`
}

type PoolConfig struct {
	BatchSize int `toml:"batch_size" yaml:"batch_size"`
	MaxSlabs  int `toml:"max_slabs" yaml:"max_slabs"`
}

type PluginConfig struct {
	MemoryLimitPages uint32 `toml:"memory_limit_pages" yaml:"memory_limit_pages"`
}

type CommandConfig struct {
	Capacity int `toml:"capacity" yaml:"capacity"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Log:     LogConfig{Level: "info", Format: "console"},
		Queue:   QueueConfig{Capacity: 0, Discipline: "fifo"},
		Pool:    PoolConfig{BatchSize: pool.DefaultBatchSize},
		Plugin:  PluginConfig{MemoryLimitPages: 256},
		Command: CommandConfig{Capacity: 64},
	}
}

// Load reads path over the defaults. The format follows the extension:
// .yaml and .yml are YAML, anything else TOML. An empty path yields the
// defaults. Settings absent from the file keep their default value.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = loadYAML(path, &cfg)
		default:
			err = loadTOML(path, &cfg)
		}
		if err != nil {
			return Config{}, err
		}
	}
	if lvl := strings.TrimSpace(os.Getenv(EnvLogLevel)); lvl != "" {
		cfg.Log.Level = lvl
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read "+path)
	}
	// yaml.v3 leaves fields missing from the document untouched.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.ParseFailed(errors.PhaseConfig, path, err)
	}
	return nil
}

type fileConfig struct {
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
	Queue struct {
		Capacity   int    `toml:"capacity"`
		Discipline string `toml:"discipline"`
	} `toml:"queue"`
	Pool struct {
		BatchSize int `toml:"batch_size"`
		MaxSlabs  int `toml:"max_slabs"`
	} `toml:"pool"`
	Plugin struct {
		MemoryLimitPages uint32 `toml:"memory_limit_pages"`
	} `toml:"plugin"`
	Command struct {
		Capacity int `toml:"capacity"`
	} `toml:"command"`
}

func loadTOML(path string, cfg *Config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read "+path)
		}
		return errors.ParseFailed(errors.PhaseConfig, path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return errors.InvalidData(errors.PhaseConfig, []string{path}, fmt.Sprintf("unknown key %q", undecoded[0].String()))
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "format") {
		cfg.Log.Format = strings.TrimSpace(raw.Log.Format)
	}
	if meta.IsDefined("queue", "capacity") {
		cfg.Queue.Capacity = raw.Queue.Capacity
	}
	if meta.IsDefined("queue", "discipline") {
		cfg.Queue.Discipline = strings.TrimSpace(raw.Queue.Discipline)
	}
	if meta.IsDefined("pool", "batch_size") {
		cfg.Pool.BatchSize = raw.Pool.BatchSize
	}
	if meta.IsDefined("pool", "max_slabs") {
		cfg.Pool.MaxSlabs = raw.Pool.MaxSlabs
	}
	if meta.IsDefined("plugin", "memory_limit_pages") {
		cfg.Plugin.MemoryLimitPages = raw.Plugin.MemoryLimitPages
	}
	if meta.IsDefined("command", "capacity") {
		cfg.Command.Capacity = raw.Command.Capacity
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	invalid := func(field, detail string) error {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path(field).
			Detail("%s", detail).
			Build()
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level", fmt.Sprintf("unknown level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return invalid("log.format", fmt.Sprintf("unknown format %q", c.Log.Format))
	}
	if c.Queue.Capacity < 0 {
		return invalid("queue.capacity", "must not be negative")
	}
	if _, ok := msgqueue.ParseDiscipline(c.Queue.Discipline); !ok {
		return invalid("queue.discipline", fmt.Sprintf("unknown discipline %q", c.Queue.Discipline))
	}
	if c.Pool.BatchSize <= 0 {
		return invalid("pool.batch_size", "must be positive")
	}
	if c.Pool.MaxSlabs < 0 {
		return invalid("pool.max_slabs", "must not be negative")
	}
	if c.Command.Capacity < 0 {
		return invalid("command.capacity", "must not be negative")
	}
	return nil
}

// QueueOptions translates the queue and pool settings.
func (c Config) QueueOptions() []msgqueue.Option {
	d, _ := msgqueue.ParseDiscipline(c.Queue.Discipline)
	return []msgqueue.Option{
		msgqueue.WithCapacity(c.Queue.Capacity),
		msgqueue.WithDiscipline(d),
		msgqueue.WithBatchSize(c.Pool.BatchSize),
		msgqueue.WithMaxSlabs(c.Pool.MaxSlabs),
	}
}

// CommandOptions translates the command channel settings. The channel's
// queue follows the queue discipline and pool limits; its capacity comes from
// the command section.
func (c Config) CommandOptions() []command.Option {
	d, _ := msgqueue.ParseDiscipline(c.Queue.Discipline)
	return []command.Option{
		command.WithCapacity(c.Command.Capacity),
		command.WithQueueOptions(
			msgqueue.WithDiscipline(d),
			msgqueue.WithBatchSize(c.Pool.BatchSize),
			msgqueue.WithMaxSlabs(c.Pool.MaxSlabs),
		),
		command.WithSlotOptions(
			pool.WithBatchSize(c.Pool.BatchSize),
			pool.WithMaxSlabs(c.Pool.MaxSlabs),
		),
	}
}
