// Package config loads flint's optional TOML configuration file: prompt
// strings, history size/path, and which shell options are enabled at
// startup. It layers a built-in default, the user's $HOME/.flintrc.toml,
// and a --config override, using koanf the way wharflab-tally layers its
// own settings, with github.com/BurntSushi/toml as the actual TOML parser
// underneath koanf's toml provider.
package config

import (
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the fully resolved, merged configuration flint starts with.
type Config struct {
	PS1 string `koanf:"ps1"`
	PS2 string `koanf:"ps2"`

	HistoryFile string `koanf:"history_file"`
	HistorySize int     `koanf:"history_size"`

	// Options lists shell options (as accepted by "set -o") to enable at
	// startup, beyond the interpreter's own defaults.
	Options []string `koanf:"options"`
}

func defaults() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		PS1:         `\u@flint:\w$ `,
		PS2:         "> ",
		HistoryFile: filepath.Join(home, ".flint_history"),
		HistorySize: 50000,
	}
}

// Load resolves the configuration. If path is non-empty, it entirely
// replaces the default search path (spec.md §6: "--config overrides the
// default config search"). If noRC is set, no file is read at all and only
// the built-in defaults apply. Otherwise $HOME/.flintrc.toml is read if
// present; a missing default file is not an error.
func Load(path string, noRC bool) (*Config, error) {
	cfg := defaults()
	k := koanf.New(".")
	if err := k.Load(structProvider(cfg), nil); err != nil {
		return nil, err
	}

	if noRC {
		return cfg, nil
	}

	if path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			candidate := filepath.Join(home, ".flintrc.toml")
			if _, statErr := os.Stat(candidate); statErr == nil {
				path = candidate
			}
		}
	}
	if path == "" {
		return cfg, nil
	}

	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return nil, err
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// structProvider adapts an already-populated *Config into a koanf.Provider
// so defaults() can seed the same koanf instance that later layers the
// config file on top, rather than hand-merging two structs.
func structProvider(cfg *Config) koanf.Provider {
	return structProviderFunc(func() (map[string]any, error) {
		return map[string]any{
			"ps1":          cfg.PS1,
			"ps2":          cfg.PS2,
			"history_file": cfg.HistoryFile,
			"history_size": cfg.HistorySize,
			"options":      cfg.Options,
		}, nil
	})
}

type structProviderFunc func() (map[string]any, error)

func (f structProviderFunc) ReadBytes() ([]byte, error) { return nil, errNotSupported }
func (f structProviderFunc) Read() (map[string]any, error) { return f() }

var errNotSupported = &unsupportedError{"structProvider does not support ReadBytes"}

type unsupportedError struct{ msg string }

func (e *unsupportedError) Error() string { return e.msg }
