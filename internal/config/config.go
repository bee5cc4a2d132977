package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig `yaml:"server"`
	Worker   WorkerConfig `yaml:"worker"`
	Reset    ResetConfig  `yaml:"reset"`
	LogLevel string       `yaml:"log_level,omitempty"`
}

type ServerConfig struct {
	Address     string   `yaml:"address,omitempty"`
	CORSOrigins []string `yaml:"cors_origins,omitempty"`
}

// WorkerConfig describes how to launch and observe the strategy worker.
// Stop periods are the wait budgets of the termination escalation, in seconds.
type WorkerConfig struct {
	Command       string            `yaml:"command"`
	Args          []string          `yaml:"args,omitempty"`
	Directory     string            `yaml:"directory,omitempty"`
	Environment   map[string]string `yaml:"environment,omitempty"`
	LogFile       string            `yaml:"log_file,omitempty"`
	StopGraceSecs int               `yaml:"stop_grace_secs,omitempty"`
	StopTermSecs  int               `yaml:"stop_term_secs,omitempty"`
}

// ResetConfig describes the statistics-reset maintenance command. AutoConfirm
// feeds the script's two yes/no prompts affirmatively; turning it off makes
// the reset endpoint refuse instead of hanging on the prompt.
type ResetConfig struct {
	Interpreter string `yaml:"interpreter,omitempty"`
	Script      string `yaml:"script,omitempty"`
	TimeoutSecs int    `yaml:"timeout_secs,omitempty"`
	AutoConfirm bool   `yaml:"auto_confirm"`
}

// Default returns the configuration used when no file is present: a python
// worker in the current directory, dashboard CORS origins, 2s/1s stop budgets
// and a 30s reset timeout.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address: ":8080",
			CORSOrigins: []string{
				"http://localhost:3000",
				"http://127.0.0.1:3000",
			},
		},
		Worker: WorkerConfig{
			Command:       "python3",
			Args:          []string{"main.py"},
			LogFile:       "strategy.log",
			StopGraceSecs: 2,
			StopTermSecs:  1,
		},
		Reset: ResetConfig{
			Interpreter: "python3",
			Script:      "reset_strategy.py",
			TimeoutSecs: 30,
			AutoConfirm: true,
		},
		LogLevel: "info",
	}
}

// Load reads the yaml file at path on top of Default, then applies environment
// overrides. Fields absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if addr := os.Getenv("SERVER_ADDRESS"); addr != "" {
		cfg.Server.Address = addr
	}
}

func (w WorkerConfig) StopGracePeriod() time.Duration {
	return secsOrDefault(w.StopGraceSecs, 2*time.Second)
}

func (w WorkerConfig) StopTermPeriod() time.Duration {
	return secsOrDefault(w.StopTermSecs, time.Second)
}

// LogPath resolves the worker log file against the worker directory.
func (w WorkerConfig) LogPath() string {
	return w.ResolvePath(w.LogFile)
}

// ResolvePath joins a relative path with the worker directory. The log file
// and the reset script are both written relative to where the worker runs.
func (w WorkerConfig) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || w.Directory == "" {
		return p
	}
	return filepath.Join(w.Directory, p)
}

func (r ResetConfig) Timeout() time.Duration {
	return secsOrDefault(r.TimeoutSecs, 30*time.Second)
}

func secsOrDefault(secs int, def time.Duration) time.Duration {
	if secs <= 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}

// Level parses the configured log level, defaulting to info on anything
// unrecognized.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
