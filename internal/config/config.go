// Package config implements parsing, defaulting and validation of
// gazpacho's declarative YAML configuration (spec.md §6).
package config

import (
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"go.yaml.in/yaml/v4"
)

// Env carries daemon-level overrides read from the process environment,
// letting operators override the config path and a couple of daemon knobs
// without editing YAML.
type Env struct {
	ConfigPath string `env:"GAZPACHO_CONFIG"`
	Database   string `env:"GAZPACHO_DATABASE"`
}

func ParseEnv() (*Env, error) {
	e := &Env{}
	if err := env.Parse(e); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return e, nil
}

// Config is the typed, in-memory view of gazpacho's configuration. It is
// immutable once loaded and shared read-only across all components.
type Config struct {
	Daemon       Daemon                  `yaml:"daemon" validate:"required"`
	Logging      Logging                 `yaml:"logging"`
	Destinations map[string]*Destination `yaml:"destination" validate:"dive,required"`
	Tasks        map[string]*Task        `yaml:"task" validate:"dive,required"`
	Parallelism  int                     `yaml:"parallelism" default:"1" validate:"min=1"`
}

type Daemon struct {
	Database          string        `yaml:"database" validate:"required"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	CleanupOnStartup  bool          `yaml:"cleanup_on_startup" default:"false"`
}

type Logging struct {
	Terminal TerminalLogging `yaml:"terminal"`
	Syslog   SyslogLogging   `yaml:"syslog"`
}

type TerminalLogging struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Level   string `yaml:"level" default:"INFO" validate:"oneof=TRACE DEBUG INFO WARN ERROR"`
}

type SyslogLogging struct {
	Enabled bool   `yaml:"enabled" default:"false"`
	Level   string `yaml:"level" default:"INFO" validate:"oneof=TRACE DEBUG INFO WARN ERROR"`
	Socket  string `yaml:"socket" default:"/var/run/log"`
}

// Destination is one named save target: either a local directory or an SFTP
// folder, addressed by Name across the Tasks map.
type Destination struct {
	Name        string `yaml:"-"`
	Parallelism int    `yaml:"parallelism" default:"1" validate:"min=1"`
	ChmodFile   uint32 `yaml:"chmod" default:"384"` // 0o600
	ChmodDir    uint32 `yaml:"chmod_dir" default:"448"` // 0o700

	SSH   *DestinationSSH   `yaml:"ssh,omitempty"`
	Local *DestinationLocal `yaml:"local,omitempty"`
}

type DestinationSSH struct {
	Username     string `yaml:"username" validate:"required"`
	IdentityFile string `yaml:"identity_file" validate:"required"`
	Folder       string `yaml:"folder" validate:"required"`
	HostPort     string `yaml:"host" validate:"required,hostname_port"`
}

type DestinationLocal struct {
	Folder string `yaml:"folder" validate:"required"`
}

// Kind resolves which of SSH/Local was set, enforcing "exactly one of".
func (d *Destination) Kind() (DestinationKind, error) {
	switch {
	case d.SSH != nil && d.Local != nil:
		return nil, fmt.Errorf("destination %q: ambiguous kind, both ssh and local set", d.Name)
	case d.SSH != nil:
		return d.SSH, nil
	case d.Local != nil:
		return d.Local, nil
	default:
		return nil, fmt.Errorf("destination %q: missing kind, set ssh or local", d.Name)
	}
}

// DestinationKind distinguishes SSH from Local destinations without an enum
// wrapper type, mirroring the teacher's preference for small marker
// interfaces over reflection-heavy discriminated unions.
type DestinationKind interface {
	isDestinationKind()
}

func (*DestinationSSH) isDestinationKind()   {}
func (*DestinationLocal) isDestinationKind() {}

// Task describes one scheduled backup job: which destination it writes to,
// how it decides incremental vs full sends, and how much it compresses.
type Task struct {
	Name            string       `yaml:"-"`
	DestinationName string       `yaml:"destination" validate:"required"`
	Parallelism     int          `yaml:"parallelism" default:"1" validate:"min=1"`
	Compression     *Compression `yaml:"compression,omitempty"`

	// Schedule is an optional cron expression (github.com/dsh2dsh/cron/v3
	// syntax). A task with no schedule is left to an external trigger
	// (an operator's cron, systemd timer, or manual ExecuteTask call).
	Schedule string `yaml:"schedule,omitempty"`

	Strategy StrategyConfig `yaml:"strategy" validate:"required"`
}

type Compression struct {
	Zstd *CompressionZstd `yaml:"zstd,omitempty"`
}

type CompressionZstd struct {
	Level   int `yaml:"level" default:"3" validate:"min=1,max=22"`
	Workers int `yaml:"workers" default:"1" validate:"min=1"`
}

// StrategyConfig holds exactly one of Full or Incremental.
type StrategyConfig struct {
	Full        *FullStrategy        `yaml:"full,omitempty"`
	Incremental *IncrementalStrategy `yaml:"incremental,omitempty"`
}

// Strategy resolves which of Full/Incremental was configured.
func (s StrategyConfig) Strategy(taskName string) (Strategy, error) {
	switch {
	case s.Full != nil && s.Incremental != nil:
		return nil, fmt.Errorf("task %q: ambiguous strategy, both full and incremental set", taskName)
	case s.Full != nil:
		return s.Full, nil
	case s.Incremental != nil:
		return s.Incremental, nil
	default:
		return nil, fmt.Errorf("task %q: missing strategy, set strategy.full or strategy.incremental", taskName)
	}
}

// Strategy is satisfied by FullStrategy and IncrementalStrategy; it exposes
// the zpool/filter pair every strategy must supply for dataset discovery.
type Strategy interface {
	ZpoolAndFilter() (zpool string, filter *regexp.Regexp, err error)
}

type FullStrategy struct {
	Zpool  string `yaml:"zpool" validate:"required"`
	Filter string `yaml:"filter" validate:"required"`
}

func (s *FullStrategy) ZpoolAndFilter() (string, *regexp.Regexp, error) {
	re, err := regexp.Compile(s.Filter)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter %q: %w", s.Filter, err)
	}
	return s.Zpool, re, nil
}

type IncrementalStrategy struct {
	Zpool                string         `yaml:"zpool" validate:"required"`
	Filter               string         `yaml:"filter" validate:"required"`
	RunsBeforeReset      *int           `yaml:"runs_before_reset,omitempty" validate:"omitempty,min=1"`
	DurationBeforeReset  *time.Duration `yaml:"duration_before_reset,omitempty"`
	Cleanup              *CleanupPolicy `yaml:"cleanup,omitempty"`
}

func (s *IncrementalStrategy) ZpoolAndFilter() (string, *regexp.Regexp, error) {
	re, err := regexp.Compile(s.Filter)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter %q: %w", s.Filter, err)
	}
	return s.Zpool, re, nil
}

// CleanupPolicy is recognized by the configuration layer (spec.md §9) but
// the pruning algorithm itself is Maid's concern and out of scope here.
type CleanupPolicy struct {
	Destination      *RetentionRule `yaml:"destination,omitempty"`
	Local            *RetentionRule `yaml:"local,omitempty"`
	ReplaceWithBookmark bool       `yaml:"replace_with_bookmark" default:"false"`
	RunEveryTime     bool           `yaml:"run_every_time" default:"false"`
}

type RetentionRule struct {
	Age   *time.Duration `yaml:"age,omitempty"`
	Count *int           `yaml:"count,omitempty" validate:"omitempty,min=1"`
}

// Load reads and parses the configuration at path, applying defaults and
// validating the result.
func Load(path string) (*Config, []string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}
	return ParseBytes(b)
}

// ParseBytes decodes raw YAML bytes into a Config, fills defaults, runs
// struct validation, assigns the map keys (names) onto their elements, and
// drops tasks referencing an unknown destination (spec.md §3 invariant).
// The names of dropped tasks are returned so the caller can log them --
// ParseBytes itself owns no logger.
func ParseBytes(b []byte) (*Config, []string, error) {
	c := &Config{}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := defaults.Set(c); err != nil {
		return nil, nil, fmt.Errorf("apply defaults: %w", err)
	}

	for name, d := range c.Destinations {
		d.Name = name
	}
	for name, t := range c.Tasks {
		t.Name = name
	}

	if err := Validator().Struct(c); err != nil {
		return nil, nil, fmt.Errorf("validate config: %w", err)
	}

	var dropped []string
	for name, t := range c.Tasks {
		if _, ok := c.Destinations[t.DestinationName]; !ok {
			dropped = append(dropped, name)
		}
	}
	for _, name := range dropped {
		delete(c.Tasks, name)
	}

	return c, dropped, nil
}

var validate *validator.Validate

// Validator returns the process-wide validator instance, registering the
// yaml tag name function so validation errors speak in config field names
// rather than Go struct field names (mirrors the teacher's newValidator()).
func Validator() *validator.Validate {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	}
	return validate
}
