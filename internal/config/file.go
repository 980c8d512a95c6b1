package config

import (
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
)

// fileConfig mirrors the keys accepted in .gitwatch.toml. Pointer fields
// distinguish "absent" from a zero value.
type fileConfig struct {
	Debounce          *duration `toml:"debounce"`
	MinBackoff        *duration `toml:"min_backoff"`
	MaxBackoff        *duration `toml:"max_backoff"`
	BackoffMultiplier *float64  `toml:"backoff_multiplier"`
	MinCommitInterval *duration `toml:"min_commit_interval"`
	GitTimeout        *duration `toml:"git_timeout"`
	CommitPrefix      *string   `toml:"commit_prefix"`
	Continue          *bool     `toml:"continue"`
	CommitOnStart     *bool     `toml:"commit_on_start"`
	MetadataDir       *string   `toml:"metadata_dir"`
	Exclude           []string  `toml:"exclude"`
	Buffer            *int      `toml:"buffer"`
	Verbose           *bool     `toml:"verbose"`
	Debug             *bool     `toml:"debug"`
	LogFile           *string   `toml:"log_file"`
}

// duration decodes Go duration strings such as "500ms" or "1m30s".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

// LoadFile applies the settings found in a TOML file. A missing file is only
// an error when required is true. Unknown keys are rejected.
func (c *Config) LoadFile(path string, required bool) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return gitwatchErrors.NewConfigError("config", path, err)
	}
	defer func() { _ = f.Close() }()

	var fc fileConfig
	dec := toml.NewDecoder(f).DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		var strict *toml.StrictMissingError
		if gitwatchErrors.As(err, &strict) {
			return gitwatchErrors.NewConfigError("config", path, gitwatchErrors.New(strict.String()))
		}
		return gitwatchErrors.NewConfigError("config", path, err)
	}

	setDuration(&c.Debounce, fc.Debounce)
	setDuration(&c.MinBackoff, fc.MinBackoff)
	setDuration(&c.MaxBackoff, fc.MaxBackoff)
	set(&c.BackoffMultiplier, fc.BackoffMultiplier)
	setDuration(&c.MinCommitInterval, fc.MinCommitInterval)
	setDuration(&c.GitTimeout, fc.GitTimeout)
	set(&c.CommitPrefix, fc.CommitPrefix)
	set(&c.ContinueSession, fc.Continue)
	set(&c.CommitOnStart, fc.CommitOnStart)
	set(&c.MetadataDir, fc.MetadataDir)
	if fc.Exclude != nil {
		c.Exclude = fc.Exclude
	}
	set(&c.Buffer, fc.Buffer)
	set(&c.Verbose, fc.Verbose)
	set(&c.Debug, fc.Debug)
	set(&c.LogFile, fc.LogFile)
	return nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *duration) {
	if src != nil {
		*dst = time.Duration(*src)
	}
}
