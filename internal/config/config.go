package config

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bashhack/gitwatch/internal/coordinator"
	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
	"github.com/bashhack/gitwatch/internal/observer"
	"github.com/bashhack/gitwatch/internal/pipeline"
)

const (
	// DefaultConfigFile is looked up in the watched root when no config file
	// is named explicitly. A missing default file is not an error.
	DefaultConfigFile = ".gitwatch.toml"

	// EnvPrefix starts every environment variable gitwatch reads.
	EnvPrefix = "GITWATCH_"
)

// Config holds all gitwatch settings.
// Values are layered: defaults, then the TOML file, then GITWATCH_*
// environment variables, then command-line flags.
type Config struct {
	// RepoPath is the working copy to watch. Empty means the current directory.
	RepoPath string

	// ConfigFile names a TOML file to load. Empty means RepoPath/.gitwatch.toml
	// if it exists.
	ConfigFile string

	// Timing

	// Debounce is how long the tree must stay quiet before a commit.
	Debounce time.Duration

	// MinBackoff is the first retry delay after a failed commit attempt.
	MinBackoff time.Duration

	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the retry delay after each consecutive failure.
	BackoffMultiplier float64

	// MinCommitInterval spaces commit attempts; zero disables the limit.
	MinCommitInterval time.Duration

	// GitTimeout bounds each git invocation.
	GitTimeout time.Duration

	// Commits

	// CommitPrefix starts every commit message and is used to find the last
	// sequence number when continuing.
	CommitPrefix string

	// ContinueSession resumes numbering from the highest existing checkpoint.
	ContinueSession bool

	// CommitOnStart commits pending changes one debounce interval after start.
	CommitOnStart bool

	// Watching

	// MetadataDir is the top-level directory whose changes are ignored.
	MetadataDir string

	// Exclude lists glob patterns for paths that never trigger a commit.
	Exclude []string

	// Buffer is the capacity of the channel between observer and coordinator.
	Buffer int

	// Output

	// Verbose controls informational console output.
	Verbose bool

	// Debug enables the debug log file.
	Debug bool

	// LogFile is the debug log path. Empty means a per-repository file under
	// $XDG_DATA_HOME/gitwatch/logs.
	LogFile string

	// VersionInfo is injected at build time.
	VersionInfo VersionInfo

	quiet bool
}

// VersionInfo contains build-time version metadata.
type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

// New creates a Config with default values.
func New() *Config {
	return &Config{
		Debounce:          coordinator.DefaultDebounce,
		MinBackoff:        coordinator.DefaultMinBackoff,
		MaxBackoff:        coordinator.DefaultMaxBackoff,
		BackoffMultiplier: coordinator.DefaultBackoffMultiplier,
		GitTimeout:        coordinator.DefaultGatewayTimeout,
		CommitPrefix:      coordinator.DefaultCommitPrefix,
		MetadataDir:       observer.DefaultMetadataDir,
		Buffer:            observer.DefaultBuffer,
		Verbose:           true,
		VersionInfo: VersionInfo{
			Version: "dev",
			Commit:  "unknown",
			Date:    "unknown",
		},
	}
}

// SetupFlags binds command-line flags to the config fields.
func (c *Config) SetupFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.RepoPath, "repo", "r", c.RepoPath, "Path to repository (default: current directory)")
	fs.StringVarP(&c.ConfigFile, "config", "c", c.ConfigFile, "Path to a TOML config file (default: <repo>/"+DefaultConfigFile+")")

	fs.DurationVarP(&c.Debounce, "debounce", "d", c.Debounce, "Quiet period after the last change before committing")
	fs.DurationVar(&c.MinBackoff, "min-backoff", c.MinBackoff, "First retry delay after a failed commit")
	fs.DurationVar(&c.MaxBackoff, "max-backoff", c.MaxBackoff, "Maximum retry delay")
	fs.Float64Var(&c.BackoffMultiplier, "backoff-multiplier", c.BackoffMultiplier, "Retry delay growth factor")
	fs.DurationVar(&c.MinCommitInterval, "min-commit-interval", c.MinCommitInterval, "Minimum time between commits (0 = no limit)")
	fs.DurationVar(&c.GitTimeout, "git-timeout", c.GitTimeout, "Timeout for each git command")

	fs.StringVarP(&c.CommitPrefix, "prefix", "p", c.CommitPrefix, "Commit message prefix")
	fs.BoolVar(&c.ContinueSession, "continue", c.ContinueSession, "Continue numbering from the last checkpoint commit")
	fs.BoolVar(&c.CommitOnStart, "commit-on-start", c.CommitOnStart, "Commit changes made while gitwatch was not running")

	fs.StringVar(&c.MetadataDir, "metadata-dir", c.MetadataDir, "Top-level directory whose changes are ignored")
	fs.StringSliceVarP(&c.Exclude, "exclude", "e", c.Exclude, "Glob pattern to ignore (repeatable)")
	fs.IntVar(&c.Buffer, "buffer", c.Buffer, "Capacity of the change event queue")

	fs.BoolVarP(&c.quiet, "quiet", "q", !c.Verbose, "Hide informational messages")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "Enable debug logging")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "Path to log file (default: ~/.local/share/gitwatch/logs/gitwatch-{repo-hash}.log)")
}

// Resolve layers the config file and environment underneath the flags that
// were set explicitly on fs, which must already be parsed and bound to c
// through SetupFlags.
func (c *Config) Resolve(fs *pflag.FlagSet) error {
	overrides := captureFlags(fs)

	reset := func() {
		version := c.VersionInfo
		*c = *New()
		c.VersionInfo = version
	}

	// First pass only locates the config file.
	reset()
	if err := c.LoadFromEnvironment(); err != nil {
		return err
	}
	if err := overrides.apply(fs); err != nil {
		return err
	}
	path, explicit := c.configPath()

	reset()
	if path != "" {
		if err := c.LoadFile(path, explicit); err != nil {
			return err
		}
	}
	if err := c.LoadFromEnvironment(); err != nil {
		return err
	}
	if err := overrides.apply(fs); err != nil {
		return err
	}
	if fs.Changed("quiet") {
		c.Verbose = !c.quiet
	}
	return nil
}

func (c *Config) configPath() (string, bool) {
	if c.ConfigFile != "" {
		return c.ConfigFile, true
	}
	root := c.RepoPath
	if root == "" {
		root = "."
	}
	return filepath.Join(root, DefaultConfigFile), false
}

// flagOverrides remembers the values of flags set on the command line so
// they can be re-applied over lower-precedence sources.
type flagOverrides []flagOverride

type flagOverride struct {
	name   string
	value  string
	values []string
	slice  bool
}

func captureFlags(fs *pflag.FlagSet) flagOverrides {
	var out flagOverrides
	fs.Visit(func(f *pflag.Flag) {
		o := flagOverride{name: f.Name, value: f.Value.String()}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			o.slice = true
			o.values = sv.GetSlice()
		}
		out = append(out, o)
	})
	return out
}

func (o flagOverrides) apply(fs *pflag.FlagSet) error {
	for _, ov := range o {
		f := fs.Lookup(ov.name)
		if f == nil {
			continue
		}
		var err error
		if sv, ok := f.Value.(pflag.SliceValue); ok && ov.slice {
			err = sv.Replace(ov.values)
		} else {
			err = f.Value.Set(ov.value)
		}
		if err != nil {
			return gitwatchErrors.NewConfigError(ov.name, ov.value, err)
		}
	}
	return nil
}

// LoadFromEnvironment updates the config from GITWATCH_* variables.
func (c *Config) LoadFromEnvironment() error {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	c.RepoPath = getEnvString("REPO", c.RepoPath)
	c.ConfigFile = getEnvString("CONFIG", c.ConfigFile)
	c.Debounce = getEnvDuration("DEBOUNCE", c.Debounce, collect)
	c.MinBackoff = getEnvDuration("MIN_BACKOFF", c.MinBackoff, collect)
	c.MaxBackoff = getEnvDuration("MAX_BACKOFF", c.MaxBackoff, collect)
	c.BackoffMultiplier = getEnvFloat("BACKOFF_MULTIPLIER", c.BackoffMultiplier, collect)
	c.MinCommitInterval = getEnvDuration("MIN_COMMIT_INTERVAL", c.MinCommitInterval, collect)
	c.GitTimeout = getEnvDuration("GIT_TIMEOUT", c.GitTimeout, collect)
	c.CommitPrefix = getEnvString("COMMIT_PREFIX", c.CommitPrefix)
	c.ContinueSession = getEnvBool("CONTINUE", c.ContinueSession, collect)
	c.CommitOnStart = getEnvBool("COMMIT_ON_START", c.CommitOnStart, collect)
	c.MetadataDir = getEnvString("METADATA_DIR", c.MetadataDir)
	c.Exclude = getEnvList("EXCLUDE", c.Exclude)
	c.Buffer = getEnvInt("BUFFER", c.Buffer, collect)
	c.Verbose = getEnvBool("VERBOSE", c.Verbose, collect)
	c.Debug = getEnvBool("DEBUG", c.Debug, collect)
	c.LogFile = getEnvString("LOG_FILE", c.LogFile)

	return gitwatchErrors.Join(errs...)
}

// Finalize fills in derived values and validates the configuration.
func (c *Config) Finalize() error {
	if c.RepoPath == "" {
		var err error
		c.RepoPath, err = os.Getwd()
		if err != nil {
			return gitwatchErrors.NewConfigError("repo", "", gitwatchErrors.Wrap(err, "failed to get current directory"))
		}
	}

	absRepoPath, err := filepath.Abs(c.RepoPath)
	if err != nil {
		return gitwatchErrors.NewConfigError("repo", c.RepoPath, gitwatchErrors.Wrap(err, "failed to resolve absolute path"))
	}
	// Symlinked aliases of one working copy must share a lock and log file.
	resolved, err := filepath.EvalSymlinks(absRepoPath)
	switch {
	case err == nil:
		absRepoPath = resolved
	case !os.IsNotExist(err):
		return gitwatchErrors.NewConfigError("repo", c.RepoPath, gitwatchErrors.Wrap(err, "failed to resolve symlinks"))
	}
	c.RepoPath = absRepoPath

	if err := c.validate(); err != nil {
		return err
	}

	if c.LogFile == "" {
		// Follow XDG Base Directory Specification
		logDir := os.Getenv("XDG_DATA_HOME")
		if logDir == "" {
			homeDir, err := os.UserHomeDir()
			if err == nil {
				logDir = filepath.Join(homeDir, ".local", "share")
			} else {
				logDir = os.TempDir()
			}
		}

		repoHash := fmt.Sprintf("%x", sha256OfString(c.RepoPath)[:8])
		c.LogFile = filepath.Join(logDir, "gitwatch", "logs", fmt.Sprintf("gitwatch-%s.log", repoHash))
	}

	if c.Debug {
		if err := os.MkdirAll(filepath.Dir(c.LogFile), 0o700); err != nil {
			return gitwatchErrors.NewConfigError("log-file", c.LogFile, gitwatchErrors.Wrap(err, "cannot create log directory"))
		}
	}

	return nil
}

func (c *Config) validate() error {
	switch {
	case c.Debounce <= 0:
		return invalid("debounce", c.Debounce, "must be greater than 0")
	case c.MinBackoff <= 0:
		return invalid("min-backoff", c.MinBackoff, "must be greater than 0")
	case c.MaxBackoff < c.MinBackoff:
		return invalid("max-backoff", c.MaxBackoff, fmt.Sprintf("must not be less than min-backoff (%s)", c.MinBackoff))
	case c.BackoffMultiplier < 1:
		return invalid("backoff-multiplier", c.BackoffMultiplier, "must be at least 1")
	case c.MinCommitInterval < 0:
		return invalid("min-commit-interval", c.MinCommitInterval, "must not be negative")
	case c.GitTimeout <= 0:
		return invalid("git-timeout", c.GitTimeout, "must be greater than 0")
	case c.Buffer <= 0:
		return invalid("buffer", c.Buffer, "must be greater than 0")
	case strings.TrimSpace(c.CommitPrefix) == "":
		return invalid("prefix", c.CommitPrefix, "must not be empty")
	case c.MetadataDir == "" || strings.ContainsAny(c.MetadataDir, `/\`):
		return invalid("metadata-dir", c.MetadataDir, "must be a single directory name")
	}
	if _, err := observer.NewFilter(c.MetadataDir, c.Exclude); err != nil {
		return err
	}
	return nil
}

func invalid(parameter string, value any, reason string) error {
	return gitwatchErrors.NewConfigError(parameter, value, gitwatchErrors.New(reason))
}

// Pipeline converts the finalized config into pipeline settings. The next
// commit is numbered startSequence+1.
func (c *Config) Pipeline(startSequence int) pipeline.Config {
	return pipeline.Config{
		Root: c.RepoPath,
		Observer: observer.Options{
			MetadataDir: c.MetadataDir,
			Exclude:     append([]string(nil), c.Exclude...),
			Buffer:      c.Buffer,
		},
		Coordinator: coordinator.Options{
			Debounce:          c.Debounce,
			MinBackoff:        c.MinBackoff,
			MaxBackoff:        c.MaxBackoff,
			BackoffMultiplier: c.BackoffMultiplier,
			MinCommitInterval: c.MinCommitInterval,
			GatewayTimeout:    c.GitTimeout,
			CommitPrefix:      c.CommitPrefix,
			StartSequence:     startSequence,
			CommitOnStart:     c.CommitOnStart,
		},
	}
}

// getEnvString returns an environment variable string or a default value
func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(EnvPrefix + key); exists {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated environment variable
func getEnvList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(EnvPrefix + key)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int, collect func(error)) int {
	valueStr, exists := os.LookupEnv(EnvPrefix + key)
	if !exists {
		return defaultValue
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		collect(gitwatchErrors.NewConfigError(EnvPrefix+key, valueStr, err))
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64, collect func(error)) float64 {
	valueStr, exists := os.LookupEnv(EnvPrefix + key)
	if !exists {
		return defaultValue
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(valueStr), 64)
	if err != nil {
		collect(gitwatchErrors.NewConfigError(EnvPrefix+key, valueStr, err))
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration, collect func(error)) time.Duration {
	valueStr, exists := os.LookupEnv(EnvPrefix + key)
	if !exists {
		return defaultValue
	}
	value, err := time.ParseDuration(strings.TrimSpace(valueStr))
	if err != nil {
		collect(gitwatchErrors.NewConfigError(EnvPrefix+key, valueStr, err))
		return defaultValue
	}
	return value
}

// getEnvBool accepts true/false, 1/0 and yes/no.
func getEnvBool(key string, defaultValue bool, collect func(error)) bool {
	valueStr, exists := os.LookupEnv(EnvPrefix + key)
	if !exists {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(valueStr)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	collect(gitwatchErrors.NewConfigError(EnvPrefix+key, valueStr, gitwatchErrors.New("expected true or false")))
	return defaultValue
}

// sha256OfString returns the SHA256 hash of a string
func sha256OfString(input string) []byte {
	hash := sha256.Sum256([]byte(input))
	return hash[:]
}
