package regexmap

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"sync"

	"github.com/blociq/blociq-backend/pkg/logger"
)

// EnvVersion selects the rule-set version when Load is called without one
// and the Loader was not given a version.
const EnvVersion = "COMPLIANCE_REGEX_VERSION"

// Loader reads rule sets named regex-map.<version>.yaml from a file system
// and caches the first one it loads. Later calls return the cached rule set
// whatever version they ask for, until Clear is called.
type Loader struct {
	fsys    fs.FS
	dir     string
	version string
	log     *logger.Logger

	mu     sync.Mutex
	cached *Config
}

// Option configures a Loader.
type Option func(*Loader)

// WithVersion sets the version used when Load is called with an empty version.
func WithVersion(version string) Option {
	return func(l *Loader) { l.version = version }
}

// WithLogger sets the logger used to report loads.
func WithLogger(log *logger.Logger) Option {
	return func(l *Loader) { l.log = log.WithComponent("regexmap") }
}

// NewLoader creates a loader reading dir within fsys.
func NewLoader(fsys fs.FS, dir string, opts ...Option) *Loader {
	l := &Loader{
		fsys: fsys,
		dir:  dir,
		log:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewDirLoader creates a loader reading rule sets from a directory on disk.
func NewDirLoader(dir string, opts ...Option) *Loader {
	return NewLoader(os.DirFS(dir), ".", opts...)
}

// FileName returns the conventional file name for a rule-set version.
func FileName(version string) string {
	return fmt.Sprintf("regex-map.%s.yaml", version)
}

// ResolveVersion applies the precedence explicit argument, loader version,
// EnvVersion, DefaultVersion.
func (l *Loader) ResolveVersion(version string) string {
	switch {
	case version != "":
		return version
	case l.version != "":
		return l.version
	}
	if env := os.Getenv(EnvVersion); env != "" {
		return env
	}
	return DefaultVersion
}

// Load returns the cached rule set, reading and validating it on first use.
// Failures are *ConfigError values wrapping ErrConfigLoad and are not cached.
func (l *Loader) Load(version string) (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cached != nil {
		return l.cached, nil
	}

	tag := l.ResolveVersion(version)
	p := path.Join(l.dir, FileName(tag))

	data, err := fs.ReadFile(l.fsys, p)
	if err != nil {
		return nil, &ConfigError{Version: tag, Path: p, Err: err}
	}

	cfg, err := parse(data, tag)
	if err != nil {
		return nil, &ConfigError{Version: tag, Path: p, Err: err}
	}

	l.log.Info().
		Str("version", tag).
		Str("path", p).
		Int("types", len(cfg.Types)).
		Msg("compliance regex map loaded")

	l.cached = cfg
	return cfg, nil
}

// Clear drops the cached rule set so the next Load reads it again.
// Intended for tests and operator tooling, not for hot reloading.
func (l *Loader) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cached = nil
}
