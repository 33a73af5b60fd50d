//go:build linux

package sensor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// DefaultDir is the directory scanned for sensor modules.
const DefaultDir = "./sensors"

// modulePattern matches candidate module file names.
var modulePattern = regexp.MustCompile(`^.*[.]so$`)

// Module is an opened sensor module whose entry points are looked up by name.
type Module interface {
	Lookup(symbol string) (any, error)
}

// Loader opens sensor modules.
type Loader interface {
	Open(path string) (Module, error)
}

// Registry selects the energy sensor backend. It binds at most one.
type Registry struct {
	dir      string
	loader   Loader
	backends []Backend
	logger   *slog.Logger
	bound    Backend
}

type Option func(*Registry)

// WithLoader replaces the module loader (Go plugins by default).
func WithLoader(l Loader) Option {
	return func(r *Registry) { r.loader = l }
}

// WithLogger sets the logger used for probing diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithBackends adds compiled-in backends. They are probed after the modules
// found in the directory, in name order.
func WithBackends(bs ...Backend) Option {
	return func(r *Registry) { r.backends = append(r.backends, bs...) }
}

// NewRegistry returns a registry scanning dir (DefaultDir when empty).
func NewRegistry(dir string, opts ...Option) *Registry {
	if dir == "" {
		dir = DefaultDir
	}
	r := &Registry{
		dir:    dir,
		loader: pluginLoader{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	sort.SliceStable(r.backends, func(i, j int) bool {
		return r.backends[i].Name() < r.backends[j].Name()
	})
	return r
}

// Dir returns the scanned directory.
func (r *Registry) Dir() string { return r.dir }

// Bound returns the selected backend, or nil.
func (r *Registry) Bound() Backend { return r.bound }

// Candidates returns the module file names in the directory matching the
// module pattern, sorted. A missing directory yields no candidates.
func (r *Registry) Candidates() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("sensor: scan %s: %w", r.dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !modulePattern.MatchString(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Select probes the candidates in turn and binds the first one whose probe
// succeeds. Modules are tried before compiled-in backends.
//
// When nothing probes, Select returns (nil, nil): the caller runs without a
// sensor. A module that probes but misses an entry point yields an error
// wrapping ErrMissingEntryPoint; the caller must treat it as fatal.
func (r *Registry) Select() (Backend, error) {
	if r.bound != nil {
		return nil, ErrAlreadyBound
	}

	names, err := r.Candidates()
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		path := filepath.Join(r.dir, name)
		r.logger.Debug("found sensor module", "path", path)

		b, err := r.probeModule(path)
		if err != nil {
			if errors.Is(err, ErrMissingEntryPoint) {
				return nil, err
			}
			r.logger.Debug("sensor module rejected", "path", path, "err", err)
			continue
		}
		r.logger.Info("sensor probed successfully", "path", path)
		r.bound = b
		return b, nil
	}

	for _, b := range r.backends {
		if err := b.Probe(); err != nil {
			r.logger.Debug("sensor backend rejected", "name", b.Name(), "err", err)
			continue
		}
		r.logger.Info("sensor probed successfully", "name", b.Name())
		r.bound = b
		return b, nil
	}

	r.logger.Warn("no energy sensor available", "dir", r.dir)
	return nil, nil
}

func (r *Registry) probeModule(path string) (Backend, error) {
	m, err := r.loader.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sensor: open %s: %w", path, err)
	}

	sym, err := m.Lookup("Probe")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoProbe, path, err)
	}
	probe, ok := sym.(func() error)
	if !ok {
		return nil, fmt.Errorf("%w: %s: Probe has type %T", ErrNoProbe, path, sym)
	}
	if err := probe(); err != nil {
		return nil, fmt.Errorf("sensor: probe %s: %w", path, err)
	}

	return bindModule(filepath.Base(path), m, probe)
}

// moduleBackend adapts a module's exported functions to Backend.
type moduleBackend struct {
	name  string
	probe func() error
	init  func(*Context) error
	read  func(*Context) error
	fini  func(*Context)
}

func bindModule(name string, m Module, probe func() error) (Backend, error) {
	b := &moduleBackend{name: name, probe: probe}

	var err error
	if b.init, err = lookup[func(*Context) error](m, name, "Init"); err != nil {
		return nil, err
	}
	if b.read, err = lookup[func(*Context) error](m, name, "Read"); err != nil {
		return nil, err
	}
	if b.fini, err = lookup[func(*Context)](m, name, "Fini"); err != nil {
		return nil, err
	}
	return b, nil
}

func lookup[T any](m Module, module, symbol string) (T, error) {
	var zero T
	sym, err := m.Lookup(symbol)
	if err != nil {
		return zero, fmt.Errorf("%w: %s in %s: %v", ErrMissingEntryPoint, symbol, module, err)
	}
	fn, ok := sym.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s in %s has type %T", ErrMissingEntryPoint, symbol, module, sym)
	}
	return fn, nil
}

func (b *moduleBackend) Name() string            { return b.name }
func (b *moduleBackend) Probe() error            { return b.probe() }
func (b *moduleBackend) Init(ctx *Context) error { return b.init(ctx) }
func (b *moduleBackend) Read(ctx *Context) error { return b.read(ctx) }
func (b *moduleBackend) Fini(ctx *Context)       { b.fini(ctx) }
