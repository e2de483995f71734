package dialect

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/vvka-141/mboxdb/internal/logging"
	"github.com/vvka-141/mboxdb/pkg/mboxdb"
)

// Factory builds a profile on first lookup. It receives the registry so a
// derived profile can look up its base.
type Factory func(r *Registry) (*Profile, error)

// Registry maps backend names to lazily built profiles.
//
// Each profile is built at most once, even when many goroutines look up the
// same name for the first time concurrently. After that a lookup is a single
// sync.Map load.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	// claimed holds names whose factory a lookup has taken, whether the
	// build is still running or finished.
	claimed map[string]bool

	profiles sync.Map // name -> *Profile
	group    singleflight.Group
	builds   atomic.Int64

	logger mboxdb.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger handed to built-in profiles.
func WithRegistryLogger(l mboxdb.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		claimed:   make(map[string]bool),
		logger:    logging.Discard,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultRegistry returns a registry with the mysql, mariadb, derby, sqlite
// and postgres profiles.
func DefaultRegistry(logger mboxdb.Logger) *Registry {
	if logger == nil {
		logger = logging.Discard
	}
	r := NewRegistry(WithRegistryLogger(logger))

	builtins := map[string]Factory{
		MySQL: func(r *Registry) (*Profile, error) {
			return NewMySQLProfile(WithLogger(r.logger)), nil
		},
		MariaDB: func(r *Registry) (*Profile, error) {
			base, err := r.Lookup(MySQL)
			if err != nil {
				return nil, err
			}
			return NewMariaDBProfile(base), nil
		},
		Derby: func(r *Registry) (*Profile, error) {
			return NewDerbyProfile(WithLogger(r.logger)), nil
		},
		SQLite: func(r *Registry) (*Profile, error) {
			return NewSQLiteProfile(WithLogger(r.logger)), nil
		},
		Postgres: func(r *Registry) (*Profile, error) {
			return NewPostgresProfile(WithLogger(r.logger)), nil
		},
	}
	for name, f := range builtins {
		if err := r.Register(name, f); err != nil {
			panic(err)
		}
	}
	return r
}

func registryKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Logger returns the logger the registry hands to profiles.
func (r *Registry) Logger() mboxdb.Logger {
	return r.logger
}

// Register adds a factory under name. Registering a name twice is an error.
func (r *Registry) Register(name string, factory Factory) error {
	key := registryKey(name)
	if key == "" || factory == nil {
		return fmt.Errorf("dialect name and factory are required: %w", mboxdb.ErrInvalidConfig)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[key]; exists {
		return fmt.Errorf("dialect %q is already registered: %w", key, mboxdb.ErrInvalidConfig)
	}
	r.factories[key] = factory
	return nil
}

// Derive registers name as a profile derived from base with opts as
// overrides. When name equals base the existing registration is replaced by
// the derived one, which is how configuration-supplied index hints are
// layered over a built-in profile. Derive must run before the first lookup
// of name; once a lookup has taken the factory, even one still building,
// Derive fails.
func (r *Registry) Derive(name, base string, opts ...ProfileOption) error {
	key, baseKey := registryKey(name), registryKey(base)

	r.mu.Lock()
	defer r.mu.Unlock()

	baseFactory, ok := r.factories[baseKey]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBackend, base)
	}
	if r.claimed[key] {
		return fmt.Errorf("dialect %q is already in use and cannot be redefined: %w", key, mboxdb.ErrInvalidConfig)
	}
	if key != baseKey {
		if _, exists := r.factories[key]; exists {
			return fmt.Errorf("dialect %q is already registered: %w", key, mboxdb.ErrInvalidConfig)
		}
	}

	r.factories[key] = func(reg *Registry) (*Profile, error) {
		var (
			baseProfile *Profile
			err         error
		)
		if key == baseKey {
			baseProfile, err = baseFactory(reg)
		} else {
			baseProfile, err = reg.Lookup(baseKey)
		}
		if err != nil {
			return nil, err
		}
		return NewProfile(key, append([]ProfileOption{WithBase(baseProfile)}, opts...)...)
	}
	return nil
}

// Lookup returns the profile registered under name, building and validating
// it on first use. Unregistered names yield ErrUnknownBackend; a profile
// failing validation yields a *ConfigurationError and is not cached.
func (r *Registry) Lookup(name string) (*Profile, error) {
	key := registryKey(name)
	if p, ok := r.profiles.Load(key); ok {
		return p.(*Profile), nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		if p, ok := r.profiles.Load(key); ok {
			return p, nil
		}

		r.mu.Lock()
		factory, ok := r.factories[key]
		if ok {
			r.claimed[key] = true
		}
		r.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
		}

		p, err := factory(r)
		if err != nil {
			r.release(key)
			return nil, fmt.Errorf("failed to build dialect %q: %w", key, err)
		}
		if err := p.Validate(); err != nil {
			r.release(key)
			return nil, err
		}

		r.builds.Add(1)
		r.profiles.Store(key, p)
		r.logger.Verbose("dialect %s: profile constructed", key)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Profile), nil
}

// release lets Derive replace a factory whose build failed.
func (r *Registry) release(key string) {
	r.mu.Lock()
	delete(r.claimed, key)
	r.mu.Unlock()
}

// MustLookup is like Lookup but panics on error.
func (r *Registry) MustLookup(name string) *Profile {
	p, err := r.Lookup(name)
	if err != nil {
		panic(err)
	}
	return p
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateAll builds every registered profile and returns all failures
// joined. Run it at start-up so a broken profile fails the process before
// any query does.
func (r *Registry) ValidateAll() error {
	var errs []error
	for _, name := range r.Names() {
		if _, err := r.Lookup(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Builds returns how many profiles have been constructed.
func (r *Registry) Builds() int64 {
	return r.builds.Load()
}
