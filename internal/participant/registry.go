package participant

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Spec describes one specialty available to discussions.
type Spec struct {
	Role         string `yaml:"role"`
	Instructions string `yaml:"instructions,omitempty"`
}

type registryFile struct {
	Specialties map[string]Spec `yaml:"specialties"`
}

// builtinSpecs are always available, with or without a registry file.
var builtinSpecs = map[string]Spec{
	"internal_medicine": {Role: "internal medicine physician"},
	"surgery":           {Role: "surgeon"},
	"oncology":          {Role: "oncologist"},
	"radiology":         {Role: "radiologist"},
	"pathology":         {Role: "pathologist"},
	"pharmacy":          {Role: "clinical pharmacist"},
	"nursing":           {Role: "specialist nurse"},
}

// Registry resolves specialty names to their role definitions. A registry
// file extends and overrides the built-in set, and is hot reloaded while
// watched.
type Registry struct {
	mu     sync.RWMutex
	path   string
	specs  map[string]Spec
	logger *slog.Logger
}

// NewRegistry returns a registry seeded with the built-in specialties.
// When path is non-empty the file is loaded on top; a missing file is fine.
func NewRegistry(path string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{path: path, logger: logger}
	r.reset()
	if path != "" {
		if err := r.reload(); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) reset() {
	specs := make(map[string]Spec, len(builtinSpecs))
	for name, spec := range builtinSpecs {
		specs[name] = spec
	}
	r.mu.Lock()
	r.specs = specs
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return err
	}
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse specialty registry %s: %w", r.path, err)
	}
	for name, spec := range file.Specialties {
		if spec.Role == "" {
			return fmt.Errorf("specialty %q in %s has no role", name, r.path)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for name, spec := range file.Specialties {
		r.specs[name] = spec
	}
	return nil
}

// Lookup returns the spec for a specialty name.
func (r *Registry) Lookup(name string) (Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	if !ok {
		return Spec{}, fmt.Errorf("unknown specialty %q", name)
	}
	return spec, nil
}

// Names lists the known specialty names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Watch reloads the registry whenever its file changes, until ctx ends.
// It is a no-op for a registry without a file.
func (r *Registry) Watch(ctx context.Context) error {
	if r.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(r.path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if err := r.reload(); err != nil {
					r.logger.Warn("specialty registry reload failed", "path", r.path, "error", err)
					continue
				}
				r.logger.Info("specialty registry reloaded", "path", r.path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Warn("specialty registry watch error", "path", r.path, "error", err)
			}
		}
	}()
	return nil
}
