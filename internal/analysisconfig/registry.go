package analysisconfig

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/flyingrobots/vqa-workqueue/internal/vqerrors"
	"gopkg.in/yaml.v3"
)

// Registry is the in-memory, hot-reloadable config store keyed by
// AnalysisType. Readers always observe one complete snapshot: Refresh builds
// the new map fully before swapping the pointer under a write lock, so a
// reader never sees a torn view.
type Registry struct {
	mu   sync.RWMutex
	snap map[AnalysisType]AnalysisConfig
}

func NewRegistry() *Registry {
	return &Registry{snap: map[AnalysisType]AnalysisConfig{}}
}

// LoadFile decodes and validates a single config file.
func LoadFile(path string) (AnalysisConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return AnalysisConfig{}, vqerrors.Wrap(vqerrors.KindConfigInvalid, "read config file "+path, err)
	}
	var cfg AnalysisConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return AnalysisConfig{}, vqerrors.Wrap(vqerrors.KindConfigInvalid, "parse config file "+path, err)
	}
	if err := cfg.Validate(); err != nil {
		return AnalysisConfig{}, err
	}
	return cfg, nil
}

// LoadAll scans dir for "*.yaml" files (deterministic, sorted order) and
// builds a complete snapshot. It fails if the directory is missing, any
// file fails schema validation, or two files declare the same
// analysis_type.
func LoadAll(dir string) (map[AnalysisType]AnalysisConfig, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, vqerrors.Wrap(vqerrors.KindConfigInvalid, "config directory not found: "+dir, err)
	}

	matches, err := doublestar.Glob(os.DirFS(dir), "*.yaml")
	if err != nil {
		return nil, vqerrors.Wrap(vqerrors.KindConfigInvalid, "glob config directory", err)
	}
	sort.Strings(matches)

	found := make(map[AnalysisType]AnalysisConfig, len(matches))
	for _, name := range matches {
		path := dir + string(os.PathSeparator) + name
		cfg, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if _, dup := found[cfg.AnalysisType]; dup {
			return nil, vqerrors.New(vqerrors.KindConfigDuplicateType,
				fmt.Sprintf("duplicate analysis_type %q in %s", cfg.AnalysisType, name))
		}
		found[cfg.AnalysisType] = cfg
	}
	return found, nil
}

// LoadAll loads dir into the registry, replacing any prior snapshot only on
// success.
func (r *Registry) LoadAll(dir string) (map[AnalysisType]AnalysisConfig, error) {
	found, err := LoadAll(dir)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.snap = found
	r.mu.Unlock()
	return found, nil
}

// Get returns the config for a given analysis type. NotFound is returned
// (wrapped) when no such type is loaded.
func (r *Registry) Get(t AnalysisType) (AnalysisConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.snap[t]
	if !ok {
		return AnalysisConfig{}, vqerrors.New(vqerrors.KindNotFound, fmt.Sprintf("no config loaded for analysis_type %q", t))
	}
	return cfg, nil
}

// Refresh atomically replaces the registry's snapshot. On error the
// previous snapshot is left completely intact (no partial update).
func (r *Registry) Refresh(dir string) (map[AnalysisType]AnalysisConfig, error) {
	return r.LoadAll(dir)
}

// Snapshot returns a shallow copy of the currently loaded set, useful for
// tests and for components that need to enumerate all loaded types.
func (r *Registry) Snapshot() map[AnalysisType]AnalysisConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[AnalysisType]AnalysisConfig, len(r.snap))
	for k, v := range r.snap {
		out[k] = v
	}
	return out
}
