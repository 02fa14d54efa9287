package serving

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// ModelVersion is one deployable version of the served model.
type ModelVersion struct {
	Model     string    `json:"model"`
	Version   string    `json:"version"`
	Checksum  string    `json:"checksum"` // Artifact constants checksum
	CreatedAt time.Time `json:"created_at"`
	IsDefault bool      `json:"is_default"`
}

// Registry tracks the versions of a single served model and which one is
// the default target for predictions.
type Registry struct {
	mu             sync.RWMutex
	modelName      string
	versions       map[string]*ModelVersion
	defaultVersion string
}

// NewRegistry creates an empty registry for the given model name
func NewRegistry(modelName string) *Registry {
	return &Registry{
		modelName: modelName,
		versions:  make(map[string]*ModelVersion),
	}
}

// ModelName returns the name of the model this registry tracks
func (r *Registry) ModelName() string {
	return r.modelName
}

// Create registers a new version. The first version created becomes the
// default. Creating an existing version is an error.
func (r *Registry) Create(version, checksum string) (*ModelVersion, error) {
	if version == "" {
		return nil, fmt.Errorf("version cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.versions[version]; exists {
		return nil, fmt.Errorf("version %q already exists for model %q", version, r.modelName)
	}

	mv := &ModelVersion{
		Model:     r.modelName,
		Version:   version,
		Checksum:  checksum,
		CreatedAt: time.Now().UTC(),
	}
	r.versions[version] = mv

	if r.defaultVersion == "" {
		r.defaultVersion = version
		mv.IsDefault = true
	}

	return mv, nil
}

// EnsureVersion registers the version if it does not exist yet and reports
// whether it was created. Existing versions are left untouched.
func (r *Registry) EnsureVersion(version, checksum string) (*ModelVersion, bool, error) {
	r.mu.RLock()
	existing, exists := r.versions[version]
	r.mu.RUnlock()

	if exists {
		return existing, false, nil
	}

	mv, err := r.Create(version, checksum)
	if err != nil {
		return nil, false, err
	}
	return mv, true, nil
}

// Get returns the named version, or nil if it does not exist
func (r *Registry) Get(version string) *ModelVersion {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.versions[version]
}

// List returns all versions sorted by creation time, oldest first
func (r *Registry) List() []*ModelVersion {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*ModelVersion, 0, len(r.versions))
	for _, mv := range r.versions {
		list = append(list, mv)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].Version < list[j].Version
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

// Default returns the default version, or nil if the registry is empty
func (r *Registry) Default() *ModelVersion {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.versions[r.defaultVersion]
}

// SetDefault marks an existing version as the prediction target
func (r *Registry) SetDefault(version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	mv, exists := r.versions[version]
	if !exists {
		return fmt.Errorf("version %q does not exist for model %q", version, r.modelName)
	}

	if current, ok := r.versions[r.defaultVersion]; ok {
		current.IsDefault = false
	}
	r.defaultVersion = version
	mv.IsDefault = true

	return nil
}

// Delete removes a version. The default version cannot be deleted; switch
// the default first.
func (r *Registry) Delete(version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.versions[version]; !exists {
		return fmt.Errorf("version %q does not exist for model %q", version, r.modelName)
	}

	if version == r.defaultVersion {
		return fmt.Errorf("version %q is the default for model %q and cannot be deleted", version, r.modelName)
	}

	delete(r.versions, version)
	return nil
}

// Count returns the number of registered versions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.versions)
}

// restore inserts a version record loaded from persistent storage without
// changing creation time or default marking rules.
func (r *Registry) restore(mv ModelVersion) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := mv
	r.versions[mv.Version] = &rec
	if mv.IsDefault || r.defaultVersion == "" {
		if current, ok := r.versions[r.defaultVersion]; ok {
			current.IsDefault = false
		}
		r.defaultVersion = mv.Version
		rec.IsDefault = true
	}
}
