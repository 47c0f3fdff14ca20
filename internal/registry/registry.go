package registry

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/localtex/cli/internal/interfaces"
)

// Registry is an in-memory asset registry. It owns every decoded image it
// holds; callers keep only the returned ids.
type Registry struct {
	mu     sync.RWMutex
	images map[uuid.UUID]*interfaces.RawImage
}

// New creates an empty registry
func New() *Registry {
	return &Registry{images: make(map[uuid.UUID]*interfaces.RawImage)}
}

// Register stores img under a freshly generated id
func (r *Registry) Register(img *interfaces.RawImage) uuid.UUID {
	id := uuid.New()
	r.mu.Lock()
	r.images[id] = img
	r.mu.Unlock()
	return id
}

// Adopt stores img under an id handed out by an earlier run. It returns
// false when id is nil or already live.
func (r *Registry) Adopt(id uuid.UUID, img *interfaces.RawImage) bool {
	if id == uuid.Nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.images[id]; ok {
		return false
	}
	r.images[id] = img
	return true
}

// Deregister drops the image stored under id. Unknown ids are ignored.
func (r *Registry) Deregister(id uuid.UUID) {
	r.mu.Lock()
	delete(r.images, id)
	r.mu.Unlock()
}

func (r *Registry) Lookup(id uuid.UUID) (*interfaces.RawImage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	img, ok := r.images[id]
	return img, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.images)
}

// IDs returns a sorted snapshot of the registered ids for diagnostics
func (r *Registry) IDs() []uuid.UUID {
	r.mu.RLock()
	ids := make([]uuid.UUID, 0, len(r.images))
	for id := range r.images {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
