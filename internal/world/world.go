package world

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/localtex/cli/internal/errors"
	"github.com/localtex/cli/internal/interfaces"
	"github.com/localtex/cli/internal/rewrite"
	"gopkg.in/yaml.v3"
)

// World is an in-memory scene graph and avatar appearance backed by a YAML
// document. It counts the syncs and recompositions it receives.
type World struct {
	mu        sync.Mutex
	objects   []*Object
	wearables map[interfaces.WearableCategory][]*Wearable

	syncs          int
	recompositions int
	wearableEdits  int
}

// Stats summarises what the world has been asked to do
type Stats struct {
	Objects         int
	Faces           int
	Wearables       int
	Syncs           int
	Recompositions  int
	WearableUpdates int
}

// New creates an empty world
func New() *World {
	return &World{wearables: make(map[interfaces.WearableCategory][]*Wearable)}
}

// Load reads the world at path. A missing file yields an empty world.
func Load(path string) (*World, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return FromDocument(emptyDocument())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewGenericError(fmt.Sprintf("failed to read world file %s", path), err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("invalid world file %s: %v", path, err))
	}
	ensureNonNil(&doc)
	return FromDocument(&doc)
}

// FromDocument builds a world from its document form
func FromDocument(doc *Document) (*World, error) {
	w := New()
	for _, spec := range doc.Objects {
		obj := &Object{world: w, id: spec.ID, faces: make([]uuid.UUID, len(spec.Faces))}
		for i, face := range spec.Faces {
			id, err := parseOptionalID(face)
			if err != nil {
				return nil, errors.NewValidationError(fmt.Sprintf("object %s face %d: %v", spec.ID, i, err))
			}
			obj.faces[i] = id
		}
		if spec.Sculpt != "" {
			id, err := uuid.Parse(spec.Sculpt)
			if err != nil {
				return nil, errors.NewValidationError(fmt.Sprintf("object %s sculpt: %v", spec.ID, err))
			}
			obj.sculpt = &id
		}
		w.objects = append(w.objects, obj)
	}

	for name, slots := range doc.Avatar.Wearables {
		category, err := interfaces.ParseWearableCategory(name)
		if err != nil {
			return nil, errors.NewValidationError(err.Error())
		}
		for i, slot := range slots {
			if slot == nil {
				w.wearables[category] = append(w.wearables[category], nil)
				continue
			}
			wearable := &Wearable{world: w, name: slot.Name}
			channels := make(map[interfaces.TextureChannel]int)
			for j, ls := range slot.Layers {
				id, err := parseOptionalID(ls.Texture)
				if err != nil {
					return nil, errors.NewValidationError(fmt.Sprintf("%s[%d] layer %d: %v", name, i, j, err))
				}
				layer := &Layer{world: wearable.world, texture: id}
				if region, err := interfaces.ParseBodyRegion(ls.Region); err == nil {
					layer.region = region
					layer.linked = true
					// a wearable carries one local texture per channel
					if channel, ok := rewrite.ChannelFor(category, region); ok {
						if prev, dup := channels[channel]; dup {
							return nil, errors.NewValidationError(fmt.Sprintf("%s[%d] layers %d and %d both feed %s", name, i, prev, j, channel))
						}
						channels[channel] = j
					}
				}
				wearable.layers = append(wearable.layers, layer)
			}
			w.wearables[category] = append(w.wearables[category], wearable)
		}
	}
	return w, nil
}

func parseOptionalID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}

func formatOptionalID(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

// Document returns the document form of the current world
func (w *World) Document() *Document {
	w.mu.Lock()
	defer w.mu.Unlock()

	doc := emptyDocument()
	for _, obj := range w.objects {
		spec := ObjectSpec{ID: obj.id, Faces: make([]string, len(obj.faces))}
		for i, face := range obj.faces {
			spec.Faces[i] = formatOptionalID(face)
		}
		if obj.sculpt != nil {
			spec.Sculpt = obj.sculpt.String()
		}
		doc.Objects = append(doc.Objects, spec)
	}
	for category, slots := range w.wearables {
		specs := make([]*WearableSpec, 0, len(slots))
		for _, wearable := range slots {
			if wearable == nil {
				specs = append(specs, nil)
				continue
			}
			spec := &WearableSpec{Name: wearable.name, Layers: []LayerSpec{}}
			for _, layer := range wearable.layers {
				ls := LayerSpec{Texture: formatOptionalID(layer.texture)}
				if layer.linked {
					ls.Region = layer.region.String()
				}
				spec.Layers = append(spec.Layers, ls)
			}
			specs = append(specs, spec)
		}
		doc.Avatar.Wearables[category.String()] = specs
	}
	return doc
}

// Save writes the world to path, replacing the previous file atomically
func (w *World) Save(path string) error {
	data, err := yaml.Marshal(w.Document())
	if err != nil {
		return errors.NewGenericError("failed to encode world", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.NewGenericError("failed to create world directory", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".world-*.yaml")
	if err != nil {
		return errors.NewGenericError("failed to write world file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.NewGenericError("failed to write world file", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewGenericError("failed to write world file", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.NewGenericError("failed to replace world file", err)
	}
	return nil
}

// References counts the faces, sculpts and layers bound to id
func (w *World) References(id uuid.UUID) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	refs := 0
	for _, obj := range w.objects {
		for _, face := range obj.faces {
			if face == id {
				refs++
			}
		}
		if obj.sculpt != nil && *obj.sculpt == id {
			refs++
		}
	}
	for _, slots := range w.wearables {
		for _, wearable := range slots {
			if wearable == nil {
				continue
			}
			for _, layer := range wearable.layers {
				if layer.texture == id {
					refs++
				}
			}
		}
	}
	return refs
}

func (w *World) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Stats{
		Objects:         len(w.objects),
		Syncs:           w.syncs,
		Recompositions:  w.recompositions,
		WearableUpdates: w.wearableEdits,
	}
	for _, obj := range w.objects {
		s.Faces += len(obj.faces)
	}
	for _, slots := range w.wearables {
		for _, wearable := range slots {
			if wearable != nil {
				s.Wearables++
			}
		}
	}
	return s
}

// ----------------------------------------
// Scene graph
// ----------------------------------------

func (w *World) Objects() []interfaces.SceneObject {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]interfaces.SceneObject, len(w.objects))
	for i, obj := range w.objects {
		out[i] = obj
	}
	return out
}

// Object is a scene object with textured faces and an optional sculpt source
type Object struct {
	world  *World
	id     string
	faces  []uuid.UUID
	sculpt *uuid.UUID
}

func (o *Object) ID() string { return o.id }

func (o *Object) FaceCount() int {
	o.world.mu.Lock()
	defer o.world.mu.Unlock()
	return len(o.faces)
}

func (o *Object) FaceTexture(face int) (uuid.UUID, bool) {
	o.world.mu.Lock()
	defer o.world.mu.Unlock()
	if face < 0 || face >= len(o.faces) || o.faces[face] == uuid.Nil {
		return uuid.Nil, false
	}
	return o.faces[face], true
}

func (o *Object) SetFaceTexture(face int, id uuid.UUID) {
	o.world.mu.Lock()
	defer o.world.mu.Unlock()
	if face >= 0 && face < len(o.faces) {
		o.faces[face] = id
	}
}

func (o *Object) SendTextureUpdate() {
	o.world.mu.Lock()
	defer o.world.mu.Unlock()
	o.world.syncs++
}

func (o *Object) SculptTexture() (uuid.UUID, bool) {
	o.world.mu.Lock()
	defer o.world.mu.Unlock()
	if o.sculpt == nil {
		return uuid.Nil, false
	}
	return *o.sculpt, true
}

func (o *Object) SetSculptTexture(id uuid.UUID) {
	o.world.mu.Lock()
	defer o.world.mu.Unlock()
	o.sculpt = &id
}

// ----------------------------------------
// Appearance
// ----------------------------------------

func (w *World) WearableCount(category interfaces.WearableCategory) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.wearables[category])
}

func (w *World) Wearable(category interfaces.WearableCategory, index int) (interfaces.Wearable, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	slots := w.wearables[category]
	if index < 0 || index >= len(slots) || slots[index] == nil {
		return nil, false
	}
	return slots[index], true
}

// SetLocalTexture binds id to the linked layer of the wearable that feeds
// channel. Documents with two layers on one channel are rejected on load.
func (w *World) SetLocalTexture(category interfaces.WearableCategory, index int, channel interfaces.TextureChannel, id uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	slots := w.wearables[category]
	if index < 0 || index >= len(slots) || slots[index] == nil {
		return
	}
	for _, layer := range slots[index].layers {
		if !layer.linked {
			continue
		}
		if ch, ok := rewrite.ChannelFor(category, layer.region); ok && ch == channel {
			layer.texture = id
		}
	}
}

func (w *World) WearableUpdated(category interfaces.WearableCategory) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.wearableEdits++
}

func (w *World) Recompose() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recompositions++
}

// Wearable is one worn item
type Wearable struct {
	world  *World
	name   string
	layers []*Layer
}

func (wr *Wearable) Layers() []interfaces.WearableLayer {
	wr.world.mu.Lock()
	defer wr.world.mu.Unlock()
	out := make([]interfaces.WearableLayer, len(wr.layers))
	for i, l := range wr.layers {
		out[i] = l
	}
	return out
}

// Layer is a texture layer of a wearable
type Layer struct {
	world   *World
	texture uuid.UUID
	region  interfaces.BodyRegion
	linked  bool
}

func (l *Layer) TextureID() uuid.UUID {
	l.world.mu.Lock()
	defer l.world.mu.Unlock()
	return l.texture
}

func (l *Layer) Region() (interfaces.BodyRegion, bool) {
	return l.region, l.linked
}
