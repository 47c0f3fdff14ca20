package rewrite

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/localtex/cli/internal/interfaces"
)

// Recomposer collects recomposition requests so they can be coalesced
type Recomposer interface {
	RequestRecomposition()
}

// Result describes what a single Rewrite touched
type Result struct {
	ObjectsSynced          int
	SculptsUpdated         int
	LayersUpdated          int
	RecompositionRequested bool
}

// Touched reports whether any consumer was rebound
func (r Result) Touched() bool {
	return r.ObjectsSynced > 0 || r.SculptsUpdated > 0 || r.LayersUpdated > 0
}

// Config holds the placeholder ids used when a bitmap goes away
type Config struct {
	DefaultID       uuid.UUID
	DefaultAvatarID uuid.UUID
}

// Rewriter moves every consumer reference from one resource id to another
type Rewriter struct {
	scene      interfaces.SceneGraph
	appearance interfaces.Appearance
	recomposer Recomposer
	config     Config
	logger     *slog.Logger
}

// NewRewriter creates a rewriter over the given consumers. Either consumer may
// be nil when the host has no such graph.
func NewRewriter(scene interfaces.SceneGraph, appearance interfaces.Appearance, recomposer Recomposer, config Config, logger *slog.Logger) *Rewriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rewriter{
		scene:      scene,
		appearance: appearance,
		recomposer: recomposer,
		config:     config,
		logger:     logger,
	}
}

// DefaultID is the placeholder that replaces a destroyed bitmap's id
func (r *Rewriter) DefaultID() uuid.UUID {
	return r.config.DefaultID
}

// Rewrite rebinds scene faces, sculpt sources and avatar layers bound to
// oldID so they reference newID instead
func (r *Rewriter) Rewrite(oldID, newID uuid.UUID) Result {
	var res Result
	if oldID == newID {
		return res
	}

	if r.scene != nil {
		res.ObjectsSynced = r.rewriteFaces(oldID, newID)
		res.SculptsUpdated = r.rewriteSculpts(oldID, newID)
	}

	if r.appearance != nil {
		layerID := newID
		if layerID == r.config.DefaultID {
			layerID = r.config.DefaultAvatarID
		}
		for _, category := range interfaces.WearableCategories() {
			res.LayersUpdated += r.rewriteLayers(oldID, layerID, category)
		}
	}

	if res.LayersUpdated > 0 {
		res.RecompositionRequested = true
		if r.recomposer != nil {
			r.recomposer.RequestRecomposition()
		}
	}

	r.logger.Debug("rewrote references",
		"old", oldID, "new", newID,
		"objects", res.ObjectsSynced, "sculpts", res.SculptsUpdated, "layers", res.LayersUpdated)
	return res
}

func (r *Rewriter) rewriteFaces(oldID, newID uuid.UUID) int {
	synced := 0
	for _, obj := range r.scene.Objects() {
		if obj == nil {
			continue
		}
		dirty := false
		for face := 0; face < obj.FaceCount(); face++ {
			id, ok := obj.FaceTexture(face)
			if ok && id == oldID {
				obj.SetFaceTexture(face, newID)
				dirty = true
			}
		}
		// one sync per object, not per face
		if dirty {
			obj.SendTextureUpdate()
			synced++
		}
	}
	return synced
}

func (r *Rewriter) rewriteSculpts(oldID, newID uuid.UUID) int {
	updated := 0
	for _, obj := range r.scene.Objects() {
		if obj == nil {
			continue
		}
		if id, ok := obj.SculptTexture(); ok && id == oldID {
			obj.SetSculptTexture(newID)
			updated++
		}
	}
	return updated
}

func (r *Rewriter) rewriteLayers(oldID, newID uuid.UUID, category interfaces.WearableCategory) int {
	updated := 0
	count := r.appearance.WearableCount(category)
	for index := 0; index < count; index++ {
		wearable, ok := r.appearance.Wearable(category, index)
		if !ok || wearable == nil {
			r.logger.Debug("empty wearable slot", "category", category, "index", index)
			return updated
		}
		updated += r.rewriteWearable(oldID, newID, category, index, wearable)
	}
	return updated
}

func (r *Rewriter) rewriteWearable(oldID, newID uuid.UUID, category interfaces.WearableCategory, index int, wearable interfaces.Wearable) int {
	updated := 0
	for _, layer := range wearable.Layers() {
		if layer == nil || layer.TextureID() != oldID {
			continue
		}
		region, ok := layer.Region()
		if !ok {
			// broken layer linkage: leave the rest of this slot alone
			return updated
		}
		channel, ok := ChannelFor(category, region)
		if !ok {
			continue
		}
		r.appearance.SetLocalTexture(category, index, channel, newID)
		r.appearance.WearableUpdated(category)
		updated++
	}
	return updated
}
