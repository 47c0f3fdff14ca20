package bitmap

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/localtex/cli/internal/interfaces"
	"github.com/localtex/cli/internal/rewrite"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var testTextures = rewrite.Config{
	DefaultID:       uuid.MustParse(interfaces.DefaultTextureID),
	DefaultAvatarID: uuid.MustParse(interfaces.DefaultAvatarTextureID),
}

// fakeCodec decodes any path unless told to fail for it
type fakeCodec struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls int
}

func newFakeCodec() *fakeCodec {
	return &fakeCodec{fail: make(map[string]bool)}
}

func (c *fakeCodec) Decode(path string, format interfaces.Format) (*interfaces.RawImage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.fail[path] {
		return nil, fmt.Errorf("cannot decode %s", path)
	}
	return &interfaces.RawImage{Width: 4, Height: 4, Components: 4, Pixels: make([]byte, 64), Source: path}, nil
}

func (c *fakeCodec) setFail(path string, fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail[path] = fail
}

type fakeInfo struct {
	name    string
	modTime time.Time
}

func (i fakeInfo) Name() string       { return i.name }
func (i fakeInfo) Size() int64        { return 0 }
func (i fakeInfo) Mode() os.FileMode  { return 0644 }
func (i fakeInfo) ModTime() time.Time { return i.modTime }
func (i fakeInfo) IsDir() bool        { return false }
func (i fakeInfo) Sys() interface{}   { return nil }

// fakeFS keeps modification times in memory
type fakeFS struct {
	mu    sync.Mutex
	files map[string]time.Time
}

func newFakeFS() *fakeFS {
	return &fakeFS{files: make(map[string]time.Time)}
}

func (f *fakeFS) Stat(path string) (os.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mod, ok := f.files[path]
	if !ok {
		return nil, &os.PathError{Op: "stat", Path: path, Err: os.ErrNotExist}
	}
	return fakeInfo{name: filepath.Base(path), modTime: mod}, nil
}

func (f *fakeFS) touch(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	last, ok := f.files[path]
	if !ok {
		last = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	f.files[path] = last.Add(time.Second)
}

func (f *fakeFS) remove(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
}

type fakeObject struct {
	faces   []uuid.UUID
	sculpt  *uuid.UUID
	updates int
}

func (o *fakeObject) ID() string     { return "object" }
func (o *fakeObject) FaceCount() int { return len(o.faces) }
func (o *fakeObject) FaceTexture(face int) (uuid.UUID, bool) {
	return o.faces[face], o.faces[face] != uuid.Nil
}
func (o *fakeObject) SetFaceTexture(face int, id uuid.UUID) { o.faces[face] = id }
func (o *fakeObject) SendTextureUpdate()                    { o.updates++ }
func (o *fakeObject) SculptTexture() (uuid.UUID, bool) {
	if o.sculpt == nil {
		return uuid.Nil, false
	}
	return *o.sculpt, true
}
func (o *fakeObject) SetSculptTexture(id uuid.UUID) { o.sculpt = &id }

type fakeScene struct {
	objects []*fakeObject
}

func (s *fakeScene) Objects() []interfaces.SceneObject {
	out := make([]interfaces.SceneObject, len(s.objects))
	for i, o := range s.objects {
		out[i] = o
	}
	return out
}

type fakeLayer struct {
	app      *fakeAppearance
	category interfaces.WearableCategory
	region   interfaces.BodyRegion
}

func (l *fakeLayer) TextureID() uuid.UUID {
	ch, _ := rewrite.ChannelFor(l.category, l.region)
	return l.app.channels[ch]
}
func (l *fakeLayer) Region() (interfaces.BodyRegion, bool) { return l.region, true }

type fakeWearable struct {
	layers []interfaces.WearableLayer
}

func (w *fakeWearable) Layers() []interfaces.WearableLayer { return w.layers }

// fakeAppearance stores one wearable per category whose layers read their
// texture back from the channel they feed
type fakeAppearance struct {
	channels   map[interfaces.TextureChannel]uuid.UUID
	wearables  map[interfaces.WearableCategory]*fakeWearable
	recomposes int
}

func newFakeAppearance() *fakeAppearance {
	return &fakeAppearance{
		channels:  make(map[interfaces.TextureChannel]uuid.UUID),
		wearables: make(map[interfaces.WearableCategory]*fakeWearable),
	}
}

func (a *fakeAppearance) wear(category interfaces.WearableCategory, region interfaces.BodyRegion, id uuid.UUID) {
	ch, _ := rewrite.ChannelFor(category, region)
	a.channels[ch] = id
	w, ok := a.wearables[category]
	if !ok {
		w = &fakeWearable{}
		a.wearables[category] = w
	}
	w.layers = append(w.layers, &fakeLayer{app: a, category: category, region: region})
}

func (a *fakeAppearance) WearableCount(c interfaces.WearableCategory) int {
	if _, ok := a.wearables[c]; ok {
		return 1
	}
	return 0
}
func (a *fakeAppearance) Wearable(c interfaces.WearableCategory, i int) (interfaces.Wearable, bool) {
	w, ok := a.wearables[c]
	return w, ok
}
func (a *fakeAppearance) SetLocalTexture(c interfaces.WearableCategory, i int, ch interfaces.TextureChannel, id uuid.UUID) {
	a.channels[ch] = id
}
func (a *fakeAppearance) WearableUpdated(c interfaces.WearableCategory) {}
func (a *fakeAppearance) Recompose()                                    { a.recomposes++ }
