package world

// ----------------------------------------
// Document
// ----------------------------------------

// Document is the on-disk description of the scene and the avatar
type Document struct {
	Objects []ObjectSpec `yaml:"objects"`
	Avatar  AvatarSpec   `yaml:"avatar"`
}

// ----------------------------------------
// Objects
// ----------------------------------------

// ObjectSpec is a scene object. An empty face entry has no texture bound.
type ObjectSpec struct {
	ID     string   `yaml:"id"`
	Faces  []string `yaml:"faces"`
	Sculpt string   `yaml:"sculpt,omitempty"`
}

// ----------------------------------------
// Avatar
// ----------------------------------------

// AvatarSpec lists worn items keyed by category name. A null entry is an
// empty slot.
type AvatarSpec struct {
	Wearables map[string][]*WearableSpec `yaml:"wearables"`
}

type WearableSpec struct {
	Name   string      `yaml:"name,omitempty"`
	Layers []LayerSpec `yaml:"layers"`
}

// LayerSpec is a texture layer. A missing or unknown region leaves the layer
// unlinked.
type LayerSpec struct {
	Texture string `yaml:"texture"`
	Region  string `yaml:"region,omitempty"`
}

// ----------------------------------------
// Helpers
// ----------------------------------------

func emptyDocument() *Document {
	return &Document{
		Objects: []ObjectSpec{},
		Avatar:  AvatarSpec{Wearables: map[string][]*WearableSpec{}},
	}
}

func ensureNonNil(doc *Document) {
	if doc.Objects == nil {
		doc.Objects = []ObjectSpec{}
	}
	if doc.Avatar.Wearables == nil {
		doc.Avatar.Wearables = map[string][]*WearableSpec{}
	}
	for i := range doc.Objects {
		if doc.Objects[i].Faces == nil {
			doc.Objects[i].Faces = []string{}
		}
	}
}
