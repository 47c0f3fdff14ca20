package interfaces

import "github.com/google/uuid"

// SceneGraph enumerates the live objects of the scene
type SceneGraph interface {
	Objects() []SceneObject
}

// SceneObject is a rendered object whose faces and sculpt shape may be bound to textures
type SceneObject interface {
	ID() string
	FaceCount() int
	// FaceTexture returns false when the face has no drawable or no texture bound
	FaceTexture(face int) (uuid.UUID, bool)
	SetFaceTexture(face int, id uuid.UUID)
	// SendTextureUpdate flushes face changes to the object's state sync
	SendTextureUpdate()
	// SculptTexture returns false when the object is not sculpted
	SculptTexture() (uuid.UUID, bool)
	SetSculptTexture(id uuid.UUID)
}
