package interfaces

import (
	"context"
	"time"
)

// ProjectManager handles project lifecycle, configuration and context detection
type ProjectManager interface {
	Initialize(ctx context.Context, opts InitOptions) error
	FindProjectRoot(startDir string) (string, error)
	LoadConfig(projectRoot string) (*ProjectConfig, error)
}

// InitOptions contains parameters for project initialization
type InitOptions struct {
	TargetDirectory string
	Period          time.Duration
	Retries         int
	MaxImageSize    int
	World           string
	Fsnotify        bool
	StateManager    StateManager
}

// Default project settings
const (
	DefaultPeriod       = 3 * time.Second
	DefaultRetries      = 5
	DefaultMaxImageSize = 1024
	DefaultDebounce     = 250 * time.Millisecond
	DefaultWorldFile    = "world.yaml"

	// DefaultTextureID replaces references to a removed bitmap
	DefaultTextureID = "d2114404-dd59-4a4d-8e6c-49359e91bbf0"
	// DefaultAvatarTextureID replaces DefaultTextureID on avatar layers
	DefaultAvatarTextureID = "c228d1cf-4b5d-4ba8-84f4-899a0796aa97"
)

// ProjectConfig represents the project configuration
type ProjectConfig struct {
	Version  int            `yaml:"version" mapstructure:"version"`
	Refresh  RefreshConfig  `yaml:"refresh" mapstructure:"refresh"`
	Textures TexturesConfig `yaml:"textures" mapstructure:"textures"`
	World    string         `yaml:"world" mapstructure:"world"`
	Watch    WatchConfig    `yaml:"watch" mapstructure:"watch"`
}

// RefreshConfig controls the periodic refresh cycle
type RefreshConfig struct {
	Period       time.Duration `yaml:"period" mapstructure:"period"`
	Retries      int           `yaml:"retries" mapstructure:"retries"`
	MaxImageSize int           `yaml:"max_image_size" mapstructure:"max_image_size"`
}

// TexturesConfig holds the placeholder texture ids
type TexturesConfig struct {
	DefaultID       string `yaml:"default_id" mapstructure:"default_id"`
	DefaultAvatarID string `yaml:"default_avatar_id" mapstructure:"default_avatar_id"`
}

// WatchConfig controls file system notifications
type WatchConfig struct {
	Fsnotify bool          `yaml:"fsnotify" mapstructure:"fsnotify"`
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
}
