package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/localtex/cli/internal/errors"
	"github.com/localtex/cli/internal/interfaces"
	"github.com/localtex/cli/internal/rewrite"
	"github.com/localtex/cli/internal/world"
	"github.com/spf13/viper"
)

const (
	// ProjectDir holds the configuration, state and logs of a project
	ProjectDir = ".localtex"
	// ConfigFile is the configuration file name inside ProjectDir
	ConfigFile = "localtex.yaml"
	// StateFile is the state database name inside ProjectDir
	StateFile = "state.db"
	// LogsDir is the session log directory inside ProjectDir
	LogsDir = "logs"
	// WorldBackupFile holds the world as it was when the last session opened
	WorldBackupFile = "world.backup.yaml"
)

// Manager implements the ProjectManager interface
type Manager struct{}

// NewManager creates a new ProjectManager instance
func NewManager() interfaces.ProjectManager {
	return &Manager{}
}

// ConfigPath returns the configuration file of the project at root
func ConfigPath(root string) string {
	return filepath.Join(root, ProjectDir, ConfigFile)
}

// StatePath returns the state database of the project at root
func StatePath(root string) string {
	return filepath.Join(root, ProjectDir, StateFile)
}

// LogPath returns the session log directory of the project at root
func LogPath(root string) string {
	return filepath.Join(root, ProjectDir, LogsDir)
}

// WorldBackupPath returns the world backup of the project at root
func WorldBackupPath(root string) string {
	return filepath.Join(root, ProjectDir, WorldBackupFile)
}

// WorldPath resolves the world file named in config against root
func WorldPath(root string, config *interfaces.ProjectConfig) string {
	if filepath.IsAbs(config.World) {
		return config.World
	}
	return filepath.Join(root, config.World)
}

// Textures returns the placeholder ids of a validated configuration
func Textures(config *interfaces.ProjectConfig) rewrite.Config {
	return rewrite.Config{
		DefaultID:       uuid.MustParse(config.Textures.DefaultID),
		DefaultAvatarID: uuid.MustParse(config.Textures.DefaultAvatarID),
	}
}

// DefaultConfig returns the configuration written by a plain init
func DefaultConfig() interfaces.ProjectConfig {
	return interfaces.ProjectConfig{
		Version: 1,
		Refresh: interfaces.RefreshConfig{
			Period:       interfaces.DefaultPeriod,
			Retries:      interfaces.DefaultRetries,
			MaxImageSize: interfaces.DefaultMaxImageSize,
		},
		Textures: interfaces.TexturesConfig{
			DefaultID:       interfaces.DefaultTextureID,
			DefaultAvatarID: interfaces.DefaultAvatarTextureID,
		},
		World: interfaces.DefaultWorldFile,
		Watch: interfaces.WatchConfig{
			Fsnotify: true,
			Debounce: interfaces.DefaultDebounce,
		},
	}
}

// FindProjectRoot searches for .localtex/localtex.yaml in current and parent directories
func (m *Manager) FindProjectRoot(startDir string) (string, error) {
	absPath, err := filepath.Abs(startDir)
	if err != nil {
		return "", errors.NewGenericError("failed to resolve absolute path", err)
	}

	currentDir := absPath
	for {
		info, err := os.Stat(ConfigPath(currentDir))
		if err == nil && !info.IsDir() {
			return currentDir, nil
		}

		if err != nil && os.IsPermission(err) {
			return "", errors.NewGenericError("permission denied accessing .localtex/localtex.yaml", err)
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			break
		}
		currentDir = parentDir
	}

	return "", errors.NewContextError("not in a localtex project directory")
}

// LoadConfig parses and validates the localtex.yaml configuration file.
// LOCALTEX_* environment variables override file values.
func (m *Manager) LoadConfig(projectRoot string) (*interfaces.ProjectConfig, error) {
	configPath := ConfigPath(projectRoot)

	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewContextError("configuration file not found")
		}
		return nil, errors.NewGenericError("failed to access configuration file", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix("LOCALTEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.NewGenericError("failed to parse configuration file", err)
	}

	var config interfaces.ProjectConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.NewGenericError("failed to parse configuration structure", err)
	}

	if err := ValidateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("refresh.period", d.Refresh.Period)
	v.SetDefault("refresh.retries", d.Refresh.Retries)
	v.SetDefault("refresh.max_image_size", d.Refresh.MaxImageSize)
	v.SetDefault("textures.default_id", d.Textures.DefaultID)
	v.SetDefault("textures.default_avatar_id", d.Textures.DefaultAvatarID)
	v.SetDefault("world", d.World)
	v.SetDefault("watch.fsnotify", d.Watch.Fsnotify)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
}

// ValidateConfig checks the fields of a parsed configuration
func ValidateConfig(config *interfaces.ProjectConfig) error {
	if config.Version == 0 {
		return errors.NewValidationError("invalid configuration: missing version")
	}
	if config.Refresh.Period <= 0 {
		return errors.NewValidationError("invalid configuration: refresh.period must be positive")
	}
	if config.Refresh.Retries < 1 {
		return errors.NewValidationError("invalid configuration: refresh.retries must be at least 1")
	}
	size := config.Refresh.MaxImageSize
	if size < 4 || size&(size-1) != 0 {
		return errors.NewValidationError("invalid configuration: refresh.max_image_size must be a power of two of at least 4")
	}
	if _, err := uuid.Parse(config.Textures.DefaultID); err != nil {
		return errors.NewValidationError(fmt.Sprintf("invalid configuration: textures.default_id: %v", err))
	}
	if _, err := uuid.Parse(config.Textures.DefaultAvatarID); err != nil {
		return errors.NewValidationError(fmt.Sprintf("invalid configuration: textures.default_avatar_id: %v", err))
	}
	if strings.TrimSpace(config.World) == "" {
		return errors.NewValidationError("invalid configuration: missing world file")
	}
	if config.Watch.Debounce < 0 {
		return errors.NewValidationError("invalid configuration: watch.debounce must not be negative")
	}
	return nil
}

// Initialize creates a new localtex project
func (m *Manager) Initialize(ctx context.Context, opts interfaces.InitOptions) error {
	targetDir := opts.TargetDirectory
	if targetDir == "" {
		var err error
		targetDir, err = os.Getwd()
		if err != nil {
			return errors.NewGenericError("failed to get current directory", err)
		}
	}

	absTargetDir, err := filepath.Abs(targetDir)
	if err != nil {
		return errors.NewGenericError("failed to resolve absolute path", err)
	}
	targetDir = absTargetDir

	if info, err := os.Stat(targetDir); os.IsNotExist(err) {
		if err := os.MkdirAll(targetDir, 0755); err != nil {
			return errors.NewGenericError("failed to create target directory", err)
		}
	} else if err != nil {
		return errors.NewGenericError("failed to access target directory", err)
	} else if !info.IsDir() {
		return errors.NewValidationError("path is not a directory")
	}

	if _, err := os.Stat(filepath.Join(targetDir, ProjectDir)); err == nil {
		return errors.NewValidationError("directory already contains a localtex project")
	}

	config := DefaultConfig()
	if opts.Period > 0 {
		config.Refresh.Period = opts.Period
	}
	if opts.Retries > 0 {
		config.Refresh.Retries = opts.Retries
	}
	if opts.MaxImageSize > 0 {
		config.Refresh.MaxImageSize = opts.MaxImageSize
	}
	if opts.World != "" {
		config.World = opts.World
	}
	config.Watch.Fsnotify = opts.Fsnotify
	if err := ValidateConfig(&config); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return errors.NewGenericError("initialization cancelled", err)
	}

	// Track created resources for rollback
	var createdDirs []string
	var createdFiles []string

	rollback := func() {
		for i := len(createdFiles) - 1; i >= 0; i-- {
			os.Remove(createdFiles[i])
		}
		for i := len(createdDirs) - 1; i >= 0; i-- {
			os.RemoveAll(createdDirs[i])
		}
	}

	dirs := []string{
		filepath.Join(targetDir, ProjectDir),
		LogPath(targetDir),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			rollback()
			return errors.NewGenericError(fmt.Sprintf("failed to create directory %s", dir), err)
		}
		createdDirs = append(createdDirs, dir)
	}

	stateMgr := opts.StateManager
	if stateMgr == nil {
		rollback()
		return errors.NewGenericError("state manager not provided", nil)
	}
	if err := stateMgr.Initialize(StatePath(targetDir)); err != nil {
		rollback()
		return errors.NewGenericError("failed to initialize state database", err)
	}

	worldPath := WorldPath(targetDir, &config)
	if _, err := os.Stat(worldPath); os.IsNotExist(err) {
		if err := world.New().Save(worldPath); err != nil {
			rollback()
			return errors.NewGenericError("failed to create world file", err)
		}
		createdFiles = append(createdFiles, worldPath)
	}

	if err := m.writeConfig(targetDir, &config); err != nil {
		rollback()
		return errors.NewGenericError("failed to write configuration file", err)
	}

	return nil
}

// writeConfig writes the project configuration to localtex.yaml
func (m *Manager) writeConfig(targetDir string, config *interfaces.ProjectConfig) error {
	v := viper.New()
	v.SetConfigFile(ConfigPath(targetDir))
	v.SetConfigType("yaml")

	v.Set("version", config.Version)
	v.Set("refresh.period", config.Refresh.Period.String())
	v.Set("refresh.retries", config.Refresh.Retries)
	v.Set("refresh.max_image_size", config.Refresh.MaxImageSize)
	v.Set("textures.default_id", config.Textures.DefaultID)
	v.Set("textures.default_avatar_id", config.Textures.DefaultAvatarID)
	v.Set("world", config.World)
	v.Set("watch.fsnotify", config.Watch.Fsnotify)
	v.Set("watch.debounce", config.Watch.Debounce.String())

	if err := v.WriteConfig(); err != nil {
		return errors.NewGenericError("failed to write config file", err)
	}
	return nil
}
