package world

import (
	"io"
	"os"
	"path/filepath"

	"github.com/localtex/cli/internal/errors"
)

// Backup copies the world file at path to backupPath, replacing an older
// backup. Nothing is written when the world file does not exist.
func Backup(path, backupPath string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.NewGenericError("failed to access world file", err)
	}
	if err := copyFile(path, backupPath, info.Mode()); err != nil {
		return errors.NewGenericError("failed to back up world file", err)
	}
	return nil
}

// copyFile copies a single file
func copyFile(src, dst string, mode os.FileMode) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	return os.Chmod(dst, mode)
}
