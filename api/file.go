// Package api contains the configuration file types for loadout, along with
// the file helpers shared by every configuration kind.
package api

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/macropower/loadout/pkg/yaml"
)

// AppName is used for configuration directories and environment variables.
const AppName = "loadout"

var (
	ErrIsDirectory     = errors.New("path is a directory")
	ErrUnknownFileMode = errors.New("unknown file state")
)

// GetConfigPath returns the path of filename inside the user's loadout
// configuration directory. $XDG_CONFIG_HOME wins over ~/.config; when neither
// can be determined a directory under [os.TempDir] is used.
func GetConfigPath(filename string) string {
	if xdgHome, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdgHome != "" {
		return filepath.Join(xdgHome, AppName, filename)
	}

	usrHome, err := os.UserHomeDir()
	if err == nil && usrHome != "" {
		return filepath.Join(usrHome, ".config", AppName, filename)
	}

	tmpPath := filepath.Join(os.TempDir(), AppName, filename)

	slog.Warn("could not determine user config directory, using temp path",
		slog.String("path", tmpPath),
		slog.Any("error", fmt.Errorf("$XDG_CONFIG_HOME is unset, fall back to home directory: %w", err)),
	)

	return tmpPath
}

// ReadFile reads a regular file. Directories and special files are rejected.
func ReadFile(path string) ([]byte, error) {
	err := checkRegular(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: Potential file inclusion via variable.
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return data, nil
}

func checkRegular(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}

	switch {
	case info.IsDir():
		return fmt.Errorf("%s: %w", path, ErrIsDirectory)
	case !info.Mode().IsRegular():
		return fmt.Errorf("%s: %w", path, ErrUnknownFileMode)
	}

	return nil
}

// MarshalYAML serializes obj with the loadout YAML encoder settings.
func MarshalYAML(obj any) ([]byte, error) {
	b := &bytes.Buffer{}

	enc := yaml.NewEncoder(b)
	err := enc.Encode(obj)
	if err != nil {
		return nil, fmt.Errorf("marshal yaml: %w", err)
	}

	err = enc.Close()
	if err != nil {
		return nil, fmt.Errorf("close yaml encoder: %w", err)
	}

	return b.Bytes(), nil
}

// fileState reports whether path exists as a regular file. Any other kind of
// existing entry is an error.
func fileState(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	switch {
	case info.Mode().IsRegular():
		return true, nil
	case info.IsDir():
		return false, fmt.Errorf("%s: %w", path, ErrIsDirectory)
	}

	return false, fmt.Errorf("%s: %w", path, ErrUnknownFileMode)
}

// WriteIfNotExists writes data to path unless a regular file is already there.
// Parent directories are created as needed.
func WriteIfNotExists(path string, data []byte) error {
	exists, err := fileState(path)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = os.MkdirAll(filepath.Dir(path), 0o700)
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	err = os.WriteFile(path, data, 0o600)
	if err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}

// FindConfigFile walks from targetPath up to the filesystem root and returns
// the first existing file named in fileNames. It returns an empty string when
// nothing is found.
func FindConfigFile(targetPath string, fileNames []string) (string, error) {
	absPath, err := filepath.Abs(targetPath)
	if err != nil {
		return "", fmt.Errorf("get absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("stat path: %w", err)
	}

	searchDir := absPath
	if !info.IsDir() {
		searchDir = filepath.Dir(absPath)
	}

	for {
		for _, fileName := range fileNames {
			candidate := filepath.Join(searchDir, fileName)
			if _, statErr := os.Stat(candidate); statErr == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(searchDir)
		if parent == searchDir {
			return "", nil
		}

		searchDir = parent
	}
}

// WriteDefaultFile writes defaultData to path. With force, an existing file is
// first moved aside to "<name>.<unixnano>.old".
func WriteDefaultFile(path string, defaultData []byte, force bool, kind string) error {
	exists, err := fileState(path)
	if err != nil {
		return err
	}

	err = os.MkdirAll(filepath.Dir(path), 0o700)
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	if exists && force {
		backupFile := fmt.Sprintf("%s.%d.old", filepath.Base(path), time.Now().UnixNano())
		backupPath := filepath.Join(filepath.Dir(path), backupFile)
		slog.Info("backing up existing file",
			slog.String("type", kind),
			slog.String("path", backupPath),
		)

		err = os.Rename(path, backupPath)
		if err != nil {
			return fmt.Errorf("rename existing %s file to backup: %w", kind, err)
		}

		exists = false
	}

	if exists {
		slog.Debug("file already exists, skipping write",
			slog.String("type", kind),
			slog.String("path", path),
		)

		return nil
	}

	slog.Info("write default file",
		slog.String("type", kind),
		slog.String("path", path),
	)

	err = os.WriteFile(path, defaultData, 0o600)
	if err != nil {
		return fmt.Errorf("write %s file: %w", kind, err)
	}

	return nil
}
