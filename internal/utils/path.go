package utils

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/charmbracelet/log"
)

// PathResolver locates the config and data directories of codeserve.
type PathResolver struct {
	executableDir string
	configDir     string
}

// NewPathResolver creates a resolver rooted at the running executable.
func NewPathResolver() (*PathResolver, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, err
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return nil, err
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Warnf("Could not determine home directory: %v", err)
		homeDir = os.TempDir()
	}

	pr := &PathResolver{
		executableDir: filepath.Dir(execPath),
		configDir:     getConfigDir(homeDir),
	}
	log.Debugf("PathResolver initialized: execDir=%s, configDir=%s", pr.executableDir, pr.configDir)
	return pr, nil
}

// getConfigDir returns the appropriate config directory for the platform
func getConfigDir(homeDir string) string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir, ".config", "codeserve")
	case "linux":
		if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
			return filepath.Join(configHome, "codeserve")
		}
		return filepath.Join(homeDir, ".config", "codeserve")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "codeserve")
		}
		return filepath.Join(homeDir, "AppData", "Roaming", "codeserve")
	default:
		return filepath.Join(homeDir, ".codeserve")
	}
}

// GetDataDir resolves the directory holding the pattern database.
// An explicit path wins; otherwise <config dir>/data is used, falling back
// to a temp dir when the config dir is read-only.
func (pr *PathResolver) GetDataDir(userSpecifiedPath string) (string, error) {
	if userSpecifiedPath != "" {
		path := pr.ResolveRelativePath(userSpecifiedPath)
		if err := EnsureDir(path); err != nil {
			return "", err
		}
		return path, nil
	}
	preferred := filepath.Join(pr.configDir, "data")
	if result := CheckDirStatus(preferred); result.Writable {
		return preferred, nil
	}
	fallback := filepath.Join(os.TempDir(), "codeserve", "data")
	log.Warnf("Using fallback data location: %s", fallback)
	return fallback, EnsureDir(fallback)
}

// GetConfigDir returns the config directory
func (pr *PathResolver) GetConfigDir() string {
	return pr.configDir
}

// ResolveRelativePath resolves a path relative to the working directory,
// and relative to the executable when that fails.
func (pr *PathResolver) ResolveRelativePath(relativePath string) string {
	if filepath.IsAbs(relativePath) {
		return relativePath
	}
	if abs, err := filepath.Abs(relativePath); err == nil {
		return abs
	}
	return filepath.Join(pr.executableDir, relativePath)
}
