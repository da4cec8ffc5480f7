package util

import (
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// PathExists() is a wrapper function that simplifies checking
// if a file or directory already exists at the provided path.
func PathExists(path string) (fs.FileInfo, bool) {
	fi, err := os.Stat(path)
	return fi, !os.IsNotExist(err)
}

// SplitPathForViper() splits a path into directory, filename without
// extension and extension, the parts viper wants for AddConfigPath,
// SetConfigName and SetConfigType.
func SplitPathForViper(path string) (string, string, string) {
	filename := filepath.Base(path)
	ext := filepath.Ext(filename)
	return filepath.Dir(path), strings.TrimSuffix(filename, ext), strings.TrimPrefix(ext, ".")
}

// ConfigDir returns $XDG_CONFIG_HOME/senselink, falling back to
// ~/.config/senselink.
func ConfigDir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "senselink")
}

// GetCurrentUsername returns the login name of the current user or
// "unknown" if it cannot be determined.
func GetCurrentUsername() string {
	u, err := user.Current()
	if err != nil {
		return "unknown"
	}
	return u.Username
}

// DefaultCachePath is where the requester cache lives unless --cache is set.
func DefaultCachePath() string {
	return filepath.Join(os.TempDir(), GetCurrentUsername(), "senselink", "requesters.db")
}
