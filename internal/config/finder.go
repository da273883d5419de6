package config

import (
	"os"
	"path/filepath"
)

// FindLocalConfig walks up from dir looking for a .localbin.* project
// configuration file, returning the first match or an empty string
func FindLocalConfig(dir string) string {
	for {
		for _, ext := range []string{"yml", "yaml", "json", "toml"} {
			path := filepath.Join(dir, ".localbin."+ext)

			if _, err := os.Stat(path); err == nil {
				return path
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}
