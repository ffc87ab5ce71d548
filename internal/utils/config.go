package utils

import (
	"os"
	"path/filepath"
)

// DataDir is where the station keeps its settings and key files:
// $SCANFULFILL_HOME if set, otherwise ~/.scanfulfill.
func DataDir() string {
	if dir := os.Getenv("SCANFULFILL_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "scanfulfill")
	}
	return filepath.Join(home, ".scanfulfill")
}

// DataPath joins name onto DataDir unless name is already absolute.
func DataPath(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(DataDir(), name)
}
