package remote

import (
	"os"
	"path/filepath"
	"strings"
)

// NodeSearchPath lists the usual Node.js install locations of version
// managers, so a CLI installed under one of them runs from a launcher that
// did not inherit the login shell PATH.
func NodeSearchPath() []string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return []string{"/usr/local/bin", "/opt/node/bin"}
	}
	dirs := []string{
		filepath.Join(home, ".nvm", "current", "bin"),
		filepath.Join(home, ".volta", "bin"),
		filepath.Join(home, ".local", "share", "n", "versions", "node", "latest", "bin"),
		filepath.Join(home, ".local", "share", "fnm", "aliases", "default", "bin"),
		"/usr/local/bin",
		"/opt/node/bin",
	}
	versions, err := os.ReadDir(filepath.Join(home, ".nvm", "versions", "node"))
	if err == nil {
		for _, entry := range versions {
			if entry.IsDir() {
				dirs = append(dirs, filepath.Join(home, ".nvm", "versions", "node", entry.Name(), "bin"))
			}
		}
	}
	return dirs
}

// augmentPath prepends every dir not already present in current.
func augmentPath(current string, extra []string) string {
	existing := map[string]bool{}
	parts := filepath.SplitList(current)
	for _, part := range parts {
		existing[part] = true
	}
	prefix := make([]string, 0, len(extra))
	for _, dir := range extra {
		dir = strings.TrimSpace(dir)
		if dir == "" || existing[dir] {
			continue
		}
		existing[dir] = true
		prefix = append(prefix, dir)
	}
	return strings.Join(append(prefix, parts...), string(os.PathListSeparator))
}

// lookPath searches pathValue instead of the process PATH.
func lookPath(name, pathValue string) (string, bool) {
	for _, dir := range filepath.SplitList(pathValue) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() || info.Mode()&0o111 == 0 {
			continue
		}
		return candidate, true
	}
	return "", false
}

func replaceEnv(env []string, key, value string) []string {
	prefix := key + "="
	out := make([]string, 0, len(env)+1)
	for _, item := range env {
		if strings.HasPrefix(item, prefix) {
			continue
		}
		out = append(out, item)
	}
	return append(out, prefix+value)
}
