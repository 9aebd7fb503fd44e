package workspace

import (
	"path/filepath"
	"strings"

	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// systemPathPrefixes are absolute prefixes tools and scripts may never
// touch.
var systemPathPrefixes = []string{
	"/etc", "/usr", "/bin", "/sbin", "/lib", "/var", "/dev", "/proc",
	"/sys", "/boot", "/root",
}

// reservedDeviceNames are legacy Windows device names that still hijack
// file operations on some filesystems.
var reservedDeviceNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true,
	"com5": true, "com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true,
	"lpt5": true, "lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

// CheckPathSafety rejects traversal, system paths, null bytes, shell
// metacharacters, and reserved device names in user-supplied paths. Both
// the batch validator and the file tools gate on it.
func CheckPathSafety(path string) error {
	if path == "" {
		return models.NewToolError(models.ErrInvalidPath, "empty path")
	}
	if strings.ContainsRune(path, 0) {
		return models.NewToolError(models.ErrInvalidPath, "path contains a null byte")
	}
	if strings.ContainsAny(path, "`$;|&<>\n") {
		return models.NewToolError(models.ErrInvalidPath,
			"path %q contains shell metacharacters", path).WithFile(path)
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return models.NewToolError(models.ErrInvalidPath,
				"path %q escapes the workspace", path).WithFile(path)
		}
		base := strings.ToLower(part)
		if dot := strings.IndexByte(base, '.'); dot > 0 {
			base = base[:dot]
		}
		if reservedDeviceNames[base] {
			return models.NewToolError(models.ErrInvalidPath,
				"path %q uses a reserved device name", path).WithFile(path)
		}
	}
	if filepath.IsAbs(path) {
		clean := filepath.ToSlash(filepath.Clean(path))
		for _, prefix := range systemPathPrefixes {
			if clean == prefix || strings.HasPrefix(clean, prefix+"/") {
				return models.NewToolError(models.ErrInvalidPath,
					"path %q points into a system directory", path).WithFile(path)
			}
		}
	}
	return nil
}
