package workspace

import (
	"path/filepath"
	"strings"
)

// StateDir holds run state inside the project and is never shown to the model.
const StateDir = ".sloth"

var ignoredDirs = map[string]struct{}{
	"venv": {}, ".venv": {}, "__pycache__": {}, ".pytest_cache": {},
	"node_modules": {}, ".next": {}, "dist": {}, "build": {}, "coverage": {},
	".git": {}, ".idea": {}, ".vscode": {}, ".claude": {}, "logs": {},
	StateDir: {},
}

var ignoredFiles = map[string]struct{}{
	"go.sum": {}, "package-lock.json": {}, "yarn.lock": {}, "pnpm-lock.yaml": {},
	"bun.lockb": {}, ".ds_store": {}, ".gitignore": {}, ".env": {},
}

var binaryExts = map[string]struct{}{
	".png": {}, ".jpeg": {}, ".jpg": {}, ".gif": {}, ".bmp": {}, ".ico": {},
	".svg": {}, ".webp": {}, ".pdf": {}, ".zip": {}, ".gz": {}, ".tar": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".mp3": {}, ".mp4": {}, ".exe": {},
	".so": {}, ".dylib": {}, ".bak": {},
}

func IsIgnoredDir(name string) bool {
	_, ok := ignoredDirs[name]
	return ok
}

// IsIgnoredFile reports files that carry no useful context for the model.
func IsIgnoredFile(name string) bool {
	lower := strings.ToLower(name)
	if _, ok := ignoredFiles[lower]; ok {
		return true
	}
	_, ok := binaryExts[strings.ToLower(filepath.Ext(lower))]
	return ok
}
