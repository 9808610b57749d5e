package sandbox

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// Rule names the check a rejected path failed.
type Rule string

const (
	RuleEmpty       Rule = "empty path"
	RuleAbsolute    Rule = "absolute or home-relative path"
	RuleCharset     Rule = "characters outside [A-Za-z0-9_-./]"
	RuleTraversal   Rule = "parent directory segment"
	RuleEscapesRoot Rule = "resolves outside the project root"
)

var ErrPathRejected = errors.New("path rejected")

type PathRejectedError struct {
	Path string
	Rule Rule
}

func (e *PathRejectedError) Error() string {
	return fmt.Sprintf("path %q rejected: %s", e.Path, e.Rule)
}

func (e *PathRejectedError) Is(target error) bool {
	return target == ErrPathRejected
}

var (
	allowedPathChars = regexp.MustCompile(`^[A-Za-z0-9_\-./]+$`)
	drivePrefix      = regexp.MustCompile(`^[A-Za-z]:`)
)

// ValidatePath turns a model-supplied relative path into an absolute path
// strictly inside root. It never touches the filesystem.
func ValidatePath(raw, root string) (string, error) {
	p := strings.TrimSpace(raw)
	reject := func(r Rule) (string, error) {
		return "", &PathRejectedError{Path: raw, Rule: r}
	}

	if p == "" {
		return reject(RuleEmpty)
	}
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) || strings.HasPrefix(p, "~") || drivePrefix.MatchString(p) {
		return reject(RuleAbsolute)
	}
	if !allowedPathChars.MatchString(p) {
		return reject(RuleCharset)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return reject(RuleTraversal)
		}
	}

	root = filepath.Clean(root)
	p = StripRootName(p, root)

	cleaned := path.Clean(p)
	abs := filepath.Join(root, filepath.FromSlash(cleaned))
	if !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return reject(RuleEscapesRoot)
	}
	return abs, nil
}

// StripRootName drops a leading segment equal to the project directory's
// own name, which models often prepend ("myapp/src/x" inside myapp).
func StripRootName(p, root string) string {
	name := filepath.Base(filepath.Clean(root))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return p
	}
	trimmed := strings.TrimPrefix(p, "./")
	if rest, ok := strings.CutPrefix(trimmed, name+"/"); ok && strings.Trim(rest, "/") != "" {
		return rest
	}
	return p
}

// Rel is the inverse of ValidatePath for paths already inside root,
// in slash form.
func Rel(abs, root string) string {
	rel, err := filepath.Rel(filepath.Clean(root), abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}
