package sandbox

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultAllowed lists the programs a shell line may start with. Entries
// ending in "/" are prefixes ("./" runs a local script).
var DefaultAllowed = []string{
	"rm", "mv", "touch", "mkdir",
	"npm", "npx", "yarn", "pnpm", "bun", "bunx", "prisma",
	"git", "echo", "go",
	"./",
}

var ErrCommandRejected = errors.New("command rejected")

type CommandRejectedError struct {
	Line   string
	Reason string
}

func (e *CommandRejectedError) Error() string {
	return fmt.Sprintf("command %q rejected: %s", e.Line, e.Reason)
}

func (e *CommandRejectedError) Is(target error) bool {
	return target == ErrCommandRejected
}

var (
	cdPattern      = regexp.MustCompile(`^cd\s+([A-Za-z0-9_\-./]+)$`)
	chainSeparator = regexp.MustCompile(`\s*(?:&&|\|\||;|\||&)\s*`)
	redirection    = regexp.MustCompile(`[0-9]*>&[0-9-]*|&>`)
)

// Gate is a syntactic whitelist for model-proposed shell lines. It is not
// a sandbox: arguments of allowed programs are not inspected.
type Gate struct {
	allowed []string
}

func NewGate(extra ...string) *Gate {
	allowed := append([]string{}, DefaultAllowed...)
	for _, e := range extra {
		if e = strings.TrimSpace(e); e != "" {
			allowed = append(allowed, e)
		}
	}
	return &Gate{allowed: allowed}
}

func (g *Gate) Allowed() []string {
	return append([]string{}, g.allowed...)
}

func (g *Gate) IsAllowed(line string) bool {
	return g.check(line) == ""
}

// CheckBatch validates every non-blank, non-comment line of a bash block.
// One rejected line rejects the whole batch.
func (g *Gate) CheckBatch(batch string) error {
	for _, line := range strings.Split(batch, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if reason := g.check(trimmed); reason != "" {
			return &CommandRejectedError{Line: trimmed, Reason: reason}
		}
	}
	return nil
}

func (g *Gate) check(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return "empty command"
	}
	if strings.Contains(line, "$(") || strings.Contains(line, "`") {
		return "command substitution is not allowed"
	}

	segments := chainSeparator.Split(redirection.ReplaceAllString(line, ">"), -1)
	for i, seg := range segments {
		if strings.TrimSpace(seg) == "" && i > 0 {
			continue
		}
		if i == 0 && len(segments) > 1 {
			if m := cdPattern.FindStringSubmatch(seg); m != nil {
				if reason := checkSubdir(m[1]); reason != "" {
					return reason
				}
				continue
			}
		}
		if !g.startsAllowed(seg) {
			return fmt.Sprintf("%q is not an allowed program (allowed: %s)", firstToken(seg), strings.Join(g.allowed, ", "))
		}
	}
	return ""
}

func (g *Gate) startsAllowed(seg string) bool {
	tok := firstToken(seg)
	if tok == "" {
		return false
	}
	for _, a := range g.allowed {
		if strings.HasSuffix(a, "/") {
			if strings.HasPrefix(tok, a) && len(tok) > len(a) && checkSubdir(tok) == "" {
				return true
			}
			continue
		}
		if tok == a {
			return true
		}
	}
	return false
}

func checkSubdir(dir string) string {
	if strings.HasPrefix(dir, "/") {
		return "cd target must be a relative subdirectory"
	}
	for _, seg := range strings.Split(dir, "/") {
		if seg == ".." {
			return "cd target must not leave the project"
		}
	}
	return ""
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
