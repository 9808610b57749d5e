package supervisor

import (
	"sort"
	"strings"
)

type repeatLevel int

const (
	repeatNone repeatLevel = iota
	repeatWarn
	repeatForce
)

// repeatGuard counts consecutive successful iterations that touched the
// exact same set of paths.
type repeatGuard struct {
	warnAfter  int
	forceAfter int
	key        string
	files      []string
	streak     int
}

func newRepeatGuard(warnAfter, forceAfter int) *repeatGuard {
	return &repeatGuard{warnAfter: warnAfter, forceAfter: forceAfter}
}

func (g *repeatGuard) Observe(paths []string) repeatLevel {
	if len(paths) == 0 {
		g.Reset()
		return repeatNone
	}
	sorted := append([]string{}, paths...)
	sort.Strings(sorted)
	key := strings.Join(sorted, "\x00")
	if key == g.key {
		g.streak++
	} else {
		g.key, g.files, g.streak = key, sorted, 1
	}
	return g.level()
}

func (g *repeatGuard) level() repeatLevel {
	switch {
	case g.forceAfter > 0 && g.streak >= g.forceAfter:
		return repeatForce
	case g.warnAfter > 0 && g.streak >= g.warnAfter:
		return repeatWarn
	default:
		return repeatNone
	}
}

// Warning reports whether the next prompt must carry a repeat warning.
func (g *repeatGuard) Warning() bool {
	return g.level() != repeatNone
}

func (g *repeatGuard) Streak() int     { return g.streak }
func (g *repeatGuard) Files() []string { return g.files }

func (g *repeatGuard) Reset() {
	g.key, g.files, g.streak = "", nil, 0
}
