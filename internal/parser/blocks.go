package parser

import (
	"regexp"
	"strings"
	"unicode"
)

const fence = "```"

// CompletionMarker is the bare word a reply may start with to report that
// the goal is reached.
const CompletionMarker = "DONE"

var attrPattern = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)="([^"]*)"`)

type lineSpan struct {
	start, end int
}

// ParseBlocks extracts action blocks from a model reply in order of
// appearance. Malformed, unterminated and unknown blocks are dropped.
// boundary is the token write_file blocks are expected to use; a block
// announcing a different token is discarded. Empty boundary accepts any.
func ParseBlocks(text, boundary string) Blocks {
	lines := splitLines(text)
	lineAt := func(i int) string { return text[lines[i].start:lines[i].end] }

	var out Blocks
	for i := 0; i < len(lines); i++ {
		opening := strings.TrimSpace(lineAt(i))
		if !strings.HasPrefix(opening, fence) {
			continue
		}
		keyword, header := splitHeader(strings.TrimPrefix(opening, fence))
		if keyword == "" {
			continue
		}

		t := BlockType(keyword)
		if _, ok := registry.GetDefinition(t); !ok {
			i = indexOf(lines, i+1, func(j int) bool { return isClosingFence(lineAt(j)) })
			continue
		}

		attrs := parseAttrs(t, header)
		term := attrs["boundary"]

		var end int
		if term != "" {
			end = indexOf(lines, i+1, func(j int) bool { return strings.TrimRight(lineAt(j), "\r") == term })
		} else {
			end = indexOf(lines, i+1, func(j int) bool { return isClosingFence(lineAt(j)) })
		}
		if end >= len(lines) {
			// Drop only the opening line and keep scanning for later blocks.
			continue
		}

		next := end
		if term != "" && end+1 < len(lines) && isClosingFence(lineAt(end+1)) {
			next = end + 1
		}

		content := ""
		if end > i+1 {
			content = text[lines[i+1].start : lines[end].start-1]
		}
		i = next

		if boundary != "" && term != "" && term != boundary {
			continue
		}

		b := Block{
			Type:    t,
			Header:  header,
			Attrs:   attrs,
			Content: content,
		}
		if registry.ValidateBlock(b) != nil {
			continue
		}
		out = append(out, b)
	}
	return out
}

// HasCompletionMarker reports whether the reply opens with the bare
// completion marker. The match is case-sensitive so prose such as
// "Done. Next I will..." does not end the run.
func HasCompletionMarker(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		words := strings.FieldsFunc(line, func(r rune) bool { return !unicode.IsLetter(r) })
		return len(words) > 0 && words[0] == CompletionMarker
	}
	return false
}

func splitLines(text string) []lineSpan {
	var spans []lineSpan
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			spans = append(spans, lineSpan{start, i})
			start = i + 1
		}
	}
	if start < len(text) {
		spans = append(spans, lineSpan{start, len(text)})
	}
	return spans
}

func splitHeader(rest string) (keyword, header string) {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", ""
	}
	idx := strings.IndexFunc(rest, unicode.IsSpace)
	if idx < 0 {
		return rest, ""
	}
	return rest[:idx], strings.TrimSpace(rest[idx:])
}

func parseAttrs(t BlockType, header string) map[string]string {
	attrs := map[string]string{}
	for _, m := range attrPattern.FindAllStringSubmatch(header, -1) {
		attrs[m[1]] = m[2]
	}
	if t == TypeWriteFile && attrs["path"] == "" {
		fields := strings.Fields(header)
		if len(fields) > 0 && !strings.Contains(fields[0], "=") {
			attrs["path"] = strings.Trim(fields[0], `"'`)
		}
	}
	return attrs
}

func isClosingFence(line string) bool {
	return strings.TrimSpace(line) == fence
}

func indexOf(lines []lineSpan, from int, match func(int) bool) int {
	for j := from; j < len(lines); j++ {
		if match(j) {
			return j
		}
	}
	return len(lines)
}
