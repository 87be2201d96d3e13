// Package canon implements the sliding-window context store: an append-only,
// index-tagged text log of per-segment descriptions fed back into the next
// segment's LLM call.
package canon

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const separator = "\n---\n"

var idxTokenRE = regexp.MustCompile(`^\[#IDX=(\d+)\]\s*`)
var legacyZhRE = regexp.MustCompile(`^片段(\d+)\(`)

// Split breaks a canon blob into its individual items.
func Split(canonText string) []string {
	if strings.TrimSpace(canonText) == "" {
		return nil
	}
	parts := strings.Split(canonText, separator)
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			items = append(items, p)
		}
	}
	return items
}

// ParseIndex extracts the 0-based IDX from an item, trying the canonical
// [#IDX=n] token first and falling back to the legacy 片段N( marker.
func ParseIndex(item string) (int, bool) {
	if m := idxTokenRE.FindStringSubmatch(item); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n, true
		}
	}
	if m := legacyZhRE.FindStringSubmatch(item); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n - 1, true
		}
	}
	return 0, false
}

// Append adds item to canon, skipping the separator when canon is empty.
// Empty items are no-ops.
func Append(canonText, item string) string {
	if strings.TrimSpace(item) == "" {
		return canonText
	}
	if strings.TrimSpace(canonText) == "" {
		return item
	}
	return canonText + separator + item
}

// Recent returns the last keep items joined by the canon separator.
func Recent(canonText string, keep int) string {
	items := Split(canonText)
	if len(items) == 0 {
		return ""
	}
	if keep < 0 {
		keep = 0
	}
	if keep > len(items) {
		keep = len(items)
	}
	return strings.Join(items[len(items)-keep:], separator)
}

// BeforeIndex returns items whose parsed IDX is < i. Items without a
// recognizable IDX token are kept, to avoid losing forward-compatible data.
func BeforeIndex(canonText string, i int) string {
	items := Split(canonText)
	kept := make([]string, 0, len(items))
	for _, item := range items {
		if idx, ok := ParseIndex(item); ok {
			if idx < i {
				kept = append(kept, item)
			}
			continue
		}
		kept = append(kept, item)
	}
	return strings.Join(kept, separator)
}

// ReplaceByIndex replaces the first item whose IDX == i, or appends item
// when no such item exists.
func ReplaceByIndex(canonText string, i int, item string) string {
	items := Split(canonText)
	for pos, existing := range items {
		if idx, ok := ParseIndex(existing); ok && idx == i {
			items[pos] = item
			return strings.Join(items, separator)
		}
	}
	return Append(canonText, item)
}

// ExtractMarkerLine finds the first line beginning with [[marker]] (tolerant
// of a leading bullet and a trailing colon) and returns its remainder.
// Reports false when no such line exists.
func ExtractMarkerLine(text, marker string) (string, bool) {
	pattern := regexp.MustCompile(`(?m)^\s*(?:[-*]\s*)?\[\[` + regexp.QuoteMeta(marker) + `\]\]\s*:?\s*(.*)$`)
	if m := pattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	// Bullet-tolerant substring match: the marker may appear mid-line.
	for _, line := range strings.Split(text, "\n") {
		marker2 := "[[" + marker + "]]"
		if idx := strings.Index(line, marker2); idx >= 0 {
			rest := line[idx+len(marker2):]
			rest = strings.TrimPrefix(strings.TrimSpace(rest), ":")
			return strings.TrimSpace(rest), true
		}
	}
	return "", false
}

// CompactDescription prefers a [[CANON_SUMMARY]] marker line, falls back to
// the first non-empty line, collapses whitespace, and ellipsizes to
// maxChars.
func CompactDescription(raw string, maxChars int) string {
	var picked string
	if v, ok := ExtractMarkerLine(raw, "CANON_SUMMARY"); ok && v != "" {
		picked = v
	} else {
		picked = firstNonEmptyLine(raw)
	}

	picked = strings.Join(strings.Fields(picked), " ")
	if maxChars > 0 && len([]rune(picked)) > maxChars {
		runes := []rune(picked)
		picked = strings.TrimRight(string(runes[:maxChars-1]), " \t\n\r") + "…"
	}
	return picked
}

func firstNonEmptyLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			return strings.TrimSpace(line)
		}
	}
	return strings.TrimSpace(text)
}

// FormatSummary builds the canonical wire format for one canon item.
func FormatSummary(index, startS, endS int, description string) string {
	head := fmt.Sprintf("[#IDX=%d] #%03d (%ds-%ds)", index, index+1, startS, endS)
	if description == "" {
		return head
	}
	return fmt.Sprintf("%s: %s", head, description)
}
