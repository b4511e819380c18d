package catalog

import "strings"

// JoinArtistNames renders the display string for an ordered credit list:
// "A", "A & B", or "A, B & C".
func JoinArtistNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " & " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " & " + names[len(names)-1]
	}
}

// CleanNames trims each name, drops blanks, and keeps only the first
// occurrence of a repeated name. Matching stays case-sensitive.
func CleanNames(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
