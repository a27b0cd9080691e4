package memory

import (
	"regexp"
	"slices"
	"sort"
	"strings"

	"aisquery/internal/domain"
)

type markerKind int

const (
	singular markerKind = iota
	singularPossessive
	plural
	pluralPossessive
)

var markers = map[string]markerKind{
	"it":              singular,
	"that vessel":     singular,
	"this vessel":     singular,
	"that ship":       singular,
	"this ship":       singular,
	"the same vessel": singular,
	"its":             singularPossessive,
	"them":            plural,
	"they":            plural,
	"those vessels":   plural,
	"these vessels":   plural,
	"those ships":     plural,
	"these ships":     plural,
	"both vessels":    plural,
	"their":           pluralPossessive,
}

var markerPattern = func() *regexp.Regexp {
	words := make([]string, 0, len(markers))
	for w := range markers {
		words = append(words, w)
	}
	// Longest first so "its" wins over "it" and phrases over single words.
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
	for i, w := range words {
		words[i] = strings.ReplaceAll(regexp.QuoteMeta(w), " ", `\s+`)
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(words, "|") + `)\b`)
}()

// IsMarker reports whether s is, on its own, a reference word such as "it"
// or "that vessel".
func IsMarker(s string) bool {
	_, ok := markers[normalizeMarker(s)]
	return ok
}

func normalizeMarker(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

type ResolvedQuery struct {
	Original string
	Text     string
	// Markers lists every reference word found, in order of appearance.
	Markers []string
	// Bound holds the vessels substituted into Text.
	Bound []domain.Vessel
	// Unresolved lists markers left in place because memory had nothing to
	// bind them to.
	Unresolved []string
}

// ReferenceResolver rewrites reference words in a query using the session's
// last-mentioned vessels. It never mutates the conversation.
type ReferenceResolver struct{}

func NewReferenceResolver() *ReferenceResolver {
	return &ReferenceResolver{}
}

// Resolve replaces singular markers with the most recent vessel and plural
// markers with the whole recent set. With nothing in memory the text comes
// back unchanged and the markers are reported as unresolved.
func (r *ReferenceResolver) Resolve(text string, conv Conversation) ResolvedQuery {
	out := ResolvedQuery{Original: text, Text: text}
	locs := markerPattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return out
	}
	for _, loc := range locs {
		out.Markers = append(out.Markers, normalizeMarker(text[loc[0]:loc[1]]))
	}

	last, ok := conv.LastVessel()
	if !ok {
		for _, m := range out.Markers {
			if !slices.Contains(out.Unresolved, m) {
				out.Unresolved = append(out.Unresolved, m)
			}
		}
		return out
	}
	recent := conv.LastVessels

	var b strings.Builder
	prev := 0
	for i, loc := range locs {
		b.WriteString(text[prev:loc[0]])
		var bound []domain.Vessel
		switch markers[out.Markers[i]] {
		case singular:
			bound = []domain.Vessel{last}
			b.WriteString(vesselPhrase(bound))
		case singularPossessive:
			bound = []domain.Vessel{last}
			b.WriteString(vesselPhrase(bound) + "'s")
		case plural:
			bound = recent
			b.WriteString(vesselPhrase(bound))
		case pluralPossessive:
			bound = recent
			b.WriteString(vesselPhrase(bound) + "'")
		}
		for _, v := range bound {
			if !slices.ContainsFunc(out.Bound, func(o domain.Vessel) bool { return o.VesselID == v.VesselID }) {
				out.Bound = append(out.Bound, v)
			}
		}
		prev = loc[1]
	}
	b.WriteString(text[prev:])
	out.Text = b.String()
	return out
}

func vesselPhrase(vs []domain.Vessel) string {
	if len(vs) == 1 {
		return "vessel MMSI " + vs[0].MMSI
	}
	ids := make([]string, 0, len(vs))
	for _, v := range vs {
		ids = append(ids, "MMSI "+v.MMSI)
	}
	return "vessels " + strings.Join(ids[:len(ids)-1], ", ") + " and " + ids[len(ids)-1]
}
