package vessel

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"aisquery/internal/domain"
)

// Merchant hull prefixes carry no identity; "MV Ever Given" is "EVER GIVEN".
var hullPrefixes = map[string]bool{"MV": true, "MT": true, "SS": true, "MS": true, "MY": true}

func normalizeName(s string) string {
	s = strings.ToUpper(s)
	s = strings.NewReplacer("M/V", "MV", "M/T", "MT", "M.V.", "MV", "M.T.", "MT").Replace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	fields := strings.Fields(s)
	if len(fields) > 1 && hullPrefixes[fields[0]] {
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}

// Similarity scores how well query names the registered name, in [0, 1].
// It is the better of a normalized Levenshtein ratio and a token
// containment score that favours short queries naming a whole word of a
// longer registered name ("Kolkata" for "INS KOLKATA").
func Similarity(query, name string) float64 {
	q, n := normalizeName(query), normalizeName(name)
	if q == "" || n == "" {
		return 0
	}
	if q == n {
		return 1
	}
	longest := max(utf8.RuneCountInString(q), utf8.RuneCountInString(n))
	score := 1 - float64(fuzzy.LevenshteinDistance(q, n))/float64(longest)

	if containsTokens(n, q) {
		ratio := float64(utf8.RuneCountInString(q)) / float64(utf8.RuneCountInString(n))
		score = max(score, 0.8+0.2*ratio)
	}
	return max(score, 0)
}

// containsTokens reports whether every token of q appears, in order, as a
// whole token of n.
func containsTokens(n, q string) bool {
	nt, qt := strings.Fields(n), strings.Fields(q)
	i := 0
	for _, tok := range nt {
		if i < len(qt) && tok == qt[i] {
			i++
		}
	}
	return i == len(qt)
}

// RankNames scores every vessel's name against query and returns the
// non-zero matches, best first. Equal scores are ordered by name then
// vessel ID so the output is stable.
func RankNames(query string, vessels []domain.Vessel) []domain.NameMatch {
	out := make([]domain.NameMatch, 0, len(vessels))
	for _, v := range vessels {
		if v.Name == "" {
			continue
		}
		if s := Similarity(query, v.Name); s > 0 {
			out = append(out, domain.NameMatch{Vessel: v, Score: s})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Vessel.Name != out[j].Vessel.Name {
			return out[i].Vessel.Name < out[j].Vessel.Name
		}
		return out[i].Vessel.VesselID < out[j].Vessel.VesselID
	})
	return out
}
