package utils

import (
	"regexp"
	"strings"
	"unicode"
)

// canonicalPlate is the letters-digits-letters shape shared by the plate
// formats the cameras see. A string matching it is taken at face value.
var canonicalPlate = regexp.MustCompile(`^[A-Z]{1,3}[0-9]{2,4}[A-Z]{0,3}$`)

// ambiguous character pairs as produced by OCR. digitFor maps a letter to
// the digit it is commonly misread as, letterFor the reverse.
var digitFor = map[rune]rune{'O': '0', 'I': '1', 'S': '5', 'B': '8'}
var letterFor = map[rune]rune{'0': 'O', '1': 'I', '5': 'S', '8': 'B'}

// NormalizePlate canonicalizes raw OCR text: uppercase, alphanumerics only,
// then ambiguity repair if the stripped text fails the canonical format
// check. A plate that already reads as a valid format is never corrected.
func NormalizePlate(raw string) string {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	var b strings.Builder
	for _, r := range upper {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" {
		return ""
	}
	if canonicalPlate.MatchString(s) {
		return s
	}
	if repaired := repairAmbiguous(s); canonicalPlate.MatchString(repaired) {
		return repaired
	}
	return s
}

// repairAmbiguous fits the string to the letters-digits-letters shape. It
// tries every admissible lead/digits/tail split, coercing ambiguous
// characters (0/O, 1/I, 5/S, 8/B) to the class their position demands, and
// keeps the split that rewrites the fewest characters. Input that fits no
// split comes back unchanged.
func repairAmbiguous(s string) string {
	runes := []rune(s)
	n := len(runes)
	best := ""
	bestCost := -1
	for lead := 1; lead <= 3; lead++ {
		for digits := 2; digits <= 4; digits++ {
			tail := n - lead - digits
			if tail < 0 || tail > 3 {
				continue
			}
			out, cost, ok := coerceShape(runes, lead, digits)
			if ok && (bestCost < 0 || cost < bestCost) {
				best, bestCost = out, cost
			}
		}
	}
	if bestCost < 0 {
		return s
	}
	return best
}

// coerceShape rewrites runes against one lead/digits/tail split. A character
// already of its position's class is kept; an ambiguous one is mapped and
// counted; anything else fails the split.
func coerceShape(runes []rune, lead, digits int) (string, int, bool) {
	out := make([]rune, len(runes))
	cost := 0
	for i, r := range runes {
		wantDigit := i >= lead && i < lead+digits
		switch {
		case wantDigit && unicode.IsDigit(r):
			out[i] = r
		case wantDigit:
			d, ok := digitFor[r]
			if !ok {
				return "", 0, false
			}
			out[i] = d
			cost++
		case unicode.IsLetter(r):
			out[i] = r
		default:
			l, ok := letterFor[r]
			if !ok {
				return "", 0, false
			}
			out[i] = l
			cost++
		}
	}
	return string(out), cost, true
}

// WithinEditDistance reports whether the edit distance between a and b
// (substitutions, insertions, deletions) is at most max. max <= 0 means
// exact match only.
func WithinEditDistance(a, b string, max int) bool {
	if max <= 0 {
		return a == b
	}
	if max == 1 {
		return WithinEditDistanceOne(a, b)
	}
	la, lb := len(a), len(b)
	if la-lb > max || lb-la > max {
		return false
	}
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[lb] <= max
}

// WithinEditDistanceOne reports whether b can be reached from a with at most
// one substitution, insertion or deletion. Used by the fuzzy resolver to
// absorb single-character OCR slips.
func WithinEditDistanceOne(a, b string) bool {
	if a == b {
		return true
	}
	la, lb := len(a), len(b)
	if la-lb > 1 || lb-la > 1 {
		return false
	}
	if la == lb {
		diff := 0
		for i := 0; i < la; i++ {
			if a[i] != b[i] {
				diff++
				if diff > 1 {
					return false
				}
			}
		}
		return true
	}
	// lengths differ by one: a single skip in the longer string
	long, short := a, b
	if lb > la {
		long, short = b, a
	}
	skipped := false
	i, j := 0, 0
	for i < len(long) && j < len(short) {
		if long[i] == short[j] {
			i++
			j++
			continue
		}
		if skipped {
			return false
		}
		skipped = true
		i++
	}
	return true
}
