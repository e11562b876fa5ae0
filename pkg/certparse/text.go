package certparse

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Quote and whitespace variants that PDF text layers produce for the same character.
var textReplacer = strings.NewReplacer(
	"\u05f3", "'", // geresh
	"\u05f4", `"`, // gershayim
	"\u2018", "'",
	"\u2019", "'",
	"\u201c", `"`,
	"\u201d", `"`,
	"\u00a0", " ",
	"\u2007", " ",
	"\u202f", " ",
	"\r\n", "\n",
	"\r", "\n",
	"\u200e", "",
	"\u200f", "",
	"\u202a", "",
	"\u202b", "",
	"\u202c", "",
	"\u202d", "",
	"\u202e", "",
)

// NormalizeText brings certificate text to the form every matcher expects: NFC composed,
// directional marks stripped, quote variants unified and runs of blanks collapsed.
// Line breaks are kept because several field patterns are line-oriented.
func NormalizeText(s string) string {
	s = textReplacer.Replace(norm.NFC.String(s))

	var b strings.Builder
	b.Grow(len(s))
	blank := false
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if !blank {
				b.WriteByte(' ')
			}
			blank = true
			continue
		}
		blank = false
		b.WriteRune(r)
	}
	return b.String()
}

func normalizeTerm(s string) string {
	return strings.ToLower(strings.TrimSpace(NormalizeText(s)))
}

// Text is normalized certificate text indexed by rune, with a lower-cased shadow used
// for case-insensitive term search. Offsets returned by Text are rune offsets.
type Text struct {
	raw       string
	runes     []rune
	lower     string
	runeStart []int
}

// NewText normalizes s and indexes it.
func NewText(s string) *Text {
	raw := NormalizeText(s)
	runes := []rune(raw)

	lowerRunes := make([]rune, len(runes))
	for i, r := range runes {
		lowerRunes[i] = unicode.ToLower(r)
	}
	lower := string(lowerRunes)

	runeStart := make([]int, 0, len(runes)+1)
	for i := range lower {
		runeStart = append(runeStart, i)
	}
	runeStart = append(runeStart, len(lower))

	return &Text{raw: raw, runes: runes, lower: lower, runeStart: runeStart}
}

// String returns the normalized text.
func (t *Text) String() string {
	return t.raw
}

// Len returns the length in runes.
func (t *Text) Len() int {
	return len(t.runes)
}

// Find returns the rune offset of the first occurrence of a normalized term, or -1.
func (t *Text) Find(term string) int {
	return t.FindFrom(term, 0)
}

// FindFrom is Find starting at a rune offset. Terms that begin or end with a Latin letter
// or digit only match on word boundaries; other terms match as substrings.
func (t *Text) FindFrom(term string, from int) int {
	if term == "" || from < 0 || from >= len(t.runeStart) {
		return -1
	}

	start := t.runeStart[from]
	for start <= len(t.lower) {
		i := strings.Index(t.lower[start:], term)
		if i < 0 {
			return -1
		}
		pos := start + i
		if t.onBoundary(pos, pos+len(term), term) {
			return t.runeIndex(pos)
		}
		_, size := utf8.DecodeRuneInString(t.lower[pos:])
		start = pos + size
	}
	return -1
}

// ContainsAny reports whether any of the terms occurs in the text.
func (t *Text) ContainsAny(terms []string) bool {
	for _, term := range terms {
		if t.Find(term) >= 0 {
			return true
		}
	}
	return false
}

// Window returns up to size runes starting at a rune offset.
func (t *Text) Window(from, size int) string {
	if from < 0 {
		from = 0
	}
	if from >= len(t.runes) {
		return ""
	}
	end := from + size
	if end > len(t.runes) {
		end = len(t.runes)
	}
	return string(t.runes[from:end])
}

func (t *Text) onBoundary(startByte, endByte int, term string) bool {
	first, _ := utf8.DecodeRuneInString(term)
	last, _ := utf8.DecodeLastRuneInString(term)
	if isWordRune(first) && startByte > 0 {
		prev, _ := utf8.DecodeLastRuneInString(t.lower[:startByte])
		if isWordRune(prev) {
			return false
		}
	}
	if isWordRune(last) && endByte < len(t.lower) {
		next, _ := utf8.DecodeRuneInString(t.lower[endByte:])
		if isWordRune(next) {
			return false
		}
	}
	return true
}

func (t *Text) runeIndex(bytePos int) int {
	lo, hi := 0, len(t.runeStart)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if t.runeStart[mid] < bytePos {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func isWordRune(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))
}
