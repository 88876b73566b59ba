// Package catalog builds the user-facing views over the topic store:
// letter-bucketed listings, recency listings, substring search, and
// fixed-size page windows. Sorting everywhere goes through one primitive,
// the accent-aware sort key produced by SortKey.
package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Bucket is the coarse sort group of a topic name: symbols and digits first,
// then the Latin letters with Ñ as its own bucket between N and O, and
// empty names last.
type Bucket int

// Bucket ranks. The zero value is BucketSymbol.
const (
	BucketSymbol Bucket = iota // anything whose base rune is not A-Z
	bucketA                    // A..N occupy bucketA..bucketA+13
)

const (
	// BucketEnye is the distinct bucket for names starting with Ñ,
	// ordered immediately after N.
	BucketEnye Bucket = bucketA + ('N' - 'A') + 1
	// BucketEmpty sorts empty and whitespace-only names after everything.
	BucketEmpty Bucket = bucketA + 26 + 2
)

// Key is the total-order sort key for a topic name. Keys compare by bucket,
// then accented-before-plain within the bucket, then the case-insensitive
// full name.
type Key struct {
	Bucket   Bucket
	Accented bool
	TieBreak string
}

// SortKey maps a display name to its sort key. The first rune is decomposed
// to its base Latin letter (canonical Unicode decomposition, diacritics
// stripped); Ñ keeps its own bucket and is never merged with N.
func SortKey(name string) Key {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Key{Bucket: BucketEmpty}
	}

	first := []rune(trimmed)[0]
	key := Key{TieBreak: strings.ToLower(name)}

	if first == 'Ñ' || first == 'ñ' {
		key.Bucket = BucketEnye
		return key
	}

	base := baseRune(first)
	upper := unicode.ToUpper(base)
	if upper < 'A' || upper > 'Z' {
		key.Bucket = BucketSymbol
		return key
	}

	key.Bucket = letterBucket(upper)
	key.Accented = unicode.ToUpper(first) != upper
	return key
}

// Less reports whether a sorts before b in the catalog's total order.
func Less(a, b Key) bool {
	if a.Bucket != b.Bucket {
		return a.Bucket < b.Bucket
	}
	if a.Accented != b.Accented {
		return a.Accented
	}
	return a.TieBreak < b.TieBreak
}

// LetterBucket resolves a user-facing letter query to a bucket. Accepted
// values are "A".."Z" (any case), "Ñ", and "#" for the symbol/digit bucket.
func LetterBucket(letter string) (Bucket, bool) {
	switch letter {
	case "#":
		return BucketSymbol, true
	case "Ñ", "ñ":
		return BucketEnye, true
	}
	r := []rune(letter)
	if len(r) != 1 {
		return 0, false
	}
	u := unicode.ToUpper(r[0])
	if u < 'A' || u > 'Z' {
		return 0, false
	}
	return letterBucket(u), true
}

// letterBucket maps an unaccented uppercase letter to its rank, leaving the
// slot after N free for Ñ.
func letterBucket(upper rune) Bucket {
	b := bucketA + Bucket(upper-'A')
	if upper > 'N' {
		b++
	}
	return b
}

// baseRune strips combining marks from a rune via canonical decomposition,
// returning its base form ('Á' -> 'A').
func baseRune(r rune) rune {
	decomposed := norm.NFD.String(string(r))
	for _, d := range decomposed {
		if !unicode.Is(unicode.Mn, d) {
			return d
		}
	}
	return r
}

// Fold lowercases s and strips combining marks, so "Ángela" folds to
// "angela". Name search matches on the folded form; a query typed without
// accents still finds accented names.
func Fold(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
