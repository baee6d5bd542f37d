package matcher

import (
	"cmp"
	"reflect"
	"strings"
	"unicode/utf8"
)

// Normalize maps a stored value onto the comparison domain:
// nil, float64 or string. Booleans become 0 or 1.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		return x
	case string:
		return x
	case bool:
		if x {
			return float64(1)
		}
		return float64(0)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return Normalize(rv.Bool())
	}
	return v
}

// rank orders types: null, then numbers, then text, then anything else.
func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case float64:
		return 1
	case string:
		return 2
	}
	return 3
}

// Compare orders two values the way the relational backend sorts them.
func Compare(a, b any) int {
	a, b = Normalize(a), Normalize(b)
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch x := a.(type) {
	case float64:
		return cmp.Compare(x, b.(float64))
	case string:
		return strings.Compare(x, b.(string))
	}
	return 0
}

// equal is null-safe equality.
func equal(a, b any) bool {
	a, b = Normalize(a), Normalize(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return rank(a) == rank(b) && Compare(a, b) == 0
}

// Like reports whether s matches pattern using % and _ wildcards.
// Letters compare case-insensitively in the ASCII range only.
func Like(s, pattern string) bool {
	si, pi := 0, 0
	starS, starP := -1, -1
	for si < len(s) {
		if pi < len(pattern) {
			pr, pw := utf8.DecodeRuneInString(pattern[pi:])
			switch {
			case pr == '%':
				starP, starS = pi, si
				pi += pw
				continue
			case pr == '_':
				_, sw := utf8.DecodeRuneInString(s[si:])
				si += sw
				pi += pw
				continue
			default:
				sr, sw := utf8.DecodeRuneInString(s[si:])
				if foldASCII(sr) == foldASCII(pr) {
					si += sw
					pi += pw
					continue
				}
			}
		}
		if starP < 0 {
			return false
		}
		// Backtrack: let the last % absorb one more rune.
		_, sw := utf8.DecodeRuneInString(s[starS:])
		starS += sw
		si = starS
		pi = starP + 1
	}
	for pi < len(pattern) && pattern[pi] == '%' {
		pi++
	}
	return pi == len(pattern)
}

func foldASCII(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}
