package query

import (
	"net/url"
	"strings"
)

// Pair is one key/value entry of a query string.
type Pair struct {
	Key   string
	Value string
}

// Pairs is an ordered multi-map of query string entries. Repeated keys are
// kept, so col=gte.1&col=lte.9 yields two filters.
type Pairs []Pair

// Get returns the first value for key.
func (p Pairs) Get(key string) (string, bool) {
	for _, pair := range p {
		if pair.Key == key {
			return pair.Value, true
		}
	}
	return "", false
}

// ParseQueryString splits a raw query string into decoded key/value pairs.
//
// A '&' only separates entries when it is outside a bracketed literal: '['
// opens one, ')' or ']' closes one. This keeps range literals such as
// [2000-01-01,2000-01-02) in a single value. Each entry is split on its
// first '=' and both halves are percent-decoded.
func ParseQueryString(search string) Pairs {
	search = strings.TrimPrefix(search, "?")

	var pairs Pairs
	var current strings.Builder
	bracketDepth := 0

	flush := func() {
		if current.Len() > 0 {
			pairs = append(pairs, splitPair(current.String()))
			current.Reset()
		}
	}

	for _, ch := range search {
		switch ch {
		case '[':
			bracketDepth++
			current.WriteRune(ch)
		case ')', ']':
			if bracketDepth > 0 {
				bracketDepth--
			}
			current.WriteRune(ch)
		case '&':
			if bracketDepth == 0 {
				flush()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}
	flush()

	return pairs
}

func splitPair(entry string) Pair {
	key, value, _ := strings.Cut(entry, "=")
	return Pair{Key: decode(key), Value: decode(value)}
}

// decode percent-decodes s, returning it unchanged if it is not valid
// percent-encoding.
func decode(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}
