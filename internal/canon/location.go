package canon

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/yourorg/listing-api/shard"
)

// ErrLocationNotFound matches any *LocationNotFoundError.
var ErrLocationNotFound = errors.New("location not found")

// LocationNotFoundError carries suggestions for the "try one of" message.
type LocationNotFoundError struct {
	Input       string
	Suggestions []string
}

func (e *LocationNotFoundError) Error() string {
	return fmt.Sprintf("no data for location %q, try one of: %s", e.Input, strings.Join(e.Suggestions, ", "))
}

func (e *LocationNotFoundError) Is(target error) bool { return target == ErrLocationNotFound }

// minReverseMatch is the shortest input allowed to match as a substring of
// a catalog key.
const minReverseMatch = 3

const maxSuggestions = 5

type catalogKey struct {
	key  string
	norm string
}

// LocationResolver maps free text onto catalog location keys.
type LocationResolver struct {
	keys        []catalogKey // longest-first
	suggestions []string
}

func NewLocationResolver(c *shard.Catalog) *LocationResolver {
	r := &LocationResolver{}
	for _, k := range c.Keys() {
		r.keys = append(r.keys, catalogKey{key: k, norm: normalizeLocation(k)})
	}
	for _, loc := range c.Locations() {
		if len(r.suggestions) == maxSuggestions {
			break
		}
		r.suggestions = append(r.suggestions, loc.Name)
	}
	return r
}

// Resolve returns the catalog key for input: exact match first, then
// substring containment in either direction, longest key first.
func (r *LocationResolver) Resolve(input string) (string, error) {
	q := strings.ToLower(strings.TrimSpace(input))
	if dec, err := url.QueryUnescape(q); err == nil {
		q = dec
	}
	q = normalizeLocation(stripStateQualifier(q))
	if q == "" {
		return "", r.notFound(input)
	}
	for _, k := range r.keys {
		if k.norm == q {
			return k.key, nil
		}
	}
	for _, k := range r.keys {
		if strings.Contains(q, k.norm) {
			return k.key, nil
		}
		if len(q) >= minReverseMatch && strings.Contains(k.norm, q) {
			return k.key, nil
		}
	}
	return "", r.notFound(input)
}

func (r *LocationResolver) notFound(input string) error {
	return &LocationNotFoundError{Input: input, Suggestions: append([]string(nil), r.suggestions...)}
}

// stripStateQualifier drops one trailing ", <state>" when the last segment
// is a US state name or abbreviation.
func stripStateQualifier(s string) string {
	i := strings.LastIndex(s, ",")
	if i < 0 {
		return s
	}
	tail := strings.ToUpper(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s[i+1:]), ".")))
	if isState(tail) {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// normalizeLocation folds hyphens, underscores and punctuation to single spaces.
func normalizeLocation(s string) string {
	return strings.ToLower(collapseSpaces(rePunct.ReplaceAllString(s, " ")))
}
