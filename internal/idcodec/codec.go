// Package idcodec mints and parses the opaque property identifiers embedded
// in shareable URLs. Decoding is a pure parse and never touches cache or
// network.
package idcodec

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/yourorg/listing-api/shard"
)

const sep = "_"

// durablePrefix marks identifiers minted for durable-store records.
const durablePrefix = "rec" + sep

var ErrMalformed = errors.New("malformed property identifier")

// Hint is the resolution hint carried by a shard identifier. Ordinal is the
// record's index in the stored shard when the id was minted and may be stale.
type Hint struct {
	Category shard.Category
	Location string
	Ordinal  int
}

// Encode builds "<category>_<location>_<ordinal>". The location is
// path-escaped so free text survives a round trip through a URL. Decode
// accepts the result only for a known category, a non-empty location and
// ordinal >= 0; use Mint when the inputs are not already known to be valid.
func Encode(cat shard.Category, location string, ordinal int) string {
	return string(cat) + sep + url.PathEscape(location) + sep + strconv.Itoa(ordinal)
}

// Mint is Encode for unchecked input: it rejects anything Decode would.
func Mint(cat shard.Category, location string, ordinal int) (string, error) {
	switch {
	case !cat.Valid():
		return "", fmt.Errorf("%w: unknown category %q", ErrMalformed, cat)
	case location == "":
		return "", fmt.Errorf("%w: empty location", ErrMalformed)
	case ordinal < 0:
		return "", fmt.Errorf("%w: negative ordinal %d", ErrMalformed, ordinal)
	}
	return Encode(cat, location, ordinal), nil
}

// Decode parses an identifier produced by Encode. Location may itself
// contain the separator; category and ordinal never do.
func Decode(id string) (Hint, error) {
	first := strings.Index(id, sep)
	last := strings.LastIndex(id, sep)
	if first < 0 || last <= first {
		return Hint{}, ErrMalformed
	}
	cat := shard.Category(id[:first])
	if !cat.Valid() {
		return Hint{}, ErrMalformed
	}
	loc, err := url.PathUnescape(id[first+1 : last])
	if err != nil || loc == "" {
		return Hint{}, ErrMalformed
	}
	ordStr := id[last+1:]
	if ordStr == "" || strings.HasPrefix(ordStr, "+") || strings.HasPrefix(ordStr, "-") {
		return Hint{}, ErrMalformed
	}
	n, err := strconv.Atoi(ordStr)
	if err != nil || n < 0 {
		return Hint{}, ErrMalformed
	}
	return Hint{Category: cat, Location: loc, Ordinal: n}, nil
}

// EncodeDurable builds the identifier of a record held by the durable store.
func EncodeDurable(primaryID string) string {
	return durablePrefix + url.PathEscape(primaryID)
}

// DecodeDurable reports the primary id of a durable identifier.
func DecodeDurable(id string) (string, bool) {
	if !strings.HasPrefix(id, durablePrefix) {
		return "", false
	}
	pid, err := url.PathUnescape(strings.TrimPrefix(id, durablePrefix))
	if err != nil || pid == "" {
		return "", false
	}
	return pid, true
}
