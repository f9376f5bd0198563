package shard

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Category partitions shards: a record is either for sale or for lease.
type Category string

const (
	Sale  Category = "sale"
	Lease Category = "lease"
)

// Categories lists every known listing category in catalog order.
var Categories = []Category{Sale, Lease}

// ParseCategory accepts the canonical names plus a couple of common aliases.
func ParseCategory(s string) (Category, bool) {
	switch s {
	case "sale", "buy", "for_sale":
		return Sale, true
	case "lease", "rent", "for_rent":
		return Lease, true
	}
	return "", false
}

func (c Category) Valid() bool { return c == Sale || c == Lease }

// Sibling returns the other category for the same location.
func (c Category) Sibling() Category {
	if c == Sale {
		return Lease
	}
	return Sale
}

// OnRequestLabel is the wire form of a price that is not disclosed.
const OnRequestLabel = "on request"

// Price is either a numeric amount or the "on request" sentinel.
type Price struct {
	Amount    float64
	OnRequest bool
}

func (p Price) MarshalJSON() ([]byte, error) {
	if p.OnRequest {
		return json.Marshal(OnRequestLabel)
	}
	return json.Marshal(p.Amount)
}

func (p *Price) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*p = Price{OnRequest: true}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = parsePriceText(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	*p = Price{Amount: f}
	return nil
}

func (p Price) String() string {
	if p.OnRequest {
		return OnRequestLabel
	}
	return strconv.FormatFloat(p.Amount, 'f', -1, 64)
}

// Source tags which subsystem produced a record.
const (
	SourceShard = "shard"
	SourceStore = "store"
)

// PropertyRecord is the canonical shape every raw payload is converted into.
// Records are never mutated after transform; reordering copies the slice.
type PropertyRecord struct {
	Key        string          `json:"key"`
	NativeID   string          `json:"native_id,omitempty"`
	Category   Category        `json:"category"`
	Street     string          `json:"street"`
	City       string          `json:"city"`
	Region     string          `json:"region"`
	PostalCode string          `json:"postal_code"`
	Price      Price           `json:"price"`
	Bedrooms   *float64        `json:"bedrooms,omitempty"`
	Bathrooms  *float64        `json:"bathrooms,omitempty"`
	Area       *float64        `json:"area,omitempty"`
	ImageURL   string          `json:"image_url,omitempty"`
	Latitude   *float64        `json:"latitude,omitempty"`
	Longitude  *float64        `json:"longitude,omitempty"`
	Location   string          `json:"location"` // catalog key of the originating shard
	Ordinal    int             `json:"ordinal"`  // index in the stored shard; shareable ids carry it
	Source     string          `json:"source"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// Address renders the one-line display address.
func (r PropertyRecord) Address() string {
	out := r.Street
	for _, part := range []string{r.City, r.Region} {
		if part == "" {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += part
	}
	if r.PostalCode != "" {
		out += " " + r.PostalCode
	}
	return out
}
