package shard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrPayloadShape is returned when a shard body is neither an array nor an
// object wrapping one under a conventional field.
var ErrPayloadShape = errors.New("shard payload is not an array")

// wrapperFields are the object fields a shard array may be nested under.
var wrapperFields = []string{"results", "listings", "properties", "props", "data", "items"}

var reNumber = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// flexNumber accepts a JSON number or a numeric string such as "$1,250,000"
// or "3 bd". ok is false when neither yields a number.
type flexNumber struct {
	val float64
	ok  bool
}

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	*n = flexNumber{}
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if v, ok := parseLooseNumber(s); ok {
			*n = flexNumber{val: v, ok: true}
		}
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		// booleans, objects and arrays are not numbers; treat as absent
		return nil
	}
	v, err := num.Float64()
	if err != nil {
		return nil
	}
	*n = flexNumber{val: v, ok: true}
	return nil
}

func (n flexNumber) ptr() *float64 {
	if !n.ok {
		return nil
	}
	v := n.val
	return &v
}

func parseLooseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	m := reNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parsePriceText(s string) Price {
	if v, ok := parseLooseNumber(s); ok && v > 0 {
		return Price{Amount: v}
	}
	return Price{OnRequest: true}
}

// imageKind tags which raw shape produced a record's primary image.
type imageKind int

const (
	imageNone imageKind = iota
	imageDirect
	imagePhotoHref
	imagePhotoString
	imageGallery
)

type imageSource struct {
	kind imageKind
	url  string
}

// addressKind tags whether the raw address was one flat line or an object.
type addressKind int

const (
	addressAbsent addressKind = iota
	addressFlat
	addressStructured
)

type addressSource struct {
	kind   addressKind
	street string
	city   string
	region string
	postal string
}

// rawRecord is the ingestion boundary: every duck-typed field is inspected
// here exactly once and never again after transform.
type rawRecord map[string]json.RawMessage

func (r rawRecord) str(keys ...string) string {
	for _, k := range keys {
		b, ok := r[k]
		if !ok {
			continue
		}
		if s := rawString(b); s != "" {
			return s
		}
	}
	return ""
}

func (r rawRecord) num(keys ...string) flexNumber {
	for _, k := range keys {
		b, ok := r[k]
		if !ok {
			continue
		}
		var n flexNumber
		_ = json.Unmarshal(b, &n)
		if n.ok {
			return n
		}
	}
	return flexNumber{}
}

// rawString returns a string for JSON strings and numbers, "" otherwise.
func rawString(b json.RawMessage) string {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return ""
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case '{', '[', 't', 'f':
		return ""
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return ""
	}
	return num.String()
}

func asObject(b json.RawMessage) (rawRecord, bool) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return nil, false
	}
	var obj rawRecord
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func asArray(b json.RawMessage) ([]json.RawMessage, bool) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '[' {
		return nil, false
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(b, &arr); err != nil {
		return nil, false
	}
	return arr, true
}

// hrefOf accepts a bare URL string or an object carrying href/url/src.
func hrefOf(b json.RawMessage) string {
	if s := rawString(b); s != "" {
		return s
	}
	if obj, ok := asObject(b); ok {
		return obj.str("href", "url", "src")
	}
	return ""
}

func (r rawRecord) image() imageSource {
	for _, k := range []string{"image", "imgSrc", "image_url", "imageUrl", "thumbnail"} {
		if b, ok := r[k]; ok {
			if u := hrefOf(b); u != "" {
				return imageSource{kind: imageDirect, url: u}
			}
		}
	}
	if photos, ok := asArray(r["photos"]); ok && len(photos) > 0 {
		if obj, ok := asObject(photos[0]); ok {
			if u := obj.str("href", "url"); u != "" {
				return imageSource{kind: imagePhotoHref, url: u}
			}
		}
		if u := rawString(photos[0]); u != "" {
			return imageSource{kind: imagePhotoString, url: u}
		}
	}
	if images, ok := asArray(r["images"]); ok && len(images) > 0 {
		if u := hrefOf(images[0]); u != "" {
			return imageSource{kind: imageGallery, url: u}
		}
	}
	return imageSource{}
}

func (r rawRecord) address() addressSource {
	b := r["address"]
	if obj, ok := asObject(b); ok {
		return addressSource{
			kind:   addressStructured,
			street: obj.str("streetAddress", "street", "line1", "line"),
			city:   obj.str("city", "locality"),
			region: obj.str("state", "region"),
			postal: obj.str("zipcode", "postalCode", "postal_code", "zip", "postal1"),
		}
	}
	flat := addressSource{
		street: r.str("streetAddress", "street"),
		city:   r.str("city", "addressCity"),
		region: r.str("state", "region", "addressState"),
		postal: r.str("zipcode", "postalCode", "postal_code", "zip", "addressZipcode"),
	}
	if s := rawString(b); s != "" {
		flat.kind = addressFlat
		if flat.street == "" {
			flat.street = firstSegment(s)
		}
		return flat
	}
	if flat.street != "" || flat.city != "" {
		flat.kind = addressFlat
	}
	return flat
}

func firstSegment(s string) string {
	if i := strings.Index(s, ","); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

func (r rawRecord) coords() (lat, lng *float64) {
	if la, lo := r.num("latitude", "lat"), r.num("longitude", "lng", "lon"); la.ok && lo.ok {
		return la.ptr(), lo.ptr()
	}
	for _, k := range []string{"latLong", "coordinates", "coords", "location"} {
		obj, ok := asObject(r[k])
		if !ok {
			continue
		}
		la, lo := obj.num("latitude", "lat"), obj.num("longitude", "lng", "lon")
		if la.ok && lo.ok {
			return la.ptr(), lo.ptr()
		}
	}
	return nil, nil
}

func (r rawRecord) price() Price {
	for _, k := range []string{"price", "unformattedPrice", "listPrice", "rent"} {
		b, ok := r[k]
		if !ok {
			continue
		}
		if obj, ok := asObject(b); ok {
			if n := obj.num("value", "amount"); n.ok && n.val > 0 {
				return Price{Amount: n.val}
			}
			continue
		}
		var n flexNumber
		_ = json.Unmarshal(b, &n)
		if n.ok && n.val > 0 {
			return Price{Amount: n.val}
		}
	}
	return Price{OnRequest: true}
}

// DecodePayload splits a shard body into raw elements. A bare array and an
// object wrapping an array under one of the wrapper fields are accepted.
func DecodePayload(body []byte) ([]json.RawMessage, error) {
	if arr, ok := asArray(body); ok {
		return arr, nil
	}
	obj, ok := asObject(body)
	if !ok {
		return nil, ErrPayloadShape
	}
	for _, f := range wrapperFields {
		if arr, ok := asArray(obj[f]); ok {
			return arr, nil
		}
	}
	return nil, ErrPayloadShape
}

// Transform converts a shard body into canonical records. Category comes
// from the request and city/region are backfilled from the catalog location.
func Transform(body []byte, cat Category, loc Location) ([]PropertyRecord, error) {
	elems, err := DecodePayload(body)
	if err != nil {
		return nil, err
	}
	out := make([]PropertyRecord, 0, len(elems))
	for i, el := range elems {
		raw, ok := asObject(el)
		if !ok {
			continue
		}
		rec := transformOne(raw, el, i, cat, loc)
		rec.Ordinal = len(out)
		out = append(out, rec)
	}
	return out, nil
}

func transformOne(raw rawRecord, payload json.RawMessage, idx int, cat Category, loc Location) PropertyRecord {
	native := raw.str("id", "zpid", "listingId", "listing_id", "property_id", "propertyId")
	addr := raw.address()
	img := raw.image()
	lat, lng := raw.coords()

	rec := PropertyRecord{
		NativeID:   native,
		Key:        native,
		Category:   cat,
		Street:     addr.street,
		City:       nonEmpty(addr.city, loc.City),
		Region:     nonEmpty(addr.region, loc.State),
		PostalCode: addr.postal,
		Price:      raw.price(),
		Bedrooms:   raw.num("bedrooms", "beds").ptr(),
		Bathrooms:  raw.num("bathrooms", "baths").ptr(),
		Area:       raw.num("livingArea", "area", "sqft", "size").ptr(),
		ImageURL:   upgradePhotoURL(img.url),
		Latitude:   lat,
		Longitude:  lng,
		Location:   loc.Key,
		Source:     SourceShard,
		Raw:        append(json.RawMessage(nil), payload...),
	}
	if rec.Key == "" {
		rec.Key = FallbackKey(cat, loc.Key, idx)
	}
	return rec
}

// FallbackKey is the positional key for records without a native id.
func FallbackKey(cat Category, location string, idx int) string {
	return fmt.Sprintf("%s-%s-%d", cat, location, idx)
}

func nonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
