package shard

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var miamiLoc = Location{Key: "miami", Name: "Miami", City: "Miami", State: "FL"}

func TestDecodePayload(t *testing.T) {
	t.Run("bare array", func(t *testing.T) {
		elems, err := DecodePayload([]byte(`[{"id":1},{"id":2}]`))
		require.NoError(t, err)
		assert.Len(t, elems, 2)
	})

	t.Run("wrapped array", func(t *testing.T) {
		elems, err := DecodePayload([]byte(`{"meta":{"n":1},"results":[{"id":1}]}`))
		require.NoError(t, err)
		assert.Len(t, elems, 1)
	})

	t.Run("empty array is valid", func(t *testing.T) {
		elems, err := DecodePayload([]byte(` [] `))
		require.NoError(t, err)
		assert.Empty(t, elems)
	})

	t.Run("object without array", func(t *testing.T) {
		_, err := DecodePayload([]byte(`{"results":"nope"}`))
		assert.ErrorIs(t, err, ErrPayloadShape)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := DecodePayload([]byte(`<html>`))
		assert.ErrorIs(t, err, ErrPayloadShape)
	})
}

func TestTransformImagePriority(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		kind imageKind
		want string
	}{
		{"direct string", `{"imgSrc":"https://img/a.jpg","photos":[{"href":"https://img/b.jpg"}]}`, imageDirect, "https://img/a.jpg"},
		{"direct object", `{"image":{"href":"https://img/o.jpg"}}`, imageDirect, "https://img/o.jpg"},
		{"photo href", `{"photos":[{"href":"https://img/b.jpg"},{"href":"https://img/c.jpg"}],"images":["https://img/d.jpg"]}`, imagePhotoHref, "https://img/b.jpg"},
		{"photo string", `{"photos":["https://img/s.jpg"]}`, imagePhotoString, "https://img/s.jpg"},
		{"images array", `{"images":["https://img/d.jpg","https://img/e.jpg"]}`, imageGallery, "https://img/d.jpg"},
		{"none", `{"photos":[]}`, imageNone, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var raw rawRecord
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &raw))
			img := raw.image()
			assert.Equal(t, tc.kind, img.kind)
			assert.Equal(t, tc.want, img.url)
		})
	}
}

func TestTransformUpgradesPhotoSize(t *testing.T) {
	recs, err := Transform([]byte(`[{"id":"a","imgSrc":"//cdn/x-w480_h360.jpg"}]`), Sale, miamiLoc)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "https://cdn/x-w2048_h1536.jpg", recs[0].ImageURL)
}

func TestTransformBackfillsAndCoords(t *testing.T) {
	body := []byte(`{"props":[
		{"zpid": 123, "address": {"streetAddress": "1 Ocean Dr", "zipcode": "33139"}, "price": "$1,250,000", "bedrooms": 3, "bathrooms": "2", "livingArea": 1800, "latLong": {"latitude": 25.7, "longitude": -80.1}},
		{"address": "22 Bay Rd, Miami, FL", "city": "Coral Gables", "price": "Contact agent", "latitude": 25.1, "longitude": -80.3, "category": "lease"},
		"garbage"
	]}`)
	recs, err := Transform(body, Sale, miamiLoc)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 0, recs[0].Ordinal)
	assert.Equal(t, 1, recs[1].Ordinal)

	first := recs[0]
	assert.Equal(t, "123", first.Key)
	assert.Equal(t, "123", first.NativeID)
	assert.Equal(t, Sale, first.Category)
	assert.Equal(t, "1 Ocean Dr", first.Street)
	assert.Equal(t, "Miami", first.City)
	assert.Equal(t, "FL", first.Region)
	assert.Equal(t, "33139", first.PostalCode)
	assert.Equal(t, Price{Amount: 1250000}, first.Price)
	require.NotNil(t, first.Bedrooms)
	assert.Equal(t, 3.0, *first.Bedrooms)
	require.NotNil(t, first.Bathrooms)
	assert.Equal(t, 2.0, *first.Bathrooms)
	require.NotNil(t, first.Latitude)
	assert.InDelta(t, 25.7, *first.Latitude, 1e-9)
	assert.Equal(t, "miami", first.Location)
	assert.Equal(t, SourceShard, first.Source)
	assert.JSONEq(t, `{"zpid": 123, "address": {"streetAddress": "1 Ocean Dr", "zipcode": "33139"}, "price": "$1,250,000", "bedrooms": 3, "bathrooms": "2", "livingArea": 1800, "latLong": {"latitude": 25.7, "longitude": -80.1}}`, string(first.Raw))

	second := recs[1]
	assert.Equal(t, FallbackKey(Sale, "miami", 1), second.Key)
	assert.Empty(t, second.NativeID)
	assert.Equal(t, Sale, second.Category, "category comes from the request")
	assert.Equal(t, "22 Bay Rd", second.Street)
	assert.Equal(t, "Coral Gables", second.City)
	assert.True(t, second.Price.OnRequest)
	assert.Nil(t, second.Bedrooms)
	require.NotNil(t, second.Longitude)
	assert.InDelta(t, -80.3, *second.Longitude, 1e-9)
}

func TestPriceJSON(t *testing.T) {
	b, err := json.Marshal(Price{OnRequest: true})
	require.NoError(t, err)
	assert.Equal(t, `"on request"`, string(b))

	b, err = json.Marshal(Price{Amount: 4200})
	require.NoError(t, err)
	assert.Equal(t, `4200`, string(b))

	var p Price
	require.NoError(t, json.Unmarshal([]byte(`"on request"`), &p))
	assert.True(t, p.OnRequest)
	require.NoError(t, json.Unmarshal([]byte(`950000`), &p))
	assert.Equal(t, Price{Amount: 950000}, p)
}

func TestParseCategory(t *testing.T) {
	c, ok := ParseCategory("rent")
	assert.True(t, ok)
	assert.Equal(t, Lease, c)
	assert.Equal(t, Sale, c.Sibling())
	_, ok = ParseCategory("auction")
	assert.False(t, ok)
}
