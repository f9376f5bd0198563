package idcodec

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/listing-api/shard"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	locs := []string{"miami", "miami-beach", "new_york", "Miami Beach, FL", "a_b_c", "100%", "é/ü?#&", "_", "__"}
	for _, cat := range shard.Categories {
		for _, loc := range locs {
			for _, n := range []int{0, 1, 42, 1 << 20} {
				id := Encode(cat, loc, n)
				h, err := Decode(id)
				require.NoError(t, err, id)
				assert.Equal(t, Hint{Category: cat, Location: loc, Ordinal: n}, h, id)
			}
		}
	}
}

func TestRoundTripRandomLocations(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	alphabet := []rune("abc_-% /?#é+.,:;")
	for i := 0; i < 500; i++ {
		var b strings.Builder
		for j := 0; j < 1+rng.Intn(12); j++ {
			b.WriteRune(alphabet[rng.Intn(len(alphabet))])
		}
		cat := shard.Categories[rng.Intn(2)]
		n := rng.Intn(10000)
		h, err := Decode(Encode(cat, b.String(), n))
		require.NoError(t, err)
		assert.Equal(t, Hint{Category: cat, Location: b.String(), Ordinal: n}, h)
	}
}

func TestEncodeIsURLSafe(t *testing.T) {
	id := Encode(shard.Sale, "Miami Beach, FL", 3)
	assert.NotContains(t, id, " ")
	assert.NotContains(t, id, "/")
	assert.Equal(t, "sale_miami-beach_42", Encode(shard.Sale, "miami-beach", 42))
}

func TestMintRejectsWhatDecodeRejects(t *testing.T) {
	id, err := Mint(shard.Lease, "new-york", 7)
	require.NoError(t, err)
	assert.Equal(t, "lease_new-york_7", id)

	for _, c := range []struct {
		cat shard.Category
		loc string
		n   int
	}{
		{shard.Sale, "miami", -1},
		{shard.Sale, "", 0},
		{"auction", "miami", 0},
	} {
		_, err := Mint(c.cat, c.loc, c.n)
		assert.ErrorIs(t, err, ErrMalformed, "%+v", c)
		_, err = Decode(Encode(c.cat, c.loc, c.n))
		assert.ErrorIs(t, err, ErrMalformed, "%+v", c)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, id := range []string{
		"",
		"_",
		"__",
		"sale",
		"sale_",
		"sale_miami",
		"sale__1",
		"auction_miami_1",
		"sale_miami_",
		"sale_miami_-1",
		"sale_miami_+1",
		"sale_miami_x",
		"sale_miami_1.5",
		"sale_%zz_1",
		"sale_miami_99999999999999999999999",
		"rec_abc",
	} {
		_, err := Decode(id)
		assert.ErrorIs(t, err, ErrMalformed, id)
	}
}

func TestDurable(t *testing.T) {
	id := EncodeDurable("2b1e6a0c-0000-4000-8000-000000000001")
	pid, ok := DecodeDurable(id)
	require.True(t, ok)
	assert.Equal(t, "2b1e6a0c-0000-4000-8000-000000000001", pid)

	_, ok = DecodeDurable("sale_miami_1")
	assert.False(t, ok)
	_, ok = DecodeDurable("rec_")
	assert.False(t, ok)
}

func FuzzDecode(f *testing.F) {
	for _, seed := range []string{"", "sale_miami_42", "lease_a_b_c_0", "___", "sale_%_1", "rec_x"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, id string) {
		h, err := Decode(id)
		if err != nil {
			return
		}
		if !h.Category.Valid() || h.Location == "" || h.Ordinal < 0 {
			t.Fatalf("decode accepted invalid hint %+v from %q", h, id)
		}
	})
}
