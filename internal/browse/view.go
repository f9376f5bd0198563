// Package browse drives the list view for one session. When the user switches
// location or category before a load finishes, the older load's result is
// dropped so it can never overwrite the newer one.
package browse

import (
	"context"
	"errors"
	"sync"

	"github.com/yourorg/listing-api/internal/idcodec"
	"github.com/yourorg/listing-api/internal/session"
	"github.com/yourorg/listing-api/shard"
)

// ErrStale is returned to a load that was superseded while in flight.
var ErrStale = errors.New("browse: superseded by a newer request")

type Loader interface {
	Load(ctx context.Context, sess *session.Session, cat shard.Category, location string) ([]shard.PropertyRecord, error)
}

// Item is a record paired with the shareable id minted for it.
type Item struct {
	ID     string               `json:"id"`
	Record shard.PropertyRecord `json:"record"`
}

// State is the committed outcome of the latest request.
type State struct {
	Request  uint64         `json:"request"`
	Category shard.Category `json:"category"`
	Location string         `json:"location"`
	Items    []Item         `json:"items"`
	Err      error          `json:"-"`
}

type View struct {
	loader Loader
	sess   *session.Session

	mu     sync.Mutex
	latest uint64
	state  State
}

func NewView(loader Loader, sess *session.Session) *View {
	return &View{loader: loader, sess: sess}
}

// Load starts a request for (cat, location). Only the most recently started
// request commits its result or error; earlier ones get ErrStale.
func (v *View) Load(ctx context.Context, cat shard.Category, location string) (State, error) {
	v.mu.Lock()
	v.latest++
	req := v.latest
	v.mu.Unlock()

	recs, err := v.loader.Load(ctx, v.sess, cat, location)
	next := State{Request: req, Category: cat, Location: location, Err: err}
	if err == nil {
		next.Items = Items(cat, location, recs)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if req != v.latest {
		return State{}, ErrStale
	}
	v.state = next
	return next, err
}

func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Items mints an id for every record from its stored ordinal, so a link
// resolves the same for every session whatever order it was shown in.
func Items(cat shard.Category, location string, recs []shard.PropertyRecord) []Item {
	out := make([]Item, len(recs))
	for i, rec := range recs {
		out[i] = Item{ID: idcodec.Encode(cat, location, rec.Ordinal), Record: rec}
	}
	return out
}
