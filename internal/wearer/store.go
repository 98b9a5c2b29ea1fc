// Package wearer keeps track of who is wearing which gags.
//
// A [Registry] owns one [garble.Engine] per wearer and mirrors every change
// to a [Store], so equipped gags survive restarts. Wearer IDs are opaque
// strings chosen by the caller: a Discord user ID, a character name, a
// websocket client handle.
package wearer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/gagspeak/internal/gag"
)

// MaxGags is the number of gag slots a wearer has.
const MaxGags = 3

var (
	// ErrNotFound is returned for wearers with nothing equipped.
	ErrNotFound = errors.New("wearer: not found")

	// ErrUnknownGag is returned when equipping a gag the catalog does not
	// define.
	ErrUnknownGag = errors.New("wearer: unknown gag")

	// ErrInvalidLoadout wraps every [Loadout.Validate] failure.
	ErrInvalidLoadout = errors.New("wearer: invalid loadout")
)

// Loadout is the persisted state of one wearer.
type Loadout struct {
	WearerID   string         `json:"wearer_id"`
	Gags       []string       `json:"gags"`
	MouthState gag.MouthState `json:"mouth_state"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Validate checks the loadout shape. It does not consult the catalog.
func (l *Loadout) Validate() error {
	var errs []error
	if strings.TrimSpace(l.WearerID) == "" {
		errs = append(errs, errors.New("wearer_id is required"))
	}
	if len(l.Gags) > MaxGags {
		errs = append(errs, fmt.Errorf("at most %d gags may be equipped, got %d", MaxGags, len(l.Gags)))
	}
	if !l.MouthState.IsValid() {
		errs = append(errs, fmt.Errorf("mouth_state %s is invalid", l.MouthState))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLoadout, err)
	}
	return nil
}

// Store persists loadouts. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the loadout of id, or (nil, nil) when none is stored.
	Get(ctx context.Context, id string) (*Loadout, error)

	// Put creates or replaces a loadout and sets its UpdatedAt.
	Put(ctx context.Context, l *Loadout) error

	// Delete removes the loadout of id. Deleting a missing loadout is not an
	// error.
	Delete(ctx context.Context, id string) error

	// List returns every stored loadout ordered by wearer ID.
	List(ctx context.Context) ([]Loadout, error)
}
