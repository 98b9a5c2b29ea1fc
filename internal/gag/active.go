package gag

import "slices"

// ActiveSet is an immutable snapshot of the gags a wearer has equipped,
// resolved against a [Catalog]. The zero value and the nil *ActiveSet are
// both empty.
type ActiveSet struct {
	gags  []*Definition
	mouth MouthState

	// requested keeps the caller's input so the set can be re-resolved
	// after the catalog is reloaded.
	requested      []string
	requestedMouth MouthState
}

// Resolve builds the active set for names. Names missing from catalog
// (including "None" and empty slots) are dropped silently, as are repeats of
// the same gag. Order follows names, which decides muffle-level ties.
//
// The combined mouth state is mouth together with every resolved gag's own
// state. When no gag resolves the set is empty and its mouth state is
// [MouthNone], whatever mouth was passed.
func Resolve(catalog *Catalog, names []string, mouth MouthState) *ActiveSet {
	s := &ActiveSet{
		requested:      slices.Clone(names),
		requestedMouth: mouth,
	}
	seen := make(map[*Definition]struct{}, len(names))
	for _, name := range names {
		d, ok := catalog.Lookup(name)
		if !ok {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		s.gags = append(s.gags, d)
		s.mouth |= d.MouthState
	}
	if len(s.gags) > 0 {
		s.mouth |= mouth
	}
	return s
}

// Reresolve resolves the names and mouth state originally passed to
// [Resolve] against catalog.
func (s *ActiveSet) Reresolve(catalog *Catalog) *ActiveSet {
	if s == nil {
		return Resolve(catalog, nil, MouthNone)
	}
	return Resolve(catalog, s.requested, s.requestedMouth)
}

// Empty reports whether no gag is equipped.
func (s *ActiveSet) Empty() bool {
	return s == nil || len(s.gags) == 0
}

// Gags returns the equipped definitions in priority order. The slice must
// not be modified.
func (s *ActiveSet) Gags() []*Definition {
	if s == nil {
		return nil
	}
	return s.gags
}

// Names returns the display names of the equipped gags.
func (s *ActiveSet) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.gags))
	for i, d := range s.gags {
		names[i] = d.Name
	}
	return names
}

// Requested returns the names the set was resolved from, including any that
// did not match the catalog.
func (s *ActiveSet) Requested() []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.requested)
}

// RequestedMouth returns the mouth state the caller passed to [Resolve].
func (s *ActiveSet) RequestedMouth() MouthState {
	if s == nil {
		return MouthNone
	}
	return s.requestedMouth
}

// Mouth returns the combined mouth state of the set.
func (s *ActiveSet) Mouth() MouthState {
	if s == nil {
		return MouthNone
	}
	return s.mouth
}

// Strongest returns the replacement for symbol from the equipped gag with the
// highest muffle level that defines it. On equal levels the gag equipped
// first wins. ok is false when no equipped gag defines symbol.
func (s *ActiveSet) Strongest(symbol string) (p Phoneme, ok bool) {
	if s == nil {
		return Phoneme{}, false
	}
	for _, d := range s.gags {
		cand, defined := d.Phonemes[symbol]
		if !defined {
			continue
		}
		if !ok || cand.Muffle > p.Muffle {
			p, ok = cand, true
		}
	}
	return p, ok
}
