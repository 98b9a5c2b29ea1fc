// Package gag holds gag definitions and the set of gags a wearer currently
// has equipped.
//
// A [Definition] maps phonetic symbols to the sound a gag lets through and a
// muffle level used to rank gags against each other. Definitions are grouped
// in a read-only [Catalog], loaded once from configuration. An [ActiveSet] is
// an immutable snapshot of the equipped gags resolved against a catalog;
// callers replace the whole snapshot instead of mutating it.
package gag

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrEmptyCatalog is returned when a catalog file defines no gags.
var ErrEmptyCatalog = errors.New("gag: catalog defines no gags")

// Phoneme is the replacement a gag produces for one phonetic symbol.
type Phoneme struct {
	// Sound is the text emitted in place of the symbol. May be empty to drop
	// the symbol entirely.
	Sound string `yaml:"sound" json:"sound"`

	// Muffle ranks this replacement against other gags defining the same
	// symbol; the highest wins.
	Muffle int `yaml:"muffle" json:"muffle"`
}

// Definition describes one gag.
type Definition struct {
	Name       string             `yaml:"name" json:"name"`
	MouthState MouthState         `yaml:"mouth_state" json:"mouth_state"`
	Phonemes   map[string]Phoneme `yaml:"phonemes" json:"phonemes"`
}

// Validate checks that d can be used in a catalog.
func (d *Definition) Validate() error {
	var errs []error
	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if strings.EqualFold(strings.TrimSpace(d.Name), "none") {
		errs = append(errs, errors.New(`name "None" is reserved for the empty slot`))
	}
	if !d.MouthState.IsValid() {
		errs = append(errs, fmt.Errorf("mouth_state %s is invalid", d.MouthState))
	}
	for sym, p := range d.Phonemes {
		if sym == "" {
			errs = append(errs, errors.New("phoneme symbol must not be empty"))
		}
		if p.Muffle < 0 {
			errs = append(errs, fmt.Errorf("phoneme %q: muffle %d must not be negative", sym, p.Muffle))
		}
	}
	return errors.Join(errs...)
}

// Catalog is an immutable, case-insensitive lookup of gag definitions.
// It is safe for concurrent use.
type Catalog struct {
	gags  map[string]*Definition // lower-case name -> definition
	order []string               // display names in definition order
}

// NewCatalog builds a catalog from defs. Every definition is validated and
// names must be unique ignoring case.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{gags: make(map[string]*Definition, len(defs))}
	var errs []error
	for i := range defs {
		d := defs[i]
		d.Name = strings.TrimSpace(d.Name)
		if err := d.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("gags[%d] %q: %w", i, d.Name, err))
			continue
		}
		key := strings.ToLower(d.Name)
		if _, dup := c.gags[key]; dup {
			errs = append(errs, fmt.Errorf("gags[%d] %q: duplicate name", i, d.Name))
			continue
		}
		d.Phonemes = normalizeSymbols(d.Phonemes)
		c.gags[key] = &d
		c.order = append(c.order, d.Name)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("gag: invalid catalog: %w", err)
	}
	return c, nil
}

// Lookup returns the definition named name, ignoring case and surrounding
// whitespace.
func (c *Catalog) Lookup(name string) (*Definition, bool) {
	if c == nil {
		return nil, false
	}
	d, ok := c.gags[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// Names returns the display names of all gags in definition order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	return slices.Clone(c.order)
}

// Len returns the number of gags in the catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.gags)
}

// normalizeSymbols returns a copy of phonemes keyed by NFC-composed symbols so
// they compare equal to dictionary output regardless of how the catalog file
// was encoded.
func normalizeSymbols(phonemes map[string]Phoneme) map[string]Phoneme {
	out := make(map[string]Phoneme, len(phonemes))
	for sym, p := range phonemes {
		out[norm.NFC.String(sym)] = p
	}
	return out
}
