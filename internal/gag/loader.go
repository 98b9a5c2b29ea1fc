package gag

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// CatalogFile is the on-disk layout of a gag catalog. JSON files with the same
// shape are accepted as well.
//
// Example:
//
//	gags:
//	  - name: Ball Gag
//	    mouth_state: full
//	    phonemes:
//	      h: {sound: "m", muffle: 3}
//	      ɛ: {sound: "mh", muffle: 2}
type CatalogFile struct {
	Gags []Definition `yaml:"gags"`
}

// LoadCatalog reads and parses a catalog file from disk.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gag: open catalog %q: %w", path, err)
	}
	defer f.Close()

	c, err := ReadCatalog(f)
	if err != nil {
		return nil, fmt.Errorf("gag: parse catalog %q: %w", path, err)
	}
	return c, nil
}

// ReadCatalog parses a catalog from r. Unknown keys are rejected to catch
// typos in hand-written files.
func ReadCatalog(r io.Reader) (*Catalog, error) {
	var cf CatalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyCatalog
		}
		return nil, fmt.Errorf("gag: decode catalog: %w", err)
	}
	if len(cf.Gags) == 0 {
		return nil, ErrEmptyCatalog
	}
	return NewCatalog(cf.Gags...)
}
