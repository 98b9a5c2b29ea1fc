package phonetic

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Format selects the on-disk encoding of a dictionary file.
type Format int

const (
	// FormatMapping is a JSON or YAML object of word -> notation. A value may
	// also be a list of notations, in which case the first one is used.
	FormatMapping Format = iota

	// FormatLines is one entry per line, word and notation separated by a tab
	// or by two spaces. Lines starting with '#' or ";;;" are comments.
	FormatLines
)

// FormatForPath picks a [Format] from the file extension. .json, .yaml and
// .yml are mappings; everything else is read as lines.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return FormatMapping
	default:
		return FormatLines
	}
}

// ReadDictionary decodes a dictionary from r.
func ReadDictionary(r io.Reader, format Format) (*Dictionary, error) {
	switch format {
	case FormatMapping:
		return readMapping(r)
	case FormatLines:
		return readLines(r)
	default:
		return nil, fmt.Errorf("phonetic: unknown dictionary format %d", format)
	}
}

func readMapping(r io.Reader) (*Dictionary, error) {
	var raw map[string]any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return NewDictionary(nil), nil
		}
		return nil, fmt.Errorf("phonetic: decode dictionary: %w", err)
	}
	entries := make(map[string]string, len(raw))
	for word, v := range raw {
		switch n := v.(type) {
		case string:
			entries[word] = n
		case []any:
			if len(n) == 0 {
				continue
			}
			if s, ok := n[0].(string); ok {
				entries[word] = s
			}
		}
	}
	return NewDictionary(entries), nil
}

func readLines(r io.Reader) (*Dictionary, error) {
	entries := make(map[string]string)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";;;") {
			continue
		}
		word, notation, ok := strings.Cut(line, "\t")
		if !ok {
			word, notation, ok = strings.Cut(line, "  ")
		}
		if !ok {
			continue
		}
		word = strings.TrimSpace(word)
		if _, dup := entries[strings.ToLower(word)]; dup {
			continue
		}
		entries[strings.ToLower(word)] = strings.TrimSpace(notation)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("phonetic: read dictionary: %w", err)
	}
	return NewDictionary(entries), nil
}

// LoadDictionary reads the dictionary file at path, choosing the format from
// its extension.
func LoadDictionary(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("phonetic: open %q: %w", path, err)
	}
	defer f.Close()

	d, err := ReadDictionary(f, FormatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("phonetic: parse %q: %w", path, err)
	}
	return d, nil
}

// LoadDictionaries loads one dictionary per dialect concurrently. paths maps
// dialect name to file path.
//
// A dictionary that cannot be opened or parsed is replaced by an empty one
// and the failure is logged: every word of that dialect then goes through
// fallback obfuscation instead of aborting startup. The returned error is
// non-nil only when ctx is cancelled.
func LoadDictionaries(ctx context.Context, paths map[string]string) (map[string]*Dictionary, error) {
	var (
		mu  sync.Mutex
		out = make(map[string]*Dictionary, len(paths))
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for dialect, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			d, err := LoadDictionary(path)
			if err != nil {
				slog.Warn("phonetic: dictionary unavailable, using empty dictionary",
					"dialect", dialect,
					"path", path,
					"err", err,
				)
				d = NewDictionary(nil)
			}
			mu.Lock()
			out[dialect] = d
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("phonetic: load dictionaries: %w", err)
	}
	return out, nil
}
