package config

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/mckoi/mckoiddb/pkg/mckoierr"
)

// File is a parsed key=value configuration file (spec.md §6.1). Keys
// preserve the order they appeared in for reproducible dumps; lookups are
// case-sensitive, matching the literal key names §6.1 lists.
type File struct {
	order  []string
	values map[string]string
}

// Parse reads a key=value config file. Blank lines and lines whose first
// non-whitespace character is '#' are ignored. A malformed line (no '='
// outside of a comment) is a KindConfig error.
func Parse(r io.Reader) (*File, error) {
	f := &File{values: make(map[string]string)}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			return nil, mckoierr.New(mckoierr.KindConfig,
				fmt.Sprintf("line %d: expected key = value, got %q", lineNo, line))
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			return nil, mckoierr.New(mckoierr.KindConfig,
				fmt.Sprintf("line %d: empty key", lineNo))
		}
		if _, exists := f.values[key]; !exists {
			f.order = append(f.order, key)
		}
		f.values[key] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, mckoierr.Wrap(mckoierr.KindConfig, "reading config", err)
	}
	return f, nil
}

// Get returns the raw string value for key, and whether it was present.
func (f *File) Get(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Require returns the raw string value for key, or a KindConfig error if
// absent — for the required keys spec.md §6.1 lists (e.g.
// network_password).
func (f *File) Require(key string) (string, error) {
	v, ok := f.values[key]
	if !ok {
		return "", mckoierr.New(mckoierr.KindConfig, fmt.Sprintf("missing required key %q", key))
	}
	return v, nil
}

// GetDefault returns the value for key, or def if absent.
func (f *File) GetDefault(key, def string) string {
	if v, ok := f.values[key]; ok {
		return v
	}
	return def
}

// Keys returns the keys in file order, for reproducible dumps/tests.
func (f *File) Keys() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}
