// Package codec renders and parses the small text formats the bootstrap
// generates: systemd units, desktop entries, NetworkManager keyfile
// snippets, the capture daemon's flat key=value config, shell environment
// helpers, and JSON audit records.
//
// Every encoder is deterministic: the same Document always produces the
// same bytes, which is what makes digest-based idempotent writes work.
package codec

import (
	"bytes"
	"io"
)

// Entry is one key=value line
type Entry struct {
	Key   string
	Value string
}

// Section is a named group of entries. An empty Name means the entries
// appear before any section header.
type Section struct {
	Name    string
	Entries []Entry
}

// Document is an ordered set of sections with optional leading comments
type Document struct {
	Comments []string
	Sections []Section
}

// Add appends an entry to the named section, creating the section if needed
func (d *Document) Add(section, key, value string) {
	for i := range d.Sections {
		if d.Sections[i].Name == section {
			d.Sections[i].Entries = append(d.Sections[i].Entries, Entry{Key: key, Value: value})
			return
		}
	}
	d.Sections = append(d.Sections, Section{Name: section, Entries: []Entry{{Key: key, Value: value}}})
}

// Get returns every value for key in the named section, in order
func (d *Document) Get(section, key string) []string {
	var values []string
	for _, s := range d.Sections {
		if s.Name != section {
			continue
		}
		for _, e := range s.Entries {
			if e.Key == key {
				values = append(values, e.Value)
			}
		}
	}
	return values
}

// Encoder renders a document to a writer
type Encoder interface {
	Encode(doc Document, w io.Writer) error
	Format() string
}

// Decoder parses a document from a reader
type Decoder interface {
	Decode(r io.Reader) (Document, error)
	Format() string
}

// Render encodes doc into a byte slice
func Render(enc Encoder, doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := enc.Encode(doc, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
