package codec

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// FlatCodec handles the capture daemon's section-less config format, where
// keys may repeat (one source= line per capture source)
type FlatCodec struct{}

// NewFlatCodec creates a new flat config codec
func NewFlatCodec() *FlatCodec {
	return &FlatCodec{}
}

// Format returns the codec format identifier
func (c *FlatCodec) Format() string {
	return "kismet-conf"
}

// Encode writes comments then the unnamed section's entries
func (c *FlatCodec) Encode(doc Document, w io.Writer) error {
	bw := bufio.NewWriter(w)

	for _, line := range doc.Comments {
		fmt.Fprintf(bw, "# %s\n", line)
	}
	for _, s := range doc.Sections {
		if s.Name != "" {
			return fmt.Errorf("kismet-conf: sections are not supported (%q)", s.Name)
		}
		for _, e := range s.Entries {
			fmt.Fprintf(bw, "%s=%s\n", e.Key, e.Value)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write kismet-conf: %w", err)
	}
	return nil
}

// Decode parses key=value lines into the unnamed section
func (c *FlatCodec) Decode(r io.Reader) (Document, error) {
	var doc Document

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		doc.Add("", strings.TrimSpace(key), strings.TrimSpace(value))
	}

	if err := scanner.Err(); err != nil {
		return doc, fmt.Errorf("failed to parse kismet-conf: %w", err)
	}
	return doc, nil
}
