package codec

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/coreos/go-systemd/v22/unit"
)

// SystemdCodec handles systemd unit files
type SystemdCodec struct{}

// NewSystemdCodec creates a codec for systemd unit files
func NewSystemdCodec() *SystemdCodec {
	return &SystemdCodec{}
}

// Format returns the codec format identifier
func (c *SystemdCodec) Format() string {
	return "systemd"
}

// Encode writes the comment header, a blank line, then the unit's sections
func (c *SystemdCodec) Encode(doc Document, w io.Writer) error {
	var opts []*unit.UnitOption
	for _, s := range doc.Sections {
		if s.Name == "" {
			return fmt.Errorf("systemd: section without a name")
		}
		for _, e := range s.Entries {
			if e.Key == "" || strings.ContainsAny(e.Key, "=\n") || strings.Contains(e.Value, "\n") {
				return fmt.Errorf("systemd: invalid entry %q in [%s]", e.Key, s.Name)
			}
			opts = append(opts, unit.NewUnitOption(s.Name, e.Key, e.Value))
		}
	}

	bw := bufio.NewWriter(w)
	writeComments(bw, doc.Comments)
	if _, err := io.Copy(bw, unit.Serialize(opts)); err != nil {
		return fmt.Errorf("failed to write systemd unit: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write systemd unit: %w", err)
	}
	return nil
}

// Decode parses a unit file, keeping repeated options in order
func (c *SystemdCodec) Decode(r io.Reader) (Document, error) {
	var doc Document
	opts, err := unit.DeserializeOptions(r)
	if err != nil {
		return doc, fmt.Errorf("failed to parse systemd unit: %w", err)
	}
	for _, o := range opts {
		doc.Add(o.Section, o.Name, o.Value)
	}
	return doc, nil
}

// writeComments writes "# " lines followed by a blank line
func writeComments(w *bufio.Writer, comments []string) {
	for _, line := range comments {
		w.WriteString("# " + line + "\n")
	}
	if len(comments) > 0 {
		w.WriteString("\n")
	}
}
