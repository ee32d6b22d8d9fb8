package codec

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"gopkg.in/ini.v1"
)

func init() {
	// key=value with no alignment padding
	ini.PrettyFormat = false
	ini.PrettyEqual = false
}

// IniCodec handles freedesktop desktop entries and NetworkManager keyfile
// snippets. Repeated keys are kept as shadows, and values are written and
// read verbatim, so Exec quoting and ';' separated lists survive.
type IniCodec struct {
	format string
}

// NewDesktopCodec creates a codec for .desktop entries
func NewDesktopCodec() *IniCodec {
	return &IniCodec{format: "desktop"}
}

// NewKeyfileCodec creates a codec for NetworkManager conf.d snippets
func NewKeyfileCodec() *IniCodec {
	return &IniCodec{format: "keyfile"}
}

// Format returns the codec format identifier
func (c *IniCodec) Format() string {
	return c.format
}

func (c *IniCodec) options() ini.LoadOptions {
	return ini.LoadOptions{
		AllowShadows:            true,
		IgnoreInlineComment:     true,
		IgnoreContinuation:      true,
		PreserveSurroundedQuote: true,
		KeyValueDelimiters:      "=",
	}
}

// Encode writes the comment header, a blank line, then sections separated
// by blank lines
func (c *IniCodec) Encode(doc Document, w io.Writer) error {
	f := ini.Empty(c.options())
	for _, s := range doc.Sections {
		if s.Name == "" {
			return fmt.Errorf("%s: section without a name", c.format)
		}
		sec, err := f.NewSection(s.Name)
		if err != nil {
			return fmt.Errorf("%s: %w", c.format, err)
		}
		for _, e := range s.Entries {
			if e.Key == "" || strings.ContainsAny(e.Key, "=\n") || strings.Contains(e.Value, "\n") {
				return fmt.Errorf("%s: invalid entry %q in [%s]", c.format, e.Key, s.Name)
			}
			if _, err := sec.NewKey(e.Key, e.Value); err != nil {
				return fmt.Errorf("%s: %w", c.format, err)
			}
		}
	}

	var body bytes.Buffer
	if _, err := f.WriteTo(&body); err != nil {
		return fmt.Errorf("failed to write %s: %w", c.format, err)
	}

	bw := bufio.NewWriter(w)
	writeComments(bw, doc.Comments)
	if out := bytes.TrimRight(body.Bytes(), "\n"); len(out) > 0 {
		bw.Write(out)
		bw.WriteString("\n")
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", c.format, err)
	}
	return nil
}

// Decode parses sections; comment lines and blank lines are skipped
func (c *IniCodec) Decode(r io.Reader) (Document, error) {
	var doc Document
	data, err := io.ReadAll(r)
	if err != nil {
		return doc, fmt.Errorf("failed to read %s: %w", c.format, err)
	}
	f, err := ini.LoadSources(c.options(), data)
	if err != nil {
		return doc, fmt.Errorf("failed to parse %s: %w", c.format, err)
	}

	for _, sec := range f.Sections() {
		name := sec.Name()
		if name == ini.DefaultSection {
			name = ""
		}
		for _, k := range sec.Keys() {
			for _, v := range k.ValueWithShadows() {
				doc.Add(name, k.Name(), v)
			}
		}
	}
	return doc, nil
}
