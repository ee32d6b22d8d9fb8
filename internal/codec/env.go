package codec

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

var envKey = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// EnvCodec renders POSIX-sh sourceable KEY='value' environment files.
// Output is sorted by key, so equal maps produce equal bytes.
type EnvCodec struct{}

// NewEnvCodec creates a new environment file codec
func NewEnvCodec() *EnvCodec {
	return &EnvCodec{}
}

// Format returns the codec format identifier
func (c *EnvCodec) Format() string {
	return "env"
}

// Marshal renders vars with an optional comment header. Values are single
// quoted, so sh and the dotenv reader both see them byte for byte. A value
// holding a single quote or a line break has no such form and is rejected.
func (c *EnvCodec) Marshal(vars map[string]string, comments ...string) ([]byte, error) {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		if !envKey.MatchString(k) {
			return nil, fmt.Errorf("invalid env name %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, line := range comments {
		b.WriteString("# " + line + "\n")
	}
	for _, k := range keys {
		v := vars[k]
		if strings.ContainsAny(v, "'\r\n") {
			return nil, fmt.Errorf("value of %s cannot be single quoted", k)
		}
		b.WriteString(k + "='" + v + "'\n")
	}
	return []byte(b.String()), nil
}

// Parse reads an environment file
func (c *EnvCodec) Parse(r io.Reader) (map[string]string, error) {
	vars, err := godotenv.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse env: %w", err)
	}
	return vars, nil
}
