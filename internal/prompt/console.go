package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Console asks questions on a terminal. Secrets are read with echo off.
type Console struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
}

// NewConsole creates a console source reading from stdin and writing
// prompts to out (normally stderr, so stdout stays clean)
func NewConsole(out io.Writer) *Console {
	return &Console{
		in:  bufio.NewReader(os.Stdin),
		out: out,
		fd:  int(os.Stdin.Fd()),
	}
}

// Ask prints the prompt and reads one line
func (c *Console) Ask(ctx context.Context, q Question) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if q.Default != "" && !q.Secret {
		fmt.Fprintf(c.out, "%s [%s]: ", q.Prompt, q.Default)
	} else {
		fmt.Fprintf(c.out, "%s: ", q.Prompt)
	}

	var answer string
	if q.Secret {
		if !term.IsTerminal(c.fd) {
			return "", fmt.Errorf("%w: no terminal available for secret prompt %q", ErrNoAnswer, q.Key)
		}
		b, err := term.ReadPassword(c.fd)
		fmt.Fprintln(c.out)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", q.Key, err)
		}
		answer = string(b)
	} else {
		line, err := c.readLine()
		if err != nil {
			return "", err
		}
		answer = line
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		if q.Default == "" {
			return "", ErrNoAnswer
		}
		return q.Default, nil
	}
	return answer, nil
}

// Confirm asks a yes/no question
func (c *Console) Confirm(ctx context.Context, _, prompt string, def bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	fmt.Fprintf(c.out, "%s [%s]: ", prompt, hint)

	line, err := c.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Pause prints message and waits for Enter
func (c *Console) Pause(ctx context.Context, _, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s\nPress Enter to continue...", message)
	_, err := c.readLine()
	return err
}

// Interactive reports whether stdin is a terminal
func (c *Console) Interactive() bool {
	return term.IsTerminal(c.fd)
}

func (c *Console) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		if err == io.EOF {
			return "", ErrNoAnswer
		}
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
