// Package adaptertest provides in-memory fakes of the adapter interfaces
// for use in tests.
package adaptertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Call is one recorded command invocation
type Call struct {
	Name string
	Args []string
}

// String renders the call as a command line
func (c Call) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// FakeRunner records commands and answers from canned results keyed by
// command line prefix
type FakeRunner struct {
	mu sync.Mutex

	// Calls is every command run, in order
	Calls []Call
	// Outputs maps a command line prefix to stdout
	Outputs map[string]string
	// Failures maps a command line prefix to an error
	Failures map[string]error
	// Binaries lists executables LookPath will find
	Binaries map[string]bool
}

// NewFakeRunner creates a runner where the given binaries are on PATH
func NewFakeRunner(binaries ...string) *FakeRunner {
	f := &FakeRunner{
		Outputs:  make(map[string]string),
		Failures: make(map[string]error),
		Binaries: make(map[string]bool),
	}
	for _, b := range binaries {
		f.Binaries[b] = true
	}
	return f
}

// Run records the call and returns any configured failure
func (f *FakeRunner) Run(_ context.Context, name string, args ...string) error {
	_, err := f.record(name, args)
	return err
}

// Output records the call and returns configured stdout
func (f *FakeRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	out, err := f.record(name, args)
	return []byte(out), err
}

// LookPath succeeds for configured binaries
func (f *FakeRunner) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Binaries[name] {
		return "/usr/bin/" + name, nil
	}
	return "", fmt.Errorf("%s: executable file not found in $PATH", name)
}

// Ran reports whether a command line starting with prefix was run
func (f *FakeRunner) Ran(prefix string) bool {
	return f.Count(prefix) > 0
}

// Count returns how many command lines started with prefix
func (f *FakeRunner) Count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if strings.HasPrefix(c.String(), prefix) {
			n++
		}
	}
	return n
}

func (f *FakeRunner) record(name string, args []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := Call{Name: name, Args: append([]string(nil), args...)}
	f.Calls = append(f.Calls, call)
	line := call.String()

	for prefix, err := range f.Failures {
		if strings.HasPrefix(line, prefix) {
			return "", err
		}
	}
	for prefix, out := range f.Outputs {
		if strings.HasPrefix(line, prefix) {
			return out, nil
		}
	}
	return "", nil
}
