// Package builtin implements the builtin command boundary (spec.md §6):
// in-process commands invoked by the scheduler like any other Command
// stage, carrying exit code, captured stdout/stderr, and elapsed time.
// Individual builtin bodies beyond the handful registered here (cat, ls,
// grep, ...) are deliberately out of scope per spec.md §1's non-goals;
// this package only builds the registry and invocation contract.
package builtin

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Result is one builtin invocation's outcome.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Elapsed  time.Duration
}

// Func is a builtin's executable body: argv excludes the command name;
// env is the shell environment as NAME=value pairs. A builtin may return
// an updated environment to apply back to the shell (spec.md §6: "may
// update the shell environment").
type Func func(argv []string, env []string) (Result, []string)

// Command is one registered builtin (spec.md §6: "{name, description,
// usage, execute(argv, env) -> result}").
type Command struct {
	Name        string
	Description string
	Usage       string
	Execute     Func
}

// Registry is a name-keyed set of builtins.
type Registry struct {
	commands map[string]Command
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds or replaces a builtin.
func (r *Registry) Register(c Command) {
	r.commands[c.Name] = c
}

// Lookup returns the builtin registered under name, if any.
func (r *Registry) Lookup(name string) (Command, bool) {
	c, ok := r.commands[name]
	return c, ok
}

// Names returns every registered builtin name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewDefaultRegistry registers the small set of builtins needed to
// exercise the boundary end-to-end: echo, true, false, pwd-ish env
// inspection (env) and a trivial line sorter (sort), standing in for the
// fuller builtin set spec.md treats as an external collaborator.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Command{
		Name:        "true",
		Description: "return success",
		Usage:       "true",
		Execute: func(argv []string, env []string) (Result, []string) {
			return Result{ExitCode: 0}, env
		},
	})
	r.Register(Command{
		Name:        "false",
		Description: "return failure",
		Usage:       "false",
		Execute: func(argv []string, env []string) (Result, []string) {
			return Result{ExitCode: 1}, env
		},
	})
	r.Register(Command{
		Name:        "echo",
		Description: "write arguments to stdout",
		Usage:       "echo [args...]",
		Execute: func(argv []string, env []string) (Result, []string) {
			out := strings.Join(argv, " ") + "\n"
			return Result{ExitCode: 0, Stdout: []byte(out)}, env
		},
	})
	r.Register(Command{
		Name:        "env",
		Description: "print the shell environment",
		Usage:       "env",
		Execute: func(argv []string, env []string) (Result, []string) {
			var buf bytes.Buffer
			for _, kv := range env {
				fmt.Fprintln(&buf, kv)
			}
			return Result{ExitCode: 0, Stdout: buf.Bytes()}, env
		},
	})
	r.Register(Command{
		Name:        "sort",
		Description: "sort stdin lines lexically; stdin is fed via argv when no pipe is attached",
		Usage:       "sort [lines...]",
		Execute: func(argv []string, env []string) (Result, []string) {
			lines := append([]string(nil), argv...)
			sort.Strings(lines)
			return Result{ExitCode: 0, Stdout: []byte(strings.Join(lines, "\n") + "\n")}, env
		},
	})
	return r
}
