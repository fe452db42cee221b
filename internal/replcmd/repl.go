// Package replcmd implements the jitctl interactive shell: a urfave/cli
// App whose commands operate on a live jit.Facade, driven by a readline
// loop. Grounded on the teacher's cli/vm/cli.go ("Official VM CLI"), which
// wraps the same urfave/cli.App-over-readline.Instance shape around its
// own blockchain/VM state.
package replcmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/chzyer/readline"
	shellwords "github.com/kballard/go-shellquote"
	"github.com/urfave/cli"
	"golang.org/x/term"

	"github.com/vmjit/tracejit/pkg/bytecode"
	"github.com/vmjit/tracejit/pkg/jit"
)

// Registry resolves the name a jitctl command names a code object by. The
// demo/driver program populates it; jitctl has no bytecode decoder of its
// own (that's the host's, per spec.md Non-goals).
type Registry interface {
	Lookup(name string) (bytecode.CodeObject, bool)
	Names() []string
}

// Shell is the jitctl REPL: a urfave/cli.App bound to one Facade/Registry
// pair, read from stdin via readline the way the teacher's VM CLI is.
type Shell struct {
	app *cli.App
	rl  *readline.Instance
}

// New builds a Shell. facade and registry must outlive the Shell.
func New(facade *jit.Facade, registry Registry, rl *readline.Instance) *Shell {
	app := cli.NewApp()
	app.Name = "jitctl"
	app.HelpName = ""
	app.UsageText = ""
	app.Usage = "Interactive control surface for the TraceJIT dispatcher"
	app.Writer = rl.Stdout()
	app.ErrWriter = rl.Stderr()
	app.Commands = commands(facade, registry)
	app.CommandNotFound = func(c *cli.Context, name string) {
		fmt.Fprintf(c.App.ErrWriter, "unknown command: %s\n", name)
	}
	return &Shell{app: app, rl: rl}
}

// Run reads lines until EOF/interrupt, tokenizing each with shellquote and
// dispatching through the urfave/cli App, matching the teacher's Run loop.
func (s *Shell) Run() error {
	for {
		line, err := s.rl.Readline()
		if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("jitctl: read input: %w", err)
		}

		args, err := shellwords.Split(line)
		if err != nil {
			fmt.Fprintf(s.app.ErrWriter, "jitctl: parse arguments: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		if err := s.app.Run(append([]string{"jitctl"}, args...)); err != nil {
			fmt.Fprintf(s.app.ErrWriter, "jitctl: %v\n", err)
		}
	}
}

// terminalWidth reports the attached terminal's column count, falling back
// to a conservative default when stdin isn't a terminal (piped input,
// tests) the way a width-aware formatter must.
func terminalWidth() int {
	w, _, err := term.GetSize(0)
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

func resolve(registry Registry, c *cli.Context) (bytecode.CodeObject, error) {
	name := c.Args().First()
	if name == "" {
		return nil, errors.New("missing code object name")
	}
	ref, ok := registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("no such code object: %s", name)
	}
	return ref, nil
}

func parseThreshold(c *cli.Context) (int64, error) {
	raw := c.Args().First()
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid threshold %q: %w", raw, err)
	}
	return n, nil
}
