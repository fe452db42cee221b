package replcmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/urfave/cli"

	"github.com/vmjit/tracejit/pkg/introspect"
	"github.com/vmjit/tracejit/pkg/jit"
)

// commands builds the jitctl subcommand table: enable, disable, status,
// stats, info, dump-il, dump-native, set-threshold, names — one handler
// per spec §6 Control API operation plus registry introspection, in the
// teacher's cli.Command-table style (cli/vm/cli.go's `commands` var).
func commands(facade *jit.Facade, registry Registry) []cli.Command {
	return []cli.Command{
		{
			Name:      "enable",
			Usage:     "Install the dispatcher",
			UsageText: "enable",
			Action: func(c *cli.Context) error {
				changed := facade.Enable()
				fmt.Fprintf(c.App.Writer, "enabled (changed=%v)\n", changed)
				return nil
			},
		},
		{
			Name:      "disable",
			Usage:     "Uninstall the dispatcher",
			UsageText: "disable",
			Action: func(c *cli.Context) error {
				changed := facade.Disable()
				fmt.Fprintf(c.App.Writer, "disabled (changed=%v)\n", changed)
				return nil
			},
		},
		{
			Name:      "status",
			Usage:     "Show whether the dispatcher is installed",
			UsageText: "status",
			Action: func(c *cli.Context) error {
				fmt.Fprintf(c.App.Writer, "enabled=%v\n", facade.Status())
				return nil
			},
		},
		{
			Name:      "names",
			Usage:     "List known code object names",
			UsageText: "names",
			Action: func(c *cli.Context) error {
				for _, n := range registry.Names() {
					fmt.Fprintln(c.App.Writer, n)
				}
				return nil
			},
		},
		{
			Name:      "stats",
			Usage:     "Show process-wide compile counters",
			UsageText: "stats",
			Action: func(c *cli.Context) error {
				writeTable(c.App.Writer, facade.Stats())
				return nil
			},
		},
		{
			Name:      "info",
			Usage:     "Show per-code-object dispatcher state",
			UsageText: "info <name>",
			Action: func(c *cli.Context) error {
				code, err := resolve(registry, c)
				if err != nil {
					return err
				}
				writeTable(c.App.Writer, facade.Info(code))
				return nil
			},
		},
		{
			Name:      "dump-il",
			Usage:     "Dump the compiled IL bytes of a code object",
			UsageText: "dump-il <name>",
			Action: func(c *cli.Context) error {
				code, err := resolve(registry, c)
				if err != nil {
					return err
				}
				il := facade.DumpIL(code)
				if il == nil {
					fmt.Fprintln(c.App.Writer, "<not compiled>")
					return nil
				}
				fmt.Fprintln(c.App.Writer, introspect.DumpNative(il))
				return nil
			},
		},
		{
			Name:      "dump-native",
			Usage:     "Dump the compiled native buffer of a code object",
			UsageText: "dump-native <name>",
			Action: func(c *cli.Context) error {
				code, err := resolve(registry, c)
				if err != nil {
					return err
				}
				native := facade.DumpNative(code)
				if native == nil {
					fmt.Fprintln(c.App.Writer, "<not compiled>")
					return nil
				}
				fmt.Fprintln(c.App.Writer, introspect.DumpNative(native))
				return nil
			},
		},
		{
			Name:      "set-threshold",
			Usage:     "Set the process-wide compile threshold",
			UsageText: "set-threshold <n>",
			Action: func(c *cli.Context) error {
				n, err := parseThreshold(c)
				if err != nil {
					return err
				}
				facade.SetThreshold(n)
				fmt.Fprintf(c.App.Writer, "threshold=%d\n", n)
				return nil
			},
		},
		{
			Name:      "get-threshold",
			Usage:     "Show the process-wide compile threshold",
			UsageText: "get-threshold",
			Action: func(c *cli.Context) error {
				fmt.Fprintf(c.App.Writer, "threshold=%d\n", facade.GetThreshold())
				return nil
			},
		},
		{
			Name:      "exit",
			Usage:     "Exit the jitctl prompt",
			UsageText: "exit",
			Action: func(c *cli.Context) error {
				return cli.NewExitError("", 0)
			},
		},
	}
}

// writeTable renders a string-keyed result map as a two-column table sized
// to the attached terminal, truncating values wider than the terminal
// allows rather than wrapping them.
func writeTable(w io.Writer, m map[string]interface{}) {
	width := terminalWidth()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, key := range sortedKeys(m) {
		val := fmt.Sprintf("%v", m[key])
		if max := width - len(key) - 4; max > 0 && len(val) > max {
			val = val[:max] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\n", key, val)
	}
	tw.Flush()
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
