// Command jitctl is a standalone control surface for the TraceJIT
// dispatcher: an interactive REPL plus an optional websocket/Prometheus
// introspection server, grounded on the teacher's "vm" CLI binary
// (cli/vm/cli.go) wired through urfave/cli.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/chzyer/readline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/vmjit/tracejit/internal/replcmd"
	"github.com/vmjit/tracejit/pkg/backend/interp"
	"github.com/vmjit/tracejit/pkg/bytecode"
	"github.com/vmjit/tracejit/pkg/helper"
	"github.com/vmjit/tracejit/pkg/introspect"
	"github.com/vmjit/tracejit/pkg/jit"
	"github.com/vmjit/tracejit/pkg/jitconfig"
)

func main() {
	app := cli.NewApp()
	app.Name = "jitctl"
	app.Usage = "Control surface for the TraceJIT specialization dispatcher"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "path to a jitconfig YAML file"},
		cli.IntFlag{Name: "listen", Value: 8090, Usage: "HTTP port for the serve command"},
	}
	app.Commands = []cli.Command{
		{
			Name:  "repl",
			Usage: "Start the interactive control shell",
			Action: func(c *cli.Context) error {
				return runRepl(c)
			},
		},
		{
			Name:  "serve",
			Usage: "Serve the websocket event stream and Prometheus metrics",
			Action: func(c *cli.Context) error {
				return runServe(c)
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) jitconfig.Config {
	path := c.GlobalString("config")
	if path == "" {
		return jitconfig.Default()
	}
	cfg, err := jitconfig.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jitctl: %v, falling back to defaults\n", err)
		return jitconfig.Default()
	}
	return cfg
}

func buildFacade(cfg jitconfig.Config, observer interface {
	CompileStarted(string)
	CompileSucceeded(string, []byte, []byte, bool)
	CompileFailed(string, string)
}) *jit.Facade {
	log, _ := zap.NewDevelopment()
	catalog := helper.NewDefaultCatalog(func(name string, args []interface{}) (interface{}, error) {
		return nil, fmt.Errorf("jitctl: intrinsic %s not implemented in the demo catalog", name)
	})
	be := interp.New(catalog)
	return jit.New(jit.Options{
		Config:  cfg,
		Catalog: catalog,
		Backend: be,
		Log:     log,
		Interpret: func(code bytecode.CodeObject, args []interface{}) (interface{}, error) {
			return nil, fmt.Errorf("jitctl: %s has no attached interpreter in the demo host", code.Name())
		},
		Observer: observer,
	})
}

func runRepl(c *cli.Context) error {
	cfg := loadConfig(c)
	facade := buildFacade(cfg, nil)
	reg := newDemoRegistry()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "jitctl> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("jitctl: failed to create readline instance: %w", err)
	}
	defer rl.Close()

	shell := replcmd.New(facade, reg, rl)
	return shell.Run()
}

func runServe(c *cli.Context) error {
	cfg := loadConfig(c)
	hub := introspect.NewHub(nil)
	introspect.RegisterMetrics()
	_ = buildFacade(cfg, introspect.HubObserver{Hub: hub})

	mux := http.NewServeMux()
	mux.Handle("/events", hub)
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", c.GlobalInt("listen"))
	fmt.Printf("jitctl: serving /events and /metrics on %s\n", addr)
	return http.ListenAndServe(addr, mux)
}
