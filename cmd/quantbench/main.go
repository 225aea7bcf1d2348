package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// ErrLiveModeUnsupported is returned for --mode live; order execution is not implemented.
var ErrLiveModeUnsupported = errors.New("live mode is not supported: no order execution")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newApp().RunContext(ctx, os.Args)
	_ = zap.L().Sync()
	if err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Error())
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "quantbench: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "quantbench"
	app.Usage = "intraday strategy research: fetch bars, compute features, backtest, walk forward, observe"
	app.EnableBashCompletion = true
	app.ExitErrHandler = func(*cli.Context, error) {}
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   "configs/config.yaml",
			Usage:   "path to the YAML config file",
			EnvVars: []string{"QB_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "override log level (debug, info, warn, error)",
		},
		&cli.StringFlag{
			Name:  "mode",
			Value: modeSimulation,
			Usage: "run mode when no command is given: simulation, observe or live",
		},
	}
	app.Commands = []*cli.Command{
		fetchCommand(),
		featuresCommand(),
		backtestCommand(),
		walkforwardCommand(),
		observeCommand(),
		parityCommand(),
		universeCommand(),
	}
	app.Action = func(c *cli.Context) error {
		switch c.String("mode") {
		case modeObserve:
			return runObserve(c)
		case modeSimulation:
			return cli.ShowAppHelp(c)
		default:
			return checkMode(c.String("mode"))
		}
	}
	return app
}
