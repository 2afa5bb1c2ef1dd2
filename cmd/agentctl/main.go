package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/urfave/cli/v3"

	"opsagent/internal/app"
	"opsagent/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "agentctl",
		Usage: "talk to the AWS operations agent from a terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
				Value: "warn",
			},
		},
		Commands: []*cli.Command{
			chatCommand(),
			toolsCommand(),
		},
	}
}

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "start an interactive session; tool calls that change state ask for approval",
		UsageText: "agentctl chat [--session ID] [--prompt TEXT]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "session",
				Usage: "resume an existing session id",
			},
			&cli.StringFlag{
				Name:  "prompt",
				Usage: "send a single prompt and exit",
			},
			&cli.BoolFlag{
				Name:  "local",
				Usage: "keep the session in memory even when SESSION_TABLE is set",
				Value: false,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := app.Load(ctx, func(c *config.Config) {
				c.LogFormat = "text"
				c.LogLevel = cmd.String("log-level")
				if cmd.Bool("local") {
					c.SessionTable = ""
				}
			})
			if err != nil {
				return err
			}

			c := newChat(a.Invoker, cmd.String("session"), os.Stdin, os.Stdout)
			fmt.Fprintf(os.Stderr, "session: %s\n", c.sessionID)
			if p := cmd.String("prompt"); p != "" {
				return c.send(ctx, p)
			}
			return c.loop(ctx)
		},
	}
}

func toolsCommand() *cli.Command {
	return &cli.Command{
		Name:  "tools",
		Usage: "list the tools the agent can call",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "schema",
				Usage: "print each tool's input schema as JSON",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			return listTools(os.Stdout, cfg, cmd.Bool("schema"))
		},
	}
}
