package command

import (
	"context"
	"errors"
	"strings"

	"github.com/urfave/cli/v2"

	"promptbridge/internal/config"
)

// RunRequest carries the per-invocation overrides for one bridged run.
type RunRequest struct {
	Command      string
	Dir          string
	Mode         string
	TimeoutMs    int
	ResponderURL string
}

type Deps struct {
	LoadConfig  func() config.Config
	RunSession  func(ctx context.Context, cfg config.Config, req RunRequest) error
	ListHistory func(ctx context.Context, cfg config.Config, limit int) error
	ShowEvents  func(ctx context.Context, cfg config.Config, runID string) error
}

func BuildApp(deps Deps) *cli.App {
	return &cli.App{
		Name:  "promptbridge",
		Usage: "supervise an interactive command and bridge its prompts",
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "run a command under the prompt bridge",
				ArgsUsage: "-- command [args...]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "mode", Usage: "risk mode: off, safe, balanced or yolo"},
					&cli.StringFlag{Name: "cwd", Usage: "working directory for the command"},
					&cli.IntFlag{Name: "timeout-ms", Usage: "overall session timeout in milliseconds"},
					&cli.StringFlag{Name: "responder-url", Usage: "websocket URL of a remote prompt responder"},
				},
				Action: func(ctx *cli.Context) error {
					command := strings.TrimSpace(strings.Join(ctx.Args().Slice(), " "))
					if command == "" {
						return errors.New("command is required")
					}
					cfg := loadConfig(deps)
					req := RunRequest{
						Command:      command,
						Dir:          ctx.String("cwd"),
						Mode:         ctx.String("mode"),
						TimeoutMs:    ctx.Int("timeout-ms"),
						ResponderURL: ctx.String("responder-url"),
					}
					return runSession(ctx.Context, deps, cfg, req)
				},
			},
			{
				Name:  "history",
				Usage: "list recorded sessions",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "max sessions to list"},
				},
				Action: func(ctx *cli.Context) error {
					cfg := loadConfig(deps)
					return listHistory(ctx.Context, deps, cfg, ctx.Int("limit"))
				},
				Subcommands: []*cli.Command{
					{
						Name:      "events",
						Usage:     "show prompt events of one session",
						ArgsUsage: "run-id",
						Action: func(ctx *cli.Context) error {
							runID := strings.TrimSpace(ctx.Args().First())
							if runID == "" {
								return errors.New("run id is required")
							}
							cfg := loadConfig(deps)
							return showEvents(ctx.Context, deps, cfg, runID)
						},
					},
				},
			},
		},
	}
}

func loadConfig(deps Deps) config.Config {
	if deps.LoadConfig != nil {
		return deps.LoadConfig()
	}
	return config.LoadConfig()
}

func runSession(ctx context.Context, deps Deps, cfg config.Config, req RunRequest) error {
	if deps.RunSession == nil {
		return errors.New("session runner is not configured")
	}
	return deps.RunSession(ctx, cfg, req)
}

func listHistory(ctx context.Context, deps Deps, cfg config.Config, limit int) error {
	if deps.ListHistory == nil {
		return errors.New("history lister is not configured")
	}
	return deps.ListHistory(ctx, cfg, limit)
}

func showEvents(ctx context.Context, deps Deps, cfg config.Config, runID string) error {
	if deps.ShowEvents == nil {
		return errors.New("event viewer is not configured")
	}
	return deps.ShowEvents(ctx, cfg, runID)
}
