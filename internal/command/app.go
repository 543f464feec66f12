package command

import (
	"context"
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/faketut/SnapAI/internal/config"
)

type Deps struct {
	LoadConfig    func() config.Config
	RunSupervisor func(context.Context, config.Config) error
	RunServer     func(context.Context, config.Config) error
	RunOverlay    func(context.Context, config.Config) error
}

// BuildApp wires the three runtime modes. The default action supervises
// both services; `server` and `overlay` run a single service directly,
// which is also how the supervisor launches its children.
func BuildApp(deps Deps) *cli.App {
	return &cli.App{
		Name:  "snapai",
		Usage: "hotkey-triggered AI assistant",
		Action: func(ctx *cli.Context) error {
			return runSupervisor(ctx.Context, deps)
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "supervise the server and overlay processes",
				Action: func(ctx *cli.Context) error {
					return runSupervisor(ctx.Context, deps)
				},
			},
			{
				Name:  "server",
				Usage: "run the query server",
				Action: func(ctx *cli.Context) error {
					if deps.RunServer == nil {
						return errors.New("server runner is not configured")
					}
					return deps.RunServer(ctx.Context, loadConfig(deps))
				},
			},
			{
				Name:  "overlay",
				Usage: "run the overlay client",
				Action: func(ctx *cli.Context) error {
					if deps.RunOverlay == nil {
						return errors.New("overlay runner is not configured")
					}
					return deps.RunOverlay(ctx.Context, loadConfig(deps))
				},
			},
		},
	}
}

func runSupervisor(ctx context.Context, deps Deps) error {
	if deps.RunSupervisor == nil {
		return errors.New("supervisor runner is not configured")
	}
	return deps.RunSupervisor(ctx, loadConfig(deps))
}

func loadConfig(deps Deps) config.Config {
	if deps.LoadConfig != nil {
		return deps.LoadConfig()
	}
	return config.Load()
}
