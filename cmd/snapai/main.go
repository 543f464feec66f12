package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/faketut/SnapAI/internal/ai"
	"github.com/faketut/SnapAI/internal/command"
	"github.com/faketut/SnapAI/internal/config"
	"github.com/faketut/SnapAI/internal/endpoint"
	"github.com/faketut/SnapAI/internal/logging"
	"github.com/faketut/SnapAI/internal/overlay"
	"github.com/faketut/SnapAI/internal/screenshot"
	"github.com/faketut/SnapAI/internal/supervise"
)

var version = "dev"

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := command.BuildApp(command.Deps{
		LoadConfig: config.Load,
		RunSupervisor: func(ctx context.Context, cfg config.Config) error {
			return runSupervisor(ctx, cfg)
		},
		RunServer: func(ctx context.Context, cfg config.Config) error {
			return runServer(ctx, cfg)
		},
		RunOverlay: func(ctx context.Context, cfg config.Config) error {
			return runOverlay(ctx, cfg, os.Stdout, os.Stdin)
		},
	})
	app.Version = version

	if err := app.RunContext(rootCtx, os.Args); err != nil {
		logging.NewLogger(logging.Options{Component: "snapai"}).Error("exited with error", "error", err)
		os.Exit(1)
	}
}

// runSupervisor launches the server and overlay as supervised children by
// re-invoking this executable with the matching subcommand, then watches
// them until the context is cancelled.
func runSupervisor(ctx context.Context, cfg config.Config) error {
	logger := logging.NewLogger(logging.Options{Level: cfg.LogLevel, Component: "supervisor"})

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	sup := supervise.New(supervise.Options{
		RestartAttempts:  cfg.RestartAttempts,
		RestartDelay:     cfg.RestartDelay,
		WarmupInterval:   cfg.WarmupInterval,
		TermGraceTimeout: cfg.TermGraceTimeout,
		KillWaitTimeout:  cfg.KillWaitTimeout,
		Logger:           logger,
	})

	if _, err := sup.Start(supervise.Spec{
		Name:  "server",
		Path:  exe,
		Args:  []string{"server"},
		Ports: []int{cfg.HTTPPort, cfg.WSPort},
	}); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if _, err := sup.Start(supervise.Spec{
		Name: "overlay",
		Path: exe,
		Args: []string{"overlay"},
	}); err != nil {
		shutdownErr := sup.Shutdown()
		if shutdownErr != nil {
			logger.Warn("shutdown after failed overlay start", "error", shutdownErr)
		}
		return fmt.Errorf("start overlay: %w", err)
	}

	logger.Info("services started", "server_ports", []int{cfg.HTTPPort, cfg.WSPort})
	return sup.Run(ctx)
}

func runServer(ctx context.Context, cfg config.Config) error {
	logger := logging.NewLogger(logging.Options{Level: cfg.LogLevel, Component: "server"})

	analyzer := ai.NewOpenAIAnalyzer(ai.Config{
		Endpoint: cfg.OpenAIEndpoint,
		Model:    cfg.OpenAIModel,
		APIKey:   cfg.OpenAIAPIKey,
	})
	router := endpoint.NewRouter(screenshot.NewExecCapturer(nil), analyzer, logger)
	ep := endpoint.New(router, endpoint.Options{
		PingInterval: cfg.PingInterval,
		PingTimeout:  cfg.PingTimeout,
		Logger:       logger,
	})

	logger.Info("server listening", "host", cfg.Host, "ws_port", cfg.WSPort, "http_port", cfg.HTTPPort)
	return ep.Serve(ctx, endpoint.ServeConfig{
		Host:     cfg.Host,
		WSPort:   cfg.WSPort,
		HTTPPort: cfg.HTTPPort,
	})
}

// runOverlay connects to the local server and presents answers on stdout.
// Lines read from stdin are sent as text questions, which stands in for the
// hotkey-driven input box on headless setups.
func runOverlay(ctx context.Context, cfg config.Config, out *os.File, in *os.File) error {
	logger := logging.NewLogger(logging.Options{Level: cfg.LogLevel, Component: "overlay"})

	client := overlay.NewClient(overlay.RealDialer{}, overlay.ClientOptions{
		URL: serverWSURL(cfg),
		OnMessage: func(text string) {
			fmt.Fprintln(out, text)
		},
		Logger:       logger,
		InitialDelay: cfg.ReconnectInitialDelay,
		MaxDelay:     cfg.ReconnectMaxDelay,
		PromptPrefix: cfg.PromptPrefix,
	})

	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			client.AskText(ctx, scanner.Text())
		}
	}()
	go func() {
		<-ctx.Done()
		client.Stop()
	}()

	return client.Run(ctx)
}

// serverWSURL picks the address the overlay dials. The server binds the
// wildcard address by default, which is not dialable, so loopback is
// substituted.
func serverWSURL(cfg config.Config) string {
	host := cfg.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("ws://%s:%d", host, cfg.WSPort)
}
