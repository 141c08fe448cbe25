package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	audioimpl "github.com/Izanyoi/dictadoc-web/external/audio"
	configloader "github.com/Izanyoi/dictadoc-web/external/config"
	repositoryimpl "github.com/Izanyoi/dictadoc-web/external/repository"
	transportimpl "github.com/Izanyoi/dictadoc-web/external/transport"
	webhookimpl "github.com/Izanyoi/dictadoc-web/external/webhook"
	"github.com/Izanyoi/dictadoc-web/internal/command"
	"github.com/Izanyoi/dictadoc-web/internal/config"
	"github.com/Izanyoi/dictadoc-web/internal/playback"
	"github.com/Izanyoi/dictadoc-web/internal/recorder"
	"github.com/Izanyoi/dictadoc-web/internal/router"
	"github.com/Izanyoi/dictadoc-web/internal/transport"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start an interactive dictation session reading commands from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("startup: loading configuration")
			cfg := mustLoadConfig()
			initLogger(cfg)
			slog.Info("startup: configuration loaded", "env", cfg.Env, "transcriber_url", cfg.TranscriberURL)

			slog.Info("startup: building dependency graph")
			injector := setupDI(cfg)
			return runSession(cmd.Context(), injector, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// initLogger writes JSON logs to stderr so they stay apart from command
// responses on stdout.
func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	audioimpl.RegisterDI(injector)
	transportimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	transport.RegisterDI(injector)
	playback.RegisterDI(injector)
	recorder.RegisterDI(injector)
	router.RegisterDI(injector)
	command.RegisterDI(injector)

	return injector
}

func runSession(parent context.Context, injector do.Injector, in io.Reader, out io.Writer) error {
	channel, err := do.Invoke[*transport.Channel](injector)
	if err != nil {
		return fmt.Errorf("resolve transport channel: %w", err)
	}
	inbound, err := do.Invoke[*router.Router](injector)
	if err != nil {
		return fmt.Errorf("resolve inbound router: %w", err)
	}
	manager, err := do.Invoke[*command.Manager](injector)
	if err != nil {
		return fmt.Errorf("resolve command manager: %w", err)
	}
	channel.SetMessageHandler(inbound.HandleMessage)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var outMu sync.Mutex
	respond := func(text string) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintln(out, text)
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	var watchers sync.WaitGroup
	watch, unwatch := channel.WatchStatus()
	defer unwatch()
	watchers.Add(1)
	go func() {
		defer watchers.Done()
		for {
			select {
			case <-watchCtx.Done():
				return
			case status := <-watch:
				respond(fmt.Sprintf("[transport %s]", status))
			}
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			slog.Error("failed to read commands", "error", err)
		}
	}()

	slog.Info("session ready")
	respond("dictadoc ready (type help)")
loop:
	for {
		select {
		case <-ctx.Done():
			slog.Info("shutting down")
			break loop
		case line, ok := <-lines:
			if !ok {
				slog.Info("input closed; shutting down")
				break loop
			}
			if resp := manager.Execute(ctx, line); resp != "" {
				respond(resp)
			}
		}
	}

	shutdown(injector)
	stopWatch()
	watchers.Wait()
	return nil
}

// shutdown finalizes an active recording before the transport and the store
// go away.
func shutdown(injector do.Injector) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if rec, err := do.Invoke[*recorder.Session](injector); err == nil {
		if err := rec.Close(ctx); err != nil {
			slog.Error("recorder close failed", "error", err)
		}
	}
	if engine, err := do.Invoke[*playback.Engine](injector); err == nil {
		engine.Close()
	}
	if channel, err := do.Invoke[*transport.Channel](injector); err == nil {
		channel.Disconnect()
	}
	injector.Shutdown()
}
