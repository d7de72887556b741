package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-irc/internal/app"
	"github.com/vovakirdan/wirechat-irc/internal/config"
	"github.com/vovakirdan/wirechat-irc/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type flags struct {
	configPath string
	user       string
	rooms      []string
	logLevel   string
	statusAddr string
	noInput    bool
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:          "wirechat-irc",
		Short:        "Chat client for Twitch-style IRC rooms",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f)
		},
	}

	cmd.Flags().StringVar(&f.configPath, "config", "", "path to config.yaml (created with defaults when missing)")
	cmd.Flags().StringVar(&f.user, "user", "", "login name; the token is read from WIRECHAT_TOKEN")
	cmd.Flags().StringSliceVar(&f.rooms, "room", nil, "room to join (repeatable)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	cmd.Flags().StringVar(&f.statusAddr, "status-addr", "", "listen address of the status API, e.g. :8080")
	cmd.Flags().BoolVar(&f.noInput, "no-input", false, "do not read messages from stdin")

	return cmd
}

func run(parent context.Context, f flags) error {
	bootLog := log.New("info")

	cfg, path, err := config.Load(bootLog, f.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.UpdateFrom(config.Config{
		Username:   f.user,
		Rooms:      f.rooms,
		LogLevel:   f.logLevel,
		StatusAddr: f.statusAddr,
	})

	logger := log.NewWithFile(cfg.LogLevel, cfg.LogFile)
	logger.Info().Str("config", path).Strs("rooms", cfg.Rooms).Str("transport", cfg.Transport).Msg("starting wirechat-irc")

	application, err := app.New(&cfg, logger)
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !f.noInput {
		console := newConsole(application.Client(), firstRoom(cfg.Rooms), os.Stdin, os.Stdout)
		console.attach()
		go func() {
			console.writeLoop(ctx)
			stop()
		}()
	}

	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("client exited with error")
		return err
	}
	logger.Info().Msg("client stopped")
	return nil
}

func firstRoom(rooms []string) string {
	if len(rooms) == 0 {
		return ""
	}
	return rooms[0]
}
