package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-irc/internal/client"
	"github.com/vovakirdan/wirechat-irc/internal/config"
	"github.com/vovakirdan/wirechat-irc/internal/core"
	transporthttp "github.com/vovakirdan/wirechat-irc/internal/transport/http"
)

// App wires together the chat client and the optional status server.
type App struct {
	client          *client.Client
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	log             *zerolog.Logger

	// ended receives the event that closed the chat session.
	ended chan *core.DisconnectEvent
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger, opts ...client.Option) (*App, error) {
	c, err := client.New(*cfg, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("init client: %w", err)
	}

	a := &App{
		client:          c,
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             logger,
		ended:           make(chan *core.DisconnectEvent, 1),
	}
	if cfg.StatusAddr != "" {
		a.server = transporthttp.NewServer(c, *cfg, logger)
	}

	c.OnDisconnect(func(ev *core.DisconnectEvent) {
		if ev.Err != nil {
			logger.Error().Err(ev.Err).Str("reason", ev.Reason).Msg("chat session ended")
		} else {
			logger.Info().Str("reason", ev.Reason).Msg("chat session ended")
		}
		select {
		case a.ended <- ev:
		default:
		}
	})

	return a, nil
}

// Client returns the chat client.
func (a *App) Client() *client.Client {
	return a.client
}

// Run logs in, serves the status API when configured and blocks until context
// cancellation, the end of the chat session or a fatal error. A session that
// ends with an error (retries exhausted, credentials rejected) returns it.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	serverErr := make(chan error, 1)
	if a.server != nil {
		go func() {
			a.log.Info().Str("addr", a.server.Addr).Msg("status api listening")
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				serverErr <- err
				return
			}
			serverErr <- nil
		}()
	}

	ready, err := a.client.Login(ctx, nil)
	if err != nil {
		a.shutdownServer()
		return fmt.Errorf("login: %w", err)
	}
	a.log.Info().Str("identity", ready.Identity).Msg("logged in")

	select {
	case err := <-serverErr:
		return err
	case ev := <-a.ended:
		shutdownErr := a.shutdownServer()
		if ev.Err != nil {
			return fmt.Errorf("session ended (%s): %w", ev.Reason, ev.Err)
		}
		return shutdownErr
	case <-ctx.Done():
		return a.shutdownServer()
	}
}

func (a *App) shutdownServer() error {
	if a.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	a.log.Info().Msg("shutting down status api")
	return a.server.Shutdown(shutdownCtx)
}

// cleanup disconnects the session and stops background tasks.
func (a *App) cleanup() {
	if err := a.client.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close client")
	} else {
		a.log.Info().Msg("client closed")
	}
}
