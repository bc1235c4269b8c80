package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/solbot/internal/chat"
	"github.com/alanyoungcy/solbot/internal/notify"
	"github.com/alanyoungcy/solbot/internal/server"
	"github.com/alanyoungcy/solbot/internal/server/handler"
)

// FullMode runs the chat transport, the live feed and the HTTP server.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	return a.runMode(ctx, deps, "full", true, a.cfg.Stream.Enabled, a.cfg.Server.Enabled)
}

// ChatMode evaluates tokens mentioned in chat. The cache is filled on demand
// only.
func (a *App) ChatMode(ctx context.Context, deps *Dependencies) error {
	return a.runMode(ctx, deps, "chat", true, false, a.cfg.Server.Enabled)
}

// StreamMode only keeps the pair cache warm from the live feed, evaluating
// ingested tokens when stream.evaluate_updates is set.
func (a *App) StreamMode(ctx context.Context, deps *Dependencies) error {
	if !a.cfg.Stream.Enabled {
		a.logger.WarnContext(ctx, "stream.enabled is false, but stream mode always runs the feed")
	}
	return a.runMode(ctx, deps, "stream", false, true, a.cfg.Server.Enabled)
}

// ServerMode serves on-demand evaluations over HTTP only.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	return a.runMode(ctx, deps, "server", false, false, true)
}

func (a *App) runMode(ctx context.Context, deps *Dependencies, mode string, withChat, withStream, withServer bool) error {
	a.logger.InfoContext(ctx, "starting "+mode+" mode",
		slog.Bool("chat", withChat),
		slog.Bool("stream", withStream),
		slog.Bool("server", withServer),
	)

	g, gctx := errgroup.WithContext(ctx)

	if deps.Janitor != nil && a.cfg.Cache.SweepInterval.Duration > 0 {
		g.Go(func() error {
			return ignoreCancel(gctx, deps.Janitor.RunJanitor(gctx, a.cfg.Cache.SweepInterval.Duration))
		})
	}

	if withChat {
		poller := chat.NewPoller(chat.Config{
			APIBase:      a.cfg.Chat.APIBase,
			Token:        a.cfg.Chat.TelegramToken,
			AllowedChats: a.cfg.Chat.AllowedChats,
			PollTimeout:  a.cfg.Chat.PollTimeout.Duration,
		}, deps.Pipeline, a.logger)
		g.Go(func() error {
			if err := poller.Run(gctx); err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			return nil
		})
	}

	if withStream {
		stream := newPairStream(a.cfg, deps, a.logger)
		g.Go(func() error {
			return ignoreCancel(gctx, stream.Run(gctx))
		})
	}

	if withServer {
		a.startHTTPServer(gctx, g, deps)
	}

	a.announce(ctx, deps, "solbot started", "mode: "+mode)

	err := g.Wait()

	// Let in-flight evaluations finish, bounded by the shutdown timeout.
	if werr := deps.Pipeline.Wait(a.cfg.Pipeline.ShutdownTimeout.Duration); werr != nil {
		a.logger.Warn("evaluations cancelled at shutdown", slog.String("error", werr.Error()))
	}
	a.announce(context.WithoutCancel(ctx), deps, "solbot stopped", "mode: "+mode)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

// startHTTPServer adds the HTTP server and its shutdown watcher to g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	handlers := server.Handlers{
		Health:          handler.NewHealthHandler(a.cfg.Mode, deps.Pingers, a.logger),
		Evaluate:        handler.NewEvaluateHandler(deps.Pipeline, a.logger),
		Metrics:         deps.Metrics.Handler(),
		EvaluateLimiter: deps.RateLimiter,
		Observer:        deps.Metrics,
	}
	if deps.AlertStore != nil {
		handlers.Alerts = handler.NewAlertHandler(deps.AlertStore, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// announce sends a lifecycle notification; failures are only logged.
func (a *App) announce(ctx context.Context, deps *Dependencies, title, body string) {
	sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := deps.Notifier.Notify(sendCtx, notify.EventLifecycle, title, body); err != nil {
		a.logger.Warn("lifecycle notification failed", slog.String("error", err.Error()))
	}
}

// ignoreCancel maps the error of a loop stopped by ctx to nil.
func ignoreCancel(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
