package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marketforge/mmaker/internal/engine"
	"github.com/marketforge/mmaker/internal/server"
	"github.com/marketforge/mmaker/internal/server/handler"
	"github.com/marketforge/mmaker/internal/server/ws"
	"github.com/marketforge/mmaker/internal/service"
)

// Serve restores persisted markets into live engines, then runs the HTTP API
// and the WebSocket hub until the context is cancelled.
func (a *App) Serve(ctx context.Context, deps *Dependencies) error {
	registry := engine.NewRegistry()
	engineCfg := engine.DefaultConfig()
	engineCfg.SeedCoins = a.cfg.Engine.SeedCoins
	engineCfg.RedemptionCoins = a.cfg.Engine.RedemptionCoins

	marketSvc := service.NewMarketService(
		deps.MarketStore, deps.LedgerStore, registry,
		deps.Archiver, deps.PriceCache, deps.SignalBus,
		engineCfg, a.logger,
	)
	tradeSvc := service.NewTradeService(registry, deps.PriceCache, deps.SignalBus, a.logger)
	historySvc := service.NewHistoryService(registry, a.logger)

	restored, err := marketSvc.Restore(ctx)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "markets restored", slog.Int("count", restored))

	g, ctx := errgroup.WithContext(ctx)

	wsHub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		err := wsHub.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
			RateLimit:   a.cfg.Server.RateLimit,
			RateWindow:  a.cfg.Server.RateWindow.Duration,
		},
		server.Handlers{
			Health:  handler.NewHealthHandler(a.logger),
			Markets: handler.NewMarketHandler(marketSvc, tradeSvc, a.logger),
			Orders:  handler.NewOrderHandler(tradeSvc, a.logger),
			History: handler.NewHistoryHandler(historySvc, a.logger),
		},
		wsHub,
		deps.RateLimiter,
		a.logger,
	)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}
