// Package rest provides functionality for initializing a server.
package rest

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/capitalengine/capitalengine/internal/api/rest/client"
	"github.com/capitalengine/capitalengine/internal/api/rest/handlers"
	"github.com/capitalengine/capitalengine/internal/api/rest/middleware"
	"github.com/capitalengine/capitalengine/internal/config"
	"github.com/capitalengine/capitalengine/internal/service/accrual"
	"github.com/capitalengine/capitalengine/internal/service/broadcast"
	"github.com/capitalengine/capitalengine/internal/service/processor/processor"
	"github.com/capitalengine/capitalengine/internal/service/secretary/secretary"
	"github.com/capitalengine/capitalengine/internal/storage"
	"github.com/capitalengine/capitalengine/internal/storage/inmem"
	"github.com/capitalengine/capitalengine/internal/storage/psql"
	"github.com/go-chi/chi"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// InitServer returns a http.Server object ready to be listening and serving.
func InitServer(ctx context.Context, cfg *config.Config, log *zerolog.Logger, wg *sync.WaitGroup) (server *http.Server, err error) {
	// initialize storage, empty DSN selects the in-memory demo store
	var st storage.Storage
	if cfg.StorageConfig.DatabaseDSN != "" {
		psqlStorage, err := psql.InitStorage(ctx, cfg.StorageConfig, log)
		if err != nil {
			return nil, err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			if err := psqlStorage.Close(); err != nil {
				log.Error().Err(err).Msg("PSQL DB connection closing failed")
				return
			}
			log.Info().Msg("PSQL DB connection closed successfully")
		}()
		st = psqlStorage
	} else {
		log.Info().Msg("no DSN was provided, running with in-memory storage")
		st = inmem.InitStorage(log)
	}

	// initialize secretary
	secretaryService, err := secretary.NewSecretaryService(cfg.SecretConfig)
	if err != nil {
		return nil, err
	}

	// initialize token handler
	tokenHandler, err := middleware.NewTokenHandler(secretaryService)
	if err != nil {
		return nil, err
	}

	// initialize broadcast hub
	broadcaster := broadcast.NewBroadcaster(log)
	broadcaster.Run(ctx, wg)

	// initialize rate service client
	rateClient := client.InitClient(cfg.ServerConfig, log)

	// initialize main service
	mainService, err := processor.InitService(st, secretaryService, rateClient, broadcaster, cfg.SecretConfig, log)
	if err != nil {
		return nil, err
	}

	// initialize profit accrual worker
	g, gctx := errgroup.WithContext(ctx)
	accrualWorker := accrual.NewWorker(st, broadcaster, cfg.AccrualConfig, log)
	accrualWorker.Run(gctx, g)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := g.Wait(); err != nil {
			log.Error().Err(err).Msg("profit accrual worker failed")
		}
	}()

	urlHandler, err := handlers.InitHandlers(mainService, broadcaster, cfg.ServerConfig, log)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	publicGroup := r.Group(nil)
	publicGroup.Post("/api/user/register", urlHandler.HandleRegister())
	publicGroup.Post("/api/user/login", urlHandler.HandleLogin())
	publicGroup.Post("/api/admin/login", urlHandler.HandleAdminLogin())
	publicGroup.Get("/api/plans", urlHandler.HandlePlans())
	userGroup := r.Group(nil)
	userGroup.Use(tokenHandler.TokenHandle)
	userGroup.Get("/api/user/me", urlHandler.HandleMe())
	userGroup.Post("/api/user/logout", urlHandler.HandleLogout())
	userGroup.Post("/api/user/password/reset", urlHandler.HandlePasswordReset())
	userGroup.Get("/api/user/balance", urlHandler.HandleBalance())
	userGroup.Get("/api/user/transactions", urlHandler.HandleTransactions())
	userGroup.Get("/api/user/profits", urlHandler.HandleProfits())
	userGroup.Post("/api/user/deposit", urlHandler.HandleDeposit())
	userGroup.Post("/api/user/withdraw", urlHandler.HandleWithdraw())
	adminGroup := r.Group(nil)
	adminGroup.Use(tokenHandler.AdminTokenHandle)
	adminGroup.Get("/api/admin/users", urlHandler.HandleAdminUsers())
	adminGroup.Get("/api/admin/transactions", urlHandler.HandleAdminTransactions())
	adminGroup.Post("/api/admin/balance", urlHandler.HandleAdminSetBalance())
	adminGroup.Post("/api/admin/transactions/{transactionID}", urlHandler.HandleAdminUpdateStatus())
	adminGroup.Delete("/api/admin/data", urlHandler.HandleAdminWipe())
	adminGroup.Get("/api/admin/events", urlHandler.HandleAdminEvents())

	srv := &http.Server{
		Addr:        cfg.ServerConfig.ServerAddress,
		Handler:     r,
		IdleTimeout: 60 * time.Second,
		ReadTimeout: 60 * time.Second,
		// no write timeout, the admin event stream is long-lived
		WriteTimeout: 0,
	}
	return srv, nil
}
