package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/config"
	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/router"
	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/session"
	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-civic-auth/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-civic-auth/pkg/database"
	"github.com/ovaphlow/pitchfork/service-civic-auth/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-civic-auth")

	cfg := config.ConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		sugar.Fatalf("config: %v", err)
	}

	ids := utilities.NewIDGenerator(cfg.SnowflakeNode)

	store, closeStore, err := openStore(cfg, ids, sugar)
	if err != nil {
		sugar.Fatalf("store: %v", err)
	}
	defer closeStore()

	issuer := session.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	svc, err := user.NewUserService(store, user.BcryptHasher{Cost: cfg.BcryptCost}, issuer,
		user.DomainSuffixPolicy(cfg.OrgDomainSuffix), sugar)
	if err != nil {
		sugar.Fatalf("user service: %v", err)
	}

	handler := router.RegisterRoutes(sugar, user.NewHandler(svc, sugar), session.NewHandler(sugar), issuer)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Infow("listening", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver)

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}

// openStore selects the credential store. The memory store is for local runs
// and loses every account on restart.
func openStore(cfg config.Config, ids *utilities.IDGenerator, logger *zap.SugaredLogger) (userrepo.Store, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("using in-memory credential store")
		return userrepo.NewMemoryRepo(ids), func() {}, nil
	}

	db, err := database.Open(database.ConfigFromEnv())
	if err != nil {
		return nil, nil, err
	}
	repo := userrepo.NewUserRepo(db, ids)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := repo.EnsureTable(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ensure accounts table: %w", err)
	}
	return repo, func() { db.Close() }, nil
}
