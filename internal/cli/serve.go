package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/yourtongji/creditd/internal/api"
	"github.com/yourtongji/creditd/internal/app/escrow"
	"github.com/yourtongji/creditd/internal/app/ledger"
	"github.com/yourtongji/creditd/internal/app/redeem"
	"github.com/yourtongji/creditd/internal/app/report"
	"github.com/yourtongji/creditd/internal/auth"
	"github.com/yourtongji/creditd/internal/daemon"
	"github.com/yourtongji/creditd/internal/domain"
	"github.com/yourtongji/creditd/internal/infra/noncecache"
	"github.com/yourtongji/creditd/internal/infra/ratelimit"
	"github.com/yourtongji/creditd/internal/infra/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the credit ledger API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log := newLogger()

	cfg, err := daemon.Load(configPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return err
	}
	db, err := sqlite.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("store opened", "path", cfg.Store.Path)

	var guard domain.ReplayGuard
	switch cfg.Nonce.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(cmd.Context()).Err(); err != nil {
			return err
		}
		defer client.Close()
		guard = noncecache.NewRedis(client)
		log.Info("replay guard", "backend", "redis", "addr", cfg.Redis.Addr)
	default:
		guard = noncecache.NewMemory()
		log.Info("replay guard", "backend", "memory")
	}

	verifier := auth.NewVerifier(db, guard, cfg.Auth.Window())

	srv := api.NewServer(
		ledger.NewService(db, log),
		escrow.NewService(db, log),
		report.NewService(db, log),
		redeem.NewService(db, log),
		verifier,
		log,
	)
	srv.SetAdminToken(cfg.Auth.AdminToken)
	srv.SetSignupBonus(cfg.Reward.SignupBonus)
	if cfg.RateLimit.RequestsPerMinute > 0 {
		srv.SetRateLimiter(ratelimit.New(cfg.RateLimit.RequestsPerMinute))
	}
	if cfg.API.Metrics {
		srv.EnableMetrics()
	}

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api listening", "addr", httpSrv.Addr, "version", api.Version)
		errCh <- httpSrv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(ctx)
	}
}
