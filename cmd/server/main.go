package main // Entry point package

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/auth"
	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/config"
	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/database"
	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/handler"
	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/middleware"
	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/queue"
	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/repository"
	"github.com/Tien2003deptrai/Auth-BlackListToken/internal/router"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win
	cfg := config.Load()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	engine := auth.NewEngine(logger, users, tokens,
		cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTTL(), cfg.RefreshTTL())

	// Expired ledger rows are already ignored by every query; the sweeper
	// just keeps the table from growing forever.
	sweeper := auth.NewSweeper(logger, tokens, cfg.LedgerSweepEvery)
	go sweeper.Run(context.Background())

	// Audit trail consumer; reconnects on its own when the broker drops.
	go func() {
		if err := queue.StartAuthConsumer(); err != nil {
			log.Printf("auth consumer stopped: %v", err)
		}
	}()

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		log.Println("redis unavailable; rate limiting disabled")
	}
	rl := middleware.RateLimit(config.LoadRateLimitConfig(), rdb)

	e := echo.New()
	authHandler := handler.NewAuthHandler(cfg, users, engine)
	userHandler := handler.NewUserHandler(users)
	router.Register(e, authHandler, userHandler, engine, rl)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
