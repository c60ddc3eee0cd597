package auth

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredDeleter is the slice of the ledger the sweeper needs.
// *repository.TokenRepo satisfies it.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically purges expired ledger rows.  Expiry is already
// passive (queries ignore rows past expires_at), so the sweep only bounds
// storage growth; running it concurrently with inserts and reads is safe
// because each sweep is a single DELETE statement.
type Sweeper struct {
	log      *slog.Logger
	ledger   ExpiredDeleter
	interval time.Duration
}

func NewSweeper(logger *slog.Logger, ledger ExpiredDeleter, interval time.Duration) *Sweeper {
	return &Sweeper{log: logger, ledger: ledger, interval: interval}
}

// Run blocks, sweeping once per interval until the context is cancelled.
// Intended to be launched as a goroutine from main.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.ledger.DeleteExpired(ctx)
			if err != nil {
				s.log.Error("ledger sweep failed", slog.Any("err", err))
				continue
			}
			if n > 0 {
				s.log.Info("ledger swept", slog.Int64("removed", n))
			}
		}
	}
}
