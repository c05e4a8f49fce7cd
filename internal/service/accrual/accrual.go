// Package accrual implements the periodic daily profit accrual worker.
package accrual

import (
	"context"
	"time"

	"github.com/capitalengine/capitalengine/internal/config"
	"github.com/capitalengine/capitalengine/internal/models/modeldto"
	"github.com/capitalengine/capitalengine/internal/models/modelevent"
	"github.com/capitalengine/capitalengine/internal/service/broadcast"
	"github.com/capitalengine/capitalengine/internal/storage"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Worker accrues daily plan profits on a fixed interval. Each pass is
// idempotent per calendar day, so restarts and overlapping intervals never
// double-credit.
type Worker struct {
	storage     storage.ProfitLedger
	broadcaster *broadcast.Broadcaster
	interval    time.Duration
	log         *zerolog.Logger
}

// NewWorker initializes a profit accrual worker.
func NewWorker(st storage.ProfitLedger, br *broadcast.Broadcaster, cfg *config.AccrualConfig, log *zerolog.Logger) *Worker {
	return &Worker{
		storage:     st,
		broadcaster: br,
		interval:    cfg.AccrualInterval,
		log:         log,
	}
}

// Run starts the accrual loop inside g. The first pass runs immediately,
// subsequent passes fire on each interval tick until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error {
		w.accrueOnce(ctx)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				w.log.Info().Msg("profit accrual worker shut down")
				return nil
			case <-ticker.C:
				w.accrueOnce(ctx)
			}
		}
	})
}

func (w *Worker) accrueOnce(ctx context.Context) {
	profitDate := time.Now().Format("2006-01-02")
	entries, err := w.storage.AccrueProfits(ctx, profitDate)
	if err != nil {
		w.log.Warn().Err(err).Str("profitDate", profitDate).Msg("profit accrual pass failed")
		return
	}
	if len(entries) == 0 {
		return
	}
	w.log.Info().Str("profitDate", profitDate).Int("count", len(entries)).Msg("accrued daily profits")
	profits := make([]modeldto.Profit, 0, len(entries))
	for _, entry := range entries {
		profits = append(profits, modeldto.Profit{
			UserID:        entry.UserID,
			TransactionID: entry.TransactionID,
			Amount:        entry.Amount,
			ProfitDate:    entry.ProfitDate,
		})
	}
	w.broadcaster.Publish(modelevent.Event{
		Type:      modelevent.TypeProfitsAccrued,
		Timestamp: time.Now().Format(time.RFC3339),
		Profits:   profits,
	})
}
