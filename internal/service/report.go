package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tallybook/internal/domain"
	"tallybook/internal/events"
	"tallybook/internal/logging"
	"tallybook/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Summary is the dashboard view over remote and pending local transactions.
type Summary struct {
	Income       decimal.Decimal `json:"income"`
	Expense      decimal.Decimal `json:"expense"`
	Net          decimal.Decimal `json:"net"`
	RemoteCount  int             `json:"remote_count"`
	PendingCount int             `json:"pending_count"`
	Stale        bool            `json:"stale"`
	SyncSeq      uint64          `json:"sync_seq"`
	RefreshedAt  time.Time       `json:"refreshed_at"`
}

// SignalSource hands out sync signal subscriptions.
type SignalSource interface {
	Subscribe() *events.Subscription
}

// ReportView keeps a Summary current by refreshing after every sync signal.
type ReportView struct {
	remote domain.RemoteStore
	queue  domain.Queue
	logger *zerolog.Logger

	mu       sync.RWMutex
	snapshot []models.RemoteTransaction
	fetched  bool
	summary  Summary
}

func NewReportView(remoteStore domain.RemoteStore, queue domain.Queue, logger *zerolog.Logger) *ReportView {
	return &ReportView{
		remote: remoteStore,
		queue:  queue,
		logger: logging.Component(logger, "report"),
	}
}

// Summary returns the last computed summary.
func (v *ReportView) Summary() Summary {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.summary
}

// Refresh recomputes the summary. When the remote cannot be read the last
// remote snapshot is reused and the summary is marked stale.
func (v *ReportView) Refresh(ctx context.Context) (Summary, error) {
	return v.refresh(ctx, 0)
}

func (v *ReportView) refresh(ctx context.Context, seq uint64) (Summary, error) {
	// Remote first: an entry synced between the two reads then shows up in
	// neither list rather than in both.
	remoteTxs, remoteErr := v.remote.List(ctx)

	pending, err := v.queue.ListUnsynced(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list pending entries: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	stale := false
	if remoteErr != nil {
		v.logger.Warn().Err(remoteErr).Msg("Remote list failed, using last snapshot")
		remoteTxs = v.snapshot
		stale = true
	} else {
		v.snapshot = remoteTxs
		v.fetched = true
	}

	if seq == 0 {
		seq = v.summary.SyncSeq
	}

	s := Summary{
		Income:       decimal.Zero,
		Expense:      decimal.Zero,
		RemoteCount:  len(remoteTxs),
		PendingCount: len(pending),
		Stale:        stale || !v.fetched,
		SyncSeq:      seq,
		RefreshedAt:  time.Now().UTC(),
	}
	for i := range remoteTxs {
		s.add(remoteTxs[i].Transaction)
	}
	for i := range pending {
		s.add(pending[i].Payload)
	}
	s.Net = s.Income.Sub(s.Expense)

	v.summary = s
	return s, nil
}

func (s *Summary) add(tx models.Transaction) {
	switch tx.Type {
	case models.TransactionIncome:
		s.Income = s.Income.Add(tx.Amount)
	case models.TransactionExpense:
		s.Expense = s.Expense.Add(tx.Amount)
	}
}

// Watch refreshes once, then after every signal from source until ctx is done.
func (v *ReportView) Watch(ctx context.Context, source SignalSource) {
	sub := source.Subscribe()
	defer sub.Unsubscribe()

	if _, err := v.Refresh(ctx); err != nil {
		v.logger.Error().Err(err).Msg("Initial report refresh failed")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sub.C:
			if !ok {
				return
			}
			if _, err := v.refresh(ctx, sig.Seq); err != nil {
				v.logger.Error().Err(err).Uint64("seq", sig.Seq).Msg("Report refresh failed")
			}
		}
	}
}
