// Package runtime drives a connected session for the live console: redraws on a clock tick,
// refreshes on a poll interval and refreshes early when the contract emits events.
package runtime

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"msigwallet/client/internal/chain"
	"msigwallet/client/internal/errs"
	"msigwallet/client/internal/session"
)

type Refresher interface {
	Refresh(ctx context.Context) (session.State, error)
}

// EventNamer maps an event topic to its ABI name.
type EventNamer func(topic common.Hash) (string, bool)

const (
	defaultTick = time.Second
	defaultPoll = 15 * time.Second
)

type Runner struct {
	Tick time.Duration
	Poll time.Duration
	// LogEvery is how often the contract's logs are checked. Zero disables log watching.
	LogEvery time.Duration
	Session  Refresher
	Logs     chain.LogSource
	Contract common.Address
	Topics   []common.Hash
	Names    EventNamer
	// Render draws the cached state. It runs on every tick and must not touch the network.
	Render func(now time.Time)
	Logger *zap.Logger

	lastBlock uint64
	sawHead   bool
}

func (r *Runner) Run(ctx context.Context) error {
	if r.Logger == nil {
		r.Logger = zap.NewNop()
	}
	tick, poll := r.Tick, r.Poll
	if tick <= 0 {
		tick = defaultTick
	}
	if poll <= 0 {
		poll = defaultPoll
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	poller := time.NewTicker(poll)
	defer poller.Stop()

	var logC <-chan time.Time
	if r.Logs != nil && r.LogEvery > 0 {
		watcher := time.NewTicker(r.LogEvery)
		defer watcher.Stop()
		logC = watcher.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if r.Render != nil {
				r.Render(now)
			}
		case <-poller.C:
			if err := r.refresh(ctx, "poll"); err != nil {
				return err
			}
		case <-logC:
			hit, err := r.checkLogs(ctx)
			if err != nil {
				r.Logger.Warn("log check failed", zap.Error(err))
				continue
			}
			if !hit {
				continue
			}
			if err := r.refresh(ctx, "event"); err != nil {
				return err
			}
		}
	}
}

// refresh only returns errors that end the session; the rest are logged and retried on the next poll.
func (r *Runner) refresh(ctx context.Context, cause string) error {
	_, err := r.Session.Refresh(ctx)
	if err == nil {
		r.Logger.Debug("state refreshed", zap.String("cause", cause))
		return nil
	}
	if errs.IsFatal(err) {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.Logger.Warn("refresh failed", zap.String("cause", cause), zap.Error(err))
	return nil
}

// checkLogs reports whether the contract emitted any watched event since the last check.
// The first call only records the chain head.
func (r *Runner) checkLogs(ctx context.Context) (bool, error) {
	head, err := r.Logs.BlockNumber(ctx)
	if err != nil {
		return false, err
	}
	if !r.sawHead {
		r.lastBlock, r.sawHead = head, true
		return false, nil
	}
	if head <= r.lastBlock {
		return false, nil
	}
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(r.lastBlock + 1),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{r.Contract},
	}
	if len(r.Topics) > 0 {
		q.Topics = [][]common.Hash{r.Topics}
	}
	logs, err := r.Logs.FilterLogs(ctx, q)
	if err != nil {
		return false, err
	}
	r.lastBlock = head
	for _, l := range logs {
		name := "unknown"
		if r.Names != nil && len(l.Topics) > 0 {
			if n, ok := r.Names(l.Topics[0]); ok {
				name = n
			}
		}
		r.Logger.Info("contract event", zap.String("event", name), zap.Uint64("block", l.BlockNumber), zap.Stringer("tx_hash", l.TxHash))
	}
	return len(logs) > 0, nil
}
