package session

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"msigwallet/client/internal/chain"
	"msigwallet/client/internal/contract"
	"msigwallet/client/internal/errs"
	"msigwallet/client/internal/metrics"
	"msigwallet/client/internal/store"
)

// Wallet is the contract surface the session drives. *contract.Multisig implements it.
type Wallet interface {
	Address() common.Address
	Features() contract.Features
	Balance(ctx context.Context) (*big.Int, error)
	Owners(ctx context.Context) ([]common.Address, error)
	Required(ctx context.Context) (uint64, error)
	Threshold(ctx context.Context) (*big.Int, error)
	TransactionCount(ctx context.Context) (uint64, error)
	Transaction(ctx context.Context, id uint64) (contract.Transaction, error)
	IsOwner(ctx context.Context, addr common.Address) (bool, error)
	Approved(ctx context.Context, id uint64, owner common.Address) (bool, error)
	Paused(ctx context.Context) (bool, error)

	Submit(ctx context.Context, from common.Address, req contract.SubmitRequest) (*chain.Receipt, error)
	Approve(ctx context.Context, from common.Address, id uint64) (*chain.Receipt, error)
	Revoke(ctx context.Context, from common.Address, id uint64) (*chain.Receipt, error)
	Execute(ctx context.Context, from common.Address, id uint64) (*chain.Receipt, error)
	UpdateThreshold(ctx context.Context, from common.Address, value *big.Int) (*chain.Receipt, error)
	ExtendDeadline(ctx context.Context, from common.Address, id uint64, deadline int64) (*chain.Receipt, error)
	CancelTransaction(ctx context.Context, from common.Address, id uint64) (*chain.Receipt, error)
	Pause(ctx context.Context, from common.Address) (*chain.Receipt, error)
	Unpause(ctx context.Context, from common.Address) (*chain.Receipt, error)
}

// Accounts is the part of the gateway that knows about the user's accounts.
type Accounts interface {
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
	OnAccountsChanged(fn func([]common.Address)) chain.CancelFn
}

var (
	_ Wallet   = (*contract.Multisig)(nil)
	_ Accounts = (*chain.RPCGateway)(nil)
)

// Record is a cached transaction plus whether the active account approved it.
type Record struct {
	contract.Transaction
	ApprovedByAccount bool
}

// State is one complete, consistent picture of the wallet.
type State struct {
	Account        common.Address
	IsOwner        bool
	Owners         []common.Address
	Required       uint64
	Threshold      *big.Int
	Paused         bool
	WalletBalance  *big.Int
	AccountBalance *big.Int
	Transactions   []Record
	RefreshedAt    time.Time
	Generation     uint64
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// Clone deep-copies the state.
func (s State) Clone() State {
	out := s
	out.Owners = append([]common.Address(nil), s.Owners...)
	out.Threshold = cloneBig(s.Threshold)
	out.WalletBalance = cloneBig(s.WalletBalance)
	out.AccountBalance = cloneBig(s.AccountBalance)
	out.Transactions = make([]Record, len(s.Transactions))
	for i, r := range s.Transactions {
		out.Transactions[i] = Record{Transaction: r.Transaction.Clone(), ApprovedByAccount: r.ApprovedByAccount}
	}
	return out
}

// Lookup returns the cached record with the given id.
func (s State) Lookup(id uint64) (Record, bool) {
	if id >= uint64(len(s.Transactions)) {
		return Record{}, false
	}
	return s.Transactions[id], true
}

type Options struct {
	AutoApproveBelowThreshold bool
	// ReadTimeout bounds one whole refresh. Zero means no bound.
	ReadTimeout time.Duration
	Now         func() time.Time
	Journal     *store.Store
}

// Session owns the cached wallet state. Only the session replaces it.
type Session struct {
	logger   *zap.Logger
	wallet   Wallet
	accounts Accounts
	opts     Options
	journal  *store.Store

	mu        sync.RWMutex
	account   common.Address
	state     State
	published uint64

	generation atomic.Uint64
	inflight   atomic.Bool

	baseCtx        context.Context
	cancelAccounts chain.CancelFn
}

func New(logger *zap.Logger, wallet Wallet, accounts Accounts, opts Options) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	journal := opts.Journal
	if journal == nil {
		journal = store.New(100)
	}
	return &Session{
		logger:   logger.With(zap.Stringer("contract", wallet.Address())),
		wallet:   wallet,
		accounts: accounts,
		opts:     opts,
		journal:  journal,
		baseCtx:  context.Background(),
	}
}

// Connect requests accounts, subscribes to account changes and loads the first state.
// ctx also bounds the refreshes triggered later by account changes.
func (s *Session) Connect(ctx context.Context) (State, error) {
	accounts, err := s.accounts.RequestAccounts(ctx)
	if err != nil {
		return State{}, err
	}
	if len(accounts) == 0 {
		return State{}, &errs.ConnectionError{Reason: "no accounts available"}
	}
	s.mu.Lock()
	s.account = accounts[0]
	s.baseCtx = ctx
	s.mu.Unlock()

	if s.cancelAccounts != nil {
		s.cancelAccounts()
	}
	s.cancelAccounts = s.accounts.OnAccountsChanged(s.handleAccountsChanged)
	s.logger.Info("session connected", zap.Stringer("account", accounts[0]))
	return s.Refresh(ctx)
}

func (s *Session) Close() {
	if s.cancelAccounts != nil {
		s.cancelAccounts()
		s.cancelAccounts = nil
	}
}

func (s *Session) handleAccountsChanged(accounts []common.Address) {
	if len(accounts) == 0 {
		s.logger.Warn("account list emptied, keeping previous account")
		return
	}
	s.mu.Lock()
	prev := s.account
	s.account = accounts[0]
	ctx := s.baseCtx
	s.mu.Unlock()
	if prev == accounts[0] {
		return
	}
	s.logger.Info("active account changed", zap.Stringer("from", prev), zap.Stringer("to", accounts[0]))
	if _, err := s.Refresh(ctx); err != nil {
		s.logger.Warn("refresh after account change failed", zap.Error(err))
	}
}

func (s *Session) Account() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

// Snapshot returns a deep copy of the last published state.
func (s *Session) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

func (s *Session) InFlight() bool {
	return s.inflight.Load()
}

func (s *Session) Journal() *store.Store {
	return s.journal
}

// Refresh rebuilds the full state from chain and publishes it, unless a newer refresh already did.
// On failure the previously published state is kept.
func (s *Session) Refresh(ctx context.Context) (State, error) {
	gen := s.generation.Add(1)
	started := time.Now()
	if s.opts.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ReadTimeout)
		defer cancel()
	}

	next, err := s.load(ctx, s.Account())
	metrics.RefreshDone(started, len(next.Transactions), err)
	if err != nil {
		s.logger.Warn("refresh failed", zap.Uint64("generation", gen), zap.Error(err))
		return State{}, err
	}
	next.Generation = gen
	next.RefreshedAt = s.opts.Now()
	if !s.publish(next) {
		s.logger.Debug("discarding stale refresh", zap.Uint64("generation", gen))
	}
	return s.Snapshot(), nil
}

func (s *Session) publish(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if next.Generation < s.published {
		return false
	}
	s.state = next
	s.published = next.Generation
	return true
}

func (s *Session) load(ctx context.Context, account common.Address) (State, error) {
	features := s.wallet.Features()
	next := State{Account: account}

	count, err := s.wallet.TransactionCount(ctx)
	if err != nil {
		return State{}, err
	}
	next.Transactions = make([]Record, 0, count)
	for id := uint64(0); id < count; id++ {
		tx, err := s.wallet.Transaction(ctx, id)
		if err != nil {
			return State{}, err
		}
		tx.ID = id
		rec := Record{Transaction: tx}
		if account != (common.Address{}) {
			if rec.ApprovedByAccount, err = s.wallet.Approved(ctx, id, account); err != nil {
				return State{}, err
			}
		}
		next.Transactions = append(next.Transactions, rec)
	}

	if next.Owners, err = s.wallet.Owners(ctx); err != nil {
		return State{}, err
	}
	if next.Required, err = s.wallet.Required(ctx); err != nil {
		return State{}, err
	}
	if features.Threshold {
		if next.Threshold, err = s.wallet.Threshold(ctx); err != nil {
			return State{}, err
		}
	}
	if features.Admin {
		if next.Paused, err = s.wallet.Paused(ctx); err != nil {
			return State{}, err
		}
	}
	if next.WalletBalance, err = s.wallet.Balance(ctx); err != nil {
		return State{}, err
	}
	if account != (common.Address{}) {
		if next.AccountBalance, err = s.accounts.Balance(ctx, account); err != nil {
			return State{}, err
		}
		if next.IsOwner, err = s.wallet.IsOwner(ctx, account); err != nil {
			return State{}, err
		}
	}
	return next, nil
}

type sendFunc func(ctx context.Context, from common.Address) (*chain.Receipt, error)

// mutate runs one write under the in-flight flag, journals it and refreshes after a mined outcome.
func (s *Session) mutate(ctx context.Context, op string, id *uint64, send sendFunc) (*chain.Receipt, error) {
	if !s.inflight.CompareAndSwap(false, true) {
		return nil, errs.ErrOperationInFlight
	}
	metrics.OperationStarted()
	defer func() {
		s.inflight.Store(false)
		metrics.OperationSettled()
	}()

	from := s.Account()
	receipt, err := send(ctx, from)
	s.record(op, id, receipt, err)

	var revert *errs.ContractRevertError
	mined := err == nil || (errors.As(err, &revert) && revert.TxHash != "")
	if !mined {
		return receipt, err
	}
	if _, rerr := s.Refresh(ctx); rerr != nil && err == nil {
		return receipt, errors.Wrapf(rerr, "refresh after %s", op)
	}
	return receipt, err
}

func (s *Session) record(op string, id *uint64, receipt *chain.Receipt, err error) {
	r := store.Receipt{
		Op:     op,
		TxID:   id,
		Result: errs.Kind(err),
		At:     s.opts.Now(),
	}
	if receipt != nil {
		r.TxHash = receipt.TxHash.Hex()
		r.Block = receipt.BlockNumber
	}
	var revert *errs.ContractRevertError
	if errors.As(err, &revert) && revert.TxHash != "" {
		r.TxHash = revert.TxHash
	}
	if err != nil {
		r.Error = err.Error()
	}
	s.journal.Add(r)

	fields := []zap.Field{zap.String("op", op), zap.String("result", r.Result)}
	if id != nil {
		fields = append(fields, zap.Uint64("tx_id", *id))
	}
	if err != nil {
		s.logger.Warn("operation failed", append(fields, zap.Error(err))...)
		return
	}
	s.logger.Info("operation mined", append(fields, zap.String("tx_hash", r.TxHash))...)
}
