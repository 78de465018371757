package session

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-faster/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"msigwallet/client/internal/chain"
	"msigwallet/client/internal/contract"
	"msigwallet/client/internal/errs"
	"msigwallet/client/internal/store"
)

var (
	ownerA   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	ownerB   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	ownerC   = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000d4")
	payee    = "0x00000000000000000000000000000000000000e5"
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

type fakeTx struct {
	tx        contract.Transaction
	approvals map[common.Address]bool
}

// fakeWallet follows the multisig contract rules in memory.
type fakeWallet struct {
	mu        sync.Mutex
	features  contract.Features
	owners    []common.Address
	required  uint64
	threshold *big.Int
	balance   *big.Int
	txs       []*fakeTx
	now       func() time.Time
	writes    int
	reads     int
	readErr   error
	sendErr   error
	hold      chan struct{}
	entered   chan struct{}
	block     uint64
}

func newFakeWallet(now func() time.Time) *fakeWallet {
	return &fakeWallet{
		features:  contract.VariantDeadline.Features(),
		owners:    []common.Address{ownerA, ownerB, ownerC},
		required:  2,
		threshold: new(big.Int),
		balance:   ether(10),
		now:       now,
	}
}

func (f *fakeWallet) Address() common.Address {
	return common.HexToAddress("0x000000000000000000000000000000000000f00d")
}

func (f *fakeWallet) Features() contract.Features { return f.features }

func (f *fakeWallet) read() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return f.readErr
}

func (f *fakeWallet) Balance(context.Context) (*big.Int, error) {
	if err := f.read(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeWallet) Owners(context.Context) ([]common.Address, error) {
	if err := f.read(); err != nil {
		return nil, err
	}
	return append([]common.Address(nil), f.owners...), nil
}

func (f *fakeWallet) Required(context.Context) (uint64, error) {
	return f.required, f.read()
}

func (f *fakeWallet) Threshold(context.Context) (*big.Int, error) {
	if err := f.read(); err != nil {
		return nil, err
	}
	return new(big.Int).Set(f.threshold), nil
}

func (f *fakeWallet) TransactionCount(context.Context) (uint64, error) {
	if err := f.read(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.txs)), nil
}

func (f *fakeWallet) Transaction(_ context.Context, id uint64) (contract.Transaction, error) {
	if err := f.read(); err != nil {
		return contract.Transaction{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if id >= uint64(len(f.txs)) {
		return contract.Transaction{}, &errs.RemoteReadError{Method: "getTransaction", Err: errors.New("out of range")}
	}
	return f.txs[id].tx.Clone(), nil
}

func (f *fakeWallet) IsOwner(_ context.Context, addr common.Address) (bool, error) {
	if err := f.read(); err != nil {
		return false, err
	}
	return f.isOwner(addr), nil
}

func (f *fakeWallet) isOwner(addr common.Address) bool {
	for _, o := range f.owners {
		if o == addr {
			return true
		}
	}
	return false
}

func (f *fakeWallet) Approved(_ context.Context, id uint64, owner common.Address) (bool, error) {
	if err := f.read(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txs[id].approvals[owner], nil
}

func (f *fakeWallet) Paused(context.Context) (bool, error) {
	return false, f.read()
}

func revert(method, reason string) error {
	return &errs.ContractRevertError{Method: method, Reason: reason, TxHash: "0xdead"}
}

// write simulates one mined transaction; apply returns the revert reason or "".
func (f *fakeWallet) write(method string, apply func() string) (*chain.Receipt, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.hold != nil {
		<-f.hold
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if reason := apply(); reason != "" {
		return nil, revert(method, reason)
	}
	f.block++
	return &chain.Receipt{TxHash: common.BigToHash(new(big.Int).SetUint64(f.block)), BlockNumber: f.block}, nil
}

func (f *fakeWallet) lookup(id uint64) (*fakeTx, string) {
	if id >= uint64(len(f.txs)) {
		return nil, "tx does not exist"
	}
	t := f.txs[id]
	if t.tx.Executed {
		return nil, "tx already executed"
	}
	if t.tx.HasDeadline() && f.now().Unix() >= t.tx.Deadline {
		return nil, "deadline passed"
	}
	return t, ""
}

func (f *fakeWallet) Submit(_ context.Context, from common.Address, req contract.SubmitRequest) (*chain.Receipt, error) {
	return f.write("submit", func() string {
		if !f.isOwner(from) {
			return "not owner"
		}
		f.txs = append(f.txs, &fakeTx{
			tx: contract.Transaction{
				ID:       uint64(len(f.txs)),
				To:       req.To,
				Value:    new(big.Int).Set(req.Value),
				Data:     req.Data,
				Deadline: req.Deadline,
			},
			approvals: map[common.Address]bool{},
		})
		return ""
	})
}

func (f *fakeWallet) Approve(_ context.Context, from common.Address, id uint64) (*chain.Receipt, error) {
	return f.write("approve", func() string {
		if !f.isOwner(from) {
			return "not owner"
		}
		t, reason := f.lookup(id)
		if reason != "" {
			return reason
		}
		if t.approvals[from] {
			return "tx already approved"
		}
		t.approvals[from] = true
		t.tx.NumApprovals++
		return ""
	})
}

func (f *fakeWallet) Revoke(_ context.Context, from common.Address, id uint64) (*chain.Receipt, error) {
	return f.write("revoke", func() string {
		t, reason := f.lookup(id)
		if reason != "" {
			return reason
		}
		if !t.approvals[from] {
			return "tx not approved"
		}
		delete(t.approvals, from)
		t.tx.NumApprovals--
		return ""
	})
}

func (f *fakeWallet) Execute(_ context.Context, from common.Address, id uint64) (*chain.Receipt, error) {
	return f.write("execute", func() string {
		t, reason := f.lookup(id)
		if reason != "" {
			return reason
		}
		if t.tx.NumApprovals < f.required && t.tx.Value.Cmp(f.threshold) >= 0 {
			return "approvals < required"
		}
		if f.balance.Cmp(t.tx.Value) < 0 {
			return "insufficient balance"
		}
		f.balance.Sub(f.balance, t.tx.Value)
		t.tx.Executed = true
		return ""
	})
}

func (f *fakeWallet) UpdateThreshold(_ context.Context, _ common.Address, value *big.Int) (*chain.Receipt, error) {
	return f.write("updateThreshold", func() string {
		f.threshold = new(big.Int).Set(value)
		return ""
	})
}

func (f *fakeWallet) ExtendDeadline(_ context.Context, _ common.Address, id uint64, deadline int64) (*chain.Receipt, error) {
	return f.write("extendDeadline", func() string {
		f.txs[id].tx.Deadline = deadline
		return ""
	})
}

func (f *fakeWallet) CancelTransaction(_ context.Context, _ common.Address, id uint64) (*chain.Receipt, error) {
	return f.write("cancelTransaction", func() string { return "not implemented" })
}

func (f *fakeWallet) Pause(context.Context, common.Address) (*chain.Receipt, error) {
	return f.write("pauseContract", func() string { return "" })
}

func (f *fakeWallet) Unpause(context.Context, common.Address) (*chain.Receipt, error) {
	return f.write("unpauseContract", func() string { return "" })
}

func (f *fakeWallet) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *fakeWallet) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

type fakeAccounts struct {
	mu        sync.Mutex
	accounts  []common.Address
	listeners []func([]common.Address)
}

func (a *fakeAccounts) RequestAccounts(context.Context) ([]common.Address, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.accounts) == 0 {
		return nil, &errs.ConnectionError{Reason: "no accounts"}
	}
	return append([]common.Address(nil), a.accounts...), nil
}

func (a *fakeAccounts) Balance(context.Context, common.Address) (*big.Int, error) {
	return ether(1), nil
}

func (a *fakeAccounts) OnAccountsChanged(fn func([]common.Address)) chain.CancelFn {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
	return func() {}
}

func (a *fakeAccounts) switchTo(addr common.Address) {
	a.mu.Lock()
	a.accounts = []common.Address{addr}
	listeners := append([]func([]common.Address){}, a.listeners...)
	a.mu.Unlock()
	for _, fn := range listeners {
		fn([]common.Address{addr})
	}
}

type fixture struct {
	now      time.Time
	wallet   *fakeWallet
	accounts *fakeAccounts
	session  *Session
}

func (fx *fixture) clock() time.Time { return fx.now }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{now: time.Unix(1_700_000_000, 0)}
	fx.wallet = newFakeWallet(fx.clock)
	fx.accounts = &fakeAccounts{accounts: []common.Address{ownerA}}
	fx.session = New(zap.NewNop(), fx.wallet, fx.accounts, Options{Now: fx.clock, Journal: store.New(0)})
	_, err := fx.session.Connect(context.Background())
	require.NoError(t, err)
	t.Cleanup(fx.session.Close)
	return fx
}

func (fx *fixture) submit(t *testing.T, value *big.Int, deadline int64) {
	t.Helper()
	_, err := fx.session.Submit(context.Background(), SubmitInput{To: payee, Value: value, Deadline: deadline})
	require.NoError(t, err)
}

func TestConnectWithoutAccounts(t *testing.T) {
	wallet := newFakeWallet(time.Now)
	s := New(zap.NewNop(), wallet, &fakeAccounts{}, Options{})
	_, err := s.Connect(context.Background())
	var connErr *errs.ConnectionError
	require.True(t, errors.As(err, &connErr))
	require.Zero(t, wallet.readCount())
}

func TestRefreshIDsMatchPositions(t *testing.T) {
	fx := newFixture(t)
	for i := 0; i < 4; i++ {
		fx.submit(t, ether(1), 0)
	}
	st, err := fx.session.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, st.Transactions, 4)
	for i, rec := range st.Transactions {
		require.Equal(t, uint64(i), rec.ID)
	}
	require.Equal(t, []common.Address{ownerA, ownerB, ownerC}, st.Owners)
	require.Equal(t, uint64(2), st.Required)
	require.True(t, st.IsOwner)
	require.Equal(t, ether(10), st.WalletBalance)
	require.Equal(t, ether(1), st.AccountBalance)
}

func TestMutationsVisibleAfterRefresh(t *testing.T) {
	fx := newFixture(t)
	fx.submit(t, ether(1), 0)

	st := fx.session.Snapshot()
	require.Len(t, st.Transactions, 1)
	require.Zero(t, st.Transactions[0].NumApprovals)

	_, err := fx.session.Approve(context.Background(), 0)
	require.NoError(t, err)
	st = fx.session.Snapshot()
	require.Equal(t, uint64(1), st.Transactions[0].NumApprovals)
	require.True(t, st.Transactions[0].ApprovedByAccount)
}

func TestApproveThenRevokeRestores(t *testing.T) {
	fx := newFixture(t)
	fx.submit(t, ether(1), 0)
	before := fx.session.Snapshot().Transactions[0]

	_, err := fx.session.Approve(context.Background(), 0)
	require.NoError(t, err)
	_, err = fx.session.Revoke(context.Background(), 0)
	require.NoError(t, err)

	after := fx.session.Snapshot().Transactions[0]
	require.Equal(t, before.NumApprovals, after.NumApprovals)
	require.False(t, after.Executed)
	require.False(t, after.ApprovedByAccount)
}

func TestExpiredTransactionIsGated(t *testing.T) {
	fx := newFixture(t)
	fx.submit(t, ether(1), fx.now.Add(time.Minute).Unix())
	_, err := fx.session.Approve(context.Background(), 0)
	require.NoError(t, err)

	fx.now = fx.now.Add(2 * time.Minute)
	_, views := fx.session.View(fx.now)
	require.Equal(t, StatusExpired, views[0].Status)
	require.False(t, views[0].CanApprove)
	require.False(t, views[0].CanExecute)
	require.False(t, views[0].CanRevoke)

	writes := fx.wallet.writeCount()
	for _, op := range []func(context.Context, uint64) (*chain.Receipt, error){
		fx.session.Approve, fx.session.Execute, fx.session.Revoke,
	} {
		_, err := op(context.Background(), 0)
		var vErr *errs.ValidationError
		require.True(t, errors.As(err, &vErr), "got %v", err)
	}
	require.Equal(t, writes, fx.wallet.writeCount())
	require.False(t, fx.session.InFlight())
}

func TestSubmitAboveBalanceIsRejected(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.session.Submit(context.Background(), SubmitInput{To: payee, Value: ether(11)})
	var vErr *errs.ValidationError
	require.True(t, errors.As(err, &vErr))
	require.Equal(t, "value", vErr.Field)
	require.Zero(t, fx.wallet.writeCount())
}

func TestSubmitValidation(t *testing.T) {
	fx := newFixture(t)
	for _, tt := range []struct {
		name  string
		in    SubmitInput
		field string
	}{
		{name: "bad address", in: SubmitInput{To: "0x1234"}, field: "to"},
		{name: "negative value", in: SubmitInput{To: payee, Value: big.NewInt(-1)}, field: "value"},
		{name: "missing prefix", in: SubmitInput{To: payee, Data: "abcd"}, field: "data"},
		{name: "odd hex", in: SubmitInput{To: payee, Data: "0xabc"}, field: "data"},
		{name: "past deadline", in: SubmitInput{To: payee, Deadline: fx.now.Unix() - 1}, field: "deadline"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.session.Submit(context.Background(), tt.in)
			var vErr *errs.ValidationError
			require.True(t, errors.As(err, &vErr), "got %v", err)
			require.Equal(t, tt.field, vErr.Field)
		})
	}
	require.Zero(t, fx.wallet.writeCount())
	require.Equal(t, len(fx.session.Journal().Last(0)), 5)
}

func TestSubmitDeadlineOnBasicVariant(t *testing.T) {
	fx := newFixture(t)
	fx.wallet.features = contract.VariantBasic.Features()
	_, err := fx.session.Submit(context.Background(), SubmitInput{To: payee, Deadline: fx.now.Unix() + 60})
	var vErr *errs.ValidationError
	require.True(t, errors.As(err, &vErr))
	require.Equal(t, "deadline", vErr.Field)
}

func TestThreeOwnerScenario(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.submit(t, ether(1), fx.now.Add(120*time.Second).Unix())

	st := fx.session.Snapshot()
	require.Len(t, st.Transactions, 1)
	require.Zero(t, st.Transactions[0].NumApprovals)

	_, err := fx.session.Approve(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), fx.session.Snapshot().Transactions[0].NumApprovals)

	fx.accounts.switchTo(ownerB)
	st = fx.session.Snapshot()
	require.Equal(t, ownerB, st.Account)
	require.False(t, st.Transactions[0].ApprovedByAccount)

	_, err = fx.session.Approve(ctx, 0)
	require.NoError(t, err)
	_, views := fx.session.View(fx.now)
	require.True(t, views[0].Ready)

	_, err = fx.session.Execute(ctx, 0)
	require.NoError(t, err)
	st = fx.session.Snapshot()
	require.True(t, st.Transactions[0].Executed)
	require.Equal(t, ether(9), st.WalletBalance)

	_, err = fx.session.Approve(ctx, 0)
	var revertErr *errs.ContractRevertError
	require.True(t, errors.As(err, &revertErr))
	require.Equal(t, "tx already executed", revertErr.Reason)
}

func TestSecondWriteWhileInFlight(t *testing.T) {
	fx := newFixture(t)
	fx.submit(t, ether(1), 0)

	fx.wallet.hold = make(chan struct{})
	fx.wallet.entered = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := fx.session.Approve(context.Background(), 0)
		done <- err
	}()
	<-fx.wallet.entered

	require.True(t, fx.session.InFlight())
	_, err := fx.session.Execute(context.Background(), 0)
	require.ErrorIs(t, err, errs.ErrOperationInFlight)

	close(fx.wallet.hold)
	require.NoError(t, <-done)
	require.False(t, fx.session.InFlight())
	require.Equal(t, uint64(1), fx.session.Snapshot().Transactions[0].NumApprovals)
}

func TestUserRejectionSkipsRefresh(t *testing.T) {
	fx := newFixture(t)
	fx.submit(t, ether(1), 0)
	fx.wallet.sendErr = &errs.UserRejectedError{Method: "approve"}

	reads := fx.wallet.readCount()
	_, err := fx.session.Approve(context.Background(), 0)
	var rejected *errs.UserRejectedError
	require.True(t, errors.As(err, &rejected))
	require.Equal(t, reads, fx.wallet.readCount())
	require.False(t, fx.session.InFlight())

	last := fx.session.Journal().Last(1)[0]
	require.Equal(t, "approve", last.Op)
	require.Equal(t, "rejected", last.Result)
	require.Equal(t, uint64(0), *last.TxID)
}

func TestRefreshFailureKeepsState(t *testing.T) {
	fx := newFixture(t)
	fx.submit(t, ether(1), 0)
	before := fx.session.Snapshot()

	fx.wallet.readErr = &errs.RemoteReadError{Method: "getTransactionCount", Err: errors.New("timeout")}
	_, err := fx.session.Refresh(context.Background())
	var readErr *errs.RemoteReadError
	require.True(t, errors.As(err, &readErr))
	require.Equal(t, before, fx.session.Snapshot())
}

func TestStaleRefreshDiscarded(t *testing.T) {
	fx := newFixture(t)
	newer := State{Generation: 10, Required: 3}
	older := State{Generation: 9, Required: 1}
	require.True(t, fx.session.publish(newer))
	require.False(t, fx.session.publish(older))
	require.Equal(t, uint64(3), fx.session.Snapshot().Required)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	fx := newFixture(t)
	fx.submit(t, ether(1), 0)
	st := fx.session.Snapshot()
	st.Transactions[0].Value.SetInt64(0)
	st.Owners[0] = stranger
	st.WalletBalance.SetInt64(0)

	again := fx.session.Snapshot()
	require.Equal(t, ether(1), again.Transactions[0].Value)
	require.Equal(t, ownerA, again.Owners[0])
	require.Equal(t, ether(10), again.WalletBalance)
}

func TestAccountChangeToStranger(t *testing.T) {
	fx := newFixture(t)
	fx.accounts.switchTo(stranger)
	st := fx.session.Snapshot()
	require.Equal(t, stranger, st.Account)
	require.False(t, st.IsOwner)

	_, err := fx.session.Submit(context.Background(), SubmitInput{To: payee, Value: ether(1)})
	var revertErr *errs.ContractRevertError
	require.True(t, errors.As(err, &revertErr))
	require.Equal(t, "not owner", revertErr.Reason)
}

func TestAdminWritesRefresh(t *testing.T) {
	fx := newFixture(t)
	fx.wallet.features = contract.VariantAdmin.Features()
	ctx := context.Background()
	_, err := fx.session.UpdateThreshold(ctx, ether(2))
	require.NoError(t, err)
	require.Equal(t, ether(2), fx.session.Snapshot().Threshold)

	fx.submit(t, ether(1), fx.now.Add(time.Minute).Unix())
	deadline := fx.now.Add(time.Hour).Unix()
	_, err = fx.session.ExtendDeadline(ctx, 0, deadline)
	require.NoError(t, err)
	require.Equal(t, deadline, fx.session.Snapshot().Transactions[0].Deadline)

	_, err = fx.session.ExtendDeadline(ctx, 0, fx.now.Unix())
	var vErr *errs.ValidationError
	require.True(t, errors.As(err, &vErr))
}
