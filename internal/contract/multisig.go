package contract

import (
	"context"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-faster/errors"

	"msigwallet/client/internal/chain"
	"msigwallet/client/internal/errs"
)

// Transaction is one entry of the multisig transaction list. ID is its ordinal index.
type Transaction struct {
	ID           uint64
	To           common.Address
	Value        *big.Int
	Data         []byte
	Executed     bool
	NumApprovals uint64
	// Deadline is a unix timestamp; 0 means the transaction never expires.
	Deadline int64
}

func (t Transaction) HasDeadline() bool {
	return t.Deadline != 0
}

// Clone returns a deep copy so cached records never share buffers with callers.
func (t Transaction) Clone() Transaction {
	out := t
	if t.Value != nil {
		out.Value = new(big.Int).Set(t.Value)
	}
	out.Data = append([]byte(nil), t.Data...)
	return out
}

type SubmitRequest struct {
	To       common.Address
	Value    *big.Int
	Data     []byte
	Deadline int64
}

type Multisig struct {
	bound
	variant Variant
}

var eventNames = []string{"Submit", "Approve", "Revoke", "Execute", "Deposit", "ThresholdUpdated", "DeadlineExtended", "Cancel"}

func NewMultisig(gw chain.Gateway, address common.Address, variant Variant) (*Multisig, error) {
	parsed, err := loadABI(variant.abiFile())
	if err != nil {
		return nil, err
	}
	return &Multisig{
		bound:   bound{gw: gw, address: address, abi: parsed},
		variant: variant,
	}, nil
}

func (m *Multisig) Variant() Variant {
	return m.variant
}

func (m *Multisig) Features() Features {
	return m.variant.Features()
}

// EventTopics lists the signature hashes of every state-changing event the variant emits.
func (m *Multisig) EventTopics() []common.Hash {
	out := make([]common.Hash, 0, len(eventNames))
	for _, name := range eventNames {
		if id, ok := m.Topic(name); ok {
			out = append(out, id)
		}
	}
	return out
}

func (m *Multisig) Balance(ctx context.Context) (*big.Int, error) {
	return m.gw.Balance(ctx, m.address)
}

func (m *Multisig) Owners(ctx context.Context) ([]common.Address, error) {
	values, err := m.call(ctx, "getOwners")
	if err != nil {
		return nil, err
	}
	v, err := single("getOwners", values)
	if err != nil {
		return nil, err
	}
	owners, ok := v.([]common.Address)
	if !ok {
		return nil, &errs.RemoteReadError{Method: "getOwners", Err: errors.Errorf("expected address[], got %T", v)}
	}
	return owners, nil
}

func (m *Multisig) uintGetter(ctx context.Context, method string) (uint64, error) {
	values, err := m.call(ctx, method)
	if err != nil {
		return 0, err
	}
	v, err := single(method, values)
	if err != nil {
		return 0, err
	}
	return asUint64(method, v)
}

func (m *Multisig) Required(ctx context.Context) (uint64, error) {
	return m.uintGetter(ctx, "required")
}

func (m *Multisig) TransactionCount(ctx context.Context) (uint64, error) {
	return m.uintGetter(ctx, "getTransactionCount")
}

// Threshold returns the value-based auto-approval cutoff in wei.
func (m *Multisig) Threshold(ctx context.Context) (*big.Int, error) {
	if !m.Features().Threshold {
		return nil, errs.Validation("threshold", "contract variant %s has no threshold", m.variant)
	}
	values, err := m.call(ctx, "getThreshold")
	if err != nil {
		return nil, err
	}
	v, err := single("getThreshold", values)
	if err != nil {
		return nil, err
	}
	return asBig("getThreshold", v)
}

func (m *Multisig) IsOwner(ctx context.Context, addr common.Address) (bool, error) {
	values, err := m.call(ctx, "isOwner", addr)
	if err != nil {
		return false, err
	}
	v, err := single("isOwner", values)
	if err != nil {
		return false, err
	}
	return asBool("isOwner", v)
}

func (m *Multisig) Approved(ctx context.Context, id uint64, owner common.Address) (bool, error) {
	values, err := m.call(ctx, "approved", new(big.Int).SetUint64(id), owner)
	if err != nil {
		return false, err
	}
	v, err := single("approved", values)
	if err != nil {
		return false, err
	}
	return asBool("approved", v)
}

func (m *Multisig) Paused(ctx context.Context) (bool, error) {
	if !m.Features().Admin {
		return false, nil
	}
	values, err := m.call(ctx, "paused")
	if err != nil {
		return false, err
	}
	v, err := single("paused", values)
	if err != nil {
		return false, err
	}
	return asBool("paused", v)
}

func (m *Multisig) Transaction(ctx context.Context, id uint64) (Transaction, error) {
	const method = "getTransaction"
	values, err := m.call(ctx, method, new(big.Int).SetUint64(id))
	if err != nil {
		return Transaction{}, err
	}
	want := 5
	if m.Features().Deadline {
		want = 6
	}
	if len(values) != want {
		return Transaction{}, &errs.RemoteReadError{Method: method, Err: errors.Errorf("expected %d outputs, got %d", want, len(values))}
	}
	to, ok := values[0].(common.Address)
	if !ok {
		return Transaction{}, &errs.RemoteReadError{Method: method, Err: errors.Errorf("expected address, got %T", values[0])}
	}
	value, err := asBig(method, values[1])
	if err != nil {
		return Transaction{}, err
	}
	data, ok := values[2].([]byte)
	if !ok {
		return Transaction{}, &errs.RemoteReadError{Method: method, Err: errors.Errorf("expected bytes, got %T", values[2])}
	}
	executed, err := asBool(method, values[3])
	if err != nil {
		return Transaction{}, err
	}
	approvals, err := asUint64(method, values[4])
	if err != nil {
		return Transaction{}, err
	}
	tx := Transaction{
		ID:           id,
		To:           to,
		Value:        value,
		Data:         data,
		Executed:     executed,
		NumApprovals: approvals,
	}
	if want == 6 {
		deadline, err := asBig(method, values[5])
		if err != nil {
			return Transaction{}, err
		}
		// far-future deadlines saturate instead of wrapping into the past
		tx.Deadline = math.MaxInt64
		if deadline.IsInt64() {
			tx.Deadline = deadline.Int64()
		}
	}
	return tx, nil
}

func (m *Multisig) Submit(ctx context.Context, from common.Address, req SubmitRequest) (*chain.Receipt, error) {
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	data := req.Data
	if data == nil {
		data = []byte{}
	}
	if m.Features().Deadline {
		if req.Deadline < 0 {
			return nil, errs.Validation("deadline", "must not be negative")
		}
		return m.transact(ctx, from, "submit", req.To, value, data, big.NewInt(req.Deadline))
	}
	if req.Deadline != 0 {
		return nil, errs.Validation("deadline", "contract variant %s has no deadlines", m.variant)
	}
	return m.transact(ctx, from, "submit", req.To, value, data)
}

func (m *Multisig) Approve(ctx context.Context, from common.Address, id uint64) (*chain.Receipt, error) {
	return m.transact(ctx, from, "approve", new(big.Int).SetUint64(id))
}

func (m *Multisig) Revoke(ctx context.Context, from common.Address, id uint64) (*chain.Receipt, error) {
	return m.transact(ctx, from, "revoke", new(big.Int).SetUint64(id))
}

func (m *Multisig) Execute(ctx context.Context, from common.Address, id uint64) (*chain.Receipt, error) {
	return m.transact(ctx, from, "execute", new(big.Int).SetUint64(id))
}

func (m *Multisig) UpdateThreshold(ctx context.Context, from common.Address, value *big.Int) (*chain.Receipt, error) {
	if !m.Features().Threshold {
		return nil, errs.Validation("threshold", "contract variant %s has no threshold", m.variant)
	}
	if value == nil || value.Sign() < 0 {
		return nil, errs.Validation("threshold", "must be a non-negative amount")
	}
	return m.transact(ctx, from, "updateThreshold", value)
}

func (m *Multisig) ExtendDeadline(ctx context.Context, from common.Address, id uint64, deadline int64) (*chain.Receipt, error) {
	if !m.Features().Admin {
		return nil, errs.Validation("extendDeadline", "contract variant %s has no admin surface", m.variant)
	}
	if deadline <= 0 {
		return nil, errs.Validation("deadline", "must be a unix timestamp")
	}
	return m.transact(ctx, from, "extendDeadline", new(big.Int).SetUint64(id), big.NewInt(deadline))
}

func (m *Multisig) CancelTransaction(ctx context.Context, from common.Address, id uint64) (*chain.Receipt, error) {
	if !m.Features().Admin {
		return nil, errs.Validation("cancelTransaction", "contract variant %s has no admin surface", m.variant)
	}
	return m.transact(ctx, from, "cancelTransaction", new(big.Int).SetUint64(id))
}

func (m *Multisig) Pause(ctx context.Context, from common.Address) (*chain.Receipt, error) {
	if !m.Features().Admin {
		return nil, errs.Validation("pauseContract", "contract variant %s has no admin surface", m.variant)
	}
	return m.transact(ctx, from, "pauseContract")
}

func (m *Multisig) Unpause(ctx context.Context, from common.Address) (*chain.Receipt, error) {
	if !m.Features().Admin {
		return nil, errs.Validation("unpauseContract", "contract variant %s has no admin surface", m.variant)
	}
	return m.transact(ctx, from, "unpauseContract")
}
