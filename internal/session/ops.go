package session

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"msigwallet/client/internal/chain"
	"msigwallet/client/internal/contract"
	"msigwallet/client/internal/errs"
	"msigwallet/client/internal/units"
)

// SubmitInput is a proposed transaction as typed by the user.
type SubmitInput struct {
	To    string
	Value *big.Int
	// Data is 0x-prefixed hex; empty means no calldata.
	Data string
	// Deadline is a unix timestamp; 0 means none.
	Deadline int64
}

func (s *Session) validateSubmit(in SubmitInput) (contract.SubmitRequest, error) {
	if !common.IsHexAddress(in.To) {
		return contract.SubmitRequest{}, errs.Validation("to", "%q is not a hex address", in.To)
	}
	value := in.Value
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() < 0 {
		return contract.SubmitRequest{}, errs.Validation("value", "must not be negative")
	}
	data := []byte{}
	if in.Data != "" {
		decoded, err := hexutil.Decode(in.Data)
		if err != nil {
			return contract.SubmitRequest{}, errs.Validation("data", "%v", err)
		}
		data = decoded
	}
	if in.Deadline != 0 {
		if !s.wallet.Features().Deadline {
			return contract.SubmitRequest{}, errs.Validation("deadline", "contract has no deadlines")
		}
		if in.Deadline <= s.opts.Now().Unix() {
			return contract.SubmitRequest{}, errs.Validation("deadline", "must be in the future")
		}
	}
	return contract.SubmitRequest{
		To:       common.HexToAddress(in.To),
		Value:    value,
		Data:     data,
		Deadline: in.Deadline,
	}, nil
}

// Submit proposes a transaction. The value is checked against a fresh wallet balance before anything is signed.
func (s *Session) Submit(ctx context.Context, in SubmitInput) (*chain.Receipt, error) {
	return s.mutate(ctx, "submit", nil, func(ctx context.Context, from common.Address) (*chain.Receipt, error) {
		req, err := s.validateSubmit(in)
		if err != nil {
			return nil, err
		}
		balance, err := s.wallet.Balance(ctx)
		if err != nil {
			return nil, err
		}
		if req.Value.Cmp(balance) > 0 {
			return nil, errs.Validation("value", "%s ETH exceeds wallet balance %s ETH",
				units.FormatEther(req.Value), units.FormatEther(balance))
		}
		return s.wallet.Submit(ctx, from, req)
	})
}

// gate refuses writes to transactions whose cached deadline has passed.
func (s *Session) gate(id uint64) error {
	s.mu.RLock()
	rec, ok := s.state.Lookup(id)
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	if Evaluate(rec, s.opts.Now()).Status == StatusExpired {
		return errs.Validation("transaction", "#%d is expired", id)
	}
	return nil
}

func (s *Session) gated(ctx context.Context, op string, id uint64, write func(context.Context, common.Address, uint64) (*chain.Receipt, error)) (*chain.Receipt, error) {
	return s.mutate(ctx, op, &id, func(ctx context.Context, from common.Address) (*chain.Receipt, error) {
		if err := s.gate(id); err != nil {
			return nil, err
		}
		return write(ctx, from, id)
	})
}

func (s *Session) Approve(ctx context.Context, id uint64) (*chain.Receipt, error) {
	return s.gated(ctx, "approve", id, s.wallet.Approve)
}

func (s *Session) Revoke(ctx context.Context, id uint64) (*chain.Receipt, error) {
	return s.gated(ctx, "revoke", id, s.wallet.Revoke)
}

func (s *Session) Execute(ctx context.Context, id uint64) (*chain.Receipt, error) {
	return s.gated(ctx, "execute", id, s.wallet.Execute)
}

func (s *Session) UpdateThreshold(ctx context.Context, value *big.Int) (*chain.Receipt, error) {
	return s.mutate(ctx, "updateThreshold", nil, func(ctx context.Context, from common.Address) (*chain.Receipt, error) {
		return s.wallet.UpdateThreshold(ctx, from, value)
	})
}

func (s *Session) ExtendDeadline(ctx context.Context, id uint64, deadline int64) (*chain.Receipt, error) {
	return s.mutate(ctx, "extendDeadline", &id, func(ctx context.Context, from common.Address) (*chain.Receipt, error) {
		if deadline <= s.opts.Now().Unix() {
			return nil, errs.Validation("deadline", "must be in the future")
		}
		return s.wallet.ExtendDeadline(ctx, from, id, deadline)
	})
}

func (s *Session) CancelTransaction(ctx context.Context, id uint64) (*chain.Receipt, error) {
	return s.mutate(ctx, "cancelTransaction", &id, func(ctx context.Context, from common.Address) (*chain.Receipt, error) {
		return s.wallet.CancelTransaction(ctx, from, id)
	})
}

func (s *Session) Pause(ctx context.Context) (*chain.Receipt, error) {
	return s.mutate(ctx, "pause", nil, s.wallet.Pause)
}

func (s *Session) Unpause(ctx context.Context) (*chain.Receipt, error) {
	return s.mutate(ctx, "unpause", nil, s.wallet.Unpause)
}
