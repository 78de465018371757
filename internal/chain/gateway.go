// Package chain is the boundary to the node and the signer: reads, signed writes, account selection and logs.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CancelFn removes a previously registered listener.
type CancelFn func()

// Gateway is everything the contract bindings need from the chain.
type Gateway interface {
	// RequestAccounts connects the signer and returns its accounts, active first.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// Accounts returns the already connected accounts, active first.
	Accounts() []common.Address
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
	// Call runs a read-only contract call against the latest block.
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	// Send signs, broadcasts and blocks until the transaction is mined.
	Send(ctx context.Context, req SendRequest) (*Receipt, error)
	OnAccountsChanged(fn func([]common.Address)) CancelFn
}

// LogSource is implemented by gateways that can report contract events.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

type SendRequest struct {
	Method string
	From   common.Address
	To     common.Address
	Data   []byte
	Value  *big.Int
}

type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
}

// Confirmer asks the operator to approve a signature before it is broadcast.
type Confirmer interface {
	ConfirmTransaction(method string, tx *types.Transaction) bool
}

// AutoConfirm approves every transaction.
type AutoConfirm struct{}

func (AutoConfirm) ConfirmTransaction(string, *types.Transaction) bool { return true }
