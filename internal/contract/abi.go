// Package contract binds the multisig and age storage contracts over a chain.Gateway.
package contract

import (
	"bytes"
	"context"
	"embed"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-faster/errors"

	"msigwallet/client/internal/chain"
	"msigwallet/client/internal/errs"
	"msigwallet/client/internal/metrics"
)

//go:embed abi/*.json
var abiFiles embed.FS

// Variant selects which deployed ABI the multisig binding speaks.
type Variant string

const (
	VariantDeadline Variant = "deadline"
	VariantBasic    Variant = "basic"
	// VariantAdmin is the deadline contract plus extend, cancel and pause controls.
	VariantAdmin Variant = "admin"
)

func ParseVariant(s string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case "", VariantDeadline:
		return VariantDeadline, nil
	case VariantBasic:
		return VariantBasic, nil
	case VariantAdmin:
		return VariantAdmin, nil
	default:
		return "", errors.Errorf("unknown contract variant %q", s)
	}
}

// Features lists the optional parts of the ABI a variant exposes.
type Features struct {
	Deadline  bool
	Threshold bool
	Admin     bool
}

func (v Variant) Features() Features {
	switch v {
	case VariantBasic:
		return Features{}
	case VariantAdmin:
		return Features{Deadline: true, Threshold: true, Admin: true}
	default:
		return Features{Deadline: true, Threshold: true}
	}
}

func (v Variant) abiFile() string {
	switch v {
	case VariantBasic:
		return "abi/multisig_basic.json"
	case VariantAdmin:
		return "abi/multisig_admin.json"
	default:
		return "abi/multisig_deadline.json"
	}
}

func loadABI(name string) (abi.ABI, error) {
	raw, err := abiFiles.ReadFile(name)
	if err != nil {
		return abi.ABI{}, err
	}
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return abi.ABI{}, errors.Wrapf(err, "parse %s", name)
	}
	return parsed, nil
}

// bound is a contract address plus the ABI used to talk to it.
type bound struct {
	gw      chain.Gateway
	address common.Address
	abi     abi.ABI
}

func (b *bound) Address() common.Address {
	return b.address
}

func (b *bound) call(ctx context.Context, method string, args ...any) ([]any, error) {
	input, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, &errs.RemoteReadError{Method: method, Err: errors.Wrap(err, "pack")}
	}
	out, err := b.gw.Call(ctx, b.address, input)
	metrics.ContractCall(method, "call", err)
	if err != nil {
		return nil, &errs.RemoteReadError{Method: method, Err: err}
	}
	if len(out) == 0 {
		return nil, &errs.RemoteReadError{Method: method, Err: errors.Errorf("empty result, no contract with this ABI at %s", b.address.Hex())}
	}
	values, err := b.abi.Unpack(method, out)
	if err != nil {
		return nil, &errs.RemoteReadError{Method: method, Err: errors.Wrap(err, "decode")}
	}
	return values, nil
}

func (b *bound) transact(ctx context.Context, from common.Address, method string, args ...any) (*chain.Receipt, error) {
	if from == (common.Address{}) {
		return nil, errs.Validation("account", "no signer account selected")
	}
	input, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, errs.Validation(method, "%v", err)
	}
	receipt, err := b.gw.Send(ctx, chain.SendRequest{Method: method, From: from, To: b.address, Data: input})
	metrics.ContractCall(method, "send", err)
	return receipt, err
}

// Topic returns the event signature hash for name, or false if the ABI lacks it.
func (b *bound) Topic(name string) (common.Hash, bool) {
	ev, ok := b.abi.Events[name]
	if !ok {
		return common.Hash{}, false
	}
	return ev.ID, true
}

// EventName resolves a log topic back to the event name.
func (b *bound) EventName(topic common.Hash) (string, bool) {
	ev, err := b.abi.EventByID(topic)
	if err != nil {
		return "", false
	}
	return ev.Name, true
}

func single(method string, values []any) (any, error) {
	if len(values) != 1 {
		return nil, &errs.RemoteReadError{Method: method, Err: errors.Errorf("expected 1 output, got %d", len(values))}
	}
	return values[0], nil
}

func asBig(method string, v any) (*big.Int, error) {
	n, ok := v.(*big.Int)
	if !ok || n == nil {
		return nil, &errs.RemoteReadError{Method: method, Err: errors.Errorf("expected uint256, got %T", v)}
	}
	return n, nil
}

func asUint64(method string, v any) (uint64, error) {
	n, err := asBig(method, v)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, &errs.RemoteReadError{Method: method, Err: errors.Errorf("value %s overflows uint64", n)}
	}
	return n.Uint64(), nil
}

func asBool(method string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, &errs.RemoteReadError{Method: method, Err: errors.Errorf("expected bool, got %T", v)}
	}
	return b, nil
}
