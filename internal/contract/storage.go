package contract

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"msigwallet/client/internal/chain"
	"msigwallet/client/internal/errs"
)

// Storage binds the single-value age contract.
type Storage struct {
	bound
}

func NewStorage(gw chain.Gateway, address common.Address) (*Storage, error) {
	parsed, err := loadABI("abi/storage.json")
	if err != nil {
		return nil, err
	}
	return &Storage{bound: bound{gw: gw, address: address, abi: parsed}}, nil
}

func (s *Storage) GetAge(ctx context.Context) (*big.Int, error) {
	return s.getter(ctx, "getAge")
}

// Age reads the public state variable directly; some deployments only expose this one.
func (s *Storage) Age(ctx context.Context) (*big.Int, error) {
	return s.getter(ctx, "age")
}

// CurrentAge reads getAge and falls back to the age variable when getAge is missing.
// Transport failures are returned as is.
func (s *Storage) CurrentAge(ctx context.Context) (*big.Int, error) {
	age, err := s.GetAge(ctx)
	if err == nil {
		return age, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	if fallback, ferr := s.Age(ctx); ferr == nil {
		return fallback, nil
	}
	return nil, err
}

func (s *Storage) getter(ctx context.Context, method string) (*big.Int, error) {
	values, err := s.call(ctx, method)
	if err != nil {
		return nil, err
	}
	v, err := single(method, values)
	if err != nil {
		return nil, err
	}
	return asBig(method, v)
}

func (s *Storage) SetAge(ctx context.Context, from common.Address, age *big.Int) (*chain.Receipt, error) {
	if age == nil || age.Sign() < 0 {
		return nil, errs.Validation("age", "must be a non-negative integer")
	}
	return s.transact(ctx, from, "setAge", age)
}

func (s *Storage) MultiplyAge(ctx context.Context, from common.Address, multiplier *big.Int) (*chain.Receipt, error) {
	if multiplier == nil || multiplier.Sign() < 0 {
		return nil, errs.Validation("multiplier", "must be a non-negative integer")
	}
	return s.transact(ctx, from, "multiplyAge", multiplier)
}
