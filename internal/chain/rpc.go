package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"msigwallet/client/internal/errs"
)

// Signer holds the private keys of the local accounts.
type Signer interface {
	Accounts() []common.Address
	PrivateKey(addr common.Address) (*ecdsa.PrivateKey, error)
	OnAccountsChanged(fn func([]common.Address)) func()
}

// backend is the part of ethclient.Client the gateway uses.
type backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	Close()
}

type RPCGateway struct {
	logger  *zap.Logger
	client  backend
	signer  Signer
	confirm Confirmer
	chainID *big.Int
}

var (
	_ Gateway   = (*RPCGateway)(nil)
	_ LogSource = (*RPCGateway)(nil)
)

// Dial connects to rawURL. chainID 0 means "whatever the node reports".
func Dial(ctx context.Context, logger *zap.Logger, rawURL string, chainID int64, signer Signer, confirm Confirmer) (*RPCGateway, error) {
	client, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, &errs.ConnectionError{Reason: "dial " + rawURL, Err: err}
	}
	var id *big.Int
	if chainID != 0 {
		id = big.NewInt(chainID)
	}
	return newRPCGateway(logger, client, signer, confirm, id), nil
}

func newRPCGateway(logger *zap.Logger, client backend, signer Signer, confirm Confirmer, chainID *big.Int) *RPCGateway {
	if confirm == nil {
		confirm = AutoConfirm{}
	}
	return &RPCGateway{
		logger:  logger,
		client:  client,
		signer:  signer,
		confirm: confirm,
		chainID: chainID,
	}
}

func (g *RPCGateway) Close() {
	g.client.Close()
}

func (g *RPCGateway) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	nodeID, err := g.client.ChainID(ctx)
	if err != nil {
		return nil, &errs.ConnectionError{Reason: "node unreachable", Err: err}
	}
	if g.chainID == nil {
		g.chainID = nodeID
	} else if g.chainID.Cmp(nodeID) != 0 {
		return nil, &errs.ConnectionError{Reason: "chain id mismatch: configured " + g.chainID.String() + ", node reports " + nodeID.String()}
	}
	accounts := g.signer.Accounts()
	if len(accounts) == 0 {
		return nil, &errs.ConnectionError{Reason: "no accounts in keyring, run msigd init"}
	}
	g.logger.Debug("accounts connected", zap.Int("count", len(accounts)), zap.Stringer("chain_id", g.chainID))
	return accounts, nil
}

func (g *RPCGateway) Accounts() []common.Address {
	return g.signer.Accounts()
}

func (g *RPCGateway) OnAccountsChanged(fn func([]common.Address)) CancelFn {
	return CancelFn(g.signer.OnAccountsChanged(fn))
}

func (g *RPCGateway) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	balance, err := g.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, errs.Read("eth_getBalance", err)
	}
	return balance, nil
}

func (g *RPCGateway) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := g.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, errs.Read("eth_call", err)
	}
	return out, nil
}

func (g *RPCGateway) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := g.client.BlockNumber(ctx)
	if err != nil {
		return 0, errs.Read("eth_blockNumber", err)
	}
	return n, nil
}

func (g *RPCGateway) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	logs, err := g.client.FilterLogs(ctx, q)
	if err != nil {
		return nil, errs.Read("eth_getLogs", err)
	}
	return logs, nil
}

func (g *RPCGateway) Send(ctx context.Context, req SendRequest) (*Receipt, error) {
	if g.chainID == nil {
		return nil, &errs.ConnectionError{Reason: "not connected, call RequestAccounts first"}
	}
	key, err := g.signer.PrivateKey(req.From)
	if err != nil {
		return nil, &errs.ConnectionError{Reason: "no signer for " + req.From.Hex(), Err: err}
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	msg := ethereum.CallMsg{From: req.From, To: &req.To, Value: value, Data: req.Data}

	gas, err := g.client.EstimateGas(ctx, msg)
	if err != nil {
		if reason, ok := RevertReason(err); ok {
			return nil, &errs.ContractRevertError{Method: req.Method, Reason: reason}
		}
		return nil, errs.Read("eth_estimateGas", err)
	}
	nonce, err := g.client.PendingNonceAt(ctx, req.From)
	if err != nil {
		return nil, errs.Read("eth_getTransactionCount", err)
	}
	gasPrice, err := g.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errs.Read("eth_gasPrice", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &req.To,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     req.Data,
	})
	if !g.confirm.ConfirmTransaction(req.Method, tx) {
		return nil, &errs.UserRejectedError{Method: req.Method}
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(g.chainID), key)
	if err != nil {
		return nil, errors.Wrap(err, "sign transaction")
	}
	if err := g.client.SendTransaction(ctx, signed); err != nil {
		if reason, ok := RevertReason(err); ok {
			return nil, &errs.ContractRevertError{Method: req.Method, Reason: reason}
		}
		return nil, &errs.ConnectionError{Reason: "broadcast " + req.Method, Err: err}
	}
	g.logger.Info("transaction broadcast",
		zap.String("method", req.Method),
		zap.Stringer("tx", signed.Hash()),
		zap.Stringer("from", req.From),
		zap.Uint64("nonce", nonce))

	receipt, err := bind.WaitMined(ctx, g.client, signed)
	if err != nil {
		return nil, errors.Wrapf(err, "wait for %s", signed.Hash().Hex())
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, &errs.ContractRevertError{
			Method: req.Method,
			Reason: g.replayReason(ctx, msg, receipt.BlockNumber),
			TxHash: signed.Hash().Hex(),
		}
	}
	return &Receipt{
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}

// replayReason re-runs a mined-but-failed transaction as a call to recover the revert string.
func (g *RPCGateway) replayReason(ctx context.Context, msg ethereum.CallMsg, block *big.Int) string {
	_, err := g.client.CallContract(ctx, msg, block)
	if err == nil {
		return ""
	}
	reason, _ := RevertReason(err)
	return reason
}

// RevertReason extracts the revert string from a node error. ok is false when err is not a revert.
func RevertReason(err error) (reason string, ok bool) {
	if err == nil {
		return "", false
	}
	var de rpc.DataError
	if errors.As(err, &de) {
		if s, isString := de.ErrorData().(string); isString {
			if data, decodeErr := hexutil.Decode(s); decodeErr == nil {
				if r, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return r, true
				}
			}
		}
	}
	const marker = "execution reverted"
	msg := err.Error()
	i := strings.Index(msg, marker)
	if i < 0 {
		return "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(msg[i+len(marker):], ":"))
	return rest, true
}
