package main

import (
	"bytes"
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-faster/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"msigwallet/client/internal/errs"
)

func TestParseSubmit(t *testing.T) {
	now := time.Unix(1_000, 0)
	in, err := parseSubmit([]string{"0x00000000000000000000000000000000000000e5", "1.5", "0xabcd", "2m"}, now)
	require.NoError(t, err)
	require.Equal(t, "0x00000000000000000000000000000000000000e5", in.To)
	require.Equal(t, "1500000000000000000", in.Value.String())
	require.Equal(t, "0xabcd", in.Data)
	require.Equal(t, int64(1_120), in.Deadline)

	in, err = parseSubmit([]string{"0x00000000000000000000000000000000000000e5", "0"}, now)
	require.NoError(t, err)
	require.Zero(t, in.Deadline)
	require.Empty(t, in.Data)

	for _, args := range [][]string{
		{"0x00000000000000000000000000000000000000e5"},
		{"0x00000000000000000000000000000000000000e5", "-1"},
		{"0x00000000000000000000000000000000000000e5", "1", "soon"},
	} {
		_, err := parseSubmit(args, now)
		var vErr *errs.ValidationError
		require.True(t, errors.As(err, &vErr), "args %v: %v", args, err)
	}
}

func TestParseID(t *testing.T) {
	id, err := parseID("12")
	require.NoError(t, err)
	require.Equal(t, uint64(12), id)

	_, err = parseID("-1")
	var vErr *errs.ValidationError
	require.True(t, errors.As(err, &vErr))
}

func TestDeadlineAfter(t *testing.T) {
	now := time.Unix(100, 0)
	at, err := deadlineAfter(now, 0)
	require.NoError(t, err)
	require.Zero(t, at)

	at, err = deadlineAfter(now, time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(160), at)

	_, err = deadlineAfter(now, -time.Second)
	require.Error(t, err)
}

func TestConsoleConfirmRoutesAnswer(t *testing.T) {
	var out bytes.Buffer
	confirm := newConsoleConfirm(&out, &sync.Mutex{})
	require.False(t, confirm.offer("y"))

	to := common.HexToAddress("0x00000000000000000000000000000000000000e5")
	tx := types.NewTx(&types.LegacyTx{Nonce: 3, To: &to, Value: big.NewInt(1e18), Gas: 21000, GasPrice: big.NewInt(1)})
	result := make(chan bool, 1)
	go func() { result <- confirm.ConfirmTransaction("approve", tx) }()

	require.Eventually(t, confirm.waiting.Load, time.Second, time.Millisecond)
	require.True(t, confirm.offer("yes"))
	require.True(t, <-result)
	require.False(t, confirm.waiting.Load())

	go func() { result <- confirm.ConfirmTransaction("approve", tx) }()
	require.Eventually(t, confirm.waiting.Load, time.Second, time.Millisecond)
	require.True(t, confirm.offer("n"))
	require.False(t, <-result)

	confirm.lock.Lock()
	require.Contains(t, out.String(), "sign approve to ")
	require.Contains(t, out.String(), "value 1 ETH gas 21000 nonce 3? [y/N]")
	confirm.lock.Unlock()
}

func TestConsoleConfirmClosedRejects(t *testing.T) {
	confirm := newConsoleConfirm(&bytes.Buffer{}, &sync.Mutex{})
	close(confirm.answers)
	to := common.Address{}
	require.False(t, confirm.ConfirmTransaction("submit", types.NewTx(&types.LegacyTx{To: &to, Value: new(big.Int), GasPrice: new(big.Int)})))
}

func TestConsoleDispatchLocalCommands(t *testing.T) {
	confirm := newConsoleConfirm(&bytes.Buffer{}, &sync.Mutex{})
	c := newConsole(nil, nil, nil, zap.NewNop(), confirm)
	ctx := context.Background()

	require.NoError(t, c.dispatch(ctx, "   "))
	require.NoError(t, c.dispatch(ctx, "help"))
	require.Equal(t, consoleHelp, c.message)
	require.ErrorIs(t, c.dispatch(ctx, "quit"), errQuit)

	var vErr *errs.ValidationError
	require.True(t, errors.As(c.dispatch(ctx, "dance"), &vErr))
	require.True(t, errors.As(c.dispatch(ctx, "approve"), &vErr))
	require.True(t, errors.As(c.dispatch(ctx, "approve x"), &vErr))
	require.True(t, errors.As(c.dispatch(ctx, "extend 1 soon"), &vErr))
}
