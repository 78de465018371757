package chain

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"

	"msigwallet/client/internal/units"
)

// TerminalConfirm prints the transaction and waits for a y/N answer on In.
type TerminalConfirm struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func NewTerminalConfirm(in io.Reader, out io.Writer) *TerminalConfirm {
	return &TerminalConfirm{in: bufio.NewReader(in), out: out}
}

func (c *TerminalConfirm) ConfirmTransaction(method string, tx *types.Transaction) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	to := "(create)"
	if tx.To() != nil {
		to = tx.To().Hex()
	}
	fmt.Fprintf(c.out, "sign %s\n", method)
	fmt.Fprintf(c.out, "  to:    %s\n", to)
	fmt.Fprintf(c.out, "  value: %s ETH\n", units.FormatEther(tx.Value()))
	fmt.Fprintf(c.out, "  gas:   %d @ %s wei\n", tx.Gas(), tx.GasPrice())
	fmt.Fprintf(c.out, "  nonce: %d\n", tx.Nonce())
	fmt.Fprint(c.out, "confirm? [y/N] ")
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
