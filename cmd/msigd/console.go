package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"msigwallet/client/internal/chain"
	"msigwallet/client/internal/contract"
	"msigwallet/client/internal/errs"
	"msigwallet/client/internal/keys"
	"msigwallet/client/internal/session"
	"msigwallet/client/internal/units"
	"msigwallet/client/internal/view"
)

var errQuit = errors.New("quit")

const consoleHelp = `commands:
  approve <id> | revoke <id> | execute <id>
  submit <to> <ether> [0xdata] [deadline]
  threshold <ether> | extend <id> <duration> | cancel <id> | pause | unpause
  account <name|address> | accounts | refresh | log | help | quit`

// consoleConfirm asks for signatures through the console's own line reader,
// so the prompt and the command input never compete for stdin.
type consoleConfirm struct {
	out     io.Writer
	lock    *sync.Mutex
	prompt  sync.Mutex
	waiting atomic.Bool
	answers chan string
}

func newConsoleConfirm(out io.Writer, lock *sync.Mutex) *consoleConfirm {
	return &consoleConfirm{out: out, lock: lock, answers: make(chan string)}
}

func (c *consoleConfirm) ConfirmTransaction(method string, tx *types.Transaction) bool {
	c.prompt.Lock()
	defer c.prompt.Unlock()

	to := "(create)"
	if tx.To() != nil {
		to = tx.To().Hex()
	}
	c.lock.Lock()
	c.waiting.Store(true)
	fmt.Fprintf(c.out, "\nsign %s to %s value %s ETH gas %d nonce %d? [y/N] ",
		method, to, units.FormatEther(tx.Value()), tx.Gas(), tx.Nonce())
	c.lock.Unlock()
	defer c.waiting.Store(false)

	answer, ok := <-c.answers
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

// offer hands line to a pending prompt and reports whether one was waiting.
func (c *consoleConfirm) offer(line string) bool {
	if !c.waiting.Load() {
		return false
	}
	select {
	case c.answers <- line:
		return true
	case <-time.After(time.Second):
		// prompt closed between the check and the send
		return false
	}
}

type console struct {
	out     io.Writer
	wallet  *contract.Multisig
	session *session.Session
	keyring *keys.Keyring
	logger  *zap.Logger
	confirm *consoleConfirm

	// screen is shared with confirm and guards message and output.
	screen  *sync.Mutex
	message string
	writes  sync.WaitGroup
}

func newConsole(wallet *contract.Multisig, s *session.Session, ring *keys.Keyring, logger *zap.Logger, confirm *consoleConfirm) *console {
	return &console{
		out:     confirm.out,
		wallet:  wallet,
		session: s,
		keyring: ring,
		logger:  logger,
		confirm: confirm,
		screen:  confirm.lock,
		message: "type help for commands",
	}
}

func (c *console) say(format string, args ...any) {
	c.screen.Lock()
	defer c.screen.Unlock()
	c.message = fmt.Sprintf(format, args...)
}

// render redraws the screen from cached state; it is skipped while a signature prompt is open.
func (c *console) render(now time.Time) {
	c.screen.Lock()
	defer c.screen.Unlock()
	if c.confirm.waiting.Load() {
		return
	}
	var buf bytes.Buffer
	buf.WriteString("\033[H\033[2J")
	if err := render(&buf, c.wallet, c.session, now); err != nil {
		c.logger.Warn("render failed", zap.Error(err))
		return
	}
	if c.session.InFlight() {
		buf.WriteString("\noperation in flight\n")
	}
	fmt.Fprintf(&buf, "\n%s\n> ", c.message)
	_, _ = c.out.Write(buf.Bytes())
}

func (c *console) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	defer func() {
		close(c.confirm.answers)
		c.writes.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				// stdin closed: keep watching until shutdown
				lines = nil
				continue
			}
			if c.confirm.offer(line) {
				continue
			}
			if err := c.dispatch(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return err
				}
				c.say("%v", err)
			}
		}
	}
}

func (c *console) dispatch(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name, args := fields[0], fields[1:]
	need := func(n int) error {
		if len(args) < n {
			return errs.Validation(name, "expects %d argument(s), see help", n)
		}
		return nil
	}

	switch name {
	case "help":
		c.say(consoleHelp)
	case "quit", "exit":
		return errQuit
	case "refresh":
		if _, err := c.session.Refresh(ctx); err != nil {
			return err
		}
		c.say("refreshed")
	case "accounts":
		var b strings.Builder
		active := c.keyring.Accounts()
		for _, key := range c.keyring.Keys() {
			mark := " "
			if len(active) > 0 && key.Addr() == active[0] {
				mark = "*"
			}
			fmt.Fprintf(&b, "%s %s %s\n", mark, key.Name, key.Address)
		}
		c.say("%s", strings.TrimRight(b.String(), "\n"))
	case "account":
		if err := need(1); err != nil {
			return err
		}
		addr, err := c.keyring.Select(args[0])
		if err != nil {
			return errs.Validation("account", "%v", err)
		}
		c.say("active account %s", addr.Hex())
	case "log":
		var b strings.Builder
		if err := view.Journal(&b, c.session.Journal().Last(10)); err != nil {
			return err
		}
		c.say("%s", strings.TrimRight(b.String(), "\n"))
	case "approve", "revoke", "execute":
		if err := need(1); err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		send := voteFunc(c.session, name)
		c.write(ctx, name, func(ctx context.Context) (*chain.Receipt, error) { return send(ctx, id) })
	case "submit":
		in, err := parseSubmit(args, time.Now())
		if err != nil {
			return err
		}
		c.write(ctx, name, func(ctx context.Context) (*chain.Receipt, error) { return c.session.Submit(ctx, in) })
	case "threshold":
		if err := need(1); err != nil {
			return err
		}
		wei, err := parseAmount("threshold", args[0])
		if err != nil {
			return err
		}
		c.write(ctx, name, func(ctx context.Context) (*chain.Receipt, error) { return c.session.UpdateThreshold(ctx, wei) })
	case "extend":
		if err := need(2); err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return errs.Validation("duration", "%v", err)
		}
		at, err := deadlineAfter(time.Now(), d)
		if err != nil {
			return err
		}
		c.write(ctx, name, func(ctx context.Context) (*chain.Receipt, error) { return c.session.ExtendDeadline(ctx, id, at) })
	case "cancel":
		if err := need(1); err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		c.write(ctx, name, func(ctx context.Context) (*chain.Receipt, error) { return c.session.CancelTransaction(ctx, id) })
	case "pause":
		c.write(ctx, name, c.session.Pause)
	case "unpause":
		c.write(ctx, name, c.session.Unpause)
	default:
		return errs.Validation("command", "unknown command %q, see help", name)
	}
	return nil
}

// write runs op in the background so the console keeps reading lines for the signature prompt.
func (c *console) write(ctx context.Context, op string, fn func(context.Context) (*chain.Receipt, error)) {
	if c.session.InFlight() {
		c.say("%s: %v", op, errs.ErrOperationInFlight)
		return
	}
	c.say("%s: waiting for signature and receipt", op)
	c.writes.Add(1)
	go func() {
		defer c.writes.Done()
		r, err := fn(ctx)
		if err != nil {
			c.say("%s failed (%s): %v", op, errs.Kind(err), err)
			return
		}
		c.say("%s mined in block %d (%s)", op, r.BlockNumber, r.TxHash.Hex())
	}()
}

// parseSubmit reads "<to> <ether> [0xdata] [deadline]".
func parseSubmit(args []string, now time.Time) (session.SubmitInput, error) {
	if len(args) < 2 {
		return session.SubmitInput{}, errs.Validation("submit", "expects <to> <ether> [0xdata] [deadline]")
	}
	wei, err := parseAmount("value", args[1])
	if err != nil {
		return session.SubmitInput{}, err
	}
	in := session.SubmitInput{To: args[0], Value: wei}
	for _, arg := range args[2:] {
		if strings.HasPrefix(arg, "0x") {
			in.Data = arg
			continue
		}
		d, err := time.ParseDuration(arg)
		if err != nil {
			return session.SubmitInput{}, errs.Validation("deadline", "%v", err)
		}
		if in.Deadline, err = deadlineAfter(now, d); err != nil {
			return session.SubmitInput{}, err
		}
	}
	return in, nil
}
