package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"msigwallet/client/internal/app"
	"msigwallet/client/internal/chain"
	"msigwallet/client/internal/config"
	"msigwallet/client/internal/contract"
	"msigwallet/client/internal/keys"
	"msigwallet/client/internal/session"
	"msigwallet/client/internal/store"
)

func configPath(g *globalFlags) (string, error) {
	if g.configPath != "" {
		return g.configPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return config.Path(home), nil
}

func loadConfig(g *globalFlags) (config.Config, error) {
	path, err := configPath(g)
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, errors.Wrap(err, "config not found, run msigd init")
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return config.Config{}, errors.Wrap(err, "env overrides")
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// env is everything a command needs to talk to the chain.
type env struct {
	cfg     config.Config
	logger  *zap.Logger
	keyring *keys.Keyring
	gateway *chain.RPCGateway
}

type envOptions struct {
	confirm  chain.Confirmer
	logPaths []string
}

func openEnv(ctx context.Context, g *globalFlags, opts envOptions) (*env, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}
	logger, err := app.Logger(cfg.Log.Level, opts.logPaths...)
	if err != nil {
		return nil, err
	}
	keyring, err := keys.OpenKeyring(cfg.Signer.KeyStore)
	if err != nil {
		return nil, errors.Wrap(err, "open key store")
	}
	account := strings.TrimSpace(g.account)
	if account == "" {
		account = strings.TrimSpace(cfg.Signer.Account)
	}
	if account != "" {
		if _, err := keyring.Select(account); err != nil {
			return nil, err
		}
	}
	confirm := opts.confirm
	if confirm == nil {
		confirm = chain.NewTerminalConfirm(os.Stdin, os.Stdout)
	}
	if g.yes {
		confirm = chain.AutoConfirm{}
	}

	dialCtx, cancel := context.WithTimeout(ctx, readTimeout(cfg))
	defer cancel()
	gateway, err := chain.Dial(dialCtx, logger, cfg.Chain.RPC, cfg.Chain.ChainID, keyring, confirm)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, keyring: keyring, gateway: gateway}, nil
}

func (e *env) Close() {
	e.gateway.Close()
	_ = e.logger.Sync()
}

func readTimeout(cfg config.Config) time.Duration {
	if cfg.Sync.ReadTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(cfg.Sync.ReadTimeoutSeconds) * time.Second
}

func (e *env) multisig() (*contract.Multisig, error) {
	if e.cfg.Contract.Multisig == "" {
		return nil, errors.New("contract.multisig is not configured")
	}
	variant, err := contract.ParseVariant(e.cfg.Contract.Variant)
	if err != nil {
		return nil, err
	}
	return contract.NewMultisig(e.gateway, common.HexToAddress(e.cfg.Contract.Multisig), variant)
}

func (e *env) storage() (*contract.Storage, error) {
	if e.cfg.Contract.Storage == "" {
		return nil, errors.New("contract.storage is not configured")
	}
	return contract.NewStorage(e.gateway, common.HexToAddress(e.cfg.Contract.Storage))
}

// connect binds the multisig and loads the first state.
func (e *env) connect(ctx context.Context) (*contract.Multisig, *session.Session, error) {
	wallet, err := e.multisig()
	if err != nil {
		return nil, nil, err
	}
	s := session.New(e.logger, wallet, e.gateway, session.Options{
		AutoApproveBelowThreshold: e.cfg.Sync.AutoApproveBelowThreshold,
		ReadTimeout:               readTimeout(e.cfg),
		Journal:                   store.New(200),
	})
	if _, err := s.Connect(ctx); err != nil {
		return nil, nil, err
	}
	return wallet, s, nil
}

// withSession opens the env, connects and runs fn for one-shot commands.
func withSession(ctx context.Context, g *globalFlags, fn func(*env, *contract.Multisig, *session.Session) error) error {
	e, err := openEnv(ctx, g, envOptions{})
	if err != nil {
		return err
	}
	defer e.Close()
	wallet, s, err := e.connect(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(e, wallet, s)
}
