package keys

import (
	"crypto/ecdsa"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-faster/errors"
)

// Keyring is the local stand-in for a browser wallet: a set of signers, one of them active.
// Listeners are told whenever the active account changes.
type Keyring struct {
	mu        sync.Mutex
	keys      []StoredKey
	active    int
	nextID    int
	listeners map[int]func([]common.Address)
}

func NewKeyring(keys []StoredKey) *Keyring {
	return &Keyring{
		keys:      append([]StoredKey(nil), keys...),
		listeners: map[int]func([]common.Address){},
	}
}

func OpenKeyring(dir string) (*Keyring, error) {
	stored, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	return NewKeyring(stored), nil
}

// Accounts returns the active account first, followed by the rest in keyring order.
func (k *Keyring) Accounts() []common.Address {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.accountsLocked()
}

func (k *Keyring) accountsLocked() []common.Address {
	if len(k.keys) == 0 {
		return nil
	}
	out := make([]common.Address, 0, len(k.keys))
	out = append(out, k.keys[k.active].Addr())
	for i, key := range k.keys {
		if i == k.active {
			continue
		}
		out = append(out, key.Addr())
	}
	return out
}

func (k *Keyring) Keys() []StoredKey {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]StoredKey(nil), k.keys...)
}

// Select makes the key matching nameOrAddr active and notifies listeners if it changed.
func (k *Keyring) Select(nameOrAddr string) (common.Address, error) {
	needle := strings.TrimSpace(nameOrAddr)
	k.mu.Lock()
	idx := -1
	for i, key := range k.keys {
		if strings.EqualFold(key.Name, needle) || strings.EqualFold(key.Address, needle) {
			idx = i
			break
		}
	}
	if idx < 0 {
		k.mu.Unlock()
		return common.Address{}, errors.Errorf("no key named or addressed %q", needle)
	}
	changed := idx != k.active
	k.active = idx
	accounts := k.accountsLocked()
	listeners := make([]func([]common.Address), 0, len(k.listeners))
	for _, fn := range k.listeners {
		listeners = append(listeners, fn)
	}
	k.mu.Unlock()

	if changed {
		for _, fn := range listeners {
			fn(accounts)
		}
	}
	return accounts[0], nil
}

// OnAccountsChanged registers fn and returns the function that removes it.
func (k *Keyring) OnAccountsChanged(fn func([]common.Address)) func() {
	k.mu.Lock()
	defer k.mu.Unlock()
	id := k.nextID
	k.nextID++
	k.listeners[id] = fn
	return func() {
		k.mu.Lock()
		defer k.mu.Unlock()
		delete(k.listeners, id)
	}
}

func (k *Keyring) PrivateKey(addr common.Address) (*ecdsa.PrivateKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, key := range k.keys {
		if key.Addr() == addr {
			return key.PrivateKey()
		}
	}
	return nil, errors.Errorf("no key for %s", addr.Hex())
}
