package keys

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-faster/errors"
)

type StoredKey struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	PrivKeyHex string `json:"privkey_hex"`
	CreatedAt  string `json:"created_at"`
}

func EnsureKey(path, name string) (StoredKey, bool, error) {
	if key, err := Load(path); err == nil {
		return key, false, nil
	}
	key, err := Generate(name)
	if err != nil {
		return StoredKey{}, false, err
	}
	if err := Save(path, key); err != nil {
		return StoredKey{}, false, err
	}
	return key, true, nil
}

func Generate(name string) (StoredKey, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return StoredKey{}, err
	}
	return fromPrivate(name, priv), nil
}

func Import(name, privHex string) (StoredKey, error) {
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privHex), "0x"))
	if err != nil {
		return StoredKey{}, errors.Wrap(err, "invalid private key")
	}
	return fromPrivate(name, priv), nil
}

func fromPrivate(name string, priv *ecdsa.PrivateKey) StoredKey {
	return StoredKey{
		Name:       name,
		Address:    crypto.PubkeyToAddress(priv.PublicKey).Hex(),
		PrivKeyHex: hex.EncodeToString(crypto.FromECDSA(priv)),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
}

func (k StoredKey) PrivateKey() (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(k.PrivKeyHex)
}

func (k StoredKey) Addr() common.Address {
	return common.HexToAddress(k.Address)
}

func Save(path string, key StoredKey) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	bz, err := json.MarshalIndent(key, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, bz, 0o600)
}

func Load(path string) (StoredKey, error) {
	bz, err := os.ReadFile(path)
	if err != nil {
		return StoredKey{}, err
	}
	var key StoredKey
	if err := json.Unmarshal(bz, &key); err != nil {
		return StoredKey{}, err
	}
	if key.Address == "" {
		return StoredKey{}, errors.New("invalid key file: missing address")
	}
	if !common.IsHexAddress(key.Address) {
		return StoredKey{}, errors.Errorf("invalid key file: malformed address %q", key.Address)
	}
	return key, nil
}

// LoadDir reads every *.json key file in dir, sorted by name.
func LoadDir(dir string) ([]StoredKey, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	out := make([]StoredKey, 0, len(matches))
	for _, path := range matches {
		key, err := Load(path)
		if err != nil {
			return nil, errors.Wrap(err, filepath.Base(path))
		}
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ValidateName rejects names that would resolve outside the key store directory.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return errors.Errorf("invalid key name %q", name)
	}
	return nil
}

func PathFor(base, name string) string {
	return filepath.Join(base, name+".json")
}

func DefaultKeyPath(base string) string {
	return PathFor(base, "default")
}
