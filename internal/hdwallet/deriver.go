package hdwallet

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"naira-wallet-bot-go/internal/models"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
	"go.uber.org/zap"
)

var (
	ErrInvalidMnemonic = errors.New("invalid wallet mnemonic")
	ErrIndexCollision  = errors.New("derived address already belongs to another user")
	ErrSeedMismatch    = errors.New("stored address does not match derivation")
)

type owner struct {
	userId string
	asset  models.Asset
}

// Deriver produces deterministic deposit addresses from one master seed and
// keeps a reverse map of every address it has derived. Safe for concurrent use.
type Deriver struct {
	seed   []byte
	master *hdkeychain.ExtendedKey
	params *chaincfg.Params

	mu      sync.RWMutex
	forward map[owner]models.DerivedAddress
	reverse map[string]owner

	now func() time.Time
}

// GenerateMnemonic returns a fresh 12-word phrase.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

func NewDeriver(mnemonic string) (*Deriver, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	return NewDeriverFromSeed(bip39.NewSeed(mnemonic, ""))
}

func NewDeriverFromSeed(seed []byte) (*Deriver, error) {
	params := &chaincfg.MainNetParams
	master, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}
	return &Deriver{
		seed:    seed,
		master:  master,
		params:  params,
		forward: make(map[owner]models.DerivedAddress),
		reverse: make(map[string]owner),
		now:     time.Now,
	}, nil
}

// DeriveAddress returns the deposit address of userId for asset. Repeated
// calls return the same address; the first call registers it for Resolve.
func (d *Deriver) DeriveAddress(userId string, asset models.Asset) (models.DerivedAddress, error) {
	key := owner{userId: userId, asset: asset}

	d.mu.RLock()
	cached, ok := d.forward[key]
	d.mu.RUnlock()
	if ok {
		return cached, nil
	}

	path, err := PathFor(asset, UserIndex(userId))
	if err != nil {
		return models.DerivedAddress{}, err
	}
	address, err := d.addressAt(asset, path)
	if err != nil {
		return models.DerivedAddress{}, err
	}

	derived := models.DerivedAddress{
		UserId:    userId,
		Asset:     asset,
		Address:   address,
		Path:      path,
		CreatedAt: d.now(),
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.forward[key]; ok {
		return existing, nil
	}
	norm := normalizeAddress(address)
	if prev, taken := d.reverse[norm]; taken && prev != key {
		zap.L().Error("Deposit address index collision",
			zap.String("user_id", userId),
			zap.String("other_user_id", prev.userId),
			zap.String("asset", string(asset)),
			zap.String("path", path))
		return models.DerivedAddress{}, fmt.Errorf("%w: %s for user %s", ErrIndexCollision, asset, userId)
	}
	d.forward[key] = derived
	d.reverse[norm] = key

	zap.L().Debug("Derived deposit address",
		zap.String("user_id", userId),
		zap.String("asset", string(asset)),
		zap.String("path", path),
		zap.String("address", address))
	return derived, nil
}

// DeriveAll derives one address per crypto asset.
func (d *Deriver) DeriveAll(userId string) (map[models.Asset]string, error) {
	out := make(map[models.Asset]string, len(models.CryptoAssets))
	for _, asset := range models.CryptoAssets {
		derived, err := d.DeriveAddress(userId, asset)
		if err != nil {
			return nil, err
		}
		out[asset] = derived.Address
	}
	return out, nil
}

// Restore re-derives a persisted address so it becomes resolvable again after
// a restart, and fails if the configured seed no longer produces it.
func (d *Deriver) Restore(userId string, asset models.Asset, stored string) error {
	derived, err := d.DeriveAddress(userId, asset)
	if err != nil {
		return err
	}
	if normalizeAddress(derived.Address) != normalizeAddress(stored) {
		return fmt.Errorf("%w: user %s %s stored %s derived %s",
			ErrSeedMismatch, userId, asset, stored, derived.Address)
	}
	return nil
}

// Resolve maps an address back to its owner. Only addresses derived earlier
// in this process are known.
func (d *Deriver) Resolve(address string) (string, models.Asset, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	o, ok := d.reverse[normalizeAddress(address)]
	return o.userId, o.asset, ok
}

// MasterAddress is the Ethereum-style address of the root key, shown on the
// debug endpoint to identify which seed is loaded.
func (d *Deriver) MasterAddress() string {
	pub, err := d.master.ECPubKey()
	if err != nil {
		return ""
	}
	return crypto.PubkeyToAddress(*pub.ToECDSA()).Hex()
}

// Known returns the number of registered addresses.
func (d *Deriver) Known() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.reverse)
}

func (d *Deriver) addressAt(asset models.Asset, path string) (string, error) {
	segments, err := parsePath(path)
	if err != nil {
		return "", err
	}

	if asset == models.AssetSOL {
		k, err := edDerive(d.seed, segments)
		if err != nil {
			return "", err
		}
		return base58.Encode(k.publicKey()), nil
	}

	key := d.master
	for _, idx := range segments {
		if key, err = key.Derive(idx); err != nil {
			return "", fmt.Errorf("failed to derive %s: %w", path, err)
		}
	}
	pub, err := key.ECPubKey()
	if err != nil {
		return "", fmt.Errorf("failed to get public key for %s: %w", path, err)
	}

	switch asset {
	case models.AssetBTC:
		return segwitAddress(pub, d.params)
	case models.AssetETH, models.AssetUSDT:
		return evmAddress(pub), nil
	default:
		return "", fmt.Errorf("no address encoding for asset %s", asset)
	}
}

// segwitAddress encodes a native P2WPKH (bc1q...) address.
func segwitAddress(pub *btcec.PublicKey, params *chaincfg.Params) (string, error) {
	witness, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), params)
	if err != nil {
		return "", fmt.Errorf("failed to encode segwit address: %w", err)
	}
	return witness.EncodeAddress(), nil
}

// evmAddress is the EIP-55 checksummed address of pub.
func evmAddress(pub *btcec.PublicKey) string {
	return crypto.PubkeyToAddress(*pub.ToECDSA()).Hex()
}

// normalizeAddress folds case for encodings that are case-insensitive (hex
// and bech32). Base58 is case-sensitive and kept verbatim.
func normalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	lower := strings.ToLower(address)
	if strings.HasPrefix(lower, "0x") || strings.HasPrefix(lower, "bc1") || strings.HasPrefix(lower, "tb1") {
		return lower
	}
	return address
}
