package hdwallet

import (
	"fmt"
	"strconv"
	"strings"

	"naira-wallet-bot-go/internal/models"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// MaxIndex bounds the per-user child index to the non-hardened range.
const MaxIndex = hdkeychain.HardenedKeyStart - 1

// pathTemplates gives every crypto asset its own sub-tree so no two assets of
// the same user can share an address. USDT lives on the second Ethereum
// account (1') rather than reusing the ETH branch.
var pathTemplates = map[models.Asset]string{
	models.AssetBTC:  "m/44'/0'/0'/0/%d",
	models.AssetETH:  "m/44'/60'/0'/0/%d",
	models.AssetUSDT: "m/44'/60'/1'/0/%d",
	models.AssetSOL:  "m/44'/501'/%d'/0'",
}

// PathFor renders the derivation path of asset at index.
func PathFor(asset models.Asset, index uint32) (string, error) {
	tmpl, ok := pathTemplates[asset]
	if !ok {
		return "", fmt.Errorf("no derivation path for asset %s", asset)
	}
	return fmt.Sprintf(tmpl, index), nil
}

// parsePath turns "m/44'/60'/0'/0/7" into child numbers, hardened segments
// offset by HardenedKeyStart.
func parsePath(path string) ([]uint32, error) {
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] != "m" {
		return nil, fmt.Errorf("derivation path %q must start with m", path)
	}

	out := make([]uint32, 0, len(parts)-1)
	for _, p := range parts[1:] {
		hardened := strings.HasSuffix(p, "'")
		n, err := strconv.ParseUint(strings.TrimSuffix(p, "'"), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid path segment %q: %w", p, err)
		}
		if n >= hdkeychain.HardenedKeyStart {
			return nil, fmt.Errorf("path segment %q out of range", p)
		}
		idx := uint32(n)
		if hardened {
			idx += hdkeychain.HardenedKeyStart
		}
		out = append(out, idx)
	}
	return out, nil
}

// UserIndex maps an opaque user id to a child index: the 31-multiplier string
// hash over the id, taken absolute, reduced into [0, MaxIndex].
func UserIndex(userId string) uint32 {
	var h int32
	for _, c := range userId {
		h = 31*h + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return uint32(v % int64(MaxIndex+1))
}
