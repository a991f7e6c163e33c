package common

import (
	"os"
	"path/filepath"
	"testing"

	"naira-wallet-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAssetCatalog_MissingFileUsesDefaults(t *testing.T) {
	catalog, err := LoadAssetCatalog(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, models.DefaultAssetCatalog(), catalog)
}

func TestLoadAssetCatalog_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
assets:
  - symbol: usdt
    network: TRC20 (Tron)
    min_deposit: "5"
  - symbol: BTC
    confirmations: 2
`), 0o600))

	catalog, err := LoadAssetCatalog(path)
	require.NoError(t, err)

	usdt := catalog[models.AssetUSDT]
	assert.Equal(t, "TRC20 (Tron)", usdt.Network)
	assert.Equal(t, "5", usdt.MinDeposit)
	assert.Equal(t, "Tether", usdt.Name)
	assert.Equal(t, 2, catalog[models.AssetBTC].Confirmations)
	assert.Equal(t, models.DefaultAssetCatalog()[models.AssetETH], catalog[models.AssetETH])
}

func TestLoadAssetCatalog_Invalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"unknown.yaml":  "assets:\n  - symbol: DOGE\n",
		"nosymbol.yaml": "assets:\n  - name: Thing\n",
		"decimals.yaml": "assets:\n  - symbol: BTC\n    decimals: 40\n",
		"broken.yaml":   "assets: [",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		_, err := LoadAssetCatalog(path)
		assert.Error(t, err, name)
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0.0015", FormatAmount(decimal.RequireFromString("0.00150000"), 8))
	assert.Equal(t, "12", FormatAmount(decimal.RequireFromString("12.000"), 2))
	assert.Equal(t, "1.23", FormatAmount(decimal.RequireFromString("1.239"), 2))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "******7890", Mask("1234567890"))
	assert.Equal(t, "abc", Mask("abc"))
}
