package hdwallet

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"testing"

	"naira-wallet-bot-go/internal/models"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func newTestDeriver(t *testing.T) *Deriver {
	t.Helper()
	d, err := NewDeriver(testMnemonic)
	require.NoError(t, err)
	return d
}

func TestNewDeriver_RejectsInvalidMnemonic(t *testing.T) {
	_, err := NewDeriver("not a real mnemonic")
	assert.ErrorIs(t, err, ErrInvalidMnemonic)
}

func TestGenerateMnemonic(t *testing.T) {
	m, err := GenerateMnemonic()
	require.NoError(t, err)
	assert.Len(t, strings.Fields(m), 12)

	_, err = NewDeriver(m)
	assert.NoError(t, err)
}

func TestKnownEthereumVector(t *testing.T) {
	d := newTestDeriver(t)
	addr, err := d.addressAt(models.AssetETH, "m/44'/60'/0'/0/0")
	require.NoError(t, err)
	assert.Equal(t, "0x9858EfFD232B4033E47d90003D41EC34EcaEda94", addr)
}

func TestSlip10Vector(t *testing.T) {
	seed, _ := hex.DecodeString("000102030405060708090a0b0c0d0e0f")

	m := edMaster(seed)
	assert.Equal(t, "2b4be7f19ee27bbf30c667b642d5f4aa69fd169872f8fc3059c08ebae2eb19e7", hex.EncodeToString(m.key))
	assert.Equal(t, "90046a93de5380a72b5e45010748567d5ea02bbf6522f979e05c0d8d8ca9fffb", hex.EncodeToString(m.chainCode))

	c, err := m.child(hdkeychain.HardenedKeyStart)
	require.NoError(t, err)
	assert.Equal(t, "68e0fe46dfb67e368c75379acec591dad19df3cde26e63b93a8e704f1dade7a3", hex.EncodeToString(c.key))
	assert.Equal(t, "8b59aa11380b624e81507a27fedda59fea6d0b779a778918a2fd3590e16e9c69", hex.EncodeToString(c.chainCode))

	_, err = m.child(0)
	assert.Error(t, err)
}

func TestDeriveAddress_Deterministic(t *testing.T) {
	a := newTestDeriver(t)
	b := newTestDeriver(t)

	for _, asset := range models.CryptoAssets {
		first, err := a.DeriveAddress("123456789", asset)
		require.NoError(t, err)
		again, err := a.DeriveAddress("123456789", asset)
		require.NoError(t, err)
		other, err := b.DeriveAddress("123456789", asset)
		require.NoError(t, err)

		assert.Equal(t, first.Address, again.Address, asset)
		assert.Equal(t, first.Address, other.Address, asset)
	}
}

func TestDeriveAll_DistinctPerAsset(t *testing.T) {
	d := newTestDeriver(t)
	addrs, err := d.DeriveAll("555000111")
	require.NoError(t, err)
	require.Len(t, addrs, len(models.CryptoAssets))

	seen := map[string]models.Asset{}
	for asset, addr := range addrs {
		prev, dup := seen[strings.ToLower(addr)]
		assert.False(t, dup, "%s and %s share %s", asset, prev, addr)
		seen[strings.ToLower(addr)] = asset
	}

	assert.True(t, strings.HasPrefix(addrs[models.AssetBTC], "bc1q"))
	assert.True(t, strings.HasPrefix(addrs[models.AssetETH], "0x"))
	assert.True(t, strings.HasPrefix(addrs[models.AssetUSDT], "0x"))
	assert.Len(t, base58.Decode(addrs[models.AssetSOL]), 32)
}

func TestDeriveAll_DistinctAcrossUsers(t *testing.T) {
	d := newTestDeriver(t)
	seen := map[string]string{}
	for i := 0; i < 50; i++ {
		userId := fmt.Sprintf("%d", 700000000+i)
		addrs, err := d.DeriveAll(userId)
		require.NoError(t, err)
		for _, addr := range addrs {
			owner, dup := seen[addr]
			assert.False(t, dup, "address %s shared by %s and %s", addr, owner, userId)
			seen[addr] = userId
		}
	}
}

func TestResolve(t *testing.T) {
	d := newTestDeriver(t)

	_, _, ok := d.Resolve("0x9858EfFD232B4033E47d90003D41EC34EcaEda94")
	assert.False(t, ok, "addresses not derived in this process must not resolve")

	eth, err := d.DeriveAddress("42", models.AssetETH)
	require.NoError(t, err)
	sol, err := d.DeriveAddress("42", models.AssetSOL)
	require.NoError(t, err)

	userId, asset, ok := d.Resolve(strings.ToLower(eth.Address))
	require.True(t, ok)
	assert.Equal(t, "42", userId)
	assert.Equal(t, models.AssetETH, asset)

	userId, asset, ok = d.Resolve(sol.Address)
	require.True(t, ok)
	assert.Equal(t, "42", userId)
	assert.Equal(t, models.AssetSOL, asset)

	_, _, ok = d.Resolve(strings.ToLower(sol.Address))
	assert.False(t, ok, "base58 lookups are case-sensitive")
}

func TestRestore(t *testing.T) {
	d := newTestDeriver(t)
	eth, err := d.DeriveAddress("99", models.AssetETH)
	require.NoError(t, err)

	fresh := newTestDeriver(t)
	require.NoError(t, fresh.Restore("99", models.AssetETH, eth.Address))
	_, _, ok := fresh.Resolve(eth.Address)
	assert.True(t, ok)

	assert.ErrorIs(t, fresh.Restore("100", models.AssetETH, eth.Address), ErrSeedMismatch)
}

func TestDeriveAddress_Concurrent(t *testing.T) {
	d := newTestDeriver(t)
	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			derived, err := d.DeriveAddress("777", models.AssetBTC)
			if err == nil {
				results[i] = derived.Address
			}
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
	assert.Equal(t, 1, d.Known())
}

func TestUserIndex(t *testing.T) {
	assert.Equal(t, uint32(0), UserIndex(""))
	assert.Equal(t, uint32(49), UserIndex("1"))
	// "12" -> 31*49 + 50
	assert.Equal(t, uint32(1569), UserIndex("12"))
	assert.LessOrEqual(t, UserIndex("a-very-long-user-identifier-that-overflows"), uint32(MaxIndex))
}

func TestPathFor(t *testing.T) {
	p, err := PathFor(models.AssetUSDT, 7)
	require.NoError(t, err)
	assert.Equal(t, "m/44'/60'/1'/0/7", p)

	p, err = PathFor(models.AssetSOL, 7)
	require.NoError(t, err)
	assert.Equal(t, "m/44'/501'/7'/0'", p)

	_, err = PathFor(models.AssetNGN, 1)
	assert.Error(t, err)
}
