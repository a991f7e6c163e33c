/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import (
	"fmt"
	"strings"
)

// Asset identifies a balance bucket. NGN is the only fiat asset.
type Asset string

const (
	AssetNGN  Asset = "NGN"
	AssetBTC  Asset = "BTC"
	AssetETH  Asset = "ETH"
	AssetSOL  Asset = "SOL"
	AssetUSDT Asset = "USDT"
)

// CryptoAssets lists every asset that has a derived deposit address, in display order.
var CryptoAssets = []Asset{AssetBTC, AssetETH, AssetSOL, AssetUSDT}

// AllAssets is CryptoAssets plus the fiat bucket.
var AllAssets = []Asset{AssetNGN, AssetBTC, AssetETH, AssetSOL, AssetUSDT}

func (a Asset) IsFiat() bool {
	return a == AssetNGN
}

func (a Asset) Valid() bool {
	for _, known := range AllAssets {
		if a == known {
			return true
		}
	}
	return false
}

// Lower returns the lowercase symbol used in chat button payloads.
func (a Asset) Lower() string {
	return strings.ToLower(string(a))
}

func (a Asset) String() string {
	return string(a)
}

// ParseAsset accepts a symbol in any case. "naira" is an alias for NGN.
func ParseAsset(s string) (Asset, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "NAIRA" {
		return AssetNGN, nil
	}
	a := Asset(s)
	if !a.Valid() {
		return "", fmt.Errorf("unknown asset %q", s)
	}
	return a, nil
}

// Network names the chain a deposit address lives on.
func (a Asset) Network() string {
	switch a {
	case AssetBTC:
		return "bitcoin"
	case AssetETH, AssetUSDT:
		return "ethereum"
	case AssetSOL:
		return "solana"
	default:
		return "fiat"
	}
}

// AssetInfo is the display and deposit metadata for one asset.
type AssetInfo struct {
	Symbol        string `yaml:"symbol"`
	Name          string `yaml:"name"`
	Network       string `yaml:"network"`
	Emoji         string `yaml:"emoji"`
	Decimals      int32  `yaml:"decimals"`
	MinDeposit    string `yaml:"min_deposit"`
	Confirmations int    `yaml:"confirmations"`
	Note          string `yaml:"note"`
	ExplorerURL   string `yaml:"explorer_url"` // fmt pattern taking the address
}

// Explorer returns the block explorer link for address, or "" when unknown.
func (i AssetInfo) Explorer(address string) string {
	if i.ExplorerURL == "" {
		return ""
	}
	return fmt.Sprintf(i.ExplorerURL, address)
}

// DefaultAssetCatalog is used when no assets file is configured.
func DefaultAssetCatalog() map[Asset]AssetInfo {
	return map[Asset]AssetInfo{
		AssetNGN:  {Symbol: "NGN", Name: "Naira", Network: "Bank transfer", Emoji: "💰", Decimals: 2},
		AssetBTC:  {Symbol: "BTC", Name: "Bitcoin", Network: "Bitcoin (BTC)", Emoji: "₿", Decimals: 8, MinDeposit: "0.0001", Confirmations: 3, Note: "Send only BTC to this address. Do not send other cryptocurrencies.", ExplorerURL: "https://blockstream.info/address/%s"},
		AssetETH:  {Symbol: "ETH", Name: "Ethereum", Network: "Ethereum (ERC20)", Emoji: "💵", Decimals: 8, MinDeposit: "0.01", Confirmations: 12, Note: "Send only ETH to this address", ExplorerURL: "https://etherscan.io/address/%s"},
		AssetSOL:  {Symbol: "SOL", Name: "Solana", Network: "Solana", Emoji: "🟣", Decimals: 8, MinDeposit: "0.1", Confirmations: 1, Note: "Send only SOL to this address", ExplorerURL: "https://solscan.io/account/%s"},
		AssetUSDT: {Symbol: "USDT", Name: "Tether", Network: "ERC20 (Ethereum)", Emoji: "🌐", Decimals: 2, MinDeposit: "10", Confirmations: 12, Note: "Send only USDT (ERC20) to this address", ExplorerURL: "https://etherscan.io/address/%s"},
	}
}
