package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"naira-wallet-bot-go/internal/models"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

type AssetsConfig struct {
	Assets []models.AssetInfo `yaml:"assets"`
}

// LoadAssetCatalog reads asset display metadata from a YAML file. Listed
// assets override the built-in entries field by field; a missing file means
// the built-in catalog is used as is.
func LoadAssetCatalog(assetsFile string) (map[models.Asset]models.AssetInfo, error) {
	catalog := models.DefaultAssetCatalog()
	if assetsFile == "" {
		return catalog, nil
	}

	assetsPath := assetsFile
	if !filepath.IsAbs(assetsFile) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		assetsPath = filepath.Join(wd, assetsFile)
	}

	data, err := os.ReadFile(assetsPath)
	if errors.Is(err, fs.ErrNotExist) {
		zap.L().Info("Assets file not found, using built-in catalog", zap.String("path", assetsPath))
		return catalog, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", assetsFile, err)
	}

	var config AssetsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", assetsFile, err)
	}

	for i, info := range config.Assets {
		if info.Symbol == "" {
			return nil, fmt.Errorf("asset at index %d missing symbol", i)
		}
		asset, err := models.ParseAsset(info.Symbol)
		if err != nil {
			return nil, fmt.Errorf("asset at index %d: %w", i, err)
		}
		if info.Decimals < 0 || info.Decimals > 18 {
			return nil, fmt.Errorf("asset %s: decimals %d out of range", asset, info.Decimals)
		}
		catalog[asset] = mergeAssetInfo(catalog[asset], info)
	}

	return catalog, nil
}

func mergeAssetInfo(base, override models.AssetInfo) models.AssetInfo {
	base.Symbol = override.Symbol
	if override.Name != "" {
		base.Name = override.Name
	}
	if override.Network != "" {
		base.Network = override.Network
	}
	if override.Emoji != "" {
		base.Emoji = override.Emoji
	}
	if override.Decimals != 0 {
		base.Decimals = override.Decimals
	}
	if override.MinDeposit != "" {
		base.MinDeposit = override.MinDeposit
	}
	if override.Confirmations != 0 {
		base.Confirmations = override.Confirmations
	}
	if override.Note != "" {
		base.Note = override.Note
	}
	if override.ExplorerURL != "" {
		base.ExplorerURL = override.ExplorerURL
	}
	return base
}
