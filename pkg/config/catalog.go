package config

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/chainsafe/relicvault/pkg/assets"
)

// CatalogEntry is one allow-listed asset in the catalog file.
type CatalogEntry struct {
	Address string `yaml:"address"`
	// Price is in human units, converted with the configured decimals.
	Price string `yaml:"price"`
	URI   string `yaml:"uri"`
}

type catalogFile struct {
	Assets []CatalogEntry `yaml:"assets"`
}

// LoadCatalog reads the asset allow-list YAML and converts it into the set
// the vault consumes. An empty path yields an empty set.
func LoadCatalog(path string, decimals int32) (*assets.Set, error) {
	set := assets.NewSet()
	if path == "" {
		return set, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse asset catalog: %w", err)
	}

	for i, entry := range file.Assets {
		if !common.IsHexAddress(entry.Address) {
			return nil, fmt.Errorf("asset catalog entry %d: invalid address %q", i, entry.Address)
		}
		price, err := ParseAmount(entry.Price, decimals)
		if err != nil {
			return nil, fmt.Errorf("asset catalog entry %d: %w", i, err)
		}
		set.Add(assets.Entry{
			Asset: common.HexToAddress(entry.Address),
			Price: price,
			URI:   entry.URI,
		})
	}
	return set, nil
}
