package vault

import (
	"fmt"

	"inkwell/internal/config"
	"inkwell/internal/pipeline"
)

// NewVaultFromConfig creates a Vault implementation based on the vault config type.
func NewVaultFromConfig(cfg config.VaultConfig) (pipeline.Vault, error) {
	switch cfg.Type {
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("root required for filesystem vault")
		}
		return NewFileSystemVault(cfg.Root)
	case "memory":
		return NewMemoryVault(), nil
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}
