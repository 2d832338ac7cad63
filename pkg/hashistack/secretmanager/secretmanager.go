package secretmanager

import (
	"os"

	vault "github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module supplies the optional *vault.Client consumed by config.LoadConfig.
var Module = fx.Module("secretmanager", fx.Provide(ProvideVault))

// Enabled reports whether the process environment points at a Vault server.
func Enabled() bool {
	return os.Getenv("VAULT_ADDR") != ""
}

// ProvideVault builds a client from VAULT_ADDR, VAULT_TOKEN and the other
// standard VAULT_* variables.
func ProvideVault() (*vault.Client, error) {
	client, err := vault.New(
		vault.WithEnvironment(),
	)
	if err != nil {
		zap.L().Error("failed to create vault client", zap.Error(err))
		return nil, err
	}

	zap.L().Info("vault client configured", zap.String("addr", os.Getenv("VAULT_ADDR")))
	return client, nil
}
