package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/fhevm-client/interfaces"
)

// VaultBackend implements a storage backend on a HashiCorp Vault KV v2 mount.
// It is intended for signed decryption authorizations, which carry the
// ephemeral private key.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultBackend creates a new Vault storage backend.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: Path within the mount (e.g. "fhevm")
//   - token: Vault token; empty uses VAULT_TOKEN from the environment
//   - log: Structured logger for operational insights
func NewVaultBackend(address, mountPath, dataPath, token string, log *slog.Logger) (*VaultBackend, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.Timeout = 30 * time.Second

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultBackend{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", strings.TrimPrefix(strings.TrimPrefix(address, "https://"), "http://"), mountPath, dataPath),
	}, nil
}

// Get reads the value through the KV v2 data endpoint.
func (b *VaultBackend) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	path := b.secretPath("data", key)

	secret, err := b.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		b.log.Error("Failed to read from Vault",
			slog.String("path", path),
			"err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	if secret == nil || secret.Data == nil {
		b.log.Debug("Value not found in Vault", slog.String("path", path))
		return nil, interfaces.ErrContentNotFound
	}

	// A soft-deleted version reads back with nil data.
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok || data == nil {
		return nil, interfaces.ErrContentNotFound
	}

	content, ok := data["content"].(string)
	if !ok {
		b.log.Error("Invalid content format in Vault data", slog.String("path", path))
		return nil, fmt.Errorf("invalid content format in Vault data")
	}

	b.log.Debug("Fetched value from Vault",
		slog.String("path", path),
		slog.Duration("duration", time.Since(start)))

	return []byte(content), nil
}

func (b *VaultBackend) Set(ctx context.Context, key string, value []byte) error {
	path := b.secretPath("data", key)

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"content": string(value),
		},
	}

	if _, err := b.client.Logical().WriteWithContext(ctx, path, secretData); err != nil {
		b.log.Error("Failed to write to Vault",
			slog.String("path", path),
			"err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	return nil
}

// Delete removes every version through the metadata endpoint.
func (b *VaultBackend) Delete(ctx context.Context, key string) error {
	path := b.secretPath("metadata", key)
	if _, err := b.client.Logical().DeleteWithContext(ctx, path); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

// Available checks if the Vault backend is accessible.
// It uses the health endpoint to verify that Vault is initialized and unsealed.
func (b *VaultBackend) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := b.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		b.log.Debug("Vault health check failed", "err", err)
		return false
	}

	if !health.Initialized || health.Sealed {
		b.log.Debug("Vault is not available",
			slog.Bool("initialized", health.Initialized),
			slog.Bool("sealed", health.Sealed))
		return false
	}

	return true
}

// Name returns a unique identifier for this storage backend.
func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s-%s", b.mountPath, b.dataPath)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}

func (b *VaultBackend) secretPath(endpoint, key string) string {
	if b.dataPath == "" {
		return fmt.Sprintf("%s/%s/%s", b.mountPath, endpoint, objectName(key))
	}
	return fmt.Sprintf("%s/%s/%s/%s", b.mountPath, endpoint, b.dataPath, objectName(key))
}
