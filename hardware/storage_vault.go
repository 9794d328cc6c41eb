package hardware

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hashicorp/vault/api"

	"github.com/ruteri/tee-keymaster-core/interfaces"
)

// VaultStorage implements secure storage over HashiCorp Vault's KV v2
// engine. Attestation material is provisioned out of band at
// <mount>/data/<dataPath>/<slot> with base64 "key" and "chain" fields.
type VaultStorage struct {
	client    *api.Client
	mountPath string
	dataPath  string
	log       *slog.Logger
}

// NewVaultStorage creates a Vault storage backend.
func NewVaultStorage(address, token, mountPath, dataPath string, log *slog.Logger) (*VaultStorage, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(token)

	return &VaultStorage{
		client:    client,
		mountPath: strings.TrimSuffix(mountPath, "/"),
		dataPath:  strings.Trim(dataPath, "/"),
		log:       log,
	}, nil
}

func (s *VaultStorage) read(ctx context.Context, slot interfaces.AttestationKeySlot, field string) (string, error) {
	path := fmt.Sprintf("%s/data/%s/%s", s.mountPath, s.dataPath, slot)

	secret, err := s.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		s.log.Error("failed to read from Vault", slog.String("path", path), "err", err)
		return "", fmt.Errorf("vault read %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("no attestation material at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("invalid data format in Vault response at %s", path)
	}
	value, ok := data[field].(string)
	if !ok {
		return "", fmt.Errorf("field %q not found in Vault data at %s", field, path)
	}
	return value, nil
}

// ReadKey reads the provisioned attestation key for the slot.
func (s *VaultStorage) ReadKey(ctx context.Context, slot interfaces.AttestationKeySlot) ([]byte, error) {
	encoded, err := s.read(ctx, slot, "key")
	if err != nil {
		return nil, err
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid key encoding for %s: %w", slot, err)
	}
	return key, nil
}

// ReadCertChain reads the provisioned certificate chain for the slot.
// The chain field holds newline-separated base64 certificates, leaf
// first.
func (s *VaultStorage) ReadCertChain(ctx context.Context, slot interfaces.AttestationKeySlot) ([][]byte, error) {
	encoded, err := s.read(ctx, slot, "chain")
	if err != nil {
		return nil, err
	}

	var chain [][]byte
	for _, line := range strings.Split(encoded, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cert, err := base64.StdEncoding.DecodeString(line)
		if err != nil {
			return nil, fmt.Errorf("invalid chain encoding for %s: %w", slot, err)
		}
		chain = append(chain, cert)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("empty certificate chain for %s", slot)
	}
	return chain, nil
}
