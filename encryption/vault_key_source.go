package encryption

import (
	"context"
	"fmt"
	"strings"

	vault "github.com/hashicorp/vault/api"
	"github.com/pkg/errors"
)

// VaultKeySource reads a base64 key from a field of a KV v2 secret. The secret is
// read on every call so rotation in Vault is picked up immediately.
type VaultKeySource struct {
	client *vault.Client
	mount  string
	path   string
	field  string
}

func NewVaultKeySource(address, token, mount, path, field string) (*VaultKeySource, error) {
	cfg := vault.DefaultConfig()
	cfg.Address = address
	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "[NewVaultKeySource] failed to create vault client")
	}
	if token != "" {
		client.SetToken(token)
	}
	return &VaultKeySource{
		client: client,
		mount:  strings.Trim(mount, "/"),
		path:   strings.Trim(path, "/"),
		field:  field,
	}, nil
}

func (s *VaultKeySource) Key(ctx context.Context) ([]byte, error) {
	secretPath := fmt.Sprintf("%s/data/%s", s.mount, s.path)
	secret, err := s.client.Logical().ReadWithContext(ctx, secretPath)
	if err != nil {
		return nil, errors.Wrapf(err, "[VaultKeySource.Key] failed to read %s", secretPath)
	}
	if secret == nil || secret.Data == nil {
		return nil, errors.Errorf("[VaultKeySource.Key] secret %s not found", secretPath)
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("[VaultKeySource.Key] secret %s has no data", secretPath)
	}
	value, ok := data[s.field].(string)
	if !ok || value == "" {
		return nil, errors.Errorf("[VaultKeySource.Key] field %q missing in %s", s.field, secretPath)
	}
	return decodeKey(value)
}
