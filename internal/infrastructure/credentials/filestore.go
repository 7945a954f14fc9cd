// Package credentials resolves gateway identities from a YAML file or from
// the payment_gateways table.
package credentials

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/orris-inc/paygate/internal/application/payment/gateway"
	"github.com/orris-inc/paygate/internal/domain/payment"
)

// GatewayEntry is the YAML shape of one gateway.
type GatewayEntry struct {
	Mode        string            `yaml:"mode"`
	BaseURL     string            `yaml:"base_url"`
	Enabled     bool              `yaml:"enabled"`
	Credentials map[string]string `yaml:"credentials"`
	Settings    map[string]string `yaml:"settings"`
}

type fileDocument struct {
	Gateways map[string]GatewayEntry `yaml:"gateways"`
}

// FileStore reads the gateway file on every Resolve, so edits take effect
// without a restart. Credential values may reference environment variables
// as ${NAME}.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

var _ gateway.CredentialStore = (*FileStore)(nil)

func (s *FileStore) Resolve(_ context.Context, code string) (*gateway.Identity, error) {
	entries, err := s.Load()
	if err != nil {
		return nil, err
	}
	code = strings.ToLower(code)
	entry, ok := entries[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s not configured", payment.ErrGatewayMisconfigured, code)
	}
	if !entry.Enabled {
		return nil, fmt.Errorf("%w: %s disabled", payment.ErrGatewayMisconfigured, code)
	}
	return entry.identity(code)
}

// Load parses the whole file keyed by lower-case gateway code.
func (s *FileStore) Load() (map[string]GatewayEntry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateways file: %w", err)
	}
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse gateways file: %w", err)
	}
	out := make(map[string]GatewayEntry, len(doc.Gateways))
	for code, e := range doc.Gateways {
		out[strings.ToLower(code)] = e
	}
	return out, nil
}

func (e GatewayEntry) identity(code string) (*gateway.Identity, error) {
	mode, err := parseMode(e.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", payment.ErrGatewayMisconfigured, code, err)
	}
	creds := make(map[string]string, len(e.Credentials))
	for k, v := range e.Credentials {
		creds[k] = os.ExpandEnv(v)
	}
	settings := make(map[string]string, len(e.Settings))
	for k, v := range e.Settings {
		settings[k] = v
	}
	return &gateway.Identity{
		Code:        code,
		Mode:        mode,
		BaseURL:     e.BaseURL,
		Enabled:     e.Enabled,
		Credentials: creds,
		Settings:    settings,
	}, nil
}

func parseMode(s string) (gateway.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(gateway.ModeTest):
		return gateway.ModeTest, nil
	case string(gateway.ModeLive):
		return gateway.ModeLive, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}
