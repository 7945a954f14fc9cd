package gateway

import (
	"context"
	"strconv"
	"strings"
)

type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

// Identity is the resolved configuration of one gateway for one request.
// Credentials are opaque outside the owning adapter.
type Identity struct {
	Code        string
	Mode        Mode
	BaseURL     string
	Enabled     bool
	Credentials map[string]string
	Settings    map[string]string
}

func (i *Identity) IsLive() bool { return i.Mode == ModeLive }

// Credential returns the named credential or "".
func (i *Identity) Credential(name string) string {
	return i.Credentials[name]
}

// SettingInt reads an integer setting, returning def when absent or invalid.
func (i *Identity) SettingInt(name string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(i.Settings[name]))
	if err != nil {
		return def
	}
	return v
}

// CredentialStore resolves identities. Implementations must return
// payment.ErrGatewayMisconfigured for unknown or disabled codes and must not
// cache identities across calls.
type CredentialStore interface {
	Resolve(ctx context.Context, code string) (*Identity, error)
}
