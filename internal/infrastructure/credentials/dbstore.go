package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/orris-inc/paygate/internal/application/payment/gateway"
	"github.com/orris-inc/paygate/internal/domain/payment"
	"github.com/orris-inc/paygate/internal/infrastructure/persistence/models"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

// DBStore resolves identities from payment_gateways. Credentials are stored
// sealed and opened on every Resolve.
type DBStore struct {
	db     *gorm.DB
	sealer *Sealer
	logger logger.Interface
}

func NewDBStore(db *gorm.DB, sealer *Sealer, log logger.Interface) *DBStore {
	return &DBStore{db: db, sealer: sealer, logger: log}
}

var _ gateway.CredentialStore = (*DBStore)(nil)

func (s *DBStore) Resolve(ctx context.Context, code string) (*gateway.Identity, error) {
	code = strings.ToLower(code)

	var m models.GatewayModel
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s not configured", payment.ErrGatewayMisconfigured, code)
		}
		return nil, fmt.Errorf("failed to load gateway %s: %w", code, err)
	}
	if !m.Enabled {
		return nil, fmt.Errorf("%w: %s disabled", payment.ErrGatewayMisconfigured, code)
	}

	creds := map[string]string{}
	if len(m.Credentials) > 0 {
		plain, err := s.sealer.Open(m.Credentials, m.Code)
		if err != nil {
			s.logger.Errorw("gateway credentials cannot be opened", "gateway", code, "error", err)
			return nil, fmt.Errorf("%w: %s credentials unreadable", payment.ErrGatewayMisconfigured, code)
		}
		if err := json.Unmarshal(plain, &creds); err != nil {
			return nil, fmt.Errorf("%w: %s credentials malformed", payment.ErrGatewayMisconfigured, code)
		}
	}

	settings := map[string]string{}
	if len(m.Settings) > 0 {
		if err := json.Unmarshal(m.Settings, &settings); err != nil {
			return nil, fmt.Errorf("%w: %s settings malformed", payment.ErrGatewayMisconfigured, code)
		}
	}

	mode, err := parseMode(m.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", payment.ErrGatewayMisconfigured, code, err)
	}

	return &gateway.Identity{
		Code:        m.Code,
		Mode:        mode,
		BaseURL:     m.BaseURL,
		Enabled:     m.Enabled,
		Credentials: creds,
		Settings:    settings,
	}, nil
}

// Save inserts or replaces a gateway row, sealing its credentials.
func (s *DBStore) Save(ctx context.Context, id *gateway.Identity) error {
	code := strings.ToLower(id.Code)

	plain, err := json.Marshal(id.Credentials)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	sealed, err := s.sealer.Seal(plain, code)
	if err != nil {
		return fmt.Errorf("failed to seal credentials: %w", err)
	}
	settings, err := json.Marshal(id.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	m := &models.GatewayModel{
		Code:        code,
		Mode:        string(id.Mode),
		BaseURL:     id.BaseURL,
		Enabled:     id.Enabled,
		Credentials: sealed,
		Settings:    datatypes.JSON(settings),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"mode", "base_url", "enabled", "credentials", "settings", "updated_at"}),
	}).Create(m).Error
	if err != nil {
		return fmt.Errorf("failed to save gateway %s: %w", code, err)
	}
	return nil
}

// ImportFile copies every entry of a gateway file into the table and
// returns the imported codes.
func (s *DBStore) ImportFile(ctx context.Context, file *FileStore) ([]string, error) {
	entries, err := file.Load()
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(entries))
	for code, e := range entries {
		id, err := e.identity(code)
		if err != nil {
			return codes, err
		}
		if err := s.Save(ctx, id); err != nil {
			return codes, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}
