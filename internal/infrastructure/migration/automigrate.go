package migration

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/orris-inc/paygate/internal/infrastructure/persistence/models"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

// AutoMigrateModels lists the tables paygate owns. The quotes and profiles
// views belong to the host application and are never migrated here.
func AutoMigrateModels() []interface{} {
	return []interface{}{
		&models.TransactionModel{},
		&models.TransactionEventModel{},
		&models.CallbackEventModel{},
		&models.RecoveryNotificationModel{},
		&models.GatewayModel{},
	}
}

// GormAutoMigrateStrategy derives the schema from the GORM models. It is
// meant for local development only.
type GormAutoMigrateStrategy struct {
	logger logger.Interface
}

func NewGormAutoMigrateStrategy(log logger.Interface) *GormAutoMigrateStrategy {
	return &GormAutoMigrateStrategy{logger: log.With("component", "migration.automigrate")}
}

func (s *GormAutoMigrateStrategy) Migrate(db *gorm.DB, models ...interface{}) error {
	if len(models) == 0 {
		models = AutoMigrateModels()
	}
	s.logger.Infow("running gorm auto migrate", "models_count", len(models))
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	return nil
}

func (s *GormAutoMigrateStrategy) GetName() string {
	return "gorm_auto_migrate"
}
