package migration

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"

	"github.com/orris-inc/paygate/internal/shared/logger"
)

//go:embed scripts/mysql/*.sql scripts/postgres/*.sql
var embeddedScripts embed.FS

// Strategy defines the interface for different migration strategies
type Strategy interface {
	// Migrate executes the migration strategy
	Migrate(db *gorm.DB, models ...interface{}) error
	// GetName returns the strategy name
	GetName() string
}

// GooseStrategy applies the versioned SQL scripts embedded in the binary.
// The script set is chosen from the connection's dialect.
type GooseStrategy struct {
	scripts fs.FS
	logger  logger.Interface
}

func NewGooseStrategy(log logger.Interface) *GooseStrategy {
	return &GooseStrategy{
		scripts: embeddedScripts,
		logger:  log.With("component", "migration.goose"),
	}
}

// ScriptsDir returns the script directory for a gorm dialector name.
func ScriptsDir(dialect string) (string, error) {
	switch dialect {
	case "mysql":
		return "scripts/mysql", nil
	case "postgres":
		return "scripts/postgres", nil
	default:
		return "", fmt.Errorf("no migration scripts for dialect %q", dialect)
	}
}

// prepare points goose at the embedded scripts for db's dialect.
func (s *GooseStrategy) prepare(db *gorm.DB) (*gooseTarget, error) {
	dialect := db.Dialector.Name()
	dir, err := ScriptsDir(dialect)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	goose.SetBaseFS(s.scripts)
	goose.SetLogger(gooseLogger{s.logger})
	if err := goose.SetDialect(dialect); err != nil {
		return nil, fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return &gooseTarget{db: sqlDB, dir: dir}, nil
}

func (s *GooseStrategy) Migrate(db *gorm.DB, models ...interface{}) error {
	t, err := s.prepare(db)
	if err != nil {
		return err
	}
	s.logger.Infow("starting goose migration", "scripts", t.dir)

	currentVersion, err := goose.GetDBVersion(t.db)
	if err != nil {
		s.logger.Errorw("failed to get current version", "error", err)
		return fmt.Errorf("failed to get current version: %w", err)
	}

	if err := goose.Up(t.db, t.dir); err != nil {
		s.logger.Errorw("migration failed", "error", err)
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	finalVersion, err := goose.GetDBVersion(t.db)
	if err != nil {
		s.logger.Errorw("failed to get final version", "error", err)
		return fmt.Errorf("failed to get final version: %w", err)
	}

	s.logger.Infow("migration completed successfully",
		"from_version", currentVersion,
		"to_version", finalVersion)

	return nil
}

func (s *GooseStrategy) GetName() string {
	return "goose"
}

func (s *GooseStrategy) MigrateDown(db *gorm.DB, steps int) error {
	t, err := s.prepare(db)
	if err != nil {
		return err
	}
	s.logger.Infow("starting down migration", "steps", steps)

	for i := 0; i < steps; i++ {
		if err := goose.Down(t.db, t.dir); err != nil {
			s.logger.Errorw("down migration failed", "error", err)
			return fmt.Errorf("failed to run down migration: %w", err)
		}
	}

	s.logger.Infow("down migration completed successfully")
	return nil
}

func (s *GooseStrategy) GetVersion(db *gorm.DB) (int64, error) {
	t, err := s.prepare(db)
	if err != nil {
		return 0, err
	}
	version, err := goose.GetDBVersion(t.db)
	if err != nil {
		return 0, fmt.Errorf("failed to get version: %w", err)
	}
	return version, nil
}

func (s *GooseStrategy) Status(db *gorm.DB) error {
	t, err := s.prepare(db)
	if err != nil {
		return err
	}
	if err := goose.Status(t.db, t.dir); err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	return nil
}

// Create writes a new empty SQL migration for dialect into the source tree
// at root. New scripts only take effect after a rebuild.
func Create(root, dialect, name string) (string, error) {
	dir, err := ScriptsDir(dialect)
	if err != nil {
		return "", err
	}
	target := filepath.Join(root, filepath.FromSlash(dir))

	goose.SetBaseFS(nil)
	goose.SetSequential(true)
	if err := goose.Create(nil, target, name, "sql"); err != nil {
		return "", fmt.Errorf("failed to create migration: %w", err)
	}
	return target, nil
}

type gooseTarget struct {
	db  *sql.DB
	dir string
}

type gooseLogger struct {
	log logger.Interface
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.log.Errorw(fmt.Sprintf(format, v...))
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.log.Infow(fmt.Sprintf(format, v...))
}
