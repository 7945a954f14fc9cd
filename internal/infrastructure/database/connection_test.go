package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/paygate/internal/shared/config"
)

func TestDialector(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{"", "mysql"},
		{"mysql", "mysql"},
		{"postgres", "postgres"},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := Dialector(&config.DatabaseConfig{Driver: tt.driver, Host: "db", Port: 5432})
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}

	_, err := Dialector(&config.DatabaseConfig{Driver: "oracle"})
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	pg := &config.DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, Username: "u", Password: "p", Database: "pay"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=pay sslmode=disable TimeZone=UTC", pg.GetDSN())

	my := &config.DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, Username: "u", Password: "p", Database: "pay"}
	assert.Equal(t, "u:p@tcp(db:3306)/pay?charset=utf8mb4&parseTime=True&loc=UTC", my.GetDSN())
}
