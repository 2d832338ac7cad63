package db

import (
	"fmt"
	"strings"

	"licensekeeper/pkg/config"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const defaultSQLiteDSN = "file:licensekeeper.db?_foreign_keys=on"

// Dialect picks the gorm driver named by DATABASE.TYPE. An explicit DATABASE.DSN
// wins over the discrete host/port/user settings.
func Dialect(cfg *config.Config) (gorm.Dialector, error) {
	dsn := cfg.Database.DSN

	switch strings.ToLower(strings.TrimSpace(cfg.Database.Type)) {
	case "", "postgres", "postgresql":
		if dsn == "" {
			dsn = postgresDSN(cfg)
		}
		return postgres.Open(dsn), nil
	case "mysql":
		if dsn == "" {
			dsn = mysqlDSN(cfg)
		}
		return mysql.Open(dsn), nil
	case "sqlite", "sqlite3":
		if dsn == "" {
			dsn = defaultSQLiteDSN
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Database.Type)
	}
}

func postgresDSN(cfg *config.Config) string {
	d := cfg.Database
	parts := []string{
		"host=" + d.Host,
		"port=" + d.Port,
		"dbname=" + d.DBNAME,
	}
	if d.User != "" {
		parts = append(parts, "user="+d.User)
	}
	if d.Password != "" {
		parts = append(parts, "password="+d.Password)
	}
	if d.SSLMode != "" {
		parts = append(parts, "sslmode="+d.SSLMode)
	}
	if d.Timezone != "" {
		parts = append(parts, "TimeZone="+d.Timezone)
	}
	return strings.Join(parts, " ")
}

func mysqlDSN(cfg *config.Config) string {
	d := cfg.Database
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.DBNAME)
}

// extractDBNameFromDSN reads dbname= from a key/value postgres DSN.
func extractDBNameFromDSN(dsn string) string {
	for _, part := range strings.Fields(dsn) {
		if strings.HasPrefix(part, "dbname=") {
			return strings.TrimPrefix(part, "dbname=")
		}
	}
	return "unknown"
}

// extractMySQLDBName reads the schema from user:pass@tcp(host)/dbname?params.
func extractMySQLDBName(dsn string) string {
	slash := strings.LastIndex(dsn, "/")
	if slash < 0 || slash == len(dsn)-1 {
		return "unknown"
	}
	name := dsn[slash+1:]
	if q := strings.Index(name, "?"); q >= 0 {
		name = name[:q]
	}
	if name == "" {
		return "unknown"
	}
	return name
}
