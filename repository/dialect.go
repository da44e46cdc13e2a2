package repository

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	driverSQLite   = "sqlite3"
	driverPostgres = "postgres"
)

const sqliteBusyTimeoutMs = 5000

type dialect struct {
	driver      string
	integerType string
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "", driverSQLite:
		return dialect{driver: driverSQLite, integerType: "INTEGER"}, nil
	case driverPostgres:
		return dialect{driver: driverPostgres, integerType: "BIGINT"}, nil
	default:
		return dialect{}, storageErr(ErrUnsupportedDriver, fmt.Errorf("driver %q", driver))
	}
}

func (d dialect) dsn(cfg DBConfig) string {
	switch d.driver {
	case driverPostgres:
		sslMode := "sslmode=disable"
		if cfg.IsSSL {
			sslMode = "sslmode=require"
		}
		return fmt.Sprintf("%s/%s?%s", cfg.ConnStr, cfg.DatabaseName, sslMode)
	default:
		path := cfg.Path
		if path == "" {
			path = ":memory:"
		}
		return fmt.Sprintf("%s?_busy_timeout=%d", path, sqliteBusyTimeoutMs)
	}
}

// bind rewrites ? placeholders to the engine placeholder style.
func (d dialect) bind(query string) string {
	if d.driver != driverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
