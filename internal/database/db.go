// Package database opens the MySQL pool used by the mysql active-bill
// store.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config returns the driver config for the given credentials.  ParseTime
// maps DATETIME to time.Time and Loc pins stored expiries to UTC.
func Config(user, pass, host, port, name string) *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = pass
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, port)
	cfg.DBName = name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg
}

// DSN is Config rendered as a connection string.
func DSN(user, pass, host, port, name string) string {
	return Config(user, pass, host, port, name).FormatDSN()
}

// Open connects with the given credentials and pings the server.  It goes
// through the DSN so the driver parses charset itself.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	return OpenDSN(DSN(user, pass, host, port, name))
}

// OpenDSN is Open for a preformatted DSN.
func OpenDSN(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	return ready(db)
}

func ready(db *sql.DB) (*sql.DB, error) {
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}
