package session

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema returns portable DDL for the configured table names. The statements
// stick to types accepted by SQLite and PostgreSQL alike; deployments with a
// schema-migration pipeline can take these as a starting point instead of
// calling Migrate.
func Schema(t Tables) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	session_id VARCHAR(32) PRIMARY KEY,
	session_user_id BIGINT NOT NULL,
	session_start BIGINT NOT NULL,
	session_time BIGINT NOT NULL,
	session_ip VARCHAR(45) NOT NULL,
	session_autologin SMALLINT NOT NULL DEFAULT 0
)`, t.Sessions),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key_id VARCHAR(64) NOT NULL,
	user_id BIGINT NOT NULL,
	last_ip VARCHAR(45) NOT NULL,
	last_login BIGINT NOT NULL,
	PRIMARY KEY (key_id, user_id)
)`, t.Keys),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	session_id VARCHAR(32) NOT NULL,
	var_name VARCHAR(80) NOT NULL,
	var_value TEXT,
	PRIMARY KEY (session_id, var_name)
)`, t.Variables),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	name VARCHAR(32) PRIMARY KEY,
	value BIGINT NOT NULL DEFAULT 0
)`, t.Settings),
	}
}

// Migrate creates the session tables when missing and seeds the settings
// rows the store's atomic counters depend on.
//
// Migrate may return an error when input validation, dependency calls, or security checks fail.
func Migrate(ctx context.Context, db *sql.DB, t Tables) error {
	for _, stmt := range Schema(t) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	for _, name := range []string{settingGCTime, settingSerial} {
		seed := fmt.Sprintf(
			"INSERT INTO %s (name, value) SELECT '%s', 0 WHERE NOT EXISTS (SELECT 1 FROM %s WHERE name = '%s')",
			t.Settings, name, t.Settings, name,
		)
		if _, err := db.ExecContext(ctx, seed); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	return nil
}
