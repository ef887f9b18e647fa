package db

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Connect opens the store for the configured driver and runs migrations.
// Supported drivers are "postgres" and "sqlite".
func Connect(driver, dsn string, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations applied", zap.String("driver", driver))
	return db, nil
}

// Open connects without migrating.
func Open(driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	switch driver {
	case "sqlite":
		// one connection: in-memory databases are per connection and
		// sqlite serialises writers anyway
		db.SetMaxOpenConns(1)
	default:
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	return db, nil
}

// Migrate creates the schema if it does not exist yet.
func Migrate(db *sqlx.DB) error {
	migrations := postgresMigrations
	if db.DriverName() == "sqlite" {
		migrations = sqliteMigrations
	}
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            created_at BIGINT NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS friendships (
            user_a TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            user_b TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            created_at BIGINT NOT NULL,
            PRIMARY KEY(user_a, user_b)
        );`,
	`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            conversation_key TEXT NOT NULL,
            sender_id TEXT NOT NULL,
            recipient_id TEXT NOT NULL,
            kind TEXT NOT NULL,
            body TEXT NOT NULL DEFAULT '',
            blob_ref TEXT NOT NULL DEFAULT '',
            blob_size BIGINT NOT NULL DEFAULT 0,
            blob_type TEXT NOT NULL DEFAULT '',
            created_at BIGINT NOT NULL
        );`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_key, created_at, id);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient_id, sender_id);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_blob ON messages(blob_ref);`,
	`CREATE TABLE IF NOT EXISTS read_markers (
            user_id TEXT NOT NULL,
            message_id BIGINT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            read_at BIGINT NOT NULL,
            PRIMARY KEY(user_id, message_id)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_read_markers_message ON read_markers(message_id);`,
}

var sqliteMigrations = []string{
	`PRAGMA foreign_keys = ON;`,
	`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            created_at INTEGER NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS friendships (
            user_a TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            user_b TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            created_at INTEGER NOT NULL,
            PRIMARY KEY(user_a, user_b)
        );`,
	`CREATE TABLE IF NOT EXISTS messages (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            conversation_key TEXT NOT NULL,
            sender_id TEXT NOT NULL,
            recipient_id TEXT NOT NULL,
            kind TEXT NOT NULL,
            body TEXT NOT NULL DEFAULT '',
            blob_ref TEXT NOT NULL DEFAULT '',
            blob_size INTEGER NOT NULL DEFAULT 0,
            blob_type TEXT NOT NULL DEFAULT '',
            created_at INTEGER NOT NULL
        );`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_key, created_at, id);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient_id, sender_id);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_blob ON messages(blob_ref);`,
	`CREATE TABLE IF NOT EXISTS read_markers (
            user_id TEXT NOT NULL,
            message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            read_at INTEGER NOT NULL,
            PRIMARY KEY(user_id, message_id)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_read_markers_message ON read_markers(message_id);`,
}
