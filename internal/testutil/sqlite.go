// Package testutil opens throwaway SQLite databases shaped like the Postgres
// schema for repository and service tests. Foreign keys and their ON DELETE
// rules match the goose migrations and are enforced.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/bookstore-backend/pkg/db"
)

var schema = []string{
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT,
		phone TEXT,
		avatar TEXT,
		role TEXT NOT NULL DEFAULT 'user',
		is_active INTEGER NOT NULL DEFAULT 1,
		reset_token_hash TEXT,
		reset_expires_at DATETIME,
		cart TEXT NOT NULL DEFAULT '[]',
		last_login_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		price NUMERIC NOT NULL,
		images TEXT NOT NULL DEFAULT '[]',
		popular INTEGER NOT NULL DEFAULT 0,
		location TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		user_id TEXT REFERENCES users(id) ON DELETE SET NULL,
		items TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		address TEXT NOT NULL,
		status TEXT NOT NULL,
		payment INTEGER NOT NULL DEFAULT 0,
		payment_method TEXT NOT NULL,
		payment_session_id TEXT,
		tracking_number TEXT,
		tracking_events TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME,
		updated_at DATETIME,
		CONSTRAINT orders_payment_session_id_key UNIQUE (payment_session_id)
	)`,
	`CREATE TABLE activities (
		id TEXT PRIMARY KEY,
		user_id TEXT REFERENCES users(id) ON DELETE SET NULL,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		target TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		message TEXT NOT NULL,
		read INTEGER NOT NULL DEFAULT 0,
		event_id TEXT,
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX idx_notifications_event_user ON notifications (event_id, user_id) WHERE event_id IS NOT NULL`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
}

// OpenDB returns an in-memory database private to the calling test.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared&_foreign_keys=1"), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

// OpenClient wraps OpenDB in the transactional client used by services.
func OpenClient(t *testing.T) *db.Client {
	t.Helper()
	return db.Wrap(OpenDB(t))
}

var seeded atomic.Int64

// SeedUser inserts a bare customer row so rows referencing users satisfy
// their foreign keys.
func SeedUser(t *testing.T, conn *gorm.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	n := seeded.Add(1)
	err := conn.Exec(
		"INSERT INTO users (id, name, email, role, is_active, cart) VALUES (?, ?, ?, 'user', 1, '[]')",
		id.String(), fmt.Sprintf("Reader %d", n), fmt.Sprintf("reader%d@example.com", n),
	).Error
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}
