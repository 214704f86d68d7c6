// Package dbtest opens throwaway sqlite databases carrying the service schema.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE members (
		id TEXT PRIMARY KEY,
		external_subject TEXT NOT NULL UNIQUE,
		display_name TEXT,
		email TEXT,
		phone TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE payment_intents (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_reference TEXT,
		amount_minor INTEGER NOT NULL CHECK (amount_minor > 0),
		currency TEXT NOT NULL,
		payer_identifier TEXT NOT NULL,
		purpose TEXT NOT NULL,
		fund_code TEXT,
		member_id TEXT,
		state TEXT NOT NULL,
		failure_code TEXT,
		failure_reason TEXT,
		settlement_receipt TEXT,
		flagged_for_review BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		CHECK ((state = 'failed') = (failure_reason IS NOT NULL)),
		CHECK (settlement_receipt IS NULL OR state = 'completed')
	)`,
	`CREATE UNIQUE INDEX ux_payment_intents_provider_reference
		ON payment_intents (provider, provider_reference)
		WHERE provider_reference IS NOT NULL`,
	`CREATE TABLE payment_intent_transitions (
		id TEXT PRIMARY KEY,
		intent_id TEXT NOT NULL,
		from_state TEXT,
		to_state TEXT NOT NULL,
		source TEXT NOT NULL,
		reason TEXT,
		payload BLOB,
		created_at DATETIME
	)`,
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
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json BLOB NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME
	)`,
	`CREATE TABLE parked_callbacks (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_reference TEXT NOT NULL,
		body_sha256 TEXT NOT NULL,
		body BLOB NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_attempt_at DATETIME,
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_parked_callbacks_body ON parked_callbacks (provider, body_sha256)`,
}

var seq atomic.Int64

// Open returns a fresh in-memory database with every table created. Each
// call gets its own database, even within one test.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_busy_timeout=5000", name, seq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	// One connection keeps the shared-cache database alive and serializes writers.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}
