package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestShippedMigrationsAreValid(t *testing.T) {
	if err := Validate("migrations"); err != nil {
		t.Fatalf("shipped migrations invalid: %v", err)
	}
}

func TestPaymentIntentMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_payment_intents.sql"))
	if err != nil || len(matches) == 0 {
		t.Fatalf("no payment intent migration found: %v", err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	content := string(data)

	for _, sub := range []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_payment_intents_provider_reference",
		"WHERE provider_reference IS NOT NULL",
		"CHECK (amount_minor > 0)",
		"CREATE TABLE IF NOT EXISTS payment_intent_transitions",
		"DROP TABLE IF EXISTS payment_intents",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestParkedCallbackMigrationDedupesBodies(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("migrations", "20260315090000_create_parked_callbacks.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	content := string(data)
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS parked_callbacks",
		"ON parked_callbacks (provider, body_sha256)",
		"DROP TABLE IF EXISTS parked_callbacks",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCreateAndValidate(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	path, err := Create(dir, "Add Fund Codes!", now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if filepath.Base(path) != "20260301090000_add_fund_codes.sql" {
		t.Fatalf("unexpected filename %s", filepath.Base(path))
	}
	if _, err := Create(dir, "add fund codes", now); err == nil {
		t.Fatal("expected duplicate create to fail")
	}
	if err := Validate(dir); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "bad.sql"), []byte("-- +goose Up"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Validate(dir); err == nil {
		t.Fatal("expected invalid filename to fail validation")
	}
}

func TestCreateRejectsEmptyName(t *testing.T) {
	if _, err := Create(t.TempDir(), " !! ", time.Now()); err == nil {
		t.Fatal("expected empty sanitized name to fail")
	}
}
