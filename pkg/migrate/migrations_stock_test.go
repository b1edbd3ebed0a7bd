package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wovera/storefront-backend/pkg/migrate"
)

func TestCatalogMigrationContainsStockConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_catalog_tables.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no catalog migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS stock_items",
		"FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE",
		"CHECK (on_hand_qty >= 0)",
		"CHECK (reserved_qty >= 0)",
		"CHECK (reserved_qty <= on_hand_qty)",
		"DROP TABLE IF EXISTS stock_items",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestShipmentsMigrationCoversCOD(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_shipments.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no shipments migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"cod_amount_cents INTEGER NOT NULL DEFAULT 0",
		"cod_collected BOOLEAN NOT NULL DEFAULT FALSE",
		"CONSTRAINT ux_shipments_provider_ref UNIQUE (provider, consignment_id)",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migrations dir should validate: %v", err)
	}
}
