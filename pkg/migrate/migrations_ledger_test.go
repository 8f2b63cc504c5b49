package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/volna-retail/loyalty-backend/pkg/migrate"
)

func TestMemberMigrationContainsBalanceConstraint(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_member_and_points_history.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no member migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE member",
		"CONSTRAINT member_balance_non_negative CHECK (available_points_balance >= 0)",
		"CREATE TABLE member_points_history",
		"idx_member_points_history_member_cursor",
		"DROP TABLE member_points_history",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOrderMigrationContainsMutualExclusionCheck(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_customer_order.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no order migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE customer_order",
		"CONSTRAINT order_points_coupon_mutual_exclusion",
		"CHECK (NOT (used_points > 0 AND coupon_instance_id IS NOT NULL))",
		"CREATE TABLE customer_order_item",
		"DROP TABLE customer_order",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestAuditMigrationContainsChainColumns(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_audit_chain.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no audit migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE audit_log",
		"previous_hash VARCHAR(64)",
		"sha256_hash VARCHAR(64) NOT NULL",
		"CREATE UNIQUE INDEX idx_audit_log_event_id",
		"CREATE TABLE audit_chain_head",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}
