//go:build integration

package testhelpers

import (
	"context"
	"testing"
)

func TestTestDB_Connection(t *testing.T) {
	testDB := GetTestDB(t)

	ctx := context.Background()

	var roleCount int
	err := testDB.DB.QueryRow(ctx,
		"SELECT COUNT(*) FROM pg_roles WHERE rolname IN ('anon', 'authenticated', 'service_role')").
		Scan(&roleCount)
	if err != nil {
		t.Fatalf("failed to count roles: %v", err)
	}

	if roleCount != 3 {
		t.Errorf("expected 3 API roles after migrations, got %d", roleCount)
	}
}

func TestTestDB_FixtureData(t *testing.T) {
	testDB := GetTestDB(t)

	ctx := context.Background()

	tests := []struct {
		table    string
		expected int
	}{
		{"orchestral_sections", 3},
		{"instruments", 3},
	}

	for _, tt := range tests {
		var count int
		err := testDB.DB.QueryRow(ctx, "SELECT COUNT(*) FROM "+tt.table).Scan(&count)
		if err != nil {
			t.Errorf("failed to count %s: %v", tt.table, err)
			continue
		}
		if count != tt.expected {
			t.Errorf("%s: expected %d rows, got %d", tt.table, tt.expected, count)
		}
	}
}
