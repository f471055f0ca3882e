package sql

import (
	"net/http"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

// Golden files hold the exact SQL for representative requests. Regenerate
// with: go test ./pkg/sql -run TestBuilder_Golden -update
func TestBuilder_Golden(t *testing.T) {
	b := NewBuilder("public")
	prefer := http.Header{"Prefer": []string{"resolution=merge-duplicates"}}

	tests := []struct {
		name  string
		build func() (*CompiledStatement, error)
	}{
		{
			name: "select_sections_with_instruments",
			build: func() (*CompiledStatement, error) {
				return b.Select("orchestral_sections", parse("select=id,name,instruments(id,name)&order=name.asc&limit=10", nil))
			},
		},
		{
			name: "select_inner_join",
			build: func() (*CompiledStatement, error) {
				return b.Select("orchestral_sections", parse("select=name,instruments!inner(name)&instruments.name=ilike.*vio*", nil))
			},
		},
		{
			name: "upsert_instruments",
			build: func() (*CompiledStatement, error) {
				return b.Upsert("instruments", parse("", prefer), []map[string]any{
					{"id": 1, "name": "Violin", "section_id": 2},
					{"id": 2, "name": "Viola", "section_id": 2},
				})
			},
		},
		{
			name: "update_instrument",
			build: func() (*CompiledStatement, error) {
				return b.Update("instruments", parse("id=eq.1&section_id=not.is.null", nil), map[string]any{"name": "Cello"})
			},
		},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden.sql"),
	)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := tt.build()
			require.NoError(t, err)
			assertParses(t, stmt)
			g.Assert(t, tt.name, []byte(stmt.SQL))
		})
	}
}
