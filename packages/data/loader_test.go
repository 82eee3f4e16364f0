package data

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadInline(t *testing.T) {
	l := NewLoader()
	rows, err := l.Load(&Descriptor{
		Type: KindInline,
		Data: []map[string]any{
			{"user": "alice", "age": 30},
			{"user": "bob", "age": 25},
		},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[0]["user"])
	// Inline values round-trip through JSON, so numbers are float64 exactly
	// as they would be after crossing a worker boundary.
	assert.Equal(t, float64(30), rows[0]["age"])
}

func TestLoadCSV(t *testing.T) {
	path := writeFile(t, "users.csv", "user,role\nalice,admin\nbob,viewer\n")

	l := NewLoader()
	rows, err := l.Load(&Descriptor{Type: KindCSV, Source: path})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[0]["user"])
	assert.Equal(t, "viewer", rows[1]["role"])
}

func TestLoadTSV(t *testing.T) {
	path := writeFile(t, "users.tsv", "user\trole\nalice\tadmin\n")

	l := NewLoader()
	rows, err := l.Load(&Descriptor{Type: KindTSV, Source: path})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "admin", rows[0]["role"])
}

func TestLoadJSONWithPath(t *testing.T) {
	path := writeFile(t, "fixtures.json", `{"env":"ci","cases":[{"id":1},{"id":2}]}`)

	l := NewLoader()
	rows, err := l.Load(&Descriptor{Type: KindJSON, Source: path, Path: "cases"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, float64(2), rows[1]["id"])
}

func TestLoadJSONNotAnArray(t *testing.T) {
	path := writeFile(t, "bad.json", `{"id":1}`)

	l := NewLoader()
	_, err := l.Load(&Descriptor{Type: KindJSON, Source: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected a JSON array")
}

func TestLoadFilter(t *testing.T) {
	l := NewLoader()
	rows, err := l.Load(&Descriptor{
		Type: KindInline,
		Data: []map[string]any{
			{"user": "alice", "role": "admin"},
			{"user": "bob", "role": "viewer"},
			{"user": "carol", "role": "admin"},
		},
		Filter: `role=="admin"`,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[0]["user"])
	assert.Equal(t, "carol", rows[1]["user"])
}

func TestLoadFilterNoMatches(t *testing.T) {
	l := NewLoader()
	rows, err := l.Load(&Descriptor{
		Type:   KindInline,
		Data:   []map[string]any{{"role": "viewer"}},
		Filter: `role=="admin"`,
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestLoadSchemaValidation(t *testing.T) {
	schema := writeFile(t, "row.schema.json", `{
		"type": "object",
		"required": ["user"],
		"properties": {"user": {"type": "string"}}
	}`)

	l := NewLoader()
	_, err := l.Load(&Descriptor{
		Type:   KindInline,
		Data:   []map[string]any{{"user": "alice"}, {"role": "admin"}},
		Schema: schema,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
}

func TestLoadDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fixtures.db")
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE users (name TEXT, role TEXT);
		INSERT INTO users VALUES ('alice','admin'),('bob','viewer')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	l := NewLoader()
	rows, err := l.Load(&Descriptor{
		Type:       KindDatabase,
		Connection: "sqlite://" + dbPath,
		Query:      "SELECT name, role FROM users ORDER BY name",
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[0]["name"])
}

func TestLoadCachesPerDescriptor(t *testing.T) {
	path := writeFile(t, "users.csv", "user\nalice\n")

	l := NewLoader()
	d := &Descriptor{Type: KindCSV, Source: path}
	first, err := l.Load(d)
	require.NoError(t, err)

	// Deleting the file proves the second load comes from the cache.
	require.NoError(t, os.Remove(path))
	second, err := l.Load(d)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLoadRowsWrapsFresh(t *testing.T) {
	l := NewLoader()
	d := &Descriptor{Type: KindInline, Data: []map[string]any{{"user": "alice"}}}

	rows, err := l.LoadRows(d)
	require.NoError(t, err)
	rows[0].Get("user")
	assert.Equal(t, []string{"user"}, rows[0].Accessed())

	// Access recording must not leak between loads.
	again, err := l.LoadRows(d)
	require.NoError(t, err)
	assert.Empty(t, again[0].Accessed())
}

func TestDescriptorValidate(t *testing.T) {
	tests := []struct {
		name    string
		desc    Descriptor
		wantErr string
	}{
		{"missing type", Descriptor{}, "type is required"},
		{"inline without rows", Descriptor{Type: KindInline}, "requires data rows"},
		{"csv without source", Descriptor{Type: KindCSV}, "requires a source path"},
		{"database without query", Descriptor{Type: KindDatabase, Connection: "sqlite://x"}, "requires query"},
		{"unknown type", Descriptor{Type: "grpc"}, "unknown data source type"},
		{"valid inline", Descriptor{Type: KindInline, Data: []map[string]any{{}}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
