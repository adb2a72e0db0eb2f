package migration

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/ledgerly/backend/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add payment reminders", "add_payment_reminders"},
		{"Add-Payment-Reminders", "add_payment_reminders"},
		{"ADD_AUDIT_INDEX", "add_audit_index"},
		{"add__audit__index", "add_audit_index"},
		{"Ledger 2024", "ledger_2024"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration_NumbersSequentially(t *testing.T) {
	dir := t.TempDir()

	first, err := CreateMigration(dir, "add reminders", "Track payment reminders")
	require.NoError(t, err)
	assert.Equal(t, "000001", first.Version)
	assert.Equal(t, filepath.Join(dir, "000001_add_reminders.up.sql"), first.UpPath)
	assert.Equal(t, filepath.Join(dir, "000001_add_reminders.down.sql"), first.DownPath)

	up, err := os.ReadFile(first.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "add reminders")
	assert.Contains(t, string(up), "Track payment reminders")

	down, err := os.ReadFile(first.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "Rollback")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "000007_manual.up.sql"), []byte("--"), 0o644))

	next, err := CreateMigration(dir, "next", "")
	require.NoError(t, err)
	assert.Equal(t, "000008", next.Version)
}

func TestCreateMigration_CreatesDirectory(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "nested", "migrations")

	_, err := CreateMigration(nested, "init", "")
	require.NoError(t, err)

	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCreateMigration_Errors(t *testing.T) {
	t.Run("name without usable characters", func(t *testing.T) {
		_, err := CreateMigration(t.TempDir(), "!!!", "")
		assert.Error(t, err)
	})

	t.Run("existing file without numeric version", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "init.up.sql"), []byte("--"), 0o644))

		_, err := CreateMigration(dir, "next", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "numeric version")
	})
}

func TestListMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"000002_payments.up.sql":   {Data: []byte("--")},
		"000002_payments.down.sql": {Data: []byte("--")},
		"000001_init.up.sql":       {Data: []byte("--")},
		"000001_init.down.sql":     {Data: []byte("--")},
		"README.md":                {Data: []byte("docs")},
		"subdir.up.sql/keep":       {Data: []byte("")},
	}

	list, err := ListMigrations(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_init", "000002_payments"}, list)
}

func TestListMigrations_MissingDirectory(t *testing.T) {
	list, err := ListMigrations(os.DirFS("/nonexistent/path/to/migrations"))
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	list, err := ListMigrations(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, list)
	assert.Equal(t, "000001_ledger_schema", list[0])

	for _, base := range list {
		_, err := migrations.FS.Open(base + downSuffix)
		assert.NoError(t, err, "missing down migration for %s", base)
	}
}
