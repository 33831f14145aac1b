package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := fs.Glob(Embedded(), "*_"+suffix+".sql")
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected one %s migration", suffix)
	data, err := fs.ReadFile(Embedded(), matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestEmbeddedMigrationsValidate(t *testing.T) {
	require.NoError(t, ValidateFS(Embedded()))
	require.NoError(t, ValidateDir(embeddedDir))

	entries, err := fs.ReadDir(Embedded(), ".")
	require.NoError(t, err)
	onDisk, err := filepath.Glob(filepath.Join(embeddedDir, "*.sql"))
	require.NoError(t, err)
	assert.Len(t, entries, len(onDisk))
}

func TestCartMigrationCarriesActiveCartIndex(t *testing.T) {
	content := readMigration(t, "create_carts")
	for _, sub := range []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_carts_active_customer ON carts (customer_id) WHERE status = 'active'",
		"CHECK (quantity BETWEEN 1 AND 100)",
		"FOREIGN KEY (cart_id) REFERENCES carts(id) ON DELETE CASCADE",
		"DROP TABLE IF EXISTS carts",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestOrderMigrationConstraints(t *testing.T) {
	content := readMigration(t, "create_orders")
	for _, sub := range []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_order_number ON orders (order_number)",
		"CREATE TABLE IF NOT EXISTS order_status_history",
		"stock_tracked     boolean NOT NULL DEFAULT false",
		"DROP TABLE IF EXISTS vendor_orders",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestCatalogMigrationStockInvariant(t *testing.T) {
	content := readMigration(t, "create_catalog")
	assert.Contains(t, content, "CHECK (allow_backorder OR stock >= 0)")
	assert.Contains(t, content, "CREATE UNIQUE INDEX IF NOT EXISTS ux_coupons_code ON coupons (code)")
}

func TestCreateSQLMigrationProducesValidFile(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Vendor Payouts!")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_vendor_payouts.sql"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "-- +goose Up")
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "  !!! ")
	assert.Error(t, err)
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	assert.Error(t, ValidateDir(dir))
}

func TestValidateAnnotations(t *testing.T) {
	assert.NoError(t, validateAnnotations("-- +goose Up\n-- +goose StatementBegin\n-- +goose StatementEnd\n-- +goose Down\n"))
	assert.Error(t, validateAnnotations("-- +goose Down\n-- +goose Up\n"))
	assert.Error(t, validateAnnotations("-- +goose Up\n-- +goose StatementBegin\n-- +goose Down\n"))
	assert.Error(t, validateAnnotations("-- +goose Up\n"))
}
