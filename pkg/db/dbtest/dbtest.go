// Package dbtest opens throwaway SQLite databases with the marketplace schema
// for repository and service tests.
package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
)

// ActiveCartIndex mirrors the partial unique index created by the migrations.
const ActiveCartIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_carts_active_customer ON carts (customer_id) WHERE status = 'active'`

// Open returns an isolated in-memory database migrated with every model.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:dbtest_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	// one connection keeps transactions and plain reads on the same handle
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(
		&models.Product{},
		&models.Customer{},
		&models.Coupon{},
		&models.Cart{},
		&models.CartItem{},
		&models.Order{},
		&models.VendorOrder{},
		&models.OrderLineItem{},
		&models.OrderStatusEntry{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	if err := conn.Exec(ActiveCartIndex).Error; err != nil {
		t.Fatalf("create active cart index: %v", err)
	}
	return conn
}

// Client wraps Open in the pkg/db client used by services.
func Client(t *testing.T) *db.Client {
	t.Helper()
	return db.NewFromConn(Open(t))
}
