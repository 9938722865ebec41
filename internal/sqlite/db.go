package sqlite

import (
	"fmt"
	"github.com/ariefcatur/go-flash-sale/internal/orders"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"time"
)

type productRow struct {
	ID         string    `gorm:"primaryKey;type:text"`
	Title      string    `gorm:"not null"`
	Author     string    `gorm:"not null;default:''"`
	Year       int       `gorm:"not null;default:0"`
	PriceCents int       `gorm:"not null;default:0"`
	Quantity   int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (productRow) TableName() string { return "products" }

func (r productRow) toProduct() orders.Product {
	return orders.Product{
		ID:         r.ID,
		Title:      r.Title,
		Author:     r.Author,
		Year:       r.Year,
		PriceCents: r.PriceCents,
		Quantity:   r.Quantity,
		CreatedAt:  r.CreatedAt,
	}
}

type orderRow struct {
	ID        string      `gorm:"primaryKey;type:text"`
	ProductID string      `gorm:"not null;index;type:text"`
	Product   *productRow `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time   `gorm:"not null;index"`
}

func (orderRow) TableName() string { return "orders" }

func (r orderRow) toOrder() orders.Order {
	return orders.Order{ID: r.ID, ProductID: r.ProductID, CreatedAt: r.CreatedAt}
}

// Open opens path (":memory:" for throwaway databases) with foreign keys
// on, and pins the pool to one connection: SQLite has a single writer, and
// an in-memory database lives only as long as its connection.
//
// File databases begin transactions IMMEDIATE. A deferred transaction
// reads under a SHARED lock and then asks for RESERVED on its first write;
// when another process holds RESERVED that upgrade fails with BUSY without
// waiting, so buyers on a second instance would see "database is locked"
// instead of waiting their turn.
func Open(path string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate", path)
	if path == ":memory:" {
		dsn = "file::memory:?_foreign_keys=on"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := db.AutoMigrate(&productRow{}, &orderRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// EnsureProduct inserts p unless a product already exists, and returns the
// sale product either way.
func EnsureProduct(db *gorm.DB, p orders.Product) (orders.Product, error) {
	var existing productRow
	err := db.Order("created_at, id").Limit(1).Find(&existing).Error
	if err != nil {
		return orders.Product{}, err
	}
	if existing.ID != "" {
		return existing.toProduct(), nil
	}
	return CreateProduct(db, p)
}

func CreateProduct(db *gorm.DB, p orders.Product) (orders.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	row := productRow{
		ID:         p.ID,
		Title:      p.Title,
		Author:     p.Author,
		Year:       p.Year,
		PriceCents: p.PriceCents,
		Quantity:   p.Quantity,
		CreatedAt:  p.CreatedAt.UTC(),
	}
	if err := db.Create(&row).Error; err != nil {
		return orders.Product{}, fmt.Errorf("failed to create product: %w", err)
	}
	return row.toProduct(), nil
}
