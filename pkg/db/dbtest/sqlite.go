// Package dbtest opens in-memory SQLite databases carrying the storefront schema for repository tests.
package dbtest

import (
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS news_subscribers (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  first_name TEXT NOT NULL,
  last_name TEXT NOT NULL,
  gender TEXT NOT NULL DEFAULT 'male',
  birth_date DATETIME,
  phone_number TEXT,
  is_activated INTEGER NOT NULL DEFAULT 0,
  otp_secret TEXT NOT NULL,
  otp_sent_at DATETIME,
  invoice_delivery TEXT NOT NULL DEFAULT 'electronic',
  address_list TEXT NOT NULL DEFAULT '{"list":[],"selected":0}',
  invoice_address TEXT,
  order_ids TEXT NOT NULL DEFAULT '{}',
  news_subscriber_id TEXT,
  last_login_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS product_variants (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  name TEXT NOT NULL,
  sub_title TEXT NOT NULL,
  description TEXT,
  price TEXT NOT NULL,
  old_price TEXT,
  currency TEXT NOT NULL DEFAULT 'USD',
  color TEXT NOT NULL DEFAULT '',
  gender TEXT,
  images TEXT,
  advantages TEXT,
  details TEXT,
  size_summary TEXT,
  available INTEGER NOT NULL DEFAULT 1,
  available_details TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS variant_sizes (
  variant_id TEXT NOT NULL,
  size TEXT NOT NULL,
  position INTEGER NOT NULL DEFAULT 0,
  count INTEGER NOT NULL DEFAULT 0 CHECK (count >= 0),
  PRIMARY KEY (variant_id, size)
);`,
	`CREATE TABLE IF NOT EXISTS promo_codes (
  id TEXT PRIMARY KEY,
  code_hash TEXT NOT NULL UNIQUE,
  email TEXT NOT NULL UNIQUE,
  percent_discount INTEGER NOT NULL,
  usage_limit INTEGER NOT NULL DEFAULT 1,
  usage_count INTEGER NOT NULL DEFAULT 0,
  start_date DATETIME NOT NULL,
  end_date DATETIME NOT NULL,
  expiry_at DATETIME NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number INTEGER NOT NULL UNIQUE,
  customer_id TEXT NOT NULL,
  saga_id TEXT NOT NULL,
  products TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  invoice_address TEXT NOT NULL,
  delivery_address TEXT NOT NULL,
  total_amount TEXT NOT NULL,
  currency TEXT NOT NULL,
  total_product_count INTEGER NOT NULL,
  delivery_type TEXT NOT NULL,
  payment_charge_id TEXT NOT NULL UNIQUE,
  order_date DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS checkout_sagas (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  idempotency_key TEXT UNIQUE,
  state TEXT NOT NULL,
  charge_id TEXT UNIQUE,
  charge_status TEXT,
  refund_id TEXT,
  payment_token TEXT NOT NULL,
  amount_minor INTEGER NOT NULL,
  currency TEXT NOT NULL,
  description TEXT NOT NULL,
  delivery_type TEXT NOT NULL,
  payment TEXT NOT NULL,
  promo_code_hash TEXT,
  stock_committed INTEGER NOT NULL DEFAULT 0,
  promo_applied INTEGER NOT NULL DEFAULT 0,
  order_id TEXT,
  failure_reason TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  next_attempt_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  UNIQUE (event_type, aggregate_type, aggregate_id)
);`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`,
}

// Open returns an isolated in-memory database with every storefront table created.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:storefront_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db handle: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}

// VariantSeed describes a variant inserted by SeedVariant.
type VariantSeed struct {
	Name     string
	Price    string
	OldPrice string
	Color    string
	Sizes    []models.VariantSize
}

// SeedVariant inserts a product holding a single variant and returns the stored variant.
func SeedVariant(t testing.TB, conn *gorm.DB, seed VariantSeed) *models.ProductVariant {
	t.Helper()

	product := &models.Product{}
	if err := conn.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}

	name := seed.Name
	if name == "" {
		name = "Runner"
	}
	variant := &models.ProductVariant{
		ProductID: product.ID,
		Name:      name,
		SubTitle:  name + " classic",
		Price:     decimal.RequireFromString(seed.Price),
		Currency:  enums.CurrencyUSD,
		Color:     seed.Color,
		Images:    []types.ImageVariant{{Thumbnail: "thumb.png", Original: "orig.png"}},
		Available: true,
	}
	if seed.OldPrice != "" {
		variant.OldPrice = decimal.NewNullDecimal(decimal.RequireFromString(seed.OldPrice))
	}
	if err := conn.Omit("Sizes").Create(variant).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	for i, size := range seed.Sizes {
		size.VariantID = variant.ID
		size.Position = i
		if err := conn.Create(&size).Error; err != nil {
			t.Fatalf("seed size: %v", err)
		}
		variant.Sizes = append(variant.Sizes, size)
	}
	return variant
}
