// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/quickcart-backend/internal/domain/cart"
	"github.com/your-org/quickcart-backend/internal/domain/catalog"
	"github.com/your-org/quickcart-backend/internal/domain/user"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Migration handles database migrations
type Migration struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB, logger *logrus.Logger) *Migration {
	return &Migration{
		db:     db,
		logger: logger,
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	models := []interface{}{
		&user.User{},
		&catalog.Product{},
		&cart.CartLine{},
	}

	for _, model := range models {
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
		m.logger.Debugf("Migrated model %T", model)
	}

	m.logger.Info("Database auto-migrations completed")
	return nil
}

// CreateIndexes creates indexes that the struct tags do not express
func (m *Migration) CreateIndexes() error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_products_category_created ON products(category, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_products_price ON products(price)",
		"CREATE INDEX IF NOT EXISTS idx_cart_lines_user_created ON cart_lines(user_id, created_at, id)",
	}

	failed := 0
	for _, indexSQL := range indexes {
		if err := m.db.Exec(indexSQL).Error; err != nil {
			m.logger.WithError(err).Warn("Failed to create index")
			failed++
		}
	}

	m.logger.WithFields(logrus.Fields{
		"created": len(indexes) - failed,
		"failed":  failed,
	}).Info("Database indexes ensured")
	return nil
}

// SeedInitialData inserts the admin account and a starter catalog
func (m *Migration) SeedInitialData() error {
	if err := m.seedAdminUser(); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}
	if err := m.seedProducts(); err != nil {
		return fmt.Errorf("failed to seed products: %w", err)
	}
	return nil
}

func (m *Migration) seedAdminUser() error {
	var existing user.User
	err := m.db.Where("email = ?", "admin@example.com").First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("Admin1234"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	admin := user.User{
		Email:    "admin@example.com",
		Password: string(hashedPassword),
		Name:     "Admin",
		IsAdmin:  true,
	}
	if err := m.db.Create(&admin).Error; err != nil {
		return err
	}

	m.logger.WithField("email", admin.Email).Info("Created admin user")
	return nil
}

func (m *Migration) seedProducts() error {
	var count int64
	if err := m.db.Model(&catalog.Product{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	products := []catalog.Product{
		{Title: "Wireless Earbuds", About: "Bluetooth earbuds with charging case", Category: "electronics", Price: decimal.RequireFromString("59.99"), Stock: 25},
		{Title: "Mechanical Keyboard", About: "Tenkeyless, brown switches", Category: "electronics", Price: decimal.RequireFromString("89.00"), Stock: 10},
		{Title: "Cotton T-Shirt", About: "Plain crew neck", Category: "clothing", Price: decimal.RequireFromString("12.50"), Stock: 100},
		{Title: "Rain Jacket", About: "Packable waterproof shell", Category: "clothing", Price: decimal.RequireFromString("74.00"), Stock: 8},
		{Title: "Pour-Over Kettle", About: "Gooseneck, 1 litre", Category: "kitchen", Price: decimal.RequireFromString("34.90"), Stock: 5},
		{Title: "Cast Iron Pan", About: "Pre-seasoned, 26 cm", Category: "kitchen", Price: decimal.RequireFromString("42.00"), Stock: 1},
	}

	if err := m.db.Create(&products).Error; err != nil {
		return err
	}

	m.logger.WithField("count", len(products)).Info("Seeded products")
	return nil
}
