package database

import (
	"fmt"

	"github.com/wishlane/backend/internal/config"
	"github.com/wishlane/backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate runs AutoMigrate plus the raw constraints GORM tags cannot
// express. The partial unique index is the database-level guard that at
// most one full claim (NULL amount) exists per item, so a concurrent
// double full-claim resolves to exactly one insert succeeding.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.GroupMembership{},
		&models.Invitation{},
		&models.Item{},
		&models.ItemRecipient{},
		&models.Claim{},
		&models.Notification{},
	); err != nil {
		return err
	}

	fullClaimIndex := `
CREATE UNIQUE INDEX IF NOT EXISTS idx_claims_one_full_per_item
ON claims (item_id)
WHERE amount_cents IS NULL`

	return db.Exec(fullClaimIndex).Error
}
