package services

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/wishlane/backend/internal/config"
	"github.com/wishlane/backend/internal/database"
	"github.com/wishlane/backend/internal/models"
	"gorm.io/gorm"
)

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating models: %v", err)
	}

	return db
}

func defaultClaimPolicy() config.ClaimsConfig {
	return config.ClaimsConfig{
		ExpirationDays:            30,
		PurchasedSuppressesExpiry: true,
		SweepInterval:             time.Hour,
	}
}

func mustCreateUser(t *testing.T, db *gorm.DB, email, displayName string) *models.User {
	t.Helper()

	user := &models.User{Email: email, PasswordHash: "hash", DisplayName: displayName}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating user %s: %v", email, err)
	}
	return user
}

func mustCreateGroup(t *testing.T, db *gorm.DB, owner *models.User, name string) *models.Group {
	t.Helper()

	group := &models.Group{Name: name, CreatedByID: owner.ID}
	if err := db.Create(group).Error; err != nil {
		t.Fatalf("failed creating group %s: %v", name, err)
	}
	membership := &models.GroupMembership{UserID: owner.ID, GroupID: group.ID, Role: models.GroupRoleOwner}
	if err := db.Create(membership).Error; err != nil {
		t.Fatalf("failed creating owner membership: %v", err)
	}
	return group
}

func mustAddMember(t *testing.T, db *gorm.DB, group *models.Group, user *models.User) {
	t.Helper()

	membership := &models.GroupMembership{UserID: user.ID, GroupID: group.ID, Role: models.GroupRoleMember}
	if err := db.Create(membership).Error; err != nil {
		t.Fatalf("failed adding member: %v", err)
	}
}

func mustCreateItem(t *testing.T, db *gorm.DB, owner *models.User, name string, priceCents *int64) *models.Item {
	t.Helper()

	item := &models.Item{
		OwnerID:    owner.ID,
		Name:       name,
		PriceCents: priceCents,
		Priority:   3,
		Status:     models.ItemStatusActive,
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("failed creating item %s: %v", name, err)
	}
	return item
}

func mustShareItem(t *testing.T, db *gorm.DB, item *models.Item, group *models.Group) {
	t.Helper()

	tag := &models.ItemRecipient{ItemID: item.ID, GroupID: group.ID}
	if err := db.Create(tag).Error; err != nil {
		t.Fatalf("failed sharing item: %v", err)
	}
}

func price(v int64) *int64 {
	return &v
}
