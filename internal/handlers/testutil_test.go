package handlers

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/wishlane/backend/internal/config"
	"github.com/wishlane/backend/internal/database"
	"github.com/wishlane/backend/internal/middleware"
	"github.com/wishlane/backend/internal/models"
	"github.com/wishlane/backend/internal/services"
	"github.com/wishlane/backend/pkg/logger"
	"github.com/wishlane/backend/pkg/utils"
	"gorm.io/gorm"
)

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	notifier *services.NotificationService
	claims   *services.ClaimService
	cascade  *services.CascadeService
	sweeper  *services.ClaimSweeper
}

var testSetupOnce sync.Once

func testClaimsConfig() config.ClaimsConfig {
	return config.ClaimsConfig{
		ExpirationDays:            30,
		PurchasedSuppressesExpiry: true,
		NotifyOnUnpurchase:        false,
		SweepInterval:             time.Hour,
	}
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
	})

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

	notifier := services.NewNotificationService(db)
	visibility := services.NewVisibilityService(db)
	claims := services.NewClaimService(db, visibility, notifier, testClaimsConfig())
	cascade := services.NewCascadeService(db, notifier)
	sweeper := services.NewClaimSweeper(db, visibility, notifier, testClaimsConfig())
	mailer := &services.NoopMailer{}

	authHandler := NewAuthHandler(db)
	userHandler := NewUserHandler(db)
	groupHandler := NewGroupHandler(db, cascade, notifier)
	itemHandler := NewItemHandler(db, nil, cascade)
	recipientHandler := NewRecipientHandler(db, cascade, notifier)
	invitationHandler := NewInvitationHandler(db, cascade, notifier, mailer, config.InviteConfig{ExpirationDays: 14})
	claimHandler := NewClaimHandler(db, claims)
	sharedItemHandler := NewSharedItemHandler(db, visibility, claims)
	notificationHandler := NewNotificationHandler(db)
	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 20 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/me", authMiddleware.RequireAuth, authHandler.UpdateMe)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)

	api.Get("/users/search", authMiddleware.RequireAuth, userHandler.Search)

	groupRoutes := api.Group("/groups", authMiddleware.RequireAuth)
	groupRoutes.Post("/", groupHandler.Create)
	groupRoutes.Get("/", groupHandler.List)
	groupRoutes.Get("/:id", groupHandler.Get)
	groupRoutes.Put("/:id", groupHandler.Update)
	groupRoutes.Delete("/:id", groupHandler.Delete)
	groupRoutes.Delete("/:id/members/:userId", groupHandler.RemoveMember)
	groupRoutes.Put("/:id/members/:userId", groupHandler.UpdateMemberRole)
	groupRoutes.Post("/:id/invitations", invitationHandler.Create)
	groupRoutes.Get("/:id/invitations", invitationHandler.ListForGroup)

	invitationRoutes := api.Group("/invitations", authMiddleware.RequireAuth)
	invitationRoutes.Get("/", invitationHandler.ListMine)
	invitationRoutes.Delete("/:invitationId", invitationHandler.Revoke)
	invitationRoutes.Post("/:token/accept", invitationHandler.Accept)
	invitationRoutes.Post("/:token/decline", invitationHandler.Decline)

	itemRoutes := api.Group("/items", authMiddleware.RequireAuth)
	itemRoutes.Post("/", itemHandler.Create)
	itemRoutes.Get("/", itemHandler.List)
	itemRoutes.Get("/:id", itemHandler.Get)
	itemRoutes.Put("/:id", itemHandler.Update)
	itemRoutes.Delete("/:id", itemHandler.Delete)
	itemRoutes.Post("/:id/image", itemHandler.UploadImage)
	itemRoutes.Get("/:id/image-url", itemHandler.ImageURL)
	itemRoutes.Post("/:id/recipients", recipientHandler.Add)
	itemRoutes.Delete("/:id/recipients/:groupId", recipientHandler.Remove)

	claimRoutes := api.Group("/claims", authMiddleware.RequireAuth)
	claimRoutes.Post("/", claimHandler.Create)
	claimRoutes.Get("/", claimHandler.List)
	claimRoutes.Delete("/:id", claimHandler.Release)
	claimRoutes.Post("/:id/purchase", claimHandler.MarkPurchased)
	claimRoutes.Delete("/:id/purchase", claimHandler.UnmarkPurchased)

	sharedRoutes := api.Group("/shared-items", authMiddleware.RequireAuth)
	sharedRoutes.Get("/", sharedItemHandler.List)
	sharedRoutes.Get("/:id", sharedItemHandler.Get)

	notificationRoutes := api.Group("/notifications", authMiddleware.RequireAuth)
	notificationRoutes.Get("/", notificationHandler.List)
	notificationRoutes.Get("/unread-count", notificationHandler.UnreadCount)
	notificationRoutes.Put("/read-all", notificationHandler.MarkAllRead)
	notificationRoutes.Put("/:id/read", notificationHandler.MarkRead)

	return &testEnv{
		app:      app,
		db:       db,
		notifier: notifier,
		claims:   claims,
		cascade:  cascade,
		sweeper:  sweeper,
	}
}

func createTestUser(t *testing.T, db *gorm.DB, email, password, displayName string) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

// createTestGroup creates a group with its owner membership, the same
// shape the create handler produces.
func createTestGroup(t *testing.T, db *gorm.DB, owner *models.User, name string) *models.Group {
	t.Helper()

	group := &models.Group{Name: name, CreatedByID: owner.ID}
	if err := db.Create(group).Error; err != nil {
		t.Fatalf("failed creating test group: %v", err)
	}
	membership := &models.GroupMembership{
		UserID:  owner.ID,
		GroupID: group.ID,
		Role:    models.GroupRoleOwner,
	}
	if err := db.Create(membership).Error; err != nil {
		t.Fatalf("failed creating owner membership: %v", err)
	}
	return group
}

func addTestMember(t *testing.T, db *gorm.DB, group *models.Group, user *models.User, role models.GroupMembershipRole) {
	t.Helper()

	membership := &models.GroupMembership{UserID: user.ID, GroupID: group.ID, Role: role}
	if err := db.Create(membership).Error; err != nil {
		t.Fatalf("failed adding test member: %v", err)
	}
}

func createTestItem(t *testing.T, db *gorm.DB, owner *models.User, name string, priceCents *int64) *models.Item {
	t.Helper()

	item := &models.Item{
		OwnerID:    owner.ID,
		Name:       name,
		PriceCents: priceCents,
		Priority:   3,
		Status:     models.ItemStatusActive,
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("failed creating test item: %v", err)
	}
	return item
}

func shareTestItem(t *testing.T, db *gorm.DB, item *models.Item, group *models.Group) {
	t.Helper()

	tag := &models.ItemRecipient{ItemID: item.ID, GroupID: group.ID}
	if err := db.Create(tag).Error; err != nil {
		t.Fatalf("failed sharing test item: %v", err)
	}
}

func int64Ptr(v int64) *int64 {
	return &v
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}

// countNotifications flushes the async queue and counts rows for a user,
// optionally filtered by type.
func countNotifications(t *testing.T, env *testEnv, userID any, notifType models.NotificationType) int64 {
	t.Helper()

	env.notifier.Flush()
	query := env.db.Model(&models.Notification{}).Where("user_id = ?", userID)
	if notifType != "" {
		query = query.Where("type = ?", notifType)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		t.Fatalf("failed counting notifications: %v", err)
	}
	return count
}
