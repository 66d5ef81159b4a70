package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/wishlane/backend/internal/config"
	"github.com/wishlane/backend/internal/database"
	"github.com/wishlane/backend/internal/handlers"
	"github.com/wishlane/backend/internal/middleware"
	"github.com/wishlane/backend/internal/services"
	"github.com/wishlane/backend/internal/storage"
	"github.com/wishlane/backend/pkg/logger"
	"github.com/wishlane/backend/pkg/utils"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	storageClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	if err := storageClient.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring minio bucket: %v", err)
	}

	notifier := services.NewNotificationService(db)
	visibility := services.NewVisibilityService(db)
	claims := services.NewClaimService(db, visibility, notifier, cfg.Claims)
	cascade := services.NewCascadeService(db, notifier)
	mailer := services.NewMailer(cfg.SMTP, cfg.Server.FrontendURL)

	sweeper := services.NewClaimSweeper(db, visibility, notifier, cfg.Claims)
	sweeper.Start(cfg.Claims.SweepInterval)

	authHandler := handlers.NewAuthHandler(db)
	userHandler := handlers.NewUserHandler(db)
	groupHandler := handlers.NewGroupHandler(db, cascade, notifier)
	itemHandler := handlers.NewItemHandler(db, storageClient, cascade)
	recipientHandler := handlers.NewRecipientHandler(db, cascade, notifier)
	invitationHandler := handlers.NewInvitationHandler(db, cascade, notifier, mailer, cfg.Invite)
	claimHandler := handlers.NewClaimHandler(db, claims)
	sharedItemHandler := handlers.NewSharedItemHandler(db, visibility, claims)
	notificationHandler := handlers.NewNotificationHandler(db)

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

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
		sweeper.Stop()
		notifier.Flush()
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
