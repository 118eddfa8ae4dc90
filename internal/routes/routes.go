package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gunesonchain/mekandayim/internal/config"
	"github.com/gunesonchain/mekandayim/internal/handlers"
	"github.com/gunesonchain/mekandayim/internal/middleware"
	"github.com/gunesonchain/mekandayim/internal/realtime"
	"github.com/gunesonchain/mekandayim/internal/repository"
	"github.com/gunesonchain/mekandayim/internal/services"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(
	app *fiber.App,
	cfg *config.Config,
	db *pgxpool.Pool,
	hub *realtime.Hub,
	publisher realtime.Publisher,
) {
	userRepo := repository.NewUserRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	var storageService services.StorageService
	if cfg.SupabaseURL != "" && cfg.SupabaseBucket != "" && cfg.SupabaseServiceKey != "" {
		storageService = services.NewSupabaseStorageService(cfg.SupabaseURL, cfg.SupabaseBucket, cfg.SupabaseServiceKey)
	}

	dmService := services.NewDMService(messageRepo, userRepo, publisher, cfg.SendRatePerMinute)
	dmHandler := handlers.NewDMHandler(dmService, hub, storageService, cfg.JWTSecret)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	readable := api.Group("/v1/dm", middleware.AuthOptional(cfg.JWTSecret))
	readable.Get("/conversations", dmHandler.ListConversations)
	readable.Get("/conversations/:userId/messages", dmHandler.GetMessages)
	readable.Get("/messages/:id", dmHandler.GetMessage)

	writable := api.Group("/v1/dm", middleware.AuthRequired(cfg.JWTSecret))
	writable.Post("/messages", dmHandler.SendMessage)
	writable.Post("/messages/image", dmHandler.UploadImage)
	writable.Post("/conversations/:userId/clear", dmHandler.ClearConversation)
	writable.Post("/conversations/:userId/delete", dmHandler.DeleteConversation)

	api.Use("/v1/ws", dmHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(dmHandler.HandleWebSocket))
}
