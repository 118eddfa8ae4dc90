package main

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gunesonchain/mekandayim/internal/config"
	"github.com/gunesonchain/mekandayim/internal/database"
	"github.com/gunesonchain/mekandayim/internal/realtime"
	"github.com/gunesonchain/mekandayim/internal/routes"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.DBUrl == "" {
		log.Fatal("DB_URL is required")
	}
	db, err := database.ConnectDB(context.Background(), cfg.DBUrl)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	hub := realtime.NewHub()
	go hub.Run()

	// With redis the fan-out reaches every instance; without it events stay
	// on this instance's hub. Either way clients reconcile from the store on
	// their next fetch.
	var publisher realtime.Publisher = hub
	if cfg.RedisURL != "" {
		rdb, err := database.ConnectRedis(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()

		publisher = realtime.NewRedisPublisher(rdb)
		go hub.RunBridge(context.Background(), rdb)
	}

	app := fiber.New()

	app.Use(cors.New())
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	routes.RegisterRoutes(app, cfg, db, hub, publisher)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
