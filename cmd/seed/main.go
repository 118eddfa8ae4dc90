package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gunesonchain/mekandayim/internal/config"
	"github.com/gunesonchain/mekandayim/internal/database"
	"github.com/gunesonchain/mekandayim/internal/models"
	"github.com/gunesonchain/mekandayim/internal/repository"
)

const (
	seedUsers            = 12
	seedMessagesPerPair  = 8
	seedConversationFrac = 3 // roughly every third pair talks
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.DBUrl == "" {
		log.Fatal("DB_URL is required")
	}

	gofakeit.Seed(time.Now().UnixNano())

	ctx := context.Background()
	db, err := database.ConnectDB(ctx, cfg.DBUrl)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	userRepo := repository.NewUserRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	users := make([]*models.User, 0, seedUsers)
	for i := 0; i < seedUsers; i++ {
		user := &models.User{
			Username: fmt.Sprintf("%s%d", gofakeit.Username(), i),
		}
		if err := userRepo.CreateUser(ctx, user); err != nil {
			log.Fatalf("Failed to create user: %v", err)
		}
		users = append(users, user)
	}
	log.Printf("Seeded %d users", len(users))

	messageCount := 0
	for i := range users {
		for j := i + 1; j < len(users); j++ {
			if rand.Intn(seedConversationFrac) != 0 {
				continue
			}
			for k := 0; k < rand.Intn(seedMessagesPerPair)+1; k++ {
				sender, receiver := users[i], users[j]
				if rand.Intn(2) == 0 {
					sender, receiver = receiver, sender
				}
				if _, err := messageRepo.Create(ctx, sender.ID, receiver.ID, gofakeit.Sentence(rand.Intn(10)+2), nil); err != nil {
					log.Fatalf("Failed to create message: %v", err)
				}
				messageCount++
			}
		}
	}
	log.Printf("Seeded %d messages", messageCount)

	// A few conversations read, so the unread badges vary.
	for i := 0; i < len(users)-1; i += 2 {
		if err := messageRepo.MarkConversationRead(ctx, users[i].ID, users[i+1].ID); err != nil {
			log.Fatalf("Failed to mark read: %v", err)
		}
	}

	log.Println("Seeding complete")
}
