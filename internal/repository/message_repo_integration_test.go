package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gunesonchain/mekandayim/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

var (
	testDBOnce sync.Once
	testDBPool *pgxpool.Pool
	testDBErr  error
)

func integrationTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	testDBOnce.Do(func() {
		_ = godotenv.Load(".env")
		_ = godotenv.Load(filepath.Join("..", "..", ".env"))

		dbURL := os.Getenv("DB_URL")
		if dbURL == "" {
			testDBErr = fmt.Errorf("DB_URL is not set")
			return
		}

		cfg, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			testDBErr = err
			return
		}

		testDBPool, testDBErr = pgxpool.NewWithConfig(context.Background(), cfg)
		if testDBErr != nil {
			return
		}
		testDBErr = testDBPool.Ping(context.Background())
	})

	if testDBErr != nil {
		t.Skipf("skipping integration test: %v", testDBErr)
	}
	return testDBPool
}

func createTestUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool) int64 {
	t.Helper()

	userRepo := NewUserRepository(pool)
	user := &models.User{
		Username: fmt.Sprintf("dm-test-%d", time.Now().UnixNano()),
	}
	if err := userRepo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return user.ID
}

func cleanupTestUsers(t *testing.T, ctx context.Context, pool *pgxpool.Pool, userIDs ...int64) {
	t.Helper()

	if len(userIDs) == 0 {
		return
	}

	if _, err := pool.Exec(ctx, "DELETE FROM messages WHERE sender_id = ANY($1) OR receiver_id = ANY($1)", userIDs); err != nil {
		t.Fatalf("cleanup messages: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM users WHERE id = ANY($1)", userIDs); err != nil {
		t.Fatalf("cleanup users: %v", err)
	}
}

func TestMessageRepositoryVisibilityFlags(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	repo := NewMessageRepository(pool)

	alice := createTestUser(t, ctx, pool)
	bora := createTestUser(t, ctx, pool)
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, alice, bora) })

	if _, err := repo.Create(ctx, alice, bora, "merhaba", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.DeleteConversation(ctx, alice, bora); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}

	mine, err := repo.ListVisibleForViewer(ctx, alice)
	if err != nil {
		t.Fatalf("ListVisibleForViewer: %v", err)
	}
	if len(mine) != 0 {
		t.Fatalf("expected no visible messages for deleting side, got %d", len(mine))
	}

	theirs, err := repo.ListVisibleForViewer(ctx, bora)
	if err != nil {
		t.Fatalf("ListVisibleForViewer: %v", err)
	}
	if len(theirs) != 1 {
		t.Fatalf("expected counterpart to still see the message, got %d", len(theirs))
	}
}

func TestMessageRepositoryCursorPagination(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	repo := NewMessageRepository(pool)

	alice := createTestUser(t, ctx, pool)
	bora := createTestUser(t, ctx, pool)
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, alice, bora) })

	ids := make([]int64, 0, 5)
	for i := 0; i < 5; i++ {
		message, err := repo.Create(ctx, alice, bora, fmt.Sprintf("mesaj %d", i), nil)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, message.ID)
	}

	newest, err := repo.ListPairBefore(ctx, bora, alice, 0, 3)
	if err != nil {
		t.Fatalf("ListPairBefore: %v", err)
	}
	if len(newest) != 3 || newest[0].ID != ids[4] {
		t.Fatalf("expected newest 3 first, got %+v", newest)
	}

	older, err := repo.ListPairBefore(ctx, bora, alice, newest[2].ID, 3)
	if err != nil {
		t.Fatalf("ListPairBefore with cursor: %v", err)
	}
	if len(older) != 2 || older[0].ID != ids[1] {
		t.Fatalf("expected remaining 2 older messages, got %+v", older)
	}
}

func TestMessageRepositoryMarkReadAndRateCount(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	repo := NewMessageRepository(pool)

	alice := createTestUser(t, ctx, pool)
	bora := createTestUser(t, ctx, pool)
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, alice, bora) })

	for i := 0; i < 3; i++ {
		if _, err := repo.Create(ctx, alice, bora, "okunmadı", nil); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	count, err := repo.CountSentSince(ctx, alice, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountSentSince: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 recent sends, got %d", count)
	}

	if err := repo.MarkConversationRead(ctx, bora, alice); err != nil {
		t.Fatalf("MarkConversationRead: %v", err)
	}
	// Second call is a no-op on already-read rows.
	if err := repo.MarkConversationRead(ctx, bora, alice); err != nil {
		t.Fatalf("MarkConversationRead repeat: %v", err)
	}

	messages, err := repo.ListPairBefore(ctx, bora, alice, 0, 10)
	if err != nil {
		t.Fatalf("ListPairBefore: %v", err)
	}
	for _, message := range messages {
		if !message.IsRead {
			t.Fatalf("expected all messages read, got %+v", message)
		}
	}
}
