package handlers

import (
	"context"
	"errors"
	"log"
	"path/filepath"
	"strconv"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gunesonchain/mekandayim/internal/models"
	"github.com/gunesonchain/mekandayim/internal/realtime"
	"github.com/gunesonchain/mekandayim/internal/services"
	"github.com/gunesonchain/mekandayim/pkg/apperr"
	"github.com/gunesonchain/mekandayim/pkg/utils"
)

type dmApplicationService interface {
	GetConversations(ctx context.Context, viewerID int64) ([]models.ConversationSummary, error)
	GetMessages(ctx context.Context, viewerID, otherUserID, cursor int64, pageSize int) (*models.MessagePage, error)
	GetMessage(ctx context.Context, viewerID, messageID int64) (*models.Message, error)
	SendMessage(ctx context.Context, senderID, receiverID int64, content string, image *string) (*models.Message, error)
	ClearConversation(ctx context.Context, actorID, otherUserID int64) error
	DeleteConversation(ctx context.Context, actorID, otherUserID int64) error
}

type DMHandler struct {
	service   dmApplicationService
	hub       *realtime.Hub
	storage   services.StorageService
	jwtSecret string
}

type sendMessageRequest struct {
	ReceiverID int64   `json:"receiver_id"`
	Content    string  `json:"content"`
	Image      *string `json:"image,omitempty"`
}

func NewDMHandler(
	service dmApplicationService,
	hub *realtime.Hub,
	storage services.StorageService,
	jwtSecret string,
) *DMHandler {
	return &DMHandler{
		service:   service,
		hub:       hub,
		storage:   storage,
		jwtSecret: jwtSecret,
	}
}

// currentUserID returns zero when the request carries no valid identity.
// Read endpoints pass the zero through; the service answers them with empty
// results instead of an error.
func currentUserID(c *fiber.Ctx) int64 {
	raw, ok := c.Locals("user_id").(string)
	if !ok {
		return 0
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return 0
	}
	return userID
}

func (h *DMHandler) ListConversations(c *fiber.Ctx) error {
	conversations, err := h.service.GetConversations(c.Context(), currentUserID(c))
	if err != nil {
		return mapDMError(c, err)
	}

	return c.JSON(fiber.Map{"conversations": conversations})
}

func (h *DMHandler) GetMessages(c *fiber.Ctx) error {
	otherUserID, err := strconv.ParseInt(c.Params("userId"), 10, 64)
	if err != nil || otherUserID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	cursor, err := parseCursor(c.Query("cursor"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid cursor"})
	}
	limit := parsePositiveInt(c.Query("limit"), services.DefaultPageSize)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	page, err := h.service.GetMessages(c.Context(), currentUserID(c), otherUserID, cursor, limit)
	if err != nil {
		return mapDMError(c, err)
	}

	return c.JSON(page)
}

func (h *DMHandler) GetMessage(c *fiber.Ctx) error {
	messageID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || messageID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	message, err := h.service.GetMessage(c.Context(), currentUserID(c), messageID)
	if err != nil {
		return mapDMError(c, err)
	}

	return c.JSON(fiber.Map{"message": message})
}

func (h *DMHandler) SendMessage(c *fiber.Ctx) error {
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	message, err := h.service.SendMessage(c.Context(), currentUserID(c), req.ReceiverID, req.Content, req.Image)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeInvalidArgument) {
			h.discardOrphanUpload(c.Context(), req.Image)
		}
		return mapDMError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": message})
}

// discardOrphanUpload removes an attachment whose send was rejected, so
// invalid sends do not leak objects into the bucket. Best effort; a retryable
// rejection keeps the upload.
func (h *DMHandler) discardOrphanUpload(ctx context.Context, fileURL *string) {
	if h.storage == nil || fileURL == nil || *fileURL == "" {
		return
	}
	if err := h.storage.DeleteFile(ctx, *fileURL); err != nil {
		log.Printf("discard orphan upload %s: %v", *fileURL, err)
	}
}

func (h *DMHandler) UploadImage(c *fiber.Ctx) error {
	if h.storage == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Image uploads are not configured"})
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Image file is required"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Could not read image"})
	}
	defer file.Close()

	filename := uuid.NewString() + strings.ToLower(filepath.Ext(fileHeader.Filename))
	fileURL, err := h.storage.UploadFile(c.Context(), file, filename, "dm")
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to upload image"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"url": fileURL})
}

func (h *DMHandler) ClearConversation(c *fiber.Ctx) error {
	otherUserID, err := strconv.ParseInt(c.Params("userId"), 10, 64)
	if err != nil || otherUserID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	if err := h.service.ClearConversation(c.Context(), currentUserID(c), otherUserID); err != nil {
		return mapDMError(c, err)
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *DMHandler) DeleteConversation(c *fiber.Ctx) error {
	otherUserID, err := strconv.ParseInt(c.Params("userId"), 10, 64)
	if err != nil || otherUserID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	if err := h.service.DeleteConversation(c.Context(), currentUserID(c), otherUserID); err != nil {
		return mapDMError(c, err)
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *DMHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	claims, err := h.parseWSClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	c.Locals("user_id", claims.UserID)
	return c.Next()
}

func (h *DMHandler) HandleWebSocket(conn *websocket.Conn) {
	raw, _ := conn.Locals("user_id").(string)
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		_ = conn.Close()
		return
	}

	client := realtime.NewClient(h.hub, conn, userID)
	h.hub.Register(client)
	go client.WritePump()
	client.ReadPump()
}

func (h *DMHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		authHeader := strings.TrimSpace(c.Get("Authorization"))
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
	}

	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	return utils.ValidateToken(tokenString, h.jwtSecret)
}

func mapDMError(c *fiber.Ctx, err error) error {
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		status := fiber.StatusInternalServerError
		switch appErr.Code {
		case apperr.CodeUnauthenticated:
			status = fiber.StatusUnauthorized
		case apperr.CodeBanned:
			status = fiber.StatusForbidden
		case apperr.CodeNotFound:
			status = fiber.StatusNotFound
		case apperr.CodeRateLimited:
			status = fiber.StatusTooManyRequests
		case apperr.CodeInvalidArgument:
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{"error": appErr.Message, "code": appErr.Code})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process request"})
}
