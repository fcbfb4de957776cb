package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"study_space/internal/config"
	"study_space/internal/gateway"
	"study_space/internal/repository"
	"study_space/internal/service"
	"study_space/pkg/logger"
)

type WebSocketHandler struct {
	authService service.AuthService
	chatService service.ChatService
	hub         *gateway.Hub
	calls       *gateway.CallCoordinator
	groupRepo   repository.GroupRepository
	cfg         config.WebSocketConfig
	upgrader    websocket.Upgrader
	log         logger.Logger
}

func NewWebSocketHandler(
	authService service.AuthService,
	chatService service.ChatService,
	hub *gateway.Hub,
	calls *gateway.CallCoordinator,
	groupRepo repository.GroupRepository,
	cfg config.WebSocketConfig,
	log logger.Logger,
) *WebSocketHandler {
	return &WebSocketHandler{
		authService: authService,
		chatService: chatService,
		hub:         hub,
		calls:       calls,
		groupRepo:   groupRepo,
		cfg:         cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true // В продакшене нужно проверять origin
			},
		},
		log: log,
	}
}

// Handle аутентифицирует соединение и поднимает его до WebSocket.
// Токен приходит в query, потому что браузерный WebSocket API
// не позволяет выставить Authorization header
func (h *WebSocketHandler) Handle(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	// Аутентификация ограничена окном: не прошёл — соединение не поднимается
	authCtx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.AuthTimeout)
	defer cancel()

	user, err := h.authService.VerifyToken(authCtx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := gateway.NewClient(h.hub, conn, user, h.chatService, h.calls, h.groupRepo, h.cfg, h.log)
	h.log.Info("Connection established", "user_id", user.ID, "connection_id", client.ID)

	// Блокируется до отключения; очистка комнат и звонков — внутри
	client.Run()
}
