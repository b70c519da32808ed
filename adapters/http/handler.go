package http

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"parlor/domain"
	"parlor/usecase"
	"parlor/utils/log"
)

const (
	defaultSessionLimit = 20
	maxSessionLimit     = 100
)

// Config carries the handler's auth and throttling settings.
type Config struct {
	APIKey        string
	APISecret     string
	JWTSecret     string
	TokenTTL      time.Duration
	MaxConcurrent int
	Provider      string
}

// Handler serves the REST chat API. Session identity rides inside the JWT:
// every issued token names a fresh session, so one token is one
// conversation.
type Handler struct {
	svc   *usecase.ChatService
	store domain.TranscriptStore
	cfg   Config

	jwtSecret []byte
	semaphore chan struct{}
}

// NewHandler wires the handler. store may be nil when archiving is
// disabled; the session listing endpoints then answer 503.
func NewHandler(svc *usecase.ChatService, store domain.TranscriptStore, cfg Config) *Handler {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	return &Handler{
		svc:       svc,
		store:     store,
		cfg:       cfg,
		jwtSecret: []byte(cfg.JWTSecret),
		semaphore: make(chan struct{}, cfg.MaxConcurrent),
	}
}

type JWTClaims struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

type ChatRequest struct {
	Text  string `json:"text"`
	Mode  string `json:"mode"`
	Speak bool   `json:"speak"`
}

type ChatResponse struct {
	Reply     string `json:"reply"`
	Mode      string `json:"mode"`
	Enriched  bool   `json:"enriched"`
	Fallback  bool   `json:"fallback"`
	SessionID string `json:"session_id"`
	Audio     string `json:"audio,omitempty"` // base64-encoded MP3
}

type PromptRequest struct {
	Prompt string `json:"prompt"`
}

// GenerateJWT creates a JWT token for authenticated clients. Each token
// carries a fresh session ID.
func (h *Handler) GenerateJWT(c echo.Context) error {
	key := c.Request().Header.Get("X-API-Key")
	secret := c.Request().Header.Get("X-API-Secret")

	if subtle.ConstantTimeCompare([]byte(key), []byte(h.cfg.APIKey)) != 1 ||
		subtle.ConstantTimeCompare([]byte(secret), []byte(h.cfg.APISecret)) != 1 {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	}

	sessionID := uuid.NewString()
	now := time.Now()
	claims := &JWTClaims{
		UserID:    key,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(h.cfg.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "parlor",
			Subject:   "chat",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(h.jwtSecret)
	if err != nil {
		log.WithCtx(c.Request().Context()).Error("signing jwt failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"token":      tokenString,
		"type":       "Bearer",
		"session_id": sessionID,
		"expires_at": now.Add(h.cfg.TokenTTL).UTC().Format(time.RFC3339),
	})
}

// JWTMiddleware authenticates requests. The token comes from the
// Authorization header, or from the token query parameter for WebSocket
// handshakes where browsers cannot set headers.
func (h *Handler) JWTMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tokenString := ""
		if authHeader := c.Request().Header.Get("Authorization"); authHeader != "" {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization format")
			}
		} else if queryToken := c.QueryParam("token"); queryToken != "" {
			tokenString = queryToken
		} else {
			return echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization header")
		}

		token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return h.jwtSecret, nil
		})
		if err != nil {
			log.WithCtx(c.Request().Context()).Debug("jwt validation failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
		}

		if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
			c.Set("user_id", claims.UserID)
			c.Set("session_id", claims.SessionID)
			return next(c)
		}

		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token claims")
	}
}

// RateLimitMiddleware bounds concurrent chat requests with the handler's
// semaphore. The channel lives on the Handler because echo composes route
// middleware per request; state created inside the closure would reset on
// every call.
func (h *Handler) RateLimitMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		select {
		case h.semaphore <- struct{}{}:
			defer func() { <-h.semaphore }()
			return next(c)
		default:
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many concurrent requests")
		}
	}
}

// Chat runs one conversation turn for the token's session.
func (h *Handler) Chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}

	sessionID := c.Get("session_id").(string)
	ctx := h.requestContext(c)

	reply, audio := h.svc.HandleTurn(ctx, sessionID, req.Text, req.Mode, req.Speak)

	resp := ChatResponse{
		Reply:     reply.Text,
		Mode:      string(reply.Mode),
		Enriched:  reply.Enriched,
		Fallback:  reply.Fallback,
		SessionID: sessionID,
	}
	if len(audio) > 0 {
		resp.Audio = base64.StdEncoding.EncodeToString(audio)
	}
	return c.JSON(http.StatusOK, resp)
}

// ResetChat clears the token's conversation history.
func (h *Handler) ResetChat(c echo.Context) error {
	sessionID := c.Get("session_id").(string)
	h.svc.ResetSession(h.requestContext(c), sessionID)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"session_id": sessionID,
	})
}

// ChatHistory returns the retained in-memory conversation window.
func (h *Handler) ChatHistory(c echo.Context) error {
	sessionID := c.Get("session_id").(string)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"messages":   h.svc.SessionHistory(sessionID),
	})
}

// SetPrompt replaces the system prompt for one mode of the token's session.
func (h *Handler) SetPrompt(c echo.Context) error {
	var req PromptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt is required")
	}

	sessionID := c.Get("session_id").(string)
	mode := h.svc.SetSessionPrompt(h.requestContext(c), sessionID, c.Param("mode"), req.Prompt)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"mode":       mode,
		"prompt":     req.Prompt,
	})
}

// ListSessions lists recently active sessions from the transcript archive.
func (h *Handler) ListSessions(c echo.Context) error {
	if h.store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Transcript archive is disabled")
	}

	limit := defaultSessionLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		if n > maxSessionLimit {
			n = maxSessionLimit
		}
		limit = n
	}

	sessions, err := h.store.RecentSessions(h.requestContext(c), limit)
	if err != nil {
		log.WithCtx(c.Request().Context()).Error("listing sessions failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list sessions")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// GetSession returns one session's archived transcript.
func (h *Handler) GetSession(c echo.Context) error {
	if h.store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Transcript archive is disabled")
	}

	sessionID := c.Param("id")
	records, err := h.store.SessionMessages(h.requestContext(c), sessionID)
	if err != nil {
		log.WithCtx(c.Request().Context()).Error("loading session transcript failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load session")
	}
	if len(records) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "Session not found")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"messages":   records,
	})
}

// HealthCheck reports liveness along with the active provider and how many
// sessions are live.
func (h *Handler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "parlor",
		"provider":  h.cfg.Provider,
		"sessions":  h.svc.SessionCount(),
	})
}

// requestContext copies the authenticated identity onto the request context
// so downstream logging picks it up.
func (h *Handler) requestContext(c echo.Context) context.Context {
	ctx := c.Request().Context()
	if v := c.Get("session_id"); v != nil {
		ctx = context.WithValue(ctx, "session_id", v)
	}
	if v := c.Get("user_id"); v != nil {
		ctx = context.WithValue(ctx, "user_id", v)
	}
	return ctx
}
