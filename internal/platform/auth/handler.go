package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// Recorder is the slice of the audit trail the gate needs. Login attempts
// and logouts are recorded like any other operation; a recording failure
// never blocks the response.
type Recorder interface {
	Success(ctx context.Context, action, entityType string, entityID *uuid.UUID, description string)
	Failure(ctx context.Context, action, entityType string, entityID *uuid.UUID, description, errorCode string)
}

type Handler struct {
	staff  StaffRepository
	store  SessionStore
	secret []byte
	ttl    time.Duration
	audit  Recorder
}

func NewHandler(staff StaffRepository, store SessionStore, secret []byte, ttl time.Duration, audit Recorder) *Handler {
	return &Handler{staff: staff, store: store, secret: secret, ttl: ttl, audit: audit}
}

// RegisterRoutes mounts login on the public group and logout on the
// authenticated group.
func (h *Handler) RegisterRoutes(public, authed *echo.Group) {
	public.POST("/auth/login", h.Login)
	authed.POST("/auth/logout", h.Logout)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string   `json:"token"`
	CSRFToken string   `json:"csrf_token"`
	ExpiresIn int      `json:"expires_in"`
	Roles     []string `json:"roles"`
}

// dummyHash keeps password verification on the same code path when the
// username is unknown, so response timing does not reveal which accounts
// exist.
var dummyHash = func() string {
	h, _ := HashPassword("not-a-real-password")
	return h
}()

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	origin := c.RealIP()

	account, err := h.staff.GetByUsername(ctx, req.Username)
	if err != nil || !account.Active {
		VerifyPassword(req.Password, dummyHash)
		failCtx := ContextWithActor(ctx, uuid.Nil, nil, "", origin)
		h.audit.Failure(failCtx, "login", "staff_account", nil, "login attempt for "+req.Username, "unauthorized")
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	if !VerifyPassword(req.Password, account.PasswordHash) {
		failCtx := ContextWithActor(ctx, uuid.Nil, nil, "", origin)
		h.audit.Failure(failCtx, "login", "staff_account", &account.ID, "login attempt for "+req.Username, "unauthorized")
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	sid, err := NewSessionID()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	csrf, err := NewCSRFToken()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	sess := &Session{
		ID:        sid,
		ActorID:   account.ID,
		Username:  account.Username,
		Roles:     account.Roles,
		CSRFToken: csrf,
	}
	if err := h.store.Create(ctx, sess); err != nil {
		log.Error().Err(err).Msg("session create failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	token, err := IssueSessionToken(h.secret, sess.ID, account.ID, account.Roles, h.ttl)
	if err != nil {
		log.Error().Err(err).Msg("token issue failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	okCtx := ContextWithActor(ctx, account.ID, account.Roles, sess.ID, origin)
	h.audit.Success(okCtx, "login", "staff_account", &account.ID, account.Username+" logged in")

	return c.JSON(http.StatusOK, loginResponse{
		Token:     token,
		CSRFToken: sess.CSRFToken,
		ExpiresIn: int(h.ttl.Seconds()),
		Roles:     account.Roles,
	})
}

func (h *Handler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	sid := SessionIDFromContext(ctx)
	if sid == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := h.store.Delete(ctx, sid); err != nil {
		log.Error().Err(err).Msg("session delete failed")
	}

	actorID := ActorFromContext(ctx)
	h.audit.Success(ctx, "logout", "staff_account", &actorID, "logged out")

	return c.NoContent(http.StatusNoContent)
}
