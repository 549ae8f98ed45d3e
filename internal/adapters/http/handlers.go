package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dkeye/Parley/internal/auth"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// GroupDirectory is the group storage the REST surface manages.
type GroupDirectory interface {
	CreateGroup(ctx context.Context, name string, createdBy domain.UserID, members []domain.UserID) (*domain.Group, error)
	GroupsOf(ctx context.Context, user domain.UserID) ([]domain.Group, error)
}

type handlers struct {
	Deps
}

type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SigninRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type CreateGroupRequest struct {
	Name    string          `json:"name"`
	Members []domain.UserID `json:"members"`
}

func statusOf(err error) int {
	switch domain.ErrorCode(err) {
	case "unauthenticated":
		return http.StatusUnauthorized
	case "forbidden":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	case "bad_request":
		return http.StatusBadRequest
	case "conflict":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"code": domain.ErrorCode(err), "error": msg})
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": len(h.Orch.Registry.All()),
		"calls":       h.Orch.Calls.ActiveCalls(),
	})
}

func (h *handlers) startSession(c *gin.Context, s *auth.Session) {
	sess := sessions.Default(c)
	sess.Set(sessionToken, s.Token)
	if err := sess.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
	}
}

func (h *handlers) signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}
	s, err := h.Accounts.Signup(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}
	h.startSession(c, s)
	c.JSON(http.StatusCreated, s)
}

func (h *handlers) signin(c *gin.Context) {
	var req SigninRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}
	s, err := h.Accounts.Signin(c.Request.Context(), req.Name, req.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}
	h.startSession(c, s)
	c.JSON(http.StatusOK, s)
}

func (h *handlers) signout(c *gin.Context) {
	sess := sessions.Default(c)
	sess.Clear()
	sess.Options(sessions.Options{Path: "/", MaxAge: -1})
	_ = sess.Save()
	c.Status(http.StatusNoContent)
}

func (h *handlers) me(c *gin.Context) {
	user, err := h.Orch.Users.GetUserByID(c.Request.Context(), currentUser(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	user.Status = h.Orch.Presence.Status(user.ID)
	c.JSON(http.StatusOK, user)
}

// token hands the session's bearer token to the page script so it can
// authenticate its websocket.
func (h *handlers) token(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"token": bearerToken(c)})
}

func (h *handlers) online(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"online": h.Orch.Registry.OnlineUsers()})
}

func (h *handlers) listGroups(c *gin.Context) {
	groups, err := h.Groups.GroupsOf(c.Request.Context(), currentUser(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if groups == nil {
		groups = []domain.Group{}
	}
	c.JSON(http.StatusOK, groups)
}

func (h *handlers) createGroup(c *gin.Context) {
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		abortWithError(c, fmt.Errorf("missing or invalid name: %w", domain.ErrValidation))
		return
	}
	ctx := c.Request.Context()
	for _, m := range req.Members {
		if _, err := h.Orch.Users.GetUserByID(ctx, m); err != nil {
			abortWithError(c, err)
			return
		}
	}
	g, err := h.Groups.CreateGroup(ctx, req.Name, currentUser(c), req.Members)
	if err != nil {
		abortWithError(c, err)
		return
	}
	log.Info().Str("module", "adapters.http").Str("group", g.ID.String()).Str("by", g.CreatedBy.String()).Int("members", len(g.Members)).Msg("group created")
	c.JSON(http.StatusCreated, g)
}

func limitParam(c *gin.Context) int {
	n, _ := strconv.Atoi(c.Query("limit"))
	return n
}

func (h *handlers) directHistory(c *gin.Context) {
	peer, err := strconv.ParseInt(c.Param("peer"), 10, 64)
	if err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}
	msgs, err := h.Orch.Router.History(c.Request.Context(), currentUser(c), domain.UserID(peer), limitParam(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	writeMessages(c, msgs)
}

func (h *handlers) groupHistory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}
	msgs, err := h.Orch.Router.GroupHistory(c.Request.Context(), currentUser(c), domain.GroupID(id), limitParam(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	writeMessages(c, msgs)
}

func writeMessages(c *gin.Context, msgs []domain.Message) {
	if msgs == nil {
		msgs = []domain.Message{}
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, msgs)
}
