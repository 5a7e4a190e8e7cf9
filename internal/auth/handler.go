package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

type challengeRequest struct {
	Address string `json:"address" binding:"required"`
}

type sessionRequest struct {
	Address   string `json:"address" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// Ping endpoint
func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "auth service alive!"})
}

// Challenge returns the message the wallet has to sign
func (h *Handler) Challenge(c *gin.Context) {
	var req challengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	challenge, err := h.Service.IssueChallenge(req.Address)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, challenge)
}

// Session exchanges a signed challenge for a bearer token
func (h *Handler) Session(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.Service.CreateSession(c.Request.Context(), req.Address, req.Signature)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, session)
	case errors.Is(err, ErrMissingAddress), errors.Is(err, ErrNoChallenge):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	}
}

// Me returns the wallet of the current session
func (h *Handler) Me(c *gin.Context) {
	address, _ := WalletFromContext(c)
	c.JSON(http.StatusOK, gin.H{"address": address})
}
