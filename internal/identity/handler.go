package identity

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"capital-creator/marketplace-backend/internal/auth"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	id := rg.Group("/identity")
	{
		id.POST("/challenges", h.StartChallenge)
		id.DELETE("/challenges", h.Cancel)
		id.POST("/proofs", h.SubmitProof)
		id.GET("/status", h.Status)
	}
}

type startChallengeRequest struct {
	Medium Medium `json:"medium"`
	Handle string `json:"handle"`
}

type submitProofRequest struct {
	Locator string `json:"locator" binding:"required"`
}

func profileID(c *gin.Context) (string, bool) {
	id, ok := auth.WalletFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wallet session required"})
	}
	return id, ok
}

func (h *Handler) StartChallenge(c *gin.Context) {
	id, ok := profileID(c)
	if !ok {
		return
	}

	var req startChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	challenge, err := h.service.StartChallenge(c.Request.Context(), id, req.Medium, req.Handle)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, challenge)
}

func (h *Handler) SubmitProof(c *gin.Context) {
	id, ok := profileID(c)
	if !ok {
		return
	}

	var req submitProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.service.SubmitProof(c.Request.Context(), id, req.Locator)
	if outcome != nil {
		// a rejected proof is a delivered result, not a transport failure
		resp := gin.H{"outcome": outcome}
		if err != nil {
			resp["code"] = ErrorCode(err)
		}
		c.JSON(http.StatusOK, resp)
		return
	}
	writeError(c, err)
}

func (h *Handler) Cancel(c *gin.Context) {
	id, ok := profileID(c)
	if !ok {
		return
	}
	if err := h.service.Cancel(id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.service.Status(id))
}

func (h *Handler) Status(c *gin.Context) {
	id, ok := profileID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.service.Status(id))
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrMissingHandle), errors.Is(err, ErrUnsupportedMedium), errors.Is(err, ErrInvalidLocator):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNoActiveChallenge), errors.Is(err, ErrVerificationInProgress), errors.Is(err, ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, ErrChallengeExpired):
		status = http.StatusGone
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": ErrorCode(err)})
}
