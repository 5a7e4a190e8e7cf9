package profile

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"capital-creator/marketplace-backend/internal/auth"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the routes of the authenticated wallet
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/profile", h.GetProfile)
	r.PUT("/profile", h.UpdateProfile)
	r.GET("/profile/sales", h.ListSales)
}

// RegisterPublicRoutes registers the routes anyone may read
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.GET("/profiles/:address", h.GetPublicProfile)
}

func (h *Handler) GetProfile(c *gin.Context) {
	address, ok := auth.WalletFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wallet session required"})
		return
	}
	h.respondProfile(c, address, false)
}

func (h *Handler) GetPublicProfile(c *gin.Context) {
	h.respondProfile(c, c.Param("address"), true)
}

func (h *Handler) respondProfile(c *gin.Context, address string, public bool) {
	p, err := h.service.GetProfile(c.Request.Context(), address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if public {
		p.Email = ""
		p.Phone = ""
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	address, ok := auth.WalletFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wallet session required"})
		return
	}

	var payload UpdateRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.service.UpdateProfile(c.Request.Context(), address, payload)
	if errors.Is(err, ErrInvalidProfile) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) ListSales(c *gin.Context) {
	address, ok := auth.WalletFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wallet session required"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	sales, err := h.service.ListSales(c.Request.Context(), address, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sales)
}
