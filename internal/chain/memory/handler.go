package memory

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"capital-creator/marketplace-backend/internal/auth"
	"capital-creator/marketplace-backend/internal/settlement"
)

// Handler exposes a development faucet and balance lookup for the ledger
type Handler struct {
	ledger   *Ledger
	token    settlement.TokenID
	decimals int32
}

func NewHandler(ledger *Ledger, token settlement.TokenID, decimals int32) *Handler {
	return &Handler{ledger: ledger, token: token, decimals: decimals}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	dev := rg.Group("/dev")
	{
		dev.POST("/fund", h.Fund)
		dev.GET("/balance", h.Balance)
	}
}

type fundRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// Fund credits the authenticated wallet with a decimal amount of the token
func (h *Handler) Fund(c *gin.Context) {
	wallet, ok := auth.WalletFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wallet session required"})
		return
	}

	var req fundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	amount, err := settlement.ParsePrice(req.Amount, h.decimals)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": settlement.ErrorCode(err)})
		return
	}

	if err := h.ledger.Fund(settlement.Party(wallet), h.token, amount); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.Balance(c)
}

// Balance reports the authenticated wallet's balance
func (h *Handler) Balance(c *gin.Context) {
	wallet, ok := auth.WalletFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wallet session required"})
		return
	}

	balance := h.ledger.Balance(settlement.Party(wallet), h.token)
	c.JSON(http.StatusOK, gin.H{
		"wallet":  wallet,
		"token":   h.token,
		"balance": settlement.FormatMinorUnits(balance, h.decimals),
	})
}
