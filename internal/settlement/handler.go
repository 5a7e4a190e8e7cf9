package settlement

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"capital-creator/marketplace-backend/internal/auth"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/settlements", h.Settle)
}

// SettleRequestBody is the JSON body of a purchase
type SettleRequestBody struct {
	Payee  string `json:"payee" binding:"required"`
	Price  string `json:"price" binding:"required"`
	Token  string `json:"token"`
	ItemID string `json:"item_id"`
}

// Settle pays the payee on behalf of the authenticated wallet
func (h *Handler) Settle(c *gin.Context) {
	buyer, ok := auth.WalletFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wallet session required"})
		return
	}

	var body SettleRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	price, err := decimal.NewFromString(body.Price)
	if err != nil {
		c.JSON(http.StatusBadRequest, Result{
			Reference: "price must be a decimal number",
			Code:      CodeInvalidAmount,
		})
		return
	}

	result := h.service.Settle(c.Request.Context(), SettleRequest{
		Buyer:  Party(buyer),
		Payee:  Party(body.Payee),
		Price:  price,
		Token:  TokenID(body.Token),
		ItemID: body.ItemID,
	})

	c.JSON(statusFor(result), result)
}

func statusFor(result Result) int {
	if result.Success {
		return http.StatusOK
	}
	switch result.Code {
	case CodeInvalidAmount, CodePrecisionOverflow, CodeInvalidPlan, CodeUnsupportedToken:
		return http.StatusBadRequest
	case CodeProvisioningUnavailable:
		return http.StatusServiceUnavailable
	case CodeSettlementFailed:
		return http.StatusBadGateway
	case CodeCancelled:
		return http.StatusRequestTimeout
	case CodeSettlementPending:
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}
