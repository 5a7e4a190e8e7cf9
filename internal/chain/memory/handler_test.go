package memory

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"capital-creator/marketplace-backend/internal/auth"
)

func newFaucetRouter(ledger *Ledger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	group := router.Group("/api/v1", func(c *gin.Context) {
		if wallet := c.GetHeader("X-Test-Wallet"); wallet != "" {
			auth.SetWallet(c, wallet)
		}
		c.Next()
	})
	NewHandler(ledger, "usdc", 6).RegisterRoutes(group)
	return router
}

func TestFaucetFundsWallet(t *testing.T) {
	ledger := NewLedger(nil)
	router := newFaucetRouter(ledger)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/dev/fund", strings.NewReader(`{"amount":"12.5"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Wallet", "buyer")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"balance":"12.500000"`)
	assert.Equal(t, int64(12_500_000), ledger.Balance("buyer", "usdc"))
}

func TestFaucetRejects(t *testing.T) {
	router := newFaucetRouter(NewLedger(nil))

	tests := []struct {
		name   string
		wallet string
		body   string
		status int
	}{
		{"no session", "", `{"amount":"1"}`, http.StatusUnauthorized},
		{"bad amount", "buyer", `{"amount":"abc"}`, http.StatusBadRequest},
		{"too precise", "buyer", `{"amount":"0.0000001"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/dev/fund", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.wallet != "" {
				req.Header.Set("X-Test-Wallet", tt.wallet)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
