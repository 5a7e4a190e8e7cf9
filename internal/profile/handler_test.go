package profile

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"capital-creator/marketplace-backend/internal/auth"
)

func newTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	api := router.Group("/api/v1")
	h := NewHandler(svc)
	h.RegisterPublicRoutes(api)

	protected := api.Group("", func(c *gin.Context) {
		if wallet := c.GetHeader("X-Test-Wallet"); wallet != "" {
			auth.SetWallet(c, wallet)
		}
		c.Next()
	})
	h.RegisterRoutes(protected)
	return router
}

func TestUpdateAndReadProfile(t *testing.T) {
	svc := NewService(NewMemoryRepository(), zap.NewNop())
	router := newTestRouter(svc)

	body := `{"name":"Ada","role":"CREATOR","email":"ada@example.com","phone":"+15550100"}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/profile", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Wallet", "wallet-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"email":"ada@example.com"`)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/profiles/wallet-1", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Ada"`)
	assert.NotContains(t, w.Body.String(), "ada@example.com")
	assert.NotContains(t, w.Body.String(), "+15550100")
}

func TestProfileRoutesRequireWallet(t *testing.T) {
	router := newTestRouter(NewService(NewMemoryRepository(), zap.NewNop()))

	for _, path := range []string{"/api/v1/profile", "/api/v1/profile/sales"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestUpdateProfileRejectsInvalid(t *testing.T) {
	router := newTestRouter(NewService(NewMemoryRepository(), zap.NewNop()))

	req := httptest.NewRequest(http.MethodPut, "/api/v1/profile", strings.NewReader(`{"role":"ADMIN"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Wallet", "wallet-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListSalesEndpoint(t *testing.T) {
	svc := NewService(NewMemoryRepository(), zap.NewNop())
	require.NoError(t, svc.OnSettled(context.Background(), saleEvent("tx-1")))
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/profile/sales?limit=10", nil)
	req.Header.Set("X-Test-Wallet", "creator")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tx_reference":"tx-1"`)
}
