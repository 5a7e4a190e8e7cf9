package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextWalletKey is the gin context key holding the authenticated wallet
const ContextWalletKey = "wallet_address"

// TokenParser resolves a bearer token to a wallet address
type TokenParser interface {
	ParseToken(raw string) (string, error)
}

// RequireWallet rejects requests without a valid bearer session. Browsers
// cannot set headers on websocket upgrades, so access_token is accepted as a
// query parameter too.
func RequireWallet(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			raw = c.Query("access_token")
		}
		if strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		address, err := parser.ParseToken(strings.TrimSpace(raw))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		SetWallet(c, address)
		c.Next()
	}
}

// SetWallet stores the authenticated wallet on the request context
func SetWallet(c *gin.Context, address string) {
	c.Set(ContextWalletKey, address)
}

// WalletFromContext returns the wallet set by RequireWallet
func WalletFromContext(c *gin.Context) (string, bool) {
	address := c.GetString(ContextWalletKey)
	return address, address != ""
}
