// Package gin provides Gin-compatible middleware for x402 payment gating.
// This package is a thin adapter that translates gin.Context to stdlib http
// patterns and delegates all verification policy to the http package.
package gin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	x402 "github.com/Scottcjn/openclaw-x402"
	x402http "github.com/Scottcjn/openclaw-x402/http"
)

// RedemptionContextKey is the gin context key for the granted redemption.
const RedemptionContextKey = "x402_redemption"

// Protect returns a Gin middleware gating handlers behind the paywall at the
// given price (atomic units; "0" disables gating).
//
// Example usage:
//
//	cfg := &x402.Config{Treasury: "0xYourAddress"}
//	paywall, err := x402http.NewPaywall(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	r := gin.Default()
//	r.GET("/premium", ginx402.Protect(paywall, "10000", "Premium data export"), func(c *gin.Context) {
//	    c.JSON(200, gin.H{"data": "..."})
//	})
func Protect(paywall *x402http.Paywall, price, description string) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := paywall.Decide(c.Request, price, description)

		switch decision.Kind {
		case x402.DecisionAllow:
			if decision.Event != nil {
				c.Set(RedemptionContextKey, decision.Event)

				// Also store in the stdlib context for compatibility with the
				// http package helpers.
				ctx := context.WithValue(c.Request.Context(), x402http.RedemptionContextKey, decision.Event)
				c.Request = c.Request.WithContext(ctx)
			}
			c.Next()

		case x402.DecisionChallenge:
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error": "Payment Required",
				"x402":  decision.Requirement,
			})

		case x402.DecisionMalformed:
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"x402Version": x402.X402Version,
				"error":       "Invalid payment header",
			})

		default:
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"x402Version": x402.X402Version,
				"error":       "Payment verification unavailable",
			})
		}
	}
}

// GetRedemptionFromContext extracts the granted redemption from the Gin
// context. Returns nil for free-mode requests and unprotected handlers.
func GetRedemptionFromContext(c *gin.Context) *x402.RedemptionEvent {
	value, exists := c.Get(RedemptionContextKey)
	if !exists {
		return nil
	}
	event, ok := value.(*x402.RedemptionEvent)
	if !ok {
		return nil
	}
	return event
}
