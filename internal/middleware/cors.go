package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// OriginPolicy decides which browser origins may talk to the server.
// It is shared by the CORS middleware and the WebSocket upgrade check.
type OriginPolicy struct {
	any     bool
	allowed map[string]bool
}

// NewOriginPolicy parses "*" or a comma-separated origin list
// (e.g. "http://localhost:5173,http://localhost:8080"). An empty list allows any origin.
func NewOriginPolicy(allowedOrigins string) OriginPolicy {
	allowed := make(map[string]bool)
	for _, o := range strings.Split(strings.TrimSpace(allowedOrigins), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			allowed[o] = true
		}
	}
	return OriginPolicy{any: len(allowed) == 0 || allowed["*"], allowed: allowed}
}

// Allow reports whether origin may connect. Requests without an Origin header
// (non-browser clients) are allowed.
func (p OriginPolicy) Allow(origin string) bool {
	return p.any || origin == "" || p.allowed[origin]
}

// CheckOrigin adapts the policy to websocket.Upgrader.CheckOrigin.
func (p OriginPolicy) CheckOrigin(r *http.Request) bool {
	return p.Allow(r.Header.Get("Origin"))
}

// CORS returns a middleware that sets CORS headers for cross-origin requests.
func CORS(policy OriginPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowOrigin := ""
		if policy.any {
			allowOrigin = "*"
		} else if origin != "" && policy.allowed[origin] {
			allowOrigin = origin
		}
		if allowOrigin != "" {
			c.Header("Access-Control-Allow-Origin", allowOrigin)
			c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type")
			c.Header("Access-Control-Max-Age", "86400")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
