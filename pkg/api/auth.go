// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// apiKeyAuth accepts "X-API-Key: <key>", "Authorization: Bearer <key>" or,
// for browser websockets, a "key" query parameter.
func apiKeyAuth(keys []string, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if key == "" {
			key = c.Query("key")
		}

		for _, k := range keys {
			if key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(k)) == 1 {
				c.Next()
				return
			}
		}

		log.Warn("api auth: rejected request",
			"path", c.Request.URL.Path,
			"remote_addr", c.ClientIP(),
			"key_present", key != "",
		)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}
