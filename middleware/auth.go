package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tiko/mediacache/utils"
)

// ContextSubjectKey stores the authenticated token subject inside Gin context.
const ContextSubjectKey = "subject"

// AdminRequired ensures the request carries a valid admin JWT signed with secret.
func AdminRequired(secret string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			utils.AbortWithError(ctx, http.StatusUnauthorized, utils.MsgUnauthorized)
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			utils.AbortWithError(ctx, http.StatusUnauthorized, utils.MsgUnauthorized)
			return
		}

		claims, err := utils.ParseToken(secret, tokenString)
		if err != nil {
			utils.AbortWithError(ctx, http.StatusUnauthorized, utils.MsgUnauthorized)
			return
		}
		if claims.Role != utils.RoleAdmin {
			utils.AbortWithError(ctx, http.StatusForbidden, utils.MsgForbidden)
			return
		}

		ctx.Set(ContextSubjectKey, claims.Subject)
		ctx.Next()
	}
}
