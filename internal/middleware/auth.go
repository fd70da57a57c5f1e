// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"travel-concierge-go/pkg/log"
	"travel-concierge-go/pkg/token"
)

const (
	// ContextClaims 是 gin 上下文中保存 JWT claims 的键。
	ContextClaims = "claims"
	// ContextUserID 是 gin 上下文中保存当前用户 ID 的键。
	ContextUserID = "userID"
	// ContextAccessToken 是 gin 上下文中保存原始 bearer token 的键，保存建议时需要原样转发。
	ContextAccessToken = "accessToken"
)

const bearerPrefix = "Bearer "

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 它会从请求头中提取 token，验证其有效性，并把用户 ID 存入 Gin 的上下文中。
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未包含授权头", "data": nil})
			return
		}

		// Token 通常以 "Bearer <token>" 的形式提供，我们需要提取出 token 本身
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的授权头格式", "data": nil})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)

		claims, err := jwtManager.VerifyPurpose(tokenString, token.PurposeAccess)
		if err != nil {
			log.Warnf("token 验证失败: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token", "data": nil})
			return
		}

		c.Set(ContextClaims, claims)
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextAccessToken, tokenString)
		c.Next()
	}
}

// FunctionAuth 保护内部转发端点：接受与 functionKey 相同的 apikey 头或 bearer，
// 或者一个有效的用户 access token。
func FunctionAuth(functionKey string, jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		bearer := strings.TrimPrefix(c.GetHeader("Authorization"), bearerPrefix)
		if functionKey != "" {
			if keyMatches(c.GetHeader("apikey"), functionKey) || keyMatches(bearer, functionKey) {
				c.Next()
				return
			}
		}
		if bearer != "" && jwtManager != nil {
			if claims, err := jwtManager.VerifyPurpose(bearer, token.PurposeAccess); err == nil {
				c.Set(ContextClaims, claims)
				c.Set(ContextUserID, claims.UserID)
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
	}
}

func keyMatches(got, want string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// UserID 返回 AuthMiddleware 写入的用户 ID。
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

// AccessToken 返回 AuthMiddleware 写入的原始 token。
func AccessToken(c *gin.Context) string {
	return c.GetString(ContextAccessToken)
}
