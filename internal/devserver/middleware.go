package devserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	bearerPrefix = "Bearer "
	userKey      = "user"
)

var (
	ErrMissingAuthHeader = errors.New("missing authorization header")
	ErrInvalidAuthFormat = errors.New("invalid authorization header format")
	ErrEmptyToken        = errors.New("empty token")
	ErrInvalidToken      = errors.New("invalid token")
	ErrSessionRevoked    = errors.New("session revoked")
	ErrUserNotFound      = errors.New("user not found")
)

func setUser(c *gin.Context, user *User) {
	c.Set(userKey, user)
}

// GetUser returns the user authenticated by BearerAuthMiddleware
func GetUser(c *gin.Context) (*User, bool) {
	v, exists := c.Get(userKey)
	if !exists {
		return nil, false
	}
	user, ok := v.(*User)
	return user, ok
}

func extractBearerToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrMissingAuthHeader
	}

	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", ErrInvalidAuthFormat
	}

	token := strings.TrimPrefix(authHeader, bearerPrefix)
	if token == "" {
		return "", ErrEmptyToken
	}

	return token, nil
}

// respondWithDetail writes the {"detail": ...} error body the client parses
func respondWithDetail(c *gin.Context, log zerolog.Logger, statusCode int, err error, detail string) {
	log.Warn().Err(err).Str("path", c.Request.URL.Path).Msg(detail)
	c.JSON(statusCode, gin.H{"detail": detail})
	c.Abort()
}

// BearerAuthMiddleware validates the access token and the login session it
// belongs to. Every failure is a 401 so the client treats it as an expiry.
func BearerAuthMiddleware(db *gorm.DB, tokens *TokenIssuer, log zerolog.Logger, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			var detail string
			switch err {
			case ErrMissingAuthHeader:
				detail = "Authentication credentials were not provided."
			case ErrInvalidAuthFormat:
				detail = "Invalid authorization header format."
			case ErrEmptyToken:
				detail = "Empty token."
			}
			respondWithDetail(c, log, http.StatusUnauthorized, err, detail)
			return
		}

		claims, err := tokens.Validate(token)
		if err != nil {
			respondWithDetail(c, log, http.StatusUnauthorized, err, "Given token not valid for any token type")
			return
		}

		var session RefreshToken
		if err := db.Where("id = ?", claims.SessionID).First(&session).Error; err != nil || !session.Active(now()) {
			respondWithDetail(c, log, http.StatusUnauthorized, ErrSessionRevoked, "Session has been logged out")
			return
		}

		var user User
		if err := db.Where("id = ?", claims.UserID).First(&user).Error; err != nil {
			respondWithDetail(c, log, http.StatusUnauthorized, ErrUserNotFound, "User not found")
			return
		}

		setUser(c, &user)
		c.Next()
	}
}
