package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
	ginmiddleware "github.com/ulule/limiter/v3/drivers/middleware/gin"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

const (
	requesterKey = "requester"
	loggerKey    = "logger"
)

// Claims is the bearer token payload. Subject carries the user id.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// RequestLogger logs one line per request and exposes a request-scoped logger
// to handlers.
func RequestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		entry := log.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		})
		c.Set(loggerKey, entry)

		c.Next()

		fields := logrus.Fields{
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}
		if r, ok := requesterFrom(c); ok {
			fields["user_id"] = r.UserID
		}
		entry = entry.WithFields(fields)
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("request completed")
		case status >= http.StatusBadRequest:
			entry.Warn("request completed")
		default:
			entry.Info("request completed")
		}
	}
}

// Auth requires an HS256 bearer token signed with secret.
func Auth(secret, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{Message: "missing bearer token"})
			return
		}

		requester, err := ParseToken(raw, secret, issuer)
		if err != nil {
			requestLogger(c).WithError(err).Warn("rejected bearer token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{Message: "invalid or expired token"})
			return
		}
		c.Set(requesterKey, requester)
		c.Next()
	}
}

// RequireAdmin must run after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		r, ok := requesterFrom(c)
		if !ok || !r.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, envelope{Message: "admin role required"})
			return
		}
		c.Next()
	}
}

func ParseToken(raw, secret, issuer string) (domain.Requester, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return domain.Requester{}, err
	}
	if !token.Valid {
		return domain.Requester{}, errors.New("token is not valid")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return domain.Requester{}, fmt.Errorf("subject is not a user id: %w", err)
	}
	role := claims.Role
	if role != domain.RoleAdmin {
		role = domain.RoleUser
	}
	return domain.Requester{UserID: userID, Role: role}, nil
}

// IssueToken signs a token for the given requester. Used by tests and tooling.
func IssueToken(r domain.Requester, secret, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: r.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   r.UserID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// authenticated returns the requester set by Auth and aborts with 401 when
// there is none.
func authenticated(c *gin.Context) (domain.Requester, bool) {
	r, ok := requesterFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{Message: "authentication required"})
	}
	return r, ok
}

func requesterFrom(c *gin.Context) (domain.Requester, bool) {
	v, ok := c.Get(requesterKey)
	if !ok {
		return domain.Requester{}, false
	}
	r, ok := v.(domain.Requester)
	return r, ok
}

// RateLimit throttles write endpoints per user, or per client IP for
// anonymous calls. Counters live in redis when a client is given.
func RateLimit(formatted string, client *redis.Client) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("parse rate limit %q: %w", formatted, err)
	}

	opts := limiter.StoreOptions{Prefix: "rate_limiter:skybooking", MaxRetry: 3, CleanUpInterval: rate.Period}
	var store limiter.Store
	if client != nil {
		store, err = redisstore.NewStoreWithOptions(client, opts)
		if err != nil {
			return nil, fmt.Errorf("create redis rate limit store: %w", err)
		}
	} else {
		store = memorystore.NewStoreWithOptions(opts)
	}

	return ginmiddleware.NewMiddleware(limiter.New(store, rate),
		ginmiddleware.WithKeyGetter(func(c *gin.Context) string {
			if r, ok := requesterFrom(c); ok {
				return r.UserID.String()
			}
			return c.ClientIP()
		}),
		ginmiddleware.WithLimitReachedHandler(func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, envelope{Message: "too many requests"})
		}),
	), nil
}
