package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"safety-service/internal/config"
	"safety-service/internal/logging"
)

const (
	ctxRequestID = "request_id"
	ctxActorID   = "actor_id"
	ctxActorRole = "actor_role"

	roleAdmin   = "admin"
	roleTourist = "tourist"

	// demoActor is used when the gateway forwards no identity.
	demoActor = "demo-user"
)

// RequestIDMiddleware tags each request with X-Request-ID, generating one when absent.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func RequestLoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		logger.Request(c.GetString(ctxRequestID)).Infof("Request: %s %s, Status: %d, Latency: %v", method, path, status, latency)
	}
}

// IdentityMiddleware reads the actor forwarded by the gateway. When
// adminKey is set, the admin role also needs a matching X-Admin-Key.
func IdentityMiddleware(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader("X-Actor-ID"))
		if actor == "" {
			actor = demoActor
		}
		role := roleTourist
		if strings.EqualFold(c.GetHeader("X-Actor-Role"), roleAdmin) {
			given := c.GetHeader("X-Admin-Key")
			if adminKey == "" || subtle.ConstantTimeCompare([]byte(given), []byte(adminKey)) == 1 {
				role = roleAdmin
			}
		}
		c.Set(ctxActorID, actor)
		c.Set(ctxActorRole, role)
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isAdmin(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin privileges required"})
			return
		}
		c.Next()
	}
}

func actorID(c *gin.Context) string { return c.GetString(ctxActorID) }

func isAdmin(c *gin.Context) bool { return c.GetString(ctxActorRole) == roleAdmin }

// NewThrottleStore picks the Redis store when an address is configured,
// otherwise an in-process store.
func NewThrottleStore(cfg config.Config) (limiter.Store, error) {
	if cfg.Redis.Addr == "" {
		return memory.NewStore(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: "safety_throttle"})
}

// ThrottleMiddleware caps requests per client IP. It sits in front of the
// engine's own per-tourist limits and protects the service as a whole.
func ThrottleMiddleware(rate string, store limiter.Store, logger *logging.Logger) (gin.HandlerFunc, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}
	lim := limiter.New(store, r)
	return func(c *gin.Context) {
		ctx, err := lim.Get(c.Request.Context(), "ip:"+c.ClientIP())
		if err != nil {
			// Fail open when the store is unavailable.
			logger.Errorf("Throttle store failed: %v", err)
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.FormatInt(ctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(ctx.Remaining, 10))
		if ctx.Reached {
			retry := int(time.Until(time.Unix(ctx.Reset, 0)).Seconds())
			if retry < 0 {
				retry = 0
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests, please slow down."})
			return
		}
		c.Next()
	}, nil
}
