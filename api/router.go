package api

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/Domenick1991/skybooking/internal/service/booking"
	"github.com/Domenick1991/skybooking/internal/service/flights"
	"github.com/Domenick1991/skybooking/internal/service/seats"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger"
)

const openAPIPath = "/docs/openapi.yaml"

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	JWTSecret   string
	JWTIssuer   string
	CORSOrigins []string
	RateLimit   string
	SwaggerFile string

	// Redis backs the rate limiter when set.
	Redis  *redis.Client
	Log    logrus.FieldLogger
	Health map[string]HealthCheck
}

func NewRouter(cfg RouterConfig, flightSvc flights.FlightUseCase, bookingSvc booking.BookingUseCase, seatSvc seats.SeatUseCase) (*gin.Engine, error) {
	RegisterValidators()
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(cfg.Log))

	if len(cfg.CORSOrigins) > 0 {
		cc := cors.DefaultConfig()
		cc.AllowOrigins = cfg.CORSOrigins
		cc.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
		cc.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete}
		cc.MaxAge = 12 * time.Hour
		router.Use(cors.New(cc))
	}

	router.GET("/health", health(cfg.Health))

	if cfg.SwaggerFile != "" {
		router.StaticFile(openAPIPath, cfg.SwaggerFile)
		router.GET("/swagger/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL(openAPIPath))))
	}

	auth := Auth(cfg.JWTSecret, cfg.JWTIssuer)
	admin := []gin.HandlerFunc{auth, RequireAdmin()}
	protected := []gin.HandlerFunc{auth}
	if cfg.RateLimit != "" {
		limit, err := RateLimit(cfg.RateLimit, cfg.Redis)
		if err != nil {
			return nil, err
		}
		protected = append(protected, limit)
	}

	NewFlightHandler(flightSvc).Register(router.Group("/flights"), admin...)
	NewBookingHandler(bookingSvc).Register(router.Group("/bookings", protected...), RequireAdmin())
	NewSeatHandler(seatSvc).Register(router.Group("/seats"), protected...)

	return router, nil
}

func health(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				requestLogger(c).WithError(err).WithField("check", name).Warn("health check failed")
				report[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			report[name] = "ok"
		}
		c.JSON(status, envelope{Success: status == http.StatusOK, Data: gin.H{"status": http.StatusText(status), "checks": report}})
	}
}

func chain(middleware []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	return append(slices.Clone(middleware), h)
}
