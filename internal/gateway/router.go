// Package gateway exposes auth, the per-table data surface and reports over HTTP.
package gateway

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"flowstate/internal/auth"
	"flowstate/internal/repository"
	"flowstate/internal/service"
)

// Deps are the collaborators the handlers call into.
type Deps struct {
	DB      *gorm.DB
	Auth    *auth.Service
	Tables  *repository.Registry
	Digest  *service.DigestService
	Finance *service.FinanceService
	Now     func() time.Time
}

type Options struct {
	CORSOrigins       []string
	AuthRatePerMinute int
	AuthRateBurst     int
	RequestLog        bool
}

type handler struct {
	Deps
}

func NewRouter(deps Deps, opts Options) *gin.Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	h := &handler{Deps: deps}

	r := gin.New()
	r.Use(RecoveryWithLog())
	if opts.RequestLog {
		r.Use(gin.Logger())
	}
	r.Use(corsMiddleware(opts.CORSOrigins))

	r.GET("/health", h.health)

	authGroup := r.Group("/auth")
	if opts.AuthRatePerMinute > 0 {
		burst := opts.AuthRateBurst
		if burst <= 0 {
			burst = 1
		}
		authGroup.Use(RateLimiter(rate.Every(time.Minute/time.Duration(opts.AuthRatePerMinute)), burst))
	}
	authGroup.POST("/signup", h.signUp)
	authGroup.POST("/signin", h.signIn)
	authGroup.POST("/signout", h.signOut)
	authGroup.GET("/user", RequireAuth(deps.Auth), h.currentUser)
	authGroup.GET("/telegram-code", RequireAuth(deps.Auth), h.telegramCode)

	data := r.Group("/data", RequireAuth(deps.Auth))
	data.GET("/:table", h.listRows)
	data.POST("/:table", h.createRow)
	data.PUT("/:table/:id", h.updateRow)
	data.DELETE("/:table/:id", h.deleteRow)

	reports := r.Group("/reports", RequireAuth(deps.Auth))
	reports.GET("/finance", h.financeReport)
	reports.GET("/digest", h.digestReport)

	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	all := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			all = true
		}
	}
	if all {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}
