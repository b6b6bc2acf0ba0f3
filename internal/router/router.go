package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kartshart/kartshart-backend/config"
	"github.com/kartshart/kartshart-backend/internal/app/controller"
	"github.com/kartshart/kartshart-backend/internal/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Router struct {
	cartController    *controller.CartController
	authMiddleware    *middleware.AuthMiddleware
	sessionMiddleware *middleware.SessionMiddleware
	config            *config.Config
}

func NewRouter(
	cartController *controller.CartController,
	authMiddleware *middleware.AuthMiddleware,
	sessionMiddleware *middleware.SessionMiddleware,
	cfg *config.Config,
) *Router {
	return &Router{
		cartController:    cartController,
		authMiddleware:    authMiddleware,
		sessionMiddleware: sessionMiddleware,
		config:            cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	gin.SetMode(r.config.Server.GinMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware())
	router.Use(corsMiddleware(r.config.CORS.AllowedOrigins, r.config.Session.HeaderName))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"message": "Kartshart cart API is running",
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		cart := v1.Group("/cart")
		cart.Use(r.authMiddleware.OptionalAuthenticate(), r.sessionMiddleware.Resolve())
		{
			cart.GET("", r.cartController.GetCart)
			cart.GET("/count", r.cartController.GetCartCount)
			cart.POST("/items", r.cartController.AddToCart)
			cart.POST("/items/:product_id/decrement", r.cartController.DecrementCartItem)
			cart.DELETE("/items/:product_id", r.cartController.RemoveCartItem)
			cart.POST("/checkout", r.cartController.Checkout)
			cart.POST("/consolidate", r.cartController.ConsolidateCart)
		}

		// Login boundary: the user must be authenticated and may carry the
		// anonymous session being merged.
		v1.POST("/cart/merge",
			r.authMiddleware.Authenticate(),
			r.sessionMiddleware.Resolve(),
			r.cartController.MergeOnLogin,
		)
	}

	return router
}

func corsMiddleware(allowedOrigins []string, sessionHeader string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin || allowedOrigin == "*" {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID, "+sessionHeader)
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, "+sessionHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
