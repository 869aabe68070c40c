package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Alsond5/Wordle-Arena/handlers"
	"github.com/Alsond5/Wordle-Arena/middleware"
	"github.com/Alsond5/Wordle-Arena/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // all origins, same policy as the CORS middleware
	},
}

func SetupRoutes(
	router *gin.Engine,
	authHandler *handlers.AuthHandler,
	matchHandler *handlers.MatchHandler,
	hub *services.Hub,
	authService *services.AuthService,
) {
	api := router.Group("/api")
	{
		api.POST("/register", authHandler.Register)
		api.POST("/login", authHandler.Login)

		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(authService))
		{
			protected.GET("/@me", authHandler.Me)
			protected.GET("/matches", matchHandler.List)
		}
	}

	// Gateway: the persistent game connection. Authentication happens on the
	// socket itself (op 2) within the deadline, not at upgrade time.
	router.GET("/gateway", func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Error().Err(err).Msg("websocket upgrade failed")
			return
		}
		hub.Register(conn)
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
