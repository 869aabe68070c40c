package main

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alsond5/Wordle-Arena/config"
	"github.com/Alsond5/Wordle-Arena/handlers"
	"github.com/Alsond5/Wordle-Arena/middleware"
	"github.com/Alsond5/Wordle-Arena/models"
	"github.com/Alsond5/Wordle-Arena/routes"
	"github.com/Alsond5/Wordle-Arena/services"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("LOG_PRETTY") != "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg := config.Load()

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := db.AutoMigrate(&models.User{}, &models.MatchRecord{}); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	redisClient := config.InitRedis(cfg)

	// The dictionary must be fully loaded before the gateway serves traffic.
	dictionary, err := services.LoadDictionary(cfg.WordsFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.WordsFile).Msg("failed to load dictionary")
	}

	authService := services.NewAuthService(db, cfg.JWTSecret)

	hub := services.NewHub(authService)
	roomService := services.NewRoomService(hub)
	gameService := services.NewGameService(hub, roomService, dictionary, db, redisClient)
	hub.Attach(roomService, gameService)

	authHandler := handlers.NewAuthHandler(authService)
	matchHandler := handlers.NewMatchHandler(db)

	router := gin.Default()
	router.Use(middleware.CORS())

	routes.SetupRoutes(router, authHandler, matchHandler, hub, authService)

	addr := cfg.BindAddress + ":" + cfg.Port
	log.Info().Str("addr", addr).Msg("server starting")
	if err := router.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}
