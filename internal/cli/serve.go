package cli

import (
	"log"

	"github.com/spf13/cobra"

	"pomosync/backend/internal/config"
	"pomosync/backend/internal/db"
	"pomosync/backend/internal/handler"
	"pomosync/backend/internal/push"
	"pomosync/backend/internal/repository"
	"pomosync/backend/internal/router"
	"pomosync/backend/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.RunMigrations(database, cfg.MigrationsDir); err != nil {
		return err
	}

	hub := push.NewHub(cfg.HeartbeatInterval)
	hub.Start()
	defer hub.Close()

	userRepo := repository.NewUserRepository(database)
	timerRepo := repository.NewTimerRepository(database)

	authService := service.NewAuthService(userRepo, timerRepo, cfg.JWTSecret, cfg.TokenTTL)
	timerService := service.NewTimerService(timerRepo, service.SystemClock(), hub)

	authHandler := handler.NewAuthHandler(authService)
	timerHandler := handler.NewTimerHandler(timerService)
	eventsHandler := handler.NewEventsHandler(hub, timerService)

	engine := router.New(authService, authHandler, timerHandler, eventsHandler, cfg.CORSOrigins)
	log.Printf("pomosyncd listening on :%s", cfg.Port)
	return engine.Run(":" + cfg.Port)
}
