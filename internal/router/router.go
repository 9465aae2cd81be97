package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pomosync/backend/internal/handler"
	"pomosync/backend/internal/middleware"
	"pomosync/backend/internal/service"
)

func New(
	authService *service.AuthService,
	authHandler *handler.AuthHandler,
	timerHandler *handler.TimerHandler,
	eventsHandler *handler.EventsHandler,
	corsOrigins []string,
) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery(), middleware.CORS(corsOrigins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)

	pomodoro := api.Group("/pomodoro")
	pomodoro.Use(middleware.Auth(authService))
	pomodoro.GET("/state", timerHandler.GetState)
	pomodoro.POST("/start", timerHandler.Start)
	pomodoro.POST("/pause", timerHandler.Pause)
	pomodoro.POST("/reset", timerHandler.Reset)
	pomodoro.POST("/skip", timerHandler.Skip)
	pomodoro.POST("/mode", timerHandler.SwitchMode)
	pomodoro.PUT("/settings", timerHandler.UpdateSettings)
	pomodoro.GET("/history", timerHandler.GetHistory)
	pomodoro.GET("/events", eventsHandler.Stream)

	return engine
}
