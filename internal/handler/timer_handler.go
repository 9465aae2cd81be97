package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pomosync/backend/internal/middleware"
	"pomosync/backend/internal/service"
)

type TimerHandler struct {
	timerService *service.TimerService
}

type versionRequest struct {
	BaseVersion int `json:"baseVersion"`
}

type switchModeRequest struct {
	BaseVersion int    `json:"baseVersion"`
	Mode        string `json:"mode"`
}

type updateSettingsRequest struct {
	BaseVersion               int `json:"baseVersion"`
	FocusDurationSeconds      int `json:"focusDurationSeconds"`
	ShortBreakDurationSeconds int `json:"shortBreakDurationSeconds"`
	LongBreakDurationSeconds  int `json:"longBreakDurationSeconds"`
	LongBreakEvery            int `json:"longBreakEvery"`
}

func NewTimerHandler(timerService *service.TimerService) *TimerHandler {
	return &TimerHandler{timerService: timerService}
}

func (h *TimerHandler) GetState(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{"code": "unauthorized", "message": "unauthorized"},
		})
		return
	}

	state, apiErr := h.timerService.GetState(c.Request.Context(), userID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *TimerHandler) Start(c *gin.Context) {
	h.applySimple(c, service.OpStart)
}

func (h *TimerHandler) Pause(c *gin.Context) {
	h.applySimple(c, service.OpPause)
}

func (h *TimerHandler) Reset(c *gin.Context) {
	h.applySimple(c, service.OpReset)
}

func (h *TimerHandler) Skip(c *gin.Context) {
	h.applySimple(c, service.OpSkip)
}

// applySimple handles the operations whose body is just {baseVersion}.
func (h *TimerHandler) applySimple(c *gin.Context, kind service.OpKind) {
	var req versionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_json", "message": "invalid request body"},
		})
		return
	}
	if req.BaseVersion <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_base_version", "message": "baseVersion is required"},
		})
		return
	}

	userID := middleware.UserID(c)
	state, apiErr := h.timerService.Apply(c.Request.Context(), userID, req.BaseVersion, service.Operation{Kind: kind})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *TimerHandler) SwitchMode(c *gin.Context) {
	var req switchModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_json", "message": "invalid request body"},
		})
		return
	}
	if req.BaseVersion <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_base_version", "message": "baseVersion is required"},
		})
		return
	}

	userID := middleware.UserID(c)
	state, apiErr := h.timerService.Apply(c.Request.Context(), userID, req.BaseVersion, service.Operation{
		Kind: service.OpSwitchMode,
		Mode: req.Mode,
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *TimerHandler) UpdateSettings(c *gin.Context) {
	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_json", "message": "invalid request body"},
		})
		return
	}
	if req.BaseVersion <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_base_version", "message": "baseVersion is required"},
		})
		return
	}

	userID := middleware.UserID(c)
	state, apiErr := h.timerService.Apply(c.Request.Context(), userID, req.BaseVersion, service.Operation{
		Kind: service.OpUpdateSettings,
		Settings: &service.SettingsUpdate{
			FocusDurationSeconds:      req.FocusDurationSeconds,
			ShortBreakDurationSeconds: req.ShortBreakDurationSeconds,
			LongBreakDurationSeconds:  req.LongBreakDurationSeconds,
			LongBreakEvery:            req.LongBreakEvery,
		},
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *TimerHandler) GetHistory(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{"code": "unauthorized", "message": "unauthorized"},
		})
		return
	}

	limit := 50
	rawLimit := c.Query("limit")
	if rawLimit != "" {
		if parsed, err := strconv.Atoi(rawLimit); err == nil {
			limit = parsed
		}
	}

	sessions, apiErr := h.timerService.ListSessions(c.Request.Context(), userID, limit)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}
