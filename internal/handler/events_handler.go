package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"pomosync/backend/internal/middleware"
	"pomosync/backend/internal/model"
	"pomosync/backend/internal/push"
	"pomosync/backend/internal/service"
)

// EventsHandler serves the SSE stream. Every committed state change for
// the user arrives as a "state" event; periodic "heartbeat" events carry
// the server time so clients can correct their local countdown drift.
type EventsHandler struct {
	hub          *push.Hub
	timerService *service.TimerService
}

func NewEventsHandler(hub *push.Hub, timerService *service.TimerService) *EventsHandler {
	return &EventsHandler{hub: hub, timerService: timerService}
}

func (h *EventsHandler) Stream(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{"code": "unauthorized", "message": "unauthorized"},
		})
		return
	}

	sub := h.hub.Subscribe(userID)
	defer h.hub.Unsubscribe(sub)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// Initial snapshot so a device is current the moment it connects,
	// even if no mutation happens for a while. This also reconciles any
	// phase that expired while the device was away.
	state, apiErr := h.timerService.GetState(c.Request.Context(), userID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.SSEvent(push.EventState, push.Event{
		Type:       push.EventState,
		Reason:     model.ReasonReconcile,
		State:      state,
		ServerTime: state.ServerTime,
	})
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return false
			}
			c.SSEvent(ev.Type, ev)
			return true
		case <-ctx.Done():
			return false
		}
	})
}
