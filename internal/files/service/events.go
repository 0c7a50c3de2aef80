package service

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/transmute-backend/internal/pkg/sse"
)

// EventService streams file lifecycle events as server-sent events.
type EventService struct {
	hub       *sse.Hub
	heartbeat time.Duration
}

func NewEventService(hub *sse.Hub, heartbeat time.Duration) *EventService {
	return &EventService{hub: hub, heartbeat: heartbeat}
}

func (s *EventService) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/events", s.Stream)
}

// Stream subscribes to every event, or with ?file_id= to one original and
// its conversions.
func (s *EventService) Stream(c *gin.Context) {
	sse.Serve(c, s.hub, c.Query("file_id"), s.heartbeat)
}
