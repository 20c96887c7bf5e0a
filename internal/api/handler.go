// Package api exposes the relay's control surface and introspection
// endpoints over HTTP for the signaling layer and operators.
package api

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/voclink/relay-service/internal/room"
	"github.com/voclink/relay-service/internal/rtmp"
	"github.com/voclink/relay-service/internal/udpmux"
	"github.com/voclink/relay-service/pkg/log"
	"github.com/voclink/relay-service/pkg/response"
)

// Handler serves the admin and control endpoints.
type Handler struct {
	rooms    *room.Manager
	registry *rtmp.Registry
	udp      *udpmux.Server
}

// NewHandler creates an API handler. registry and udp may be nil when the
// corresponding transport is disabled.
func NewHandler(rooms *room.Manager, registry *rtmp.Registry, udp *udpmux.Server) *Handler {
	return &Handler{rooms: rooms, registry: registry, udp: udp}
}

// Router builds the gin engine with logging middleware and all routes.
func (h *Handler) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(log.GinMiddleware(log.L()))

	r.GET("/health", h.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/stats", h.stats)
		v1.GET("/rooms", h.listRooms)
		v1.GET("/rooms/:roomId", h.getRoom)
		v1.POST("/rooms/:roomId/join", h.joinRoom)
		v1.POST("/rooms/:roomId/leave", h.leaveRoom)
		v1.POST("/rooms/:roomId/streams", h.publish)
		v1.DELETE("/rooms/:roomId/streams/:streamId", h.unpublish)
		v1.POST("/rooms/:roomId/streams/:streamId/subscribe", h.subscribe)
		v1.POST("/rooms/:roomId/streams/:streamId/unsubscribe", h.unsubscribe)
	}

	return r
}

func (h *Handler) health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

func (h *Handler) stats(c *gin.Context) {
	stats := gin.H{"rooms": len(h.rooms.Rooms())}
	if h.registry != nil {
		publishers, subscribers := h.registry.Counts()
		stats["rtmp_publishers"] = publishers
		stats["rtmp_subscribers"] = subscribers
	}
	if h.udp != nil {
		stats["udp"] = h.udp.Stats()
	}
	response.Success(c, stats)
}

func (h *Handler) listRooms(c *gin.Context) {
	response.Success(c, h.rooms.Rooms())
}

func (h *Handler) getRoom(c *gin.Context) {
	info, err := h.rooms.Room(c.Param("roomId"))
	if err != nil {
		writeRoomError(c, err)
		return
	}
	response.Success(c, info)
}

type joinRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Name   string `json:"name"`
}

func (h *Handler) joinRoom(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	info, err := h.rooms.JoinRoom(c.Param("roomId"), req.UserID, nil, req.Name)
	if err != nil {
		writeRoomError(c, err)
		return
	}
	response.Success(c, info)
}

type leaveRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *Handler) leaveRoom(c *gin.Context) {
	var req leaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.rooms.LeaveRoom(c.Param("roomId"), req.UserID); err != nil {
		writeRoomError(c, err)
		return
	}
	response.Success(c, gin.H{"left": true})
}

type publishRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	StreamID string `json:"stream_id" binding:"required"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	HasAudio bool   `json:"has_audio"`
	HasVideo bool   `json:"has_video"`
}

func (h *Handler) publish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	typ := room.StreamType(req.Type)
	switch typ {
	case room.StreamTypeCamera, room.StreamTypeScreen:
	default:
		typ = room.StreamTypeOther
	}

	info, err := h.rooms.Publish(c.Param("roomId"), req.UserID, req.StreamID, req.Name, typ, req.HasAudio, req.HasVideo)
	if err != nil {
		writeRoomError(c, err)
		return
	}
	response.Created(c, info)
}

type subscribeRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type unpublishRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *Handler) unpublish(c *gin.Context) {
	var req unpublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	affected, err := h.rooms.Unpublish(c.Param("roomId"), req.UserID, c.Param("streamId"))
	if err != nil {
		writeRoomError(c, err)
		return
	}
	response.Success(c, gin.H{"affected_subscribers": affected})
}

func (h *Handler) subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.rooms.Subscribe(c.Param("roomId"), req.UserID, c.Param("streamId")); err != nil {
		writeRoomError(c, err)
		return
	}
	response.Success(c, gin.H{"subscribed": true})
}

func (h *Handler) unsubscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.rooms.Unsubscribe(c.Param("roomId"), req.UserID, c.Param("streamId")); err != nil {
		writeRoomError(c, err)
		return
	}
	response.Success(c, gin.H{"unsubscribed": true})
}

func writeRoomError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, room.ErrRoomNotFound),
		errors.Is(err, room.ErrUserNotFound),
		errors.Is(err, room.ErrStreamNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, room.ErrNotPublisher):
		response.Forbidden(c, err.Error())
	case errors.Is(err, room.ErrRoomFull),
		errors.Is(err, room.ErrAlreadyJoined),
		errors.Is(err, room.ErrStreamExists),
		errors.Is(err, room.ErrStreamLimitExceeded),
		errors.Is(err, room.ErrSelfSubscribe):
		response.Conflict(c, err.Error())
	default:
		response.InternalError(c, err.Error())
	}
}
