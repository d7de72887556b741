package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-irc/internal/core"
	"github.com/vovakirdan/wirechat-irc/internal/session"
)

// StatusSource is the read-only view of a client the API exposes.
type StatusSource interface {
	State() session.State
	Identity() string
	Rooms() []*core.Room
	Room(name string) (*core.Room, bool)
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse describes the session.
type StatusResponse struct {
	State    string         `json:"state"`
	Identity string         `json:"identity,omitempty"`
	Rooms    []RoomResponse `json:"rooms"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	Name     string `json:"name"`
	RoomID   string `json:"room_id,omitempty"`
	Users    int    `json:"users"`
	Messages int    `json:"messages"`
	SlowMode int    `json:"slow_mode,omitempty"`
	SubsOnly bool   `json:"subs_only,omitempty"`
}

// MessageResponse represents a cached message in API responses.
type MessageResponse struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	Action    bool   `json:"action,omitempty"`
	CreatedAt string `json:"created_at"`
}

// RoomHandlers provides HTTP handlers for session and room inspection.
type RoomHandlers struct {
	source StatusSource
	log    *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(source StatusSource, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		source: source,
		log:    logger,
	}
}

// Health reports liveness of the process.
// GET /health
func (h *RoomHandlers) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// Status reports session state and joined rooms.
// GET /api/status
func (h *RoomHandlers) Status(c *gin.Context) {
	rooms := h.source.Rooms()
	resp := StatusResponse{
		State:    h.source.State().String(),
		Identity: h.source.Identity(),
		Rooms:    make([]RoomResponse, 0, len(rooms)),
	}
	for _, r := range rooms {
		resp.Rooms = append(resp.Rooms, toRoomResponse(r))
	}
	c.JSON(http.StatusOK, resp)
}

// ListMessages returns the cached messages of a room, oldest first.
// GET /api/rooms/:room/messages
func (h *RoomHandlers) ListMessages(c *gin.Context) {
	name := c.Param("room")
	room, ok := h.source.Room(name)
	if !ok {
		h.log.Debug().Str("room", name).Msg("messages requested for unknown room")
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		return
	}

	msgs := room.Cache().Messages()
	response := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		author := m.AuthorID()
		if m.Author != nil {
			author = m.Author.Name()
		}
		response = append(response, MessageResponse{
			ID:        m.ID,
			Author:    author,
			Content:   m.Content,
			Action:    m.Action,
			CreatedAt: m.CreatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, response)
}

func toRoomResponse(r *core.Room) RoomResponse {
	state := r.State()
	return RoomResponse{
		Name:     r.Name,
		RoomID:   state.RoomID,
		Users:    len(r.Users()),
		Messages: r.Cache().Len(),
		SlowMode: state.SlowSeconds,
		SubsOnly: state.SubsOnly,
	}
}
