package server

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Tyrowin/roomchat/internal/logging"
	"github.com/Tyrowin/roomchat/internal/protocol"
	"github.com/Tyrowin/roomchat/internal/room"
)

// Router decodes inbound frames and dispatches them to the coordinator.
type Router struct {
	coordinator *room.Coordinator
	hub         *Hub
	logger      *zap.Logger
}

// NewRouter returns a Router that answers malformed frames through hub.
func NewRouter(coordinator *room.Coordinator, hub *Hub, logger *zap.Logger) *Router {
	return &Router{
		coordinator: coordinator,
		hub:         hub,
		logger:      logging.OrNop(logger).Named("router"),
	}
}

// HandleFrame processes a single frame. A panic while handling one frame is
// logged and does not take down the connection.
func (r *Router) HandleFrame(connID string, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic while handling frame", zap.String("conn", connID), zap.Any("panic", rec))
		}
	}()

	req, err := protocol.Decode(raw)
	if err != nil {
		r.logger.Debug("rejected frame", zap.String("conn", connID), zap.Error(err))
		r.hub.Send(connID, protocol.Error{Message: decodeErrorMessage(err)})
		return
	}

	switch req := req.(type) {
	case protocol.CreateRoom:
		r.coordinator.Create(connID, req.RoomName, req.UserID, req.UserName)

	case protocol.JoinRoom:
		if _, err := r.coordinator.Join(connID, req.RoomID, req.UserID, req.UserName); err != nil {
			r.logger.Info("join failed", zap.String("conn", connID), zap.Error(err))
		}

	case protocol.SendMessage:
		_, err := r.coordinator.SendMessage(connID, req.RoomID, room.Outgoing{
			UserID:      req.UserID,
			UserName:    req.UserName,
			Body:        req.Message,
			ReplyTo:     req.ReplyTo,
			ReplyToUser: req.ReplyToUser,
		})
		if err != nil {
			r.logger.Info("send failed", zap.String("conn", connID), zap.Error(err))
		}

	case protocol.LeaveRoom:
		r.coordinator.Leave(connID, req.RoomID, req.UserID, req.UserName)

	case protocol.GetRooms:
		r.coordinator.GetRooms(connID)

	default:
		r.logger.Warn("unhandled request", zap.String("conn", connID), zap.String("event", req.RequestEvent()))
	}
}

func decodeErrorMessage(err error) string {
	if errors.Is(err, protocol.ErrUnknownEvent) {
		return "Unknown event"
	}
	return "Malformed event"
}
