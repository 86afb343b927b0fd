package coordinator

import (
	"context"
	"fmt"

	"convene/internal/models"
)

const chatHistoryLimit = 10

// fetchMessages replays the latest room messages to the requesting
// socket, oldest first, one frame per message.
func (c *Coordinator) fetchMessages(ctx context.Context, s *Session, cmd Command) error {
	msgs, err := c.messages.Latest(s.Room.ID, chatHistoryLimit)
	if err != nil {
		return err
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		line := fmt.Sprintf("%s: %s", msgs[i].User.ResolveDisplayName(), msgs[i].Content)
		s.Client.Deliver(event("fetching_message", line))
	}
	return nil
}

// chatMessage persists the message, notifies every member in every room
// they belong to and echoes the line to the room group. The sender's
// display name comes from the frame, matching what their UI shows.
func (c *Coordinator) chatMessage(ctx context.Context, s *Session, cmd Command) error {
	msg := &models.Message{RoomID: s.Room.ID, UserID: s.User.ID, Content: cmd.Message}
	if err := c.messages.Create(msg); err != nil {
		return err
	}
	err := c.notifyAllMembers(s.Room.ID, func(u *models.User) *models.Notification {
		return &models.Notification{UserID: u.ID, RoomID: s.Room.ID, MessageID: &msg.ID}
	})
	if err != nil {
		return err
	}
	roomsToNotify, err := c.roomsOfAllMembers(s.Room.ID)
	if err != nil {
		return err
	}
	c.broadcastToRooms(roomsToNotify, flag("refresh_notifications"))
	c.hub.Broadcast(s.Room.ID, event("message", fmt.Sprintf("%s: %s", cmd.User, cmd.Message)))
	return nil
}
