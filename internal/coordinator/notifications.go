package coordinator

import (
	"context"
	"time"

	"convene/internal/models"
)

// fetchUserNotifications sends highlight hints for whatever went unseen
// in this room since the member last logged in, then marks the room read
// and delivers the cross-room notification digest.
func (c *Coordinator) fetchUserNotifications(ctx context.Context, s *Session, cmd Command) error {
	unseen, err := c.notifications.UnreadForRoom(s.User.ID, s.Room.ID, s.User.LastLoggedIn)
	if err != nil {
		return err
	}
	var chat, area, vote bool
	for i := range unseen {
		if unseen[i].MessageID != nil {
			chat = true
		}
		if unseen[i].UserLocationID != nil {
			area = true
		}
		if unseen[i].AddedPlaceID != nil || unseen[i].VotedPlaceID != nil {
			vote = true
		}
	}
	if chat {
		s.Client.Deliver(flag("highlight_chat"))
	}
	if vote {
		s.Client.Deliver(flag("highlight_vote"))
	}
	if area {
		s.Client.Deliver(flag("highlight_area"))
	}

	if err := c.notifications.MarkAllRead(s.User.ID, s.Room.ID); err != nil {
		return err
	}
	digest, err := c.notifications.ListLatestPerRoom(s.User.ID)
	if err != nil {
		return err
	}
	payload := make([]map[string]interface{}, 0, len(digest))
	for i := range digest {
		payload = append(payload, c.notificationEntry(&digest[i], s.Room.ID))
	}
	s.Client.Deliver(event("notifications", payload))
	return nil
}

// notificationEntry flattens one notification row into the digest shape
// the client renders. Only the keys for the carried payload are set.
func (c *Coordinator) notificationEntry(n *models.Notification, currentRoomID string) map[string]interface{} {
	entry := map[string]interface{}{
		"room":         n.RoomID,
		"room_name":    n.Room.Name(),
		"timestamp":    n.CreatedAt.UTC().Format(time.RFC3339),
		"read":         n.Read,
		"current_room": n.RoomID == currentRoomID,
		"now_public":   n.NowPublic,
		"now_private":  n.NowPrivate,
	}
	if n.Message != nil {
		entry["message_content"] = n.Message.Content
		entry["message_sender"] = n.Message.User.ResolveDisplayName()
	}
	if n.UserJoined != nil {
		entry["user_joined"] = n.UserJoined.ResolveDisplayName()
	}
	if n.UserLeft != nil {
		entry["user_left"] = n.UserLeft.ResolveDisplayName()
	}
	if n.UserLocation != nil {
		entry["user_location"] = n.UserLocation.ResolveDisplayName()
	}
	if n.JoinRequest != nil {
		entry["join_request"] = n.JoinRequest.User.ResolveDisplayName()
	}
	if n.AddedPlace != nil {
		entry["added_place"] = n.AddedPlace.ResolveDisplayName()
	}
	if n.VotedPlace != nil {
		entry["voted_place"] = n.VotedPlace.ResolveDisplayName()
	}
	return entry
}
