package coordinator

import (
	"context"

	"convene/internal/models"
)

// allowedStatus answers whether the member may use the room. A locked
// out member gets an idempotent join request queued as a side effect, so
// asking to see the room is asking to enter it.
func (c *Coordinator) allowedStatus(ctx context.Context, s *Session, cmd Command) error {
	blocked, err := c.notAllowed(s)
	if err != nil {
		return err
	}
	if !blocked {
		s.Client.Deliver(flag("allowed"))
		return nil
	}
	return c.requestEntry(s)
}

// joinRoom adds the member to a public room, or queues a join request
// for a private one.
func (c *Coordinator) joinRoom(ctx context.Context, s *Session, cmd Command) error {
	blocked, err := c.notAllowed(s)
	if err != nil {
		return err
	}
	if blocked {
		return c.requestEntry(s)
	}
	s.Client.Deliver(flag("allowed"))

	previousMembers, err := c.rooms.Members(s.Room.ID)
	if err != nil {
		return err
	}
	added, err := c.admitMember(s.Room.ID, s.User)
	if err != nil {
		return err
	}
	// a second member invalidates a solo member's stored area
	if added && len(previousMembers) == 1 {
		if err := c.intersections.DeleteByRoom(s.Room.ID); err != nil {
			return err
		}
		c.hub.Broadcast(s.Room.ID, flag("refresh_area"))
	}

	roomsToNotify, err := c.roomsOfAllMembers(s.Room.ID)
	if err != nil {
		return err
	}
	c.broadcastToRooms(roomsToNotify, flag("refresh_notifications"))
	c.hub.Broadcast(s.Room.ID, flag("refresh_members"))
	c.hub.Broadcast(s.Room.ID, flag("refresh_users_missing_locations"))
	return nil
}

// requestEntry is the locked-out path shared by every room command:
// queue the join request, ping members, tell the socket no.
func (c *Coordinator) requestEntry(s *Session) error {
	jr, created, err := c.joinRequests.GetOrCreate(s.User.ID, s.Room.ID)
	if err != nil {
		return err
	}
	if created {
		err := c.notifyAllMembers(s.Room.ID, func(u *models.User) *models.Notification {
			return &models.Notification{UserID: u.ID, RoomID: s.Room.ID, JoinRequestID: &jr.ID}
		})
		if err != nil {
			return err
		}
		roomsToNotify, err := c.roomsOfAllMembers(s.Room.ID)
		if err != nil {
			return err
		}
		c.broadcastToRooms(roomsToNotify, flag("refresh_notifications"))
	}
	c.hub.Broadcast(s.Room.ID, flag("refresh_join_requests"))
	s.Client.Deliver(flag("not_allowed"))
	return nil
}

// admitMember adds the user and tells every member, including the new
// one, that they joined. First-time joiners with no display name get the
// resolved fallback persisted so later listings have something to show.
func (c *Coordinator) admitMember(roomID string, user *models.User) (bool, error) {
	added, err := c.rooms.AddMember(roomID, user.ID)
	if err != nil || !added {
		return added, err
	}
	if user.DisplayName == "" {
		user.DisplayName = user.ResolveDisplayName()
		if err := c.users.UpdateDisplayName(user.ID, user.DisplayName); err != nil {
			return true, err
		}
	}
	err = c.notifyAllMembers(roomID, func(u *models.User) *models.Notification {
		return &models.Notification{UserID: u.ID, RoomID: roomID, UserJoinedID: &user.ID}
	})
	return true, err
}

// exitRoom removes the member from the named room, drops their bubble
// and notification history there and tells everyone affected.
func (c *Coordinator) exitRoom(ctx context.Context, s *Session, cmd Command) error {
	roomID := cmd.RoomID
	// snapshot before leaving so the leaver's other rooms still refresh
	roomsToNotify, err := c.roomsOfAllMembers(s.Room.ID)
	if err != nil {
		return err
	}
	if err := c.rooms.RemoveMember(roomID, s.User.ID); err != nil {
		return err
	}
	if err := c.locations.DeleteBubble(s.User.ID, roomID); err != nil {
		return err
	}
	err = c.notifyAllMembers(roomID, func(u *models.User) *models.Notification {
		return &models.Notification{UserID: u.ID, RoomID: roomID, UserLeftID: &s.User.ID}
	})
	if err != nil {
		return err
	}
	if err := c.notifications.DeleteForUserRoom(s.User.ID, roomID); err != nil {
		return err
	}
	c.broadcastToRooms(roomsToNotify, flag("refresh_notifications"))
	c.hub.Broadcast(roomID, flag("refresh_members"))
	c.hub.Broadcast(roomID, flag("refresh_users_missing_locations"))
	c.recomputer.Trigger(roomID)
	c.hub.Broadcast(roomID, flag("refresh_allowed_status"))
	return nil
}

func (c *Coordinator) approveUser(ctx context.Context, s *Session, cmd Command) error {
	user, err := c.users.GetByUID(cmd.UID)
	if err != nil {
		return err
	}
	if _, err := c.admitMember(s.Room.ID, user); err != nil {
		return err
	}
	if err := c.joinRequests.DeleteByUserRoom(user.ID, s.Room.ID); err != nil {
		return err
	}
	return c.announceAdmission(s)
}

func (c *Coordinator) approveAllUsers(ctx context.Context, s *Session, cmd Command) error {
	pending, err := c.joinRequests.ListByRoom(s.Room.ID)
	if err != nil {
		return err
	}
	for i := range pending {
		if _, err := c.admitMember(s.Room.ID, &pending[i].User); err != nil {
			return err
		}
	}
	if err := c.joinRequests.DeleteByRoom(s.Room.ID); err != nil {
		return err
	}
	return c.announceAdmission(s)
}

// announceAdmission refreshes everything a newly admitted member's UI
// needs, plus notifications across the membership graph.
func (c *Coordinator) announceAdmission(s *Session) error {
	roomsToNotify, err := c.roomsOfAllMembers(s.Room.ID)
	if err != nil {
		return err
	}
	c.broadcastToRooms(roomsToNotify, flag("refresh_notifications"))
	for _, key := range []string{
		"refresh_join_requests",
		"refresh_members",
		"refresh_allowed_status",
		"refresh_chat",
		"refresh_room_name",
		"refresh_privacy",
		"refresh_users_missing_locations",
	} {
		c.hub.Broadcast(s.Room.ID, flag(key))
	}
	return nil
}

func (c *Coordinator) rejectUser(ctx context.Context, s *Session, cmd Command) error {
	user, err := c.users.GetByUID(cmd.UID)
	if err != nil {
		return err
	}
	if err := c.joinRequests.DeleteByUserRoom(user.ID, s.Room.ID); err != nil {
		return err
	}
	c.hub.Broadcast(s.Room.ID, flag("refresh_join_requests"))
	return nil
}

func (c *Coordinator) fetchJoinRequests(ctx context.Context, s *Session, cmd Command) error {
	pending, err := c.joinRequests.ListByRoom(s.Room.ID)
	if err != nil {
		return err
	}
	payload := make([]map[string]interface{}, 0, len(pending))
	for i := range pending {
		payload = append(payload, map[string]interface{}{
			"user":         pending[i].UserID,
			"uid":          pending[i].User.UID,
			"display_name": pending[i].User.ResolveDisplayName(),
		})
	}
	s.Client.Deliver(event("requests", payload))
	return nil
}

func (c *Coordinator) fetchMembers(ctx context.Context, s *Session, cmd Command) error {
	members, err := c.rooms.Members(s.Room.ID)
	if err != nil {
		return err
	}
	payload := make([]map[string]interface{}, 0, len(members))
	for i := range members {
		payload = append(payload, map[string]interface{}{
			"display_name": members[i].ResolveDisplayName(),
		})
	}
	s.Client.Deliver(event("members", payload))
	return nil
}

// fetchRoomName backfills the display name with the room id on first
// read so every room always has a presentable name.
func (c *Coordinator) fetchRoomName(ctx context.Context, s *Session, cmd Command) error {
	room, err := c.rooms.Get(s.Room.ID)
	if err != nil {
		return err
	}
	if room.DisplayName == "" {
		if err := c.rooms.UpdateDisplayName(room.ID, room.ID); err != nil {
			return err
		}
		room.DisplayName = room.ID
	}
	s.Client.Deliver(event("new_room_name", room.DisplayName))
	return nil
}

func (c *Coordinator) updateRoomName(ctx context.Context, s *Session, cmd Command) error {
	if err := c.rooms.UpdateDisplayName(s.Room.ID, cmd.Name); err != nil {
		return err
	}
	roomsToNotify, err := c.roomsOfAllMembers(s.Room.ID)
	if err != nil {
		return err
	}
	c.broadcastToRooms(roomsToNotify, flag("refresh_notifications"))
	c.hub.Broadcast(s.Room.ID, flag("refresh_room_name"))
	return nil
}

func (c *Coordinator) fetchPrivacy(ctx context.Context, s *Session, cmd Command) error {
	room, err := c.rooms.Get(s.Room.ID)
	if err != nil {
		return err
	}
	s.Client.Deliver(event("privacy", room.Private))
	return nil
}

func (c *Coordinator) updatePrivacy(ctx context.Context, s *Session, cmd Command) error {
	if err := c.rooms.UpdatePrivacy(s.Room.ID, cmd.Privacy); err != nil {
		return err
	}
	err := c.notifyAllMembers(s.Room.ID, func(u *models.User) *models.Notification {
		n := &models.Notification{UserID: u.ID, RoomID: s.Room.ID}
		if cmd.Privacy {
			n.NowPrivate = true
		} else {
			n.NowPublic = true
		}
		return n
	})
	if err != nil {
		return err
	}
	c.hub.Broadcast(s.Room.ID, flag("refresh_privacy"))
	roomsToNotify, err := c.roomsOfAllMembers(s.Room.ID)
	if err != nil {
		return err
	}
	c.broadcastToRooms(roomsToNotify, flag("refresh_notifications"))
	return nil
}

// updateDisplayName is not gated on room access; a member can rename
// themselves from anywhere.
func (c *Coordinator) updateDisplayName(ctx context.Context, s *Session, cmd Command) error {
	if err := c.users.UpdateDisplayName(s.User.ID, cmd.Name); err != nil {
		return err
	}
	s.User.DisplayName = cmd.Name
	roomsToNotify, err := c.roomsOfAllMembers(s.Room.ID)
	if err != nil {
		return err
	}
	for _, key := range []string{
		"refresh_notifications",
		"refresh_members",
		"refresh_chat",
		"refresh_users_missing_locations",
	} {
		c.broadcastToRooms(roomsToNotify, flag(key))
	}
	return nil
}

func (c *Coordinator) fetchDisplayName(ctx context.Context, s *Session, cmd Command) error {
	s.Client.Deliver(event("new_display_name", s.User.ResolveDisplayName()))
	return nil
}
