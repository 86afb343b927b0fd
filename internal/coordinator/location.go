package coordinator

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"convene/internal/domain"
	"convene/internal/models"
)

// regionIsochrones streams the raw probe geometries back to the socket
// so the client can render where each service partition reaches.
func (c *Coordinator) regionIsochrones(ctx context.Context, s *Session, cmd Command) error {
	probes := c.resolver.Probes(ctx, cmd.Latitude, cmd.Longitude)
	payload := make([]map[string]interface{}, 0, len(probes))
	for _, p := range probes {
		payload = append(payload, map[string]interface{}{
			"isochrone":   p.Raw,
			"region":      p.Region,
			"travel_mode": p.Mode,
		})
	}
	s.Client.Deliver(map[string]interface{}{
		"region_isochrones": payload,
		"location_lng":      cmd.Longitude,
		"location_lat":      cmd.Latitude,
	})
	return nil
}

// updateLocationBubble resolves the service partition for the new
// coordinate, persists the bubble and kicks off an area recompute. An
// unresolvable coordinate only tells the requesting socket.
func (c *Coordinator) updateLocationBubble(ctx context.Context, s *Session, cmd Command) error {
	region, err := c.resolver.Resolve(ctx, cmd.Latitude, cmd.Longitude)
	if err != nil {
		if errors.Is(err, domain.ErrRegionNotFound) {
			c.log.Error("no service partition for bubble",
				zap.Float64("lat", cmd.Latitude), zap.Float64("lng", cmd.Longitude))
			s.Client.Deliver(flag("region_not_found"))
			return nil
		}
		return err
	}
	bubble := &models.LocationBubble{
		UserID:         s.User.ID,
		RoomID:         s.Room.ID,
		Address:        cmd.Address,
		Latitude:       cmd.Latitude,
		Longitude:      cmd.Longitude,
		Transportation: cmd.Transportation,
		Hours:          cmd.Hours,
		Minutes:        cmd.Minutes,
		Region:         region,
		PlaceID:        cmd.PlaceID,
	}
	if _, err := c.locations.UpsertBubble(bubble); err != nil {
		return err
	}
	err = c.notifyAllMembers(s.Room.ID, func(u *models.User) *models.Notification {
		return &models.Notification{UserID: u.ID, RoomID: s.Room.ID, UserLocationID: &s.User.ID}
	})
	if err != nil {
		return err
	}
	c.recomputer.Trigger(s.Room.ID)
	roomsToNotify, err := c.roomsOfAllMembers(s.Room.ID)
	if err != nil {
		return err
	}
	c.broadcastToRooms(roomsToNotify, flag("refresh_notifications"))
	c.broadcastToRooms(roomsToNotify, flag("refresh_users_missing_locations"))
	return nil
}

// fetchLocationBubble returns the member's bubble for this room, with
// the place id refreshed against the provider first. No bubble yet means
// an empty object, not an error.
func (c *Coordinator) fetchLocationBubble(ctx context.Context, s *Session, cmd Command) error {
	bubble, err := c.locations.GetBubble(s.User.ID, s.Room.ID)
	if errors.Is(err, domain.ErrNotFound) {
		s.Client.Deliver(event("location_bubble", map[string]interface{}{}))
		return nil
	}
	if err != nil {
		return err
	}
	c.refreshBubblePlaceID(ctx, bubble)
	s.Client.Deliver(event("location_bubble", map[string]interface{}{
		"address":        bubble.Address,
		"latitude":       bubble.Latitude,
		"longitude":      bubble.Longitude,
		"hours":          bubble.Hours,
		"minutes":        bubble.Minutes,
		"transportation": bubble.Transportation,
		"region":         bubble.Region,
		"place_id":       bubble.PlaceID,
	}))
	return nil
}

// refreshBubblePlaceID swaps in the provider's canonical place id when
// the stored one has gone stale. Failures keep the stored id.
func (c *Coordinator) refreshBubblePlaceID(ctx context.Context, bubble *models.LocationBubble) {
	if bubble.PlaceID == "" {
		return
	}
	current, err := c.placeAPI.RefreshPlaceID(ctx, bubble.PlaceID)
	if err != nil {
		c.log.Warn("place id refresh failed", zap.String("place_id", bubble.PlaceID), zap.Error(err))
		return
	}
	if current != bubble.PlaceID {
		if err := c.locations.UpdateBubblePlaceID(bubble.ID, current); err != nil {
			c.log.Warn("storing refreshed place id failed", zap.Error(err))
			return
		}
		bubble.PlaceID = current
	}
}

// fetchIntersection sends the stored meeting area, or an empty object
// when none is stored, then nudges the socket to refresh the views that
// depend on it.
func (c *Coordinator) fetchIntersection(ctx context.Context, s *Session, cmd Command) error {
	stored, err := c.intersections.GetByRoom(s.Room.ID)
	if errors.Is(err, domain.ErrNotFound) {
		s.Client.Deliver(event("area", map[string]interface{}{}))
	} else if err != nil {
		return err
	} else {
		s.Client.Deliver(event("area", map[string]interface{}{
			"type":         stored.Type,
			"coordinates":  json.RawMessage(stored.Coordinates),
			"centroid_lat": stored.CentroidLat,
			"centroid_lng": stored.CentroidLng,
		}))
	}
	s.Client.Deliver(flag("refresh_users_missing_locations"))
	s.Client.Deliver(flag("refresh_area_query"))
	return nil
}

func (c *Coordinator) fetchUsersMissingLocations(ctx context.Context, s *Session, cmd Command) error {
	missing, err := c.rooms.MembersMissingBubbles(s.Room.ID)
	if err != nil {
		return err
	}
	payload := make([]map[string]interface{}, 0, len(missing))
	for i := range missing {
		payload = append(payload, map[string]interface{}{
			"uid":          missing[i].UID,
			"display_name": missing[i].ResolveDisplayName(),
		})
	}
	s.Client.Deliver(event("users_missing_locations", payload))
	return nil
}

func (c *Coordinator) calculateIntersection(ctx context.Context, s *Session, cmd Command) error {
	c.recomputer.Trigger(s.Room.ID)
	return nil
}
