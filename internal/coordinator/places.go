package coordinator

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"convene/internal/domain"
	"convene/internal/models"
	"convene/internal/places"
	"convene/internal/repository"
)

const placeListLimit = 10

func (c *Coordinator) fetchAreaQuery(ctx context.Context, s *Session, cmd Command) error {
	query, err := c.locations.GetAreaQuery(s.User.ID, s.Room.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	var payload interface{}
	if query != "" {
		payload = query
	}
	s.Client.Deliver(event("area_query", payload))
	s.Client.Deliver(flag("refresh_area_query"))
	return nil
}

// updateAreaQuery remembers the search text for this member and room,
// then runs the search and returns the first page of results.
func (c *Coordinator) updateAreaQuery(ctx context.Context, s *Session, cmd Command) error {
	if err := c.locations.UpsertAreaQuery(s.User.ID, s.Room.ID, cmd.Query); err != nil {
		return err
	}
	results, nextToken, err := c.placeAPI.TextSearch(ctx, cmd.Query, cmd.Lat, cmd.Lng)
	if err != nil {
		return err
	}
	s.Client.Deliver(map[string]interface{}{
		"area_query_results":     results,
		"next_page_places_token": nextToken,
	})
	return nil
}

func (c *Coordinator) nextPagePlaces(ctx context.Context, s *Session, cmd Command) error {
	results, nextToken, err := c.placeAPI.NextPage(ctx, cmd.Token)
	if err != nil {
		return err
	}
	s.Client.Deliver(map[string]interface{}{
		"next_page_place_results": results,
		"token_used":              cmd.Token,
		"next_page_places_token":  nextToken,
	})
	return nil
}

func (c *Coordinator) savePlace(ctx context.Context, s *Session, cmd Command) error {
	if _, err := c.places.Upsert(s.Room.ID, cmd.Lat, cmd.Lng, cmd.ID, true); err != nil {
		return err
	}
	err := c.notifyAllMembers(s.Room.ID, func(u *models.User) *models.Notification {
		return &models.Notification{UserID: u.ID, RoomID: s.Room.ID, AddedPlaceID: &s.User.ID}
	})
	if err != nil {
		return err
	}
	c.hub.Broadcast(s.Room.ID, flag("refresh_places"))
	roomsToNotify, err := c.roomsOfAllMembers(s.Room.ID)
	if err != nil {
		return err
	}
	c.broadcastToRooms(roomsToNotify, flag("refresh_notifications"))
	return nil
}

func (c *Coordinator) votePlace(ctx context.Context, s *Session, cmd Command) error {
	place, err := c.places.GetByPlaceID(s.Room.ID, cmd.PlaceID)
	if err != nil {
		return err
	}
	if err := c.places.UpsertVote(s.Room.ID, s.User.ID, place.ID); err != nil {
		return err
	}
	err = c.notifyAllMembers(s.Room.ID, func(u *models.User) *models.Notification {
		return &models.Notification{UserID: u.ID, RoomID: s.Room.ID, VotedPlaceID: &s.User.ID}
	})
	if err != nil {
		return err
	}
	roomsToNotify, err := c.roomsOfAllMembers(s.Room.ID)
	if err != nil {
		return err
	}
	c.broadcastToRooms(roomsToNotify, flag("refresh_notifications"))
	c.hub.Broadcast(s.Room.ID, flag("refresh_places"))
	return nil
}

// fetchPlaces sends the vote-ranked place list, enriched with provider
// details and, when the member has a bubble with a place id, travel time
// and distance from their starting point.
func (c *Coordinator) fetchPlaces(ctx context.Context, s *Session, cmd Command) error {
	ranked, err := c.places.RankedByRoom(s.Room.ID, s.User.ID, placeListLimit)
	if err != nil {
		return err
	}
	ranked = mergeDuplicateTopVotes(ranked)

	bubble, err := c.locations.GetBubble(s.User.ID, s.Room.ID)
	if errors.Is(err, domain.ErrNotFound) {
		bubble = nil
	} else if err != nil {
		return err
	} else {
		c.refreshBubblePlaceID(ctx, bubble)
	}

	details := make([]map[string]interface{}, len(ranked))
	var matrix []places.MatrixElement
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range ranked {
		g.Go(func() error {
			d, err := c.placeAPI.Details(gctx, p.PlaceID)
			if err != nil {
				return err
			}
			// the provider may have re-keyed the place; keep our copy current
			// without bumping its ranking
			if id, ok := d["place_id"].(string); ok && id != p.PlaceID {
				if lat, lng, ok := detailCoords(d); ok {
					if _, err := c.places.Upsert(s.Room.ID, lat, lng, id, false); err != nil {
						return err
					}
				}
			}
			d["total_votes"] = p.TotalVotes
			d["user_voted_for"] = p.UserVotedFor
			details[i] = d
			return nil
		})
	}
	if bubble != nil && bubble.PlaceID != "" && len(ranked) > 0 {
		destinations := make([]string, len(ranked))
		for i, p := range ranked {
			destinations[i] = p.PlaceID
		}
		g.Go(func() error {
			m, err := c.placeAPI.DistanceMatrix(
				gctx, bubble.PlaceID, places.TravelMode(bubble.Transportation), destinations)
			matrix = m
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i := range details {
		if i < len(matrix) {
			details[i]["travel_time"] = matrix[i].Duration
			details[i]["distance"] = matrix[i].Distance
		}
	}
	s.Client.Deliver(event("places", details))
	return nil
}

func detailCoords(d map[string]interface{}) (lat, lng float64, ok bool) {
	geometry, ok := d["geometry"].(map[string]interface{})
	if !ok {
		return 0, 0, false
	}
	location, ok := geometry["location"].(map[string]interface{})
	if !ok {
		return 0, 0, false
	}
	lat, latOK := location["lat"].(float64)
	lng, lngOK := location["lng"].(float64)
	return lat, lng, latOK && lngOK
}

// mergeDuplicateTopVotes folds later rows for the viewer's top pick into
// the first row. The ranking query surfaces a place once for the
// viewer's vote and once for everyone else's; the extra votes are summed
// into the top row and the last duplicate row is dropped.
func mergeDuplicateTopVotes(rows []repository.RankedPlace) []repository.RankedPlace {
	skip := 0
	if len(rows) > 0 && rows[0].UserVotedFor {
		for i, row := range rows[1:] {
			if row.PlaceID == rows[0].PlaceID {
				rows[0].TotalVotes += row.TotalVotes
				skip = i + 1
			}
		}
	}
	if skip != 0 {
		out := append([]repository.RankedPlace{}, rows[:skip]...)
		return append(out, rows[skip+1:]...)
	}
	return rows
}
