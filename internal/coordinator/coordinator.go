package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"convene/internal/domain"
	"convene/internal/isochrone"
	"convene/internal/models"
	"convene/internal/places"
	"convene/internal/reachability"
	"convene/internal/repository"
	"convene/internal/ws"
)

// Session is one member's live attachment to a room.
type Session struct {
	User   *models.User
	Room   *models.Room
	Client *ws.Client
}

// Command is the decoded client frame. Fields are a union across all
// commands; each handler reads the ones it needs.
type Command struct {
	Command        string  `json:"command"`
	Name           string  `json:"name"`
	Message        string  `json:"message"`
	User           string  `json:"user"`
	UID            string  `json:"uid"`
	Query          string  `json:"query"`
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	Address        string  `json:"address"`
	Transportation string  `json:"transportation"`
	Hours          int     `json:"hours"`
	Minutes        int     `json:"minutes"`
	PlaceID        string  `json:"place_id"`
	ID             string  `json:"id"`
	Token          string  `json:"token"`
	RoomID         string  `json:"room_id"`
	Privacy        bool    `json:"privacy"`
}

type handlerFunc func(ctx context.Context, s *Session, cmd Command) error

// Coordinator dispatches room commands, runs their side effects and fans
// the resulting refresh events out to every affected room group.
type Coordinator struct {
	users         *repository.UserRepository
	rooms         *repository.RoomRepository
	messages      *repository.MessageRepository
	notifications *repository.NotificationRepository
	locations     *repository.LocationRepository
	intersections *repository.IntersectionRepository
	joinRequests  *repository.JoinRequestRepository
	places        *repository.PlaceRepository

	resolver   *isochrone.RegionResolver
	recomputer *reachability.Recomputer
	placeAPI   *places.Client
	hub        *ws.RoomHub
	log        *zap.Logger

	handlers map[string]handlerFunc
	inflight sync.WaitGroup
}

func NewCoordinator(
	users *repository.UserRepository,
	rooms *repository.RoomRepository,
	messages *repository.MessageRepository,
	notifications *repository.NotificationRepository,
	locations *repository.LocationRepository,
	intersections *repository.IntersectionRepository,
	joinRequests *repository.JoinRequestRepository,
	placeRepo *repository.PlaceRepository,
	resolver *isochrone.RegionResolver,
	recomputer *reachability.Recomputer,
	placeAPI *places.Client,
	hub *ws.RoomHub,
	log *zap.Logger,
) *Coordinator {
	c := &Coordinator{
		users:         users,
		rooms:         rooms,
		messages:      messages,
		notifications: notifications,
		locations:     locations,
		intersections: intersections,
		joinRequests:  joinRequests,
		places:        placeRepo,
		resolver:      resolver,
		recomputer:    recomputer,
		placeAPI:      placeAPI,
		hub:           hub,
		log:           log,
	}
	c.handlers = map[string]handlerFunc{
		"fetch_messages":                c.guarded(c.fetchMessages),
		"fetch_allowed_status":          c.allowedStatus,
		"fetch_display_name":            c.fetchDisplayName,
		"get_isochrone_service_region":  c.guarded(c.regionIsochrones),
		"update_display_name":           c.updateDisplayName,
		"fetch_users_missing_locations": c.guarded(c.fetchUsersMissingLocations),
		"fetch_intersection":            c.guarded(c.fetchIntersection),
		"fetch_location_bubble":         c.guarded(c.fetchLocationBubble),
		"update_location_bubble":        c.guarded(c.updateLocationBubble),
		"fetch_area_query":              c.guarded(c.fetchAreaQuery),
		"update_area_query":             c.guarded(c.updateAreaQuery),
		"save_place":                    c.guarded(c.savePlace),
		"fetch_places":                  c.guarded(c.fetchPlaces),
		"fetch_room_name":               c.guarded(c.fetchRoomName),
		"fetch_members":                 c.guarded(c.fetchMembers),
		"update_room_name":              c.guarded(c.updateRoomName),
		"exit_room":                     c.guarded(c.exitRoom),
		"calculate_intersection":        c.guarded(c.calculateIntersection),
		"approve_user":                  c.guarded(c.approveUser),
		"approve_all_users":             c.guarded(c.approveAllUsers),
		"reject_user":                   c.guarded(c.rejectUser),
		"fetch_join_requests":           c.guarded(c.fetchJoinRequests),
		"fetch_user_notifications":      c.guarded(c.fetchUserNotifications),
		"fetch_privacy":                 c.guarded(c.fetchPrivacy),
		"update_privacy":                c.guarded(c.updatePrivacy),
		"get_next_page_places":          c.guarded(c.nextPagePlaces),
		"join_room":                     c.joinRoom,
		"vote_place":                    c.guarded(c.votePlace),
	}
	return c
}

// HandleFrame decodes one client frame and dispatches it. Frames without
// a known command are treated as chat messages. Each handler runs on its
// own goroutine so a slow command never stalls the read loop.
func (c *Coordinator) HandleFrame(ctx context.Context, s *Session, raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		c.log.Warn("dropping undecodable frame",
			zap.String("room_id", s.Room.ID), zap.Uint("user_id", s.User.ID))
		return
	}
	handler, ok := c.handlers[cmd.Command]
	if !ok {
		handler = c.guarded(c.chatMessage)
	}
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		err := handler(ctx, s, cmd)
		if err == nil {
			return
		}
		if errors.Is(err, domain.ErrValidation) {
			// rejected writes answer only the issuing socket
			s.Client.Deliver(event("validation_error", err.Error()))
			c.log.Warn("command rejected",
				zap.String("command", cmd.Command),
				zap.String("room_id", s.Room.ID),
				zap.Uint("user_id", s.User.ID),
				zap.Error(err))
			return
		}
		c.log.Error("command failed",
			zap.String("command", cmd.Command),
			zap.String("room_id", s.Room.ID),
			zap.Uint("user_id", s.User.ID),
			zap.Error(err))
	}()
}

// wait blocks until every dispatched command has finished.
func (c *Coordinator) wait() {
	c.inflight.Wait()
}

// notAllowed reports whether the member is locked out: not in the room
// while the room is private. Membership is re-read per command because
// it can change under a live socket.
func (c *Coordinator) notAllowed(s *Session) (bool, error) {
	room, err := c.rooms.Get(s.Room.ID)
	if err != nil {
		return false, err
	}
	if !room.Private {
		return false, nil
	}
	member, err := c.rooms.IsMember(room.ID, s.User.ID)
	if err != nil {
		return false, err
	}
	return !member, nil
}

// guarded intercepts the command when the member is locked out: the
// blocked issuer gets a join request queued and a not_allowed reply, so
// asking a private room for anything is asking to enter it.
func (c *Coordinator) guarded(h handlerFunc) handlerFunc {
	return func(ctx context.Context, s *Session, cmd Command) error {
		blocked, err := c.notAllowed(s)
		if err != nil {
			return err
		}
		if blocked {
			return c.requestEntry(s)
		}
		return h(ctx, s, cmd)
	}
}

// roomsOfAllMembers is the union of every member's room memberships; a
// change here may need a notification refresh in all of them.
func (c *Coordinator) roomsOfAllMembers(roomID string) ([]string, error) {
	members, err := c.rooms.Members(roomID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, m := range members {
		ids, err := c.rooms.RoomIDsOfUser(m.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out, nil
}

func (c *Coordinator) broadcastToRooms(roomIDs []string, payload interface{}) {
	for _, id := range roomIDs {
		c.hub.Broadcast(id, payload)
	}
}

// notifyAllMembers creates one notification per room member; build fills
// in the payload for each recipient.
func (c *Coordinator) notifyAllMembers(roomID string, build func(recipient *models.User) *models.Notification) error {
	members, err := c.rooms.Members(roomID)
	if err != nil {
		return err
	}
	for i := range members {
		if err := c.notifications.Create(build(&members[i])); err != nil {
			return err
		}
	}
	return nil
}

func event(key string, value interface{}) map[string]interface{} {
	return map[string]interface{}{key: value}
}

func flag(key string) map[string]interface{} {
	return map[string]interface{}{key: true}
}
