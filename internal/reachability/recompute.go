package reachability

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"convene/internal/geo"
	"convene/internal/isochrone"
	"convene/internal/models"
	"convene/internal/repository"
)

// Room fold states.
const (
	StateIdle             = "idle"
	StateAwaitingGeometry = "awaiting_geometry"
	StateFolded           = "folded"
	StateEmpty            = "empty"
)

const recomputeTimeout = 2 * time.Minute

// Fetcher is the orchestrator side of a recompute: one geometry per
// bubble that could be fetched.
type Fetcher interface {
	FetchAll(ctx context.Context, bubbles []models.LocationBubble) []isochrone.MemberIsochrone
}

// Broadcaster lets the fold announce area changes to a room group.
type Broadcaster interface {
	Broadcast(roomID string, payload interface{})
}

// Recomputer folds the members' reachable areas into the room's shared
// meeting area whenever a bubble or the member list changes.
type Recomputer struct {
	rooms         *repository.RoomRepository
	locations     *repository.LocationRepository
	intersections *repository.IntersectionRepository
	fetcher       Fetcher
	hub           Broadcaster
	log           *zap.Logger

	mu     sync.Mutex
	states map[string]string
}

func NewRecomputer(
	rooms *repository.RoomRepository,
	locations *repository.LocationRepository,
	intersections *repository.IntersectionRepository,
	fetcher Fetcher,
	hub Broadcaster,
	log *zap.Logger,
) *Recomputer {
	return &Recomputer{
		rooms:         rooms,
		locations:     locations,
		intersections: intersections,
		fetcher:       fetcher,
		hub:           hub,
		log:           log,
		states:        make(map[string]string),
	}
}

// State reports the room's current fold state.
func (r *Recomputer) State(roomID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[roomID]; ok {
		return s
	}
	return StateIdle
}

func (r *Recomputer) setState(roomID, state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[roomID] = state
}

// Trigger starts a recompute without making the caller wait for it.
func (r *Recomputer) Trigger(roomID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recomputeTimeout)
		defer cancel()
		if err := r.Recompute(ctx, roomID); err != nil {
			r.log.Error("area recompute failed", zap.String("room_id", roomID), zap.Error(err))
		}
	}()
}

// Recompute fetches every member's reachable area and folds them, in
// bubble order, into the stored meeting area. Fewer bubbles than the
// room needs clears the stored area. Any failed fetch aborts the whole
// pass so a member is never silently left out of the fold.
func (r *Recomputer) Recompute(ctx context.Context, roomID string) error {
	r.setState(roomID, StateAwaitingGeometry)

	bubbles, err := r.locations.ListByRoom(roomID)
	if err != nil {
		r.setState(roomID, StateIdle)
		return err
	}
	members, err := r.rooms.Members(roomID)
	if err != nil {
		r.setState(roomID, StateIdle)
		return err
	}
	required := 2
	if len(members) <= 1 {
		required = 1
	}
	if len(bubbles) < required {
		if err := r.intersections.DeleteByRoom(roomID); err != nil {
			r.setState(roomID, StateIdle)
			return err
		}
		r.setState(roomID, StateIdle)
		r.hub.Broadcast(roomID, map[string]interface{}{"refresh_area": true})
		return nil
	}

	isochrones := r.fetcher.FetchAll(ctx, bubbles)
	if len(isochrones) < len(bubbles) {
		r.setState(roomID, StateIdle)
		return fmt.Errorf("area recompute aborted: %d of %d member areas unavailable",
			len(bubbles)-len(isochrones), len(bubbles))
	}

	folded := isochrones[0].Geometry
	for _, member := range isochrones[1:] {
		folded, err = folded.Intersection(member.Geometry)
		if err != nil {
			r.setState(roomID, StateIdle)
			return err
		}
		if folded.IsEmpty() || folded.Area() == 0 {
			if err := r.intersections.DeleteByRoom(roomID); err != nil {
				r.setState(roomID, StateIdle)
				return err
			}
			r.setState(roomID, StateEmpty)
			r.hub.Broadcast(roomID, map[string]interface{}{"refresh_area": true})
			return nil
		}
	}

	if err := r.store(roomID, folded); err != nil {
		r.setState(roomID, StateIdle)
		return err
	}
	r.setState(roomID, StateFolded)
	r.hub.Broadcast(roomID, map[string]interface{}{"refresh_area": true})
	return nil
}

func (r *Recomputer) store(roomID string, g geo.Geometry) error {
	raw, err := g.GeoJSON()
	if err != nil {
		return err
	}
	var parts struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return err
	}
	lng, lat, ok := g.Centroid()
	if !ok {
		return fmt.Errorf("folded area has no centroid")
	}
	return r.intersections.Upsert(&models.Intersection{
		RoomID:      roomID,
		Type:        parts.Type,
		Coordinates: string(parts.Coordinates),
		CentroidLat: lat,
		CentroidLng: lng,
	})
}
