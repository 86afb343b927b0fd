package isochrone

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"convene/internal/geo"
	"convene/internal/models"
)

// fetchConcurrency bounds one batch of per-member isochrone requests.
const fetchConcurrency = 16

// MemberIsochrone pairs a member's bubble with their reachable area.
type MemberIsochrone struct {
	BubbleID uint
	UserID   uint
	Geometry geo.Geometry
	Raw      json.RawMessage
}

// Orchestrator issues one isochrone request per location bubble,
// concurrently, and waits for the whole batch.
type Orchestrator struct {
	client *Client
	log    *zap.Logger
}

func NewOrchestrator(client *Client, log *zap.Logger) *Orchestrator {
	return &Orchestrator{client: client, log: log}
}

// FetchAll returns one entry per bubble whose request succeeded, in the
// input (bubble id) order. A malformed response drops that member from
// the batch; siblings keep going.
func (o *Orchestrator) FetchAll(ctx context.Context, bubbles []models.LocationBubble) []MemberIsochrone {
	results := make([]*MemberIsochrone, len(bubbles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, bubble := range bubbles {
		g.Go(func() error {
			geomArea, raw, err := o.client.FetchPolygon(
				gctx,
				bubble.Region,
				bubble.Latitude,
				bubble.Longitude,
				bubble.Transportation,
				bubble.BudgetSeconds(),
				fmt.Sprintf("%d", bubble.ID),
			)
			if err != nil {
				o.log.Error("isochrone fetch failed for member",
					zap.Uint("user_id", bubble.UserID),
					zap.String("room_id", bubble.RoomID),
					zap.Error(err))
				return nil
			}
			results[i] = &MemberIsochrone{
				BubbleID: bubble.ID,
				UserID:   bubble.UserID,
				Geometry: geomArea,
				Raw:      raw,
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]MemberIsochrone, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}
