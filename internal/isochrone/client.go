package isochrone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"convene/internal/domain"
	"convene/internal/geo"
)

// Client talks to the travel-time provider. One POST per (source, mode,
// budget) returns a GeoJSON feature whose geometry is the reachable area.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

type source struct {
	Lat float64                    `json:"lat"`
	Lng float64                    `json:"lng"`
	ID  string                     `json:"id"`
	TM  map[string]json.RawMessage `json:"tm"`
}

type polygonOptions struct {
	Serializer string `json:"serializer"`
	SRID       int    `json:"srid"`
	Values     []int  `json:"values"`
}

type polygonRequest struct {
	Sources []source    `json:"sources"`
	Polygon polygonOptions `json:"polygon"`
}

type polygonResponse struct {
	Data struct {
		Features []struct {
			Geometry json.RawMessage `json:"geometry"`
		} `json:"features"`
	} `json:"data"`
}

// FetchPolygon requests the reachable area for one source. The provider
// degrades to non-JSON bodies under load; that surfaces as
// ErrExternalService, never a panic.
func (c *Client) FetchPolygon(ctx context.Context, region string, lat, lng float64, mode string, budgetSeconds int, sourceID string) (geo.Geometry, json.RawMessage, error) {
	reqBody := polygonRequest{
		Sources: []source{{
			Lat: lat,
			Lng: lng,
			ID:  sourceID,
			TM:  map[string]json.RawMessage{mode: json.RawMessage(`{}`)},
		}},
		Polygon: polygonOptions{
			Serializer: "geojson",
			SRID:       4326,
			Values:     []int{budgetSeconds},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return geo.Geometry{}, nil, err
	}
	url := fmt.Sprintf("%s/%s/v1/polygon?key=%s", c.baseURL, region, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return geo.Geometry{}, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return geo.Geometry{}, nil, fmt.Errorf("%w: %v", domain.ErrExternalService, err)
	}
	defer resp.Body.Close()

	var out polygonResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.log.Error("isochrone call returned malformed body",
			zap.String("region", region), zap.String("mode", mode), zap.Error(err))
		return geo.Geometry{}, nil, fmt.Errorf("%w: %v", domain.ErrExternalService, err)
	}
	if len(out.Data.Features) == 0 {
		c.log.Error("isochrone call returned no features",
			zap.String("region", region), zap.String("mode", mode))
		return geo.Geometry{}, nil, fmt.Errorf("%w: empty feature set", domain.ErrExternalService)
	}
	raw := out.Data.Features[0].Geometry
	g, err := geo.FromGeoJSON(raw)
	if err != nil {
		return geo.Geometry{}, nil, fmt.Errorf("%w: bad geometry: %v", domain.ErrExternalService, err)
	}
	return g, raw, nil
}
