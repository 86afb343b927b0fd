package places

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"convene/internal/domain"
)

// detailFields is what the meeting view needs from a place lookup.
const detailFields = "formatted_phone_number,geometry,icon,name,opening_hours,url,place_id,website,rating,price_level,vicinity"

// nextPageRetryDelay paces retries while a freshly issued page token is
// still warming up on the provider side.
const nextPageRetryDelay = 500 * time.Millisecond

// Client talks to the place-search provider: text search, paged search
// continuation, detail lookups and travel-time matrices.
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

type searchResponse struct {
	Status        string            `json:"status"`
	NextPageToken string            `json:"next_page_token"`
	Results       []json.RawMessage `json:"results"`
}

// TextSearch runs one free-text query biased around a coordinate and
// returns the first page plus the continuation token, if any.
func (c *Client) TextSearch(ctx context.Context, query string, lat, lng float64) ([]json.RawMessage, string, error) {
	u := fmt.Sprintf("%s/place/textsearch/json?query=%s&location=%f,%f&key=%s",
		c.baseURL, url.QueryEscape(query), lat, lng, c.apiKey)
	var out searchResponse
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, "", err
	}
	return out.Results, out.NextPageToken, nil
}

// NextPage fetches the continuation page for a previous text search.
// The provider rejects a token it only just issued, so invalid-request
// responses are retried until the token activates or ctx expires.
func (c *Client) NextPage(ctx context.Context, token string) ([]json.RawMessage, string, error) {
	u := fmt.Sprintf("%s/place/textsearch/json?pagetoken=%s&key=%s", c.baseURL, url.QueryEscape(token), c.apiKey)
	for {
		var out searchResponse
		if err := c.getJSON(ctx, u, &out); err != nil {
			return nil, "", err
		}
		if out.Status != "INVALID_REQUEST" {
			return out.Results, out.NextPageToken, nil
		}
		c.log.Info("page token not active yet, retrying")
		select {
		case <-ctx.Done():
			return nil, "", fmt.Errorf("%w: %v", domain.ErrExternalService, ctx.Err())
		case <-time.After(nextPageRetryDelay):
		}
	}
}

// Details returns the detail object for one place. The decoded map is
// mutable so callers can attach vote counts and travel times before
// handing it to clients.
func (c *Client) Details(ctx context.Context, placeID string) (map[string]any, error) {
	u := fmt.Sprintf("%s/place/details/json?place_id=%s&fields=%s&key=%s",
		c.baseURL, url.QueryEscape(placeID), detailFields, c.apiKey)
	var out struct {
		Result map[string]any `json:"result"`
	}
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	if out.Result == nil {
		return nil, fmt.Errorf("%w: empty place detail", domain.ErrExternalService)
	}
	return out.Result, nil
}

// RefreshPlaceID asks the provider for the current canonical id of a
// possibly stale place id.
func (c *Client) RefreshPlaceID(ctx context.Context, placeID string) (string, error) {
	u := fmt.Sprintf("%s/place/details/json?place_id=%s&fields=place_id&key=%s",
		c.baseURL, url.QueryEscape(placeID), c.apiKey)
	var out struct {
		Result struct {
			PlaceID string `json:"place_id"`
		} `json:"result"`
	}
	if err := c.getJSON(ctx, u, &out); err != nil {
		return "", err
	}
	if out.Result.PlaceID == "" {
		return "", fmt.Errorf("%w: place id refresh returned nothing", domain.ErrExternalService)
	}
	return out.Result.PlaceID, nil
}

// MatrixElement is one origin-to-destination cell of a travel matrix.
type MatrixElement struct {
	Status   string          `json:"status"`
	Duration json.RawMessage `json:"duration"`
	Distance json.RawMessage `json:"distance"`
}

// TravelMode maps a bubble transportation tag onto the matrix mode the
// provider understands.
func TravelMode(transportation string) string {
	switch transportation {
	case domain.TransportBike:
		return "bicycling"
	case domain.TransportCar:
		return "driving"
	case domain.TransportWalk:
		return "walking"
	default:
		return "transit"
	}
}

// DistanceMatrix returns one element per destination, in destination
// order, for travel from the origin place with the given mode.
func (c *Client) DistanceMatrix(ctx context.Context, originPlaceID, mode string, destPlaceIDs []string) ([]MatrixElement, error) {
	dests := make([]string, len(destPlaceIDs))
	for i, id := range destPlaceIDs {
		dests[i] = "place_id:" + id
	}
	u := fmt.Sprintf("%s/distancematrix/json?key=%s&origins=place_id:%s&mode=%s&destinations=%s",
		c.baseURL, c.apiKey, url.QueryEscape(originPlaceID), mode, url.QueryEscape(strings.Join(dests, "|")))
	var out struct {
		Rows []struct {
			Elements []MatrixElement `json:"elements"`
		} `json:"rows"`
	}
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	if len(out.Rows) == 0 {
		return nil, fmt.Errorf("%w: empty distance matrix", domain.ErrExternalService)
	}
	return out.Rows[0].Elements, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrExternalService, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.log.Error("place provider returned malformed body", zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrExternalService, err)
	}
	return nil
}
