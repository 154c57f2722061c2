package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"backend-tripalarm/internal/shared/geo"

	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("address not found")

// Client resolves display names for coordinates and coordinates for
// addresses. Reverse lookups never fail: callers get a fallback label.
type Client struct {
	baseURL string
	http    *http.Client
	rdb     *redis.Client
	ttl     time.Duration
}

// NewClient returns a client; rdb may be nil to disable caching.
func NewClient(baseURL string, timeout time.Duration, rdb *redis.Client, ttl time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		rdb:     rdb,
		ttl:     ttl,
	}
}

func FallbackLabel(p geo.GeoPoint) string {
	return p.String()
}

func cacheKey(p geo.GeoPoint) string {
	return fmt.Sprintf("geocode:%.5f:%.5f", p.Lat, p.Lng)
}

type reverseResponse struct {
	Label string `json:"label"`
}

type searchResponse struct {
	Lat   *float64 `json:"lat"`
	Lng   *float64 `json:"lng"`
	Label string   `json:"label"`
}

func (c *Client) Label(ctx context.Context, p geo.GeoPoint) string {
	if c.rdb != nil {
		if label, err := c.rdb.Get(ctx, cacheKey(p)).Result(); err == nil && label != "" {
			return label
		}
	}

	label, err := c.reverse(ctx, p)
	if err != nil {
		log.Printf("geocode reverse error: %v", err)
		return FallbackLabel(p)
	}

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, cacheKey(p), label, c.ttl).Err(); err != nil {
			log.Printf("geocode cache error: %v", err)
		}
	}
	return label
}

func (c *Client) reverse(ctx context.Context, p geo.GeoPoint) (string, error) {
	if c.baseURL == "" {
		return "", errors.New("geocoder not configured")
	}
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(p.Lat, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(p.Lng, 'f', -1, 64))

	var out reverseResponse
	if err := c.get(ctx, "/reverse?"+q.Encode(), &out); err != nil {
		return "", err
	}
	if out.Label == "" {
		return "", errors.New("empty label")
	}
	return out.Label, nil
}

// Search resolves an address to a coordinate.
func (c *Client) Search(ctx context.Context, address string) (geo.GeoPoint, string, error) {
	if c.baseURL == "" {
		return geo.GeoPoint{}, "", errors.New("geocoder not configured")
	}
	q := url.Values{}
	q.Set("q", address)

	var out searchResponse
	if err := c.get(ctx, "/search?"+q.Encode(), &out); err != nil {
		return geo.GeoPoint{}, "", err
	}
	if out.Lat == nil || out.Lng == nil {
		return geo.GeoPoint{}, "", ErrNotFound
	}
	p := geo.GeoPoint{Lat: *out.Lat, Lng: *out.Lng}
	if !p.Valid() {
		return geo.GeoPoint{}, "", geo.ErrInvalidCoordinate
	}
	label := out.Label
	if label == "" {
		label = address
	}
	return p, label, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("geocoder status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
