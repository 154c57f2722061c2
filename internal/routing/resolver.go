package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"backend-tripalarm/internal/shared/geo"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const maxResponseBytes = 4 << 20

// Resolver is a stateless client for the directions service. It keeps no
// cache; rate limiting is up to the caller.
type Resolver struct {
	baseURL string
	client  *http.Client
}

func NewResolver(baseURL string, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Resolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Resolve asks the directions service for a leg from -> waypoints... -> to.
// Every failure is returned as *Error.
func (r *Resolver) Resolve(ctx context.Context, from, to geo.GeoPoint, waypoints []geo.GeoPoint) (Leg, error) {
	body := directionsRequest{
		From:      from.LngLat(),
		To:        to.LngLat(),
		Waypoints: make([][]float64, 0, len(waypoints)),
	}
	for _, wp := range waypoints {
		body.Waypoints = append(body.Waypoints, wp.LngLat())
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Leg{}, &Error{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/directions", bytes.NewReader(payload))
	if err != nil {
		return Leg{}, &Error{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Leg{}, &Error{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Leg{}, &Error{StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Leg{}, &Error{StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(raw)))}
	}

	leg, err := decodeLeg(raw)
	if err != nil {
		return Leg{}, &Error{StatusCode: resp.StatusCode, Err: err}
	}
	return leg, nil
}

func decodeLeg(raw []byte) (Leg, error) {
	var resp directionsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Leg{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	route := resp.directionsRoute
	if resp.Routes != nil {
		// multi-route envelope; first route wins, alternatives are ignored
		if len(resp.Routes) == 0 {
			return Leg{}, ErrNoRoute
		}
		route = resp.Routes[0]
	}

	if route.Distance == nil || route.Duration == nil {
		if len(route.Geometry) == 0 {
			return Leg{}, ErrNoRoute
		}
		return Leg{}, fmt.Errorf("%w: missing distance or duration", ErrMalformed)
	}
	if *route.Distance < 0 || *route.Duration < 0 {
		return Leg{}, fmt.Errorf("%w: negative distance or duration", ErrMalformed)
	}

	line, err := route.Geometry.points()
	if err != nil {
		return Leg{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Leg{
		Geometry:        line,
		DistanceMeters:  *route.Distance,
		DurationSeconds: *route.Duration,
	}, nil
}

// rawGeometry accepts either a GeoJSON LineString object or a bare
// [[lng, lat], ...] coordinate array.
type rawGeometry json.RawMessage

func (g *rawGeometry) UnmarshalJSON(data []byte) error {
	*g = append((*g)[:0], data...)
	return nil
}

func (g rawGeometry) points() ([]geo.GeoPoint, error) {
	trimmed := bytes.TrimSpace(g)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var coords [][]float64
	if trimmed[0] == '{' {
		parsed, err := geojson.UnmarshalGeometry(trimmed)
		if err != nil {
			return nil, err
		}
		ls, ok := parsed.Geometry().(orb.LineString)
		if !ok {
			return nil, fmt.Errorf("unsupported geometry type %q", parsed.Geometry().GeoJSONType())
		}
		line := make([]geo.GeoPoint, 0, len(ls))
		for _, pt := range ls {
			line = append(line, geo.FromPoint(pt))
		}
		return line, nil
	}

	if err := json.Unmarshal(trimmed, &coords); err != nil {
		return nil, err
	}
	line := make([]geo.GeoPoint, 0, len(coords))
	for _, pair := range coords {
		p, err := geo.FromLngLat(pair)
		if err != nil {
			return nil, err
		}
		line = append(line, p)
	}
	return line, nil
}
