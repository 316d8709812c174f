// Package valhalla computes point-to-point routes against a Valhalla-style
// routing service. One request carries an ordered list of waypoints and a
// travel mode; the response shape comes back as an encoded polyline which is
// decoded into coordinates on the way out.
package valhalla

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"golang.org/x/time/rate"

	"github.com/atlasworks/geoservices/internal/resilience"
	"github.com/atlasworks/geoservices/pkg/polyline"
)

const (
	defaultBaseURL     = "https://valhalla.mapzen.com/route"
	defaultReadTimeout = 60 * time.Second
)

// TravelMode selects the transport profile for a route.
type TravelMode string

// Supported travel modes.
const (
	ModeWalk            TravelMode = "walk"
	ModeCar             TravelMode = "car"
	ModePublicTransport TravelMode = "public_transport"
	ModeBicycle         TravelMode = "bicycle"
)

// costingByMode maps a travel mode to the service's costing model.
var costingByMode = map[TravelMode]string{
	ModeWalk:            "pedestrian",
	ModeCar:             "auto",
	ModePublicTransport: "bus",
	ModeBicycle:         "bicycle",
}

// costingAutoShortest is the costing model for car routes optimized for
// distance instead of travel time.
const costingAutoShortest = "auto_shortest"

// Units for reported route lengths.
const (
	UnitsKilometers = "kilometers"
	UnitsMiles      = "miles"
)

// Waypoint is one stop along the requested route, longitude first.
type Waypoint struct {
	Longitude float64
	Latitude  float64
}

// RouteRequest describes one route computation. Waypoints are visited in
// order; at least two are required. Shortest switches car routes from
// fastest to shortest distance.
type RouteRequest struct {
	Waypoints []Waypoint
	Mode      TravelMode
	Shortest  bool
}

// RouteResult is the outcome of a route computation. Found is false when the
// service could not build a route between the waypoints; the remaining
// fields are then zero. Length is in the client's configured units, Duration
// in seconds.
type RouteResult struct {
	Shape    []polyline.Coordinate
	Length   float64
	Duration float64
	Found    bool
}

// LineString returns the route shape as a geometry in EPSG:4326, or nil when
// the shape has fewer than two points.
func (r *RouteResult) LineString() *geom.LineString {
	return polyline.LineString(r.Shape)
}

// Client issues route requests. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	units      string
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the routing endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithUnits sets the distance units for reported lengths.
func WithUnits(units string) Option {
	return func(c *Client) {
		if units != "" {
			c.units = units
		}
	}
}

// WithRateLimit sets the requests-per-second limit for outbound calls.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
	}
}

// WithRetry overrides the transient-failure retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// NewClient creates a routing client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultReadTimeout},
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		units:      UnitsKilometers,
		limiter:    rate.NewLimiter(10, 10),
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// routeLocation is one waypoint in the request document.
type routeLocation struct {
	Lon  float64 `json:"lon"`
	Lat  float64 `json:"lat"`
	Type string  `json:"type"`
}

// routeDocument is the JSON document carried in the request's json query
// parameter.
type routeDocument struct {
	Locations         []routeLocation `json:"locations"`
	Costing           string          `json:"costing"`
	DirectionsOptions struct {
		Units     string `json:"units"`
		Narrative bool   `json:"narrative"`
	} `json:"directions_options"`
}

// routeResponse is the subset of the service response the client reads.
type routeResponse struct {
	Trip *struct {
		Legs []struct {
			Shape   string `json:"shape"`
			Summary struct {
				Length float64 `json:"length"`
				Time   float64 `json:"time"`
			} `json:"summary"`
		} `json:"legs"`
	} `json:"trip"`
}

// Route computes one route. A service response of 400 means no route exists
// between the waypoints and yields Found=false rather than an error.
func (c *Client) Route(ctx context.Context, req RouteRequest) (*RouteResult, error) {
	doc, err := c.buildDocument(req)
	if err != nil {
		return nil, err
	}

	body, status, err := c.get(ctx, doc)
	if err != nil {
		return nil, err
	}
	if status == http.StatusBadRequest {
		return &RouteResult{}, nil
	}

	var parsed routeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "valhalla: parse route response")
	}
	if parsed.Trip == nil || parsed.Trip.Legs == nil {
		return nil, &MalformedResultError{Op: "route"}
	}

	result := &RouteResult{Found: true}
	for _, leg := range parsed.Trip.Legs {
		// Valhalla shapes use six decimal digits of precision.
		shape, err := polyline.Decode(leg.Shape, polyline.Precision6)
		if err != nil {
			return nil, eris.Wrap(err, "valhalla: decode leg shape")
		}
		result.Shape = append(result.Shape, shape...)
		result.Length += leg.Summary.Length
		result.Duration += leg.Summary.Time
	}
	if len(parsed.Trip.Legs) == 0 {
		result.Found = false
	}

	return result, nil
}

// buildDocument validates the request and assembles the wire document.
// Validation failures never reach the network.
func (c *Client) buildDocument(req RouteRequest) (*routeDocument, error) {
	if len(req.Waypoints) < 2 {
		return nil, &ContractViolationError{Reason: "a route needs at least two waypoints"}
	}

	costing, ok := costingByMode[req.Mode]
	if !ok {
		return nil, &ContractViolationError{Reason: "unsupported travel mode " + string(req.Mode)}
	}
	if req.Mode == ModeCar && req.Shortest {
		costing = costingAutoShortest
	}

	doc := &routeDocument{Costing: costing}
	doc.DirectionsOptions.Units = c.units
	doc.DirectionsOptions.Narrative = false

	last := len(req.Waypoints) - 1
	for i, wp := range req.Waypoints {
		// Endpoints are stops, everything between is passed through.
		locType := "through"
		if i == 0 || i == last {
			locType = "break"
		}
		doc.Locations = append(doc.Locations, routeLocation{
			Lon: wp.Longitude, Lat: wp.Latitude, Type: locType,
		})
	}

	return doc, nil
}

// get issues the route request, retrying transient failures. A 400 status is
// returned to the caller; other non-success statuses surface as errors.
func (c *Client) get(ctx context.Context, doc *routeDocument) ([]byte, int, error) {
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, 0, eris.Wrap(err, "valhalla: encode route document")
	}

	params := url.Values{"json": {string(encoded)}}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
	reqURL := c.baseURL + "?" + params.Encode()

	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("valhalla", "route")

	type response struct {
		body   []byte
		status int
	}
	resp, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (response, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return response{}, eris.Wrap(err, "valhalla: route rate limit")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return response{}, eris.Wrap(err, "valhalla: build route request")
		}

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			return response{}, eris.Wrap(err, "valhalla: route request")
		}
		defer httpResp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return response{}, eris.Wrap(err, "valhalla: read route response")
		}

		switch {
		case httpResp.StatusCode == http.StatusOK, httpResp.StatusCode == http.StatusBadRequest:
			return response{body: body, status: httpResp.StatusCode}, nil
		case resilience.IsTransientHTTPStatus(httpResp.StatusCode):
			svcErr := &ServiceError{StatusCode: httpResp.StatusCode, Body: string(body)}
			return response{}, resilience.NewTransientError(svcErr, httpResp.StatusCode)
		default:
			return response{}, &ServiceError{StatusCode: httpResp.StatusCode, Body: string(body)}
		}
	})
	if err != nil {
		return nil, 0, err
	}

	return resp.body, resp.status, nil
}
