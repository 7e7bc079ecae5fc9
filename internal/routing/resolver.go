package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	apperrors "github.com/Abir7109/neon-trace-backend/internal/errors"
	"github.com/Abir7109/neon-trace-backend/internal/metrics"
)

const (
	DefaultProfile = "driving-car"

	alternativeTargetCount = 3
	alternativeShareFactor = 0.6

	requestTimeout = 20 * time.Second
)

// Route is the selected candidate plus observability context.
type Route struct {
	Geometry        []LatLng `json:"geometry"`
	DistanceMeters  *float64 `json:"distance_meters,omitempty"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	Alternatives    int      `json:"alternatives"`
	Trace           []string `json:"trace"`
}

// Resolver requests routes from an OpenRouteService-compatible directions
// provider and selects the minimal-distance candidate.
type Resolver struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewResolver(apiKey, baseURL string) *Resolver {
	return &Resolver{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

type directionsRequest struct {
	Coordinates  [][]float64        `json:"coordinates"`
	Instructions bool               `json:"instructions"`
	Options      *directionsOptions `json:"options,omitempty"`
}

type directionsOptions struct {
	AlternativeRoutes alternativeRoutes `json:"alternative_routes"`
}

type alternativeRoutes struct {
	TargetCount int     `json:"target_count"`
	ShareFactor float64 `json:"share_factor"`
}

type directionsResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Summary struct {
				Distance *float64 `json:"distance"`
				Duration *float64 `json:"duration"`
			} `json:"summary"`
		} `json:"properties"`
	} `json:"features"`
}

// Resolve requests a route with alternatives, retrying exactly once without
// the options block if the provider rejects the request shape (HTTP 400),
// and returns the shortest candidate.
func (r *Resolver) Resolve(ctx context.Context, origin, destination LatLng, profile string) (*Route, error) {
	if r.apiKey == "" {
		return nil, apperrors.ConfigurationError("missing routing provider API key")
	}
	if profile == "" {
		profile = DefaultProfile
	}

	trace := []string{
		fmt.Sprintf("origin %.6f,%.6f", origin.Lat, origin.Lng),
		fmt.Sprintf("destination %.6f,%.6f", destination.Lat, destination.Lng),
		fmt.Sprintf("profile %s", profile),
		fmt.Sprintf("requesting %d alternatives (share factor %.1f)", alternativeTargetCount, alternativeShareFactor),
	}

	// Two-state retry policy: one request with alternatives, and on a shape
	// rejection (400) a single plain retry. Every other failure propagates.
	resp, err := r.request(ctx, origin, destination, profile, true)
	if err != nil {
		if isShapeRejection(err) {
			metrics.RouteShapeRetriesTotal.Inc()
			trace = append(trace, "provider rejected request shape, retrying without alternatives")
			resp, err = r.request(ctx, origin, destination, profile, false)
		}
		if err != nil {
			return nil, err
		}
	}

	if len(resp.Features) == 0 {
		return nil, apperrors.NoRouteError("provider returned no route candidates")
	}
	trace = append(trace, fmt.Sprintf("%d candidates considered", len(resp.Features)))

	best := selectShortest(resp)
	route := &Route{
		Geometry:        swapAxes(resp.Features[best].Geometry.Coordinates),
		DistanceMeters:  resp.Features[best].Properties.Summary.Distance,
		DurationSeconds: resp.Features[best].Properties.Summary.Duration,
		Alternatives:    len(resp.Features),
		Trace:           trace,
	}
	return route, nil
}

func (r *Resolver) request(ctx context.Context, origin, destination LatLng, profile string, withAlternatives bool) (*directionsResponse, error) {
	start := time.Now()
	defer func() { metrics.RouteRequestDuration.Observe(time.Since(start).Seconds()) }()

	// Provider axis order is [lng,lat].
	reqBody := directionsRequest{
		Coordinates: [][]float64{
			{origin.Lng, origin.Lat},
			{destination.Lng, destination.Lat},
		},
		Instructions: false,
	}
	if withAlternatives {
		reqBody.Options = &directionsOptions{
			AlternativeRoutes: alternativeRoutes{
				TargetCount: alternativeTargetCount,
				ShareFactor: alternativeShareFactor,
			},
		}
	}

	raw, err := json.Marshal(reqBody)
	if err != nil {
		return nil, apperrors.InternalError("failed to marshal directions request", err)
	}

	url := fmt.Sprintf("%s/v2/directions/%s/geojson", r.baseURL, profile)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, apperrors.InternalError("failed to build directions request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		metrics.RouteRequestsTotal.WithLabelValues("transport").Inc()
		return nil, apperrors.TransportError("directions request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RouteRequestsTotal.WithLabelValues("transport").Inc()
		return nil, apperrors.TransportError("failed to read directions response", err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.RouteRequestsTotal.WithLabelValues("rejected").Inc()
		return nil, apperrors.ProviderError("directions provider rejected request", resp.StatusCode, string(body))
	}

	var parsed directionsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		metrics.RouteRequestsTotal.WithLabelValues("rejected").Inc()
		return nil, apperrors.ProviderError("directions response is malformed", resp.StatusCode, string(body))
	}

	metrics.RouteRequestsTotal.WithLabelValues("ok").Inc()
	return &parsed, nil
}

// isShapeRejection reports whether err is a provider rejection with status
// 400, the one case that allows the plain retry.
func isShapeRejection(err error) bool {
	structured := apperrors.AsStructuredError(err)
	if structured.Type != apperrors.TypeProvider {
		return false
	}
	status, ok := structured.Context["upstream_status"].(int)
	return ok && status == http.StatusBadRequest
}

// selectShortest picks the candidate with the smallest finite distance;
// candidates without a distance sort as infinitely far.
func selectShortest(resp *directionsResponse) int {
	best := 0
	bestDistance := math.Inf(1)
	for i, f := range resp.Features {
		d := math.Inf(1)
		if f.Properties.Summary.Distance != nil {
			d = *f.Properties.Summary.Distance
		}
		if d < bestDistance {
			best = i
			bestDistance = d
		}
	}
	return best
}

// swapAxes converts provider [lng,lat] pairs into LatLng points.
func swapAxes(coords [][]float64) []LatLng {
	out := make([]LatLng, 0, len(coords))
	for _, pair := range coords {
		if len(pair) < 2 {
			continue
		}
		out = append(out, LatLng{Lat: pair[1], Lng: pair[0]})
	}
	return out
}
