// Package routing implements the route resolver: coordinate normalization,
// the directions-provider client with its one-shot shape retry, and
// minimal-distance candidate selection.
package routing

import (
	"fmt"

	apperrors "github.com/Abir7109/neon-trace-backend/internal/errors"
)

// LatLng is a validated geographic point.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// CoerceLatLng normalizes the heterogeneous coordinate shapes callers send:
// an object with lat/lng fields, or a bare 2-element pair whose axis order is
// inferred (see coercePair).
func CoerceLatLng(raw any) (LatLng, error) {
	switch v := raw.(type) {
	case map[string]any:
		lat, latOK := asFloat(v["lat"])
		lng, lngOK := asFloat(v["lng"])
		if !latOK || !lngOK {
			return LatLng{}, apperrors.ValidationError("coordinate object must have numeric lat and lng fields")
		}
		return validate(lat, lng)
	case []any:
		if len(v) != 2 {
			return LatLng{}, apperrors.ValidationError(fmt.Sprintf("coordinate pair must have exactly 2 elements, got %d", len(v)))
		}
		first, firstOK := asFloat(v[0])
		second, secondOK := asFloat(v[1])
		if !firstOK || !secondOK {
			return LatLng{}, apperrors.ValidationError("coordinate pair elements must be numeric")
		}
		return coercePair(first, second)
	default:
		return LatLng{}, apperrors.ValidationError("coordinate must be an object with lat/lng or a 2-element pair")
	}
}

// coercePair decides the axis order of a bare pair. It is read as [lat,lng]
// unless the first value cannot be a latitude (beyond the 90-degree bound),
// or the first value is negative while the second fits the latitude range —
// the western-longitude-first shape (e.g. [-73.0,40.0]) that GeoJSON-ordered
// callers send. Ambiguous pairs like [10,20] are deliberately read as
// [lat,lng]; existing callers depend on that reading.
func coercePair(first, second float64) (LatLng, error) {
	if first > 90 || first < -90 {
		return validate(second, first)
	}
	if first < 0 && second >= 0 && second <= 90 {
		return validate(second, first)
	}
	return validate(first, second)
}

func validate(lat, lng float64) (LatLng, error) {
	if lat < -90 || lat > 90 {
		return LatLng{}, apperrors.ValidationError(fmt.Sprintf("latitude %v out of range [-90,90]", lat))
	}
	if lng < -180 || lng > 180 {
		return LatLng{}, apperrors.ValidationError(fmt.Sprintf("longitude %v out of range [-180,180]", lng))
	}
	return LatLng{Lat: lat, Lng: lng}, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
