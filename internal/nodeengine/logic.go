package nodeengine

import (
	"context"
	"math"
)

// Built-in logic node type tags (spec §4.H "Built-in node families").
const (
	NodeLogicSmartMatch = "logic.smart_match"
	NodeLogicGeoFence   = "logic.geo_fence"
)

// Candidate is one scored option considered by SmartMatchHandler.
type Candidate struct {
	ID     string
	Fields map[string]any
}

// SmartMatchHandler scores inputs["candidates"] against Config["weights"]
// (map[string]float64 of field -> weight) and outputs the best match's id,
// used for lead-to-listing or lead-to-agent affinity matching.
type SmartMatchHandler struct{}

func (SmartMatchHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "target", Type: PortObject}, {Name: "candidates", Type: PortArray}},
		Outputs: []Port{{Name: "best_match_id", Type: PortString}, {Name: "score", Type: PortNumber}},
	}
}

func (SmartMatchHandler) Execute(_ context.Context, node Node, inputs map[string]any, _ *Context) (any, error) {
	target, _ := inputs["target"].(map[string]any)
	candidates, _ := inputs["candidates"].([]Candidate)
	weights, _ := node.Config["weights"].(map[string]any)

	var bestID string
	bestScore := math.Inf(-1)
	for _, c := range candidates {
		score := scoreCandidate(target, c.Fields, weights)
		if score > bestScore {
			bestScore = score
			bestID = c.ID
		}
	}
	if bestID == "" {
		return map[string]any{"best_match_id": "", "score": 0.0}, nil
	}
	return map[string]any{"best_match_id": bestID, "score": bestScore}, nil
}

func scoreCandidate(target, candidate map[string]any, weights map[string]any) float64 {
	var total float64
	for field, w := range weights {
		weight, _ := toFloat(w)
		tv, tok := target[field]
		cv, cok := candidate[field]
		if !tok || !cok {
			continue
		}
		if tf, tfok := toFloat(tv); tfok {
			cf, cfok := toFloat(cv)
			if !cfok {
				continue
			}
			diff := math.Abs(tf - cf)
			total += weight / (1 + diff)
			continue
		}
		if tv == cv {
			total += weight
		}
	}
	return total
}

// GeoFenceHandler reports whether inputs["lat"]/inputs["lng"] fall inside
// the circular fence described by Config["center_lat"]/Config["center_lng"]
// /Config["radius_km"], using the haversine great-circle distance.
type GeoFenceHandler struct{}

func (GeoFenceHandler) Describe() Descriptor {
	return Descriptor{
		Inputs:  []Port{{Name: "lat", Type: PortNumber}, {Name: "lng", Type: PortNumber}},
		Outputs: []Port{{Name: "inside", Type: PortBoolean}, {Name: "distance_km", Type: PortNumber}},
	}
}

func (GeoFenceHandler) Execute(_ context.Context, node Node, inputs map[string]any, _ *Context) (any, error) {
	lat, _ := toFloat(inputs["lat"])
	lng, _ := toFloat(inputs["lng"])
	centerLat, _ := toFloat(node.Config["center_lat"])
	centerLng, _ := toFloat(node.Config["center_lng"])
	radiusKm, _ := toFloat(node.Config["radius_km"])

	dist := haversineKm(lat, lng, centerLat, centerLng)
	return map[string]any{"inside": dist <= radiusKm, "distance_km": dist}, nil
}

const earthRadiusKm = 6371.0

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}
