package routing

import (
	"github.com/minh/wayloop/internal/model"
)

// position of a stop inside a route; the weight tables differ per position.
type position int

const (
	posFirst position = iota
	posMiddle
	posLast
)

// weights blend the four per-stop criteria into one combined score.
type weights struct {
	dist    float64
	sim     float64
	rating  float64
	bearing float64
}

var (
	firstStop        = weights{dist: 0.10, sim: 0.45, rating: 0.45}
	midZigzagHighSim = weights{dist: 0.15, sim: 0.50, rating: 0.30, bearing: 0.05}
	midZigzagLowSim  = weights{dist: 0.25, sim: 0.10, rating: 0.40, bearing: 0.25}
	midCircular      = weights{dist: 0.30, sim: 0.10, rating: 0.20, bearing: 0.40}
	lastZigzag       = weights{dist: 0.40, sim: 0.30, rating: 0.30}
	lastCircular     = weights{dist: 0.40, sim: 0.10, rating: 0.20, bearing: 0.30}
)

// highSimThreshold switches middle-stop zigzag scoring to the
// similarity-heavy table.
const highSimThreshold = 0.8

func weightsFor(pos position, circular bool, similarity float64) weights {
	switch pos {
	case posFirst:
		return firstStop
	case posLast:
		if circular {
			return lastCircular
		}
		return lastZigzag
	default:
		if circular {
			return midCircular
		}
		if similarity >= highSimThreshold {
			return midZigzagHighSim
		}
		return midZigzagLowSim
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// combined blends the criteria under the given weights. bearingScore is
// ignored when the table carries no bearing weight (first stop, zigzag last).
func combined(w weights, distScore, sim, rating, bearingScore float64) float64 {
	return w.dist*distScore + w.sim*sim + w.rating*rating + w.bearing*bearingScore
}

// better orders candidates: strictly higher combined score wins; ties break
// by descending similarity, then descending rating, then ascending id.
func better(a model.POI, sa float64, b model.POI, sb float64) bool {
	if sa != sb {
		return sa > sb
	}
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	if a.Rating != b.Rating {
		return a.Rating > b.Rating
	}
	return a.ID < b.ID
}

// categoryOf prefers the query category a POI was retrieved under, falling
// back to its stored type.
func categoryOf(p *model.POI) string {
	if p.Category != "" {
		return p.Category
	}
	return p.POIType
}
