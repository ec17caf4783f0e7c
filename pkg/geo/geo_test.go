package geo

import (
	"math"
	"testing"

	"github.com/minh/wayloop/internal/model"
)

const floatTol = 1e-6

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestHaversineKm_KnownDistance(t *testing.T) {
	// Saigon Notre-Dame Basilica to Ben Thanh Market, ~1.1 km.
	a := model.Location{Lat: 10.7798, Lon: 106.6990}
	b := model.Location{Lat: 10.7721, Lon: 106.6980}

	d := HaversineKm(a, b)
	if d < 0.7 || d > 1.1 {
		t.Errorf("expected ~0.86 km, got %f", d)
	}
}

func TestHaversineKm_Symmetric(t *testing.T) {
	a := model.Location{Lat: 10.80, Lon: 106.77}
	b := model.Location{Lat: 10.85, Lon: 106.70}

	if !almostEqual(HaversineKm(a, b), HaversineKm(b, a), floatTol) {
		t.Error("haversine should be symmetric")
	}
}

func TestHaversineKm_ZeroDistance(t *testing.T) {
	a := model.Location{Lat: 10.80, Lon: 106.77}
	if d := HaversineKm(a, a); d != 0 {
		t.Errorf("distance to self should be 0, got %f", d)
	}
}

func TestBearing_CardinalDirections(t *testing.T) {
	origin := model.Location{Lat: 10.80, Lon: 106.77}

	tests := []struct {
		name string
		to   model.Location
		want float64
	}{
		{"north", model.Location{Lat: 10.81, Lon: 106.77}, 0},
		{"east", model.Location{Lat: 10.80, Lon: 106.78}, 90},
		{"south", model.Location{Lat: 10.79, Lon: 106.77}, 180},
		{"west", model.Location{Lat: 10.80, Lon: 106.76}, 270},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bearing(origin, tt.to)
			if BearingDiff(got, tt.want) > 0.5 {
				t.Errorf("bearing to %s: got %f, want ~%f", tt.name, got, tt.want)
			}
		})
	}
}

func TestBearingDiff_Normalization(t *testing.T) {
	tests := []struct {
		b1, b2, want float64
	}{
		{0, 0, 0},
		{0, 90, 90},
		{0, 180, 180},
		{0, 270, 90},   // 270 collapses to 90
		{350, 10, 20},  // wraps across north
		{180, 0, 180},
	}

	for _, tt := range tests {
		got := BearingDiff(tt.b1, tt.b2)
		if !almostEqual(got, tt.want, floatTol) {
			t.Errorf("BearingDiff(%f, %f) = %f, want %f", tt.b1, tt.b2, got, tt.want)
		}
		if got < 0 || got > 180 {
			t.Errorf("BearingDiff(%f, %f) = %f outside [0,180]", tt.b1, tt.b2, got)
		}
	}
}

func TestZigzagScore(t *testing.T) {
	if s := ZigzagScore(45, 45); !almostEqual(s, 1.0, floatTol) {
		t.Errorf("straight continuation should score 1.0, got %f", s)
	}
	if s := ZigzagScore(0, 180); !almostEqual(s, 0.0, floatTol) {
		t.Errorf("full reversal should score 0.0, got %f", s)
	}
	if s := ZigzagScore(0, 90); !almostEqual(s, 0.5, floatTol) {
		t.Errorf("right angle should score 0.5, got %f", s)
	}
}

func TestCircularScore(t *testing.T) {
	if s := CircularScore(0, 90); !almostEqual(s, 1.0, floatTol) {
		t.Errorf("90° turn should score 1.0, got %f", s)
	}
	if s := CircularScore(0, 270); !almostEqual(s, 1.0, floatTol) {
		t.Errorf("270° turn (90° the other way) should score 1.0, got %f", s)
	}
	if s := CircularScore(45, 45); !almostEqual(s, 0.0, floatTol) {
		t.Errorf("no turn should score 0.0, got %f", s)
	}
	if s := CircularScore(0, 180); !almostEqual(s, 0.0, floatTol) {
		t.Errorf("reversal should score 0.0, got %f", s)
	}
}

func TestDistanceMatrix_SymmetricZeroDiagonal(t *testing.T) {
	pts := []model.Location{
		{Lat: 10.80, Lon: 106.77},
		{Lat: 10.81, Lon: 106.77},
		{Lat: 10.80, Lon: 106.78},
	}

	m := DistanceMatrix(pts)
	if len(m) != 3 {
		t.Fatalf("expected 3x3 matrix, got %d rows", len(m))
	}
	for i := range m {
		if m[i][i] != 0 {
			t.Errorf("diagonal [%d][%d] should be 0, got %f", i, i, m[i][i])
		}
		for j := range m[i] {
			if !almostEqual(m[i][j], m[j][i], floatTol) {
				t.Errorf("matrix not symmetric at [%d][%d]", i, j)
			}
		}
	}
	if m[0][1] < 1000 || m[0][1] > 1300 {
		t.Errorf("expected ~1.1 km between rows 0 and 1, got %f m", m[0][1])
	}
}

func TestTimeMatrix_WalkingSpeed(t *testing.T) {
	dist := [][]float64{
		{0, 5000},
		{5000, 0},
	}

	// 5 km at 5 km/h is exactly one hour.
	tm := TimeMatrix(dist, 5.0)
	if !almostEqual(tm[0][1], 60.0, floatTol) {
		t.Errorf("5 km at 5 km/h should take 60 min, got %f", tm[0][1])
	}
}

func TestTravelMinutes(t *testing.T) {
	a := model.Location{Lat: 10.80, Lon: 106.77}
	b := model.Location{Lat: 10.81, Lon: 106.77}

	walk := TravelMinutes(a, b, 5.0)
	drive := TravelMinutes(a, b, 40.0)
	if walk <= drive {
		t.Errorf("walking (%f min) should take longer than driving (%f min)", walk, drive)
	}
}
