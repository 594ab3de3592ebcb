package geo

import (
	"math"
	"testing"

	"github.com/cris-mate/guardian-optix-sub000/internal/model"
)

func TestDistanceIdentity(t *testing.T) {
	points := []model.Location{
		{Latitude: 0, Longitude: 0},
		{Latitude: 51.5010, Longitude: -0.1416},
		{Latitude: -33.8688, Longitude: 151.2093},
	}
	for _, p := range points {
		if d := Distance(p.Latitude, p.Longitude, p.Latitude, p.Longitude); d != 0 {
			t.Errorf("Distance(p,p) = %v, want 0 for %+v", d, p)
		}
	}
}

func TestDistanceSymmetry(t *testing.T) {
	a := model.Location{Latitude: 51.5010, Longitude: -0.1416}
	b := model.Location{Latitude: 51.5170, Longitude: -0.0550}
	ab := Distance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
	ba := Distance(b.Latitude, b.Longitude, a.Latitude, a.Longitude)
	if math.Abs(ab-ba) > 1e-9 {
		t.Errorf("Distance not symmetric: %v vs %v", ab, ba)
	}
	if ab <= 0 {
		t.Errorf("Distance(a,b) = %v, want > 0", ab)
	}
}

func TestDistanceKnownPair(t *testing.T) {
	// Westminster to Tower Hamlets, roughly 6.2km.
	d := Distance(51.5010, -0.1416, 51.5170, -0.0550)
	if d < 5500 || d > 6800 {
		t.Errorf("Distance = %v m, want about 6200", d)
	}
}

func TestClassify(t *testing.T) {
	center := &model.Location{Latitude: 51.5010, Longitude: -0.1416}
	near := &model.Location{Latitude: 51.5011, Longitude: -0.1416} // ~11m north
	far := &model.Location{Latitude: 51.5200, Longitude: -0.1416}  // ~2.1km north

	tests := []struct {
		name  string
		loc   *model.Location
		fence *model.Geofence
		want  string
	}{
		{"no location", nil, &model.Geofence{Center: center, Radius: 150, Enabled: true}, model.GeofenceUnknown},
		{"no geofence", near, nil, model.GeofenceUnknown},
		{"no center", near, &model.Geofence{Radius: 150, Enabled: true}, model.GeofenceUnknown},
		{"disabled fence is a pass", far, &model.Geofence{Center: center, Radius: 150, Enabled: false}, model.GeofenceInside},
		{"disabled fence without location", nil, &model.Geofence{Center: center, Radius: 150, Enabled: false}, model.GeofenceInside},
		{"disabled fence without center", near, &model.Geofence{Radius: 150, Enabled: false}, model.GeofenceInside},
		{"inside", near, &model.Geofence{Center: center, Radius: 150, Enabled: true}, model.GeofenceInside},
		{"outside", far, &model.Geofence{Center: center, Radius: 150, Enabled: true}, model.GeofenceOutside},
		{"exact center", center, &model.Geofence{Center: center, Radius: 150, Enabled: true}, model.GeofenceInside},
		{"default radius applies", near, &model.Geofence{Center: center, Enabled: true}, model.GeofenceInside},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.loc, tt.fence); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyBoundaryCountsAsInside(t *testing.T) {
	center := &model.Location{Latitude: 51.5010, Longitude: -0.1416}
	loc := &model.Location{Latitude: 51.5020, Longitude: -0.1416}
	d := Distance(loc.Latitude, loc.Longitude, center.Latitude, center.Longitude)
	fence := &model.Geofence{Center: center, Radius: d, Enabled: true}
	if got := Classify(loc, fence); got != model.GeofenceInside {
		t.Errorf("Classify at exact radius = %q, want inside", got)
	}
}

func TestGazetteerResolve(t *testing.T) {
	g := NewGazetteer()
	tests := []struct {
		postcode string
		ok       bool
	}{
		{"SW1A 1AA", true},
		{"sw1a 2aa", true}, // case-insensitive
		{"SW99 9ZZ", true}, // falls back to SW prefix
		{"E1 6AN", true},
		{"ZZ1 1ZZ", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.postcode, func(t *testing.T) {
			_, _, ok := g.Resolve(tt.postcode)
			if ok != tt.ok {
				t.Errorf("Resolve(%q) ok = %t, want %t", tt.postcode, ok, tt.ok)
			}
		})
	}
}

func TestGazetteerLongestPrefixWins(t *testing.T) {
	g := NewGazetteer()
	lat1, lon1, _ := g.Resolve("SW1A 1AA")
	lat2, lon2, _ := g.Resolve("SW4 7AA")
	if lat1 == lat2 && lon1 == lon2 {
		t.Error("SW1A should resolve to its own centroid, not the SW fallback")
	}
}
