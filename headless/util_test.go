package headless

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtent_Intersects(t *testing.T) {
	extent := NewExtent(-1, -1, 1, 1)

	tests := []struct {
		name  string
		other Extent
		want  bool
	}{
		{"above", NewExtent(-1, 89, 1, 90), false},
		{"below", NewExtent(-1, -51, 1, -50), false},
		{"to the left", NewExtent(-3, -1, -2, 1), false},
		{"to the right", NewExtent(2, -1, 3, 1), false},
		{"inside", NewExtent(-0.5, -0.5, 0.5, 0.5), true},
		{"covering", NewExtent(-5, -5, 5, 5), true},
		{"overlapping the top edge", NewExtent(0.2, 0.5, 0.8, 2), true},
		{"touching the left edge", NewExtent(-2, -1, -1, 1), true},
		{"single point on the corner", NewExtent(1, 1, 1, 1), true},
		{"same", extent, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extent.Intersects(tt.other))
			assert.Equal(t, tt.want, tt.other.Intersects(extent))
		})
	}
}

func TestExtent_Union(t *testing.T) {
	a := NewExtent(0, 0, 1, 1)
	b := NewExtent(-1, 0.5, 0.5, 3)

	assert.Equal(t, NewExtent(-1, 0, 1, 3), a.Union(b))
	assert.Equal(t, a.Union(b), b.Union(a))

	point := NewExtent(5, 5, 5, 5)
	assert.Equal(t, NewExtent(0, 0, 5, 5), a.Union(point))
}

func TestExtent_Buffer(t *testing.T) {
	assert.Equal(t, NewExtent(-2, -1, 3, 4), NewExtent(0, 1, 1, 2).Buffer(2))
}

func TestGeometryTypeOf(t *testing.T) {
	tests := []struct {
		name string
		geom orb.Geometry
		want GeometryType
	}{
		{"point", orb.Point{1, 2}, GeometryTypePoint},
		{"multi point", orb.MultiPoint{{1, 2}}, GeometryTypePoint},
		{"line", orb.LineString{{1, 2}, {3, 4}}, GeometryTypeLine},
		{"polygon", orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}, GeometryTypePolygon},
		{"multi polygon", orb.MultiPolygon{}, GeometryTypePolygon},
		{"nil", nil, GeometryTypeNull},
		{"mixed collection", orb.Collection{orb.Point{1, 2}, orb.LineString{}}, GeometryTypeUnknown},
		{"point collection", orb.Collection{orb.Point{1, 2}, orb.MultiPoint{}}, GeometryTypePoint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GeometryTypeOf(tt.geom))
		})
	}
}

func TestParseExtent(t *testing.T) {
	extent, err := ParseExtent("-10.5, 40,12,60.25")
	require.NoError(t, err)
	assert.Equal(t, NewExtent(-10.5, 40, 12, 60.25), extent)

	for _, invalid := range []string{"", "1,2,3", "1,2,3,4,5", "a,2,3,4", "5,0,1,10", "0,0,10,0"} {
		_, err := ParseExtent(invalid)
		assert.Error(t, err, invalid)
	}
}
