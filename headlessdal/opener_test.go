package headlessdal

import (
	"testing"

	"github.com/jamesrr39/ownmap-headless/crs"
	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMarshalWKB(t *testing.T, g orb.Geometry) []byte {
	b, err := wkb.Marshal(g)
	require.NoError(t, err)
	return b
}

func TestFromData(t *testing.T) {
	fields := []Field{{"name", FieldTypeString}}

	layer, err := FromData("cities", headless.GeometryTypePoint, crs.MustFromEPSG(4326), fields, []WKBFeature{
		{WKB: mustMarshalWKB(t, orb.Point{13.4, 52.5}), Attributes: map[string]interface{}{"name": "Berlin"}},
		{WKB: mustMarshalWKB(t, orb.MultiPoint{{2.35, 48.85}}), Attributes: map[string]interface{}{"name": "Paris"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "cities", layer.Name())
	assert.Equal(t, fields, layer.Fields())
	require.Len(t, layer.Features(), 2)
	assert.Equal(t, orb.Point{13.4, 52.5}, layer.Features()[0].Geometry)
	assert.Equal(t, "Paris", layer.Features()[1].Attributes["name"])
	assert.Equal(t, headless.NewExtent(2.35, 48.85, 13.4, 52.5), layer.Extent())
}

func TestFromData_errors(t *testing.T) {
	fields := []Field{{"name", FieldTypeString}}
	point := mustMarshalWKB(t, orb.Point{1, 2})

	type testCase struct {
		Name         string
		GeometryType headless.GeometryType
		CRS          *crs.CRS
		Features     []WKBFeature
	}

	testCases := []testCase{
		{
			Name:         "no CRS",
			GeometryType: headless.GeometryTypePoint,
			Features:     []WKBFeature{{WKB: point}},
		}, {
			Name:         "geometry type mismatch",
			GeometryType: headless.GeometryTypePolygon,
			CRS:          crs.MustFromEPSG(4326),
			Features:     []WKBFeature{{WKB: point}},
		}, {
			Name:         "unknown attribute",
			GeometryType: headless.GeometryTypePoint,
			CRS:          crs.MustFromEPSG(4326),
			Features:     []WKBFeature{{WKB: point, Attributes: map[string]interface{}{"population": 3}}},
		}, {
			Name:         "invalid WKB",
			GeometryType: headless.GeometryTypePoint,
			CRS:          crs.MustFromEPSG(4326),
			Features:     []WKBFeature{{WKB: []byte{1, 2, 3}}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			_, err := FromData("test", tc.GeometryType, tc.CRS, fields, tc.Features)
			require.Error(t, err)
			assert.True(t, headless.IsKind(err, headless.ErrOpenFailed))
		})
	}
}
