package headlessdal

import (
	"io"
	"testing"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/jamesrr39/ownmap-headless/headlessdal/testmocks"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func osmTestObjects() []osm.Object {
	return []osm.Object{
		&osm.Node{ID: 1, Lat: 0, Lon: 0},
		&osm.Node{ID: 2, Lat: 0, Lon: 1},
		&osm.Node{ID: 3, Lat: 1, Lon: 1},
		&osm.Node{ID: 4, Lat: 1, Lon: 0, Tags: osm.Tags{{Key: "amenity", Value: "cafe"}}},
		&osm.Way{ID: 10, Nodes: osm.WayNodes{{ID: 1}, {ID: 2}, {ID: 3}}, Tags: osm.Tags{{Key: "highway", Value: "residential"}}},
		&osm.Way{ID: 11, Nodes: osm.WayNodes{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}, {ID: 1}}, Tags: osm.Tags{{Key: "building", Value: "yes"}}},
		// closed but not an area
		&osm.Way{ID: 12, Nodes: osm.WayNodes{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 1}}, Tags: osm.Tags{{Key: "highway", Value: "service"}}},
		// untagged ways are only used in relations
		&osm.Way{ID: 13, Nodes: osm.WayNodes{{ID: 1}, {ID: 2}}},
	}
}

func TestReadOSMLayer(t *testing.T) {
	type testCase struct {
		Name                 string
		LayerName            string
		ExpectedIDs          []int64
		ExpectedGeometryType headless.GeometryType
	}

	testCases := []testCase{
		{"points", OSMLayerPoints, []int64{4}, headless.GeometryTypePoint},
		{"lines", OSMLayerLines, []int64{10, 12}, headless.GeometryTypeLine},
		{"multipolygons", OSMLayerMultipolygons, []int64{11}, headless.GeometryTypePolygon},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			reader := testmocks.NewObjectListReader(osmTestObjects()...)

			features, geometryType, err := readOSMLayer(reader, tc.LayerName)
			require.NoError(t, err)

			assert.Equal(t, tc.ExpectedGeometryType, geometryType)

			var ids []int64
			for _, feature := range features {
				ids = append(ids, feature.ID)
				assert.Equal(t, tc.ExpectedGeometryType, headless.GeometryTypeOf(feature.Geometry))
				assert.Equal(t, feature.ID, feature.Attributes[osmIDAttribute])
			}
			assert.Equal(t, tc.ExpectedIDs, ids)
		})
	}
}

func TestReadOSMLayer_geometry(t *testing.T) {
	reader := testmocks.NewObjectListReader(osmTestObjects()...)

	features, _, err := readOSMLayer(reader, OSMLayerMultipolygons)
	require.NoError(t, err)
	require.Len(t, features, 1)

	assert.Equal(t, orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}, features[0].Geometry)
	assert.Equal(t, "yes", features[0].Attributes["building"])
}

func TestReadOSMLayer_unknownLayer(t *testing.T) {
	reader := testmocks.NewObjectListReader(osmTestObjects()...)

	_, _, err := readOSMLayer(reader, "relations")
	assert.Error(t, err)
}

func TestReadOSMLayer_scanError(t *testing.T) {
	reader := testmocks.NewObjectListReader(osmTestObjects()...)
	reader.ScanErr = io.ErrUnexpectedEOF

	_, _, err := readOSMLayer(reader, OSMLayerPoints)
	require.Error(t, err)
	assert.Equal(t, io.ErrUnexpectedEOF, errorsx.Cause(err))
}
