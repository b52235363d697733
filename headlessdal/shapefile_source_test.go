package headlessdal

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestShapefile writes the shapes to disk with go-shp and returns the contents of the .shp and .dbf files
func writeTestShapefile(t *testing.T, shapeType shp.ShapeType, fields []shp.Field, shapes []shp.Shape, attributes [][]interface{}) (shpData, dbfData string) {
	dir := t.TempDir()

	writer, err := shp.Create(filepath.Join(dir, "layer.shp"), shapeType)
	require.NoError(t, err)

	require.NoError(t, writer.SetFields(fields))
	for i, shape := range shapes {
		row := writer.Write(shape)
		for fieldIdx, value := range attributes[i] {
			require.NoError(t, writer.WriteAttribute(int(row), fieldIdx, value))
		}
	}
	writer.Close()

	shpBytes, err := ioutil.ReadFile(filepath.Join(dir, "layer.shp"))
	require.NoError(t, err)

	// some go-shp versions write "layerdbf" instead of "layer.dbf"
	dbfPaths, err := filepath.Glob(filepath.Join(dir, "layer*dbf"))
	require.NoError(t, err)
	require.Len(t, dbfPaths, 1)

	dbfBytes, err := ioutil.ReadFile(dbfPaths[0])
	require.NoError(t, err)

	return string(shpBytes), string(dbfBytes)
}

func newPolygon(rings ...[]shp.Point) *shp.Polygon {
	polygon := shp.Polygon(*shp.NewPolyLine(rings))
	return &polygon
}

func TestOpenVector_shapefilePoints(t *testing.T) {
	shpData, dbfData := writeTestShapefile(
		t,
		shp.POINT,
		[]shp.Field{shp.StringField("name", 20), shp.NumberField("lanes", 4), shp.FloatField("width", 8, 2)},
		[]shp.Shape{&shp.Point{X: 1, Y: 2}, &shp.Point{X: 5, Y: -3}},
		[][]interface{}{{"High Street", 2, 7.5}, {"Low Road", 1, 3.25}},
	)

	opener := newTestOpener(t, map[string]string{
		"/data/roads.shp": shpData,
		"/data/roads.dbf": dbfData,
	})

	layer, err := opener.OpenVector(context.Background(), "/data/roads.shp")
	require.NoError(t, err)

	assert.Equal(t, "roads", layer.Name())
	assert.Equal(t, headless.GeometryTypePoint, layer.GeometryType())
	assert.Equal(t, 4326, layer.CRS().Code())
	assert.Equal(t, headless.NewExtent(1, -3, 5, 2), layer.Extent())
	assert.Equal(t, []Field{
		{"name", FieldTypeString},
		{"lanes", FieldTypeInteger},
		{"width", FieldTypeReal},
	}, layer.Fields())

	features := layer.Features()
	require.Len(t, features, 2)
	assert.Equal(t, int64(0), features[0].ID)
	assert.Equal(t, orb.Point{1, 2}, features[0].Geometry)
	assert.Equal(t, map[string]interface{}{"name": "High Street", "lanes": int64(2), "width": 7.5}, features[0].Attributes)
	assert.Equal(t, map[string]interface{}{"name": "Low Road", "lanes": int64(1), "width": 3.25}, features[1].Attributes)
}

func TestOpenVector_shapefilePolygons(t *testing.T) {
	outer := []shp.Point{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}}
	hole := []shp.Point{{X: 2, Y: 2}, {X: 8, Y: 2}, {X: 8, Y: 8}, {X: 2, Y: 8}, {X: 2, Y: 2}}
	island := []shp.Point{{X: 20, Y: 0}, {X: 20, Y: 5}, {X: 25, Y: 5}, {X: 25, Y: 0}, {X: 20, Y: 0}}

	shpData, dbfData := writeTestShapefile(
		t,
		shp.POLYGON,
		[]shp.Field{shp.StringField("landuse", 10)},
		[]shp.Shape{newPolygon(outer, hole, island), newPolygon(island)},
		[][]interface{}{{"forest"}, {"meadow"}},
	)

	opener := newTestOpener(t, map[string]string{
		"/data/landuse.shp": shpData,
		"/data/landuse.dbf": dbfData,
		"/data/landuse.prj": `PROJCS["WGS 84 / Pseudo-Mercator",GEOGCS["WGS 84",AUTHORITY["EPSG","4326"]],AUTHORITY["EPSG","3857"]]`,
	})

	layer, err := opener.OpenVector(context.Background(), "/data/landuse.shp")
	require.NoError(t, err)

	assert.Equal(t, headless.GeometryTypePolygon, layer.GeometryType())
	assert.Equal(t, 3857, layer.CRS().Code())

	features := layer.Features()
	require.Len(t, features, 2)

	assert.Equal(t, orb.MultiPolygon{
		{
			{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}},
			{{2, 2}, {8, 2}, {8, 8}, {2, 8}, {2, 2}},
		},
		{
			{{20, 0}, {20, 5}, {25, 5}, {25, 0}, {20, 0}},
		},
	}, features[0].Geometry)
	assert.Equal(t, orb.Polygon{{{20, 0}, {20, 5}, {25, 5}, {25, 0}, {20, 0}}}, features[1].Geometry)
	assert.Equal(t, "meadow", features[1].Attributes["landuse"])
}

func TestOpenVector_shapefileErrors(t *testing.T) {
	shpData, dbfData := writeTestShapefile(
		t,
		shp.POINT,
		[]shp.Field{shp.StringField("name", 10)},
		[]shp.Shape{&shp.Point{X: 1, Y: 1}, &shp.Point{X: 2, Y: 2}, &shp.Point{X: 3, Y: 3}},
		[][]interface{}{{"a"}, {"b"}, {"c"}},
	)

	badParts := &shp.Polygon{
		NumParts:  2,
		NumPoints: 4,
		Parts:     []int32{0, 9},
		Points:    []shp.Point{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 0, Y: 0}},
	}
	badPartsShp, badPartsDbf := writeTestShapefile(t, shp.POLYGON, []shp.Field{shp.StringField("name", 10)}, []shp.Shape{badParts}, [][]interface{}{{"broken"}})

	type testCase struct {
		Name  string
		Files map[string]string
	}

	testCases := []testCase{
		{
			Name: "truncated last record",
			Files: map[string]string{
				"/data/layer.shp": shpData[:len(shpData)-10],
				"/data/layer.dbf": dbfData,
			},
		}, {
			Name: "part offsets past the points",
			Files: map[string]string{
				"/data/layer.shp": badPartsShp,
				"/data/layer.dbf": badPartsDbf,
			},
		}, {
			Name: "missing dbf",
			Files: map[string]string{
				"/data/layer.shp": shpData,
			},
		}, {
			Name: "short header",
			Files: map[string]string{
				"/data/layer.shp": shpData[:40],
				"/data/layer.dbf": dbfData,
			},
		}, {
			Name: "missing shp",
			Files: map[string]string{
				"/data/layer.dbf": dbfData,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			opener := newTestOpener(t, tc.Files)

			layer, err := opener.OpenVector(context.Background(), "/data/layer.shp")
			require.Error(t, err)
			assert.Nil(t, layer)
			assert.True(t, headless.IsKind(err, headless.ErrOpenFailed))
		})
	}
}

func TestSplitParts(t *testing.T) {
	points := []shp.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}}

	split, err := splitParts([]int32{0, 2}, points)
	require.NoError(t, err)
	assert.Equal(t, [][]orb.Point{{{0, 0}, {1, 0}}, {{1, 1}, {2, 2}}}, split)

	for _, parts := range [][]int32{{0, 9}, {2, 1}, {-1}, {5}} {
		_, err := splitParts(parts, points)
		assert.Error(t, err, "parts %v", parts)
	}
}
