package headlessdal

import (
	"reflect"
	"testing"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSourceURI(t *testing.T) {
	type args struct {
		str string
	}
	tests := []struct {
		name  string
		args  args
		want  SourceURI
		want1 errorsx.Error
	}{
		{
			name: "postgresql",
			args: args{"postgresql://localhost/gis?table=roads"},
			want: SourceURI{
				Kind:    SourceKindPostGIS,
				Path:    "postgresql://localhost/gis?table=roads",
				Options: map[string]string{},
			},
		}, {
			name: "geojson by extension",
			args: args{"/data/countries.geojson"},
			want: SourceURI{
				Kind:    SourceKindGeoJSON,
				Path:    "/data/countries.geojson",
				Options: map[string]string{},
			},
		}, {
			name: "explicit kind with options",
			args: args{"osmpbf:///data/berlin.osm.pbf|layername=points"},
			want: SourceURI{
				Kind:    SourceKindOSMPBF,
				Path:    "/data/berlin.osm.pbf",
				Options: map[string]string{"layername": "points"},
			},
		}, {
			name: "http",
			args: args{"https://example.com/data.json|LayerName=stations"},
			want: SourceURI{
				Kind:    SourceKindHTTP,
				Path:    "https://example.com/data.json",
				Options: map[string]string{"layername": "stations"},
			},
		}, {
			name: "upper case raster extension",
			args: args{"/data/dem.TIF"},
			want: SourceURI{
				Kind:    SourceKindGeoTIFF,
				Path:    "/data/dem.TIF",
				Options: map[string]string{},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, got1 := ParseSourceURI(tt.args.str)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseSourceURI() got = %v, want %v", got, tt.want)
			}
			if !reflect.DeepEqual(got1, tt.want1) {
				t.Errorf("ParseSourceURI() got1 = %v, want %v", got1, tt.want1)
			}
		})
	}
}

func TestParseSourceURI_errors(t *testing.T) {
	for _, str := range []string{
		"",
		"/data/roads.xyz",
		"mystery:///data/roads.shp",
		"/data/roads.shp|layername",
	} {
		_, err := ParseSourceURI(str)
		assert.Error(t, err, str)
	}
}

func TestFieldsFromAttributes(t *testing.T) {
	features := []*Feature{
		{Attributes: map[string]interface{}{"name": "a", "lanes": float64(2), "width": float64(3), "oneway": true, "note": nil}},
		{Attributes: map[string]interface{}{"name": "b", "lanes": float64(4), "width": 3.5, "oneway": "yes"}},
	}

	fields := fieldsFromAttributes(features)

	assert.Equal(t, []Field{
		{"lanes", FieldTypeInteger},
		{"name", FieldTypeString},
		{"note", FieldTypeString},
		{"oneway", FieldTypeString},
		{"width", FieldTypeReal},
	}, fields)
}

func TestNewVectorLayer_extent(t *testing.T) {
	features := []*Feature{
		{Geometry: orb.Point{1, 1}},
		{Geometry: nil},
		{Geometry: orb.Point{5, 3}},
		{Geometry: orb.LineString{{-2, 0}, {0, 2}}},
	}

	layer := NewVectorLayer("points", nil, headless.GeometryTypePoint, nil, features)

	assert.Equal(t, headless.NewExtent(-2, 0, 5, 3), layer.Extent())
}

func TestKeepAttributes(t *testing.T) {
	features := []*Feature{
		{Attributes: map[string]interface{}{"name": "a", "lanes": 2}},
	}
	fields := []Field{{"lanes", FieldTypeInteger}, {"name", FieldTypeString}}

	keepAttributes(features, []string{"name"})
	require.Len(t, features[0].Attributes, 1)
	assert.Equal(t, "a", features[0].Attributes["name"])

	assert.Equal(t, []Field{{"name", FieldTypeString}}, keepFields(fields, []string{"name"}))
	assert.Equal(t, fields, keepFields(fields, nil))
}
