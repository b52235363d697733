package headlessdal

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/ownmap-headless/crs"
	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/paulmach/orb"
)

type Layer interface {
	Name() string
	Type() headless.LayerType
	CRS() *crs.CRS
	Extent() headless.Extent
}

type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeInteger FieldType = "integer"
	FieldTypeReal    FieldType = "real"
	FieldTypeBoolean FieldType = "boolean"
)

type Field struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

type Feature struct {
	ID         int64
	Geometry   orb.Geometry
	Attributes map[string]interface{}
}

var _ Layer = &VectorLayer{}

type VectorLayer struct {
	name         string
	crs          *crs.CRS
	geometryType headless.GeometryType
	fields       []Field
	features     []*Feature
	extent       headless.Extent
}

func NewVectorLayer(name string, layerCRS *crs.CRS, geometryType headless.GeometryType, fields []Field, features []*Feature) *VectorLayer {
	var extent headless.Extent
	var bound orb.Bound
	hasBound := false
	for _, feature := range features {
		if feature.Geometry == nil {
			continue
		}
		if !hasBound {
			bound = feature.Geometry.Bound()
			hasBound = true
			continue
		}
		bound = bound.Union(feature.Geometry.Bound())
	}
	if hasBound {
		extent = headless.ExtentFromBound(bound)
	}

	return &VectorLayer{name, layerCRS, geometryType, fields, features, extent}
}

func (l *VectorLayer) Name() string {
	return l.name
}

func (l *VectorLayer) Type() headless.LayerType {
	return headless.LayerTypeVector
}

func (l *VectorLayer) CRS() *crs.CRS {
	return l.crs
}

func (l *VectorLayer) Extent() headless.Extent {
	return l.extent
}

func (l *VectorLayer) GeometryType() headless.GeometryType {
	return l.geometryType
}

func (l *VectorLayer) Fields() []Field {
	return l.fields
}

func (l *VectorLayer) Features() []*Feature {
	return l.features
}

// SourceKind identifies the driver used to read a data source
type SourceKind string

const (
	SourceKindGeoJSON    SourceKind = "geojson"
	SourceKindShapefile  SourceKind = "shapefile"
	SourceKindOSMPBF     SourceKind = "osmpbf"
	SourceKindGeoParquet SourceKind = "geoparquet"
	SourceKindPostGIS    SourceKind = "postgresql"
	SourceKindHTTP       SourceKind = "http"
	SourceKindGeoTIFF    SourceKind = "geotiff"
	SourceKindPNG        SourceKind = "png"
	SourceKindJPEG       SourceKind = "jpeg"
)

func (k SourceKind) LayerType() headless.LayerType {
	switch k {
	case SourceKindGeoTIFF, SourceKindPNG, SourceKindJPEG:
		return headless.LayerTypeRaster
	default:
		return headless.LayerTypeVector
	}
}

// SourceURI is a parsed layer source. Sources may carry options after a "|", for example "roads.osm.pbf|layername=lines".
type SourceURI struct {
	Kind    SourceKind
	Path    string
	Options map[string]string
}

const (
	ConnectionPathSeparator = "://"
	optionsSeparator        = "|"
)

var explicitKinds = map[SourceKind]bool{
	SourceKindGeoJSON:    true,
	SourceKindShapefile:  true,
	SourceKindOSMPBF:     true,
	SourceKindGeoParquet: true,
	SourceKindGeoTIFF:    true,
	SourceKindPNG:        true,
	SourceKindJPEG:       true,
}

var extensionKinds = map[string]SourceKind{
	".geojson":    SourceKindGeoJSON,
	".json":       SourceKindGeoJSON,
	".shp":        SourceKindShapefile,
	".pbf":        SourceKindOSMPBF,
	".parquet":    SourceKindGeoParquet,
	".geoparquet": SourceKindGeoParquet,
	".tif":        SourceKindGeoTIFF,
	".tiff":       SourceKindGeoTIFF,
	".png":        SourceKindPNG,
	".jpg":        SourceKindJPEG,
	".jpeg":       SourceKindJPEG,
}

func ParseSourceURI(str string) (SourceURI, errorsx.Error) {
	parts := strings.Split(str, optionsSeparator)
	location := strings.TrimSpace(parts[0])
	if location == "" {
		return SourceURI{}, errorsx.Errorf("empty source location")
	}

	options := make(map[string]string)
	for _, part := range parts[1:] {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return SourceURI{}, errorsx.Errorf("couldn't understand source option %q", part)
		}
		options[strings.ToLower(strings.TrimSpace(kv[0]))] = strings.TrimSpace(kv[1])
	}

	lowerLocation := strings.ToLower(location)
	switch {
	case strings.HasPrefix(lowerLocation, "postgresql://"), strings.HasPrefix(lowerLocation, "postgres://"):
		return SourceURI{SourceKindPostGIS, location, options}, nil
	case strings.HasPrefix(lowerLocation, "http://"), strings.HasPrefix(lowerLocation, "https://"):
		return SourceURI{SourceKindHTTP, location, options}, nil
	}

	idx := strings.Index(location, ConnectionPathSeparator)
	if idx > 0 {
		kind := SourceKind(location[:idx])
		if !explicitKinds[kind] {
			return SourceURI{}, errorsx.Errorf("unknown source type %q", kind)
		}
		return SourceURI{kind, location[idx+len(ConnectionPathSeparator):], options}, nil
	}

	kind, ok := extensionKinds[strings.ToLower(filepath.Ext(location))]
	if !ok {
		return SourceURI{}, errorsx.Errorf("couldn't determine the source type of %q", location)
	}

	return SourceURI{kind, location, options}, nil
}

// fieldsFromAttributes builds a sorted field list, guessing each field's type from its values
func fieldsFromAttributes(features []*Feature) []Field {
	typesByName := make(map[string]FieldType)
	for _, feature := range features {
		for name, value := range feature.Attributes {
			fieldType := fieldTypeOf(value)
			existing, ok := typesByName[name]
			switch {
			case !ok || existing == "":
				typesByName[name] = fieldType
			case fieldType == "" || existing == fieldType:
			case existing == FieldTypeInteger && fieldType == FieldTypeReal:
				typesByName[name] = FieldTypeReal
			case existing == FieldTypeReal && fieldType == FieldTypeInteger:
			default:
				typesByName[name] = FieldTypeString
			}
		}
	}

	var fields []Field
	for name, fieldType := range typesByName {
		if fieldType == "" {
			fieldType = FieldTypeString
		}
		fields = append(fields, Field{name, fieldType})
	}

	sort.Slice(fields, func(a, b int) bool {
		return fields[a].Name < fields[b].Name
	})

	return fields
}

func fieldTypeOf(value interface{}) FieldType {
	switch v := value.(type) {
	case nil:
		return ""
	case bool:
		return FieldTypeBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return FieldTypeInteger
	case float32:
		return FieldTypeReal
	case float64:
		if v == float64(int64(v)) {
			return FieldTypeInteger
		}
		return FieldTypeReal
	default:
		return FieldTypeString
	}
}

func geometryTypeOfFeatures(features []*Feature) headless.GeometryType {
	layerType := headless.GeometryTypeNull
	for _, feature := range features {
		featureType := headless.GeometryTypeOf(feature.Geometry)
		if featureType == headless.GeometryTypeNull {
			continue
		}
		if layerType == headless.GeometryTypeNull {
			layerType = featureType
			continue
		}
		if layerType != featureType {
			return headless.GeometryTypeUnknown
		}
	}

	if layerType == headless.GeometryTypeNull {
		return headless.GeometryTypeUnknown
	}

	return layerType
}

// keepAttributes drops attributes not in wanted. A nil wanted list keeps everything.
func keepAttributes(features []*Feature, wanted []string) {
	if wanted == nil {
		return
	}

	wantedMap := make(map[string]bool)
	for _, name := range wanted {
		wantedMap[name] = true
	}

	for _, feature := range features {
		for name := range feature.Attributes {
			if !wantedMap[name] {
				delete(feature.Attributes, name)
			}
		}
	}
}

func keepFields(fields []Field, wanted []string) []Field {
	if wanted == nil {
		return fields
	}

	wantedMap := make(map[string]bool)
	for _, name := range wanted {
		wantedMap[name] = true
	}

	var kept []Field
	for _, field := range fields {
		if wantedMap[field.Name] {
			kept = append(kept, field)
		}
	}
	return kept
}
