package headlessdal

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/gofs"
	"github.com/jamesrr39/ownmap-headless/crs"
	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
)

type PBFReader interface {
	Scan() bool
	Object() osm.Object
	Err() error
	Close() error
}

type DefaultPBFReader struct {
	file gofs.File
	*osmpbf.Scanner
	totalSize int64
}

func NewDefaultPBFReader(ctx context.Context, file gofs.File) (*DefaultPBFReader, errorsx.Error) {
	fileInfo, err := file.Stat()
	if err != nil {
		return nil, errorsx.Wrap(err)
	}
	scanner := osmpbf.New(ctx, file, runtime.NumCPU())
	scanner.SkipRelations = true

	return &DefaultPBFReader{file, scanner, fileInfo.Size()}, nil
}

func (r *DefaultPBFReader) TotalSize() int64 {
	return r.totalSize
}

// OSM layer names, as used in "|layername=" source options
const (
	OSMLayerPoints        = "points"
	OSMLayerLines         = "lines"
	OSMLayerMultipolygons = "multipolygons"
)

const osmIDAttribute = "osm_id"

// tags that make a closed way an area
var areaTagKeys = map[string]bool{
	"area":     true,
	"building": true,
	"landuse":  true,
	"leisure":  true,
	"amenity":  true,
	"natural":  true,
	"place":    true,
	"waterway": true,
}

func (o *Opener) openOSMPBF(ctx context.Context, sourceURI SourceURI) (*VectorLayer, errorsx.Error) {
	layerName := sourceURI.Options["layername"]
	if layerName == "" {
		layerName = OSMLayerLines
	}

	file, err := o.fs.Open(sourceURI.Path)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}
	defer file.Close()

	pbfReader, err := NewDefaultPBFReader(ctx, file)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}
	defer pbfReader.Close()

	features, geometryType, err := readOSMLayer(pbfReader, layerName)
	if err != nil {
		return nil, errorsx.Wrap(err, "layername", layerName)
	}

	baseName := strings.TrimSuffix(filepath.Base(sourceURI.Path), ".osm.pbf")

	wgs84, err := crs.FromEPSG(4326)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	fields := fieldsFromAttributes(features)

	return NewVectorLayer(baseName+" "+layerName, wgs84, geometryType, fields, features), nil
}

// readOSMLayer scans the reader once. Nodes come before ways in a PBF file, so node locations are known by the time ways are read.
func readOSMLayer(pbfReader PBFReader, layerName string) ([]*Feature, headless.GeometryType, errorsx.Error) {
	var geometryType headless.GeometryType
	switch layerName {
	case OSMLayerPoints:
		geometryType = headless.GeometryTypePoint
	case OSMLayerLines:
		geometryType = headless.GeometryTypeLine
	case OSMLayerMultipolygons:
		geometryType = headless.GeometryTypePolygon
	default:
		return nil, headless.GeometryTypeUnknown, errorsx.Errorf("unknown OSM layer name %q", layerName)
	}

	nodeLocations := make(map[osm.NodeID]orb.Point)
	features := []*Feature{}

	for pbfReader.Scan() {
		switch obj := pbfReader.Object().(type) {
		case *osm.Node:
			if geometryType == headless.GeometryTypePoint {
				if len(obj.Tags) != 0 {
					features = append(features, &Feature{
						ID:         int64(obj.ID),
						Geometry:   orb.Point{obj.Lon, obj.Lat},
						Attributes: osmAttributes(int64(obj.ID), obj.Tags),
					})
				}
				continue
			}
			nodeLocations[obj.ID] = orb.Point{obj.Lon, obj.Lat}
		case *osm.Way:
			if geometryType == headless.GeometryTypePoint {
				continue
			}
			feature := wayToFeature(obj, nodeLocations, geometryType == headless.GeometryTypePolygon)
			if feature != nil {
				features = append(features, feature)
			}
		}
	}

	err := pbfReader.Err()
	if err != nil {
		return nil, headless.GeometryTypeUnknown, errorsx.Wrap(err)
	}

	return features, geometryType, nil
}

func wayToFeature(way *osm.Way, nodeLocations map[osm.NodeID]orb.Point, wantAreas bool) *Feature {
	if len(way.Tags) == 0 {
		return nil
	}

	var points []orb.Point
	for _, wayNode := range way.Nodes {
		location, ok := nodeLocations[wayNode.ID]
		if !ok {
			if wayNode.Lat == 0 && wayNode.Lon == 0 {
				// node outside of the extract
				continue
			}
			location = orb.Point{wayNode.Lon, wayNode.Lat}
		}
		points = append(points, location)
	}

	if len(points) < 2 {
		return nil
	}

	isArea := isAreaWay(way, points)
	if isArea != wantAreas {
		return nil
	}

	var geom orb.Geometry = orb.LineString(points)
	if isArea {
		geom = orb.Polygon{orb.Ring(points)}
	}

	return &Feature{
		ID:         int64(way.ID),
		Geometry:   geom,
		Attributes: osmAttributes(int64(way.ID), way.Tags),
	}
}

func isAreaWay(way *osm.Way, points []orb.Point) bool {
	if len(points) < 4 || points[0] != points[len(points)-1] {
		return false
	}

	if way.Tags.Find("area") == "no" {
		return false
	}

	for _, tag := range way.Tags {
		if tag.Key == "natural" && tag.Value == "coastline" {
			continue
		}
		if areaTagKeys[tag.Key] {
			return true
		}
	}

	return false
}

func osmAttributes(id int64, tags osm.Tags) map[string]interface{} {
	attributes := map[string]interface{}{
		osmIDAttribute: id,
	}
	for _, tag := range tags {
		attributes[tag.Key] = tag.Value
	}
	return attributes
}
