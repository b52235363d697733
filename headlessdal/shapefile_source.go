package headlessdal

import (
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/gofs"
	"github.com/jamesrr39/ownmap-headless/crs"
	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
)

const shapefileHeaderSize = 100

func (o *Opener) openShapefile(sourceURI SourceURI) (*VectorLayer, errorsx.Error) {
	shpFile, err := o.fs.Open(sourceURI.Path)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	shapeType, err := readShapefileHeader(shpFile)
	if err != nil {
		shpFile.Close()
		return nil, errorsx.Wrap(err, "path", sourceURI.Path)
	}

	dbfPath := strings.TrimSuffix(sourceURI.Path, filepath.Ext(sourceURI.Path)) + ".dbf"
	dbfFile, err := o.fs.Open(dbfPath)
	if err != nil {
		shpFile.Close()
		return nil, errorsx.Wrap(err, "dbfPath", dbfPath)
	}

	reader := shp.SequentialReaderFromExt(shpFile, dbfFile)
	defer reader.Close()

	layerCRS, err := o.sidecarCRS(sourceURI.Path)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	var fields []Field
	for _, shpField := range reader.Fields() {
		fields = append(fields, Field{
			Name: shpField.String(),
			Type: shapefileFieldType(shpField),
		})
	}

	var features []*Feature
	for reader.Next() {
		idx, shape := reader.Shape()

		geometry, err := shapeToGeometry(shape)
		if err != nil {
			return nil, errorsx.Wrap(err, "path", sourceURI.Path, "record", idx)
		}

		attributes := make(map[string]interface{})
		for fieldIdx, field := range fields {
			attributes[field.Name] = parseShapefileAttribute(reader.Attribute(fieldIdx), field.Type)
		}

		features = append(features, &Feature{
			ID:         int64(idx),
			Geometry:   geometry,
			Attributes: attributes,
		})
	}

	err = reader.Err()
	if err != nil {
		return nil, errorsx.Wrap(err, "path", sourceURI.Path, "featuresRead", len(features))
	}

	name := strings.TrimSuffix(filepath.Base(sourceURI.Path), filepath.Ext(sourceURI.Path))

	return NewVectorLayer(name, layerCRS, shapeTypeToGeometryType(shapeType), fields, features), nil
}

// readShapefileHeader reads the shape type from the file header and rewinds the file.
// Files shorter or longer than the length in their header are rejected.
func readShapefileHeader(file gofs.File) (shp.ShapeType, error) {
	header := make([]byte, shapefileHeaderSize)
	_, err := io.ReadFull(file, header)
	if err != nil {
		return shp.NULL, err
	}

	fileInfo, err := file.Stat()
	if err != nil {
		return shp.NULL, err
	}

	// the length is given in 16 bit words
	declaredSize := int64(binary.BigEndian.Uint32(header[24:28])) * 2
	if fileInfo.Size() != declaredSize {
		return shp.NULL, fmt.Errorf("file is %d bytes long, but the header declares %d bytes", fileInfo.Size(), declaredSize)
	}

	_, err = file.Seek(0, io.SeekStart)
	if err != nil {
		return shp.NULL, err
	}

	return shp.ShapeType(binary.LittleEndian.Uint32(header[32:36])), nil
}

// sidecarCRS reads the CRS from a ".prj" file next to the data file, falling back to WGS 84
func (o *Opener) sidecarCRS(dataFilePath string) (*crs.CRS, errorsx.Error) {
	prjPath := strings.TrimSuffix(dataFilePath, filepath.Ext(dataFilePath)) + ".prj"
	wkt, err := o.fs.ReadFile(prjPath)
	if err != nil {
		o.logger.Debug("no CRS sidecar found at %q, using EPSG:4326", prjPath)
		return crs.FromEPSG(4326)
	}

	return crs.FromWKT(string(wkt))
}

func shapefileFieldType(field shp.Field) FieldType {
	switch field.Fieldtype {
	case 'N':
		if field.Precision == 0 {
			return FieldTypeInteger
		}
		return FieldTypeReal
	case 'F':
		return FieldTypeReal
	case 'L':
		return FieldTypeBoolean
	default:
		return FieldTypeString
	}
}

func parseShapefileAttribute(raw string, fieldType FieldType) interface{} {
	value := strings.TrimSpace(strings.TrimRight(raw, "\x00"))

	switch fieldType {
	case FieldTypeInteger:
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil
		}
		return i
	case FieldTypeReal:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil
		}
		return f
	case FieldTypeBoolean:
		switch strings.ToUpper(value) {
		case "T", "Y":
			return true
		case "F", "N":
			return false
		default:
			return nil
		}
	default:
		return value
	}
}

func shapeTypeToGeometryType(shapeType shp.ShapeType) headless.GeometryType {
	switch shapeType {
	case shp.POINT, shp.POINTZ, shp.POINTM, shp.MULTIPOINT, shp.MULTIPOINTZ, shp.MULTIPOINTM:
		return headless.GeometryTypePoint
	case shp.POLYLINE, shp.POLYLINEZ, shp.POLYLINEM:
		return headless.GeometryTypeLine
	case shp.POLYGON, shp.POLYGONZ, shp.POLYGONM:
		return headless.GeometryTypePolygon
	case shp.NULL:
		return headless.GeometryTypeNull
	default:
		return headless.GeometryTypeUnknown
	}
}

func shapeToGeometry(shape shp.Shape) (orb.Geometry, error) {
	switch s := shape.(type) {
	case *shp.Point:
		return orb.Point{s.X, s.Y}, nil
	case *shp.PointZ:
		return orb.Point{s.X, s.Y}, nil
	case *shp.PointM:
		return orb.Point{s.X, s.Y}, nil
	case *shp.MultiPoint:
		return multiPointFromShp(s.Points), nil
	case *shp.MultiPointZ:
		return multiPointFromShp(s.Points), nil
	case *shp.MultiPointM:
		return multiPointFromShp(s.Points), nil
	case *shp.PolyLine:
		return lineFromParts(s.Parts, s.Points)
	case *shp.PolyLineZ:
		return lineFromParts(s.Parts, s.Points)
	case *shp.PolyLineM:
		return lineFromParts(s.Parts, s.Points)
	case *shp.Polygon:
		return polygonFromParts(s.Parts, s.Points)
	case *shp.PolygonZ:
		return polygonFromParts(s.Parts, s.Points)
	case *shp.PolygonM:
		return polygonFromParts(s.Parts, s.Points)
	default:
		return nil, nil
	}
}

func multiPointFromShp(points []shp.Point) orb.MultiPoint {
	mp := make(orb.MultiPoint, 0, len(points))
	for _, p := range points {
		mp = append(mp, orb.Point{p.X, p.Y})
	}
	return mp
}

// splitParts cuts the points into the parts starting at the given offsets
func splitParts(parts []int32, points []shp.Point) ([][]orb.Point, error) {
	var split [][]orb.Point
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || int(end) > len(points) {
			return nil, fmt.Errorf("invalid part %d: points %d to %d of %d", i, start, end, len(points))
		}

		var part []orb.Point
		for _, p := range points[start:end] {
			part = append(part, orb.Point{p.X, p.Y})
		}
		split = append(split, part)
	}
	return split, nil
}

func lineFromParts(parts []int32, points []shp.Point) (orb.Geometry, error) {
	split, err := splitParts(parts, points)
	if err != nil {
		return nil, err
	}
	if len(split) == 1 {
		return orb.LineString(split[0]), nil
	}

	mls := make(orb.MultiLineString, 0, len(split))
	for _, part := range split {
		mls = append(mls, orb.LineString(part))
	}
	return mls, nil
}

// polygonFromParts groups rings into polygons. Outer rings are clockwise in shapefiles, and holes follow their outer ring.
func polygonFromParts(parts []int32, points []shp.Point) (orb.Geometry, error) {
	split, err := splitParts(parts, points)
	if err != nil {
		return nil, err
	}

	var mp orb.MultiPolygon
	for _, part := range split {
		ring := orb.Ring(part)
		if ring.Orientation() == orb.CW || len(mp) == 0 {
			mp = append(mp, orb.Polygon{ring})
			continue
		}
		mp[len(mp)-1] = append(mp[len(mp)-1], ring)
	}

	if len(mp) == 1 {
		return mp[0], nil
	}
	return mp, nil
}
