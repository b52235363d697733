package headless

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/paulmach/orb"
)

// Version is reported by GetVersion and the info endpoint
const Version = "0.3.0"

type LayerType int

const (
	LayerTypeUnknown LayerType = iota
	LayerTypeVector
	LayerTypeRaster
)

func (lt LayerType) String() string {
	switch lt {
	case LayerTypeVector:
		return "vector"
	case LayerTypeRaster:
		return "raster"
	default:
		return "unknown"
	}
}

// GeometryType values follow the numbering used by QML documents (layerGeometryType)
type GeometryType int

const (
	GeometryTypePoint   GeometryType = 0
	GeometryTypeLine    GeometryType = 1
	GeometryTypePolygon GeometryType = 2
	GeometryTypeUnknown GeometryType = 3
	GeometryTypeNull    GeometryType = 4
)

func (gt GeometryType) String() string {
	switch gt {
	case GeometryTypePoint:
		return "point"
	case GeometryTypeLine:
		return "line"
	case GeometryTypePolygon:
		return "polygon"
	case GeometryTypeNull:
		return "null"
	default:
		return "unknown"
	}
}

func ParseGeometryType(s string) (GeometryType, error) {
	switch s {
	case "point", "Point", "0":
		return GeometryTypePoint, nil
	case "line", "Line", "1":
		return GeometryTypeLine, nil
	case "polygon", "Polygon", "2":
		return GeometryTypePolygon, nil
	case "unknown", "Unknown", "3":
		return GeometryTypeUnknown, nil
	case "null", "Null", "4":
		return GeometryTypeNull, nil
	}

	return GeometryTypeUnknown, fmt.Errorf("unknown geometry type: %q", s)
}

// GeometryTypeOf classifies an orb geometry
func GeometryTypeOf(g orb.Geometry) GeometryType {
	switch geom := g.(type) {
	case nil:
		return GeometryTypeNull
	case orb.Point, orb.MultiPoint:
		return GeometryTypePoint
	case orb.LineString, orb.MultiLineString:
		return GeometryTypeLine
	case orb.Ring, orb.Polygon, orb.MultiPolygon, orb.Bound:
		return GeometryTypePolygon
	case orb.Collection:
		if len(geom) == 0 {
			return GeometryTypeUnknown
		}
		first := GeometryTypeOf(geom[0])
		for _, member := range geom[1:] {
			if GeometryTypeOf(member) != first {
				return GeometryTypeUnknown
			}
		}
		return first
	default:
		return GeometryTypeUnknown
	}
}

// Extent is a rectangle in the units of a CRS
type Extent struct {
	MinX float64 `json:"minX" yaml:"minX"`
	MinY float64 `json:"minY" yaml:"minY"`
	MaxX float64 `json:"maxX" yaml:"maxX"`
	MaxY float64 `json:"maxY" yaml:"maxY"`
}

func NewExtent(minX, minY, maxX, maxY float64) Extent {
	return Extent{minX, minY, maxX, maxY}
}

func ExtentFromBound(b orb.Bound) Extent {
	return Extent{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
}

func (e Extent) Width() float64 {
	return e.MaxX - e.MinX
}

func (e Extent) Height() float64 {
	return e.MaxY - e.MinY
}

func (e Extent) Center() orb.Point {
	return orb.Point{(e.MinX + e.MaxX) / 2, (e.MinY + e.MaxY) / 2}
}

func (e Extent) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{e.MinX, e.MinY}, Max: orb.Point{e.MaxX, e.MaxY}}
}

func (e Extent) IsEmpty() bool {
	return e.Width() <= 0 || e.Height() <= 0
}

func (e Extent) String() string {
	return fmt.Sprintf("[%f %f, %f %f]", e.MinX, e.MinY, e.MaxX, e.MaxY)
}

// ParseExtent reads an extent written as "minX,minY,maxX,maxY"
func ParseExtent(s string) (Extent, errorsx.Error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Extent{}, errorsx.Errorf("expected 4 comma separated bounds, but found %d", len(parts))
	}

	var bounds [4]float64
	for idx, part := range parts {
		bound, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return Extent{}, errorsx.Wrap(err, "bound", idx)
		}
		bounds[idx] = bound
	}

	extent := NewExtent(bounds[0], bounds[1], bounds[2], bounds[3])
	if extent.IsEmpty() {
		return Extent{}, errorsx.Errorf("empty extent: %s", extent)
	}

	return extent, nil
}
