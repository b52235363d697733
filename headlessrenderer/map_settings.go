package headlessrenderer

import (
	"image/color"
	"math"

	"github.com/jamesrr39/ownmap-headless/crs"
	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/jamesrr39/ownmap-headless/headlessdal"
	"github.com/jamesrr39/ownmap-headless/styling"
	"github.com/paulmach/orb"
)

const (
	DefaultDPI = 96.0

	metersPerInch = 0.0254
	// length of one degree on the equator of the WGS84 ellipsoid
	metersPerDegree = math.Pi * 6378137 / 180
)

// MapLayer is a layer together with the style it is drawn with
type MapLayer struct {
	Layer headlessdal.Layer
	Style *styling.Style
	// Label is the title of the layer in legends. Layers without a label get no title row.
	Label string
}

type MapSettings struct {
	Width  int
	Height int
	DPI    float64
	CRS    *crs.CRS
	// Extent requested, in the units of CRS
	Extent     headless.Extent
	Layers     []MapLayer
	Background color.Color
}

func (s MapSettings) dpi() float64 {
	if s.DPI <= 0 {
		return DefaultDPI
	}
	return s.DPI
}

// VisibleExtent is the extent that is actually drawn: the requested extent, widened in one direction so that pixels are square,
// and centred on the requested extent
func (s MapSettings) VisibleExtent() headless.Extent {
	if s.Width <= 0 || s.Height <= 0 || s.Extent.IsEmpty() {
		return s.Extent
	}

	unitsPerPixel := math.Max(s.Extent.Width()/float64(s.Width), s.Extent.Height()/float64(s.Height))
	halfWidth := unitsPerPixel * float64(s.Width) / 2
	halfHeight := unitsPerPixel * float64(s.Height) / 2
	center := s.Extent.Center()

	return headless.NewExtent(center[0]-halfWidth, center[1]-halfHeight, center[0]+halfWidth, center[1]+halfHeight)
}

// mapUnitsPerPixel is the width and height of one output pixel, in map units
func (s MapSettings) mapUnitsPerPixel() float64 {
	if s.Width <= 0 {
		return 0
	}
	return s.VisibleExtent().Width() / float64(s.Width)
}

func (s MapSettings) metersPerMapUnit() float64 {
	if s.CRS != nil && s.CRS.IsGeographic() {
		return metersPerDegree
	}
	return 1
}

// ScaleDenominator is the map scale, for scale-dependent rules and labels
func (s MapSettings) ScaleDenominator() float64 {
	return s.mapUnitsPerPixel() * s.metersPerMapUnit() * s.dpi() / metersPerInch
}

// ToPixels converts a symbol size to output pixels
func (s MapSettings) ToPixels(value float64, unit styling.Unit) float64 {
	switch unit {
	case styling.UnitPixel:
		return value
	case styling.UnitPoint:
		return value * s.dpi() / 72
	case styling.UnitInch:
		return value * s.dpi()
	case styling.UnitMapUnit:
		if upp := s.mapUnitsPerPixel(); upp > 0 {
			return value / upp
		}
		return 0
	case styling.UnitMetersInMapUnits:
		if upp := s.mapUnitsPerPixel(); upp > 0 {
			return value / s.metersPerMapUnit() / upp
		}
		return 0
	default:
		return value * s.dpi() / 25.4
	}
}

// viewport maps coordinates in the destination CRS to pixel coordinates, with y growing downwards
type viewport struct {
	extent        headless.Extent
	unitsPerPixel float64
}

func (s MapSettings) viewport() viewport {
	return viewport{s.VisibleExtent(), s.mapUnitsPerPixel()}
}

func (v viewport) toPixel(p orb.Point) (float64, float64) {
	return (p[0] - v.extent.MinX) / v.unitsPerPixel, (v.extent.MaxY - p[1]) / v.unitsPerPixel
}

// toMap returns the map coordinates of the centre of the pixel (px, py)
func (v viewport) toMap(px, py int) (float64, float64) {
	return v.extent.MinX + (float64(px)+0.5)*v.unitsPerPixel, v.extent.MaxY - (float64(py)+0.5)*v.unitsPerPixel
}
