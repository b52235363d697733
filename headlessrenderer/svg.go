package headlessrenderer

import (
	"bytes"
	"image"
	"image/color"
	"math"

	"github.com/jamesrr39/ownmap-headless/styling"
	"github.com/llgcode/draw2d"
	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/paulmach/orb"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/draw"
)

// svgIcon parses the SVG document of a symbol layer once per render. nil when the layer has no usable SVG.
func (vr *vectorRenderer) svgIcon(layer *styling.SymbolLayer) *oksvg.SvgIcon {
	icon, ok := vr.svgIcons[layer]
	if ok {
		return icon
	}

	if len(layer.SVGData) != 0 {
		parsed, err := oksvg.ReadIconStream(bytes.NewReader(layer.SVGData), oksvg.IgnoreErrorMode)
		if err == nil && parsed.ViewBox.W > 0 && parsed.ViewBox.H > 0 {
			icon = parsed
		}
	}

	vr.svgIcons[layer] = icon
	return icon
}

// drawIcon draws icon scaled to width, keeping its aspect ratio, with its centre at (x, y)
func drawIcon(dst draw.Image, icon *oksvg.SvgIcon, x, y, width, opacity float64) {
	height := width * icon.ViewBox.H / icon.ViewBox.W
	icon.SetTarget(x-width/2, y-height/2, width, height)

	bounds := dst.Bounds()
	scanner := rasterx.NewScannerGV(bounds.Dx(), bounds.Dy(), dst, bounds)
	icon.Draw(rasterx.NewDasher(bounds.Dx(), bounds.Dy(), scanner), opacity)
}

func (vr *vectorRenderer) drawSvgMarker(x, y float64, layer *styling.SymbolLayer, attributes map[string]interface{}, opacity float64) {
	icon := vr.svgIcon(layer)
	if icon == nil {
		return
	}

	size := vr.markerSize(layer, attributes, 4)
	if size <= 0 {
		return
	}

	drawIcon(vr.img, icon, x, y, size, opacity)
}

// drawSVGFill tiles the SVG over the polygons. The tiles are anchored on the image origin so that neighbouring
// polygons line up.
func (vr *vectorRenderer) drawSVGFill(polygons []orb.Polygon, layer *styling.SymbolLayer, opacity float64) {
	icon := vr.svgIcon(layer)
	if icon == nil || len(polygons) == 0 {
		return
	}

	tileWidth := vr.settings.ToPixels(layer.Float("width", 20), layer.Unit("width_unit"))
	if tileWidth < 1 {
		return
	}
	tileHeight := tileWidth * icon.ViewBox.H / icon.ViewBox.W
	tileSize := image.Pt(int(math.Ceil(tileWidth)), int(math.Ceil(tileHeight)))

	tile := image.NewRGBA(image.Rectangle{Max: tileSize})
	drawIcon(tile, icon, tileWidth/2, tileHeight/2, tileWidth, opacity)

	mask := image.NewRGBA(vr.img.Bounds())
	gc := draw2dimg.NewGraphicContext(mask)
	gc.SetFillRule(draw2d.FillRuleEvenOdd)
	gc.SetFillColor(color.Opaque)
	for _, polygon := range polygons {
		gc.BeginPath()
		for _, ring := range polygon {
			vr.addPath(gc, ring, true)
		}
		gc.Fill()
	}

	pattern := image.NewRGBA(vr.img.Bounds())
	for y := 0; y < pattern.Rect.Max.Y; y += tileSize.Y {
		for x := 0; x < pattern.Rect.Max.X; x += tileSize.X {
			draw.Draw(pattern, image.Rectangle{Min: image.Pt(x, y), Max: image.Pt(x, y).Add(tileSize)}, tile, image.Point{}, draw.Src)
		}
	}

	draw.DrawMask(vr.img, vr.img.Bounds(), pattern, image.Point{}, mask, image.Point{}, draw.Over)
}
