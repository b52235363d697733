package headlessrenderer

import (
	"image"
	"image/color"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/ownmap-headless/crs"
	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/jamesrr39/ownmap-headless/headlessdal"
	"github.com/jamesrr39/ownmap-headless/styling"
	"github.com/llgcode/draw2d"
	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/srwiley/oksvg"
)

// features further outside the visible extent than this many pixels are not drawn
const cullMarginPixels = 64

type vectorRenderer struct {
	settings         MapSettings
	viewport         viewport
	scaleDenominator float64
	img              *image.RGBA
	// labels is nil when labels are not collected, as in legends
	labels   *labelCollector
	svgIcons map[*styling.SymbolLayer]*oksvg.SvgIcon
}

func newVectorRenderer(settings MapSettings, img *image.RGBA, labels *labelCollector) *vectorRenderer {
	return &vectorRenderer{
		settings:         settings,
		viewport:         settings.viewport(),
		scaleDenominator: settings.ScaleDenominator(),
		img:              img,
		labels:           labels,
		svgIcons:         make(map[*styling.SymbolLayer]*oksvg.SvgIcon),
	}
}

func (vr *vectorRenderer) renderLayer(layer *headlessdal.VectorLayer, style *styling.VectorStyle) errorsx.Error {
	layerCRS := layer.CRS()
	if layerCRS == nil {
		layerCRS = vr.settings.CRS
	}

	transformer, err := crs.NewTransformer(layerCRS, vr.settings.CRS)
	if err != nil {
		return headless.NewError(headless.ErrRenderFailed, err, "layer", layer.Name())
	}

	margin := cullMarginPixels * vr.viewport.unitsPerPixel
	visible := vr.viewport.extent.Bound().Pad(margin)

	for _, feature := range layer.Features() {
		if feature.Geometry == nil {
			continue
		}

		geometry, err := transformer.Geometry(feature.Geometry)
		if err != nil {
			// not representable in the destination CRS
			continue
		}

		if !geometry.Bound().Intersects(visible) {
			continue
		}

		featureContext := styling.FeatureContext{
			Attributes:       feature.Attributes,
			GeometryType:     headless.GeometryTypeOf(geometry),
			ScaleDenominator: vr.scaleDenominator,
		}

		for _, symbol := range style.Renderer.SymbolsForFeature(featureContext) {
			vr.drawSymbol(geometry, symbol, feature.Attributes, 1)
		}

		if style.Labeling != nil && vr.labels != nil {
			for _, labelSettings := range style.Labeling.SettingsForFeature(featureContext) {
				text, ok := labelSettings.Text(feature.Attributes)
				if !ok {
					continue
				}
				vr.addLabel(geometry, text, labelSettings)
			}
		}
	}

	return nil
}

func (vr *vectorRenderer) drawSymbol(geometry orb.Geometry, symbol *styling.Symbol, attributes map[string]interface{}, opacity float64) {
	if symbol == nil {
		return
	}
	opacity *= symbol.Opacity

	for _, layer := range symbol.Layers {
		if !layer.Enabled {
			continue
		}

		switch symbol.Type {
		case styling.SymbolTypeFill:
			vr.drawFillLayer(geometry, layer, attributes, opacity)
		case styling.SymbolTypeLine:
			if layer.Class == styling.SymbolLayerSimpleLine {
				vr.drawLines(linesOf(geometry), layer, "line_", attributes, opacity)
			}
		case styling.SymbolTypeMarker:
			vr.drawMarkers(pointsOf(geometry), layer, attributes, opacity)
		}

		if layer.SubSymbol != nil {
			vr.drawSymbol(geometry, layer.SubSymbol, attributes, opacity)
		}
	}
}

func (vr *vectorRenderer) drawFillLayer(geometry orb.Geometry, layer *styling.SymbolLayer, attributes map[string]interface{}, opacity float64) {
	polygons := polygonsOf(geometry)

	switch layer.Class {
	case styling.SymbolLayerSimpleFill:
		vr.drawSimpleFill(polygons, layer, attributes, opacity)
	case styling.SymbolLayerSVGFill:
		vr.drawSVGFill(polygons, layer, opacity)
	case styling.SymbolLayerSimpleLine:
		vr.drawLines(ringsOf(polygons), layer, "line_", attributes, opacity)
	case styling.SymbolLayerSimpleMarker, styling.SymbolLayerSvgMarker:
		vr.drawMarkers(pointsOf(geometry), layer, attributes, opacity)
	}
}

// drawSimpleFill fills polygons with the even-odd rule, so that holes stay empty. Brush styles other than
// "no" are drawn solid.
func (vr *vectorRenderer) drawSimpleFill(polygons []orb.Polygon, layer *styling.SymbolLayer, attributes map[string]interface{}, opacity float64) {
	if len(polygons) == 0 {
		return
	}

	fillColor, _ := layer.Color("color")
	fillColor = layer.DataDefinedColor("fillColor", attributes, fillColor)
	hasFill := layer.String("style", "solid") != "no" && fillColor.A > 0

	stroke, hasStroke := vr.strokeStyle(layer, "outline_", attributes, opacity)
	if !hasFill && !hasStroke {
		return
	}

	gc := draw2dimg.NewGraphicContext(vr.img)
	gc.SetFillRule(draw2d.FillRuleEvenOdd)
	gc.SetFillColor(withOpacity(fillColor, opacity))
	stroke.apply(gc)

	for _, polygon := range polygons {
		gc.BeginPath()
		for _, ring := range polygon {
			vr.addPath(gc, ring, true)
		}

		switch {
		case hasFill && hasStroke:
			gc.FillStroke()
		case hasFill:
			gc.Fill()
		default:
			gc.Stroke()
		}
	}
}

func (vr *vectorRenderer) drawLines(lines []orb.LineString, layer *styling.SymbolLayer, prefix string, attributes map[string]interface{}, opacity float64) {
	if len(lines) == 0 {
		return
	}

	stroke, ok := vr.strokeStyle(layer, prefix, attributes, opacity)
	if !ok {
		return
	}

	gc := draw2dimg.NewGraphicContext(vr.img)
	stroke.apply(gc)

	for _, line := range lines {
		gc.BeginPath()
		vr.addPath(gc, line, false)
		gc.Stroke()
	}
}

// addPath adds the points to the current path of gc, in pixel coordinates
func (vr *vectorRenderer) addPath(gc draw2d.GraphicContext, points []orb.Point, closed bool) {
	for i, point := range points {
		x, y := vr.viewport.toPixel(point)
		if i == 0 {
			gc.MoveTo(x, y)
			continue
		}
		gc.LineTo(x, y)
	}
	if closed && len(points) > 0 {
		gc.Close()
	}
}

type strokeStyle struct {
	color color.NRGBA
	width float64
	dash  []float64
	cap   draw2d.LineCap
	join  draw2d.LineJoin
}

func (s strokeStyle) apply(gc draw2d.GraphicContext) {
	gc.SetStrokeColor(s.color)
	gc.SetLineWidth(s.width)
	gc.SetLineDash(s.dash, 0)
	gc.SetLineCap(s.cap)
	gc.SetLineJoin(s.join)
}

var lineCaps = map[string]draw2d.LineCap{
	"flat":   draw2d.ButtCap,
	"square": draw2d.SquareCap,
	"round":  draw2d.RoundCap,
}

var lineJoins = map[string]draw2d.LineJoin{
	"bevel": draw2d.BevelJoin,
	"miter": draw2d.MiterJoin,
	"round": draw2d.RoundJoin,
}

// strokeStyle reads the pen of a symbol layer from the properties starting with prefix.
// ok is false when the layer draws no stroke.
func (vr *vectorRenderer) strokeStyle(layer *styling.SymbolLayer, prefix string, attributes map[string]interface{}, opacity float64) (strokeStyle, bool) {
	if !layer.StrokeVisible(prefix) {
		return strokeStyle{}, false
	}

	strokeColor, ok := layer.Color(prefix + "color")
	if !ok {
		strokeColor = color.NRGBA{A: 255}
	}
	strokeColor = layer.DataDefinedColor("strokeColor", attributes, strokeColor)
	if strokeColor.A == 0 {
		return strokeStyle{}, false
	}

	width := layer.DataDefinedFloat("strokeWidth", attributes, layer.Float(prefix+"width", 0.26))
	widthPixels := vr.settings.ToPixels(width, layer.Unit(prefix+"width_unit"))
	if widthPixels <= 0 {
		// hairline
		widthPixels = 1
	}

	var dash []float64
	pattern, unit := layer.DashPattern(prefix, width)
	for _, value := range pattern {
		dash = append(dash, vr.settings.ToPixels(value, unit))
	}

	lineCap, ok := lineCaps[layer.String("capstyle", "square")]
	if !ok {
		lineCap = draw2d.SquareCap
	}
	lineJoin, ok := lineJoins[layer.String("joinstyle", "bevel")]
	if !ok {
		lineJoin = draw2d.BevelJoin
	}

	return strokeStyle{
		color: withOpacity(strokeColor, opacity),
		width: widthPixels,
		dash:  dash,
		cap:   lineCap,
		join:  lineJoin,
	}, true
}

func withOpacity(c color.NRGBA, opacity float64) color.NRGBA {
	if opacity >= 1 {
		return c
	}
	if opacity < 0 {
		opacity = 0
	}
	c.A = uint8(float64(c.A)*opacity + 0.5)
	return c
}

func (vr *vectorRenderer) addLabel(geometry orb.Geometry, text string, settings *styling.LabelSettings) {
	switch g := geometry.(type) {
	case orb.Point:
		x, y := vr.viewport.toPixel(g)
		vr.labels.addAbovePoint(x, y, text, settings)
	case orb.MultiPoint:
		for _, point := range g {
			x, y := vr.viewport.toPixel(point)
			vr.labels.addAbovePoint(x, y, text, settings)
		}
	case orb.LineString:
		x, y := vr.viewport.toPixel(lineMidpoint(g))
		vr.labels.addCentred(x, y, text, settings)
	case orb.MultiLineString:
		x, y := vr.viewport.toPixel(lineMidpoint(longestLine(g)))
		vr.labels.addCentred(x, y, text, settings)
	default:
		centroid, _ := planar.CentroidArea(geometry)
		x, y := vr.viewport.toPixel(centroid)
		vr.labels.addCentred(x, y, text, settings)
	}
}
