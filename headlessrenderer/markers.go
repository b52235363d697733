package headlessrenderer

import (
	"math"

	"github.com/jamesrr39/ownmap-headless/styling"
	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/llgcode/draw2d/draw2dkit"
	"github.com/paulmach/orb"
)

// markerShapes are outlines in a unit square centred on the origin, y growing downwards
var markerShapes = map[string][][2]float64{
	"square":               {{-0.5, -0.5}, {0.5, -0.5}, {0.5, 0.5}, {-0.5, 0.5}},
	"rectangle":            {{-0.5, -0.5}, {0.5, -0.5}, {0.5, 0.5}, {-0.5, 0.5}},
	"diamond":              {{0, -0.5}, {0.5, 0}, {0, 0.5}, {-0.5, 0}},
	"triangle":             {{0, -0.5}, {0.5, 0.5}, {-0.5, 0.5}},
	"equilateral_triangle": {{0, -0.5}, {0.433, 0.25}, {-0.433, 0.25}},
	"pentagon":             regularPolygon(5, 0.5),
	"hexagon":              regularPolygon(6, 0.5),
	"star":                 star(5, 0.5, 0.2),
}

// markerStrokes are shapes made only of lines
var markerStrokes = map[string][][2][2]float64{
	"cross":  {{{-0.5, 0}, {0.5, 0}}, {{0, -0.5}, {0, 0.5}}},
	"cross2": {{{-0.5, -0.5}, {0.5, 0.5}}, {{-0.5, 0.5}, {0.5, -0.5}}},
	"x":      {{{-0.5, -0.5}, {0.5, 0.5}}, {{-0.5, 0.5}, {0.5, -0.5}}},
	"line":   {{{0, -0.5}, {0, 0.5}}},
}

func regularPolygon(sides int, radius float64) [][2]float64 {
	points := make([][2]float64, sides)
	for i := range points {
		angle := -math.Pi/2 + 2*math.Pi*float64(i)/float64(sides)
		points[i] = [2]float64{radius * math.Cos(angle), radius * math.Sin(angle)}
	}
	return points
}

func star(spikes int, outer, inner float64) [][2]float64 {
	points := make([][2]float64, 2*spikes)
	for i := range points {
		radius := outer
		if i%2 == 1 {
			radius = inner
		}
		angle := -math.Pi/2 + math.Pi*float64(i)/float64(spikes)
		points[i] = [2]float64{radius * math.Cos(angle), radius * math.Sin(angle)}
	}
	return points
}

func (vr *vectorRenderer) drawMarkers(points []orb.Point, layer *styling.SymbolLayer, attributes map[string]interface{}, opacity float64) {
	for _, point := range points {
		x, y := vr.viewport.toPixel(point)
		switch layer.Class {
		case styling.SymbolLayerSimpleMarker:
			vr.drawSimpleMarker(x, y, layer, attributes, opacity)
		case styling.SymbolLayerSvgMarker:
			vr.drawSvgMarker(x, y, layer, attributes, opacity)
		}
	}
}

// markerSize is the size of a marker in pixels
func (vr *vectorRenderer) markerSize(layer *styling.SymbolLayer, attributes map[string]interface{}, defaultSize float64) float64 {
	size := layer.DataDefinedFloat("size", attributes, layer.Float("size", defaultSize))
	return vr.settings.ToPixels(size, layer.Unit("size_unit"))
}

func (vr *vectorRenderer) drawSimpleMarker(x, y float64, layer *styling.SymbolLayer, attributes map[string]interface{}, opacity float64) {
	size := vr.markerSize(layer, attributes, 2)
	if size <= 0 {
		return
	}
	angle := layer.DataDefinedFloat("angle", attributes, layer.Float("angle", 0)) * math.Pi / 180

	fillColor, _ := layer.Color("color")
	fillColor = layer.DataDefinedColor("fillColor", attributes, fillColor)
	stroke, hasStroke := vr.strokeStyle(layer, "outline_", attributes, opacity)

	gc := draw2dimg.NewGraphicContext(vr.img)
	gc.SetFillColor(withOpacity(fillColor, opacity))
	stroke.apply(gc)
	gc.Translate(x, y)
	gc.Rotate(angle)

	name := layer.String("name", "circle")

	if lines, ok := markerStrokes[name]; ok {
		if !hasStroke {
			// line markers take their colour from the fill when they have no pen
			stroke.color = withOpacity(fillColor, opacity)
			stroke.width = 1
			stroke.apply(gc)
		}
		for _, line := range lines {
			gc.BeginPath()
			gc.MoveTo(line[0][0]*size, line[0][1]*size)
			gc.LineTo(line[1][0]*size, line[1][1]*size)
			gc.Stroke()
		}
		return
	}

	gc.BeginPath()
	shape, ok := markerShapes[name]
	if ok {
		for i, point := range shape {
			if i == 0 {
				gc.MoveTo(point[0]*size, point[1]*size)
				continue
			}
			gc.LineTo(point[0]*size, point[1]*size)
		}
		gc.Close()
	} else {
		draw2dkit.Circle(gc, 0, 0, size/2)
	}

	hasFill := fillColor.A > 0
	switch {
	case hasFill && hasStroke:
		gc.FillStroke()
	case hasFill:
		gc.Fill()
	case hasStroke:
		gc.Stroke()
	}
}
