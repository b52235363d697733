package styling

import (
	"image/color"
	"strconv"
	"strings"
)

// Unit is the unit of a size, width or offset in a symbol
type Unit string

const (
	UnitMillimeter          Unit = "MM"
	UnitPixel               Unit = "Pixel"
	UnitPoint               Unit = "Point"
	UnitInch                Unit = "Inch"
	UnitMapUnit             Unit = "MapUnit"
	UnitMetersInMapUnits    Unit = "RenderMetersInMapUnits"
	defaultSymbolSizeUnit        = UnitMillimeter
	defaultLabelFontSizeUnit     = UnitPoint
)

func ParseUnit(s string, defaultUnit Unit) Unit {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mm":
		return UnitMillimeter
	case "pixel", "px":
		return UnitPixel
	case "point", "points", "pt":
		return UnitPoint
	case "inch":
		return UnitInch
	case "mapunit":
		return UnitMapUnit
	case "rendermetersinmapunits":
		return UnitMetersInMapUnits
	default:
		return defaultUnit
	}
}

type SymbolType string

const (
	SymbolTypeMarker SymbolType = "marker"
	SymbolTypeLine   SymbolType = "line"
	SymbolTypeFill   SymbolType = "fill"
)

// symbol layer classes understood by the renderer
const (
	SymbolLayerSimpleFill   = "SimpleFill"
	SymbolLayerSimpleLine   = "SimpleLine"
	SymbolLayerSimpleMarker = "SimpleMarker"
	SymbolLayerSvgMarker    = "SvgMarker"
	SymbolLayerSVGFill      = "SVGFill"
)

// Symbol is a stack of symbol layers, drawn bottom first
type Symbol struct {
	Name    string
	Type    SymbolType
	Opacity float64
	Layers  []*SymbolLayer
}

type SymbolLayer struct {
	Class       string
	Enabled     bool
	Props       map[string]string
	DataDefined map[string]*Property
	SubSymbol   *Symbol
	// SVGData is the content of the SVG file of SvgMarker and SVGFill layers, read when the style was created
	SVGData []byte
}

func (sl *SymbolLayer) String(key, defaultValue string) string {
	value, ok := sl.Props[key]
	if !ok || value == "" {
		return defaultValue
	}
	return value
}

func (sl *SymbolLayer) Float(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(sl.Props[key]), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func (sl *SymbolLayer) Bool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(sl.Props[key])) {
	case "1", "true":
		return true
	case "0", "false":
		return false
	default:
		return defaultValue
	}
}

// Color returns the colour stored under key. ok is false when there is no valid colour.
func (sl *SymbolLayer) Color(key string) (color.NRGBA, bool) {
	value, ok := sl.Props[key]
	if !ok {
		return color.NRGBA{}, false
	}
	c, err := ParseColor(value)
	if err != nil {
		return color.NRGBA{}, false
	}
	return c, true
}

func (sl *SymbolLayer) Unit(key string) Unit {
	return ParseUnit(sl.Props[key], defaultSymbolSizeUnit)
}

// DataDefinedFloat evaluates an active data-defined property, falling back to the static value
func (sl *SymbolLayer) DataDefinedFloat(name string, attributes map[string]interface{}, staticValue float64) float64 {
	property, ok := sl.DataDefined[name]
	if !ok || !property.Active {
		return staticValue
	}

	number, ok := toNumber(property.Evaluate(attributes))
	if !ok {
		return staticValue
	}
	return number
}

func (sl *SymbolLayer) DataDefinedColor(name string, attributes map[string]interface{}, staticValue color.NRGBA) color.NRGBA {
	property, ok := sl.DataDefined[name]
	if !ok || !property.Active {
		return staticValue
	}

	value := property.Evaluate(attributes)
	if value == nil {
		return staticValue
	}

	c, err := ParseColor(toString(value))
	if err != nil {
		return staticValue
	}
	return c
}

type PropertyType int

const (
	PropertyTypeInvalid PropertyType = iota
	PropertyTypeStatic
	PropertyTypeField
	PropertyTypeExpression
)

// Property is a data-defined property: a value read from a field or computed by an expression for each feature
type Property struct {
	Active      bool
	Type        PropertyType
	StaticValue string
	Field       string
	Expression  *Expression
}

func (p *Property) Evaluate(attributes map[string]interface{}) interface{} {
	switch p.Type {
	case PropertyTypeStatic:
		return p.StaticValue
	case PropertyTypeField:
		return normaliseValue(attributes[p.Field])
	case PropertyTypeExpression:
		if p.Expression == nil {
			return nil
		}
		return p.Expression.Evaluate(attributes)
	default:
		return nil
	}
}

func (p *Property) addColumns(columns map[string]struct{}) {
	if !p.Active {
		return
	}

	switch p.Type {
	case PropertyTypeField:
		if p.Field != "" {
			columns[p.Field] = struct{}{}
		}
	case PropertyTypeExpression:
		if p.Expression != nil {
			p.Expression.root.addColumns(columns)
		}
	}
}

func (s *Symbol) addColumns(columns map[string]struct{}) {
	if s == nil {
		return
	}

	for _, layer := range s.Layers {
		for _, property := range layer.DataDefined {
			property.addColumns(columns)
		}
		layer.SubSymbol.addColumns(columns)
	}
}

// symbolLayers walks all symbol layers, sub-symbols included
func (s *Symbol) symbolLayers(f func(layer *SymbolLayer)) {
	if s == nil {
		return
	}

	for _, layer := range s.Layers {
		f(layer)
		layer.SubSymbol.symbolLayers(f)
	}
}

// penStyles are the dash patterns of the QGIS pen styles, in multiples of the line width
var penStyles = map[string][]float64{
	"dash":         {4, 2},
	"dot":          {1, 2},
	"dash dot":     {4, 2, 1, 2},
	"dash dot dot": {4, 2, 1, 2, 1, 2},
}

// StrokeVisible is false when the pen style under prefix+"style" is "no"
func (sl *SymbolLayer) StrokeVisible(prefix string) bool {
	return sl.String(prefix+"style", "solid") != "no"
}

// DashPattern returns the dash pattern of the line described by the keys starting with prefix ("line_", "outline_"),
// or nil for solid lines. Custom dashes take precedence over the pen style.
func (sl *SymbolLayer) DashPattern(prefix string, width float64) ([]float64, Unit) {
	if sl.Bool("use_custom_dash", false) {
		var pattern []float64
		for _, part := range strings.Split(sl.String("customdash", ""), ";") {
			value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return nil, defaultSymbolSizeUnit
			}
			pattern = append(pattern, value)
		}
		return pattern, ParseUnit(sl.Props["customdash_unit"], defaultSymbolSizeUnit)
	}

	style, ok := penStyles[sl.String(prefix+"style", "solid")]
	if !ok {
		return nil, defaultSymbolSizeUnit
	}

	unit := sl.Unit(prefix + "width_unit")
	if width <= 0 {
		// hairlines
		width = 1
		unit = UnitPixel
	}

	pattern := make([]float64, len(style))
	for i, multiple := range style {
		pattern[i] = multiple * width
	}
	return pattern, unit
}
