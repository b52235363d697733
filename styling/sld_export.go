package styling

import (
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/ownmap-headless/headless"
)

// SLD sizes are in pixels at 96 DPI
const sldDPI = 96

var sldNamespaces = []keyValue{
	{"xmlns", "http://www.opengis.net/sld"},
	{"xmlns:ogc", "http://www.opengis.net/ogc"},
	{"xmlns:se", "http://www.opengis.net/se"},
	{"xmlns:xlink", "http://www.w3.org/1999/xlink"},
	{"xmlns:xsi", "http://www.w3.org/2001/XMLSchema-instance"},
	{"version", "1.1.0"},
}

func sizeToSLD(value float64, unit Unit) string {
	switch unit {
	case UnitMillimeter:
		value = value * sldDPI / 25.4
	case UnitPoint:
		value = value * sldDPI / 72
	case UnitInch:
		value = value * sldDPI
	}
	return strconv.FormatFloat(math.Round(value*100)/100, 'f', -1, 64)
}

func opacityToSLD(c color.NRGBA) string {
	return strconv.FormatFloat(math.Round(float64(c.A)/255*100)/100, 'f', -1, 64)
}

func addSvgParameter(parent *etree.Element, name, value string) {
	el := parent.CreateElement("se:SvgParameter")
	el.CreateAttr("name", name)
	el.SetText(value)
}

func (s *Style) exportSLD() (string, errorsx.Error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(sldRootTag)
	for _, attr := range sldNamespaces {
		root.CreateAttr(attr.key, attr.value)
	}

	namedLayer := root.CreateElement("NamedLayer")
	namedLayer.CreateElement("se:Name").SetText("layer")
	userStyle := namedLayer.CreateElement("UserStyle")
	userStyle.CreateElement("se:Name").SetText("layer")
	featureTypeStyle := userStyle.CreateElement("se:FeatureTypeStyle")

	var err errorsx.Error
	if s.layerType == headless.LayerTypeRaster {
		writeRasterSymbolizerRule(featureTypeStyle, s.raster)
	} else {
		err = writeVectorRules(featureTypeStyle, s.vector)
	}
	if err != nil {
		return "", err
	}

	doc.Indent(2)
	data, writeErr := doc.WriteToString()
	if writeErr != nil {
		return "", errorsx.Wrap(writeErr)
	}
	return data, nil
}

type sldRule struct {
	name     string
	filter   node
	isElse   bool
	minScale float64
	maxScale float64
}

func (r sldRule) write(parent *etree.Element) (*etree.Element, errorsx.Error) {
	ruleElement := parent.CreateElement("se:Rule")
	if r.name != "" {
		ruleElement.CreateElement("se:Name").SetText(r.name)
		ruleElement.CreateElement("se:Description").CreateElement("se:Title").SetText(r.name)
	}

	switch {
	case r.isElse:
		ruleElement.CreateElement("se:ElseFilter")
	case r.filter != nil:
		err := writeFilter(ruleElement.CreateElement("ogc:Filter"), r.filter)
		if err != nil {
			return nil, err
		}
	}

	if r.minScale > 0 {
		ruleElement.CreateElement("se:MinScaleDenominator").SetText(strconv.FormatFloat(r.minScale, 'f', -1, 64))
	}
	if r.maxScale > 0 {
		ruleElement.CreateElement("se:MaxScaleDenominator").SetText(strconv.FormatFloat(r.maxScale, 'f', -1, 64))
	}

	return ruleElement, nil
}

func (a ClassificationAttribute) node() node {
	if a.expression != nil {
		return a.expression.root
	}
	return &columnNode{a.Source}
}

func andNodes(nodes []node) node {
	var result node
	for _, n := range nodes {
		if result == nil {
			result = n
			continue
		}
		result = &logicalNode{logicalOperatorAnd, result, n}
	}
	return result
}

func writeVectorRules(parent *etree.Element, vs *VectorStyle) errorsx.Error {
	switch renderer := vs.Renderer.(type) {
	case *SingleSymbolRenderer:
		err := writeSymbolRule(parent, sldRule{name: "Single symbol"}, renderer.Symbol)
		if err != nil {
			return err
		}
	case *CategorizedRenderer:
		for _, category := range renderer.Categories {
			if !category.Render {
				continue
			}
			rule := sldRule{name: defaultIfEmpty(category.Label, category.Value)}
			if category.Value == "" {
				rule.isElse = true
			} else {
				rule.filter = &comparisonNode{"=", renderer.Attribute.node(), &literalNode{category.Value}}
			}
			err := writeSymbolRule(parent, rule, category.Symbol)
			if err != nil {
				return err
			}
		}
	case *GraduatedRenderer:
		for _, rng := range renderer.Ranges {
			if !rng.Render {
				continue
			}
			attribute := renderer.Attribute.node()
			rule := sldRule{
				name: rng.Label,
				filter: &logicalNode{
					logicalOperatorAnd,
					&comparisonNode{">=", attribute, &literalNode{rng.Lower}},
					&comparisonNode{"<=", attribute, &literalNode{rng.Upper}},
				},
			}
			err := writeSymbolRule(parent, rule, rng.Symbol)
			if err != nil {
				return err
			}
		}
	case *RuleBasedRenderer:
		err := writeRuleTree(parent, renderer.Root, nil)
		if err != nil {
			return err
		}
	}

	if vs.Labeling != nil && vs.Labeling.Enabled {
		return writeLabelRules(parent, vs.Labeling.Root, nil)
	}

	return nil
}

// writeRuleTree flattens nested rules, combining the filters of parents with AND
func writeRuleTree(parent *etree.Element, rule *Rule, filters []node) errorsx.Error {
	for _, child := range rule.Children {
		if !child.Active {
			continue
		}

		childFilters := filters
		if child.Filter != nil {
			childFilters = append(append([]node{}, filters...), child.Filter.root)
		}

		if child.Symbol != nil {
			sr := sldRule{
				name:     child.Label,
				filter:   andNodes(childFilters),
				isElse:   child.IsElse && len(filters) == 0,
				minScale: child.MinScaleDenominator,
				maxScale: child.MaxScaleDenominator,
			}
			err := writeSymbolRule(parent, sr, child.Symbol)
			if err != nil {
				return err
			}
		}

		err := writeRuleTree(parent, child, childFilters)
		if err != nil {
			return err
		}
	}
	return nil
}

func writeLabelRules(parent *etree.Element, rule *LabelRule, filters []node) errorsx.Error {
	for _, child := range rule.Children {
		if !child.Active {
			continue
		}

		childFilters := filters
		if child.Filter != nil {
			childFilters = append(append([]node{}, filters...), child.Filter.root)
		}

		if child.Settings != nil && child.Settings.DrawLabels {
			sr := sldRule{
				name:   child.Description,
				filter: andNodes(childFilters),
				isElse: child.IsElse && len(filters) == 0,
			}
			if child.Settings.scaleVisibility {
				sr.minScale = child.Settings.MaxScaleDenominator
				sr.maxScale = child.Settings.MinScaleDenominator
			}
			ruleElement, err := sr.write(parent)
			if err != nil {
				return err
			}
			err = writeTextSymbolizer(ruleElement, child.Settings)
			if err != nil {
				return err
			}
		}

		err := writeLabelRules(parent, child, childFilters)
		if err != nil {
			return err
		}
	}
	return nil
}

func writeTextSymbolizer(ruleElement *etree.Element, settings *LabelSettings) errorsx.Error {
	symbolizer := ruleElement.CreateElement("se:TextSymbolizer")

	label := symbolizer.CreateElement("se:Label")
	if settings.expression != nil {
		err := writeFilterOperand(label, settings.expression.root)
		if err != nil {
			return err
		}
	} else {
		label.CreateElement("ogc:PropertyName").SetText(settings.FieldName)
	}

	font := symbolizer.CreateElement("se:Font")
	if settings.FontFamily != "" {
		addSvgParameter(font, "font-family", settings.FontFamily)
	}
	addSvgParameter(font, "font-size", sizeToSLD(settings.FontSize, settings.FontSizeUnit))

	if settings.BufferDraw {
		halo := symbolizer.CreateElement("se:Halo")
		halo.CreateElement("se:Radius").SetText(sizeToSLD(settings.BufferSize, settings.BufferSizeUnit))
		addSvgParameter(halo.CreateElement("se:Fill"), "fill", FormatHexColor(settings.BufferColor))
	}

	fill := symbolizer.CreateElement("se:Fill")
	addSvgParameter(fill, "fill", FormatHexColor(settings.TextColor))
	if settings.TextOpacity < 1 {
		addSvgParameter(fill, "fill-opacity", strconv.FormatFloat(settings.TextOpacity, 'f', -1, 64))
	}

	return nil
}

func writeSymbolRule(parent *etree.Element, rule sldRule, symbol *Symbol) errorsx.Error {
	ruleElement, err := rule.write(parent)
	if err != nil {
		return err
	}
	writeSymbolizers(ruleElement, symbol)
	return nil
}

func writeSymbolizers(ruleElement *etree.Element, symbol *Symbol) {
	if symbol == nil {
		return
	}

	for _, layer := range symbol.Layers {
		if !layer.Enabled {
			continue
		}

		switch layer.Class {
		case SymbolLayerSimpleFill:
			symbolizer := ruleElement.CreateElement("se:PolygonSymbolizer")
			if layer.String("style", "solid") != "no" {
				fillColor, _ := layer.Color("color")
				writeSLDFill(symbolizer, fillColor)
			}
			writeSLDStroke(symbolizer, layer, "outline_", 0.26)
		case SymbolLayerSimpleLine:
			symbolizer := ruleElement.CreateElement("se:LineSymbolizer")
			writeSLDStroke(symbolizer, layer, "line_", 0.26)
			if offset := layer.Float("offset", 0); offset != 0 {
				symbolizer.CreateElement("se:PerpendicularOffset").SetText(sizeToSLD(offset, layer.Unit("offset_unit")))
			}
		case SymbolLayerSimpleMarker:
			graphic := ruleElement.CreateElement("se:PointSymbolizer").CreateElement("se:Graphic")
			mark := graphic.CreateElement("se:Mark")
			mark.CreateElement("se:WellKnownName").SetText(sldWellKnownName(layer.String("name", "circle")))
			fillColor, _ := layer.Color("color")
			writeSLDFill(mark, fillColor)
			writeSLDStroke(mark, layer, "outline_", 0)
			graphic.CreateElement("se:Size").SetText(sizeToSLD(layer.Float("size", 2), layer.Unit("size_unit")))
			if angle := layer.Float("angle", 0); angle != 0 {
				graphic.CreateElement("se:Rotation").SetText(strconv.FormatFloat(angle, 'f', -1, 64))
			}
		case SymbolLayerSvgMarker:
			graphic := ruleElement.CreateElement("se:PointSymbolizer").CreateElement("se:Graphic")
			writeExternalGraphic(graphic, layer.svgPath())
			graphic.CreateElement("se:Size").SetText(sizeToSLD(layer.Float("size", 2), layer.Unit("size_unit")))
		case SymbolLayerSVGFill:
			graphic := ruleElement.CreateElement("se:PolygonSymbolizer").
				CreateElement("se:Fill").
				CreateElement("se:GraphicFill").
				CreateElement("se:Graphic")
			writeExternalGraphic(graphic, layer.svgPath())
			graphic.CreateElement("se:Size").SetText(sizeToSLD(layer.Float("width", 10), layer.Unit("width_unit")))
		}

		writeSymbolizers(ruleElement, layer.SubSymbol)
	}
}

func sldWellKnownName(qgisName string) string {
	for sldName, name := range sldWellKnownNames {
		if name == qgisName {
			return sldName
		}
	}
	return "square"
}

func writeExternalGraphic(graphic *etree.Element, path string) {
	externalGraphic := graphic.CreateElement("se:ExternalGraphic")
	resource := externalGraphic.CreateElement("se:OnlineResource")
	resource.CreateAttr("xlink:type", "simple")
	resource.CreateAttr("xlink:href", path)
	externalGraphic.CreateElement("se:Format").SetText("image/svg+xml")
}

func writeSLDFill(parent *etree.Element, c color.NRGBA) {
	fill := parent.CreateElement("se:Fill")
	addSvgParameter(fill, "fill", FormatHexColor(c))
	if c.A < 255 {
		addSvgParameter(fill, "fill-opacity", opacityToSLD(c))
	}
}

var sldLineCapsByQGIS = map[string]string{"flat": "butt", "round": "round", "square": "square"}
var sldLineJoinsByQGIS = map[string]string{"miter": "mitre", "round": "round", "bevel": "bevel"}

func writeSLDStroke(parent *etree.Element, layer *SymbolLayer, prefix string, defaultWidth float64) {
	if !layer.StrokeVisible(prefix) {
		return
	}

	strokeColor, ok := layer.Color(prefix + "color")
	if !ok {
		strokeColor = defaultOutlineColor
	}
	width := layer.Float(prefix+"width", defaultWidth)
	unit := layer.Unit(prefix + "width_unit")

	stroke := parent.CreateElement("se:Stroke")
	addSvgParameter(stroke, "stroke", FormatHexColor(strokeColor))
	if strokeColor.A < 255 {
		addSvgParameter(stroke, "stroke-opacity", opacityToSLD(strokeColor))
	}
	addSvgParameter(stroke, "stroke-width", sizeToSLD(width, unit))
	if join, ok := sldLineJoinsByQGIS[layer.String("joinstyle", "")]; ok {
		addSvgParameter(stroke, "stroke-linejoin", join)
	}
	if lineCap, ok := sldLineCapsByQGIS[layer.String("capstyle", "")]; ok {
		addSvgParameter(stroke, "stroke-linecap", lineCap)
	}

	pattern, patternUnit := layer.DashPattern(prefix, width)
	if len(pattern) != 0 {
		var parts []string
		for _, dash := range pattern {
			parts = append(parts, sizeToSLD(dash, patternUnit))
		}
		addSvgParameter(stroke, "stroke-dasharray", strings.Join(parts, " "))
	}
}

func writeRasterSymbolizerRule(parent *etree.Element, rs *RasterStyle) {
	symbolizer := parent.CreateElement("se:Rule").CreateElement("se:RasterSymbolizer")
	symbolizer.CreateElement("se:Opacity").SetText(strconv.FormatFloat(rs.Opacity, 'f', -1, 64))

	switch renderer := rs.Renderer.(type) {
	case *MultiBandColorRenderer:
		channels := symbolizer.CreateElement("se:ChannelSelection")
		for _, channel := range []struct {
			tag  string
			band int
		}{
			{"se:RedChannel", renderer.RedBand},
			{"se:GreenChannel", renderer.GreenBand},
			{"se:BlueChannel", renderer.BlueBand},
		} {
			channels.CreateElement(channel.tag).CreateElement("se:SourceChannelName").SetText(strconv.Itoa(channel.band))
		}
	case *SingleBandGrayRenderer:
		channels := symbolizer.CreateElement("se:ChannelSelection")
		channels.CreateElement("se:GrayChannel").CreateElement("se:SourceChannelName").SetText(strconv.Itoa(renderer.GrayBand))
	case *PalettedRenderer:
		colorMap := symbolizer.CreateElement("se:ColorMap")
		colorMap.CreateAttr("type", "values")
		for _, entry := range renderer.Entries {
			writeColorMapEntry(colorMap, entry.Value, entry.Color, entry.Label)
		}
	case *PseudoColorRenderer:
		colorMap := symbolizer.CreateElement("se:ColorMap")
		switch renderer.RampType {
		case ColorRampDiscrete:
			colorMap.CreateAttr("type", "intervals")
		case ColorRampExact:
			colorMap.CreateAttr("type", "values")
		default:
			colorMap.CreateAttr("type", "ramp")
		}
		for _, item := range renderer.Items {
			writeColorMapEntry(colorMap, item.Value, item.Color, item.Label)
		}
	}
}

func writeColorMapEntry(colorMap *etree.Element, value float64, c color.NRGBA, label string) {
	entry := colorMap.CreateElement("se:ColorMapEntry")
	entry.CreateAttr("color", FormatHexColor(c))
	entry.CreateAttr("quantity", strconv.FormatFloat(value, 'f', -1, 64))
	entry.CreateAttr("label", label)
	if c.A < 255 {
		entry.CreateAttr("opacity", opacityToSLD(c))
	}
}
