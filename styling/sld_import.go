package styling

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/ownmap-headless/headless"
)

const sldRootTag = "StyledLayerDescriptor"

type keyValue struct {
	key, value string
}

// svgParameters reads the SvgParameter (SE 1.1) and CssParameter (SLD 1.0) children of el
func svgParameters(el *etree.Element) map[string]string {
	params := make(map[string]string)
	if el == nil {
		return params
	}
	for _, child := range el.ChildElements() {
		if child.Tag == "SvgParameter" || child.Tag == "CssParameter" {
			params[child.SelectAttrValue("name", "")] = strings.TrimSpace(child.Text())
		}
	}
	return params
}

// sldColor combines a hex colour with an opacity between 0 and 1
func sldColor(hex, opacity string, fallback string) string {
	if hex == "" {
		hex = fallback
	}
	c, err := ParseColor(hex)
	if err != nil {
		return ""
	}
	if opacity != "" {
		value, err := strconv.ParseFloat(opacity, 64)
		if err == nil {
			c.A = clampToByte(value * 255)
		}
	}
	return FormatColor(c)
}

func sldDashPattern(dashArray string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(dashArray, ",", " ")), ";")
}

var sldLineCaps = map[string]string{"butt": "flat", "round": "round", "square": "square"}
var sldLineJoins = map[string]string{"mitre": "miter", "round": "round", "bevel": "bevel"}

func strokeProps(stroke *etree.Element, prefix string) []keyValue {
	if stroke == nil {
		return []keyValue{{prefix + "style", "no"}}
	}

	params := svgParameters(stroke)
	width := params["stroke-width"]
	if width == "" {
		width = "1"
	}

	props := []keyValue{
		{prefix + "color", sldColor(params["stroke"], params["stroke-opacity"], "#000000")},
		{prefix + "width", width},
		{prefix + "width_unit", string(UnitPixel)},
		{prefix + "style", "solid"},
	}

	if dash := sldDashPattern(params["stroke-dasharray"]); dash != "" {
		props = append(props,
			keyValue{"use_custom_dash", "1"},
			keyValue{"customdash", dash},
			keyValue{"customdash_unit", string(UnitPixel)},
		)
	}
	if capStyle, ok := sldLineCaps[params["stroke-linecap"]]; ok {
		props = append(props, keyValue{"capstyle", capStyle})
	}
	if joinStyle, ok := sldLineJoins[params["stroke-linejoin"]]; ok {
		props = append(props, keyValue{"joinstyle", joinStyle})
	}

	return props
}

func writeSymbolLayer(symbolElement *etree.Element, class string, props []keyValue) {
	layerElement := symbolElement.CreateElement("layer")
	layerElement.CreateAttr("class", class)
	layerElement.CreateAttr("enabled", "1")
	layerElement.CreateAttr("pass", "0")
	layerElement.CreateAttr("locked", "0")
	options := layerElement.CreateElement("Option")
	options.CreateAttr("type", "Map")
	for _, prop := range props {
		addOption(options, prop.key, prop.value)
	}
}

func externalGraphicHref(graphic *etree.Element) string {
	if graphic == nil {
		return ""
	}
	externalGraphic := graphic.SelectElement("ExternalGraphic")
	if externalGraphic == nil {
		return ""
	}
	resource := externalGraphic.SelectElement("OnlineResource")
	if resource == nil {
		return ""
	}
	return resource.SelectAttrValue("xlink:href", resource.SelectAttrValue("href", ""))
}

func elementText(parent *etree.Element, tag, defaultValue string) string {
	if parent == nil {
		return defaultValue
	}
	el := parent.SelectElement(tag)
	if el == nil || strings.TrimSpace(el.Text()) == "" {
		return defaultValue
	}
	return strings.TrimSpace(el.Text())
}

func writePolygonSymbolizer(symbolElement *etree.Element, symbolizer *etree.Element) {
	fill := symbolizer.SelectElement("Fill")
	stroke := symbolizer.SelectElement("Stroke")

	if fill != nil {
		graphicFill := fill.SelectElement("GraphicFill")
		if graphicFill != nil {
			graphic := graphicFill.SelectElement("Graphic")
			href := externalGraphicHref(graphic)
			if href != "" {
				writeSymbolLayer(symbolElement, SymbolLayerSVGFill, []keyValue{
					{"svgFile", href},
					{"width", elementText(graphic, "Size", "10")},
					{"width_unit", string(UnitPixel)},
				})
				if stroke == nil {
					return
				}
				fill = nil
			}
		}
	}

	props := []keyValue{{"style", "no"}}
	if fill != nil {
		params := svgParameters(fill)
		props = []keyValue{
			{"color", sldColor(params["fill"], params["fill-opacity"], "#808080")},
			{"style", "solid"},
		}
	}
	props = append(props, strokeProps(stroke, "outline_")...)

	writeSymbolLayer(symbolElement, SymbolLayerSimpleFill, props)
}

func writeLineSymbolizer(symbolElement *etree.Element, symbolizer *etree.Element, symbolType SymbolType) {
	stroke := symbolizer.SelectElement("Stroke")

	if symbolType == SymbolTypeFill {
		props := append([]keyValue{{"style", "no"}}, strokeProps(stroke, "outline_")...)
		writeSymbolLayer(symbolElement, SymbolLayerSimpleFill, props)
		return
	}

	props := strokeProps(stroke, "line_")
	if offset := elementText(symbolizer, "PerpendicularOffset", ""); offset != "" {
		props = append(props, keyValue{"offset", offset}, keyValue{"offset_unit", string(UnitPixel)})
	}
	writeSymbolLayer(symbolElement, SymbolLayerSimpleLine, props)
}

var sldWellKnownNames = map[string]string{
	"circle":   "circle",
	"square":   "square",
	"triangle": "triangle",
	"star":     "star",
	"cross":    "cross",
	"x":        "cross2",
}

func writePointSymbolizer(symbolElement *etree.Element, symbolizer *etree.Element) {
	graphic := symbolizer.SelectElement("Graphic")
	if graphic == nil {
		return
	}

	size := elementText(graphic, "Size", "6")
	angle := elementText(graphic, "Rotation", "0")

	if href := externalGraphicHref(graphic); href != "" {
		writeSymbolLayer(symbolElement, SymbolLayerSvgMarker, []keyValue{
			{"name", href},
			{"size", size},
			{"size_unit", string(UnitPixel)},
			{"angle", angle},
		})
		return
	}

	mark := graphic.SelectElement("Mark")
	name := sldWellKnownNames[strings.ToLower(elementText(mark, "WellKnownName", "square"))]
	if name == "" {
		name = "square"
	}

	props := []keyValue{
		{"name", name},
		{"size", size},
		{"size_unit", string(UnitPixel)},
		{"angle", angle},
	}

	var fill, stroke *etree.Element
	if mark != nil {
		fill = mark.SelectElement("Fill")
		stroke = mark.SelectElement("Stroke")
	}
	fillColor := "0,0,0,0"
	if fill != nil || mark == nil {
		fillParams := svgParameters(fill)
		fillColor = sldColor(fillParams["fill"], fillParams["fill-opacity"], "#808080")
	}
	props = append(props, keyValue{"color", fillColor})
	props = append(props, strokeProps(stroke, "outline_")...)

	writeSymbolLayer(symbolElement, SymbolLayerSimpleMarker, props)
}

// labelExpression builds the label of a TextSymbolizer: a field name, or an expression concatenating text and fields
func labelExpression(label *etree.Element) (string, bool) {
	var parts []string
	var fieldName string
	fieldCount := 0
	hasOtherParts := false

	for _, token := range label.Child {
		switch t := token.(type) {
		case *etree.CharData:
			if strings.TrimSpace(t.Data) == "" {
				continue
			}
			hasOtherParts = true
			parts = append(parts, quoteString(t.Data))
		case *etree.Element:
			if t.Tag == "PropertyName" {
				fieldCount++
				fieldName = strings.TrimSpace(t.Text())
				parts = append(parts, quoteColumn(fieldName))
				continue
			}
			// functions and arithmetic
			operand, err := filterOperand(t)
			if err != nil {
				continue
			}
			hasOtherParts = true
			parts = append(parts, operand)
		}
	}

	if fieldCount == 1 && !hasOtherParts {
		return fieldName, false
	}
	return strings.Join(parts, " || "), true
}

func writeLabelSettings(ruleElement *etree.Element, symbolizer *etree.Element) {
	label := symbolizer.SelectElement("Label")
	if label == nil {
		return
	}

	fieldName, isExpression := labelExpression(label)

	settings := ruleElement.CreateElement("settings")
	textStyle := settings.CreateElement("text-style")
	textStyle.CreateAttr("fieldName", fieldName)
	textStyle.CreateAttr("isExpression", boolAttr(isExpression))

	fontParams := svgParameters(symbolizer.SelectElement("Font"))
	fontSize := fontParams["font-size"]
	if fontSize == "" {
		fontSize = "10"
	}
	textStyle.CreateAttr("fontSize", fontSize)
	textStyle.CreateAttr("fontSizeUnit", string(UnitPixel))
	if fontParams["font-family"] != "" {
		textStyle.CreateAttr("fontFamily", fontParams["font-family"])
	}

	fillParams := svgParameters(symbolizer.SelectElement("Fill"))
	textStyle.CreateAttr("textColor", sldColor(fillParams["fill"], "", "#000000"))
	textStyle.CreateAttr("textOpacity", defaultIfEmpty(fillParams["fill-opacity"], "1"))

	halo := symbolizer.SelectElement("Halo")
	if halo != nil {
		haloFill := svgParameters(halo.SelectElement("Fill"))
		buffer := textStyle.CreateElement("text-buffer")
		buffer.CreateAttr("bufferDraw", "1")
		buffer.CreateAttr("bufferSize", elementText(halo, "Radius", "1"))
		buffer.CreateAttr("bufferSizeUnits", string(UnitPixel))
		buffer.CreateAttr("bufferColor", sldColor(haloFill["fill"], "", "#ffffff"))
		buffer.CreateAttr("bufferOpacity", defaultIfEmpty(haloFill["fill-opacity"], "1"))
	}
}

func boolAttr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func defaultIfEmpty(s, defaultValue string) string {
	if s == "" {
		return defaultValue
	}
	return s
}

func sldGeometryType(namedLayer *etree.Element) headless.GeometryType {
	switch {
	case len(namedLayer.FindElements(".//PolygonSymbolizer")) != 0:
		return headless.GeometryTypePolygon
	case len(namedLayer.FindElements(".//LineSymbolizer")) != 0:
		return headless.GeometryTypeLine
	default:
		return headless.GeometryTypePoint
	}
}

var symbolTypes = map[headless.GeometryType]SymbolType{
	headless.GeometryTypePoint:   SymbolTypeMarker,
	headless.GeometryTypeLine:    SymbolTypeLine,
	headless.GeometryTypePolygon: SymbolTypeFill,
}

func ruleFilter(rule *etree.Element) (string, errorsx.Error) {
	if rule.SelectElement("ElseFilter") != nil {
		return "ELSE", nil
	}

	filter := rule.SelectElement("Filter")
	if filter == nil {
		return "", nil
	}

	children := filter.ChildElements()
	if len(children) != 1 {
		return "", errorsx.Errorf("filter needs exactly one child, found %d", len(children))
	}

	return filterToExpression(children[0])
}

// sldToQML converts the first named layer of an SLD document to a QML document with rule-based symbology and labeling
func sldToQML(sldRoot *etree.Element) (*etree.Document, errorsx.Error) {
	namedLayer := sldRoot.SelectElement("NamedLayer")
	if namedLayer == nil {
		return nil, errorsx.Errorf("SLD document has no NamedLayer")
	}
	userStyle := namedLayer.SelectElement("UserStyle")
	if userStyle == nil {
		return nil, errorsx.Errorf("SLD document has no UserStyle")
	}

	symbolType := symbolTypes[sldGeometryType(namedLayer)]

	doc, root := newQMLDocument()

	renderer := root.CreateElement(qmlRendererTag)
	renderer.CreateAttr("type", RendererTypeRuleBased)
	rules := renderer.CreateElement("rules")
	rules.CreateAttr("key", "root")
	symbols := renderer.CreateElement("symbols")

	labeling := etree.NewDocument().CreateElement(qmlLabelingTag)
	labeling.CreateAttr("type", LabelingTypeRuleBased)
	labelRules := labeling.CreateElement("rules")
	labelRules.CreateAttr("key", "root")

	symbolCount := 0
	for _, featureTypeStyle := range userStyle.SelectElements("FeatureTypeStyle") {
		for _, ruleElement := range featureTypeStyle.SelectElements("Rule") {
			filter, err := ruleFilter(ruleElement)
			if err != nil {
				return nil, err
			}

			label := elementText(ruleElement, "Title", elementText(ruleElement, "Name", ""))
			minScale := elementText(ruleElement, "MinScaleDenominator", "")
			maxScale := elementText(ruleElement, "MaxScaleDenominator", "")

			symbolElement := etree.NewDocument().CreateElement("symbol")
			symbolElement.CreateAttr("name", strconv.Itoa(symbolCount))
			symbolElement.CreateAttr("type", string(symbolType))
			symbolElement.CreateAttr("alpha", "1")

			for _, symbolizer := range ruleElement.ChildElements() {
				switch symbolizer.Tag {
				case "PolygonSymbolizer":
					if symbolType == SymbolTypeFill {
						writePolygonSymbolizer(symbolElement, symbolizer)
					}
				case "LineSymbolizer":
					if symbolType != SymbolTypeMarker {
						writeLineSymbolizer(symbolElement, symbolizer, symbolType)
					}
				case "PointSymbolizer":
					if symbolType == SymbolTypeMarker {
						writePointSymbolizer(symbolElement, symbolizer)
					}
				case "TextSymbolizer":
					labelRule := labelRules.CreateElement("rule")
					labelRule.CreateAttr("description", label)
					if filter != "" {
						labelRule.CreateAttr("filter", filter)
					}
					writeLabelSettings(labelRule, symbolizer)
					writeLabelScale(labelRule, minScale, maxScale)
				}
			}

			if len(symbolElement.SelectElements("layer")) == 0 {
				continue
			}

			ruleOut := rules.CreateElement("rule")
			ruleOut.CreateAttr("key", "rule_"+strconv.Itoa(symbolCount))
			ruleOut.CreateAttr("symbol", strconv.Itoa(symbolCount))
			if filter != "" {
				ruleOut.CreateAttr("filter", filter)
			}
			if label != "" {
				ruleOut.CreateAttr("label", label)
			}
			if minScale != "" {
				ruleOut.CreateAttr("scalemindenom", minScale)
			}
			if maxScale != "" {
				ruleOut.CreateAttr("scalemaxdenom", maxScale)
			}
			symbols.AddChild(symbolElement)
			symbolCount++
		}
	}

	if len(labelRules.SelectElements("rule")) != 0 {
		root.CreateAttr("labelsEnabled", "1")
		root.AddChild(labeling)
	}

	return doc, nil
}

// writeLabelScale maps SLD scale limits to label scale visibility
func writeLabelScale(labelRule *etree.Element, minScale, maxScale string) {
	settings := labelRule.SelectElement("settings")
	if settings == nil || (minScale == "" && maxScale == "") {
		return
	}

	rendering := settings.CreateElement("rendering")
	rendering.CreateAttr("scaleVisibility", "1")
	// the label scale limits run the other way: scaleMin is the most zoomed out scale
	if maxScale != "" {
		rendering.CreateAttr("scaleMin", maxScale)
	}
	if minScale != "" {
		rendering.CreateAttr("scaleMax", minScale)
	}
}
