package styling

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/gofs"
	"github.com/jamesrr39/ownmap-headless/headless"
)

// element and attribute names of QML documents
const (
	qmlRootTag              = "qgis"
	qmlLayerGeometryTypeTag = "layerGeometryType"
	qmlPipeTag              = "pipe"
	qmlRasterPropertiesTag  = "rasterproperties"
	qmlRasterRendererTag    = "rasterrenderer"
	qmlRendererTag          = "renderer-v2"
	qmlLabelingTag          = "labeling"
	qmlLayerOpacityTag      = "layerOpacity"
	qmlDiagramCategoryTag   = "DiagramCategory"
	qmlDataDefinedTag       = "data_defined_properties"
	qmlLabelDataDefinedTag  = "dd_properties"
)

// VectorStyle is the symbology of a vector layer
type VectorStyle struct {
	// GeometryType declared by the document. GeometryTypeUnknown when not declared.
	GeometryType headless.GeometryType
	Renderer     Renderer
	// Labeling is nil when the layer has no labels
	Labeling        *Labeling
	Opacity         float64
	diagramsEnabled bool
}

func (vs *VectorStyle) usedAttributes() []string {
	columns := make(map[string]struct{})
	vs.Renderer.addColumns(columns)
	if vs.Labeling != nil {
		vs.Labeling.addColumns(columns)
	}
	return sortedKeys(columns)
}

// symbolLoader parses symbols, reading the SVG files they reference through fs
type symbolLoader struct {
	fs gofs.Fs
}

func declaredGeometryType(root *etree.Element) (headless.GeometryType, bool) {
	el := root.SelectElement(qmlLayerGeometryTypeTag)
	if el == nil || strings.TrimSpace(el.Text()) == "" {
		return headless.GeometryTypeUnknown, false
	}

	value, err := strconv.Atoi(strings.TrimSpace(el.Text()))
	if err != nil {
		return headless.GeometryTypeUnknown, false
	}

	return headless.GeometryType(value), true
}

// detectLayerType finds the raster renderer where QGIS writes it: in the pipe, or directly under the root for old documents
func detectLayerType(root *etree.Element) headless.LayerType {
	if rasterRendererElement(root) == nil {
		return headless.LayerTypeVector
	}
	return headless.LayerTypeRaster
}

func hasEnabledDiagrams(root *etree.Element) bool {
	for _, el := range root.FindElements(".//" + qmlDiagramCategoryTag) {
		enabled, err := strconv.Atoi(el.SelectAttrValue("enabled", "0"))
		if err == nil && enabled != 0 {
			return true
		}
	}
	return false
}

func (sl *symbolLoader) parseVectorStyle(root *etree.Element, fallback Renderer) (*VectorStyle, errorsx.Error) {
	geometryType, _ := declaredGeometryType(root)

	vs := &VectorStyle{
		GeometryType:    geometryType,
		Renderer:        fallback,
		Opacity:         1,
		diagramsEnabled: hasEnabledDiagrams(root),
	}

	rendererElement := root.SelectElement(qmlRendererTag)
	if rendererElement != nil {
		renderer, err := sl.parseRenderer(rendererElement)
		if err != nil {
			return nil, err
		}
		vs.Renderer = renderer
	}

	if vs.Renderer == nil {
		vs.Renderer = &NullRenderer{}
	}

	labelingElement := root.SelectElement(qmlLabelingTag)
	if labelingElement != nil {
		labeling, err := parseLabeling(labelingElement)
		if err != nil {
			return nil, err
		}
		if labeling != nil {
			labeling.Enabled = root.SelectAttrValue("labelsEnabled", "1") != "0"
		}
		vs.Labeling = labeling
	}

	opacityElement := root.SelectElement(qmlLayerOpacityTag)
	if opacityElement != nil {
		opacity, err := strconv.ParseFloat(strings.TrimSpace(opacityElement.Text()), 64)
		if err != nil {
			return nil, errorsx.Wrap(err, "element", qmlLayerOpacityTag)
		}
		vs.Opacity = opacity
	}

	return vs, nil
}

func (sl *symbolLoader) parseRenderer(el *etree.Element) (Renderer, errorsx.Error) {
	rendererType := el.SelectAttrValue("type", "")

	symbols, err := sl.parseSymbols(el.SelectElement("symbols"))
	if err != nil {
		return nil, err
	}

	switch rendererType {
	case RendererTypeSingleSymbol:
		symbol, ok := symbols["0"]
		if !ok {
			return nil, errorsx.Errorf("single symbol renderer without a symbol")
		}
		return &SingleSymbolRenderer{symbol}, nil
	case RendererTypeCategorized:
		return parseCategorizedRenderer(el, symbols)
	case RendererTypeGraduated:
		return parseGraduatedRenderer(el, symbols)
	case RendererTypeRuleBased:
		return parseRuleBasedRenderer(el, symbols)
	case RendererTypeNull:
		return &NullRenderer{}, nil
	}

	// point displacement, inverted polygons and similar renderers draw through an embedded renderer
	embedded := el.SelectElement(qmlRendererTag)
	if embedded != nil {
		return sl.parseRenderer(embedded)
	}

	return nil, errorsx.Errorf("unsupported renderer type %q", rendererType)
}

func parseCategorizedRenderer(el *etree.Element, symbols map[string]*Symbol) (Renderer, errorsx.Error) {
	renderer := &CategorizedRenderer{
		Attribute: newClassificationAttribute(el.SelectAttrValue("attr", "")),
	}

	categoriesElement := el.SelectElement("categories")
	if categoriesElement == nil {
		return renderer, nil
	}

	for _, categoryElement := range categoriesElement.SelectElements("category") {
		symbolName := categoryElement.SelectAttrValue("symbol", "")
		symbol, ok := symbols[symbolName]
		if !ok {
			return nil, errorsx.Errorf("category refers to unknown symbol %q", symbolName)
		}

		renderer.Categories = append(renderer.Categories, &Category{
			Value:  categoryElement.SelectAttrValue("value", ""),
			Label:  categoryElement.SelectAttrValue("label", ""),
			Symbol: symbol,
			Render: parseBoolAttr(categoryElement, "render", true),
		})
	}

	return renderer, nil
}

func parseGraduatedRenderer(el *etree.Element, symbols map[string]*Symbol) (Renderer, errorsx.Error) {
	renderer := &GraduatedRenderer{
		Attribute: newClassificationAttribute(el.SelectAttrValue("attr", "")),
	}

	rangesElement := el.SelectElement("ranges")
	if rangesElement == nil {
		return renderer, nil
	}

	for _, rangeElement := range rangesElement.SelectElements("range") {
		lower, err := strconv.ParseFloat(rangeElement.SelectAttrValue("lower", ""), 64)
		if err != nil {
			return nil, errorsx.Wrap(err, "attribute", "lower")
		}
		upper, err := strconv.ParseFloat(rangeElement.SelectAttrValue("upper", ""), 64)
		if err != nil {
			return nil, errorsx.Wrap(err, "attribute", "upper")
		}

		symbolName := rangeElement.SelectAttrValue("symbol", "")
		symbol, ok := symbols[symbolName]
		if !ok {
			return nil, errorsx.Errorf("range refers to unknown symbol %q", symbolName)
		}

		renderer.Ranges = append(renderer.Ranges, &Range{
			Lower:  lower,
			Upper:  upper,
			Label:  rangeElement.SelectAttrValue("label", ""),
			Symbol: symbol,
			Render: parseBoolAttr(rangeElement, "render", true),
		})
	}

	return renderer, nil
}

func parseRuleBasedRenderer(el *etree.Element, symbols map[string]*Symbol) (Renderer, errorsx.Error) {
	root := &Rule{Active: true}

	rulesElement := el.SelectElement("rules")
	if rulesElement != nil {
		children, err := parseRules(rulesElement, symbols)
		if err != nil {
			return nil, err
		}
		root.Children = children
	}

	return &RuleBasedRenderer{root}, nil
}

func parseRules(parent *etree.Element, symbols map[string]*Symbol) ([]*Rule, errorsx.Error) {
	var rules []*Rule
	for _, ruleElement := range parent.SelectElements("rule") {
		rule := &Rule{
			Label:  ruleElement.SelectAttrValue("label", ""),
			Active: parseBoolAttr(ruleElement, "active", true),
		}

		filter := strings.TrimSpace(ruleElement.SelectAttrValue("filter", ""))
		switch {
		case strings.EqualFold(filter, "ELSE"):
			rule.IsElse = true
		case filter != "":
			expression, err := ParseExpression(filter)
			if err != nil {
				return nil, err
			}
			rule.Filter = expression
		}

		symbolName := ruleElement.SelectAttrValue("symbol", "")
		if symbolName != "" {
			symbol, ok := symbols[symbolName]
			if !ok {
				return nil, errorsx.Errorf("rule refers to unknown symbol %q", symbolName)
			}
			rule.Symbol = symbol
		}

		rule.MinScaleDenominator = parseFloatAttr(ruleElement, "scalemindenom", 0)
		rule.MaxScaleDenominator = parseFloatAttr(ruleElement, "scalemaxdenom", 0)

		children, err := parseRules(ruleElement, symbols)
		if err != nil {
			return nil, err
		}
		rule.Children = children

		rules = append(rules, rule)
	}

	return rules, nil
}

func (sl *symbolLoader) parseSymbols(el *etree.Element) (map[string]*Symbol, errorsx.Error) {
	symbols := make(map[string]*Symbol)
	if el == nil {
		return symbols, nil
	}

	for _, symbolElement := range el.SelectElements("symbol") {
		symbol, err := sl.parseSymbol(symbolElement)
		if err != nil {
			return nil, err
		}
		symbols[symbol.Name] = symbol
	}

	return symbols, nil
}

func (sl *symbolLoader) parseSymbol(el *etree.Element) (*Symbol, errorsx.Error) {
	symbolType := SymbolType(el.SelectAttrValue("type", ""))
	switch symbolType {
	case SymbolTypeMarker, SymbolTypeLine, SymbolTypeFill:
	default:
		return nil, errorsx.Errorf("unknown symbol type %q", symbolType)
	}

	symbol := &Symbol{
		Name:    el.SelectAttrValue("name", ""),
		Type:    symbolType,
		Opacity: parseFloatAttr(el, "alpha", 1),
	}

	for _, layerElement := range el.SelectElements("layer") {
		layer, err := sl.parseSymbolLayer(layerElement)
		if err != nil {
			return nil, errorsx.Wrap(err, "symbol", symbol.Name)
		}
		symbol.Layers = append(symbol.Layers, layer)
	}

	return symbol, nil
}

func (sl *symbolLoader) parseSymbolLayer(el *etree.Element) (*SymbolLayer, errorsx.Error) {
	layer := &SymbolLayer{
		Class:       el.SelectAttrValue("class", ""),
		Enabled:     parseBoolAttr(el, "enabled", true),
		Props:       make(map[string]string),
		DataDefined: make(map[string]*Property),
	}

	// QGIS 3.16 to 3.26 write both encodings, newer versions only Option
	for _, prop := range el.SelectElements("prop") {
		layer.Props[prop.SelectAttrValue("k", "")] = prop.SelectAttrValue("v", "")
	}
	optionMap := el.SelectElement("Option")
	if optionMap != nil {
		for name, option := range childOptions(optionMap) {
			layer.Props[name] = option.SelectAttrValue("value", "")
		}
	}

	ddElement := el.SelectElement(qmlDataDefinedTag)
	if ddElement != nil {
		properties, err := parseDataDefinedProperties(ddElement)
		if err != nil {
			return nil, err
		}
		layer.DataDefined = properties
	}

	subSymbolElement := el.SelectElement("symbol")
	if subSymbolElement != nil {
		subSymbol, err := sl.parseSymbol(subSymbolElement)
		if err != nil {
			return nil, err
		}
		layer.SubSymbol = subSymbol
	}

	svgPath := layer.svgPath()
	if svgPath != "" {
		layer.SVGData = sl.readSVG(svgPath)
	}

	return layer, nil
}

// childOptions indexes the named <Option> children of an <Option type="Map">
func childOptions(el *etree.Element) map[string]*etree.Element {
	options := make(map[string]*etree.Element)
	for _, option := range el.SelectElements("Option") {
		name := option.SelectAttrValue("name", "")
		if name != "" {
			options[name] = option
		}
	}
	return options
}

func optionValue(options map[string]*etree.Element, name string) string {
	option, ok := options[name]
	if !ok {
		return ""
	}
	return option.SelectAttrValue("value", "")
}

// parseDataDefinedProperties reads a property collection:
// <Option type="Map"><Option name="properties" type="Map"><Option name="size" type="Map">...</Option></Option></Option>
func parseDataDefinedProperties(el *etree.Element) (map[string]*Property, errorsx.Error) {
	properties := make(map[string]*Property)

	collection := el.SelectElement("Option")
	if collection == nil {
		return properties, nil
	}

	propertiesElement, ok := childOptions(collection)["properties"]
	if !ok {
		return properties, nil
	}

	for name, propertyElement := range childOptions(propertiesElement) {
		options := childOptions(propertyElement)

		propertyType, err := strconv.Atoi(optionValue(options, "type"))
		if err != nil {
			propertyType = int(PropertyTypeInvalid)
		}

		property := &Property{
			Active:      parseBoolString(optionValue(options, "active"), false),
			Type:        PropertyType(propertyType),
			StaticValue: optionValue(options, "val"),
			Field:       optionValue(options, "field"),
		}

		if property.Type == PropertyTypeExpression {
			source := optionValue(options, "expression")
			if strings.TrimSpace(source) != "" {
				expression, err := ParseExpression(source)
				if err != nil {
					return nil, errorsx.Wrap(err, "property", name)
				}
				property.Expression = expression
			}
		}

		properties[name] = property
	}

	return properties, nil
}

func parseBoolString(s string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return defaultValue
	}
}

func parseBoolAttr(el *etree.Element, name string, defaultValue bool) bool {
	return parseBoolString(el.SelectAttrValue(name, ""), defaultValue)
}

func parseFloatAttr(el *etree.Element, name string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(el.SelectAttrValue(name, "")), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func parseIntAttr(el *etree.Element, name string, defaultValue int) int {
	value, err := strconv.Atoi(strings.TrimSpace(el.SelectAttrValue(name, "")))
	if err != nil {
		return defaultValue
	}
	return value
}
