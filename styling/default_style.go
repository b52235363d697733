package styling

import (
	"image/color"
	"strconv"

	"github.com/beevik/etree"
	"github.com/jamesrr39/ownmap-headless/headless"
)

// DefaultColor is used by default styles created without a colour
var DefaultColor = color.NRGBA{R: 0x1f, G: 0x78, B: 0xb4, A: 0xff}

var defaultOutlineColor = color.NRGBA{35, 35, 35, 255}

const qmlVersion = "3.22.0-Białowieża"

func newQMLDocument() (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(qmlRootTag)
	root.CreateAttr("version", qmlVersion)
	return doc, root
}

func addOption(parent *etree.Element, name, value string) {
	option := parent.CreateElement("Option")
	option.CreateAttr("name", name)
	option.CreateAttr("type", "QString")
	option.CreateAttr("value", value)
}

// defaultSymbolElement writes the single simple symbol layer QGIS creates for new layers
func defaultSymbolElement(parent *etree.Element, c color.NRGBA, geometryType headless.GeometryType) {
	symbolElement := parent.CreateElement("symbol")
	symbolElement.CreateAttr("name", "0")
	symbolElement.CreateAttr("alpha", "1")
	symbolElement.CreateAttr("clip_to_extent", "1")

	layerElement := symbolElement.CreateElement("layer")
	layerElement.CreateAttr("enabled", "1")
	layerElement.CreateAttr("pass", "0")
	layerElement.CreateAttr("locked", "0")
	options := layerElement.CreateElement("Option")
	options.CreateAttr("type", "Map")

	switch geometryType {
	case headless.GeometryTypePoint:
		symbolElement.CreateAttr("type", string(SymbolTypeMarker))
		layerElement.CreateAttr("class", SymbolLayerSimpleMarker)
		addOption(options, "color", FormatColor(c))
		addOption(options, "name", "circle")
		addOption(options, "outline_color", FormatColor(defaultOutlineColor))
		addOption(options, "outline_style", "solid")
		addOption(options, "outline_width", "0")
		addOption(options, "outline_width_unit", string(UnitMillimeter))
		addOption(options, "size", "2")
		addOption(options, "size_unit", string(UnitMillimeter))
	case headless.GeometryTypeLine:
		symbolElement.CreateAttr("type", string(SymbolTypeLine))
		layerElement.CreateAttr("class", SymbolLayerSimpleLine)
		addOption(options, "capstyle", "square")
		addOption(options, "joinstyle", "bevel")
		addOption(options, "line_color", FormatColor(c))
		addOption(options, "line_style", "solid")
		addOption(options, "line_width", "0.26")
		addOption(options, "line_width_unit", string(UnitMillimeter))
	default:
		symbolElement.CreateAttr("type", string(SymbolTypeFill))
		layerElement.CreateAttr("class", SymbolLayerSimpleFill)
		addOption(options, "color", FormatColor(c))
		addOption(options, "joinstyle", "bevel")
		addOption(options, "outline_color", FormatColor(defaultOutlineColor))
		addOption(options, "outline_style", "solid")
		addOption(options, "outline_width", "0.26")
		addOption(options, "outline_width_unit", string(UnitMillimeter))
		addOption(options, "style", "solid")
	}
}

func defaultSymbol(c color.NRGBA, geometryType headless.GeometryType) *Symbol {
	holder := etree.NewDocument().CreateElement("symbols")
	defaultSymbolElement(holder, c, geometryType)

	symbol, err := (&symbolLoader{}).parseSymbol(holder.SelectElement("symbol"))
	if err != nil {
		panic("default symbol not parseable: " + err.Error())
	}
	return symbol
}

func isKnownGeometryType(geometryType headless.GeometryType) bool {
	switch geometryType {
	case headless.GeometryTypePoint, headless.GeometryTypeLine, headless.GeometryTypePolygon:
		return true
	}
	return false
}

// defaultDocument is the QML document of a default style
func defaultDocument(c color.NRGBA, geometryType headless.GeometryType, layerType headless.LayerType) *etree.Document {
	doc, root := newQMLDocument()

	if layerType == headless.LayerTypeRaster {
		pipe := root.CreateElement(qmlPipeTag)
		renderer := pipe.CreateElement(qmlRasterRendererTag)
		renderer.CreateAttr("type", RasterRendererMultiBandColor)
		renderer.CreateAttr("opacity", "1")
		renderer.CreateAttr("redBand", "1")
		renderer.CreateAttr("greenBand", "2")
		renderer.CreateAttr("blueBand", "3")
		renderer.CreateAttr("alphaBand", "4")
		resampler := pipe.CreateElement("rasterresampler")
		resampler.CreateAttr("maxOversampling", "2")
		return doc
	}

	if !isKnownGeometryType(geometryType) {
		return doc
	}

	renderer := root.CreateElement(qmlRendererTag)
	renderer.CreateAttr("type", RendererTypeSingleSymbol)
	renderer.CreateAttr("symbollevels", "0")
	renderer.CreateAttr("forceraster", "0")
	defaultSymbolElement(renderer.CreateElement("symbols"), c, geometryType)

	root.CreateElement(qmlLayerGeometryTypeTag).SetText(strconv.Itoa(int(geometryType)))

	return doc
}
