package styling

import (
	"encoding/base64"
	"strings"

	"github.com/beevik/etree"
)

// SvgResolver maps an SVG path written in a style to the path of a file that can be read
type SvgResolver func(path string) string

const embeddedSVGPrefix = "base64:"

// svgPathKeys are the property keys holding SVG paths, per symbol layer class
var svgPathKeys = map[string]string{
	SymbolLayerSvgMarker: "name",
	SymbolLayerSVGFill:   "svgFile",
}

func (sl *SymbolLayer) svgPath() string {
	key, ok := svgPathKeys[sl.Class]
	if !ok {
		return ""
	}
	return sl.Props[key]
}

// readSVG returns the SVG document at path, or nil when it can't be read
func (sl *symbolLoader) readSVG(path string) []byte {
	if strings.HasPrefix(path, embeddedSVGPrefix) {
		data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(path, embeddedSVGPrefix))
		if err != nil {
			return nil
		}
		return data
	}

	if sl.fs == nil {
		return nil
	}

	data, err := sl.fs.ReadFile(path)
	if err != nil {
		return nil
	}
	return data
}

// resolveSvgPaths rewrites the SVG paths of all SVG marker and SVG fill layers in the document through resolver
func resolveSvgPaths(root *etree.Element, resolver SvgResolver) {
	for _, layerElement := range root.FindElements(".//layer") {
		key, ok := svgPathKeys[layerElement.SelectAttrValue("class", "")]
		if !ok {
			continue
		}

		for _, prop := range layerElement.SelectElements("prop") {
			if prop.SelectAttrValue("k", "") != key {
				continue
			}
			path := prop.SelectAttrValue("v", "")
			if path == "" || strings.HasPrefix(path, embeddedSVGPrefix) {
				continue
			}
			prop.CreateAttr("v", resolver(path))
		}

		optionMap := layerElement.SelectElement("Option")
		if optionMap == nil {
			continue
		}
		option, ok := childOptions(optionMap)[key]
		if !ok {
			continue
		}
		path := option.SelectAttrValue("value", "")
		if path == "" || strings.HasPrefix(path, embeddedSVGPrefix) {
			continue
		}
		option.CreateAttr("value", resolver(path))
	}
}
