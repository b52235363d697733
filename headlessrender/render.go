package headlessrender

import (
	"context"
	"fmt"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/ownmap-headless/crs"
	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/jamesrr39/ownmap-headless/headlessdal"
	"github.com/jamesrr39/ownmap-headless/styling"
)

func GetVersion() string {
	return headless.Version
}

// RenderVector renders the vector source at uri with the QML style styleXML into a PNG of width x height pixels.
// The bounding box is given in the CRS with the EPSG code epsg. Quality goes from 0 (smallest file) to 100
// (fastest), -1 picks the default compression.
func RenderVector(uri, styleXML string, minX, minY, maxX, maxY float64, width, height, epsg, quality int) (*headless.Image, errorsx.Error) {
	e, err := CurrentEnvironment()
	if err != nil {
		return nil, err
	}

	return e.RenderVector(context.Background(), uri, styleXML, headless.NewExtent(minX, minY, maxX, maxY), width, height, epsg, quality)
}

// RenderRaster is RenderVector for raster sources
func RenderRaster(uri, styleXML string, minX, minY, maxX, maxY float64, width, height, epsg, quality int) (*headless.Image, errorsx.Error) {
	e, err := CurrentEnvironment()
	if err != nil {
		return nil, err
	}

	return e.RenderRaster(context.Background(), uri, styleXML, headless.NewExtent(minX, minY, maxX, maxY), width, height, epsg, quality)
}

func (e *Environment) RenderVector(ctx context.Context, uri, styleXML string, extent headless.Extent, width, height, epsg, quality int) (*headless.Image, errorsx.Error) {
	ctx, endTrace := e.startTrace(ctx, fmt.Sprintf("render vector %q", uri))
	defer endTrace()

	destCRS, err := crs.FromEPSG(epsg)
	if err != nil {
		return nil, err
	}

	style, err := e.ParseStyle(styleXML, headless.LayerTypeVector)
	if err != nil {
		return nil, err
	}

	layer, err := e.openStyledVector(ctx, uri, style)
	if err != nil {
		return nil, err
	}

	return e.renderSingleLayer(ctx, layer, style, extent, width, height, destCRS, quality)
}

// openStyledVector opens a vector layer with only the attributes the style reads, when the style says which those are.
// Attributes the style reads but the layer doesn't have are logged, they evaluate to NULL.
func (e *Environment) openStyledVector(ctx context.Context, uri string, style *styling.Style) (*headlessdal.VectorLayer, errorsx.Error) {
	if style == nil {
		return e.opener.OpenVector(ctx, uri)
	}

	attributes, ok := style.UsedAttributes()
	if !ok {
		return e.opener.OpenVector(ctx, uri)
	}

	layer, err := e.opener.OpenVector(ctx, uri, headlessdal.WithAttributes(attributes))
	if err != nil {
		return nil, err
	}

	missing := missingFields(layer.Fields(), attributes)
	if len(missing) != 0 {
		e.logger.Warn("layer %q has no fields %v used by its style", layer.Name(), missing)
	}

	return layer, nil
}

func missingFields(fields []headlessdal.Field, attributes []string) []string {
	fieldNames := make(map[string]bool)
	for _, field := range fields {
		fieldNames[field.Name] = true
	}

	var missing []string
	for _, attribute := range attributes {
		if !fieldNames[attribute] {
			missing = append(missing, attribute)
		}
	}
	return missing
}

func (e *Environment) RenderRaster(ctx context.Context, uri, styleXML string, extent headless.Extent, width, height, epsg, quality int) (*headless.Image, errorsx.Error) {
	ctx, endTrace := e.startTrace(ctx, fmt.Sprintf("render raster %q", uri))
	defer endTrace()

	destCRS, err := crs.FromEPSG(epsg)
	if err != nil {
		return nil, err
	}

	style, err := e.ParseStyle(styleXML, headless.LayerTypeRaster)
	if err != nil {
		return nil, err
	}

	layer, err := e.opener.OpenRaster(uri)
	if err != nil {
		return nil, err
	}

	return e.renderSingleLayer(ctx, layer, style, extent, width, height, destCRS, quality)
}

// ParseStyle reads a QML document, resolving its SVG paths through the environment
func (e *Environment) ParseStyle(styleXML string, layerType headless.LayerType) (*styling.Style, errorsx.Error) {
	return styling.FromString(
		styleXML,
		styling.WithLayerType(layerType),
		styling.WithSvgResolver(e.ResolveSvg),
		styling.WithFs(e.fs),
	)
}

func (e *Environment) renderSingleLayer(ctx context.Context, layer headlessdal.Layer, style *styling.Style, extent headless.Extent, width, height int, destCRS *crs.CRS, quality int) (*headless.Image, errorsx.Error) {
	request := NewMapRequest()
	request.SetCRS(destCRS)
	request.SetQuality(quality)

	err := request.AddLayer(layer, style, "")
	if err != nil {
		return nil, err
	}

	return e.RenderImage(ctx, request, extent, width, height)
}
