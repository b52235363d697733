package headlessrender

import (
	"context"
	"errors"
	"image/color"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/ownmap-headless/crs"
	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/jamesrr39/ownmap-headless/headlessdal"
	"github.com/jamesrr39/ownmap-headless/headlessrenderer"
	"github.com/jamesrr39/ownmap-headless/styling"
)

// ErrEmptyExtent is returned by FullExtent when the layers don't cover an area
var ErrEmptyExtent = errors.New("the layers have an empty extent")

// MapRequest is a map of one or more styled layers, that can be rendered as an image or as a legend.
// Styles are kept as they were when added, so repeated renders don't read SVG files again.
type MapRequest struct {
	crs     *crs.CRS
	dpi     float64
	quality int
	layers  []headlessrenderer.MapLayer
}

// NewMapRequest creates an empty map in EPSG:4326 at the default DPI
func NewMapRequest() *MapRequest {
	return &MapRequest{
		crs:     crs.MustFromEPSG(4326),
		dpi:     headlessrenderer.DefaultDPI,
		quality: headlessrenderer.DefaultQuality,
	}
}

func (mr *MapRequest) SetCRS(c *crs.CRS) {
	mr.crs = c
}

func (mr *MapRequest) SetDPI(dpi float64) {
	mr.dpi = dpi
}

// SetQuality sets the PNG quality of rendered images, see RenderVector
func (mr *MapRequest) SetQuality(quality int) {
	mr.quality = quality
}

// AddLayer adds a layer on top of the layers already added. A nil style draws the layer with the default style.
// The label is shown as the title of the layer in legends.
func (mr *MapRequest) AddLayer(layer headlessdal.Layer, style *styling.Style, label string) errorsx.Error {
	if layer == nil {
		return headless.NewError(headless.ErrOpenFailed, nil, "reason", "no layer", "label", label)
	}

	if style != nil {
		err := checkStyleFitsLayer(layer, style)
		if err != nil {
			return errorsx.Wrap(err, "layer", layer.Name())
		}
	}

	mr.layers = append(mr.layers, headlessrenderer.MapLayer{
		Layer: layer,
		Style: style,
		Label: label,
	})

	return nil
}

// FullExtent is the extent covering all layers, in the CRS of the request. Layers without features are ignored.
func (mr *MapRequest) FullExtent() (headless.Extent, errorsx.Error) {
	var full headless.Extent
	found := false

	for _, mapLayer := range mr.layers {
		layer := mapLayer.Layer
		if vectorLayer, ok := layer.(*headlessdal.VectorLayer); ok && len(vectorLayer.Features()) == 0 {
			continue
		}

		layerCRS := layer.CRS()
		if layerCRS == nil {
			layerCRS = mr.crs
		}

		transformer, err := crs.NewTransformer(layerCRS, mr.crs)
		if err != nil {
			return headless.Extent{}, errorsx.Wrap(err, "layer", layer.Name())
		}

		bound, err := transformer.Bound(layer.Extent().Bound())
		if err != nil {
			return headless.Extent{}, errorsx.Wrap(err, "layer", layer.Name())
		}
		if bound.Min[0] > bound.Max[0] || bound.Min[1] > bound.Max[1] {
			// no corner of the layer could be transformed
			continue
		}

		extent := headless.ExtentFromBound(bound)
		if !found {
			full = extent
			found = true
			continue
		}
		full = full.Union(extent)
	}

	if !found || full.IsEmpty() {
		return headless.Extent{}, errorsx.Wrap(ErrEmptyExtent, "extent", full.String())
	}

	return full, nil
}

func checkStyleFitsLayer(layer headlessdal.Layer, style *styling.Style) errorsx.Error {
	if !style.AppliesTo(layer.Type()) {
		return headless.NewError(headless.ErrStyleTypeMismatch, nil, "styleType", style.Type().String(), "layerType", layer.Type().String())
	}

	vectorLayer, ok := layer.(*headlessdal.VectorLayer)
	if !ok || style.Vector() == nil {
		return nil
	}

	styleGeometryType := style.Vector().GeometryType
	layerGeometryType := vectorLayer.GeometryType()
	if isDrawableGeometryType(styleGeometryType) && isDrawableGeometryType(layerGeometryType) && styleGeometryType != layerGeometryType {
		return headless.NewError(
			headless.ErrStyleTypeMismatch, nil,
			"styleGeometryType", styleGeometryType.String(),
			"layerGeometryType", layerGeometryType.String(),
		)
	}

	return nil
}

func isDrawableGeometryType(geometryType headless.GeometryType) bool {
	switch geometryType {
	case headless.GeometryTypePoint, headless.GeometryTypeLine, headless.GeometryTypePolygon:
		return true
	}
	return false
}

// RenderImage renders the layers over extent, given in the CRS of the request, as a PNG image with a transparent
// background
func (mr *MapRequest) RenderImage(ctx context.Context, extent headless.Extent, width, height int) (*headless.Image, errorsx.Error) {
	e, err := CurrentEnvironment()
	if err != nil {
		return nil, err
	}

	return e.RenderImage(ctx, mr, extent, width, height)
}

// RenderImage renders mr with the logger of the environment, see MapRequest.RenderImage
func (e *Environment) RenderImage(ctx context.Context, mr *MapRequest, extent headless.Extent, width, height int) (*headless.Image, errorsx.Error) {
	settings := mr.settings()
	settings.Extent = extent
	settings.Width = width
	settings.Height = height

	img, err := headlessrenderer.NewSequentialJob(e.logger, settings).Render(ctx)
	if err != nil {
		return nil, err
	}

	data, err := headlessrenderer.EncodePNG(img, mr.quality)
	if err != nil {
		return nil, err
	}

	return headless.NewImage(data), nil
}

// RenderLegend renders the symbols of all layers, with their titles, as a PNG image
func (mr *MapRequest) RenderLegend(ctx context.Context) (*headless.Image, errorsx.Error) {
	e, err := CurrentEnvironment()
	if err != nil {
		return nil, err
	}

	return e.RenderLegend(ctx, mr)
}

func (e *Environment) RenderLegend(ctx context.Context, mr *MapRequest) (*headless.Image, errorsx.Error) {
	img, err := headlessrenderer.RenderLegend(ctx, mr.settings())
	if err != nil {
		return nil, err
	}

	data, err := headlessrenderer.EncodePNG(img, mr.quality)
	if err != nil {
		return nil, err
	}

	return headless.NewImage(data), nil
}

func (mr *MapRequest) settings() headlessrenderer.MapSettings {
	return headlessrenderer.MapSettings{
		DPI:        mr.dpi,
		CRS:        mr.crs,
		Layers:     append([]headlessrenderer.MapLayer{}, mr.layers...),
		Background: color.Transparent,
	}
}
