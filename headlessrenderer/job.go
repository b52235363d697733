package headlessrenderer

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/ownmap-headless/crs"
	"github.com/jamesrr39/ownmap-headless/fonts"
	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/jamesrr39/ownmap-headless/headlessdal"
	"github.com/jamesrr39/ownmap-headless/styling"
	"golang.org/x/image/draw"
)

// SequentialJob renders the layers of a map one after another, on the calling goroutine
type SequentialJob struct {
	logger   *logpkg.Logger
	settings MapSettings
}

func NewSequentialJob(logger *logpkg.Logger, settings MapSettings) *SequentialJob {
	return &SequentialJob{logger, settings}
}

// Render draws the layers in order, the first layer at the bottom. Labels are drawn last, on top of all layers.
// The context is checked between layers.
func (j *SequentialJob) Render(ctx context.Context) (*image.RGBA, errorsx.Error) {
	settings := j.settings
	if settings.Width <= 0 || settings.Height <= 0 {
		return nil, headless.NewError(headless.ErrRenderFailed, nil, "reason", "invalid output size", "width", settings.Width, "height", settings.Height)
	}
	if settings.CRS == nil {
		return nil, headless.NewError(headless.ErrRenderFailed, nil, "reason", "no destination CRS")
	}
	if settings.Extent.IsEmpty() {
		return nil, headless.NewError(headless.ErrRenderFailed, nil, "reason", "empty extent", "extent", settings.Extent.String())
	}

	endSpan := startSpan(ctx, "render map")
	defer endSpan()

	background := settings.Background
	if background == nil {
		background = color.Transparent
	}
	img := NewImageWithBackground(image.Rect(0, 0, settings.Width, settings.Height), background)

	labels := newLabelCollector(fonts.DefaultFont(), settings)

	for i, mapLayer := range settings.Layers {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, headless.NewError(headless.ErrRenderFailed, ctxErr, "layerIndex", i)
		}

		if j.isOutsideMap(mapLayer.Layer) {
			j.logger.Debug("skipping layer %q, it is outside of the map\n", mapLayer.Layer.Name())
			continue
		}

		err := j.renderLayer(ctx, img, mapLayer, labels)
		if err != nil {
			return nil, errorsx.Wrap(err, "layerIndex", i)
		}
	}

	endLabelsSpan := startSpan(ctx, "draw labels")
	labels.draw(img)
	endLabelsSpan()

	return img, nil
}

func (j *SequentialJob) renderLayer(ctx context.Context, img *image.RGBA, mapLayer MapLayer, labels *labelCollector) errorsx.Error {
	layer := mapLayer.Layer
	if layer == nil {
		return headless.NewError(headless.ErrRenderFailed, nil, "reason", "no layer")
	}

	endSpan := startSpan(ctx, fmt.Sprintf("render layer %q", layer.Name()))
	defer endSpan()

	style := mapLayer.Style
	if style == nil {
		style = styling.FromDefaults(styling.DefaultColor, layerGeometryType(layer), layer.Type())
	}

	layerImg := NewImageWithBackground(img.Rect, color.Transparent)
	var opacity float64

	switch typedLayer := layer.(type) {
	case *headlessdal.VectorLayer:
		vectorStyle := style.Vector()
		if vectorStyle == nil {
			return headless.NewError(headless.ErrStyleTypeMismatch, nil, "layer", layer.Name(), "styleType", style.Type().String())
		}
		j.logger.Debug("rendering vector layer %q with %d features\n", layer.Name(), len(typedLayer.Features()))
		err := newVectorRenderer(j.settings, layerImg, labels).renderLayer(typedLayer, vectorStyle)
		if err != nil {
			return err
		}
		opacity = vectorStyle.Opacity
	case *headlessdal.RasterLayer:
		rasterStyle := style.Raster()
		if rasterStyle == nil {
			return headless.NewError(headless.ErrStyleTypeMismatch, nil, "layer", layer.Name(), "styleType", style.Type().String())
		}
		j.logger.Debug("rendering raster layer %q (%dx%d)\n", layer.Name(), typedLayer.Width(), typedLayer.Height())
		err := renderRasterLayer(j.settings, layerImg, typedLayer, rasterStyle)
		if err != nil {
			return err
		}
		opacity = rasterStyle.Opacity
	default:
		return headless.NewError(headless.ErrRenderFailed, nil, "reason", "unsupported layer", "layerType", fmt.Sprintf("%T", layer))
	}

	drawWithOpacity(img, layerImg, opacity)

	return nil
}

// layers further than this from the map are skipped. Closer layers are drawn, as their symbols and labels can reach into the map.
const outsideMapMarginPixels = 256

// isOutsideMap is true for layers that can't draw anything on the map. Layers whose extent can't be transformed into the map CRS are kept.
func (j *SequentialJob) isOutsideMap(layer headlessdal.Layer) bool {
	if layer == nil {
		return false
	}

	if vectorLayer, ok := layer.(*headlessdal.VectorLayer); ok && len(vectorLayer.Features()) == 0 {
		return true
	}

	layerCRS := layer.CRS()
	if layerCRS == nil {
		layerCRS = j.settings.CRS
	}

	transformer, err := crs.NewTransformer(layerCRS, j.settings.CRS)
	if err != nil {
		return false
	}

	bound, err := transformer.Bound(layer.Extent().Bound())
	if err != nil || bound.Min[0] > bound.Max[0] || bound.Min[1] > bound.Max[1] {
		return false
	}

	vp := j.settings.viewport()
	mapExtent := vp.extent.Buffer(outsideMapMarginPixels * vp.unitsPerPixel)

	return !mapExtent.Intersects(headless.ExtentFromBound(bound))
}

func layerGeometryType(layer headlessdal.Layer) headless.GeometryType {
	vectorLayer, ok := layer.(*headlessdal.VectorLayer)
	if !ok {
		return headless.GeometryTypeUnknown
	}
	return vectorLayer.GeometryType()
}

// drawWithOpacity draws src over dst at the same coordinates, with the alpha of src multiplied by opacity
func drawWithOpacity(dst *image.RGBA, src image.Image, opacity float64) {
	bounds := src.Bounds()
	if opacity >= 1 {
		draw.Draw(dst, bounds, src, bounds.Min, draw.Over)
		return
	}
	if opacity <= 0 {
		return
	}

	mask := image.NewUniform(color.Alpha{A: uint8(opacity*255 + 0.5)})
	draw.DrawMask(dst, bounds, src, bounds.Min, mask, image.Point{}, draw.Over)
}
