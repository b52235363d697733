package headlessrenderer

import (
	"image"
	"math"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/ownmap-headless/crs"
	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/jamesrr39/ownmap-headless/headlessdal"
	"github.com/jamesrr39/ownmap-headless/styling"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

var interpolators = map[styling.Resampling]draw.Interpolator{
	styling.ResamplingBilinear: draw.BiLinear,
	styling.ResamplingCubic:    draw.CatmullRom,
}

func renderRasterLayer(settings MapSettings, dst *image.RGBA, layer *headlessdal.RasterLayer, style *styling.RasterStyle) errorsx.Error {
	layerCRS := layer.CRS()
	if layerCRS == nil {
		layerCRS = settings.CRS
	}

	vp := settings.viewport()
	gt := layer.GeoTransform()

	if layerCRS.Equal(settings.CRS) {
		sourcePixelSize := math.Hypot(gt[1], gt[4])
		resampling := style.ZoomedOutResampling
		if vp.unitsPerPixel < sourcePixelSize {
			resampling = style.ZoomedInResampling
		}

		interpolator, ok := interpolators[resampling]
		if ok {
			return interpolateRaster(vp, dst, layer, style.Renderer, interpolator)
		}
	}

	transformer, err := crs.NewTransformer(settings.CRS, layerCRS)
	if err != nil {
		return headless.NewError(headless.ErrRenderFailed, err, "layer", layer.Name())
	}

	warpNearest(vp, dst, layer, style.Renderer, transformer)
	return nil
}

// warpNearest colours every output pixel with the source pixel under its centre
func warpNearest(vp viewport, dst *image.RGBA, layer *headlessdal.RasterLayer, renderer styling.RasterRenderer, transformer *crs.Transformer) {
	bounds := dst.Bounds()
	width := bounds.Dx()
	gt := layer.GeoTransform()

	xys := make([]float64, 2*width)
	for py := 0; py < bounds.Dy(); py++ {
		for px := 0; px < width; px++ {
			xys[2*px], xys[2*px+1] = vp.toMap(px, py)
		}

		sourceXYs, err := transformer.TransformFlat(xys)
		if err != nil {
			// outside the area of use of the layer CRS
			continue
		}

		for px := 0; px < width; px++ {
			sx, sy, ok := gt.MapToPixel(sourceXYs[2*px], sourceXYs[2*px+1])
			if !ok || math.IsNaN(sx) || math.IsNaN(sy) {
				continue
			}

			ix := int(math.Floor(sx))
			iy := int(math.Floor(sy))
			if ix < 0 || iy < 0 || ix >= layer.Width() || iy >= layer.Height() {
				continue
			}

			c := renderer.Color(layer, ix, iy)
			if c.A == 0 {
				continue
			}
			dst.Set(bounds.Min.X+px, bounds.Min.Y+py, c)
		}
	}
}

// interpolateRaster resamples a raster that is already in the destination CRS. The geotransform becomes an affine
// transform from source pixels to output pixels.
func interpolateRaster(vp viewport, dst *image.RGBA, layer *headlessdal.RasterLayer, renderer styling.RasterRenderer, interpolator draw.Interpolator) errorsx.Error {
	gt := layer.GeoTransform()
	upp := vp.unitsPerPixel

	m := f64.Aff3{
		gt[1] / upp, gt[2] / upp, (gt[0] - vp.extent.MinX) / upp,
		-gt[4] / upp, -gt[5] / upp, (vp.extent.MaxY - gt[3]) / upp,
	}

	sourceRect, ok := visibleSourceRect(vp, layer)
	if !ok {
		return nil
	}

	colored := image.NewNRGBA(sourceRect)
	for y := sourceRect.Min.Y; y < sourceRect.Max.Y; y++ {
		for x := sourceRect.Min.X; x < sourceRect.Max.X; x++ {
			colored.SetNRGBA(x, y, renderer.Color(layer, x, y))
		}
	}

	interpolator.Transform(dst, m, colored, sourceRect, draw.Over, nil)
	return nil
}

// visibleSourceRect is the part of the raster, in pixels, under the viewport. It is padded so that interpolation
// at the edges has neighbours.
func visibleSourceRect(vp viewport, layer *headlessdal.RasterLayer) (image.Rectangle, bool) {
	const padding = 2

	gt := layer.GeoTransform()
	e := vp.extent

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, corner := range [][2]float64{{e.MinX, e.MinY}, {e.MaxX, e.MinY}, {e.MinX, e.MaxY}, {e.MaxX, e.MaxY}} {
		px, py, ok := gt.MapToPixel(corner[0], corner[1])
		if !ok {
			return image.Rectangle{}, false
		}
		minX, maxX = math.Min(minX, px), math.Max(maxX, px)
		minY, maxY = math.Min(minY, py), math.Max(maxY, py)
	}

	rect := image.Rect(
		int(math.Floor(math.Max(minX, -padding)))-padding,
		int(math.Floor(math.Max(minY, -padding)))-padding,
		int(math.Ceil(math.Min(maxX, float64(layer.Width()+padding))))+padding,
		int(math.Ceil(math.Min(maxY, float64(layer.Height()+padding))))+padding,
	).Intersect(image.Rect(0, 0, layer.Width(), layer.Height()))

	return rect, !rect.Empty()
}
