package headlessrenderer

import (
	"image"
	"image/color"
	"testing"

	snapshot "github.com/jamesrr39/go-snapshot-testing"
	"github.com/jamesrr39/ownmap-headless/crs"
	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/jamesrr39/ownmap-headless/headlessdal"
	"github.com/jamesrr39/ownmap-headless/styling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testRed   = color.NRGBA{255, 0, 0, 255}
	testGreen = color.NRGBA{0, 255, 0, 255}
	testBlue  = color.NRGBA{0, 0, 255, 255}
	testWhite = color.NRGBA{255, 255, 255, 255}
)

func newTestRaster(width, height int, colors ...color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i, c := range colors {
		img.SetNRGBA(i%width, i/width, c)
	}
	return img
}

func rasterStyle(t *testing.T) *styling.Style {
	style := styling.FromDefaults(styling.DefaultColor, headless.GeometryTypeUnknown, headless.LayerTypeRaster)
	require.NotNil(t, style.Raster())
	return style
}

func TestRenderRaster_nearest(t *testing.T) {
	layer := headlessdal.NewRasterLayer(
		"red-blue",
		newTestRaster(2, 1, testRed, testBlue),
		headlessdal.GeoTransform{0, 1, 0, 1, 0, -1},
		crs.MustFromEPSG(3857),
	)

	img := renderForTest(t, MapSettings{
		Width:  4,
		Height: 2,
		CRS:    crs.MustFromEPSG(3857),
		Extent: headless.NewExtent(0, 0, 2, 1),
		Layers: []MapLayer{{Layer: layer, Style: rasterStyle(t)}},
	})

	snapshot.AssertMatchesSnapshot(t, "RenderRaster_nearest", snapshot.NewImageSnapshot(img))
}

func TestRenderRaster_opacity(t *testing.T) {
	layer := headlessdal.NewRasterLayer(
		"red",
		newTestRaster(1, 1, testRed),
		headlessdal.GeoTransform{0, 1, 0, 1, 0, -1},
		crs.MustFromEPSG(3857),
	)

	style := rasterStyle(t)
	style.Raster().Opacity = 0.5

	img := renderForTest(t, MapSettings{
		Width:  2,
		Height: 2,
		CRS:    crs.MustFromEPSG(3857),
		Extent: headless.NewExtent(0, 0, 1, 1),
		Layers: []MapLayer{{Layer: layer, Style: style}},
	})

	assert.Equal(t, color.RGBA{128, 0, 0, 128}, img.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{128, 0, 0, 128}, img.RGBAAt(1, 1))
}

func TestRenderRaster_reprojected(t *testing.T) {
	// quadrants of 20x20 degrees around 0,0
	layer := headlessdal.NewRasterLayer(
		"quadrants",
		newTestRaster(2, 2, testRed, testGreen, testBlue, testWhite),
		headlessdal.GeoTransform{-10, 10, 0, 10, 0, -10},
		crs.MustFromEPSG(4326),
	)

	mercator := crs.MustFromEPSG(3857)
	transformer, err := crs.NewTransformer(crs.MustFromEPSG(4326), mercator)
	require.NoError(t, err)
	bound, err := transformer.Bound(headless.NewExtent(-5, -5, 5, 5).Bound())
	require.NoError(t, err)

	img := renderForTest(t, MapSettings{
		Width:  10,
		Height: 10,
		CRS:    mercator,
		Extent: headless.ExtentFromBound(bound),
		Layers: []MapLayer{{Layer: layer, Style: rasterStyle(t)}},
	})

	assert.Equal(t, color.RGBA{255, 0, 0, 255}, img.RGBAAt(2, 2))
	assert.Equal(t, color.RGBA{0, 255, 0, 255}, img.RGBAAt(7, 2))
	assert.Equal(t, color.RGBA{0, 0, 255, 255}, img.RGBAAt(2, 7))
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, img.RGBAAt(7, 7))
}

func TestRenderRaster_outsideExtent(t *testing.T) {
	layer := headlessdal.NewRasterLayer(
		"red",
		newTestRaster(1, 1, testRed),
		headlessdal.GeoTransform{100, 1, 0, 101, 0, -1},
		crs.MustFromEPSG(3857),
	)

	img := renderForTest(t, MapSettings{
		Width:  4,
		Height: 4,
		CRS:    crs.MustFromEPSG(3857),
		Extent: headless.NewExtent(0, 0, 1, 1),
		Layers: []MapLayer{{Layer: layer, Style: rasterStyle(t)}},
	})

	assert.Equal(t, 0, countOpaquePixels(img))
}

func TestRenderRaster_bilinear(t *testing.T) {
	layer := headlessdal.NewRasterLayer(
		"green",
		newTestRaster(2, 2, testGreen, testGreen, testGreen, testGreen),
		headlessdal.GeoTransform{0, 1, 0, 2, 0, -1},
		crs.MustFromEPSG(3857),
	)

	style := rasterStyle(t)
	style.Raster().ZoomedInResampling = styling.ResamplingBilinear

	img := renderForTest(t, MapSettings{
		Width:  20,
		Height: 20,
		CRS:    crs.MustFromEPSG(3857),
		Extent: headless.NewExtent(0, 0, 2, 2),
		Layers: []MapLayer{{Layer: layer, Style: style}},
	})

	center := img.RGBAAt(10, 10)
	assert.InDelta(t, 255, int(center.G), 1)
	assert.InDelta(t, 255, int(center.A), 1)
	assert.Equal(t, uint8(0), center.R)
}
