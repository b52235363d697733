package headlessrender

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/ownmap-headless/crs"
	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/jamesrr39/ownmap-headless/headlessdal"
	"github.com/jamesrr39/ownmap-headless/styling"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greenSquareSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10"><rect x="0" y="0" width="10" height="10" fill="#00ff00"/></svg>`

func newPointLayer() *headlessdal.VectorLayer {
	return headlessdal.NewVectorLayer("points", crs.MustFromEPSG(4326), headless.GeometryTypePoint, nil, []*headlessdal.Feature{
		{ID: 1, Geometry: orb.Point{5, 5}, Attributes: map[string]interface{}{}},
	})
}

func TestMapRequest_AddLayer(t *testing.T) {
	pointStyle, err := styling.FromFile("../styling/testdata/point-style.qml")
	require.NoError(t, err)
	lineStyle, err := styling.FromFile("../styling/testdata/highway.qml")
	require.NoError(t, err)
	rasterStyle, err := styling.FromFile("../styling/testdata/raster/gray.qml")
	require.NoError(t, err)

	rasterLayer := headlessdal.NewRasterLayer("scan", image.NewGray(image.Rect(0, 0, 2, 2)), headlessdal.GeoTransform{0, 1, 0, 2, 0, -1}, crs.MustFromEPSG(4326))

	type testCase struct {
		Name         string
		Layer        headlessdal.Layer
		Style        *styling.Style
		ExpectedKind error
	}

	testCases := []testCase{
		{"matching vector style", newPointLayer(), pointStyle, nil},
		{"default style", newPointLayer(), nil, nil},
		{"matching raster style", rasterLayer, rasterStyle, nil},
		{"raster style on vector layer", newPointLayer(), rasterStyle, headless.ErrStyleTypeMismatch},
		{"vector style on raster layer", rasterLayer, pointStyle, headless.ErrStyleTypeMismatch},
		{"line style on point layer", newPointLayer(), lineStyle, headless.ErrStyleTypeMismatch},
		{"no layer", nil, pointStyle, headless.ErrOpenFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			request := NewMapRequest()
			err := request.AddLayer(tc.Layer, tc.Style, "label")
			if tc.ExpectedKind == nil {
				require.NoError(t, err)
				assert.Len(t, request.layers, 1)
				return
			}

			require.Error(t, err)
			assert.True(t, headless.IsKind(err, tc.ExpectedKind))
			assert.Empty(t, request.layers)
		})
	}
}

func TestMapRequest_reusesResolvedSvg(t *testing.T) {
	e := newTestEnvironment(t, map[string][]byte{"/svg/symbols/star.svg": []byte(greenSquareSVG)}, nil)
	e.AddSvgPath("/svg")

	style, err := e.ParseStyle(readTestdata(t, "../styling/testdata/svg-marker.qml"), headless.LayerTypeVector)
	require.NoError(t, err)

	request := NewMapRequest()
	err = request.AddLayer(newPointLayer(), style, "Points")
	require.NoError(t, err)

	extent := headless.NewExtent(0, 0, 10, 10)
	first, err := e.RenderImage(context.Background(), request, extent, 50, 50)
	require.NoError(t, err)

	decoded := decodePNG(t, first)
	r, g, b, a := decoded.At(25, 25).RGBA()
	assert.Equal(t, []uint32{0, 0xffff, 0, 0xffff}, []uint32{r, g, b, a})

	removeErr := e.Fs().Remove("/svg/symbols/star.svg")
	require.NoError(t, removeErr)

	second, err := e.RenderImage(context.Background(), request, extent, 50, 50)
	require.NoError(t, err)
	assert.Equal(t, first.Data(), second.Data())
}

func TestMapRequest_RenderLegend(t *testing.T) {
	e := newTestEnvironment(t, nil, nil)

	pointsStyle := styling.FromDefaults(color.NRGBA{0, 128, 0, 255}, headless.GeometryTypePoint, headless.LayerTypeVector)
	request := NewMapRequest()
	err := request.AddLayer(newPointLayer(), pointsStyle, "Points")
	require.NoError(t, err)

	low, err := e.RenderLegend(context.Background(), request)
	require.NoError(t, err)

	request.SetDPI(300)
	high, err := e.RenderLegend(context.Background(), request)
	require.NoError(t, err)

	lowImg := decodePNG(t, low)
	highImg := decodePNG(t, high)
	assert.Greater(t, highImg.Bounds().Dx(), lowImg.Bounds().Dx())
	assert.Greater(t, highImg.Bounds().Dy(), lowImg.Bounds().Dy())
}

func TestMapRequest_SetCRS(t *testing.T) {
	e := newTestEnvironment(t, nil, nil)

	request := NewMapRequest()
	request.SetCRS(crs.MustFromEPSG(3857))
	err := request.AddLayer(newPointLayer(), nil, "")
	require.NoError(t, err)

	// the point at 5°E 5°N in web mercator
	x, y := 556597.45, 557305.26
	img, err := e.RenderImage(context.Background(), request, headless.NewExtent(x-50000, y-50000, x+50000, y+50000), 20, 20)
	require.NoError(t, err)

	_, _, _, a := decodePNG(t, img).At(10, 10).RGBA()
	assert.Equal(t, uint32(0xffff), a)
}

func TestMapRequest_FullExtent(t *testing.T) {
	rasterLayer := headlessdal.NewRasterLayer("scan", image.NewGray(image.Rect(0, 0, 2, 2)), headlessdal.GeoTransform{0, 1, 0, 2, 0, -1}, crs.MustFromEPSG(4326))
	emptyLayer := headlessdal.NewVectorLayer("empty", crs.MustFromEPSG(4326), headless.GeometryTypePoint, nil, nil)

	request := NewMapRequest()
	require.NoError(t, request.AddLayer(newPointLayer(), nil, ""))
	require.NoError(t, request.AddLayer(rasterLayer, nil, ""))
	require.NoError(t, request.AddLayer(emptyLayer, nil, ""))

	extent, err := request.FullExtent()
	require.NoError(t, err)
	assert.Equal(t, headless.NewExtent(0, 0, 5, 5), extent)

	request.SetCRS(crs.MustFromEPSG(3857))
	extent, err = request.FullExtent()
	require.NoError(t, err)
	assert.InDelta(t, 0, extent.MinX, 0.01)
	assert.InDelta(t, 556597.45, extent.MaxX, 0.01)
}

func TestMapRequest_FullExtent_empty(t *testing.T) {
	onlyOnePoint := NewMapRequest()
	require.NoError(t, onlyOnePoint.AddLayer(newPointLayer(), nil, ""))

	for name, request := range map[string]*MapRequest{"no layers": NewMapRequest(), "single point": onlyOnePoint} {
		t.Run(name, func(t *testing.T) {
			_, err := request.FullExtent()
			require.Error(t, err)
			assert.Equal(t, ErrEmptyExtent, errorsx.Cause(err))
		})
	}
}
