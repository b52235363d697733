package headlessdal

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"path/filepath"
	"strings"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/ownmap-headless/crs"
	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/paulmach/orb"
	_ "golang.org/x/image/tiff"
)

// GeoTransform maps pixel/line coordinates to map coordinates, in GDAL order:
// origin x, pixel width, row rotation, origin y, column rotation, pixel height (negative for north-up images)
type GeoTransform [6]float64

// identity transform for images without georeferencing. Pixel (0,0) is map (0,0) and rows go down.
var ungeoreferencedTransform = GeoTransform{0, 1, 0, 0, 0, -1}

func (gt GeoTransform) PixelToMap(px, py float64) (float64, float64) {
	return gt[0] + px*gt[1] + py*gt[2], gt[3] + px*gt[4] + py*gt[5]
}

// MapToPixel is the inverse of PixelToMap. ok is false when the transform is degenerate.
func (gt GeoTransform) MapToPixel(x, y float64) (px float64, py float64, ok bool) {
	det := gt[1]*gt[5] - gt[2]*gt[4]
	if det == 0 {
		return 0, 0, false
	}

	dx := x - gt[0]
	dy := y - gt[3]
	px = (dx*gt[5] - dy*gt[2]) / det
	py = (dy*gt[1] - dx*gt[4]) / det
	return px, py, true
}

// IsNorthUp is true when there is no rotation
func (gt GeoTransform) IsNorthUp() bool {
	return gt[2] == 0 && gt[4] == 0
}

var _ Layer = &RasterLayer{}

type RasterLayer struct {
	name      string
	img       image.Image
	transform GeoTransform
	crs       *crs.CRS
}

func NewRasterLayer(name string, img image.Image, transform GeoTransform, layerCRS *crs.CRS) *RasterLayer {
	return &RasterLayer{name, img, transform, layerCRS}
}

func (l *RasterLayer) Name() string {
	return l.name
}

func (l *RasterLayer) Type() headless.LayerType {
	return headless.LayerTypeRaster
}

func (l *RasterLayer) CRS() *crs.CRS {
	return l.crs
}

func (l *RasterLayer) Image() image.Image {
	return l.img
}

func (l *RasterLayer) GeoTransform() GeoTransform {
	return l.transform
}

func (l *RasterLayer) Width() int {
	return l.img.Bounds().Dx()
}

func (l *RasterLayer) Height() int {
	return l.img.Bounds().Dy()
}

func (l *RasterLayer) Extent() headless.Extent {
	w := float64(l.Width())
	h := float64(l.Height())

	if l.transform.IsNorthUp() {
		x0, y0 := l.transform.PixelToMap(0, 0)
		x1, y1 := l.transform.PixelToMap(w, h)
		return headless.NewExtent(math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1))
	}

	bound := orb.Bound{
		Min: orb.Point{math.Inf(1), math.Inf(1)},
		Max: orb.Point{math.Inf(-1), math.Inf(-1)},
	}
	for _, corner := range [][2]float64{{0, 0}, {w, 0}, {0, h}, {w, h}} {
		x, y := l.transform.PixelToMap(corner[0], corner[1])
		bound = bound.Extend(orb.Point{x, y})
	}

	return headless.ExtentFromBound(bound)
}

// BandCount follows GDAL: gray and paletted images have 1 band, colour images 3 (no alpha) or 4
func (l *RasterLayer) BandCount() int {
	switch l.img.(type) {
	case *image.Gray, *image.Gray16, *image.Paletted:
		return 1
	case *image.YCbCr, *image.CMYK:
		return 3
	default:
		return 4
	}
}

// Palette returns the colour table of paletted images
func (l *RasterLayer) Palette() color.Palette {
	paletted, ok := l.img.(*image.Paletted)
	if !ok {
		return nil
	}
	return paletted.Palette
}

// BandValue returns the value of a band (1-based) at a pixel, relative to the top-left of the image
func (l *RasterLayer) BandValue(band, x, y int) (float64, bool) {
	bounds := l.img.Bounds()
	px := bounds.Min.X + x
	py := bounds.Min.Y + y
	if !(image.Point{px, py}.In(bounds)) || band < 1 || band > l.BandCount() {
		return 0, false
	}

	switch img := l.img.(type) {
	case *image.Gray:
		return float64(img.GrayAt(px, py).Y), true
	case *image.Gray16:
		return float64(img.Gray16At(px, py).Y), true
	case *image.Paletted:
		return float64(img.ColorIndexAt(px, py)), true
	}

	c := color.NRGBAModel.Convert(l.img.At(px, py)).(color.NRGBA)
	switch band {
	case 1:
		return float64(c.R), true
	case 2:
		return float64(c.G), true
	case 3:
		return float64(c.B), true
	default:
		return float64(c.A), true
	}
}

// MaxBandValue is the largest value a band of this image can hold
func (l *RasterLayer) MaxBandValue() float64 {
	switch l.img.(type) {
	case *image.Gray16:
		return math.MaxUint16
	default:
		return math.MaxUint8
	}
}

func (o *Opener) OpenRaster(uri string) (*RasterLayer, errorsx.Error) {
	sourceURI, err := ParseSourceURI(uri)
	if err != nil {
		return nil, headless.NewError(headless.ErrOpenFailed, err, "uri", uri)
	}

	if sourceURI.Kind.LayerType() != headless.LayerTypeRaster {
		return nil, headless.NewError(headless.ErrOpenFailed, fmt.Errorf("%s is not a raster source", sourceURI.Kind), "uri", uri)
	}

	layer, err := o.openRasterFile(sourceURI)
	if err != nil {
		return nil, headless.NewError(headless.ErrOpenFailed, err, "uri", uri)
	}

	return layer, nil
}

func (o *Opener) openRasterFile(sourceURI SourceURI) (*RasterLayer, errorsx.Error) {
	file, err := o.fs.Open(sourceURI.Path)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	o.logger.Debug("decoded %s raster %q (%dx%d)", format, sourceURI.Path, img.Bounds().Dx(), img.Bounds().Dy())

	var transform GeoTransform
	var epsgCode int
	var georeferenced bool

	if sourceURI.Kind == SourceKindGeoTIFF {
		geoTags, err := readGeoTIFFTags(file)
		if err != nil {
			o.logger.Warn("couldn't read GeoTIFF tags from %q: %s", sourceURI.Path, err.Error())
		} else if geoTags != nil {
			transform = geoTags.transform
			epsgCode = geoTags.epsgCode
			georeferenced = geoTags.hasTransform
		}
	}

	if !georeferenced {
		transform, georeferenced = o.readWorldFile(sourceURI.Path)
	}

	if !georeferenced {
		o.logger.Warn("no georeferencing found for %q", sourceURI.Path)
		transform = ungeoreferencedTransform
	}

	layerCRS, crsErr := o.rasterCRS(sourceURI, epsgCode)
	if crsErr != nil {
		return nil, crsErr
	}

	name := strings.TrimSuffix(filepath.Base(sourceURI.Path), filepath.Ext(sourceURI.Path))

	return NewRasterLayer(name, img, transform, layerCRS), nil
}

// rasterCRS picks, in order: the "crs" source option, the GeoTIFF keys, a ".prj" sidecar, WGS 84
func (o *Opener) rasterCRS(sourceURI SourceURI, geoKeyEPSG int) (*crs.CRS, errorsx.Error) {
	crsOption := sourceURI.Options["crs"]
	if crsOption != "" {
		code, err := epsgCodeFromName(crsOption)
		if err != nil {
			return nil, err
		}
		return crs.FromEPSG(code)
	}

	if geoKeyEPSG != 0 {
		return crs.FromEPSG(geoKeyEPSG)
	}

	return o.sidecarCRS(sourceURI.Path)
}
