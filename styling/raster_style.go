package styling

import (
	"image/color"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/jamesrr39/goutil/errorsx"
)

// RasterBands is the pixel access raster renderers need. Bands are numbered from 1.
type RasterBands interface {
	BandCount() int
	BandValue(band, x, y int) (float64, bool)
	MaxBandValue() float64
	Palette() color.Palette
}

type RasterRenderer interface {
	// Color returns the colour of a pixel. Transparent pixels have zero alpha.
	Color(bands RasterBands, x, y int) color.NRGBA
	LegendItems() []RasterLegendItem
	Type() string
}

type RasterLegendItem struct {
	Label string
	Color color.NRGBA
}

// raster renderer types, as found in the "type" attribute of "rasterrenderer"
const (
	RasterRendererMultiBandColor = "multibandcolor"
	RasterRendererSingleBandGray = "singlebandgray"
	RasterRendererPaletted       = "paletted"
	RasterRendererPseudoColor    = "singlebandpseudocolor"
)

type Resampling string

const (
	ResamplingNearest  Resampling = "nearest"
	ResamplingBilinear Resampling = "bilinear"
	ResamplingCubic    Resampling = "cubic"
)

func parseResampling(s string) Resampling {
	switch strings.ToLower(s) {
	case "bilinear":
		return ResamplingBilinear
	case "cubic", "bicubic":
		return ResamplingCubic
	default:
		return ResamplingNearest
	}
}

// RasterStyle is the symbology of a raster layer
type RasterStyle struct {
	Renderer            RasterRenderer
	Opacity             float64
	ZoomedInResampling  Resampling
	ZoomedOutResampling Resampling
}

// contrast enhancement algorithms
const (
	ContrastNoEnhancement          = "NoEnhancement"
	ContrastStretchToMinMax        = "StretchToMinimumMaximum"
	ContrastStretchAndClipToMinMax = "StretchAndClipToMinimumMaximum"
	ContrastClipToMinMax           = "ClipToMinimumMaximum"
)

type ContrastEnhancement struct {
	Algorithm string
	Min       float64
	Max       float64
}

// enhance maps a band value to 0-255. ok is false when the algorithm clips the value away.
func (ce *ContrastEnhancement) enhance(value, maxBandValue float64) (uint8, bool) {
	if ce == nil || ce.Algorithm == ContrastNoEnhancement || ce.Algorithm == "" {
		return clampToByte(value * 255 / maxBandValue), true
	}

	outside := value < ce.Min || value > ce.Max
	switch ce.Algorithm {
	case ContrastStretchAndClipToMinMax:
		if outside {
			return 0, false
		}
	case ContrastClipToMinMax:
		if outside {
			return 0, false
		}
		return clampToByte(value * 255 / maxBandValue), true
	}

	if ce.Max <= ce.Min {
		if value >= ce.Max {
			return 255, true
		}
		return 0, true
	}

	return clampToByte((value - ce.Min) / (ce.Max - ce.Min) * 255), true
}

func clampToByte(v float64) uint8 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(math.Round(v))
	}
}

// bandValue reads a band, falling back to band 1 when the image has fewer bands
func bandValue(bands RasterBands, band, x, y int) (float64, bool) {
	if band > bands.BandCount() {
		band = 1
	}
	return bands.BandValue(band, x, y)
}

type MultiBandColorRenderer struct {
	RedBand   int
	GreenBand int
	BlueBand  int
	// AlphaBand is 0 when no band holds transparency
	AlphaBand int

	RedContrast   *ContrastEnhancement
	GreenContrast *ContrastEnhancement
	BlueContrast  *ContrastEnhancement
}

func (r *MultiBandColorRenderer) Type() string {
	return RasterRendererMultiBandColor
}

func (r *MultiBandColorRenderer) Color(bands RasterBands, x, y int) color.NRGBA {
	palette := bands.Palette()
	if palette != nil && bands.BandCount() == 1 {
		// images with a colour table are drawn through it
		index, ok := bands.BandValue(1, x, y)
		if !ok || int(index) >= len(palette) {
			return color.NRGBA{}
		}
		return color.NRGBAModel.Convert(palette[int(index)]).(color.NRGBA)
	}

	maxValue := bands.MaxBandValue()

	components := [3]uint8{}
	for i, channel := range []struct {
		band     int
		contrast *ContrastEnhancement
	}{
		{r.RedBand, r.RedContrast},
		{r.GreenBand, r.GreenContrast},
		{r.BlueBand, r.BlueContrast},
	} {
		value, ok := bandValue(bands, channel.band, x, y)
		if !ok {
			return color.NRGBA{}
		}
		component, ok := channel.contrast.enhance(value, maxValue)
		if !ok {
			return color.NRGBA{}
		}
		components[i] = component
	}

	alpha := uint8(255)
	if r.AlphaBand > 0 && r.AlphaBand <= bands.BandCount() {
		value, ok := bands.BandValue(r.AlphaBand, x, y)
		if !ok {
			return color.NRGBA{}
		}
		alpha = clampToByte(value * 255 / maxValue)
	}

	return color.NRGBA{components[0], components[1], components[2], alpha}
}

func (r *MultiBandColorRenderer) LegendItems() []RasterLegendItem {
	return nil
}

type SingleBandGrayRenderer struct {
	GrayBand int
	// WhiteToBlack inverts the gradient
	WhiteToBlack bool
	AlphaBand    int
	Contrast     *ContrastEnhancement
}

func (r *SingleBandGrayRenderer) Type() string {
	return RasterRendererSingleBandGray
}

func (r *SingleBandGrayRenderer) Color(bands RasterBands, x, y int) color.NRGBA {
	value, ok := bandValue(bands, r.GrayBand, x, y)
	if !ok {
		return color.NRGBA{}
	}

	gray, ok := r.Contrast.enhance(value, bands.MaxBandValue())
	if !ok {
		return color.NRGBA{}
	}
	if r.WhiteToBlack {
		gray = 255 - gray
	}

	alpha := uint8(255)
	if r.AlphaBand > 0 && r.AlphaBand <= bands.BandCount() {
		alphaValue, ok := bands.BandValue(r.AlphaBand, x, y)
		if !ok {
			return color.NRGBA{}
		}
		alpha = clampToByte(alphaValue * 255 / bands.MaxBandValue())
	}

	return color.NRGBA{gray, gray, gray, alpha}
}

func (r *SingleBandGrayRenderer) LegendItems() []RasterLegendItem {
	return []RasterLegendItem{
		{Label: "0", Color: color.NRGBA{0, 0, 0, 255}},
		{Label: "255", Color: color.NRGBA{255, 255, 255, 255}},
	}
}

type PaletteEntry struct {
	Value float64
	Color color.NRGBA
	Label string
}

type PalettedRenderer struct {
	Band    int
	Entries []PaletteEntry
}

func (r *PalettedRenderer) Type() string {
	return RasterRendererPaletted
}

func (r *PalettedRenderer) Color(bands RasterBands, x, y int) color.NRGBA {
	value, ok := bandValue(bands, r.Band, x, y)
	if !ok {
		return color.NRGBA{}
	}

	for _, entry := range r.Entries {
		if entry.Value == value {
			return entry.Color
		}
	}

	return color.NRGBA{}
}

func (r *PalettedRenderer) LegendItems() []RasterLegendItem {
	var items []RasterLegendItem
	for _, entry := range r.Entries {
		label := entry.Label
		if label == "" {
			label = strconv.FormatFloat(entry.Value, 'f', -1, 64)
		}
		items = append(items, RasterLegendItem{label, entry.Color})
	}
	return items
}

type ColorRampType string

const (
	ColorRampInterpolated ColorRampType = "INTERPOLATED"
	ColorRampDiscrete     ColorRampType = "DISCRETE"
	ColorRampExact        ColorRampType = "EXACT"
)

type ColorRampItem struct {
	Value float64
	Color color.NRGBA
	Label string
}

type PseudoColorRenderer struct {
	Band     int
	RampType ColorRampType
	// Clip makes values outside the ramp transparent
	Clip  bool
	Items []ColorRampItem
}

func (r *PseudoColorRenderer) Type() string {
	return RasterRendererPseudoColor
}

func (r *PseudoColorRenderer) Color(bands RasterBands, x, y int) color.NRGBA {
	value, ok := bandValue(bands, r.Band, x, y)
	if !ok || len(r.Items) == 0 {
		return color.NRGBA{}
	}

	switch r.RampType {
	case ColorRampExact:
		for _, item := range r.Items {
			if item.Value == value {
				return item.Color
			}
		}
		return color.NRGBA{}
	case ColorRampDiscrete:
		for _, item := range r.Items {
			if value <= item.Value {
				return item.Color
			}
		}
		if r.Clip {
			return color.NRGBA{}
		}
		return r.Items[len(r.Items)-1].Color
	}

	first := r.Items[0]
	last := r.Items[len(r.Items)-1]
	switch {
	case value < first.Value:
		if r.Clip {
			return color.NRGBA{}
		}
		return first.Color
	case value > last.Value:
		if r.Clip {
			return color.NRGBA{}
		}
		return last.Color
	}

	for i := 1; i < len(r.Items); i++ {
		lower, upper := r.Items[i-1], r.Items[i]
		if value > upper.Value {
			continue
		}
		if upper.Value == lower.Value {
			return upper.Color
		}
		return interpolateColor(lower.Color, upper.Color, (value-lower.Value)/(upper.Value-lower.Value))
	}

	return last.Color
}

func interpolateColor(a, b color.NRGBA, t float64) color.NRGBA {
	lerp := func(x, y uint8) uint8 {
		return clampToByte(float64(x) + (float64(y)-float64(x))*t)
	}
	return color.NRGBA{lerp(a.R, b.R), lerp(a.G, b.G), lerp(a.B, b.B), lerp(a.A, b.A)}
}

func (r *PseudoColorRenderer) LegendItems() []RasterLegendItem {
	var items []RasterLegendItem
	for _, item := range r.Items {
		label := item.Label
		if label == "" {
			label = strconv.FormatFloat(item.Value, 'f', -1, 64)
		}
		items = append(items, RasterLegendItem{label, item.Color})
	}
	return items
}

// defaultRasterStyle draws the first three bands as red, green and blue
func defaultRasterStyle() *RasterStyle {
	return &RasterStyle{
		Renderer: &MultiBandColorRenderer{
			RedBand:   1,
			GreenBand: 2,
			BlueBand:  3,
			AlphaBand: 4,
		},
		Opacity:             1,
		ZoomedInResampling:  ResamplingNearest,
		ZoomedOutResampling: ResamplingNearest,
	}
}

func rasterRendererElement(root *etree.Element) *etree.Element {
	if root.SelectElement(qmlRasterPropertiesTag) != nil {
		return root.SelectElement(qmlRasterRendererTag)
	}
	pipe := root.SelectElement(qmlPipeTag)
	if pipe == nil {
		pipe = root
	}
	return pipe.SelectElement(qmlRasterRendererTag)
}

func parseRasterStyle(root *etree.Element) (*RasterStyle, errorsx.Error) {
	el := rasterRendererElement(root)
	if el == nil {
		return nil, errorsx.Errorf("no raster renderer found")
	}

	style := defaultRasterStyle()
	style.Opacity = parseFloatAttr(el, "opacity", 1)

	renderer, err := parseRasterRenderer(el)
	if err != nil {
		return nil, err
	}
	style.Renderer = renderer

	pipe := el.Parent()
	if pipe != nil {
		resampler := pipe.SelectElement("rasterresampler")
		if resampler != nil {
			style.ZoomedInResampling = parseResampling(resampler.SelectAttrValue("zoomedInResampler", ""))
			style.ZoomedOutResampling = parseResampling(resampler.SelectAttrValue("zoomedOutResampler", ""))
		}
		resampling := pipe.SelectElement("resampling")
		if resampling != nil && parseBoolAttr(resampling, "enabled", true) {
			style.ZoomedInResampling = parseResampling(strings.TrimSuffix(resampling.SelectAttrValue("zoomedInResamplingMethod", ""), "Resampling"))
			style.ZoomedOutResampling = parseResampling(strings.TrimSuffix(resampling.SelectAttrValue("zoomedOutResamplingMethod", ""), "Resampling"))
		}
	}

	return style, nil
}

func parseRasterRenderer(el *etree.Element) (RasterRenderer, errorsx.Error) {
	rendererType := el.SelectAttrValue("type", "")

	switch rendererType {
	case RasterRendererMultiBandColor:
		return &MultiBandColorRenderer{
			RedBand:       parseIntAttr(el, "redBand", 1),
			GreenBand:     parseIntAttr(el, "greenBand", 2),
			BlueBand:      parseIntAttr(el, "blueBand", 3),
			AlphaBand:     positiveBand(parseIntAttr(el, "alphaBand", -1)),
			RedContrast:   parseContrastEnhancement(el.SelectElement("redContrastEnhancement")),
			GreenContrast: parseContrastEnhancement(el.SelectElement("greenContrastEnhancement")),
			BlueContrast:  parseContrastEnhancement(el.SelectElement("blueContrastEnhancement")),
		}, nil
	case RasterRendererSingleBandGray:
		return &SingleBandGrayRenderer{
			GrayBand:     parseIntAttr(el, "grayBand", 1),
			WhiteToBlack: el.SelectAttrValue("gradient", "") == "WhiteToBlack",
			AlphaBand:    positiveBand(parseIntAttr(el, "alphaBand", -1)),
			Contrast:     parseContrastEnhancement(el.SelectElement("contrastEnhancement")),
		}, nil
	case RasterRendererPaletted:
		renderer := &PalettedRenderer{Band: parseIntAttr(el, "band", 1)}
		palette := el.SelectElement("colorPalette")
		if palette != nil {
			for _, entryElement := range palette.SelectElements("paletteEntry") {
				value, err := strconv.ParseFloat(entryElement.SelectAttrValue("value", ""), 64)
				if err != nil {
					return nil, errorsx.Wrap(err, "element", "paletteEntry")
				}
				renderer.Entries = append(renderer.Entries, PaletteEntry{
					Value: value,
					Color: parseItemColor(entryElement),
					Label: entryElement.SelectAttrValue("label", ""),
				})
			}
		}
		return renderer, nil
	case RasterRendererPseudoColor:
		renderer := &PseudoColorRenderer{
			Band:     parseIntAttr(el, "band", 1),
			RampType: ColorRampInterpolated,
		}
		shader := el.FindElement("rastershader/colorrampshader")
		if shader != nil {
			renderer.RampType = ColorRampType(strings.ToUpper(shader.SelectAttrValue("colorRampType", string(ColorRampInterpolated))))
			renderer.Clip = parseBoolAttr(shader, "clip", false)
			for _, itemElement := range shader.SelectElements("item") {
				value, err := parseRampValue(itemElement.SelectAttrValue("value", ""))
				if err != nil {
					return nil, errorsx.Wrap(err, "element", "item")
				}
				renderer.Items = append(renderer.Items, ColorRampItem{
					Value: value,
					Color: parseItemColor(itemElement),
					Label: itemElement.SelectAttrValue("label", ""),
				})
			}
			sort.SliceStable(renderer.Items, func(i, j int) bool {
				return renderer.Items[i].Value < renderer.Items[j].Value
			})
		}
		return renderer, nil
	}

	return nil, errorsx.Errorf("unsupported raster renderer type %q", rendererType)
}

func positiveBand(band int) int {
	if band < 1 {
		return 0
	}
	return band
}

// parseRampValue accepts "inf", as written for the open upper end of discrete ramps
func parseRampValue(s string) (float64, error) {
	if strings.EqualFold(strings.TrimSpace(s), "inf") {
		return math.Inf(1), nil
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// parseItemColor reads the "color" and "alpha" attributes of palette and colour ramp entries
func parseItemColor(el *etree.Element) color.NRGBA {
	c, err := ParseColor(el.SelectAttrValue("color", ""))
	if err != nil {
		return color.NRGBA{}
	}
	alpha := parseIntAttr(el, "alpha", -1)
	if alpha >= 0 && alpha <= 255 {
		c.A = uint8(alpha)
	}
	return c
}

func parseContrastEnhancement(el *etree.Element) *ContrastEnhancement {
	if el == nil {
		return nil
	}

	ce := &ContrastEnhancement{Algorithm: ContrastNoEnhancement}
	if algorithm := el.SelectElement("algorithm"); algorithm != nil {
		ce.Algorithm = strings.TrimSpace(algorithm.Text())
	}
	if minValue := el.SelectElement("minValue"); minValue != nil {
		ce.Min, _ = strconv.ParseFloat(strings.TrimSpace(minValue.Text()), 64)
	}
	if maxValue := el.SelectElement("maxValue"); maxValue != nil {
		ce.Max, _ = strconv.ParseFloat(strings.TrimSpace(maxValue.Text()), 64)
	}

	return ce
}
