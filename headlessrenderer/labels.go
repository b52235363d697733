package headlessrenderer

import (
	"image"
	"image/color"
	"math"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/jamesrr39/ownmap-headless/styling"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// distance between a point and the bottom of its label, in points
const pointLabelOffsetPt = 2.0

type labelCandidate struct {
	text     string
	x, y     float64
	above    bool
	settings *styling.LabelSettings
}

// labelCollector gathers the labels of all layers, to draw them on top of the map once the layers are drawn.
// Labels are placed in the order they were added; a label overlapping an already placed one is dropped.
type labelCollector struct {
	font       *truetype.Font
	settings   MapSettings
	candidates []labelCandidate
}

func newLabelCollector(f *truetype.Font, settings MapSettings) *labelCollector {
	return &labelCollector{font: f, settings: settings}
}

func (lc *labelCollector) addCentred(x, y float64, text string, settings *styling.LabelSettings) {
	lc.candidates = append(lc.candidates, labelCandidate{text, x, y, false, settings})
}

func (lc *labelCollector) addAbovePoint(x, y float64, text string, settings *styling.LabelSettings) {
	lc.candidates = append(lc.candidates, labelCandidate{text, x, y, true, settings})
}

func (lc *labelCollector) draw(img *image.RGBA) {
	var placed []image.Rectangle

	for _, candidate := range lc.candidates {
		fontSize := lc.settings.ToPixels(candidate.settings.FontSize, candidate.settings.FontSizeUnit)
		if fontSize <= 0 {
			continue
		}

		x, baseline := candidate.x, candidate.y
		text := newTextRenderer(lc.font, fontSize)
		box := text.bounds(candidate.text)
		x -= float64(box.Dx()) / 2
		if candidate.above {
			baseline -= lc.settings.ToPixels(pointLabelOffsetPt, styling.UnitPoint) + float64(text.descent)
		} else {
			baseline += float64(text.ascent-text.descent) / 2
		}

		labelRect := box.Add(image.Pt(int(math.Round(x)), int(math.Round(baseline))))
		if !labelRect.Overlaps(img.Bounds()) || overlapsAny(labelRect, placed) {
			continue
		}
		placed = append(placed, labelRect)

		settings := candidate.settings
		if settings.BufferDraw {
			bufferSize := lc.settings.ToPixels(settings.BufferSize, settings.BufferSizeUnit)
			bufferColor := withOpacity(settings.BufferColor, settings.BufferOpacity)
			text.drawHalo(img, labelRect, candidate.text, x, baseline, bufferSize, bufferColor)
		}

		text.drawString(img, candidate.text, x, baseline, withOpacity(settings.TextColor, settings.TextOpacity))
	}
}

func overlapsAny(rect image.Rectangle, others []image.Rectangle) bool {
	for _, other := range others {
		if rect.Overlaps(other) {
			return true
		}
	}
	return false
}

// textRenderer draws single lines of text in one font size, given in pixels
type textRenderer struct {
	font    *truetype.Font
	size    float64
	face    font.Face
	ascent  int
	descent int
}

func newTextRenderer(f *truetype.Font, size float64) *textRenderer {
	face := truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72})
	metrics := face.Metrics()

	return &textRenderer{
		font:    f,
		size:    size,
		face:    face,
		ascent:  metrics.Ascent.Ceil(),
		descent: metrics.Descent.Ceil(),
	}
}

// bounds is the box of the text relative to the start of its baseline
func (tr *textRenderer) bounds(text string) image.Rectangle {
	width := font.MeasureString(tr.face, text).Ceil()
	return image.Rect(0, -tr.ascent, width, tr.descent)
}

func (tr *textRenderer) context(dst *image.RGBA, c color.Color) *freetype.Context {
	ctx := freetype.NewContext()
	ctx.SetDPI(72)
	ctx.SetFont(tr.font)
	ctx.SetFontSize(tr.size)
	ctx.SetClip(dst.Bounds())
	ctx.SetDst(dst)
	ctx.SetSrc(image.NewUniform(c))
	return ctx
}

func (tr *textRenderer) drawString(dst *image.RGBA, text string, x, baseline float64, c color.Color) {
	_, _ = tr.context(dst, c).DrawString(text, toFixedPoint(x, baseline))
}

// drawHalo draws the text repeatedly around its position, giving it a buffer of the given radius.
// The halo is drawn into its own image first so that overlapping copies do not add up.
func (tr *textRenderer) drawHalo(dst *image.RGBA, textRect image.Rectangle, text string, x, baseline, radius float64, c color.NRGBA) {
	if radius <= 0 || c.A == 0 {
		return
	}

	margin := int(math.Ceil(radius)) + 1
	halo := image.NewRGBA(textRect.Inset(-margin).Intersect(dst.Bounds()))
	opaque := c
	opaque.A = 255
	ctx := tr.context(halo, opaque)

	steps := int(math.Max(8, math.Ceil(2*math.Pi*radius)))
	for i := 0; i < steps; i++ {
		angle := 2 * math.Pi * float64(i) / float64(steps)
		_, _ = ctx.DrawString(text, toFixedPoint(x+radius*math.Cos(angle), baseline+radius*math.Sin(angle)))
	}

	drawWithOpacity(dst, halo, float64(c.A)/255)
}

func toFixedPoint(x, y float64) fixed.Point26_6 {
	return fixed.Point26_6{
		X: fixed.Int26_6(math.Round(x * 64)),
		Y: fixed.Int26_6(math.Round(y * 64)),
	}
}
