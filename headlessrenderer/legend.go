package headlessrenderer

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/ownmap-headless/fonts"
	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/jamesrr39/ownmap-headless/styling"
	"github.com/paulmach/orb"
)

// legend measurements, in millimetres unless stated
const (
	legendPadding     = 2.0
	legendIconWidth   = 7.0
	legendIconHeight  = 4.0
	legendSpacing     = 1.5
	legendRowSpacing  = 1.0
	legendFontSizePt  = 9.0
	legendTitleSizePt = 10.0
)

var legendTextColor = color.NRGBA{0, 0, 0, 255}

type legendRow struct {
	title  bool
	text   string
	symbol *styling.Symbol
	// rasterColor is set for rows of raster layers
	rasterColor *color.NRGBA
}

func legendRows(layers []MapLayer) []legendRow {
	var rows []legendRow
	for _, mapLayer := range layers {
		if mapLayer.Label != "" {
			rows = append(rows, legendRow{title: true, text: mapLayer.Label})
		}

		style := mapLayer.Style
		if style == nil && mapLayer.Layer != nil {
			style = styling.FromDefaults(styling.DefaultColor, layerGeometryType(mapLayer.Layer), mapLayer.Layer.Type())
		}
		if style == nil {
			continue
		}

		if vectorStyle := style.Vector(); vectorStyle != nil {
			for _, item := range vectorStyle.Renderer.LegendItems() {
				rows = append(rows, legendRow{text: item.Label, symbol: item.Symbol})
			}
		}
		if rasterStyle := style.Raster(); rasterStyle != nil {
			for _, item := range rasterStyle.Renderer.LegendItems() {
				itemColor := item.Color
				rows = append(rows, legendRow{text: item.Label, rasterColor: &itemColor})
			}
		}
	}
	return rows
}

// RenderLegend draws a title row for every labelled layer, followed by a row for every symbol of the layer.
// All measurements scale with the DPI of settings, so a higher DPI gives a bigger image.
func RenderLegend(ctx context.Context, settings MapSettings) (*image.RGBA, errorsx.Error) {
	endSpan := startSpan(ctx, "render legend")
	defer endSpan()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, headless.NewError(headless.ErrRenderFailed, ctxErr)
	}

	mm := func(value float64) float64 {
		return settings.ToPixels(value, styling.UnitMillimeter)
	}

	font := fonts.DefaultFont()
	textRenderer := newTextRenderer(font, settings.ToPixels(legendFontSizePt, styling.UnitPoint))
	titleRenderer := newTextRenderer(font, settings.ToPixels(legendTitleSizePt, styling.UnitPoint))

	rows := legendRows(settings.Layers)

	iconWidth := mm(legendIconWidth)
	iconHeight := mm(legendIconHeight)
	padding := mm(legendPadding)

	width := 2 * padding
	height := 2 * padding
	var rowHeights []float64
	for i, row := range rows {
		var rowWidth, rowHeight float64
		if row.title {
			box := titleRenderer.bounds(row.text)
			rowWidth = float64(box.Dx())
			rowHeight = float64(box.Dy())
		} else {
			box := textRenderer.bounds(row.text)
			rowWidth = iconWidth + mm(legendSpacing) + float64(box.Dx())
			rowHeight = math.Max(iconHeight, float64(box.Dy()))
		}
		width = math.Max(width, 2*padding+rowWidth)
		height += rowHeight
		if i > 0 {
			height += mm(legendRowSpacing)
		}
		rowHeights = append(rowHeights, rowHeight)
	}

	img := NewImageWithBackground(image.Rect(0, 0, int(math.Ceil(width)), int(math.Ceil(height))), color.Transparent)

	y := padding
	for i, row := range rows {
		rowHeight := rowHeights[i]
		if row.title {
			titleRenderer.drawString(img, row.text, padding, y+float64(titleRenderer.ascent), legendTextColor)
		} else {
			iconRect := image.Rect(
				int(math.Round(padding)),
				int(math.Round(y+(rowHeight-iconHeight)/2)),
				int(math.Round(padding+iconWidth)),
				int(math.Round(y+(rowHeight+iconHeight)/2)),
			)
			drawLegendIcon(settings, img, iconRect, row)

			baseline := y + rowHeight/2 + float64(textRenderer.ascent-textRenderer.descent)/2
			textRenderer.drawString(img, row.text, padding+iconWidth+mm(legendSpacing), baseline, legendTextColor)
		}
		y += rowHeight + mm(legendRowSpacing)
	}

	return img, nil
}

// drawLegendIcon draws the symbol of a row in rect. The symbol is drawn on a map in which one map unit is one pixel.
func drawLegendIcon(settings MapSettings, img *image.RGBA, rect image.Rectangle, row legendRow) {
	if row.rasterColor != nil {
		draw.Draw(img, rect, image.NewUniform(*row.rasterColor), image.Point{}, draw.Over)
		return
	}
	if row.symbol == nil {
		return
	}

	bounds := img.Bounds()
	iconSettings := MapSettings{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		DPI:    settings.dpi(),
		Extent: headless.NewExtent(0, 0, float64(bounds.Dx()), float64(bounds.Dy())),
	}
	renderer := newVectorRenderer(iconSettings, img, nil)

	// map y grows upwards
	toMap := func(x, y int) orb.Point {
		return orb.Point{float64(x), float64(bounds.Dy() - y)}
	}

	var geometry orb.Geometry
	switch row.symbol.Type {
	case styling.SymbolTypeFill:
		geometry = orb.Polygon{orb.Ring{
			toMap(rect.Min.X, rect.Min.Y),
			toMap(rect.Max.X, rect.Min.Y),
			toMap(rect.Max.X, rect.Max.Y),
			toMap(rect.Min.X, rect.Max.Y),
			toMap(rect.Min.X, rect.Min.Y),
		}}
	case styling.SymbolTypeLine:
		middle := (rect.Min.Y + rect.Max.Y) / 2
		geometry = orb.LineString{toMap(rect.Min.X, middle), toMap(rect.Max.X, middle)}
	default:
		geometry = toMap((rect.Min.X+rect.Max.X)/2, (rect.Min.Y+rect.Max.Y)/2)
	}

	renderer.drawSymbol(geometry, row.symbol, nil, 1)
}
