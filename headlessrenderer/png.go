package headlessrenderer

import (
	"bytes"
	"image"
	"image/png"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/ownmap-headless/headless"
)

// DefaultQuality lets the encoder pick its default compression
const DefaultQuality = -1

// compressionLevel maps a quality to a PNG compression level. Quality 0 compresses the most and 100 not at all,
// negative values mean the default, and values above 100 are treated as 100.
func compressionLevel(quality int) png.CompressionLevel {
	if quality < 0 {
		return png.DefaultCompression
	}
	if quality > 100 {
		quality = 100
	}

	// zlib levels go from 9 (best) down to 0 (none)
	level := (100 - quality) * 9 / 91
	switch {
	case level == 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 7:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

func EncodePNG(img image.Image, quality int) ([]byte, errorsx.Error) {
	encoder := &png.Encoder{CompressionLevel: compressionLevel(quality)}

	buf := bytes.NewBuffer(nil)
	err := encoder.Encode(buf, img)
	if err != nil {
		return nil, headless.NewError(headless.ErrRenderFailed, err, "stage", "encode png")
	}

	return buf.Bytes(), nil
}
