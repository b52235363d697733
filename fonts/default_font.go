package fonts

import (
	"github.com/golang/freetype/truetype"
	"github.com/jamesrr39/goutil/errorsx"
	"golang.org/x/image/font/gofont/goregular"
)

var defaultFont *truetype.Font

func init() {
	font, err := loadGoRegular()
	if err != nil {
		panic(err)
	}

	defaultFont = font
}

func loadGoRegular() (*truetype.Font, errorsx.Error) {
	font, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	return font, nil
}

// DefaultFont is used for all labels and legend text. Font families named by styles are not looked up.
func DefaultFont() *truetype.Font {
	return defaultFont
}
