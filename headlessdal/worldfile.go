package headlessdal

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jamesrr39/goutil/errorsx"
)

// worldFileExtensions lists the sidecar extensions tried for each image extension, in order
var worldFileExtensions = map[string][]string{
	".tif":  {".tfw", ".tifw", ".wld"},
	".tiff": {".tfw", ".tiffw", ".wld"},
	".png":  {".pgw", ".pngw", ".wld"},
	".jpg":  {".jgw", ".jpgw", ".wld"},
	".jpeg": {".jgw", ".jpegw", ".wld"},
}

func (o *Opener) readWorldFile(imagePath string) (GeoTransform, bool) {
	ext := filepath.Ext(imagePath)
	basePath := strings.TrimSuffix(imagePath, ext)

	for _, worldFileExt := range worldFileExtensions[strings.ToLower(ext)] {
		for _, candidate := range []string{basePath + worldFileExt, basePath + strings.ToUpper(worldFileExt)} {
			data, err := o.fs.ReadFile(candidate)
			if err != nil {
				continue
			}

			transform, parseErr := parseWorldFile(string(data))
			if parseErr != nil {
				o.logger.Warn("couldn't parse world file %q: %s", candidate, parseErr.Error())
				continue
			}

			o.logger.Debug("using world file %q", candidate)
			return transform, true
		}
	}

	return GeoTransform{}, false
}

// parseWorldFile reads the 6 lines of an ESRI world file: A, D, B, E, C, F.
// C and F locate the centre of the top-left pixel, so the result is shifted by half a pixel to the corner.
func parseWorldFile(contents string) (GeoTransform, errorsx.Error) {
	var values []float64
	for _, line := range strings.Split(contents, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		value, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return GeoTransform{}, errorsx.Wrap(err, "line", line)
		}
		values = append(values, value)
	}

	if len(values) != 6 {
		return GeoTransform{}, errorsx.Errorf("expected 6 values in world file but found %d", len(values))
	}

	a, d, b, e, c, f := values[0], values[1], values[2], values[3], values[4], values[5]

	return GeoTransform{
		c - 0.5*a - 0.5*b,
		a,
		b,
		f - 0.5*d - 0.5*e,
		d,
		e,
	}, nil
}
