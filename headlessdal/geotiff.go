package headlessdal

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/jamesrr39/goutil/errorsx"
)

// TIFF tags holding the georeferencing of a GeoTIFF
const (
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
)

// GeoKeys read from the GeoKeyDirectory
const (
	geoKeyRasterType       = 1025
	geoKeyGeographicType   = 2048
	geoKeyProjectedCSType  = 3072
	geoKeyUserDefined      = 32767
	rasterTypePixelIsPoint = 2
)

const (
	tiffTypeShort    = 3
	tiffTypeLong     = 4
	tiffTypeDouble   = 12
	tiffIFDEntrySize = 12
)

const maxTIFFValueCount uint32 = 1 << 16

type geoTIFFTags struct {
	transform    GeoTransform
	hasTransform bool
	epsgCode     int
}

type tiffIFDEntry struct {
	tag      uint16
	dataType uint16
	count    uint32
	// the 4 raw bytes holding either the value or the offset of the value
	valueOrOffset []byte
}

// readGeoTIFFTags reads the georeferencing tags of the first image of a TIFF file.
// It returns nil when the file has none of them.
func readGeoTIFFTags(r io.ReaderAt) (*geoTIFFTags, errorsx.Error) {
	header := make([]byte, 8)
	_, err := r.ReadAt(header, 0)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	var byteOrder binary.ByteOrder
	switch string(header[:2]) {
	case "II":
		byteOrder = binary.LittleEndian
	case "MM":
		byteOrder = binary.BigEndian
	default:
		return nil, errorsx.Errorf("not a TIFF file")
	}

	if byteOrder.Uint16(header[2:4]) != 42 {
		return nil, errorsx.Errorf("unsupported TIFF version (BigTIFF files are not supported)")
	}

	ifdOffset := int64(byteOrder.Uint32(header[4:8]))

	entryCountBytes := make([]byte, 2)
	_, err = r.ReadAt(entryCountBytes, ifdOffset)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}
	entryCount := int(byteOrder.Uint16(entryCountBytes))

	entriesBytes := make([]byte, entryCount*tiffIFDEntrySize)
	_, err = r.ReadAt(entriesBytes, ifdOffset+2)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	entries := make(map[uint16]tiffIFDEntry)
	for i := 0; i < entryCount; i++ {
		b := entriesBytes[i*tiffIFDEntrySize : (i+1)*tiffIFDEntrySize]
		entry := tiffIFDEntry{
			tag:           byteOrder.Uint16(b[0:2]),
			dataType:      byteOrder.Uint16(b[2:4]),
			count:         byteOrder.Uint32(b[4:8]),
			valueOrOffset: b[8:12],
		}
		entries[entry.tag] = entry
	}

	reader := tiffValueReader{r, byteOrder}

	tags := new(geoTIFFTags)
	found := false

	if entry, ok := entries[tagModelTransformation]; ok {
		matrix, err := reader.doubles(entry)
		if err != nil {
			return nil, err
		}
		if len(matrix) != 16 {
			return nil, errorsx.Errorf("ModelTransformationTag should have 16 values, but had %d", len(matrix))
		}
		tags.transform = GeoTransform{matrix[3], matrix[0], matrix[1], matrix[7], matrix[4], matrix[5]}
		tags.hasTransform = true
		found = true
	}

	tiepointEntry, hasTiepoint := entries[tagModelTiepoint]
	scaleEntry, hasScale := entries[tagModelPixelScale]
	if !tags.hasTransform && hasTiepoint && hasScale {
		tiepoints, err := reader.doubles(tiepointEntry)
		if err != nil {
			return nil, err
		}
		scale, err := reader.doubles(scaleEntry)
		if err != nil {
			return nil, err
		}
		if len(tiepoints) < 6 || len(scale) < 2 {
			return nil, errorsx.Errorf("too few tiepoint or pixel scale values")
		}

		i, j, x, y := tiepoints[0], tiepoints[1], tiepoints[3], tiepoints[4]
		scaleX, scaleY := scale[0], scale[1]
		tags.transform = GeoTransform{x - i*scaleX, scaleX, 0, y + j*scaleY, 0, -scaleY}
		tags.hasTransform = true
		found = true
	}

	if entry, ok := entries[tagGeoKeyDirectory]; ok {
		geoKeys, err := reader.shorts(entry)
		if err != nil {
			return nil, err
		}

		keys := parseGeoKeyDirectory(geoKeys)

		code := keys[geoKeyProjectedCSType]
		if code == 0 || code == geoKeyUserDefined {
			code = keys[geoKeyGeographicType]
		}
		if code != geoKeyUserDefined {
			tags.epsgCode = code
		}

		if tags.hasTransform && keys[geoKeyRasterType] == rasterTypePixelIsPoint {
			// the tiepoint refers to the centre of the pixel
			tags.transform[0] -= 0.5 * tags.transform[1]
			tags.transform[3] -= 0.5 * tags.transform[5]
		}
		found = true
	}

	if !found {
		return nil, nil
	}

	return tags, nil
}

// parseGeoKeyDirectory returns the GeoKeys whose values are stored inline in the directory
func parseGeoKeyDirectory(values []uint16) map[int]int {
	keys := make(map[int]int)
	if len(values) < 4 {
		return keys
	}

	keyCount := int(values[3])
	for k := 0; k < keyCount; k++ {
		start := 4 + k*4
		if start+4 > len(values) {
			break
		}

		keyID, location, valueOffset := values[start], values[start+1], values[start+3]
		if location != 0 {
			// stored in another tag (doubles or ASCII)
			continue
		}
		keys[int(keyID)] = int(valueOffset)
	}

	return keys
}

type tiffValueReader struct {
	r         io.ReaderAt
	byteOrder binary.ByteOrder
}

func (tr tiffValueReader) data(entry tiffIFDEntry, valueSize int) ([]byte, errorsx.Error) {
	if entry.count > maxTIFFValueCount {
		return nil, errorsx.Errorf("too many values (%d) for tag %d", entry.count, entry.tag)
	}

	size := int(entry.count) * valueSize
	if size <= 4 {
		return entry.valueOrOffset[:size], nil
	}

	b := make([]byte, size)
	_, err := tr.r.ReadAt(b, int64(tr.byteOrder.Uint32(entry.valueOrOffset)))
	if err != nil {
		return nil, errorsx.Wrap(err, "tag", entry.tag)
	}

	return b, nil
}

func (tr tiffValueReader) doubles(entry tiffIFDEntry) ([]float64, errorsx.Error) {
	if entry.dataType != tiffTypeDouble {
		return nil, errorsx.Errorf("tag %d: expected DOUBLE values but got type %d", entry.tag, entry.dataType)
	}

	b, err := tr.data(entry, 8)
	if err != nil {
		return nil, err
	}

	values := make([]float64, entry.count)
	for i := range values {
		values[i] = math.Float64frombits(tr.byteOrder.Uint64(b[i*8:]))
	}
	return values, nil
}

func (tr tiffValueReader) shorts(entry tiffIFDEntry) ([]uint16, errorsx.Error) {
	switch entry.dataType {
	case tiffTypeShort:
		b, err := tr.data(entry, 2)
		if err != nil {
			return nil, err
		}

		values := make([]uint16, entry.count)
		for i := range values {
			values[i] = tr.byteOrder.Uint16(b[i*2:])
		}
		return values, nil
	case tiffTypeLong:
		b, err := tr.data(entry, 4)
		if err != nil {
			return nil, err
		}

		values := make([]uint16, entry.count)
		for i := range values {
			values[i] = uint16(tr.byteOrder.Uint32(b[i*4:]))
		}
		return values, nil
	default:
		return nil, errorsx.Errorf("tag %d: expected SHORT values but got type %d", entry.tag, entry.dataType)
	}
}
