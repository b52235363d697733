package headlessdal

import (
	"encoding/json"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/ownmap-headless/crs"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/common"
	"github.com/xitongsys/parquet-go/parquet"
	parquetreader "github.com/xitongsys/parquet-go/reader"
)

const geoParquetMetadataKey = "geo"

type geoParquetMetadata struct {
	Version       string                              `json:"version"`
	PrimaryColumn string                              `json:"primary_column"`
	Columns       map[string]geoParquetColumnMetadata `json:"columns"`
}

type geoParquetColumnMetadata struct {
	Encoding string          `json:"encoding"`
	CRS      json.RawMessage `json:"crs"`
}

// the part of a PROJJSON document needed to find the EPSG code
type projJSONID struct {
	ID *struct {
		Authority string      `json:"authority"`
		Code      json.Number `json:"code"`
	} `json:"id"`
}

func parseGeoParquetMetadata(keyValues []*parquet.KeyValue) (*geoParquetMetadata, errorsx.Error) {
	for _, kv := range keyValues {
		if kv.Key != geoParquetMetadataKey || kv.Value == nil {
			continue
		}

		metadata := new(geoParquetMetadata)
		err := json.Unmarshal([]byte(*kv.Value), metadata)
		if err != nil {
			return nil, errorsx.Wrap(err)
		}

		if metadata.PrimaryColumn == "" {
			return nil, errorsx.Errorf("no primary geometry column in GeoParquet metadata")
		}

		columnMetadata := metadata.Columns[metadata.PrimaryColumn]
		if columnMetadata.Encoding != "" && !strings.EqualFold(columnMetadata.Encoding, "WKB") {
			return nil, errorsx.Errorf("unsupported GeoParquet geometry encoding %q", columnMetadata.Encoding)
		}

		return metadata, nil
	}

	return nil, errorsx.Errorf("no %q metadata found. Is this a GeoParquet file?", geoParquetMetadataKey)
}

// crs returns the CRS of the primary column. A missing CRS means OGC:CRS84.
func (m *geoParquetMetadata) crs() (*crs.CRS, errorsx.Error) {
	rawCRS := m.Columns[m.PrimaryColumn].CRS
	if len(rawCRS) == 0 || string(rawCRS) == "null" {
		return crs.FromEPSG(4326)
	}

	var wkt string
	if json.Unmarshal(rawCRS, &wkt) == nil {
		return crs.FromWKT(wkt)
	}

	var projJSON projJSONID
	err := json.Unmarshal(rawCRS, &projJSON)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	if projJSON.ID == nil {
		return nil, errorsx.Wrap(crs.ErrUnsupportedCRS, "crs", string(rawCRS))
	}

	if strings.EqualFold(projJSON.ID.Authority, "OGC") && projJSON.ID.Code.String() == "CRS84" {
		return crs.FromEPSG(4326)
	}

	code, err := projJSON.ID.Code.Int64()
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	return crs.FromEPSG(int(code))
}

// topLevelColumns maps the external names of the top-level leaf columns to their internal paths
func topLevelColumns(pr *parquetreader.ParquetReader) map[string]string {
	columns := make(map[string]string)
	for _, inPath := range pr.SchemaHandler.ValueColumns {
		exPath := pr.SchemaHandler.InPathToExPath[inPath]
		if exPath == "" {
			exPath = inPath
		}

		segments := strings.Split(exPath, common.PAR_GO_PATH_DELIMITER)
		if len(segments) != 2 {
			// nested column
			continue
		}

		columns[segments[1]] = inPath
	}
	return columns
}

func openGeoParquet(sourceURI SourceURI, opts *openOptions) (*VectorLayer, errorsx.Error) {
	fileReader, err := local.NewLocalFileReader(sourceURI.Path)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}
	defer fileReader.Close()

	pr, err := parquetreader.NewParquetReader(fileReader, nil, int64(runtime.NumCPU()))
	if err != nil {
		return nil, errorsx.Wrap(err)
	}
	defer pr.ReadStop()

	metadata, metadataErr := parseGeoParquetMetadata(pr.Footer.KeyValueMetadata)
	if metadataErr != nil {
		return nil, metadataErr
	}

	layerCRS, crsErr := metadata.crs()
	if crsErr != nil {
		return nil, crsErr
	}

	columns := topLevelColumns(pr)
	geometryPath, ok := columns[metadata.PrimaryColumn]
	if !ok {
		return nil, errorsx.Errorf("geometry column %q not found", metadata.PrimaryColumn)
	}

	numRows := pr.GetNumRows()

	geometryValues, _, _, err := pr.ReadColumnByPath(geometryPath, numRows)
	if err != nil {
		return nil, errorsx.Wrap(err, "column", metadata.PrimaryColumn)
	}

	features := make([]*Feature, len(geometryValues))
	for i, value := range geometryValues {
		feature := &Feature{
			ID:         int64(i),
			Attributes: make(map[string]interface{}),
		}

		wkbString, ok := value.(string)
		if ok && wkbString != "" {
			geom, err := wkb.Unmarshal([]byte(wkbString))
			if err != nil {
				return nil, errorsx.Wrap(err, "row", i)
			}
			feature.Geometry = geom
		}

		features[i] = feature
	}

	for name, inPath := range columns {
		if name == metadata.PrimaryColumn {
			continue
		}
		if opts.attributes != nil && !containsString(opts.attributes, name) {
			continue
		}

		values, _, _, err := pr.ReadColumnByPath(inPath, numRows)
		if err != nil {
			return nil, errorsx.Wrap(err, "column", name)
		}

		for i, value := range values {
			if i >= len(features) {
				break
			}
			features[i].Attributes[name] = value
		}
	}

	name := strings.TrimSuffix(filepath.Base(sourceURI.Path), filepath.Ext(sourceURI.Path))

	return NewVectorLayer(name, layerCRS, geometryTypeOfFeatures(features), fieldsFromAttributes(features), features), nil
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
