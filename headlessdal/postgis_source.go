package headlessdal

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/ownmap-headless/crs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/paulmach/orb/encoding/wkb"
)

const (
	postGISWKBColumn  = "headless_wkb"
	postGISSRIDColumn = "headless_srid"

	defaultPostGISGeometryColumn = "geom"
)

type postGISSource struct {
	ConnectionString string
	Table            string
	GeometryColumn   string
	Where            string
}

// parsePostGISSource splits the layer parameters ("table", "geometry", "where") out of a connection URL.
// The table can also be given with the "|layername=" source option.
func parsePostGISSource(sourceURI SourceURI) (postGISSource, errorsx.Error) {
	u, err := url.Parse(sourceURI.Path)
	if err != nil {
		return postGISSource{}, errorsx.Wrap(err)
	}

	query := u.Query()
	source := postGISSource{
		Table:          query.Get("table"),
		GeometryColumn: query.Get("geometry"),
		Where:          query.Get("where"),
	}
	query.Del("table")
	query.Del("geometry")
	query.Del("where")
	u.RawQuery = query.Encode()
	source.ConnectionString = u.String()

	if source.Table == "" {
		source.Table = sourceURI.Options["layername"]
	}
	if source.Table == "" {
		return postGISSource{}, errorsx.Errorf("no table given for PostGIS source")
	}
	if source.GeometryColumn == "" {
		source.GeometryColumn = defaultPostGISGeometryColumn
	}

	return source, nil
}

func quoteQualifiedIdentifier(name string) string {
	var quoted []string
	for _, part := range strings.Split(name, ".") {
		quoted = append(quoted, pq.QuoteIdentifier(part))
	}
	return strings.Join(quoted, ".")
}

func (s postGISSource) selectQuery(attributes []string) string {
	geom := pq.QuoteIdentifier(s.GeometryColumn)

	columns := "*"
	if attributes != nil {
		var quotedAttributes []string
		for _, attribute := range attributes {
			quotedAttributes = append(quotedAttributes, pq.QuoteIdentifier(attribute))
		}
		columns = strings.Join(append(quotedAttributes, geom), ", ")
	}

	query := fmt.Sprintf(
		`SELECT ST_AsBinary(%s) AS %s, ST_SRID(%s) AS %s, %s FROM %s`,
		geom, postGISWKBColumn, geom, postGISSRIDColumn, columns, quoteQualifiedIdentifier(s.Table),
	)
	if s.Where != "" {
		query += " WHERE " + s.Where
	}

	return query
}

func openPostGIS(ctx context.Context, sourceURI SourceURI, opts *openOptions) (*VectorLayer, errorsx.Error) {
	source, parseErr := parsePostGISSource(sourceURI)
	if parseErr != nil {
		return nil, parseErr
	}

	db, err := sqlx.Open("postgres", source.ConnectionString)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}
	defer db.Close()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryxContext(ctx, source.selectQuery(opts.attributes))
	if err != nil {
		return nil, errorsx.Wrap(err, "table", source.Table)
	}
	defer rows.Close()

	srid := int64(4326)
	features := []*Feature{}
	for rows.Next() {
		row := make(map[string]interface{})
		err = rows.MapScan(row)
		if err != nil {
			return nil, errorsx.Wrap(err)
		}

		feature, rowSRID, err := postGISRowToFeature(row, source.GeometryColumn, int64(len(features)))
		if err != nil {
			return nil, errorsx.Wrap(err)
		}
		if rowSRID > 0 {
			srid = rowSRID
		}

		features = append(features, feature)
	}

	err = rows.Err()
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	layerCRS, err := crs.FromEPSG(int(srid))
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	return NewVectorLayer(source.Table, layerCRS, geometryTypeOfFeatures(features), fieldsFromAttributes(features), features), nil
}

func postGISRowToFeature(row map[string]interface{}, geometryColumn string, index int64) (*Feature, int64, errorsx.Error) {
	feature := &Feature{
		ID:         index,
		Attributes: make(map[string]interface{}),
	}

	var srid int64
	for column, value := range row {
		switch column {
		case geometryColumn:
			continue
		case postGISSRIDColumn:
			srid, _ = value.(int64)
		case postGISWKBColumn:
			wkbBytes, ok := value.([]byte)
			if !ok || wkbBytes == nil {
				continue
			}
			geom, err := wkb.Unmarshal(wkbBytes)
			if err != nil {
				return nil, 0, errorsx.Wrap(err)
			}
			feature.Geometry = geom
		default:
			if b, ok := value.([]byte); ok {
				value = string(b)
			}
			feature.Attributes[column] = value
		}
	}

	return feature, srid, nil
}
