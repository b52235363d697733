package headlessdal

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/httpextra"
	"github.com/jamesrr39/ownmap-headless/crs"
	"github.com/paulmach/orb/geojson"
)

func (o *Opener) openGeoJSONFile(sourceURI SourceURI) (*VectorLayer, errorsx.Error) {
	data, err := o.fs.ReadFile(sourceURI.Path)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	name := strings.TrimSuffix(filepath.Base(sourceURI.Path), filepath.Ext(sourceURI.Path))

	return parseGeoJSON(name, data)
}

func (o *Opener) openGeoJSONURL(ctx context.Context, sourceURI SourceURI) (*VectorLayer, errorsx.Error) {
	if o.client == nil {
		return nil, errorsx.Errorf("network access is not available")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURI.Path, nil)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}
	defer resp.Body.Close()

	err = httpextra.CheckResponseCode(http.StatusOK, resp.StatusCode)
	if err != nil {
		return nil, errorsx.Wrap(err, "body", httpextra.GetBodyOrErrorMsg(resp))
	}

	body, err := httpextra.RemoveGzip(resp)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}
	defer body.Close()

	data, err := ioutil.ReadAll(body)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	name := sourceURI.Options["layername"]
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(req.URL.Path), filepath.Ext(req.URL.Path))
	}

	return parseGeoJSON(name, data)
}

// legacy (pre RFC 7946) named CRS member
type geoJSONCRSMember struct {
	CRS *struct {
		Type       string `json:"type"`
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	} `json:"crs"`
}

func parseGeoJSON(name string, data []byte) (*VectorLayer, errorsx.Error) {
	fc, err := decodeFeatureCollection(data)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	layerCRS, err := geoJSONCRS(data)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	var features []*Feature
	for i, f := range fc.Features {
		features = append(features, &Feature{
			ID:         geoJSONFeatureID(f.ID, i),
			Geometry:   f.Geometry,
			Attributes: map[string]interface{}(f.Properties.Clone()),
		})
	}

	if features == nil {
		features = []*Feature{}
	}

	return NewVectorLayer(name, layerCRS, geometryTypeOfFeatures(features), fieldsFromAttributes(features), features), nil
}

func decodeFeatureCollection(data []byte) (*geojson.FeatureCollection, errorsx.Error) {
	var typeMember struct {
		Type string `json:"type"`
	}
	err := json.Unmarshal(data, &typeMember)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	switch typeMember.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, errorsx.Wrap(err)
		}
		return fc, nil
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, errorsx.Wrap(err)
		}
		fc := geojson.NewFeatureCollection()
		fc.Append(f)
		return fc, nil
	case "":
		return nil, errorsx.Errorf("no GeoJSON type member found")
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, errorsx.Wrap(err)
		}
		fc := geojson.NewFeatureCollection()
		fc.Append(geojson.NewFeature(g.Geometry()))
		return fc, nil
	}
}

func geoJSONCRS(data []byte) (*crs.CRS, errorsx.Error) {
	var member geoJSONCRSMember
	err := json.Unmarshal(data, &member)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	if member.CRS == nil || member.CRS.Properties.Name == "" {
		return crs.FromEPSG(4326)
	}

	code, err := epsgCodeFromName(member.CRS.Properties.Name)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	return crs.FromEPSG(code)
}

// epsgCodeFromName understands "EPSG:3857", "urn:ogc:def:crs:EPSG::3857" and "urn:ogc:def:crs:OGC:1.3:CRS84"
func epsgCodeFromName(name string) (int, errorsx.Error) {
	if strings.HasSuffix(name, "CRS84") {
		return 4326, nil
	}

	idx := strings.LastIndex(name, ":")
	if idx < 0 || !strings.Contains(strings.ToUpper(name), "EPSG") {
		return 0, errorsx.Errorf("couldn't understand CRS name %q", name)
	}

	code, err := strconv.Atoi(name[idx+1:])
	if err != nil {
		return 0, errorsx.Wrap(err, "name", name)
	}

	return code, nil
}

func geoJSONFeatureID(id interface{}, index int) int64 {
	switch v := id.(type) {
	case float64:
		return int64(v)
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return parsed
		}
	}

	return int64(index)
}
