package headlessdal

import (
	"context"
	"fmt"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/gofs"
	"github.com/jamesrr39/goutil/httpextra"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/ownmap-headless/crs"
	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/paulmach/orb/encoding/wkb"
)

// Opener creates layers from source URIs
type Opener struct {
	logger *logpkg.Logger
	fs     gofs.Fs
	client httpextra.Doer
}

func NewOpener(logger *logpkg.Logger, fs gofs.Fs, client httpextra.Doer) *Opener {
	return &Opener{logger, fs, client}
}

type openOptions struct {
	attributes []string
}

type OpenOption func(*openOptions)

// WithAttributes limits the attributes read from the source. Sources with columnar storage only read the named columns.
func WithAttributes(names []string) OpenOption {
	return func(o *openOptions) {
		o.attributes = append([]string{}, names...)
	}
}

func (o *Opener) OpenVector(ctx context.Context, uri string, options ...OpenOption) (*VectorLayer, errorsx.Error) {
	opts := new(openOptions)
	for _, option := range options {
		option(opts)
	}

	sourceURI, err := ParseSourceURI(uri)
	if err != nil {
		return nil, headless.NewError(headless.ErrOpenFailed, err, "uri", uri)
	}

	if sourceURI.Kind.LayerType() != headless.LayerTypeVector {
		return nil, headless.NewError(headless.ErrOpenFailed, fmt.Errorf("%s is not a vector source", sourceURI.Kind), "uri", uri)
	}

	o.logger.Debug("opening vector layer %q (%s)", sourceURI.Path, sourceURI.Kind)

	var layer *VectorLayer
	switch sourceURI.Kind {
	case SourceKindGeoJSON:
		layer, err = o.openGeoJSONFile(sourceURI)
	case SourceKindHTTP:
		layer, err = o.openGeoJSONURL(ctx, sourceURI)
	case SourceKindShapefile:
		layer, err = o.openShapefile(sourceURI)
	case SourceKindOSMPBF:
		layer, err = o.openOSMPBF(ctx, sourceURI)
	case SourceKindGeoParquet:
		layer, err = openGeoParquet(sourceURI, opts)
	case SourceKindPostGIS:
		layer, err = openPostGIS(ctx, sourceURI, opts)
	default:
		err = errorsx.Errorf("unsupported vector source type: %q", sourceURI.Kind)
	}
	if err != nil {
		return nil, headless.NewError(headless.ErrOpenFailed, err, "uri", uri)
	}

	if opts.attributes != nil {
		keepAttributes(layer.features, opts.attributes)
		layer.fields = keepFields(layer.fields, opts.attributes)
	}

	o.logger.Debug("opened vector layer %q with %d features", layer.Name(), len(layer.Features()))

	return layer, nil
}

type WKBFeature struct {
	WKB        []byte
	Attributes map[string]interface{}
}

// FromData creates an in-memory vector layer from WKB encoded features
func FromData(name string, geometryType headless.GeometryType, layerCRS *crs.CRS, fields []Field, wkbFeatures []WKBFeature) (*VectorLayer, errorsx.Error) {
	if layerCRS == nil {
		return nil, headless.NewError(headless.ErrOpenFailed, fmt.Errorf("no CRS given"), "name", name)
	}

	fieldNames := make(map[string]bool)
	for _, field := range fields {
		fieldNames[field.Name] = true
	}

	var features []*Feature
	for i, wkbFeature := range wkbFeatures {
		geom, err := wkb.Unmarshal(wkbFeature.WKB)
		if err != nil {
			return nil, headless.NewError(headless.ErrOpenFailed, err, "name", name, "featureIndex", i)
		}

		featureGeometryType := headless.GeometryTypeOf(geom)
		if featureGeometryType != geometryType {
			return nil, headless.NewError(
				headless.ErrOpenFailed,
				fmt.Errorf("feature geometry type %s doesn't match layer geometry type %s", featureGeometryType, geometryType),
				"name", name, "featureIndex", i,
			)
		}

		attributes := make(map[string]interface{})
		for key, value := range wkbFeature.Attributes {
			if !fieldNames[key] {
				return nil, headless.NewError(headless.ErrOpenFailed, fmt.Errorf("attribute %q is not a field of the layer", key), "name", name, "featureIndex", i)
			}
			attributes[key] = value
		}

		features = append(features, &Feature{
			ID:         int64(i),
			Geometry:   geom,
			Attributes: attributes,
		})
	}

	return NewVectorLayer(name, layerCRS, geometryType, fields, features), nil
}
