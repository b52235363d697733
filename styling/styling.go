package styling

import (
	"image/color"
	"strings"

	"github.com/beevik/etree"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/gofs"
	"github.com/jamesrr39/ownmap-headless/headless"
)

type Format int

const (
	FormatQML Format = iota
	FormatSLD
)

func (f Format) String() string {
	if f == FormatSLD {
		return "sld"
	}
	return "qml"
}

func ParseFormat(s string) (Format, errorsx.Error) {
	switch strings.ToLower(s) {
	case "qml", "":
		return FormatQML, nil
	case "sld":
		return FormatSLD, nil
	}
	return FormatQML, errorsx.Errorf("unknown style format %q", s)
}

type options struct {
	svgResolver  SvgResolver
	geometryType headless.GeometryType
	layerType    headless.LayerType
	format       Format
	fs           gofs.Fs
}

type Option func(*options)

// WithSvgResolver rewrites the SVG paths of markers and fills once, when the style is created
func WithSvgResolver(resolver SvgResolver) Option {
	return func(o *options) {
		o.svgResolver = resolver
	}
}

// WithGeometryType makes creating the style fail with ErrStyleTypeMismatch when the style declares another geometry type
func WithGeometryType(geometryType headless.GeometryType) Option {
	return func(o *options) {
		o.geometryType = geometryType
	}
}

// WithLayerType makes creating the style fail with ErrStyleTypeMismatch when the style is for another layer type
func WithLayerType(layerType headless.LayerType) Option {
	return func(o *options) {
		o.layerType = layerType
	}
}

func WithFormat(format Format) Option {
	return func(o *options) {
		o.format = format
	}
}

// WithFs sets the filesystem style and SVG files are read from
func WithFs(fs gofs.Fs) Option {
	return func(o *options) {
		o.fs = fs
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		geometryType: headless.GeometryTypeUnknown,
		layerType:    headless.LayerTypeUnknown,
		format:       FormatQML,
		fs:           gofs.NewOsFs(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Style is a QML document together with the symbology parsed from it. SLD documents are converted to QML when read.
type Style struct {
	doc       *etree.Document
	layerType headless.LayerType
	isDefault bool
	vector    *VectorStyle
	raster    *RasterStyle
}

func FromString(data string, opts ...Option) (*Style, errorsx.Error) {
	o := newOptions(opts)

	if strings.TrimSpace(data) == "" {
		return nil, headless.NewError(headless.ErrStyleValidation, errorsx.Errorf("empty style document"))
	}

	doc := etree.NewDocument()
	err := doc.ReadFromString(data)
	if err != nil {
		return nil, headless.NewError(headless.ErrStyleValidation, err)
	}

	root := doc.Root()
	if root == nil {
		return nil, headless.NewError(headless.ErrStyleValidation, errorsx.Errorf("no root element"))
	}

	switch o.format {
	case FormatSLD:
		if root.Tag != sldRootTag {
			return nil, headless.NewError(headless.ErrStyleValidation, errorsx.Errorf("expected an SLD document but found root element %q", root.Tag))
		}
		var convertErr errorsx.Error
		doc, convertErr = sldToQML(root)
		if convertErr != nil {
			return nil, headless.NewError(headless.ErrStyleValidation, convertErr)
		}
		root = doc.Root()
	default:
		if root.Tag != qmlRootTag {
			return nil, headless.NewError(headless.ErrStyleValidation, errorsx.Errorf("expected a QML document but found root element %q", root.Tag))
		}
	}

	if o.geometryType != headless.GeometryTypeUnknown {
		declared, ok := declaredGeometryType(root)
		if ok && declared != o.geometryType {
			return nil, headless.NewError(
				headless.ErrStyleTypeMismatch,
				errorsx.Errorf("style is for %s geometries, not %s", declared, o.geometryType),
			)
		}
	}

	if o.svgResolver != nil {
		resolveSvgPaths(root, o.svgResolver)
	}

	style := &Style{
		doc:       doc,
		layerType: detectLayerType(root),
	}

	loader := &symbolLoader{o.fs}
	vector, parseErr := loader.parseVectorStyle(root, NewGeometryDefaultRenderer(DefaultColor))
	if parseErr != nil {
		return nil, headless.NewError(headless.ErrStyleValidation, parseErr)
	}
	style.vector = vector

	if style.layerType == headless.LayerTypeRaster {
		raster, parseErr := parseRasterStyle(root)
		if parseErr != nil {
			return nil, headless.NewError(headless.ErrStyleValidation, parseErr)
		}
		style.raster = raster
	}

	if o.layerType != headless.LayerTypeUnknown && o.layerType != style.layerType {
		return nil, headless.NewError(
			headless.ErrStyleTypeMismatch,
			errorsx.Errorf("style is for %s layers, not %s", style.layerType, o.layerType),
		)
	}

	return style, nil
}

func FromFile(path string, opts ...Option) (*Style, errorsx.Error) {
	o := newOptions(opts)

	data, err := o.fs.ReadFile(path)
	if err != nil {
		return nil, headless.NewError(headless.ErrStyleValidation, err, "path", path)
	}

	return FromString(string(data), opts...)
}

// FromDefaults creates the style QGIS gives new layers: a single simple symbol of color for vector layers,
// the first three bands as red, green and blue for raster layers.
// Without a geometry type, vector features are drawn with the kind of symbol matching their own geometry.
func FromDefaults(c color.NRGBA, geometryType headless.GeometryType, layerType headless.LayerType) *Style {
	doc := defaultDocument(c, geometryType, layerType)

	style := &Style{
		doc:       doc,
		layerType: layerType,
		isDefault: true,
		raster:    defaultRasterStyle(),
	}

	if layerType == headless.LayerTypeRaster {
		return style
	}

	if isKnownGeometryType(geometryType) {
		vector, err := (&symbolLoader{}).parseVectorStyle(doc.Root(), nil)
		if err != nil {
			panic("default style not parseable: " + err.Error())
		}
		style.vector = vector
		return style
	}

	style.vector = &VectorStyle{
		GeometryType: headless.GeometryTypeUnknown,
		Renderer:     NewGeometryDefaultRenderer(c),
		Opacity:      1,
	}

	return style
}

// Type is the layer type the style applies to. Default styles created without a layer type return LayerTypeUnknown.
func (s *Style) Type() headless.LayerType {
	return s.layerType
}

// AppliesTo reports whether the style can be used with a layer of layerType
func (s *Style) AppliesTo(layerType headless.LayerType) bool {
	return s.layerType == headless.LayerTypeUnknown || s.layerType == layerType
}

// Vector is nil for raster styles
func (s *Style) Vector() *VectorStyle {
	if s.layerType == headless.LayerTypeRaster {
		return nil
	}
	return s.vector
}

// Raster is nil for vector styles
func (s *Style) Raster() *RasterStyle {
	if s.layerType == headless.LayerTypeVector {
		return nil
	}
	return s.raster
}

// UsedAttributes lists the attributes the style reads when drawing features, sorted.
// ok is false when enabled diagrams make the set unknowable.
func (s *Style) UsedAttributes() (attributes []string, ok bool) {
	if s.isDefault || s.layerType == headless.LayerTypeRaster {
		return []string{}, true
	}

	if s.vector.diagramsEnabled {
		return nil, false
	}

	return s.vector.usedAttributes(), true
}

func (s *Style) ExportToString(format Format) (string, errorsx.Error) {
	switch format {
	case FormatQML:
		doc := s.doc.Copy()
		doc.Indent(2)
		data, err := doc.WriteToString()
		if err != nil {
			return "", errorsx.Wrap(err)
		}
		return data, nil
	case FormatSLD:
		return s.exportSLD()
	}

	return "", errorsx.Errorf("unknown style format %d", format)
}
