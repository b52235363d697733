package styling

import (
	"encoding/base64"
	"image/color"
	"testing"

	"github.com/beevik/etree"
	"github.com/jamesrr39/goutil/gofs/mockfs"
	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromFile_usedAttributes(t *testing.T) {
	type testCase struct {
		path     string
		format   Format
		expected []string
	}

	testCases := []testCase{
		{"testdata/point-style.qml", FormatQML, []string{}},
		{"testdata/contour-red.qml", FormatQML, []string{}},
		{"testdata/contour-red.sld", FormatSLD, []string{}},
		{"testdata/highway.qml", FormatQML, []string{"HIGHWAY"}},
		{"testdata/highway.sld", FormatSLD, []string{"HIGHWAY"}},
		{"testdata/osm-highway.qml", FormatQML, []string{"HIGHWAY", "NAME", "NAME_EN"}},
		{"testdata/data-defined.qml", FormatQML, []string{"size"}},
		{"testdata/rule-based-labeling.qml", FormatQML, []string{"a", "b", "c"}},
		{"testdata/contour-rgb.qml", FormatQML, []string{"level"}},
		{"testdata/diagrams-disabled.qml", FormatQML, []string{}},
		{"testdata/raster/rounds.qml", FormatQML, []string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			style, err := FromFile(tc.path, WithFormat(tc.format))
			require.NoError(t, err)

			attributes, ok := style.UsedAttributes()
			require.True(t, ok)
			assert.Equal(t, tc.expected, attributes)
		})
	}
}

func TestUsedAttributes_enabledDiagrams(t *testing.T) {
	style, err := FromFile("testdata/diagrams.qml")
	require.NoError(t, err)

	attributes, ok := style.UsedAttributes()
	assert.False(t, ok)
	assert.Nil(t, attributes)
}

func TestUsedAttributes_labelsDisabled(t *testing.T) {
	style, err := FromString(`<qgis labelsEnabled="0">
		<labeling type="simple"><settings><text-style fieldName="name"/><rendering drawLabels="1"/></settings></labeling>
	</qgis>`)
	require.NoError(t, err)

	attributes, ok := style.UsedAttributes()
	require.True(t, ok)
	assert.Equal(t, []string{}, attributes)
}

func TestFromString_validationErrors(t *testing.T) {
	type testCase struct {
		name   string
		data   string
		format Format
	}

	testCases := []testCase{
		{"empty", "", FormatQML},
		{"whitespace", "  \n ", FormatQML},
		{"not xml", "this is not a style", FormatQML},
		{"unclosed elements", "<qgis><renderer-v2>", FormatQML},
		{"wrong root", "<html></html>", FormatQML},
		{"sld read as qml", `<StyledLayerDescriptor version="1.0.0"/>`, FormatQML},
		{"qml read as sld", `<qgis version="3.22.0"/>`, FormatSLD},
		{"unknown renderer", `<qgis><renderer-v2 type="heatmapRenderer"/></qgis>`, FormatQML},
		{"unknown symbol type", `<qgis><renderer-v2 type="singleSymbol"><symbols><symbol name="0" type="3d"/></symbols></renderer-v2></qgis>`, FormatQML},
		{"bad filter", `<qgis><renderer-v2 type="RuleRenderer"><rules><rule filter="&quot;a&quot; = "/></rules></renderer-v2></qgis>`, FormatQML},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromString(tc.data, WithFormat(tc.format))
			require.Error(t, err)
			assert.True(t, headless.IsKind(err, headless.ErrStyleValidation))
		})
	}
}

func TestFromFile_errors(t *testing.T) {
	t.Run("invalid document", func(t *testing.T) {
		_, err := FromFile("testdata/invalid.qml")
		require.Error(t, err)
		assert.True(t, headless.IsKind(err, headless.ErrStyleValidation))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := FromFile("/styles/missing.qml", WithFs(mockfs.NewMockFs()))
		require.Error(t, err)
		assert.True(t, headless.IsKind(err, headless.ErrStyleValidation))
	})
}

func TestFromFile_typeMismatch(t *testing.T) {
	type testCase struct {
		name          string
		path          string
		opts          []Option
		expectedError error
	}

	testCases := []testCase{
		{"point style for points", "testdata/point-style.qml", []Option{WithGeometryType(headless.GeometryTypePoint)}, nil},
		{"point style for lines", "testdata/point-style.qml", []Option{WithGeometryType(headless.GeometryTypeLine)}, headless.ErrStyleTypeMismatch},
		{"point style for vector layers", "testdata/point-style.qml", []Option{WithLayerType(headless.LayerTypeVector)}, nil},
		{"point style for raster layers", "testdata/point-style.qml", []Option{WithLayerType(headless.LayerTypeRaster)}, headless.ErrStyleTypeMismatch},
		{"raster style for vector layers", "testdata/raster/rounds.qml", []Option{WithLayerType(headless.LayerTypeVector)}, headless.ErrStyleTypeMismatch},
		{"sld declares no geometry type", "testdata/highway.sld", []Option{WithFormat(FormatSLD), WithGeometryType(headless.GeometryTypePolygon)}, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromFile(tc.path, tc.opts...)
			if tc.expectedError == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, headless.IsKind(err, tc.expectedError))
		})
	}
}

func TestFromFile_pointStyle(t *testing.T) {
	style, err := FromFile("testdata/point-style.qml")
	require.NoError(t, err)

	assert.Equal(t, headless.LayerTypeVector, style.Type())
	assert.False(t, style.isDefault)
	assert.True(t, style.AppliesTo(headless.LayerTypeVector))
	assert.False(t, style.AppliesTo(headless.LayerTypeRaster))
	assert.Nil(t, style.Raster())

	vs := style.Vector()
	require.NotNil(t, vs)
	assert.Equal(t, headless.GeometryTypePoint, vs.GeometryType)
	assert.Nil(t, vs.Labeling)

	symbols := vs.Renderer.SymbolsForFeature(FeatureContext{})
	require.Len(t, symbols, 1)
	layer := symbols[0].Layers[0]
	assert.Equal(t, SymbolLayerSimpleMarker, layer.Class)
	c, ok := layer.Color("color")
	require.True(t, ok)
	assert.Equal(t, color.NRGBA{255, 0, 0, 255}, c)
	assert.Equal(t, 4.0, layer.Float("size", 0))
}

func TestFromFile_svgMarker(t *testing.T) {
	const svg = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10"><circle cx="5" cy="5" r="4"/></svg>`

	fs := mockfs.NewMockFs()
	require.NoError(t, fs.WriteFile("/usr/share/icons/symbols/star.svg", []byte(svg), 0644))

	qml := `<qgis>
		<renderer-v2 type="singleSymbol"><symbols><symbol name="0" type="marker">
			<layer class="SvgMarker" enabled="1"><prop k="name" v="symbols/star.svg"/></layer>
		</symbol></symbols></renderer-v2>
	</qgis>`

	var resolved []string
	resolver := func(path string) string {
		resolved = append(resolved, path)
		return "/usr/share/icons/" + path
	}

	style, styleErr := FromString(qml, WithFs(fs), WithSvgResolver(resolver))
	require.NoError(t, styleErr)

	assert.Equal(t, []string{"symbols/star.svg"}, resolved)

	layer := style.Vector().Renderer.SymbolsForFeature(FeatureContext{})[0].Layers[0]
	assert.Equal(t, "/usr/share/icons/symbols/star.svg", layer.String("name", ""))
	assert.Equal(t, svg, string(layer.SVGData))

	exported, exportErr := style.ExportToString(FormatQML)
	require.NoError(t, exportErr)
	assert.Contains(t, exported, `v="/usr/share/icons/symbols/star.svg"`)
}

func TestFromFile_svgMarkerOptionEncoding(t *testing.T) {
	resolver := func(path string) string {
		return "/opt/svg/" + path
	}

	style, err := FromFile("testdata/svg-marker.qml", WithSvgResolver(resolver))
	require.NoError(t, err)

	layer := style.Vector().Renderer.SymbolsForFeature(FeatureContext{})[0].Layers[0]
	assert.Equal(t, "/opt/svg/symbols/star.svg", layer.String("name", ""))
	assert.Nil(t, layer.SVGData)
}

func TestFromString_embeddedSVG(t *testing.T) {
	const svg = `<svg xmlns="http://www.w3.org/2000/svg"/>`
	path := embeddedSVGPrefix + base64.StdEncoding.EncodeToString([]byte(svg))

	resolver := func(string) string {
		t.Error("embedded SVGs should not be resolved")
		return ""
	}

	style, err := FromString(`<qgis><renderer-v2 type="singleSymbol"><symbols><symbol name="0" type="fill">
		<layer class="SVGFill" enabled="1"><prop k="svgFile" v="`+path+`"/></layer>
	</symbol></symbols></renderer-v2></qgis>`, WithSvgResolver(resolver))
	require.NoError(t, err)

	layer := style.Vector().Renderer.SymbolsForFeature(FeatureContext{})[0].Layers[0]
	assert.Equal(t, svg, string(layer.SVGData))
}

func TestFromDefaults(t *testing.T) {
	c := color.NRGBA{14, 15, 16, 250}

	type testCase struct {
		geometryType   headless.GeometryType
		colorOption    string
		expectedSymbol SymbolType
	}

	testCases := []testCase{
		{headless.GeometryTypePoint, "color", SymbolTypeMarker},
		{headless.GeometryTypeLine, "line_color", SymbolTypeLine},
		{headless.GeometryTypePolygon, "color", SymbolTypeFill},
	}

	for _, tc := range testCases {
		t.Run(tc.geometryType.String(), func(t *testing.T) {
			style := FromDefaults(c, tc.geometryType, headless.LayerTypeVector)
			assert.True(t, style.isDefault)
			assert.Equal(t, headless.LayerTypeVector, style.Type())

			attributes, ok := style.UsedAttributes()
			require.True(t, ok)
			assert.Equal(t, []string{}, attributes)

			symbols := style.Vector().Renderer.SymbolsForFeature(FeatureContext{GeometryType: tc.geometryType})
			require.Len(t, symbols, 1)
			assert.Equal(t, tc.expectedSymbol, symbols[0].Type)

			exported, err := style.ExportToString(FormatQML)
			require.NoError(t, err)

			doc := etree.NewDocument()
			require.NoError(t, doc.ReadFromString(exported))

			var values []string
			for _, option := range doc.FindElements(".//Option") {
				if option.SelectAttrValue("name", "") == tc.colorOption {
					values = append(values, option.SelectAttrValue("value", ""))
				}
			}
			assert.Equal(t, []string{"14,15,16,250"}, values)

			reread, readErr := FromString(exported, WithGeometryType(tc.geometryType))
			require.NoError(t, readErr)
			assert.False(t, reread.isDefault)
		})
	}
}

func TestFromDefaults_withoutGeometryType(t *testing.T) {
	style := FromDefaults(DefaultColor, headless.GeometryTypeUnknown, headless.LayerTypeUnknown)

	assert.True(t, style.AppliesTo(headless.LayerTypeVector))
	assert.True(t, style.AppliesTo(headless.LayerTypeRaster))
	require.NotNil(t, style.Vector())
	require.NotNil(t, style.Raster())

	symbols := style.Vector().Renderer.SymbolsForFeature(FeatureContext{GeometryType: headless.GeometryTypeLine})
	require.Len(t, symbols, 1)
	assert.Equal(t, SymbolTypeLine, symbols[0].Type)

	exported, err := style.ExportToString(FormatQML)
	require.NoError(t, err)
	assert.NotContains(t, exported, qmlRendererTag)
}

func TestFromDefaults_raster(t *testing.T) {
	style := FromDefaults(DefaultColor, headless.GeometryTypeUnknown, headless.LayerTypeRaster)

	assert.Nil(t, style.Vector())
	require.NotNil(t, style.Raster())
	assert.Equal(t, RasterRendererMultiBandColor, style.Raster().Renderer.Type())

	exported, err := style.ExportToString(FormatQML)
	require.NoError(t, err)

	reread, readErr := FromString(exported, WithLayerType(headless.LayerTypeRaster))
	require.NoError(t, readErr)
	assert.Equal(t, headless.LayerTypeRaster, reread.Type())
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("SLD")
	require.NoError(t, err)
	assert.Equal(t, FormatSLD, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatQML, format)

	_, err = ParseFormat("mapcss")
	assert.Error(t, err)
}

func TestParseColor(t *testing.T) {
	type testCase struct {
		input       string
		expected    color.NRGBA
		expectError bool
	}

	testCases := []testCase{
		{"255,0,0,255", color.NRGBA{255, 0, 0, 255}, false},
		{"10, 20, 30", color.NRGBA{10, 20, 30, 255}, false},
		{"10,20,30,128,rgb:0.04,0.08,0.12,0.5", color.NRGBA{10, 20, 30, 128}, false},
		{"#1f78b4", color.NRGBA{0x1f, 0x78, 0xb4, 255}, false},
		{"#801f78b4", color.NRGBA{0x1f, 0x78, 0xb4, 0x80}, false},
		{"#f80", color.NRGBA{0xff, 0x88, 0x00, 255}, false},
		{"", color.NRGBA{}, true},
		{"red", color.NRGBA{}, true},
		{"256,0,0", color.NRGBA{}, true},
		{"#12345", color.NRGBA{}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			c, err := ParseColor(tc.input)
			if tc.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, c)
		})
	}

	assert.Equal(t, "14,15,16,250", FormatColor(color.NRGBA{14, 15, 16, 250}))
	assert.Equal(t, "#0e0f10", FormatHexColor(color.NRGBA{14, 15, 16, 250}))
}
