package styling

import (
	"image/color"
	"testing"

	"github.com/beevik/etree"
	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readSLD(t *testing.T, data string) *etree.Element {
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(data))
	require.NotNil(t, doc.Root())
	return doc.Root()
}

func TestFromFile_sldImport(t *testing.T) {
	style, err := FromFile("testdata/highway.sld", WithFormat(FormatSLD))
	require.NoError(t, err)

	assert.Equal(t, headless.LayerTypeVector, style.Type())

	vs := style.Vector()
	renderer, ok := vs.Renderer.(*RuleBasedRenderer)
	require.True(t, ok)
	require.Len(t, renderer.Root.Children, 2)

	highwayRule := renderer.Root.Children[0]
	assert.Equal(t, "Highway", highwayRule.Label)
	assert.Equal(t, `"HIGHWAY" = 1`, highwayRule.Filter.String())

	otherRule := renderer.Root.Children[1]
	assert.True(t, otherRule.IsElse)
	assert.Equal(t, "other", otherRule.Label)
	assert.Equal(t, 50000.0, otherRule.MaxScaleDenominator)

	line := otherRule.Symbol.Layers[0]
	assert.Equal(t, SymbolLayerSimpleLine, line.Class)
	assert.Equal(t, UnitPixel, line.Unit("line_width_unit"))
	pattern, unit := line.DashPattern("line_", line.Float("line_width", 0))
	assert.Equal(t, []float64{4, 2}, pattern)
	assert.Equal(t, UnitPixel, unit)

	type testCase struct {
		highway          interface{}
		scaleDenominator float64
		expected         []string
	}

	for _, tc := range []testCase{
		{"1", 100000, []string{"0"}},
		{int64(1), 0, []string{"0"}},
		{"2", 10000, []string{"1"}},
		{"2", 100000, []string{}},
	} {
		symbols := renderer.SymbolsForFeature(FeatureContext{
			Attributes:       map[string]interface{}{"HIGHWAY": tc.highway},
			ScaleDenominator: tc.scaleDenominator,
		})
		assert.Equal(t, tc.expected, symbolNames(symbols))
	}
}

func TestFromFile_sldStroke(t *testing.T) {
	style, err := FromFile("testdata/contour-red.sld", WithFormat(FormatSLD), WithGeometryType(headless.GeometryTypeLine))
	require.NoError(t, err)

	symbols := style.Vector().Renderer.SymbolsForFeature(FeatureContext{})
	require.Len(t, symbols, 1)
	assert.Equal(t, SymbolTypeLine, symbols[0].Type)

	layer := symbols[0].Layers[0]
	c, ok := layer.Color("line_color")
	require.True(t, ok)
	assert.Equal(t, "255,0,0,255", FormatColor(c))
	assert.Equal(t, 2.0, layer.Float("line_width", 0))
	assert.Equal(t, "square", layer.String("capstyle", ""))
	assert.Equal(t, "bevel", layer.String("joinstyle", ""))
}

func TestFromString_sldSymbolizers(t *testing.T) {
	const sld = `<StyledLayerDescriptor xmlns="http://www.opengis.net/sld" xmlns:ogc="http://www.opengis.net/ogc" xmlns:xlink="http://www.w3.org/1999/xlink" version="1.0.0">
	<NamedLayer><UserStyle><FeatureTypeStyle>
		<Rule>
			<Name>parks</Name>
			<ogc:Filter>
				<ogc:And>
					<ogc:PropertyIsLike wildCard="*" singleChar="." escapeChar="!"><ogc:PropertyName>name</ogc:PropertyName><ogc:Literal>*Park</ogc:Literal></ogc:PropertyIsLike>
					<ogc:Not><ogc:PropertyIsNull><ogc:PropertyName>area</ogc:PropertyName></ogc:PropertyIsNull></ogc:Not>
				</ogc:And>
			</ogc:Filter>
			<PolygonSymbolizer>
				<Fill><CssParameter name="fill">#00ff00</CssParameter><CssParameter name="fill-opacity">0.5</CssParameter></Fill>
			</PolygonSymbolizer>
			<TextSymbolizer>
				<Label>Park: <ogc:PropertyName>name</ogc:PropertyName></Label>
				<Font><CssParameter name="font-size">12</CssParameter></Font>
				<Halo><Radius>2</Radius><Fill><CssParameter name="fill">#ffffff</CssParameter></Fill></Halo>
			</TextSymbolizer>
		</Rule>
		<Rule>
			<ogc:Filter>
				<ogc:PropertyIsBetween><ogc:PropertyName>area</ogc:PropertyName><ogc:LowerBoundary><ogc:Literal>10</ogc:Literal></ogc:LowerBoundary><ogc:UpperBoundary><ogc:Literal>20</ogc:Literal></ogc:UpperBoundary></ogc:PropertyIsBetween>
			</ogc:Filter>
			<PolygonSymbolizer>
				<Fill><GraphicFill><Graphic><ExternalGraphic><OnlineResource xlink:type="simple" xlink:href="hatch.svg"/><Format>image/svg+xml</Format></ExternalGraphic><Size>8</Size></Graphic></GraphicFill></Fill>
			</PolygonSymbolizer>
		</Rule>
	</FeatureTypeStyle></UserStyle></NamedLayer>
</StyledLayerDescriptor>`

	style, err := FromString(sld, WithFormat(FormatSLD), WithSvgResolver(func(path string) string {
		return "/svg/" + path
	}))
	require.NoError(t, err)

	attributes, ok := style.UsedAttributes()
	require.True(t, ok)
	assert.Equal(t, []string{"area", "name"}, attributes)

	vs := style.Vector()
	renderer := vs.Renderer.(*RuleBasedRenderer)
	require.Len(t, renderer.Root.Children, 2)

	park := map[string]interface{}{"name": "Central Park", "area": 15}
	symbols := renderer.SymbolsForFeature(FeatureContext{Attributes: park})
	require.Len(t, symbols, 2)

	fill := symbols[0].Layers[0]
	assert.Equal(t, SymbolLayerSimpleFill, fill.Class)
	assert.Equal(t, "0,255,0,128", fill.String("color", ""))
	assert.False(t, fill.StrokeVisible("outline_"))

	hatch := symbols[1].Layers[0]
	assert.Equal(t, SymbolLayerSVGFill, hatch.Class)
	assert.Equal(t, "/svg/hatch.svg", hatch.String("svgFile", ""))

	assert.Empty(t, renderer.SymbolsForFeature(FeatureContext{Attributes: map[string]interface{}{"name": "Central Park"}}))

	require.NotNil(t, vs.Labeling)
	settings := vs.Labeling.SettingsForFeature(FeatureContext{Attributes: park})
	require.Len(t, settings, 1)
	text, ok := settings[0].Text(park)
	require.True(t, ok)
	assert.Equal(t, "Park: Central Park", text)
	assert.True(t, settings[0].BufferDraw)
	assert.Equal(t, UnitPixel, settings[0].FontSizeUnit)
}

func TestFromString_sldErrors(t *testing.T) {
	testCases := map[string]string{
		"no named layer":     `<StyledLayerDescriptor/>`,
		"no user style":      `<StyledLayerDescriptor><NamedLayer/></StyledLayerDescriptor>`,
		"unsupported filter": `<StyledLayerDescriptor><NamedLayer><UserStyle><FeatureTypeStyle><Rule><Filter><BBOX/></Filter></Rule></FeatureTypeStyle></UserStyle></NamedLayer></StyledLayerDescriptor>`,
	}

	for name, data := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := FromString(data, WithFormat(FormatSLD))
			require.Error(t, err)
			assert.True(t, headless.IsKind(err, headless.ErrStyleValidation))
		})
	}
}

func TestExportToString_sld(t *testing.T) {
	t.Run("categorized", func(t *testing.T) {
		style, err := FromFile("testdata/highway.qml")
		require.NoError(t, err)

		exported, err := style.ExportToString(FormatSLD)
		require.NoError(t, err)

		root := readSLD(t, exported)
		assert.Equal(t, sldRootTag, root.Tag)

		rules := root.FindElements(".//Rule")
		require.Len(t, rules, 2)

		equalTo := rules[0].FindElement("Filter/PropertyIsEqualTo")
		require.NotNil(t, equalTo)
		assert.Equal(t, "HIGHWAY", equalTo.SelectElement("PropertyName").Text())
		assert.Equal(t, "1", equalTo.SelectElement("Literal").Text())

		stroke := svgParameters(rules[0].FindElement("LineSymbolizer/Stroke"))
		assert.Equal(t, "#e6550d", stroke["stroke"])
		assert.Equal(t, "3.78", stroke["stroke-width"])

		dashed := svgParameters(rules[1].FindElement("LineSymbolizer/Stroke"))
		assert.Equal(t, "6.05 3.02", dashed["stroke-dasharray"])

		reimported, importErr := FromString(exported, WithFormat(FormatSLD))
		require.NoError(t, importErr)

		attributes, ok := reimported.UsedAttributes()
		require.True(t, ok)
		assert.Equal(t, []string{"HIGHWAY"}, attributes)

		symbols := reimported.Vector().Renderer.SymbolsForFeature(FeatureContext{Attributes: map[string]interface{}{"HIGHWAY": 0}})
		require.Len(t, symbols, 1)
		assert.Equal(t, "150,150,150,255", symbols[0].Layers[0].String("line_color", ""))
	})

	t.Run("rules and labels", func(t *testing.T) {
		style, err := FromFile("testdata/osm-highway.qml")
		require.NoError(t, err)

		exported, err := style.ExportToString(FormatSLD)
		require.NoError(t, err)

		root := readSLD(t, exported)
		rules := root.FindElements(".//Rule")
		require.Len(t, rules, 4)

		assert.Len(t, rules[0].FindElements("Filter/Or/PropertyIsEqualTo"), 2)
		assert.Equal(t, "100000", rules[1].SelectElement("MaxScaleDenominator").Text())
		assert.NotNil(t, rules[2].SelectElement("ElseFilter"))

		labelRule := rules[3]
		assert.Equal(t, "1000", labelRule.SelectElement("MinScaleDenominator").Text())
		assert.Equal(t, "50000", labelRule.SelectElement("MaxScaleDenominator").Text())
		function := labelRule.FindElement("TextSymbolizer/Label/Function")
		require.NotNil(t, function)
		assert.Equal(t, "coalesce", function.SelectAttrValue("name", ""))

		reimported, importErr := FromString(exported, WithFormat(FormatSLD))
		require.NoError(t, importErr)

		attributes, ok := reimported.UsedAttributes()
		require.True(t, ok)
		assert.Equal(t, []string{"HIGHWAY", "NAME", "NAME_EN"}, attributes)
	})

	t.Run("default polygon style", func(t *testing.T) {
		style := FromDefaults(color.NRGBA{14, 15, 16, 250}, headless.GeometryTypePolygon, headless.LayerTypeVector)

		exported, err := style.ExportToString(FormatSLD)
		require.NoError(t, err)

		root := readSLD(t, exported)
		fill := svgParameters(root.FindElement(".//PolygonSymbolizer/Fill"))
		assert.Equal(t, "#0e0f10", fill["fill"])
		assert.Equal(t, "0.98", fill["fill-opacity"])

		stroke := svgParameters(root.FindElement(".//PolygonSymbolizer/Stroke"))
		assert.Equal(t, "#232323", stroke["stroke"])
		assert.Equal(t, "0.98", stroke["stroke-width"])
	})

	t.Run("raster", func(t *testing.T) {
		style, err := FromFile("testdata/raster/rounds.qml")
		require.NoError(t, err)

		exported, err := style.ExportToString(FormatSLD)
		require.NoError(t, err)

		root := readSLD(t, exported)
		symbolizer := root.FindElement(".//RasterSymbolizer")
		require.NotNil(t, symbolizer)
		assert.Equal(t, "0.5", symbolizer.SelectElement("Opacity").Text())

		colorMap := symbolizer.SelectElement("ColorMap")
		require.NotNil(t, colorMap)
		assert.Equal(t, "ramp", colorMap.SelectAttrValue("type", ""))
		entries := colorMap.SelectElements("ColorMapEntry")
		require.Len(t, entries, 2)
		assert.Equal(t, "#ff0000", entries[1].SelectAttrValue("color", ""))
		assert.Equal(t, "200", entries[1].SelectAttrValue("quantity", ""))
	})

	t.Run("expression without SLD equivalent", func(t *testing.T) {
		style, err := FromString(`<qgis>
			<renderer-v2 type="RuleRenderer">
				<rules><rule filter="&quot;a&quot; % 2 = 0" symbol="0"/></rules>
				<symbols><symbol name="0" type="line"><layer class="SimpleLine" enabled="1"/></symbol></symbols>
			</renderer-v2>
		</qgis>`)
		require.NoError(t, err)

		_, err = style.ExportToString(FormatSLD)
		assert.Error(t, err)
	})
}
