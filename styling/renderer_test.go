package styling

import (
	"image/color"
	"testing"

	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadVectorStyle(t *testing.T, path string) *VectorStyle {
	style, err := FromFile(path)
	require.NoError(t, err)

	vs := style.Vector()
	require.NotNil(t, vs)
	return vs
}

func symbolNames(symbols []*Symbol) []string {
	names := []string{}
	for _, symbol := range symbols {
		names = append(names, symbol.Name)
	}
	return names
}

func TestCategorizedRenderer(t *testing.T) {
	vs := loadVectorStyle(t, "testdata/highway.qml")

	renderer, ok := vs.Renderer.(*CategorizedRenderer)
	require.True(t, ok)
	assert.Equal(t, "HIGHWAY", renderer.Attribute.Source)

	type testCase struct {
		name       string
		attributes map[string]interface{}
		expected   []string
	}

	testCases := []testCase{
		{"string value", map[string]interface{}{"HIGHWAY": "1"}, []string{"0"}},
		{"numeric value", map[string]interface{}{"HIGHWAY": int64(0)}, []string{"1"}},
		{"fallback category not rendered", map[string]interface{}{"HIGHWAY": "5"}, []string{}},
		{"missing attribute", map[string]interface{}{}, []string{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			symbols := renderer.SymbolsForFeature(FeatureContext{Attributes: tc.attributes})
			assert.Equal(t, tc.expected, symbolNames(symbols))
		})
	}

	items := renderer.LegendItems()
	require.Len(t, items, 3)
	assert.Equal(t, "Highway", items[0].Label)
	assert.Equal(t, "Other road", items[1].Label)
}

func TestGraduatedRenderer(t *testing.T) {
	vs := loadVectorStyle(t, "testdata/contour-rgb.qml")

	renderer, ok := vs.Renderer.(*GraduatedRenderer)
	require.True(t, ok)

	assert.Equal(t, []string{"0"}, symbolNames(renderer.SymbolsForFeature(FeatureContext{Attributes: map[string]interface{}{"level": 250}})))
	assert.Equal(t, []string{"0"}, symbolNames(renderer.SymbolsForFeature(FeatureContext{Attributes: map[string]interface{}{"level": 500}})))
	assert.Equal(t, []string{"1"}, symbolNames(renderer.SymbolsForFeature(FeatureContext{Attributes: map[string]interface{}{"level": "750"}})))
	assert.Empty(t, renderer.SymbolsForFeature(FeatureContext{Attributes: map[string]interface{}{"level": 5000}}))
	assert.Empty(t, renderer.SymbolsForFeature(FeatureContext{Attributes: map[string]interface{}{}}))
}

func TestRuleBasedRenderer(t *testing.T) {
	vs := loadVectorStyle(t, "testdata/osm-highway.qml")

	renderer, ok := vs.Renderer.(*RuleBasedRenderer)
	require.True(t, ok)

	type testCase struct {
		name             string
		highway          string
		scaleDenominator float64
		expected         []string
	}

	testCases := []testCase{
		{"major road", "trunk", 0, []string{"0"}},
		{"residential in scale", "residential", 25000, []string{"1"}},
		{"residential out of scale falls to else", "residential", 250000, []string{"2"}},
		{"else rule", "footway", 0, []string{"2"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			symbols := renderer.SymbolsForFeature(FeatureContext{
				Attributes:       map[string]interface{}{"HIGHWAY": tc.highway},
				ScaleDenominator: tc.scaleDenominator,
			})
			assert.Equal(t, tc.expected, symbolNames(symbols))
		})
	}

	assert.Equal(t, 0.9, vs.Opacity)
	assert.Len(t, renderer.LegendItems(), 3)
}

func TestRule_nestedRules(t *testing.T) {
	parent, err := ParseExpression(`"kind" = 'road'`)
	require.NoError(t, err)
	child, err := ParseExpression(`"lanes" > 2`)
	require.NoError(t, err)

	roadSymbol := &Symbol{Name: "road"}
	wideSymbol := &Symbol{Name: "wide"}
	narrowSymbol := &Symbol{Name: "narrow"}

	renderer := &RuleBasedRenderer{&Rule{Active: true, Children: []*Rule{
		{Active: true, Filter: parent, Symbol: roadSymbol, Children: []*Rule{
			{Active: true, Filter: child, Symbol: wideSymbol},
			{Active: true, IsElse: true, Symbol: narrowSymbol},
		}},
		{Active: false, Symbol: &Symbol{Name: "inactive"}},
	}}}

	assert.Equal(t, []string{"road", "wide"}, symbolNames(renderer.SymbolsForFeature(FeatureContext{
		Attributes: map[string]interface{}{"kind": "road", "lanes": 4},
	})))
	assert.Equal(t, []string{"road", "narrow"}, symbolNames(renderer.SymbolsForFeature(FeatureContext{
		Attributes: map[string]interface{}{"kind": "road", "lanes": 1},
	})))
	assert.Empty(t, renderer.SymbolsForFeature(FeatureContext{
		Attributes: map[string]interface{}{"kind": "river"},
	}))
}

func TestGeometryDefaultRenderer(t *testing.T) {
	renderer := NewGeometryDefaultRenderer(color.NRGBA{10, 20, 30, 255})

	type testCase struct {
		geometryType headless.GeometryType
		symbolType   SymbolType
		class        string
	}

	for _, tc := range []testCase{
		{headless.GeometryTypePoint, SymbolTypeMarker, SymbolLayerSimpleMarker},
		{headless.GeometryTypeLine, SymbolTypeLine, SymbolLayerSimpleLine},
		{headless.GeometryTypePolygon, SymbolTypeFill, SymbolLayerSimpleFill},
	} {
		t.Run(tc.geometryType.String(), func(t *testing.T) {
			symbols := renderer.SymbolsForFeature(FeatureContext{GeometryType: tc.geometryType})
			require.Len(t, symbols, 1)
			assert.Equal(t, tc.symbolType, symbols[0].Type)
			require.Len(t, symbols[0].Layers, 1)
			assert.Equal(t, tc.class, symbols[0].Layers[0].Class)
		})
	}

	assert.Empty(t, renderer.SymbolsForFeature(FeatureContext{GeometryType: headless.GeometryTypeNull}))
}

func TestLabeling(t *testing.T) {
	t.Run("simple labeling with expression and scale limits", func(t *testing.T) {
		vs := loadVectorStyle(t, "testdata/osm-highway.qml")
		require.NotNil(t, vs.Labeling)

		feature := FeatureContext{
			Attributes:       map[string]interface{}{"NAME": "Hauptstraße", "NAME_EN": nil},
			ScaleDenominator: 10000,
		}
		settings := vs.Labeling.SettingsForFeature(feature)
		require.Len(t, settings, 1)

		text, ok := settings[0].Text(feature.Attributes)
		require.True(t, ok)
		assert.Equal(t, "Hauptstraße", text)
		assert.Equal(t, 9.0, settings[0].FontSize)
		assert.Equal(t, UnitPoint, settings[0].FontSizeUnit)
		assert.True(t, settings[0].BufferDraw)
		assert.Equal(t, 0.8, settings[0].BufferOpacity)

		feature.ScaleDenominator = 100000
		assert.Empty(t, vs.Labeling.SettingsForFeature(feature))

		feature.ScaleDenominator = 500
		assert.Empty(t, vs.Labeling.SettingsForFeature(feature))
	})

	t.Run("rule based labeling", func(t *testing.T) {
		vs := loadVectorStyle(t, "testdata/rule-based-labeling.qml")
		require.NotNil(t, vs.Labeling)

		large := map[string]interface{}{"a": 20, "b": "big", "c": "x"}
		settings := vs.Labeling.SettingsForFeature(FeatureContext{Attributes: large})
		require.Len(t, settings, 1)
		text, ok := settings[0].Text(large)
		require.True(t, ok)
		assert.Equal(t, "big", text)

		small := map[string]interface{}{"a": 2, "b": "big", "c": "little"}
		settings = vs.Labeling.SettingsForFeature(FeatureContext{Attributes: small})
		require.Len(t, settings, 1)
		text, ok = settings[0].Text(small)
		require.True(t, ok)
		assert.Equal(t, "LITTLE", text)

		_, ok = settings[0].Text(map[string]interface{}{"c": nil})
		assert.False(t, ok)
	})
}

func TestDataDefinedProperties(t *testing.T) {
	vs := loadVectorStyle(t, "testdata/data-defined.qml")

	symbols := vs.Renderer.SymbolsForFeature(FeatureContext{})
	require.Len(t, symbols, 1)
	layer := symbols[0].Layers[0]

	assert.Equal(t, 5.0, layer.DataDefinedFloat("size", map[string]interface{}{"size": 5}, 2))
	assert.Equal(t, 2.0, layer.DataDefinedFloat("size", map[string]interface{}{}, 2))

	static := color.NRGBA{0, 128, 0, 255}
	assert.Equal(t, static, layer.DataDefinedColor("fillColor", map[string]interface{}{"colour": "255,0,0"}, static))
}

func TestSymbolLayer_DashPattern(t *testing.T) {
	type testCase struct {
		name            string
		props           map[string]string
		width           float64
		expectedPattern []float64
		expectedUnit    Unit
	}

	testCases := []testCase{
		{"solid", map[string]string{"line_style": "solid"}, 1, nil, UnitMillimeter},
		{"dash", map[string]string{"line_style": "dash", "line_width_unit": "Pixel"}, 2, []float64{8, 4}, UnitPixel},
		{"dot hairline", map[string]string{"line_style": "dot"}, 0, []float64{1, 2}, UnitPixel},
		{"custom dash wins", map[string]string{"line_style": "dash", "use_custom_dash": "1", "customdash": "5;2", "customdash_unit": "Point"}, 1, []float64{5, 2}, UnitPoint},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			layer := &SymbolLayer{Class: SymbolLayerSimpleLine, Props: tc.props}
			pattern, unit := layer.DashPattern("line_", tc.width)
			assert.Equal(t, tc.expectedPattern, pattern)
			assert.Equal(t, tc.expectedUnit, unit)
		})
	}
}
