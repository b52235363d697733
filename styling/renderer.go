package styling

import (
	"image/color"

	"github.com/jamesrr39/ownmap-headless/headless"
)

// FeatureContext is what a renderer knows about a feature when choosing its symbols
type FeatureContext struct {
	Attributes   map[string]interface{}
	GeometryType headless.GeometryType
	// ScaleDenominator of the map being rendered. 0 when unknown.
	ScaleDenominator float64
}

type Renderer interface {
	// SymbolsForFeature returns the symbols to draw the feature with, in drawing order
	SymbolsForFeature(feature FeatureContext) []*Symbol
	LegendItems() []LegendItem
	addColumns(columns map[string]struct{})
}

type LegendItem struct {
	Label  string
	Symbol *Symbol
}

// renderer types, as found in the "type" attribute of "renderer-v2"
const (
	RendererTypeSingleSymbol = "singleSymbol"
	RendererTypeCategorized  = "categorizedSymbol"
	RendererTypeGraduated    = "graduatedSymbol"
	RendererTypeRuleBased    = "RuleRenderer"
	RendererTypeNull         = "nullSymbol"
)

type SingleSymbolRenderer struct {
	Symbol *Symbol
}

func (r *SingleSymbolRenderer) SymbolsForFeature(FeatureContext) []*Symbol {
	return []*Symbol{r.Symbol}
}

func (r *SingleSymbolRenderer) LegendItems() []LegendItem {
	return []LegendItem{{Symbol: r.Symbol}}
}

func (r *SingleSymbolRenderer) addColumns(columns map[string]struct{}) {
	r.Symbol.addColumns(columns)
}

// ClassificationAttribute is the field, or the expression, that categorized and graduated renderers classify on
type ClassificationAttribute struct {
	Source     string
	expression *Expression
}

func newClassificationAttribute(source string) ClassificationAttribute {
	expression, err := ParseExpression(source)
	if err != nil {
		// field names that aren't valid expressions, e.g. with spaces
		return ClassificationAttribute{source, nil}
	}
	return ClassificationAttribute{source, expression}
}

func (a ClassificationAttribute) value(attributes map[string]interface{}) interface{} {
	if a.expression == nil {
		return normaliseValue(attributes[a.Source])
	}
	return a.expression.Evaluate(attributes)
}

func (a ClassificationAttribute) addColumns(columns map[string]struct{}) {
	if a.Source == "" {
		return
	}
	if a.expression == nil {
		columns[a.Source] = struct{}{}
		return
	}
	a.expression.root.addColumns(columns)
}

type Category struct {
	// Value is the attribute value matched. An empty value matches the features no other category matches.
	Value  string
	Label  string
	Symbol *Symbol
	Render bool
}

type CategorizedRenderer struct {
	Attribute  ClassificationAttribute
	Categories []*Category
}

func (r *CategorizedRenderer) SymbolsForFeature(feature FeatureContext) []*Symbol {
	value := r.Attribute.value(feature.Attributes)

	var fallback *Category
	for _, category := range r.Categories {
		if category.Value == "" {
			if fallback == nil {
				fallback = category
			}
			continue
		}
		if value != nil && compareValues(value, category.Value) == 0 {
			if !category.Render {
				return nil
			}
			return []*Symbol{category.Symbol}
		}
	}

	if fallback != nil && fallback.Render {
		return []*Symbol{fallback.Symbol}
	}

	return nil
}

func (r *CategorizedRenderer) LegendItems() []LegendItem {
	var items []LegendItem
	for _, category := range r.Categories {
		items = append(items, LegendItem{category.Label, category.Symbol})
	}
	return items
}

func (r *CategorizedRenderer) addColumns(columns map[string]struct{}) {
	r.Attribute.addColumns(columns)
	for _, category := range r.Categories {
		category.Symbol.addColumns(columns)
	}
}

type Range struct {
	Lower  float64
	Upper  float64
	Label  string
	Symbol *Symbol
	Render bool
}

type GraduatedRenderer struct {
	Attribute ClassificationAttribute
	Ranges    []*Range
}

func (r *GraduatedRenderer) SymbolsForFeature(feature FeatureContext) []*Symbol {
	value := r.Attribute.value(feature.Attributes)
	if value == nil {
		return nil
	}
	number, ok := toNumber(value)
	if !ok {
		return nil
	}

	for _, rng := range r.Ranges {
		if number >= rng.Lower && number <= rng.Upper {
			if !rng.Render {
				return nil
			}
			return []*Symbol{rng.Symbol}
		}
	}

	return nil
}

func (r *GraduatedRenderer) LegendItems() []LegendItem {
	var items []LegendItem
	for _, rng := range r.Ranges {
		items = append(items, LegendItem{rng.Label, rng.Symbol})
	}
	return items
}

func (r *GraduatedRenderer) addColumns(columns map[string]struct{}) {
	r.Attribute.addColumns(columns)
	for _, rng := range r.Ranges {
		rng.Symbol.addColumns(columns)
	}
}

type Rule struct {
	Label  string
	Filter *Expression
	// IsElse rules match the features none of their sibling rules match
	IsElse              bool
	Active              bool
	Symbol              *Symbol
	MinScaleDenominator float64
	MaxScaleDenominator float64
	Children            []*Rule
}

func (rule *Rule) isInScale(scaleDenominator float64) bool {
	if scaleDenominator <= 0 {
		return true
	}
	if rule.MinScaleDenominator > 0 && scaleDenominator < rule.MinScaleDenominator {
		return false
	}
	if rule.MaxScaleDenominator > 0 && scaleDenominator >= rule.MaxScaleDenominator {
		return false
	}
	return true
}

func (rule *Rule) matches(feature FeatureContext) bool {
	if !rule.Active || !rule.isInScale(feature.ScaleDenominator) {
		return false
	}
	return rule.Filter == nil || rule.Filter.Matches(feature.Attributes)
}

// collectSymbols adds the symbols of the matching children of rule, depth first
func (rule *Rule) collectSymbols(feature FeatureContext, symbols []*Symbol) []*Symbol {
	matched := false
	for _, child := range rule.Children {
		if child.IsElse {
			continue
		}
		if !child.matches(feature) {
			continue
		}
		matched = true
		if child.Symbol != nil {
			symbols = append(symbols, child.Symbol)
		}
		symbols = child.collectSymbols(feature, symbols)
	}

	if matched {
		return symbols
	}

	for _, child := range rule.Children {
		if !child.IsElse || !child.Active || !child.isInScale(feature.ScaleDenominator) {
			continue
		}
		if child.Symbol != nil {
			symbols = append(symbols, child.Symbol)
		}
		symbols = child.collectSymbols(feature, symbols)
	}

	return symbols
}

func (rule *Rule) addColumns(columns map[string]struct{}) {
	if rule.Filter != nil {
		rule.Filter.root.addColumns(columns)
	}
	rule.Symbol.addColumns(columns)
	for _, child := range rule.Children {
		child.addColumns(columns)
	}
}

func (rule *Rule) legendItems(items []LegendItem) []LegendItem {
	for _, child := range rule.Children {
		if child.Symbol != nil {
			items = append(items, LegendItem{child.Label, child.Symbol})
		}
		items = child.legendItems(items)
	}
	return items
}

type RuleBasedRenderer struct {
	Root *Rule
}

func (r *RuleBasedRenderer) SymbolsForFeature(feature FeatureContext) []*Symbol {
	return r.Root.collectSymbols(feature, nil)
}

func (r *RuleBasedRenderer) LegendItems() []LegendItem {
	return r.Root.legendItems(nil)
}

func (r *RuleBasedRenderer) addColumns(columns map[string]struct{}) {
	r.Root.addColumns(columns)
}

type NullRenderer struct{}

func (r *NullRenderer) SymbolsForFeature(FeatureContext) []*Symbol {
	return nil
}

func (r *NullRenderer) LegendItems() []LegendItem {
	return nil
}

func (r *NullRenderer) addColumns(map[string]struct{}) {}

// GeometryDefaultRenderer draws every feature in one colour, picking the kind of symbol from the geometry of the feature.
// It is used by default styles created without a geometry type.
type GeometryDefaultRenderer struct {
	marker *Symbol
	line   *Symbol
	fill   *Symbol
}

func NewGeometryDefaultRenderer(c color.NRGBA) *GeometryDefaultRenderer {
	return &GeometryDefaultRenderer{
		marker: defaultSymbol(c, headless.GeometryTypePoint),
		line:   defaultSymbol(c, headless.GeometryTypeLine),
		fill:   defaultSymbol(c, headless.GeometryTypePolygon),
	}
}

func (r *GeometryDefaultRenderer) SymbolsForFeature(feature FeatureContext) []*Symbol {
	switch feature.GeometryType {
	case headless.GeometryTypePoint:
		return []*Symbol{r.marker}
	case headless.GeometryTypeLine:
		return []*Symbol{r.line}
	case headless.GeometryTypePolygon:
		return []*Symbol{r.fill}
	default:
		return nil
	}
}

func (r *GeometryDefaultRenderer) LegendItems() []LegendItem {
	return nil
}

func (r *GeometryDefaultRenderer) addColumns(map[string]struct{}) {}
