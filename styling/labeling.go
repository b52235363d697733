package styling

import (
	"image/color"
	"strings"

	"github.com/beevik/etree"
	"github.com/jamesrr39/goutil/errorsx"
)

const (
	LabelingTypeSimple    = "simple"
	LabelingTypeRuleBased = "rule-based"
)

// LabelSettings describes how the labels of one labeling rule are drawn
type LabelSettings struct {
	FieldName    string
	IsExpression bool
	expression   *Expression

	FontFamily   string
	FontSize     float64
	FontSizeUnit Unit
	TextColor    color.NRGBA
	TextOpacity  float64

	BufferDraw     bool
	BufferSize     float64
	BufferSizeUnit Unit
	BufferColor    color.NRGBA
	BufferOpacity  float64

	DrawLabels          bool
	MinScaleDenominator float64
	MaxScaleDenominator float64
	scaleVisibility     bool

	DataDefined map[string]*Property
}

// Text is the label of the feature. ok is false when the feature gets no label.
func (ls *LabelSettings) Text(attributes map[string]interface{}) (string, bool) {
	var value interface{}
	if ls.expression != nil {
		value = ls.expression.Evaluate(attributes)
	} else {
		value = normaliseValue(attributes[ls.FieldName])
	}

	if value == nil {
		return "", false
	}

	text := toString(value)
	return text, text != ""
}

func (ls *LabelSettings) isInScale(scaleDenominator float64) bool {
	if !ls.scaleVisibility || scaleDenominator <= 0 {
		return true
	}
	// QGIS stores label scale limits as "scaleMin" (most zoomed out) and "scaleMax" (most zoomed in)
	if ls.MinScaleDenominator > 0 && scaleDenominator > ls.MinScaleDenominator {
		return false
	}
	if ls.MaxScaleDenominator > 0 && scaleDenominator < ls.MaxScaleDenominator {
		return false
	}
	return true
}

func (ls *LabelSettings) addColumns(columns map[string]struct{}) {
	if ls.DrawLabels {
		if ls.expression != nil {
			ls.expression.root.addColumns(columns)
		} else if ls.FieldName != "" {
			columns[ls.FieldName] = struct{}{}
		}
	}

	for _, property := range ls.DataDefined {
		property.addColumns(columns)
	}
}

type LabelRule struct {
	Description string
	Filter      *Expression
	IsElse      bool
	Active      bool
	// Settings is nil for rules that only group their children
	Settings *LabelSettings
	Children []*LabelRule
}

type Labeling struct {
	Type    string
	Enabled bool
	Root    *LabelRule
}

// SettingsForFeature returns the label settings matching the feature, in drawing order
func (l *Labeling) SettingsForFeature(feature FeatureContext) []*LabelSettings {
	if !l.Enabled {
		return nil
	}
	return l.Root.collectSettings(feature, nil)
}

func (r *LabelRule) collectSettings(feature FeatureContext, settings []*LabelSettings) []*LabelSettings {
	matched := false
	for _, child := range r.Children {
		if child.IsElse || !child.Active {
			continue
		}
		if child.Filter != nil && !child.Filter.Matches(feature.Attributes) {
			continue
		}
		matched = true
		settings = child.appendSettings(feature, settings)
	}

	if matched {
		return settings
	}

	for _, child := range r.Children {
		if child.IsElse && child.Active {
			settings = child.appendSettings(feature, settings)
		}
	}

	return settings
}

func (r *LabelRule) appendSettings(feature FeatureContext, settings []*LabelSettings) []*LabelSettings {
	if r.Settings != nil && r.Settings.DrawLabels && r.Settings.isInScale(feature.ScaleDenominator) {
		settings = append(settings, r.Settings)
	}
	return r.collectSettings(feature, settings)
}

func (l *Labeling) addColumns(columns map[string]struct{}) {
	if !l.Enabled {
		return
	}
	l.Root.addColumns(columns)
}

func (r *LabelRule) addColumns(columns map[string]struct{}) {
	if r.Filter != nil {
		r.Filter.root.addColumns(columns)
	}
	if r.Settings != nil {
		r.Settings.addColumns(columns)
	}
	for _, child := range r.Children {
		child.addColumns(columns)
	}
}

// parseLabeling reads a <labeling> element. Unknown labeling types give nil.
func parseLabeling(el *etree.Element) (*Labeling, errorsx.Error) {
	labelingType := el.SelectAttrValue("type", "")

	switch labelingType {
	case LabelingTypeSimple:
		settingsElement := el.SelectElement("settings")
		if settingsElement == nil {
			return nil, errorsx.Errorf("simple labeling without settings")
		}
		settings, err := parseLabelSettings(settingsElement)
		if err != nil {
			return nil, err
		}
		root := &LabelRule{
			Active:   true,
			Children: []*LabelRule{{Active: true, Settings: settings}},
		}
		return &Labeling{Type: labelingType, Enabled: true, Root: root}, nil
	case LabelingTypeRuleBased:
		root := &LabelRule{Active: true}
		rulesElement := el.SelectElement("rules")
		if rulesElement != nil {
			children, err := parseLabelRules(rulesElement)
			if err != nil {
				return nil, err
			}
			root.Children = children
		}
		return &Labeling{Type: labelingType, Enabled: true, Root: root}, nil
	default:
		return nil, nil
	}
}

func parseLabelRules(parent *etree.Element) ([]*LabelRule, errorsx.Error) {
	var rules []*LabelRule
	for _, ruleElement := range parent.SelectElements("rule") {
		rule := &LabelRule{
			Description: ruleElement.SelectAttrValue("description", ""),
			Active:      parseBoolAttr(ruleElement, "active", true),
		}

		filter := strings.TrimSpace(ruleElement.SelectAttrValue("filter", ""))
		switch {
		case strings.EqualFold(filter, "ELSE"):
			rule.IsElse = true
		case filter != "":
			expression, err := ParseExpression(filter)
			if err != nil {
				return nil, err
			}
			rule.Filter = expression
		}

		settingsElement := ruleElement.SelectElement("settings")
		if settingsElement != nil {
			settings, err := parseLabelSettings(settingsElement)
			if err != nil {
				return nil, err
			}
			rule.Settings = settings
		}

		children, err := parseLabelRules(ruleElement)
		if err != nil {
			return nil, err
		}
		rule.Children = children

		rules = append(rules, rule)
	}

	return rules, nil
}

func parseLabelSettings(el *etree.Element) (*LabelSettings, errorsx.Error) {
	settings := &LabelSettings{
		FontSize:       10,
		FontSizeUnit:   defaultLabelFontSizeUnit,
		TextColor:      color.NRGBA{0, 0, 0, 255},
		TextOpacity:    1,
		BufferSize:     1,
		BufferSizeUnit: UnitMillimeter,
		BufferColor:    color.NRGBA{255, 255, 255, 255},
		BufferOpacity:  1,
		DrawLabels:     true,
		DataDefined:    make(map[string]*Property),
	}

	textStyle := el.SelectElement("text-style")
	if textStyle != nil {
		settings.FieldName = textStyle.SelectAttrValue("fieldName", "")
		settings.IsExpression = parseBoolAttr(textStyle, "isExpression", false)
		settings.FontFamily = textStyle.SelectAttrValue("fontFamily", "")
		settings.FontSize = parseFloatAttr(textStyle, "fontSize", settings.FontSize)
		settings.FontSizeUnit = ParseUnit(textStyle.SelectAttrValue("fontSizeUnit", ""), defaultLabelFontSizeUnit)
		settings.TextOpacity = parseFloatAttr(textStyle, "textOpacity", 1)
		if c, err := ParseColor(textStyle.SelectAttrValue("textColor", "")); err == nil {
			settings.TextColor = c
		}

		buffer := textStyle.SelectElement("text-buffer")
		if buffer != nil {
			settings.BufferDraw = parseBoolAttr(buffer, "bufferDraw", false)
			settings.BufferSize = parseFloatAttr(buffer, "bufferSize", settings.BufferSize)
			settings.BufferSizeUnit = ParseUnit(buffer.SelectAttrValue("bufferSizeUnits", ""), UnitMillimeter)
			settings.BufferOpacity = parseFloatAttr(buffer, "bufferOpacity", 1)
			if c, err := ParseColor(buffer.SelectAttrValue("bufferColor", "")); err == nil {
				settings.BufferColor = c
			}
		}
	}

	if settings.IsExpression && strings.TrimSpace(settings.FieldName) != "" {
		expression, err := ParseExpression(settings.FieldName)
		if err != nil {
			return nil, errorsx.Wrap(err, "label", settings.FieldName)
		}
		settings.expression = expression
	}

	rendering := el.SelectElement("rendering")
	if rendering != nil {
		settings.DrawLabels = parseBoolAttr(rendering, "drawLabels", true)
		settings.scaleVisibility = parseBoolAttr(rendering, "scaleVisibility", false)
		settings.MinScaleDenominator = parseFloatAttr(rendering, "scaleMin", 0)
		settings.MaxScaleDenominator = parseFloatAttr(rendering, "scaleMax", 0)
	}

	ddElement := el.SelectElement(qmlLabelDataDefinedTag)
	if ddElement != nil {
		properties, err := parseDataDefinedProperties(ddElement)
		if err != nil {
			return nil, err
		}
		settings.DataDefined = properties
	}

	return settings, nil
}
