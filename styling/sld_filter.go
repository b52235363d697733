package styling

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/jamesrr39/goutil/errorsx"
)

var sldComparisonOperators = map[string]string{
	"PropertyIsEqualTo":              "=",
	"PropertyIsNotEqualTo":           "<>",
	"PropertyIsLessThan":             "<",
	"PropertyIsGreaterThan":          ">",
	"PropertyIsLessThanOrEqualTo":    "<=",
	"PropertyIsGreaterThanOrEqualTo": ">=",
}

var sldArithmeticOperators = map[string]string{
	"Add": "+",
	"Sub": "-",
	"Mul": "*",
	"Div": "/",
}

func quoteColumn(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// filterToExpression converts the content of an <ogc:Filter> to an expression string
func filterToExpression(el *etree.Element) (string, errorsx.Error) {
	tag := el.Tag

	if operator, ok := sldComparisonOperators[tag]; ok {
		operands, err := filterOperands(el, 2)
		if err != nil {
			return "", err
		}
		if tag == "PropertyIsEqualTo" && !parseBoolAttr(el, "matchCase", true) {
			return "lower(" + operands[0] + ") = lower(" + operands[1] + ")", nil
		}
		return operands[0] + " " + operator + " " + operands[1], nil
	}

	switch tag {
	case "And", "Or":
		var parts []string
		for _, child := range el.ChildElements() {
			part, err := filterToExpression(child)
			if err != nil {
				return "", err
			}
			parts = append(parts, "("+part+")")
		}
		if len(parts) == 0 {
			return "", errorsx.Errorf("empty %s filter", tag)
		}
		return strings.Join(parts, " "+strings.ToUpper(tag)+" "), nil
	case "Not":
		children := el.ChildElements()
		if len(children) != 1 {
			return "", errorsx.Errorf("Not filter needs exactly one child, found %d", len(children))
		}
		part, err := filterToExpression(children[0])
		if err != nil {
			return "", err
		}
		return "NOT (" + part + ")", nil
	case "PropertyIsNull":
		operands, err := filterOperands(el, 1)
		if err != nil {
			return "", err
		}
		return operands[0] + " IS NULL", nil
	case "PropertyIsBetween":
		operands, err := filterOperands(el, 1)
		if err != nil {
			return "", err
		}
		lower, err := boundaryOperand(el, "LowerBoundary")
		if err != nil {
			return "", err
		}
		upper, err := boundaryOperand(el, "UpperBoundary")
		if err != nil {
			return "", err
		}
		return operands[0] + " >= " + lower + " AND " + operands[0] + " <= " + upper, nil
	case "PropertyIsLike":
		return likeFilterToExpression(el)
	}

	return "", errorsx.Errorf("unsupported filter %q", tag)
}

func boundaryOperand(el *etree.Element, tag string) (string, errorsx.Error) {
	boundary := el.SelectElement(tag)
	if boundary == nil {
		return "", errorsx.Errorf("PropertyIsBetween without %s", tag)
	}
	operands, err := filterOperands(boundary, 1)
	if err != nil {
		return "", err
	}
	return operands[0], nil
}

func likeFilterToExpression(el *etree.Element) (string, errorsx.Error) {
	property := el.SelectElement("PropertyName")
	literal := el.SelectElement("Literal")
	if property == nil || literal == nil {
		return "", errorsx.Errorf("PropertyIsLike needs a PropertyName and a Literal")
	}

	wildCard := el.SelectAttrValue("wildCard", "%")
	singleChar := el.SelectAttrValue("singleChar", "_")
	escapeChar := el.SelectAttrValue("escapeChar", "\\")

	var sb strings.Builder
	pattern := []rune(literal.Text())
	for i := 0; i < len(pattern); i++ {
		char := string(pattern[i])
		switch {
		case char == escapeChar && i+1 < len(pattern):
			i++
			sb.WriteRune(pattern[i])
		case char == wildCard:
			sb.WriteString("%")
		case char == singleChar:
			sb.WriteString("_")
		default:
			sb.WriteString(char)
		}
	}

	operator := " LIKE "
	if !parseBoolAttr(el, "matchCase", true) {
		operator = " ILIKE "
	}

	return quoteColumn(strings.TrimSpace(property.Text())) + operator + quoteString(sb.String()), nil
}

func filterOperands(el *etree.Element, count int) ([]string, errorsx.Error) {
	children := el.ChildElements()
	if len(children) < count {
		return nil, errorsx.Errorf("%s needs %d operands, found %d", el.Tag, count, len(children))
	}

	var operands []string
	for _, child := range children[:count] {
		operand, err := filterOperand(child)
		if err != nil {
			return nil, err
		}
		operands = append(operands, operand)
	}
	return operands, nil
}

func filterOperand(el *etree.Element) (string, errorsx.Error) {
	switch el.Tag {
	case "PropertyName":
		return quoteColumn(strings.TrimSpace(el.Text())), nil
	case "Literal":
		text := strings.TrimSpace(el.Text())
		if _, err := strconv.ParseFloat(text, 64); err == nil {
			return text, nil
		}
		return quoteString(el.Text()), nil
	case "Function":
		name := el.SelectAttrValue("name", "")
		if _, ok := functions[strings.ToLower(name)]; !ok {
			return "", errorsx.Errorf("unsupported filter function %q", name)
		}
		var args []string
		for _, child := range el.ChildElements() {
			arg, err := filterOperand(child)
			if err != nil {
				return "", err
			}
			args = append(args, arg)
		}
		return strings.ToLower(name) + "(" + strings.Join(args, ", ") + ")", nil
	}

	if operator, ok := sldArithmeticOperators[el.Tag]; ok {
		operands, err := filterOperands(el, 2)
		if err != nil {
			return "", err
		}
		return "(" + operands[0] + " " + operator + " " + operands[1] + ")", nil
	}

	return "", errorsx.Errorf("unsupported filter operand %q", el.Tag)
}

var comparisonFilterTags = map[string]string{
	"=":  "PropertyIsEqualTo",
	"<>": "PropertyIsNotEqualTo",
	"!=": "PropertyIsNotEqualTo",
	"<":  "PropertyIsLessThan",
	">":  "PropertyIsGreaterThan",
	"<=": "PropertyIsLessThanOrEqualTo",
	">=": "PropertyIsGreaterThanOrEqualTo",
}

var arithmeticFilterTags = map[string]string{
	"+": "Add",
	"-": "Sub",
	"*": "Mul",
	"/": "Div",
}

// writeFilter writes expression as OGC filter elements under parent
func writeFilter(parent *etree.Element, n node) errorsx.Error {
	switch n := n.(type) {
	case *comparisonNode:
		el := parent.CreateElement("ogc:" + comparisonFilterTags[n.operator])
		err := writeFilterOperand(el, n.left)
		if err != nil {
			return err
		}
		return writeFilterOperand(el, n.right)
	case *logicalNode:
		tag := "ogc:Or"
		if n.operator == logicalOperatorAnd {
			tag = "ogc:And"
		}
		el := parent.CreateElement(tag)
		err := writeFilter(el, n.left)
		if err != nil {
			return err
		}
		return writeFilter(el, n.right)
	case *notNode:
		return writeFilter(parent.CreateElement("ogc:Not"), n.operand)
	case *isNullNode:
		if n.negate {
			parent = parent.CreateElement("ogc:Not")
		}
		return writeFilterOperand(parent.CreateElement("ogc:PropertyIsNull"), n.operand)
	case *inNode:
		if n.negate {
			parent = parent.CreateElement("ogc:Not")
		}
		if len(n.list) > 1 {
			parent = parent.CreateElement("ogc:Or")
		}
		for _, item := range n.list {
			err := writeFilter(parent, &comparisonNode{"=", n.operand, item})
			if err != nil {
				return err
			}
		}
		return nil
	case *likeNode:
		pattern, ok := n.pattern.(*literalNode)
		if !ok {
			return errorsx.Errorf("LIKE patterns must be literals to be written as SLD")
		}
		if n.negate {
			parent = parent.CreateElement("ogc:Not")
		}
		el := parent.CreateElement("ogc:PropertyIsLike")
		el.CreateAttr("wildCard", "%")
		el.CreateAttr("singleChar", "_")
		el.CreateAttr("escapeChar", "\\")
		if n.caseInsensitive {
			el.CreateAttr("matchCase", "false")
		}
		err := writeFilterOperand(el, n.operand)
		if err != nil {
			return err
		}
		el.CreateElement("ogc:Literal").SetText(toString(pattern.value))
		return nil
	}

	return errorsx.Errorf("expression can't be written as an SLD filter")
}

func writeFilterOperand(parent *etree.Element, n node) errorsx.Error {
	switch n := n.(type) {
	case *columnNode:
		parent.CreateElement("ogc:PropertyName").SetText(n.name)
		return nil
	case *literalNode:
		parent.CreateElement("ogc:Literal").SetText(toString(n.value))
		return nil
	case *arithmeticNode:
		tag, ok := arithmeticFilterTags[n.operator]
		if !ok {
			return errorsx.Errorf("operator %q can't be written as SLD", n.operator)
		}
		el := parent.CreateElement("ogc:" + tag)
		err := writeFilterOperand(el, n.left)
		if err != nil {
			return err
		}
		return writeFilterOperand(el, n.right)
	case *functionNode:
		el := parent.CreateElement("ogc:Function")
		el.CreateAttr("name", n.name)
		for _, arg := range n.args {
			err := writeFilterOperand(el, arg)
			if err != nil {
				return err
			}
		}
		return nil
	}

	return errorsx.Errorf("expression can't be written as an SLD filter operand")
}
