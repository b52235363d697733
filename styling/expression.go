package styling

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jamesrr39/goutil/errorsx"
)

// Expression is a parsed QGIS expression. The supported subset covers what filters, labels and
// data-defined properties of typical styles use: comparisons, AND/OR/NOT, IS [NOT] NULL, [NOT] IN,
// [I]LIKE, arithmetic, string concatenation and a few functions.
type Expression struct {
	source string
	root   node
}

type node interface {
	eval(attributes map[string]interface{}) interface{}
	addColumns(columns map[string]struct{})
}

func ParseExpression(source string) (*Expression, errorsx.Error) {
	tokens, err := tokenize(source)
	if err != nil {
		return nil, errorsx.Wrap(err, "expression", source)
	}

	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, errorsx.Wrap(err, "expression", source)
	}

	if p.peek().Type != tokenEOF {
		return nil, errorsx.Errorf("unexpected %q at position %d in expression %q", p.peek().Text, p.peek().Pos, source)
	}

	return &Expression{source, root}, nil
}

func (e *Expression) String() string {
	return e.source
}

func (e *Expression) Evaluate(attributes map[string]interface{}) interface{} {
	return e.root.eval(attributes)
}

// Matches evaluates the expression as a filter. NULL results don't match.
func (e *Expression) Matches(attributes map[string]interface{}) bool {
	return isTruthy(e.Evaluate(attributes))
}

// ReferencedColumns lists the attributes the expression reads, sorted
func (e *Expression) ReferencedColumns() []string {
	columns := make(map[string]struct{})
	e.root.addColumns(columns)
	return sortedKeys(columns)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := []string{}
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.Type != tokenEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(tokenType tokenType, description string) (token, errorsx.Error) {
	t := p.next()
	if t.Type != tokenType {
		return t, errorsx.Errorf("expected %s at position %d but found %q", description, t.Pos, t.Text)
	}
	return t, nil
}

func (p *parser) parseOr() (node, errorsx.Error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for isKeyword(p.peek(), "OR") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{logicalOperatorOr, left, right}
	}

	return left, nil
}

func (p *parser) parseAnd() (node, errorsx.Error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	for isKeyword(p.peek(), "AND") {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{logicalOperatorAnd, left, right}
	}

	return left, nil
}

func (p *parser) parseNot() (node, errorsx.Error) {
	if isKeyword(p.peek(), "NOT") {
		p.next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notNode{operand}, nil
	}

	return p.parseComparison()
}

func (p *parser) parseComparison() (node, errorsx.Error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	t := p.peek()
	switch {
	case t.Type == tokenOperator && isComparisonOperator(t.Text):
		p.next()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &comparisonNode{t.Text, left, right}, nil
	case isKeyword(t, "IS"):
		p.next()
		negate := false
		if isKeyword(p.peek(), "NOT") {
			p.next()
			negate = true
		}
		if isKeyword(p.peek(), "NULL") {
			p.next()
			return &isNullNode{left, negate}, nil
		}
		// "a IS b" is equality that also matches two NULLs
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &isNode{left, right, negate}, nil
	}

	negate := false
	if isKeyword(t, "NOT") {
		after := p.tokens[p.pos+1]
		if isKeyword(after, "IN") || isKeyword(after, "LIKE") || isKeyword(after, "ILIKE") {
			p.next()
			negate = true
			t = p.peek()
		}
	}

	switch {
	case isKeyword(t, "IN"):
		p.next()
		list, err := p.parseList()
		if err != nil {
			return nil, err
		}
		return &inNode{left, list, negate}, nil
	case isKeyword(t, "LIKE"), isKeyword(t, "ILIKE"):
		p.next()
		pattern, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &likeNode{left, pattern, isKeyword(t, "ILIKE"), negate}, nil
	}

	return left, nil
}

func isComparisonOperator(op string) bool {
	switch op {
	case "=", "<>", "!=", "<", ">", "<=", ">=":
		return true
	}
	return false
}

func (p *parser) parseList() ([]node, errorsx.Error) {
	_, err := p.expect(tokenOpenParen, "(")
	if err != nil {
		return nil, err
	}

	var list []node
	for {
		item, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		list = append(list, item)

		t := p.next()
		switch t.Type {
		case tokenComma:
			continue
		case tokenCloseParen:
			return list, nil
		default:
			return nil, errorsx.Errorf("expected , or ) at position %d but found %q", t.Pos, t.Text)
		}
	}
}

func (p *parser) parseAdditive() (node, errorsx.Error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}

	for {
		t := p.peek()
		if t.Type != tokenOperator || (t.Text != "+" && t.Text != "-" && t.Text != "||") {
			return left, nil
		}
		p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &arithmeticNode{t.Text, left, right}
	}
}

func (p *parser) parseMultiplicative() (node, errorsx.Error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		t := p.peek()
		if t.Type != tokenOperator || (t.Text != "*" && t.Text != "/" && t.Text != "%") {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &arithmeticNode{t.Text, left, right}
	}
}

func (p *parser) parseUnary() (node, errorsx.Error) {
	t := p.peek()
	if t.Type == tokenOperator && (t.Text == "-" || t.Text == "+") {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if t.Text == "+" {
			return operand, nil
		}
		return &arithmeticNode{"-", &literalNode{float64(0)}, operand}, nil
	}

	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, errorsx.Error) {
	t := p.next()
	switch t.Type {
	case tokenNumber:
		value, err := strconv.ParseFloat(t.Text, 64)
		if err != nil {
			return nil, errorsx.Wrap(err, "position", t.Pos)
		}
		return &literalNode{value}, nil
	case tokenString:
		return &literalNode{t.Text}, nil
	case tokenColumn:
		return &columnNode{t.Text}, nil
	case tokenOpenParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		_, err = p.expect(tokenCloseParen, ")")
		if err != nil {
			return nil, err
		}
		return inner, nil
	case tokenIdentifier:
		switch strings.ToUpper(t.Text) {
		case "NULL":
			return &literalNode{nil}, nil
		case "TRUE":
			return &literalNode{true}, nil
		case "FALSE":
			return &literalNode{false}, nil
		}

		if keywords[strings.ToUpper(t.Text)] {
			return nil, errorsx.Errorf("unexpected keyword %q at position %d", t.Text, t.Pos)
		}

		if p.peek().Type == tokenOpenParen {
			return p.parseFunctionCall(t)
		}

		if strings.HasPrefix(t.Text, "$") || strings.HasPrefix(t.Text, "@") {
			return &variableNode{t.Text}, nil
		}

		return &columnNode{t.Text}, nil
	}

	return nil, errorsx.Errorf("unexpected %q at position %d", t.Text, t.Pos)
}

func (p *parser) parseFunctionCall(name token) (node, errorsx.Error) {
	function, ok := functions[strings.ToLower(name.Text)]
	if !ok {
		return nil, errorsx.Errorf("unsupported function %q at position %d", name.Text, name.Pos)
	}

	p.next()

	var args []node
	if p.peek().Type == tokenCloseParen {
		p.next()
	} else {
		for {
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)

			t := p.next()
			if t.Type == tokenCloseParen {
				break
			}
			if t.Type != tokenComma {
				return nil, errorsx.Errorf("expected , or ) at position %d but found %q", t.Pos, t.Text)
			}
		}
	}

	if len(args) < function.minArgs || (function.maxArgs >= 0 && len(args) > function.maxArgs) {
		return nil, errorsx.Errorf("wrong number of arguments (%d) for function %q", len(args), name.Text)
	}

	return &functionNode{strings.ToLower(name.Text), function, args}, nil
}

type literalNode struct {
	value interface{}
}

func (n *literalNode) eval(map[string]interface{}) interface{} {
	return n.value
}

func (n *literalNode) addColumns(map[string]struct{}) {}

type columnNode struct {
	name string
}

func (n *columnNode) eval(attributes map[string]interface{}) interface{} {
	return normaliseValue(attributes[n.name])
}

func (n *columnNode) addColumns(columns map[string]struct{}) {
	columns[n.name] = struct{}{}
}

// variables ($id, @map_scale...) are not available to styles and evaluate to NULL
type variableNode struct {
	name string
}

func (n *variableNode) eval(map[string]interface{}) interface{} {
	return nil
}

func (n *variableNode) addColumns(map[string]struct{}) {}

type logicalOperator int

const (
	logicalOperatorOr logicalOperator = iota
	logicalOperatorAnd
)

type logicalNode struct {
	operator    logicalOperator
	left, right node
}

func (n *logicalNode) eval(attributes map[string]interface{}) interface{} {
	left := n.left.eval(attributes)
	right := n.right.eval(attributes)

	switch n.operator {
	case logicalOperatorAnd:
		if (left != nil && !isTruthy(left)) || (right != nil && !isTruthy(right)) {
			return false
		}
		if left == nil || right == nil {
			return nil
		}
		return true
	default:
		if isTruthy(left) || isTruthy(right) {
			return true
		}
		if left == nil || right == nil {
			return nil
		}
		return false
	}
}

func (n *logicalNode) addColumns(columns map[string]struct{}) {
	n.left.addColumns(columns)
	n.right.addColumns(columns)
}

type notNode struct {
	operand node
}

func (n *notNode) eval(attributes map[string]interface{}) interface{} {
	value := n.operand.eval(attributes)
	if value == nil {
		return nil
	}
	return !isTruthy(value)
}

func (n *notNode) addColumns(columns map[string]struct{}) {
	n.operand.addColumns(columns)
}

type comparisonNode struct {
	operator    string
	left, right node
}

func (n *comparisonNode) eval(attributes map[string]interface{}) interface{} {
	left := n.left.eval(attributes)
	right := n.right.eval(attributes)
	if left == nil || right == nil {
		return nil
	}

	cmp := compareValues(left, right)
	switch n.operator {
	case "=":
		return cmp == 0
	case "<>", "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case ">":
		return cmp > 0
	case "<=":
		return cmp <= 0
	default:
		return cmp >= 0
	}
}

func (n *comparisonNode) addColumns(columns map[string]struct{}) {
	n.left.addColumns(columns)
	n.right.addColumns(columns)
}

type isNullNode struct {
	operand node
	negate  bool
}

func (n *isNullNode) eval(attributes map[string]interface{}) interface{} {
	isNull := n.operand.eval(attributes) == nil
	return isNull != n.negate
}

func (n *isNullNode) addColumns(columns map[string]struct{}) {
	n.operand.addColumns(columns)
}

type isNode struct {
	left, right node
	negate      bool
}

func (n *isNode) eval(attributes map[string]interface{}) interface{} {
	left := n.left.eval(attributes)
	right := n.right.eval(attributes)

	var equal bool
	switch {
	case left == nil || right == nil:
		equal = left == nil && right == nil
	default:
		equal = compareValues(left, right) == 0
	}

	return equal != n.negate
}

func (n *isNode) addColumns(columns map[string]struct{}) {
	n.left.addColumns(columns)
	n.right.addColumns(columns)
}

type inNode struct {
	operand node
	list    []node
	negate  bool
}

func (n *inNode) eval(attributes map[string]interface{}) interface{} {
	value := n.operand.eval(attributes)
	if value == nil {
		return nil
	}

	for _, item := range n.list {
		itemValue := item.eval(attributes)
		if itemValue != nil && compareValues(value, itemValue) == 0 {
			return !n.negate
		}
	}

	return n.negate
}

func (n *inNode) addColumns(columns map[string]struct{}) {
	n.operand.addColumns(columns)
	for _, item := range n.list {
		item.addColumns(columns)
	}
}

type likeNode struct {
	operand         node
	pattern         node
	caseInsensitive bool
	negate          bool
}

func (n *likeNode) eval(attributes map[string]interface{}) interface{} {
	value := n.operand.eval(attributes)
	pattern := n.pattern.eval(attributes)
	if value == nil || pattern == nil {
		return nil
	}

	re, err := likePatternToRegexp(toString(pattern), n.caseInsensitive)
	if err != nil {
		return nil
	}

	return re.MatchString(toString(value)) != n.negate
}

func (n *likeNode) addColumns(columns map[string]struct{}) {
	n.operand.addColumns(columns)
	n.pattern.addColumns(columns)
}

func likePatternToRegexp(pattern string, caseInsensitive bool) (*regexp.Regexp, error) {
	var sb strings.Builder
	if caseInsensitive {
		sb.WriteString("(?i)")
	}
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")

	return regexp.Compile(sb.String())
}

type arithmeticNode struct {
	operator    string
	left, right node
}

func (n *arithmeticNode) eval(attributes map[string]interface{}) interface{} {
	left := n.left.eval(attributes)
	right := n.right.eval(attributes)
	if left == nil || right == nil {
		return nil
	}

	if n.operator == "||" {
		return toString(left) + toString(right)
	}

	leftNumber, leftOK := toNumber(left)
	rightNumber, rightOK := toNumber(right)
	if !leftOK || !rightOK {
		if n.operator == "+" {
			return toString(left) + toString(right)
		}
		return nil
	}

	switch n.operator {
	case "+":
		return leftNumber + rightNumber
	case "-":
		return leftNumber - rightNumber
	case "*":
		return leftNumber * rightNumber
	case "/":
		if rightNumber == 0 {
			return nil
		}
		return leftNumber / rightNumber
	default:
		if rightNumber == 0 {
			return nil
		}
		return math.Mod(leftNumber, rightNumber)
	}
}

func (n *arithmeticNode) addColumns(columns map[string]struct{}) {
	n.left.addColumns(columns)
	n.right.addColumns(columns)
}

type functionDefinition struct {
	minArgs int
	// -1 for any number
	maxArgs int
	call    func(args []interface{}) interface{}
}

var functions = map[string]functionDefinition{
	"lower": {1, 1, func(args []interface{}) interface{} {
		if args[0] == nil {
			return nil
		}
		return strings.ToLower(toString(args[0]))
	}},
	"upper": {1, 1, func(args []interface{}) interface{} {
		if args[0] == nil {
			return nil
		}
		return strings.ToUpper(toString(args[0]))
	}},
	"length": {1, 1, func(args []interface{}) interface{} {
		if args[0] == nil {
			return nil
		}
		return float64(len([]rune(toString(args[0]))))
	}},
	"concat": {0, -1, func(args []interface{}) interface{} {
		var sb strings.Builder
		for _, arg := range args {
			if arg != nil {
				sb.WriteString(toString(arg))
			}
		}
		return sb.String()
	}},
	"coalesce": {1, -1, func(args []interface{}) interface{} {
		for _, arg := range args {
			if arg != nil {
				return arg
			}
		}
		return nil
	}},
	"to_string": {1, 1, func(args []interface{}) interface{} {
		if args[0] == nil {
			return nil
		}
		return toString(args[0])
	}},
	"to_real": {1, 1, func(args []interface{}) interface{} {
		number, ok := toNumber(args[0])
		if !ok {
			return nil
		}
		return number
	}},
	"to_int": {1, 1, func(args []interface{}) interface{} {
		number, ok := toNumber(args[0])
		if !ok {
			return nil
		}
		return math.Trunc(number)
	}},
	"abs": {1, 1, func(args []interface{}) interface{} {
		number, ok := toNumber(args[0])
		if !ok {
			return nil
		}
		return math.Abs(number)
	}},
	"round": {1, 2, func(args []interface{}) interface{} {
		number, ok := toNumber(args[0])
		if !ok {
			return nil
		}
		places := 0.0
		if len(args) == 2 {
			places, _ = toNumber(args[1])
		}
		factor := math.Pow(10, places)
		return math.Round(number*factor) / factor
	}},
	"attribute": {1, 1, nil},
}

type functionNode struct {
	name       string
	definition functionDefinition
	args       []node
}

func (n *functionNode) eval(attributes map[string]interface{}) interface{} {
	if n.name == "attribute" {
		name := n.args[0].eval(attributes)
		if name == nil {
			return nil
		}
		return normaliseValue(attributes[toString(name)])
	}

	args := make([]interface{}, len(n.args))
	for i, arg := range n.args {
		args[i] = arg.eval(attributes)
	}
	return n.definition.call(args)
}

func (n *functionNode) addColumns(columns map[string]struct{}) {
	for _, arg := range n.args {
		arg.addColumns(columns)
	}

	if n.name == "attribute" {
		literal, ok := n.args[0].(*literalNode)
		if ok && literal.value != nil {
			columns[toString(literal.value)] = struct{}{}
		}
	}
}

// normaliseValue reduces attribute values to nil, bool, float64 or string
func normaliseValue(value interface{}) interface{} {
	switch v := value.(type) {
	case nil, bool, float64, string:
		return v
	case int:
		return float64(v)
	case int8:
		return float64(v)
	case int16:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint8:
		return float64(v)
	case uint16:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	case float32:
		return float64(v)
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toNumber(value interface{}) (float64, bool) {
	switch v := normaliseValue(value).(type) {
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		number, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return number, true
	}
	return 0, false
}

func toString(value interface{}) string {
	switch v := normaliseValue(value).(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func isTruthy(value interface{}) bool {
	switch v := normaliseValue(value).(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		number, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return number != 0
		}
		return v != ""
	}
	return false
}

// compareValues compares numerically when both values are numbers (or numeric strings), else as strings
func compareValues(a, b interface{}) int {
	aNumber, aOK := toNumber(a)
	bNumber, bOK := toNumber(b)
	if aOK && bOK {
		switch {
		case aNumber < bNumber:
			return -1
		case aNumber > bNumber:
			return 1
		default:
			return 0
		}
	}

	return strings.Compare(toString(a), toString(b))
}
