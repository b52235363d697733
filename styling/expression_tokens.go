package styling

import (
	"strings"
	"unicode"

	"github.com/jamesrr39/goutil/errorsx"
)

const (
	TokenStringQuote = '\''
	TokenColumnQuote = '"'
	TokenOpenParen   = '('
	TokenCloseParen  = ')'
	TokenComma       = ','
)

// 2-char operators, checked before 1-char ones
var twoCharOperators = []string{"<=", ">=", "<>", "!=", "||"}

const oneCharOperators = "=<>+-*/%"

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenNumber
	tokenString
	tokenColumn
	tokenIdentifier
	tokenOperator
	tokenOpenParen
	tokenCloseParen
	tokenComma
)

type token struct {
	Type tokenType
	Text string
	Pos  int
}

// keywords are matched case-insensitively and never name a column
var keywords = map[string]bool{
	"AND":   true,
	"OR":    true,
	"NOT":   true,
	"IS":    true,
	"NULL":  true,
	"IN":    true,
	"LIKE":  true,
	"ILIKE": true,
	"TRUE":  true,
	"FALSE": true,
}

func isKeyword(t token, keyword string) bool {
	return t.Type == tokenIdentifier && strings.EqualFold(t.Text, keyword)
}

func tokenize(expression string) ([]token, errorsx.Error) {
	var tokens []token
	runes := []rune(expression)
	length := len(runes)

	for i := 0; i < length; i++ {
		thisChar := runes[i]

		if unicode.IsSpace(thisChar) {
			continue
		}

		if i+1 < length {
			next2Chars := string(runes[i : i+2])
			if containsOperator(twoCharOperators, next2Chars) {
				tokens = append(tokens, token{tokenOperator, next2Chars, i})
				i++
				continue
			}
		}

		switch {
		case thisChar == TokenOpenParen:
			tokens = append(tokens, token{tokenOpenParen, "(", i})
		case thisChar == TokenCloseParen:
			tokens = append(tokens, token{tokenCloseParen, ")", i})
		case thisChar == TokenComma:
			tokens = append(tokens, token{tokenComma, ",", i})
		case thisChar == TokenStringQuote, thisChar == TokenColumnQuote:
			text, end, err := readQuoted(runes, i, thisChar)
			if err != nil {
				return nil, err
			}
			kind := tokenString
			if thisChar == TokenColumnQuote {
				kind = tokenColumn
			}
			tokens = append(tokens, token{kind, text, i})
			i = end
		case unicode.IsDigit(thisChar) || (thisChar == '.' && i+1 < length && unicode.IsDigit(runes[i+1])):
			end := i
			for end+1 < length && isNumberChar(runes, end+1) {
				end++
			}
			tokens = append(tokens, token{tokenNumber, string(runes[i : end+1]), i})
			i = end
		case unicode.IsLetter(thisChar) || thisChar == '_' || thisChar == '$' || thisChar == '@':
			end := i
			for end+1 < length && (unicode.IsLetter(runes[end+1]) || unicode.IsDigit(runes[end+1]) || runes[end+1] == '_') {
				end++
			}
			tokens = append(tokens, token{tokenIdentifier, string(runes[i : end+1]), i})
			i = end
		case strings.ContainsRune(oneCharOperators, thisChar):
			tokens = append(tokens, token{tokenOperator, string(thisChar), i})
		default:
			return nil, errorsx.Errorf("unexpected character %q at position %d", thisChar, i)
		}
	}

	tokens = append(tokens, token{tokenEOF, "", length})
	return tokens, nil
}

func containsOperator(operators []string, s string) bool {
	for _, operator := range operators {
		if operator == s {
			return true
		}
	}
	return false
}

func isNumberChar(runes []rune, i int) bool {
	c := runes[i]
	switch {
	case unicode.IsDigit(c), c == '.':
		return true
	case c == 'e' || c == 'E':
		return true
	case (c == '+' || c == '-') && (runes[i-1] == 'e' || runes[i-1] == 'E'):
		return true
	}
	return false
}

// readQuoted reads a quoted string starting at start. A doubled quote is an escaped quote.
func readQuoted(runes []rune, start int, quote rune) (string, int, errorsx.Error) {
	var sb strings.Builder
	for i := start + 1; i < len(runes); i++ {
		if runes[i] != quote {
			if runes[i] == '\\' && i+1 < len(runes) {
				i++
			}
			sb.WriteRune(runes[i])
			continue
		}

		if i+1 < len(runes) && runes[i+1] == quote {
			sb.WriteRune(quote)
			i++
			continue
		}

		return sb.String(), i, nil
	}

	return "", 0, errorsx.Errorf("unterminated quote starting at position %d", start)
}
