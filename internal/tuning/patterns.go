package tuning

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	numberLiteral = `(-?[0-9]*\.?[0-9]+)`
	// A literal may only be followed by whitespace and a comment.
	statementTail = `(\s*(?:#.*)?)$`
)

// patterns is ordered: the first one matching a line decides the name and
// the literal. Each has four groups: indent, name, literal, tail.
var patterns = []*regexp.Regexp{
	assignment(`[a-z_]*(?:rate|alpha|beta|gamma|epsilon|lambda|eta|momentum|decay)`),
	assignment(`n_[a-z_]+`),
	assignment(`max_[a-z_]+`),
	assignment(`min_[a-z_]+`),
	assignment(`epochs?|iterations?|batch_size|hidden_size|num_layers|dropout|threshold|tolerance|k|C|degree`),
	assignment(`test_size|train_size|validation_size|split_ratio|ratio`),
	assignment(`random_state|seed`),
	assignment(`[a-z_]*(?:_size|_count|_num|_rate|_ratio|_factor|_weight)`),
}

func assignment(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^(\s*)(` + name + `)\s*=\s*` + numberLiteral + statementTail)
}

// exactAssignment matches `name = <number>` for one exact identifier.
func exactAssignment(name string) *regexp.Regexp {
	return regexp.MustCompile(`^(\s*)(` + regexp.QuoteMeta(name) + `)\s*=\s*` + numberLiteral + statementTail)
}

type lineMatch struct {
	indent  string
	name    string
	literal string
	tail    string
}

func matchLine(line string) (lineMatch, bool) {
	stripped := strings.TrimSpace(line)
	if stripped == "" || strings.HasPrefix(stripped, "#") {
		return lineMatch{}, false
	}

	for _, re := range patterns {
		if m := re.FindStringSubmatch(line); m != nil {
			return lineMatch{indent: m[1], name: m[2], literal: m[3], tail: m[4]}, true
		}
	}
	return lineMatch{}, false
}

func (m lineMatch) parameter(line int) (Parameter, error) {
	value, err := strconv.ParseFloat(m.literal, 64)
	if err != nil {
		return Parameter{}, err
	}

	kind := KindInt
	if strings.Contains(m.literal, ".") {
		kind = KindReal
	}

	return newParameter(m.name, kind, value, line, m.name+" = "+m.literal), nil
}
