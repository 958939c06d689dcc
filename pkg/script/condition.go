// Package script evaluates the small property-test and action strings that
// content authors put on attachments, levers and NPC dialog.
//
// A condition is a single comparison such as "Karma>100" or
// "Name=a gate key". An action list is a ';'-separated list of directives
// such as "MSG/The door opens;SET/Hue/33". Neither form nests.
package script

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// ErrNoTarget is returned when a non-empty condition is checked against no
// entity.
var ErrNoTarget = errors.New("script: no target")

type comparison struct {
	prop  string
	op    string // "" for a bare property test
	value string
}

// twoCharOps take precedence over their one-character prefixes at the same
// position.
var twoCharOps = []string{">=", "<=", "!="}

func parseCondition(expr string) (comparison, error) {
	for i := 0; i < len(expr); i++ {
		if i+1 < len(expr) {
			pair := expr[i : i+2]
			for _, op := range twoCharOps {
				if pair == op {
					return newComparison(expr[:i], op, expr[i+2:])
				}
			}
		}
		switch expr[i] {
		case '=', '<', '>':
			return newComparison(expr[:i], expr[i:i+1], expr[i+1:])
		}
	}
	prop := strings.TrimSpace(expr)
	if strings.ContainsAny(prop, " \t") {
		return comparison{}, fmt.Errorf("script: malformed condition %q", expr)
	}
	return comparison{prop: prop}, nil
}

func newComparison(prop, op, value string) (comparison, error) {
	prop = strings.TrimSpace(prop)
	if prop == "" {
		return comparison{}, fmt.Errorf("script: condition has no property before %q", op)
	}
	if op == "=" {
		value = strings.TrimPrefix(value, "=")
	}
	value = strings.TrimSpace(value)
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		value = value[1 : len(value)-1]
	}
	return comparison{prop: prop, op: op, value: value}, nil
}

// Check evaluates a condition and explains why it failed to evaluate. An
// empty condition is true.
func Check(target *gamedb.Entity, expr string) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}
	if target == nil {
		return false, ErrNoTarget
	}
	c, err := parseCondition(expr)
	if err != nil {
		return false, err
	}
	have, ok := target.GetProperty(c.prop)
	if !ok {
		return false, fmt.Errorf("script: %s: %w", c.prop, gamedb.ErrUnknownProperty)
	}
	if c.op == "" {
		return truthy(have), nil
	}
	return compare(have, c.op, c.value), nil
}

// EvaluateCondition reports whether target satisfies expr. An empty
// expression passes. Malformed expressions and unknown properties fail the
// test and are logged.
func EvaluateCondition(target *gamedb.Entity, expr string) bool {
	ok, err := Check(target, expr)
	if err != nil {
		log.Printf("script: condition %q: %v", expr, err)
		return false
	}
	return ok
}

// IsTest reports whether s is a comparison rather than a bare property
// name.
func IsTest(s string) bool {
	return strings.ContainsAny(s, "<>!=")
}

func truthy(v string) bool {
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f != 0
	}
	return false
}

func compare(have, op, want string) bool {
	hf, herr := strconv.ParseFloat(strings.TrimSpace(have), 64)
	wf, werr := strconv.ParseFloat(want, 64)
	if herr == nil && werr == nil {
		switch op {
		case "=":
			return hf == wf
		case "!=":
			return hf != wf
		case "<":
			return hf < wf
		case ">":
			return hf > wf
		case "<=":
			return hf <= wf
		case ">=":
			return hf >= wf
		}
		return false
	}
	c := strings.Compare(strings.ToLower(have), strings.ToLower(want))
	switch op {
	case "=":
		return c == 0
	case "!=":
		return c != 0
	case "<":
		return c < 0
	case ">":
		return c > 0
	case "<=":
		return c <= 0
	case ">=":
		return c >= 0
	}
	return false
}
