package retry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ConfigError is returned for any construct outside the grammar in spec
// §4.2; it is not retriable.
type ConfigError struct{ msg string }

func (e *ConfigError) Error() string { return e.msg }

func configErrorf(format string, args ...any) error {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// Parse builds a Policy from a string such as
// "stop_after_attempt(5) & wait_none" or
// "stop_any(stop_after_attempt(3), stop_after_delay(60)) | wait_exponential(1,1,30)".
// The expression is a sequence of stop and wait clauses split on
// top-level '&', '|' and '+' (commas only separate arguments inside a
// call's parentheses); each clause is recognised by its leading
// identifier. Stop clauses joined by '|' combine as StopAny, otherwise as
// StopAll; wait clauses are summed with WaitCombine. A missing stop clause
// defaults to StopNever and a missing wait clause to WaitNone.
// ConfigError is returned for anything else (spec §7).
func Parse(expr string) (Policy, error) {
	clauses, err := splitClauses(expr)
	if err != nil {
		return Policy{}, err
	}
	var p Policy
	for _, cl := range clauses {
		c := cl.text
		switch {
		case strings.HasPrefix(c, "stop"):
			s, err := parseStop(c)
			if err != nil {
				return Policy{}, err
			}
			if p.Stop == nil {
				p.Stop = s
			} else if cl.op == '|' {
				p.Stop = StopAny(p.Stop, s)
			} else {
				p.Stop = StopAll(p.Stop, s)
			}
		case strings.HasPrefix(c, "wait"):
			w, err := parseWait(c)
			if err != nil {
				return Policy{}, err
			}
			if p.Wait == nil {
				p.Wait = w
			} else {
				p.Wait = WaitCombine(p.Wait, w)
			}
		default:
			return Policy{}, configErrorf("unrecognized retry clause: %q", c)
		}
	}
	if p.Stop == nil {
		p.Stop = StopNever()
	}
	if p.Wait == nil {
		p.Wait = WaitNone()
	}
	return p, nil
}

// clause is one "stop..."/"wait..." expression alongside the operator
// that introduced it ('&', '|' or '+'; 0 for the first clause). Multiple
// stop clauses combine via that operator: '|' is OR (StopAny), '&'/'+'
// is AND (StopAll) — spec §4.2's `stop '|' stop` / `stop '&' stop`.
type clause struct {
	op   byte
	text string
}

// splitClauses splits on top-level '&', '|' and '+' while respecting
// parens, recording which operator preceded each clause so Parse can
// tell an OR from an AND when combining same-kind clauses.
func splitClauses(expr string) ([]clause, error) {
	var clauses []clause
	depth := 0
	start := 0
	var op byte
	for i, r := range expr {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, configErrorf("unbalanced parens in %q", expr)
			}
		case '&', '|', '+':
			if depth == 0 {
				clauses = append(clauses, clause{op: op, text: strings.TrimSpace(expr[start:i])})
				op = byte(r)
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, configErrorf("unbalanced parens in %q", expr)
	}
	clauses = append(clauses, clause{op: op, text: strings.TrimSpace(expr[start:])})
	out := clauses[:0]
	for _, c := range clauses {
		if c.text != "" {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, configErrorf("empty retry expression")
	}
	return out, nil
}

// call is a parsed "name(arg, arg, ...)" or bare "name".
type call struct {
	name string
	args []string
}

func parseCall(s string) (call, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return call{name: s}, nil
	}
	if !strings.HasSuffix(s, ")") {
		return call{}, configErrorf("malformed call: %q", s)
	}
	name := strings.TrimSpace(s[:open])
	inner := s[open+1 : len(s)-1]
	args, err := splitArgs(inner)
	if err != nil {
		return call{}, err
	}
	return call{name: name, args: args}, nil
}

// splitArgs splits a call's argument list on top-level commas, allowing
// nested calls as arguments (for stop_any/stop_all/wait_combine/wait_chain).
func splitArgs(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var args []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, configErrorf("unbalanced parens in args %q", s)
	}
	args = append(args, strings.TrimSpace(s[start:]))
	return args, nil
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(n * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, configErrorf("invalid duration %q", s)
	}
	return d, nil
}

func parseInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, configErrorf("invalid integer %q", s)
	}
	return n, nil
}

func parseStop(s string) (StopCondition, error) {
	c, err := parseCall(s)
	if err != nil {
		return nil, err
	}
	switch c.name {
	case "stop_never":
		return StopNever(), nil
	case "stop_after_attempt":
		if len(c.args) != 1 {
			return nil, configErrorf("stop_after_attempt wants 1 arg, got %d", len(c.args))
		}
		n, err := parseInt(c.args[0])
		if err != nil {
			return nil, err
		}
		return StopAfterAttempt(n), nil
	case "stop_after_delay":
		if len(c.args) != 1 {
			return nil, configErrorf("stop_after_delay wants 1 arg, got %d", len(c.args))
		}
		d, err := parseDuration(c.args[0])
		if err != nil {
			return nil, err
		}
		return StopAfterDelay(d), nil
	case "stop_when_event_set":
		// The expression carries no event to watch: the zero-arg form is
		// accepted, and the condition built here never reports true, so
		// it never stops the loop by itself.
		return StopWhenEventSet(func() bool { return false }), nil
	case "stop_any":
		if len(c.args) == 0 {
			return nil, configErrorf("stop_any wants at least 1 arg")
		}
		conds := make([]StopCondition, 0, len(c.args))
		for _, a := range c.args {
			sc, err := parseStop(a)
			if err != nil {
				return nil, err
			}
			conds = append(conds, sc)
		}
		return StopAny(conds...), nil
	case "stop_all":
		if len(c.args) == 0 {
			return nil, configErrorf("stop_all wants at least 1 arg")
		}
		conds := make([]StopCondition, 0, len(c.args))
		for _, a := range c.args {
			sc, err := parseStop(a)
			if err != nil {
				return nil, err
			}
			conds = append(conds, sc)
		}
		return StopAll(conds...), nil
	default:
		return nil, configErrorf("unknown stop constructor: %q", c.name)
	}
}

func parseWait(s string) (WaitPolicy, error) {
	c, err := parseCall(s)
	if err != nil {
		return nil, err
	}
	switch c.name {
	case "wait_none":
		return WaitNone(), nil
	case "wait_fixed":
		if len(c.args) != 1 {
			return nil, configErrorf("wait_fixed wants 1 arg, got %d", len(c.args))
		}
		d, err := parseDuration(c.args[0])
		if err != nil {
			return nil, err
		}
		return WaitFixed(d), nil
	case "wait_random":
		if len(c.args) != 2 {
			return nil, configErrorf("wait_random wants 2 args, got %d", len(c.args))
		}
		lo, err := parseDuration(c.args[0])
		if err != nil {
			return nil, err
		}
		hi, err := parseDuration(c.args[1])
		if err != nil {
			return nil, err
		}
		return WaitRandom(lo, hi), nil
	case "wait_incrementing":
		if len(c.args) != 2 {
			return nil, configErrorf("wait_incrementing wants 2 args, got %d", len(c.args))
		}
		start, err := parseDuration(c.args[0])
		if err != nil {
			return nil, err
		}
		inc, err := parseDuration(c.args[1])
		if err != nil {
			return nil, err
		}
		return WaitIncrementing(start, inc), nil
	case "wait_exponential":
		if len(c.args) != 3 {
			return nil, configErrorf("wait_exponential wants 3 args, got %d", len(c.args))
		}
		mult, err := parseDuration(c.args[0])
		if err != nil {
			return nil, err
		}
		min, err := parseDuration(c.args[1])
		if err != nil {
			return nil, err
		}
		max, err := parseDuration(c.args[2])
		if err != nil {
			return nil, err
		}
		return WaitExponential(mult, min, max), nil
	case "wait_random_exponential":
		if len(c.args) != 2 {
			return nil, configErrorf("wait_random_exponential wants 2 args, got %d", len(c.args))
		}
		mult, err := parseDuration(c.args[0])
		if err != nil {
			return nil, err
		}
		max, err := parseDuration(c.args[1])
		if err != nil {
			return nil, err
		}
		return WaitRandomExponential(mult, max), nil
	case "wait_combine":
		if len(c.args) == 0 {
			return nil, configErrorf("wait_combine wants at least 1 arg")
		}
		policies := make([]WaitPolicy, 0, len(c.args))
		for _, a := range c.args {
			wp, err := parseWait(a)
			if err != nil {
				return nil, err
			}
			policies = append(policies, wp)
		}
		return WaitCombine(policies...), nil
	case "wait_chain":
		if len(c.args) == 0 {
			return nil, configErrorf("wait_chain wants at least 1 arg")
		}
		policies := make([]WaitPolicy, 0, len(c.args))
		for _, a := range c.args {
			wp, err := parseWait(a)
			if err != nil {
				return nil, err
			}
			policies = append(policies, wp)
		}
		return WaitChain(policies...), nil
	default:
		return nil, configErrorf("unknown wait constructor: %q", c.name)
	}
}
