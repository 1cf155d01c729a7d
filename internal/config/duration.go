package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML using the extended
// syntax accepted by parseDurationExtended.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	parsed, err := parseDurationExtended(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// parseDurationExtended parses Go-style duration strings and adds support for:
// - d (days) where 1d = 24h
// - w (weeks) where 1w = 7d
//
// Examples: "15m", "7d", "1w2d", "1.5d", "-2w".
func parseDurationExtended(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("duration is required")
	}
	if !strings.ContainsAny(raw, "dw") {
		return time.ParseDuration(raw)
	}

	sign := ""
	rest := raw
	if rest[0] == '+' || rest[0] == '-' {
		sign, rest = rest[:1], rest[1:]
	}
	if rest == "" {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}

	var out strings.Builder
	out.WriteString(sign)
	for rest != "" {
		num, unit, tail, ok := nextDurationTerm(rest)
		if !ok {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		rest = tail

		multiplier := 0.0
		switch unit {
		case "d":
			multiplier = 24
		case "w":
			multiplier = 7 * 24
		}
		if multiplier == 0 {
			out.WriteString(num + unit)
			continue
		}
		value, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		out.WriteString(strconv.FormatFloat(value*multiplier, 'f', -1, 64))
		out.WriteByte('h')
	}
	return time.ParseDuration(out.String())
}

// nextDurationTerm splits "12.5d3h" into ("12.5", "d", "3h").
func nextDurationTerm(s string) (num, unit, rest string, ok bool) {
	i := 0
	dot := false
	for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.' && !dot) {
		if s[i] == '.' {
			dot = true
		}
		i++
	}
	if i == 0 {
		return "", "", "", false
	}
	j := i
	for j < len(s) && !(s[j] >= '0' && s[j] <= '9') && s[j] != '.' {
		j++
	}
	if j == i {
		return "", "", "", false
	}
	return s[:i], s[i:j], s[j:], true
}
