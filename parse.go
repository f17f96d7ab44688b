package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var timePeriodRe = regexp.MustCompile(`(\d+)\s*([a-zA-Z]+)`)

// parseTimePeriod converts strings like "30s", "15 min" or "2 weeks" into
// seconds.
func parseTimePeriod(s string) (uint64, error) {
	caps := timePeriodRe.FindStringSubmatch(s)
	if caps == nil {
		return 0, fmt.Errorf("invalid time period format: %s", s)
	}
	number, err := strconv.ParseUint(caps[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid time period number: %s", caps[1])
	}
	switch strings.ToLower(caps[2]) {
	case "s", "sec", "secs", "second", "seconds":
		return number, nil
	case "m", "min", "mins", "minute", "minutes":
		return number * 60, nil
	case "h", "hour", "hours":
		return number * 3600, nil
	case "d", "day", "days":
		return number * 86400, nil
	case "w", "week", "weeks":
		return number * 604800, nil
	default:
		return 0, fmt.Errorf("invalid time unit: %s", caps[2])
	}
}

// adminArgs are the normalized arguments of nip47-create and nip47-budget.
type adminArgs struct {
	label        string
	budgetMsat   *uint64
	intervalSecs *uint64
}

// parseAdminArgs accepts the three shapes lightning-cli can deliver:
// a bare string label, a positional array [label, budget_msat, interval],
// or an object {label, budget_msat, interval}. An interval only makes sense
// with a positive budget to refill.
func parseAdminArgs(raw json.RawMessage) (*adminArgs, error) {
	args := &adminArgs{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("missing label argument")
	}

	switch trimmed[0] {
	case '"':
		label, err := jsonString(trimmed, "label")
		if err != nil {
			return nil, err
		}
		args.label = label
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("malformed arguments: %w", err)
		}
		if len(items) == 0 {
			return nil, errors.New("missing label argument")
		}
		if len(items) > 3 {
			return nil, errors.New("too many arguments, expected label, budget_msat and interval")
		}
		label, err := jsonString(items[0], "label")
		if err != nil {
			return nil, err
		}
		args.label = label
		if len(items) >= 2 {
			budget, err := jsonUint64(items[1], "budget_msat")
			if err != nil {
				return nil, err
			}
			args.budgetMsat = &budget
		}
		if len(items) >= 3 {
			period, err := jsonString(items[2], "interval")
			if err != nil {
				return nil, err
			}
			secs, err := parseTimePeriod(period)
			if err != nil {
				return nil, err
			}
			args.intervalSecs = &secs
		}
	case '{':
		var obj struct {
			Label      *string          `json:"label"`
			BudgetMsat *json.RawMessage `json:"budget_msat"`
			Interval   *string          `json:"interval"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("malformed arguments: %w", err)
		}
		if obj.Label == nil {
			return nil, errors.New("missing label argument")
		}
		args.label = *obj.Label
		if obj.BudgetMsat != nil {
			budget, err := jsonUint64(*obj.BudgetMsat, "budget_msat")
			if err != nil {
				return nil, err
			}
			args.budgetMsat = &budget
		}
		if obj.Interval != nil {
			secs, err := parseTimePeriod(*obj.Interval)
			if err != nil {
				return nil, err
			}
			args.intervalSecs = &secs
		}
	default:
		return nil, errors.New("arguments must be a string, array or object")
	}

	if args.label == "" {
		return nil, errors.New("label must not be empty")
	}
	if args.intervalSecs != nil && (args.budgetMsat == nil || *args.budgetMsat == 0) {
		return nil, errors.New("interval requires a budget_msat greater than zero")
	}
	return args, nil
}

// parseLabelArg extracts a required label from any of the argument shapes.
func parseLabelArg(raw json.RawMessage) (string, error) {
	label, err := parseOptionalLabelArg(raw)
	if err != nil {
		return "", err
	}
	if label == "" {
		return "", errors.New("missing label argument")
	}
	return label, nil
}

// parseOptionalLabelArg extracts a label when one was given, or "" for
// empty arguments.
func parseOptionalLabelArg(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	switch trimmed[0] {
	case '"':
		return jsonString(trimmed, "label")
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return "", fmt.Errorf("malformed arguments: %w", err)
		}
		if len(items) == 0 {
			return "", nil
		}
		return jsonString(items[0], "label")
	case '{':
		var obj struct {
			Label *string `json:"label"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return "", fmt.Errorf("malformed arguments: %w", err)
		}
		if obj.Label == nil {
			return "", nil
		}
		return *obj.Label, nil
	default:
		return "", errors.New("arguments must be a string, array or object")
	}
}

func jsonString(raw json.RawMessage, what string) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%s must be a string", what)
	}
	return s, nil
}

func jsonUint64(raw json.RawMessage, what string) (uint64, error) {
	var v uint64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("%s must be a non-negative integer", what)
	}
	return v, nil
}
