package stats

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"whstats/internal/core"
)

// args - параметры команды в виде key=value (допускается префикс --).
type args map[string]string

func parseArgs(raw []string) (args, error) {
	out := make(args, len(raw))
	for _, item := range raw {
		item = strings.TrimLeft(strings.TrimSpace(item), "-")
		if item == "" {
			continue
		}
		key, value, ok := strings.Cut(item, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value: %w", item, core.ErrInvalidArguments)
		}
		out[strings.ToLower(key)] = strings.TrimSpace(value)
	}
	return out, nil
}

func (a args) text(key, def string) string {
	if v, ok := a[key]; ok && v != "" {
		return v
	}
	return def
}

func (a args) integer(key string, def int) (int, error) {
	v, ok := a[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not an integer: %w", key, v, core.ErrInvalidArguments)
	}
	return n, nil
}

func (a args) date(key string) (*time.Time, error) {
	v, ok := a[key]
	if !ok || v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, fmt.Errorf("%s=%q is not YYYY-MM-DD: %w", key, v, core.ErrInvalidArguments)
	}
	return &t, nil
}
