package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// loader reads typed values and records a warning for every value it had
// to replace with the default.
type loader struct {
	getenv   func(string) string
	warnings []string
}

func (l *loader) warn(format string, args ...any) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

func (l *loader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(l.getenv(key))
	return v, v != ""
}

func (l *loader) invalid(key, v string, def any) {
	l.warn("%s=%q is invalid, using default %v", key, v, def)
}

// optional is like str, but "off" yields an empty value.
func (l *loader) optional(key, defaultVal string) string {
	v, ok := l.lookup(key)
	if !ok {
		return defaultVal
	}
	if strings.EqualFold(v, "off") {
		return ""
	}
	return v
}

func (l *loader) str(key, defaultVal string) string {
	if v, ok := l.lookup(key); ok {
		return v
	}
	return defaultVal
}

func (l *loader) integer(key string, defaultVal int) int {
	v, ok := l.lookup(key)
	if !ok {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.invalid(key, v, defaultVal)
		return defaultVal
	}
	return n
}

func (l *loader) intRange(key string, defaultVal, min, max int) int {
	v, ok := l.lookup(key)
	if !ok {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		l.invalid(key, v, defaultVal)
		return defaultVal
	}
	return n
}

func (l *loader) posInt(key string, defaultVal int) int {
	return l.intRange(key, defaultVal, 1, int(^uint(0)>>1))
}

func (l *loader) nonNegInt(key string, defaultVal int) int {
	return l.intRange(key, defaultVal, 0, int(^uint(0)>>1))
}

func (l *loader) float(key string, defaultVal float64, ok func(float64) bool) float64 {
	v, present := l.lookup(key)
	if !present {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || !ok(f) {
		l.invalid(key, v, defaultVal)
		return defaultVal
	}
	return f
}

func (l *loader) posFloat(key string, defaultVal float64) float64 {
	return l.float(key, defaultVal, func(f float64) bool { return f > 0 })
}

func (l *loader) nonNegFloat(key string, defaultVal float64) float64 {
	return l.float(key, defaultVal, func(f float64) bool { return f >= 0 })
}

func (l *loader) boolean(key string, defaultVal bool) bool {
	v, ok := l.lookup(key)
	if !ok {
		return defaultVal
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	l.invalid(key, v, defaultVal)
	return defaultVal
}

func (l *loader) duration(key string, defaultVal time.Duration, ok func(time.Duration) bool) time.Duration {
	v, present := l.lookup(key)
	if !present {
		return defaultVal
	}
	d, err := ParseDuration(v)
	if err != nil || !ok(d) {
		l.invalid(key, v, defaultVal)
		return defaultVal
	}
	return d
}

func (l *loader) posDuration(key string, defaultVal time.Duration) time.Duration {
	return l.duration(key, defaultVal, func(d time.Duration) bool { return d > 0 })
}

func (l *loader) nonNegDuration(key string, defaultVal time.Duration) time.Duration {
	return l.duration(key, defaultVal, func(d time.Duration) bool { return d >= 0 })
}

func (l *loader) mapping(key string, defaultVal map[string]string) map[string]string {
	v, ok := l.lookup(key)
	if !ok {
		return defaultVal
	}
	m, err := ParseMapping(v)
	if err != nil {
		l.warn("%s=%q is invalid (%v), using default %s", key, v, err, FormatMapping(defaultVal))
		return defaultVal
	}
	return m
}
