package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mckoi/mckoiddb/pkg/mckoierr"
)

var byteUnits = map[string]int64{
	"B":  1,
	"KB": 1024,
	"MB": 1024 * 1024,
	"GB": 1024 * 1024 * 1024,
	"TB": 1024 * 1024 * 1024 * 1024,
}

// ParseByteSize parses spec.md §6.1's byte-size grammar: an optional
// integer followed by a unit B|KB|MB|GB|TB, case-insensitive. The literal
// "default" is not handled here — callers that accept it (e.g.
// root_server_transaction_cache) check for it before calling ParseByteSize.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, mckoierr.New(mckoierr.KindConfig, "empty byte-size value")
	}
	i := 0
	for i < len(s) && (s[i] == '-' || (s[i] >= '0' && s[i] <= '9')) {
		i++
	}
	numPart := s[:i]
	unitPart := strings.ToUpper(strings.TrimSpace(s[i:]))
	if numPart == "" {
		numPart = "1"
	}
	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, mckoierr.Wrap(mckoierr.KindConfig, fmt.Sprintf("invalid byte-size integer %q", numPart), err)
	}
	if unitPart == "" {
		return n, nil
	}
	mult, ok := byteUnits[unitPart]
	if !ok {
		return 0, mckoierr.New(mckoierr.KindConfig, fmt.Sprintf("unknown byte-size unit %q", unitPart))
	}
	return n * mult, nil
}

var timeUnits = map[string]time.Duration{
	"week":    7 * 24 * time.Hour,
	"weeks":   7 * 24 * time.Hour,
	"day":     24 * time.Hour,
	"days":    24 * time.Hour,
	"hour":    time.Hour,
	"hours":   time.Hour,
	"minute":  time.Minute,
	"minutes": time.Minute,
	"second":  time.Second,
	"seconds": time.Second,
	"ms":      time.Millisecond,
}

// ParseTimeMeasure parses spec.md §6.1's time-measure grammar: a sum of
// "<decimal> (weeks|days|hours|minutes|seconds|ms)" terms, e.g.
// "5 minutes 30 seconds".
func ParseTimeMeasure(s string) (time.Duration, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields)%2 != 0 {
		return 0, mckoierr.New(mckoierr.KindConfig, fmt.Sprintf("malformed time measure %q", s))
	}
	var total time.Duration
	for i := 0; i < len(fields); i += 2 {
		n, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return 0, mckoierr.Wrap(mckoierr.KindConfig, fmt.Sprintf("invalid time-measure quantity %q", fields[i]), err)
		}
		unit, ok := timeUnits[strings.ToLower(fields[i+1])]
		if !ok {
			return 0, mckoierr.New(mckoierr.KindConfig, fmt.Sprintf("unknown time-measure unit %q", fields[i+1]))
		}
		total += time.Duration(n * float64(unit))
	}
	return total, nil
}

// ParseNodeList parses network_nodelist: a comma-separated host:port list.
// Per S6, "*" is rejected — unlike connect_whitelist, the node list must
// enumerate (there is no meaningful "any node" default for cluster
// membership).
func ParseNodeList(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "*" {
		return nil, mckoierr.New(mckoierr.KindConfig, "network_nodelist must enumerate hosts, \"*\" is not permitted")
	}
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// ParseWhitelist parses connect_whitelist: a comma-separated IP list, or
// "*" to disable the whitelist entirely (spec.md §6.2).
func ParseWhitelist(s string) (ips []string, disabled bool, err error) {
	s = strings.TrimSpace(s)
	if s == "*" {
		return nil, true, nil
	}
	if s == "" {
		return nil, false, nil
	}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			ips = append(ips, p)
		}
	}
	return ips, false, nil
}
