package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Durations is a list of intervals written as duration strings ("10ms")
// both in JSON and on the command line.
type Durations []time.Duration

// String implements flag.Value.
func (d *Durations) String() string {
	if d == nil {
		return ""
	}
	parts := make([]string, len(*d))
	for i, v := range *d {
		parts[i] = v.String()
	}
	return strings.Join(parts, ",")
}

// Set implements flag.Value. It replaces the list.
func (d *Durations) Set(s string) error {
	var out Durations
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := time.ParseDuration(part)
		if err != nil {
			return fmt.Errorf("invalid interval %q: %w", part, err)
		}
		out = append(out, v)
	}
	*d = out
	return nil
}

// MarshalJSON writes the list as duration strings.
func (d Durations) MarshalJSON() ([]byte, error) {
	parts := make([]string, len(d))
	for i, v := range d {
		parts[i] = v.String()
	}
	return json.Marshal(parts)
}

// UnmarshalJSON reads a list of duration strings.
func (d *Durations) UnmarshalJSON(data []byte) error {
	var parts []string
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	return d.Set(strings.Join(parts, ","))
}
