package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Number is a collector value that may arrive as a JSON number or a string.
// It keeps the literal text.
type Number string

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*n = Number(strings.TrimSpace(s))
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("number: %w", err)
	}
	*n = Number(num.String())
	return nil
}

// Int parses the value as an integer; nil when empty or not an integer.
func (n Number) Int() *int {
	v, err := strconv.Atoi(string(n))
	if err != nil {
		return nil
	}
	return &v
}

// InterfaceSummary is the collector's port tally
type InterfaceSummary struct {
	ConnectedPorts  json.RawMessage `json:"connected_ports,omitempty"`
	Connected       Number          `json:"connected,omitempty"`
	Disconnected    Number          `json:"disconnected,omitempty"`
	TotalInterfaces Number          `json:"total_interfaces,omitempty"`
}

// VLANSummary lists the active VLANs
type VLANSummary struct {
	TotalActiveVLANs Number          `json:"total_active_vlans,omitempty"`
	VLANs            json.RawMessage `json:"vlans,omitempty"`
}

// PerformanceInfo holds CPU load samples
type PerformanceInfo struct {
	CPUUsage Number `json:"cpu_usage,omitempty"`
	CPU5Sec  Number `json:"cpu_5_sec,omitempty"`
	CPU1Min  Number `json:"cpu_1_min,omitempty"`
	CPU5Min  Number `json:"cpu_5_min,omitempty"`
}

// CPU returns the first populated sample, preferring the current usage.
func (p PerformanceInfo) CPU() string {
	for _, v := range []Number{p.CPUUsage, p.CPU5Sec, p.CPU1Min, p.CPU5Min} {
		if v != "" {
			return string(v)
		}
	}
	return ""
}
