// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bench

import (
	"fmt"
	"strings"
)

// FormatBytes renders a hex dump, 16 bytes per line
func FormatBytes(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	var sb strings.Builder
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			sb.WriteString("\n")
		} else if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// FormatFrame formats a validated frame into a human-readable string
func FormatFrame(family string, f *Frame) string {
	result := fmt.Sprintf("%s addr=%d code=0x%02X len=%d\n", family, f.Address, f.Code, len(f.Payload))
	if len(f.Payload) > 0 {
		result += "  Payload: " + strings.ReplaceAll(FormatBytes(f.Payload), "\n", "\n           ") + "\n"
	}
	return result
}

// FormatRecord formats a decoded record
func FormatRecord(rec Record) string {
	switch v := rec.(type) {
	case nil:
		return "(no record)"
	case Ack:
		return "ACK"
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%+v", v)
	}
}
