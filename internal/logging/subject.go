package logging

import "strings"

// FormatSubject builds the hospital/flow/step subject string used in console output.
func FormatSubject(hospital, flow, step string) string {
	hospital = strings.ToUpper(strings.TrimSpace(hospital))
	flow = strings.TrimSpace(flow)
	step = strings.TrimSpace(step)
	parts := make([]string, 0, 2)
	if hospital != "" {
		parts = append(parts, hospital)
	}
	switch {
	case flow != "" && step != "":
		parts = append(parts, flow+" ("+step+")")
	case flow != "":
		parts = append(parts, flow)
	case step != "":
		parts = append(parts, step)
	}
	return strings.Join(parts, " · ")
}
