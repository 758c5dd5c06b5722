package patients

import (
	"encoding/json"
	"fmt"
	"strings"

	"rpanode/internal/services/llm"
)

// Patient is one census entry.
type Patient struct {
	Name         string
	Location     string
	Reason       string
	AdmittedDate string
}

type wirePatient struct {
	Name         string  `json:"name"`
	Location     *string `json:"location"`
	Reason       *string `json:"reason"`
	AdmittedDate *string `json:"admittedDate"`
}

// MarshalJSON writes missing optional fields as null.
func (p Patient) MarshalJSON() ([]byte, error) {
	return json.Marshal(wirePatient{
		Name:         p.Name,
		Location:     optional(p.Location),
		Reason:       optional(p.Reason),
		AdmittedDate: optional(p.AdmittedDate),
	})
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// Names returns the patient names in order.
func Names(list []Patient) []string {
	out := make([]string, 0, len(list))
	for _, p := range list {
		out = append(out, p.Name)
	}
	return out
}

// Decode parses an LLM answer that must be a JSON array of patient objects.
// Code fences are stripped. Non-object entries are skipped; scalar field
// values are rendered as text.
func Decode(raw string) ([]Patient, error) {
	clean := llm.StripCodeFence(raw)
	if clean == "" {
		return nil, fmt.Errorf("empty response")
	}
	var entries []any
	if err := llm.DecodeLLMJSON(clean, &entries); err != nil {
		return nil, fmt.Errorf("LLM response is not a valid JSON array: %w", err)
	}
	out := make([]Patient, 0, len(entries))
	for _, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, Patient{
			Name:         text(obj["name"]),
			Location:     text(obj["location"]),
			Reason:       text(obj["reason"]),
			AdmittedDate: text(obj["admittedDate"]),
		})
	}
	return out, nil
}

func text(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		s := strings.TrimSpace(val)
		switch strings.ToLower(s) {
		case "null", "n/a", "unknown", "none":
			return ""
		}
		return s
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// Clean trims entries, drops blank names and the doctor's own name in either
// name order, and removes duplicates while preserving order.
func Clean(list []Patient, doctorName string) []Patient {
	doctorKey := NameKey(doctorName)
	seen := make(map[string]struct{}, len(list))
	out := make([]Patient, 0, len(list))
	for _, p := range list {
		p.Name = strings.Join(strings.Fields(p.Name), " ")
		if p.Name == "" {
			continue
		}
		if doctorKey != "" && NameKey(p.Name) == doctorKey {
			continue
		}
		key := DedupeKey(p.Name)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}
