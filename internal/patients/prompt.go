package patients

import (
	"fmt"
	"strings"
)

// Segment formats one OCR block with its context header.
func Segment(source, hospital, text string) string {
	return fmt.Sprintf("--- SOURCE: %s | HOSPITAL: %s ---\n%s", source, hospital, text)
}

// UserPrompt wraps the combined OCR text.
func UserPrompt(combined string) string {
	return "OCR TEXT TO PROCESS:\n\n" + combined
}

// SystemPrompt returns the structuring instructions for doctorName.
func SystemPrompt(doctorName string) string {
	doctorName = strings.TrimSpace(doctorName)
	if doctorName == "" {
		doctorName = "unknown"
	}
	return fmt.Sprintf(`You are a medical data extraction expert. Extract the patient list from this OCR text.
The text may contain data from one or multiple hospitals. Each section is marked with a header:
--- SOURCE: ... | HOSPITAL: ... ---

For each patient found, extract:
- name: Patient full name in "LASTNAME, FIRSTNAME" format
- location: Room/Bed code (if available)
- reason: Brief reason for visit or diagnosis (if available)
- admittedDate: Admission date in MM/DD format (if available)

Rules:
1. Ignore the requesting doctor's name (%s). It is NOT a patient.
2. Ignore headers, menu items, toolbar text, and any non-patient data.
3. If a field is not available, use null (not "Unknown" or "N/A").
4. Return ONLY a valid JSON array, no markdown fences, no extra text.
5. Format: [{"name":"LASTNAME, FIRSTNAME","location":"code","reason":"text","admittedDate":"MM/DD"}]
6. If no patients are found, return: []`, doctorName)
}
