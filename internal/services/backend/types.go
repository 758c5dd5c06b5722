package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Data types accepted by the ingest endpoint.
const (
	DataPatientList      = "patient_list"
	DataPatientSummary   = "patient_summary"
	DataPatientInsurance = "patient_insurance"
)

// ID is an identifier the backend may encode either as a JSON string or a
// JSON number.
type ID string

// UnmarshalJSON accepts strings, numbers, and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("backend id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Credential is one set of login fields for a target system.
type Credential struct {
	SystemKey string            `json:"systemKey"`
	Fields    map[string]string `json:"fields"`
}

// UnmarshalJSON tolerates non-string field values by rendering them as text.
func (c *Credential) UnmarshalJSON(data []byte) error {
	var raw struct {
		SystemKey string         `json:"systemKey"`
		Fields    map[string]any `json:"fields"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.SystemKey = raw.SystemKey
	c.Fields = make(map[string]string, len(raw.Fields))
	for k, v := range raw.Fields {
		switch val := v.(type) {
		case nil:
			c.Fields[k] = ""
		case string:
			c.Fields[k] = val
		default:
			c.Fields[k] = fmt.Sprint(val)
		}
	}
	return nil
}

// Hospital is one configured extraction target.
type Hospital struct {
	Type        string       `json:"type"`
	Enabled     *bool        `json:"enabled,omitempty"`
	Credentials []Credential `json:"credentials,omitempty"`
}

// IsEnabled treats an absent flag as enabled.
func (h Hospital) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// NormalizedType returns the upper-cased target type, or UNKNOWN when blank.
func (h Hospital) NormalizedType() string {
	t := strings.ToUpper(strings.TrimSpace(h.Type))
	if t == "" {
		return "UNKNOWN"
	}
	return t
}

// Assignment is the registration response.
type Assignment struct {
	DoctorID   ID     `json:"doctorId"`
	DoctorName string `json:"doctorName"`
}

// Assigned reports whether a doctor is bound to this node.
func (a Assignment) Assigned() bool { return a.DoctorID != "" }

// NodeConfig is the per-cycle configuration refresh.
type NodeConfig struct {
	DoctorID        ID           `json:"doctorId"`
	DoctorName      string       `json:"doctorName"`
	DoctorSpecialty string       `json:"doctorSpecialty"`
	Credentials     []Credential `json:"credentials"`
	Hospitals       []Hospital   `json:"hospitals"`
}

// Assigned reports whether a doctor is bound to this node.
func (c NodeConfig) Assigned() bool { return c.DoctorID != "" }

// CredentialsFor returns the credentials whose systemKey matches the target
// type, ignoring case. Credentials listed on the hospital entry itself come
// first.
func (c NodeConfig) CredentialsFor(h Hospital) []Credential {
	out := make([]Credential, 0, len(h.Credentials)+1)
	out = append(out, h.Credentials...)
	out = append(out, FilterCredentials(c.Credentials, h.NormalizedType())...)
	return out
}

// FilterCredentials keeps the entries whose systemKey equals systemKey,
// ignoring case.
func FilterCredentials(creds []Credential, systemKey string) []Credential {
	key := strings.TrimSpace(systemKey)
	var out []Credential
	for _, c := range creds {
		if strings.EqualFold(strings.TrimSpace(c.SystemKey), key) {
			out = append(out, c)
		}
	}
	return out
}

type registerRequest struct {
	UUID     string `json:"uuid"`
	Hostname string `json:"hostname"`
}

type ingestRequest struct {
	UUID         string `json:"uuid"`
	DataType     string `json:"dataType"`
	HospitalType string `json:"hospitalType"`
	Payload      any    `json:"payload"`
}

type errorRequest struct {
	UUID          string  `json:"uuid"`
	HospitalType  string  `json:"hospitalType"`
	Error         string  `json:"error"`
	ScreenshotURL *string `json:"screenshotUrl"`
}
