package stage

import (
	"fmt"

	"rpanode/internal/services/backend"
)

// Name identifies one of the three extraction stages.
type Name string

const (
	PatientList    Name = "patient_list"
	BatchSummaries Name = "batch_summaries"
	BatchInsurance Name = "batch_insurance"
)

// Order lists the stages in the sequence the orchestrator runs them.
func Order() []Name {
	return []Name{PatientList, BatchSummaries, BatchInsurance}
}

// Number is the 1-based position of the stage in a cycle.
func (n Name) Number() int {
	switch n {
	case PatientList:
		return 1
	case BatchSummaries:
		return 2
	case BatchInsurance:
		return 3
	default:
		return 0
	}
}

// Label renders "Stage N (name)" for logs and error reports.
func (n Name) Label() string {
	return fmt.Sprintf("Stage %d (%s)", n.Number(), n)
}

// DataType is the ingest data type the stage delivers.
func (n Name) DataType() string {
	switch n {
	case PatientList:
		return backend.DataPatientList
	case BatchSummaries:
		return backend.DataPatientSummary
	case BatchInsurance:
		return backend.DataPatientInsurance
	default:
		return ""
	}
}
