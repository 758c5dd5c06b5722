package hospital

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rpanode/internal/flow"
	"rpanode/internal/logging"
	"rpanode/internal/patients"
	"rpanode/internal/services"
	"rpanode/internal/services/backend"
	"rpanode/internal/waiter"
)

// ListPayload is ingested as patient_list.
type ListPayload struct {
	Status     string             `json:"status"`
	Type       string             `json:"type"`
	Patients   []patients.Patient `json:"patients"`
	Timestamp  string             `json:"timestamp"`
	DoctorName string             `json:"doctor_name,omitempty"`
}

// BatchEntry is one searched patient.
type BatchEntry struct {
	Name  string `json:"name"`
	Found bool   `json:"found"`
	Text  string `json:"text"`
}

// BatchReport is ingested as patient_summary or patient_insurance.
type BatchReport struct {
	Patients   []BatchEntry `json:"patients"`
	FoundCount int          `json:"found_count"`
	Total      int          `json:"total"`
}

// stageFlow adapts a step function to flow.Flow.
type stageFlow struct {
	s        session
	label    string
	slug     string
	dataType string
	steps    func(ctx context.Context, run *flow.Run) (flow.Result, error)
}

func (f *stageFlow) Name() string     { return f.s.displayName() + " " + f.label }
func (f *stageFlow) Type() string     { return f.s.kind.Key() + "_" + f.slug }
func (f *stageFlow) Hospital() string { return string(f.s.kind) }

func (f *stageFlow) Execute(ctx context.Context, run *flow.Run) (flow.Result, error) {
	return f.steps(ctx, run)
}

func (f *stageFlow) NotifyCompletion(ctx context.Context, run *flow.Run, result flow.Result) error {
	if f.s.deps.Backend == nil {
		return nil
	}
	if err := f.s.deps.Backend.Ingest(ctx, f.dataType, string(f.s.kind), result.Payload); err != nil {
		return err
	}
	run.Logger().Info("stage result delivered",
		logging.String(logging.FieldEventType, "ingest_sent"),
		logging.String("data_type", f.dataType),
		logging.Int("count", result.Count),
	)
	return nil
}

// runList runs a patient list flow whose steps end in an extracted list.
func (s session) runList(ctx context.Context, req Request, steps func(context.Context, *flow.Run) ([]patients.Patient, error)) ([]patients.Patient, error) {
	var extracted []patients.Patient
	f := &stageFlow{
		s:        s,
		label:    "patient list",
		slug:     "patient_list",
		dataType: backend.DataPatientList,
		steps: func(ctx context.Context, run *flow.Run) (flow.Result, error) {
			list, err := steps(ctx, run)
			if err != nil {
				return flow.Result{}, err
			}
			if list == nil {
				list = []patients.Patient{}
			}
			extracted = list
			return flow.Result{
				Payload: ListPayload{
					Status:     "completed",
					Type:       s.kind.Key() + "_patient_list",
					Patients:   list,
					Timestamp:  s.deps.Engine.Clock().Now().Format("20060102_150405"),
					DoctorName: run.DoctorName,
				},
				Count: len(list),
			}, nil
		},
	}
	if _, err := s.deps.Runner.Run(ctx, f, req.params(nil)); err != nil {
		return nil, err
	}
	return extracted, nil
}

type batchKind struct {
	label     string
	slug      string
	dataType  string
	insurance bool
}

var (
	summaryBatch = batchKind{
		label:    "batch summaries",
		slug:     "batch_summaries",
		dataType: backend.DataPatientSummary,
	}
	insuranceBatch = batchKind{
		label:     "batch insurance",
		slug:      "batch_insurance",
		dataType:  backend.DataPatientInsurance,
		insurance: true,
	}
)

// runBatch opens the EMR, captures every patient's chart, and closes the EMR.
func (s session) runBatch(ctx context.Context, req Request, names []string, kind batchKind,
	open, closeEMR func(context.Context, *flow.Run) error) (BatchReport, error) {
	var report BatchReport
	f := &stageFlow{
		s:        s,
		label:    kind.label,
		slug:     kind.slug,
		dataType: kind.dataType,
		steps: func(ctx context.Context, run *flow.Run) (flow.Result, error) {
			if s.deps.Patients == nil || s.deps.Patients.OCR == nil {
				return flow.Result{}, services.Wrap(services.ErrConfiguration, "hospital", kind.slug, "OCR is not configured", nil)
			}
			if err := open(ctx, run); err != nil {
				return flow.Result{}, err
			}
			report = BatchReport{Total: len(run.PatientNames), Patients: make([]BatchEntry, 0, len(run.PatientNames))}
			for idx, name := range run.PatientNames {
				entry, err := s.capturePatient(ctx, run, idx, name, kind)
				if err != nil {
					return flow.Result{}, err
				}
				if entry.Found {
					report.FoundCount++
				}
				report.Patients = append(report.Patients, entry)
			}
			if err := closeEMR(ctx, run); err != nil {
				return flow.Result{}, err
			}
			return flow.Result{Payload: report, Count: report.FoundCount}, nil
		},
	}
	if _, err := s.deps.Runner.Run(ctx, f, req.params(names)); err != nil {
		return BatchReport{}, err
	}
	return report, nil
}

func (s session) capturePatient(ctx context.Context, run *flow.Run, idx int, name string, kind batchKind) (BatchEntry, error) {
	entry := BatchEntry{Name: name}
	step := fmt.Sprintf("STEP_PATIENT_%02d", idx+1)
	err := run.Do(ctx, step, func(ctx context.Context) error {
		if strings.TrimSpace(name) == "" {
			return nil
		}
		if err := s.requireClick(ctx, "patient_search", "search", 30*time.Second, "Patient Search", time.Second); err != nil {
			return err
		}
		if err := s.hotkey(ctx, "ctrl", "a"); err != nil {
			return err
		}
		if err := s.paste(ctx, name); err != nil {
			return err
		}
		if err := s.settle(ctx, 500*time.Millisecond); err != nil {
			return err
		}
		if err := s.press(ctx, "enter"); err != nil {
			return err
		}
		if err := s.settle(ctx, 2*time.Second); err != nil {
			return err
		}

		_, found, err := s.waitFor(ctx, "patient_chart", "chart", 20*time.Second, s.notFoundTable())
		if err != nil {
			return err
		}
		if !found {
			logging.WarnWithContext(run.Logger(), "patient chart not found", "patient_not_found",
				logging.String("patient", name),
				logging.String(logging.FieldImpact, "patient recorded as not found"),
			)
			if err := s.press(ctx, "esc"); err != nil {
				return err
			}
			return s.settle(ctx, time.Second)
		}

		if kind.insurance {
			if err := s.requireClick(ctx, "insurance_tab", "insurance_tab", 15*time.Second, "Insurance Tab", 2*time.Second); err != nil {
				return err
			}
		}
		png, err := s.screenshot(ctx)
		if err != nil {
			return err
		}
		text, err := s.deps.Patients.OCR.Recognize(ctx, png)
		if err != nil {
			return services.Wrap(services.ErrExtraction, "hospital", kind.slug, "OCR failed for "+name, err)
		}
		entry.Found = true
		entry.Text = strings.TrimSpace(text)
		return s.closeChart(ctx)
	})
	return entry, err
}

func (s session) notFoundTable() waiter.Table {
	tmpl, err := s.template("patient_not_found")
	if err != nil {
		return nil
	}
	return waiter.Table{{
		Template:    tmpl,
		Description: "patient not found dialog",
		Handler: waiter.PressKeys{
			Input:  s.driver(),
			Keys:   []string{"esc"},
			Settle: time.Second,
			Clock:  s.deps.Engine.Clock(),
		},
	}}
}

func (s session) closeChart(ctx context.Context) error {
	tmpl, err := s.template("close_chart")
	if err == nil {
		if region, ok := s.deps.Engine.WaitFor(ctx, tmpl, 5*time.Second, nil); ok {
			if err := s.click(ctx, region, "Close Chart"); err != nil {
				return err
			}
			return s.settle(ctx, 2*time.Second)
		}
	}
	if err := s.press(ctx, "esc"); err != nil {
		return err
	}
	return s.settle(ctx, 2*time.Second)
}
