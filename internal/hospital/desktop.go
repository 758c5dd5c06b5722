package hospital

import (
	"context"
	"time"

	"rpanode/internal/flow"
	"rpanode/internal/logging"
	"rpanode/internal/patients"
	"rpanode/internal/services"
)

// desktop drives a desktop EMR published in the VDI (Jackson, Baptist).
type desktop struct {
	session
}

func (h *desktop) PatientList(ctx context.Context, req Request) ([]patients.Patient, error) {
	return h.runList(ctx, req, func(ctx context.Context, run *flow.Run) ([]patients.Patient, error) {
		if err := h.open(ctx, run); err != nil {
			return nil, err
		}
		if err := run.Do(ctx, "STEP_5_FULLSCREEN", func(ctx context.Context) error {
			return h.fullscreen(ctx, run)
		}); err != nil {
			return nil, err
		}
		if err := run.Do(ctx, "STEP_6_PATIENT_LIST", func(ctx context.Context) error {
			tmpl, err := h.template("patient_list_header")
			if err != nil {
				return err
			}
			policy := h.deps.Catalog.Rescue(h.kind.Key(), h.deps.Rescue)
			_, err = h.deps.Engine.RequireWithRescue(ctx, tmpl, policy, "Patient List Header", nil)
			return err
		}); err != nil {
			return nil, err
		}
		var shot []byte
		if err := run.Do(ctx, "STEP_7_CAPTURE", func(ctx context.Context) error {
			var err error
			shot, err = h.screenshot(ctx)
			return err
		}); err != nil {
			return nil, err
		}
		var list []patients.Patient
		if err := run.Do(ctx, "STEP_8_EXTRACT", func(ctx context.Context) error {
			if h.deps.Patients == nil {
				return services.Wrap(services.ErrConfiguration, "hospital", "extract", "OCR and LLM are not configured", nil)
			}
			var err error
			list, err = h.deps.Patients.Extract(ctx, "patient_list",
				[]patients.Shot{{Label: h.displayName(), Image: shot}}, run.DoctorName)
			return err
		}); err != nil {
			return nil, err
		}
		if err := run.Do(ctx, "STEP_9_NORMALSCREEN", func(ctx context.Context) error {
			return h.normalscreen(ctx, run)
		}); err != nil {
			return nil, err
		}
		if err := h.closeApp(ctx, run); err != nil {
			return nil, err
		}
		return list, nil
	})
}

func (h *desktop) Summaries(ctx context.Context, req Request, names []string) (BatchReport, error) {
	return h.runBatch(ctx, req, names, summaryBatch, h.open, h.closeApp)
}

func (h *desktop) Insurance(ctx context.Context, req Request, names []string) (BatchReport, error) {
	return h.runBatch(ctx, req, names, insuranceBatch, h.open, h.closeApp)
}

// open runs steps 1-4: lobby, VDI tab, EMR launch, and sign-in.
func (h *desktop) open(ctx context.Context, run *flow.Run) error {
	if err := run.Do(ctx, "STEP_1_LOBBY", func(ctx context.Context) error {
		return h.verifyLobby(ctx, run)
	}); err != nil {
		return err
	}
	if err := run.Do(ctx, "STEP_2_VDI_TAB", h.vdiTab); err != nil {
		return err
	}
	if err := run.Do(ctx, "STEP_3_OPEN_APP", func(ctx context.Context) error {
		return h.requireClick(ctx, "app_icon", "app", 60*time.Second, h.displayName()+" EMR", 5*time.Second)
	}); err != nil {
		return err
	}
	return run.Do(ctx, "STEP_4_LOGIN", func(ctx context.Context) error {
		return h.login(ctx, run)
	})
}

// login signs in when the EMR shows its login window. A session that is
// still signed in skips straight to the census.
func (h *desktop) login(ctx context.Context, run *flow.Run) error {
	if _, err := h.template("login_window"); err != nil {
		return nil
	}
	window, ok, err := h.waitFor(ctx, "login_window", "login_window", 45*time.Second, nil)
	if err != nil {
		return err
	}
	if !ok {
		run.Logger().Info("no login prompt; assuming session is signed in")
		return nil
	}
	label := h.displayName()
	username, err := run.CredentialField(string(h.kind), "username", label)
	if err != nil {
		return err
	}
	password, err := run.CredentialField(string(h.kind), "password", label)
	if err != nil {
		return err
	}
	if err := h.click(ctx, window, "Login Window"); err != nil {
		return err
	}
	if err := h.settle(ctx, time.Second); err != nil {
		return err
	}
	if err := h.paste(ctx, username); err != nil {
		return err
	}
	if err := h.keys(ctx, 500*time.Millisecond, "tab"); err != nil {
		return err
	}
	if err := h.paste(ctx, password); err != nil {
		return err
	}
	if err := h.settle(ctx, time.Second); err != nil {
		return err
	}
	if err := h.press(ctx, "enter"); err != nil {
		return err
	}
	return h.settle(ctx, 8*time.Second)
}

// fullscreen clicks the fullscreen button and confirms the normalscreen
// button replaced it. Failure to confirm only costs screenshot quality, so
// it is logged and the flow continues.
func (h *desktop) fullscreen(ctx context.Context, run *flow.Run) error {
	full, errFull := h.template("fullscreen_btn")
	normal, errNormal := h.template("normalscreen_btn")
	if errFull != nil || errNormal != nil {
		logging.WarnWithContext(run.Logger(), "fullscreen templates not configured", "fullscreen_unconfigured",
			logging.String(logging.FieldImpact, "census captured in windowed mode"))
		return nil
	}
	const attempts = 3
	for attempt := 1; attempt <= attempts; attempt++ {
		region, ok, err := h.driver().Locate(ctx, full)
		if err == nil && ok {
			if err := h.click(ctx, region, "Fullscreen Button"); err != nil {
				return err
			}
			if err := h.settle(ctx, 2*time.Second); err != nil {
				return err
			}
		}
		if h.deps.Engine.Exists(ctx, normal) {
			run.Logger().Info("fullscreen confirmed", logging.Int("attempt", attempt))
			return nil
		}
		if attempt < attempts {
			if err := h.settle(ctx, time.Second); err != nil {
				return err
			}
		}
	}
	logging.WarnWithContext(run.Logger(), "fullscreen not confirmed", "fullscreen_failed",
		logging.Int("attempts", attempts),
		logging.String(logging.FieldImpact, "census captured in windowed mode"))
	return nil
}

func (h *desktop) normalscreen(ctx context.Context, run *flow.Run) error {
	tmpl, err := h.template("normalscreen_btn")
	if err != nil {
		return nil
	}
	region, ok, err := h.driver().Locate(ctx, tmpl)
	if err != nil || !ok {
		logging.WarnWithContext(run.Logger(), "normalscreen button not found", "normalscreen_missing",
			logging.String(logging.FieldImpact, "EMR left in fullscreen"))
		return nil
	}
	if err := h.click(ctx, region, "Normalscreen Button"); err != nil {
		return err
	}
	return h.settle(ctx, time.Second)
}

func (h *desktop) closeApp(ctx context.Context, run *flow.Run) error {
	return run.Do(ctx, "STEP_10_CLOSE_APP", func(ctx context.Context) error {
		if err := h.hotkey(ctx, "alt", "f4"); err != nil {
			return err
		}
		return h.settle(ctx, 3*time.Second)
	})
}
