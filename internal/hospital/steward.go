package hospital

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"rpanode/internal/flow"
	"rpanode/internal/logging"
	"rpanode/internal/patients"
	"rpanode/internal/services"
	"rpanode/internal/waiter"
)

const stewardSystemKey = "STEWARD"

// steward drives Meditech through the Steward Horizon web client.
type steward struct {
	session
}

func (h *steward) PatientList(ctx context.Context, req Request) ([]patients.Patient, error) {
	return h.runList(ctx, req, func(ctx context.Context, run *flow.Run) ([]patients.Patient, error) {
		if err := h.openSession(ctx, run); err != nil {
			return nil, err
		}
		if err := h.navigateToList(ctx, run); err != nil {
			return nil, err
		}
		if err := run.Do(ctx, "STEP_9_PRINT_PDF", h.printPDF); err != nil {
			return nil, err
		}
		var text string
		if err := run.Do(ctx, "STEP_10_EXTRACT_TEXT", func(ctx context.Context) error {
			var err error
			text, err = h.readPrintout(ctx, run)
			return err
		}); err != nil {
			return nil, err
		}
		var list []patients.Patient
		if err := run.Do(ctx, "STEP_10B_STRUCTURE_LLM", func(ctx context.Context) error {
			if h.deps.Patients == nil {
				return services.Wrap(services.ErrConfiguration, "hospital", "structure", "LLM is not configured", nil)
			}
			var err error
			list, err = h.deps.Patients.Structure(ctx, text, run.DoctorName)
			return err
		}); err != nil {
			return nil, err
		}
		if err := h.closePrintout(ctx, run); err != nil {
			return nil, err
		}
		if err := h.closeSession(ctx, run); err != nil {
			return nil, err
		}
		return list, nil
	})
}

func (h *steward) Summaries(ctx context.Context, req Request, names []string) (BatchReport, error) {
	return h.runBatch(ctx, req, names, summaryBatch, h.openSession, h.closeSession)
}

func (h *steward) Insurance(ctx context.Context, req Request, names []string) (BatchReport, error) {
	return h.runBatch(ctx, req, names, insuranceBatch, h.openSession, h.closeSession)
}

// openSession runs steps 1-5: Steward tab, favorite, Meditech, login, and
// the Meditech session (resetting a session left open).
func (h *steward) openSession(ctx context.Context, run *flow.Run) error {
	if err := run.Do(ctx, "STEP_1_TAB_STEWARD", func(ctx context.Context) error {
		return h.requireClick(ctx, "tab", "tab", 30*time.Second, "Steward Tab", 3*time.Second)
	}); err != nil {
		return err
	}
	if err := run.Do(ctx, "STEP_2_FAVORITE_STEWARD", func(ctx context.Context) error {
		return h.requireClick(ctx, "favorite", "favorite", 30*time.Second, "Favorite Steward", 3*time.Second)
	}); err != nil {
		return err
	}
	if err := run.Do(ctx, "STEP_3_MEDITECH", func(ctx context.Context) error {
		return h.requireClick(ctx, "meditech", "meditech", 30*time.Second, "Meditech", 5*time.Second)
	}); err != nil {
		return err
	}
	if err := run.Do(ctx, "STEP_4_LOGIN", func(ctx context.Context) error {
		return h.login(ctx, run)
	}); err != nil {
		return err
	}
	return run.Do(ctx, "STEP_5_OPEN_SESSION", func(ctx context.Context) error {
		if h.visible(ctx, "status_session_open") {
			run.Logger().Info("meditech session already open; resetting")
			if err := h.requireClick(ctx, "reset_session", "", 10*time.Second, "Reset Session Button", 2*time.Second); err != nil {
				return err
			}
			if err := h.requireClick(ctx, "terminate_session", "", 10*time.Second, "Terminate Session Button", 5*time.Second); err != nil {
				return err
			}
		}
		return h.requireClick(ctx, "session_meditech", "session", 60*time.Second, "Meditech Session", 5*time.Second)
	})
}

// login enters the email, then the password. The Ctrl+Esc start menu round
// trip before the password paste gives the VDI clipboard channel time to
// sync.
func (h *steward) login(ctx context.Context, run *flow.Run) error {
	email, err := run.CredentialField(stewardSystemKey, "email", "Steward")
	if err != nil {
		return err
	}
	password, err := run.CredentialField(stewardSystemKey, "password", "Steward")
	if err != nil {
		return err
	}

	loginTmpl, err := h.template("login_window")
	if err != nil {
		return err
	}
	region, ok := h.deps.Engine.WaitFor(ctx, loginTmpl, h.timeout("login_window", 60*time.Second), nil)
	if !ok {
		logging.WarnWithContext(run.Logger(), "login window not found; refreshing page", "login_window_missing",
			logging.String(logging.FieldImpact, "retrying once after F5"))
		if err := h.press(ctx, "f5"); err != nil {
			return err
		}
		if err := h.settle(ctx, 5*time.Second); err != nil {
			return err
		}
		if region, ok = h.deps.Engine.WaitFor(ctx, loginTmpl, 30*time.Second, nil); !ok {
			return waiter.NotFound("Login window", 30*time.Second)
		}
	}
	if err := h.click(ctx, region, "Login Window"); err != nil {
		return err
	}
	if err := h.settle(ctx, time.Second); err != nil {
		return err
	}
	if err := h.paste(ctx, email); err != nil {
		return err
	}
	if err := h.settle(ctx, time.Second); err != nil {
		return err
	}
	if err := h.press(ctx, "enter"); err != nil {
		return err
	}

	field, err := h.require(ctx, "password_window", "password_window", 30*time.Second, "Password Input Field", nil)
	if err != nil {
		return err
	}
	if err := h.click(ctx, field, "Password Input Field"); err != nil {
		return err
	}
	if err := h.settle(ctx, 500*time.Millisecond); err != nil {
		return err
	}
	if err := h.hotkey(ctx, "ctrl", "esc"); err != nil {
		return err
	}
	if err := h.settle(ctx, 3*time.Second); err != nil {
		return err
	}
	if err := h.press(ctx, "esc"); err != nil {
		return err
	}
	if err := h.settle(ctx, 5*time.Second); err != nil {
		return err
	}
	if err := h.click(ctx, field, "Password Input Field"); err != nil {
		return err
	}
	if err := h.settle(ctx, 200*time.Millisecond); err != nil {
		return err
	}
	if err := h.paste(ctx, password); err != nil {
		return err
	}
	if err := h.settle(ctx, 2*time.Second); err != nil {
		return err
	}
	if err := h.press(ctx, "enter"); err != nil {
		return err
	}
	return h.settle(ctx, 8*time.Second)
}

// navigateToList runs steps 6-8 through the two Meditech menus to the
// census list.
func (h *steward) navigateToList(ctx context.Context, run *flow.Run) error {
	if err := run.Do(ctx, "STEP_6_MENU_5", func(ctx context.Context) error {
		if _, err := h.require(ctx, "load_menu_5", "menu", 60*time.Second, "Menu (step 5)", h.messageTable()); err != nil {
			return err
		}
		if err := h.settle(ctx, 2*time.Second); err != nil {
			return err
		}
		if err := h.press(ctx, "right", "down", "enter"); err != nil {
			return err
		}
		return h.settle(ctx, 3*time.Second)
	}); err != nil {
		return err
	}

	if err := run.Do(ctx, "STEP_7_MENU_6", func(ctx context.Context) error {
		menu, err := h.require(ctx, "load_menu_6", "menu", 60*time.Second, "Menu (step 6)", h.signListTable())
		if err != nil {
			return err
		}
		if err := h.settle(ctx, 2*time.Second); err != nil {
			return err
		}
		if err := h.click(ctx, menu, "Menu dropdown"); err != nil {
			return err
		}
		if err := h.settle(ctx, time.Second); err != nil {
			return err
		}
		sequences := [][]string{
			{"down", "down", "down", "down", "down", "enter"},
			{"tab", "enter"},
			{"tab", "tab", "tab", "enter"},
		}
		for _, keys := range sequences {
			if err := h.press(ctx, keys...); err != nil {
				return err
			}
			if err := h.settle(ctx, 500*time.Millisecond); err != nil {
				return err
			}
		}
		if err := h.press(ctx, "tab", "tab", "enter"); err != nil {
			return err
		}
		return h.settle(ctx, 3*time.Second)
	}); err != nil {
		return err
	}

	return run.Do(ctx, "STEP_8_LIST", func(ctx context.Context) error {
		return h.requireClick(ctx, "list", "list", 60*time.Second, "List", 2*time.Second)
	})
}

// messageTable dismisses the informative message that sometimes covers the
// first menu.
func (h *steward) messageTable() waiter.Table {
	message, err := h.template("message")
	if err != nil {
		return nil
	}
	ok, err := h.template("message_ok")
	if err != nil {
		return nil
	}
	return waiter.Table{{
		Template:    message,
		Description: "Informative Message",
		Handler:     waiter.WaitClick{Engine: h.deps.Engine, Button: ok, Timeout: 10 * time.Second, Settle: 2 * time.Second, Optional: true},
	}}
}

// signListTable handles the pending-signature prompts: the Yes/No modal is
// answered No, and the Sign List page is closed, confirming Leave Now when
// the warning follows.
func (h *steward) signListTable() waiter.Table {
	var table waiter.Table
	engine := h.deps.Engine
	if no, err := h.template("sign_list_no_btn"); err == nil {
		table = append(table, waiter.Obstacle{
			Template:    no,
			Description: "Sign List Modal (Yes/No)",
			Handler:     waiter.WaitClick{Engine: engine, Button: no, Timeout: 5 * time.Second, Settle: 2 * time.Second, Optional: true},
		})
	}
	closeBtn, errClose := h.template("close_meditech")
	leave, errLeave := h.template("leave_now_btn")
	if errClose != nil || errLeave != nil {
		return table
	}
	closeSignList := waiter.Sequence{
		waiter.WaitClick{Engine: engine, Button: closeBtn, Timeout: 10 * time.Second, Settle: 2 * time.Second, Optional: true},
		waiter.WaitClick{Engine: engine, Button: leave, Timeout: 5 * time.Second, Settle: 2 * time.Second, Optional: true},
	}
	for _, name := range []string{"sign_list", "sign_list_obstacle"} {
		tmpl, err := h.template(name)
		if err != nil {
			continue
		}
		table = append(table, waiter.Obstacle{Template: tmpl, Description: "Sign List Popup", Handler: closeSignList})
	}
	return table
}

// printPDF prints the census to the Horizon PDF printer.
func (h *steward) printPDF(ctx context.Context) error {
	if err := h.clickCenter(ctx); err != nil {
		return err
	}
	if err := h.settle(ctx, 1500*time.Millisecond); err != nil {
		return err
	}
	if err := h.hotkey(ctx, "ctrl", "p"); err != nil {
		return err
	}
	if err := h.settle(ctx, 8*time.Second); err != nil {
		return err
	}
	if !h.visible(ctx, "horizon_printer_ok") {
		if err := h.requireClick(ctx, "save_pdf_dropdown", "", 10*time.Second, "Save PDF Dropdown", 2*time.Second); err != nil {
			return err
		}
		if err := h.requireClick(ctx, "horizon_printer_option", "", 10*time.Second, "Horizon Printer Option", 2*time.Second); err != nil {
			return err
		}
	}
	if err := h.requireClick(ctx, "print_btn", "", 10*time.Second, "Print Button", 4*time.Second); err != nil {
		return err
	}
	if err := h.keys(ctx, 3*time.Second, "enter", "enter"); err != nil {
		return err
	}
	if err := h.keys(ctx, 1500*time.Millisecond, "left"); err != nil {
		return err
	}
	if err := h.press(ctx, "enter"); err != nil {
		return err
	}
	return h.settle(ctx, 10*time.Second)
}

// readPrintout OCRs the PDF the print step saved.
func (h *steward) readPrintout(ctx context.Context, run *flow.Run) (string, error) {
	path := h.hospital().PrintOutput
	if path == "" {
		return "", services.Wrap(services.ErrConfiguration, "hospital", "read printout", "print_output is not configured for steward", nil)
	}
	if h.deps.Documents == nil {
		return "", services.Wrap(services.ErrConfiguration, "hospital", "read printout", "document OCR is not configured", nil)
	}
	pdf, err := h.deps.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", services.Wrap(services.ErrExtraction, "hospital", "read printout", fmt.Sprintf("PDF file not found at: %s", path), err)
		}
		return "", services.Wrap(services.ErrExtraction, "hospital", "read printout", "Failed to read printed PDF", err)
	}
	text, err := h.deps.Documents.RecognizeDocument(ctx, pdf)
	if err != nil {
		return "", services.Wrap(services.ErrExtraction, "hospital", "read printout", "Google Vision OCR failed", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", services.Wrap(services.ErrExtraction, "hospital", "read printout", "Google Vision OCR returned empty text", nil)
	}
	run.Logger().Info("printout recognized",
		logging.Int("pdf_bytes", len(pdf)),
		logging.Int("text_chars", len(text)),
	)
	return text, nil
}

// closePrintout runs steps 11-14: the PDF tab and the print dialogs.
func (h *steward) closePrintout(ctx context.Context, run *flow.Run) error {
	if err := run.Do(ctx, "STEP_11_CLOSE_PDF_TAB", func(ctx context.Context) error {
		tab, err := h.require(ctx, "tab_pdf", "pdf_tab", 30*time.Second, "PDF Tab", nil)
		if err != nil {
			return err
		}
		if err := h.rightClick(ctx, tab, "PDF Tab"); err != nil {
			return err
		}
		return h.settle(ctx, time.Second)
	}); err != nil {
		return err
	}
	steps := []struct {
		step, template, timeoutKey, description string
	}{
		{"STEP_12_CLOSE_TAB", "close_tab", "close_tab", "Close Tab"},
		{"STEP_13_CLOSE_MODAL", "close_modal", "close_modal", "Close Modal"},
		{"STEP_14_CANCEL_MODAL", "cancel_modal", "cancel_modal", "Cancel Modal"},
	}
	for _, st := range steps {
		if err := run.Do(ctx, st.step, func(ctx context.Context) error {
			return h.requireClick(ctx, st.template, st.timeoutKey, 15*time.Second, st.description, 2*time.Second)
		}); err != nil {
			return err
		}
	}
	return nil
}

// closeSession runs steps 15-19: close Meditech, close the logged-out tab,
// reset the portal URL, and return to the VDI desktop.
func (h *steward) closeSession(ctx context.Context, run *flow.Run) error {
	if err := run.Do(ctx, "STEP_15_CLOSE_MEDITECH", h.closeMeditech); err != nil {
		return err
	}
	if err := run.Do(ctx, "STEP_16_TAB_LOGGED_OUT", func(ctx context.Context) error {
		region, ok, err := h.waitFor(ctx, "tab_logged_out", "logged_out_tab", 20*time.Second, nil)
		if err != nil {
			return err
		}
		if !ok {
			logging.WarnWithContext(run.Logger(), "logged out tab not found; trying unexpected error tab", "logged_out_tab_missing",
				logging.String(logging.FieldImpact, "closing the error tab instead"))
			region, ok, err = h.waitFor(ctx, "tab_unexpected_error", "", 10*time.Second, nil)
			if err != nil {
				return err
			}
		}
		if !ok {
			return services.Wrap(services.ErrDetectionTimeout, "hospital", "close session",
				"Neither Logged Out Tab nor Unexpected Error Tab found", nil)
		}
		if err := h.rightClick(ctx, region, "Logged Out Tab"); err != nil {
			return err
		}
		return h.settle(ctx, time.Second)
	}); err != nil {
		return err
	}
	if err := run.Do(ctx, "STEP_17_CLOSE_TAB_FINAL", func(ctx context.Context) error {
		return h.requireClick(ctx, "close_tab", "close_tab", 15*time.Second, "Close Tab", 2*time.Second)
	}); err != nil {
		return err
	}
	if err := run.Do(ctx, "STEP_18_URL", func(ctx context.Context) error {
		if err := h.requireClick(ctx, "url", "url", 15*time.Second, "URL Field", 500*time.Millisecond); err != nil {
			return err
		}
		if err := h.hotkey(ctx, "ctrl", "a"); err != nil {
			return err
		}
		if err := h.settle(ctx, 200*time.Millisecond); err != nil {
			return err
		}
		if err := h.paste(ctx, h.hospital().LobbyURL); err != nil {
			return err
		}
		if err := h.settle(ctx, 500*time.Millisecond); err != nil {
			return err
		}
		if err := h.press(ctx, "enter"); err != nil {
			return err
		}
		return h.settle(ctx, 3*time.Second)
	}); err != nil {
		return err
	}
	return run.Do(ctx, "STEP_19_VDI_TAB", h.vdiTab)
}

// closeMeditech clicks the close button twice, then up to three more times
// while it stays visible (several Meditech windows can be stacked).
func (h *steward) closeMeditech(ctx context.Context) error {
	button, err := h.require(ctx, "close_meditech", "close_meditech", 20*time.Second, "Close Meditech", nil)
	if err != nil {
		return err
	}
	for i := 0; i < 2; i++ {
		if err := h.click(ctx, button, "Close Meditech"); err != nil {
			return err
		}
		if err := h.settle(ctx, 2*time.Second); err != nil {
			return err
		}
	}
	tmpl, err := h.template("close_meditech")
	if err != nil {
		return err
	}
	for extra := 0; extra < 3; extra++ {
		region, ok := h.deps.Engine.WaitFor(ctx, tmpl, 3*time.Second, nil)
		if !ok {
			return nil
		}
		if err := h.click(ctx, region, "Close Meditech"); err != nil {
			return err
		}
		if err := h.settle(ctx, 1500*time.Millisecond); err != nil {
			return err
		}
	}
	return nil
}
