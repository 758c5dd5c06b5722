package patients

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"rpanode/internal/logging"
	"rpanode/internal/services"
)

// Recognizer turns an image into text.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Completer answers a system/user prompt pair.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Shot is one captured census screenshot and the hospital label it shows.
type Shot struct {
	Label string
	Image []byte
}

// Extractor combines OCR and the LLM into a patient list.
type Extractor struct {
	OCR    Recognizer
	LLM    Completer
	Logger *slog.Logger
}

// Extract runs OCR over shots, structures the combined text, and cleans the
// result against doctorName. No shots, or no text in any of them, yields an
// empty list without calling the LLM.
func (e *Extractor) Extract(ctx context.Context, source string, shots []Shot, doctorName string) ([]Patient, error) {
	logger := e.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if len(shots) == 0 {
		logging.WarnWithContext(logger, "no screenshots to extract", "extraction_empty",
			logging.String(logging.FieldImpact, "patient list will be empty"))
		return nil, nil
	}
	if e.OCR == nil || e.LLM == nil {
		return nil, services.Wrap(services.ErrConfiguration, "patients", "extract", "ocr and llm collaborators are required", nil)
	}

	segments := make([]string, 0, len(shots))
	for idx, shot := range shots {
		label := strings.TrimSpace(shot.Label)
		if label == "" {
			label = fmt.Sprintf("Hospital_%d", idx+1)
		}
		if len(shot.Image) == 0 {
			logger.Warn("screenshot has no image data",
				logging.String(logging.FieldEventType, "extraction_shot_empty"),
				logging.String(logging.FieldErrorHint, "check the screen driver screenshot verb"),
				logging.String(logging.FieldImpact, "screenshot skipped"),
				logging.String("label", label),
			)
			continue
		}
		text, err := e.OCR.Recognize(ctx, shot.Image)
		if err != nil {
			return nil, services.Wrap(services.ErrExtraction, "patients", "ocr", "Google Vision OCR failed for "+label, err)
		}
		if strings.TrimSpace(text) == "" {
			logger.Warn("ocr returned empty text",
				logging.String(logging.FieldEventType, "extraction_ocr_empty"),
				logging.String(logging.FieldErrorHint, "verify the census view was visible when captured"),
				logging.String(logging.FieldImpact, "screenshot skipped"),
				logging.String("label", label),
			)
			continue
		}
		segments = append(segments, Segment(source, label, text))
		logger.Debug("ocr segment extracted", logging.String("label", label), logging.Int("chars", len(text)))
	}
	if len(segments) == 0 {
		logging.WarnWithContext(logger, "no ocr text extracted from any screenshot", "extraction_empty",
			logging.String(logging.FieldImpact, "patient list will be empty"))
		return nil, nil
	}

	return e.Structure(ctx, strings.Join(segments, "\n\n"), doctorName)
}

// Structure asks the LLM to turn OCR text into patients and cleans the result
// against doctorName.
func (e *Extractor) Structure(ctx context.Context, text, doctorName string) ([]Patient, error) {
	logger := e.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if e.LLM == nil {
		return nil, services.Wrap(services.ErrConfiguration, "patients", "structure", "llm collaborator is required", nil)
	}
	answer, err := e.LLM.Complete(ctx, SystemPrompt(doctorName), UserPrompt(text))
	if err != nil {
		return nil, services.Wrap(services.ErrExtraction, "patients", "structure", "Failed to structure patient list with LLM", err)
	}
	decoded, err := Decode(answer)
	if err != nil {
		return nil, services.Wrap(services.ErrExtraction, "patients", "structure", "Failed to structure patient list with LLM", err)
	}
	cleaned := Clean(decoded, doctorName)
	logger.Info("patients extracted",
		logging.String(logging.FieldEventType, "extraction_complete"),
		logging.Int("chars", len(text)),
		logging.Int("raw_count", len(decoded)),
		logging.Int("patient_count", len(cleaned)),
	)
	return cleaned, nil
}
