package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oliveagle/jsonpath"

	"rpanode/internal/config"
	"rpanode/internal/logging"
	"rpanode/internal/services"
)

const (
	textPath  = "$.responses[0].fullTextAnnotation.text"
	pagesPath = "$.responses[0].responses"
	errorPath = "$.responses[0].error.message"
)

var documentPages = []int{1, 2, 3, 4, 5}

// Client calls the images:annotate and files:annotate endpoints.
type Client struct {
	endpoint string
	apiKey   string
	hints    []string
	http     *http.Client
	logger   *slog.Logger
}

// New builds a client from the ocr config section.
func New(cfg config.OCR, logger *slog.Logger) *Client {
	timeout := config.Seconds(cfg.TimeoutSeconds)
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint: strings.TrimSpace(cfg.Endpoint),
		apiKey:   strings.TrimSpace(cfg.APIKey),
		hints:    append([]string(nil), cfg.LanguageHints...),
		http:     &http.Client{Timeout: timeout},
		logger:   logging.NewComponentLogger(logger, "vision"),
	}
}

type annotateRequest struct {
	Requests []imageRequest `json:"requests"`
}

type imageRequest struct {
	Image    imagePayload  `json:"image"`
	Features []feature     `json:"features"`
	Context  *imageContext `json:"imageContext,omitempty"`
}

type imagePayload struct {
	Content string `json:"content"`
}

type fileAnnotateRequest struct {
	Requests []fileRequest `json:"requests"`
}

type fileRequest struct {
	InputConfig inputConfig `json:"inputConfig"`
	Features    []feature   `json:"features"`
	Pages       []int       `json:"pages"`
}

type inputConfig struct {
	Content  string `json:"content"`
	MimeType string `json:"mimeType"`
}

type feature struct {
	Type string `json:"type"`
}

type imageContext struct {
	LanguageHints []string `json:"languageHints,omitempty"`
}

// Recognize returns the text found in image.
func (c *Client) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := c.check("recognize", image); err != nil {
		return "", err
	}
	body := annotateRequest{Requests: []imageRequest{{
		Image:    imagePayload{Content: base64.StdEncoding.EncodeToString(image)},
		Features: []feature{{Type: "DOCUMENT_TEXT_DETECTION"}},
	}}}
	if len(c.hints) > 0 {
		body.Requests[0].Context = &imageContext{LanguageHints: c.hints}
	}
	decoded, err := c.annotate(ctx, "recognize", c.endpoint, body)
	if err != nil {
		return "", err
	}
	value, err := jsonpath.JsonPathLookup(decoded, textPath)
	if err != nil {
		c.logger.Debug("no text annotation in vision response", logging.Error(err))
		return "", nil
	}
	text, _ := value.(string)
	return text, nil
}

// RecognizeDocument returns the text of the first pages of a PDF, one
// non-blank page per line group.
func (c *Client) RecognizeDocument(ctx context.Context, pdf []byte) (string, error) {
	if err := c.check("recognize document", pdf); err != nil {
		return "", err
	}
	body := fileAnnotateRequest{Requests: []fileRequest{{
		InputConfig: inputConfig{
			Content:  base64.StdEncoding.EncodeToString(pdf),
			MimeType: "application/pdf",
		},
		Features: []feature{{Type: "DOCUMENT_TEXT_DETECTION"}},
		Pages:    documentPages,
	}}}
	decoded, err := c.annotate(ctx, "recognize document", filesEndpoint(c.endpoint), body)
	if err != nil {
		return "", err
	}
	value, err := jsonpath.JsonPathLookup(decoded, pagesPath)
	if err != nil {
		return "", services.Wrap(services.ErrExtraction, "vision", "recognize document",
			"Failed to parse Google Vision response", err)
	}
	pages, _ := value.([]any)
	parts := make([]string, 0, len(pages))
	for i, page := range pages {
		text, err := jsonpath.JsonPathLookup(page, "$.fullTextAnnotation.text")
		if err != nil {
			continue
		}
		s, _ := text.(string)
		if strings.TrimSpace(s) == "" {
			continue
		}
		c.logger.Debug("document page recognized", logging.Int("page", i+1), logging.Int("chars", len(s)))
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n"), nil
}

func (c *Client) check(op string, content []byte) error {
	if c.apiKey == "" {
		return services.Wrap(services.ErrConfiguration, "vision", op,
			"Google Vision API key not found; set ocr.api_key or GOOGLE_VISION_API_KEY", nil)
	}
	if len(content) == 0 {
		return services.Wrap(services.ErrValidation, "vision", op, "empty content", nil)
	}
	return nil
}

func (c *Client) annotate(ctx context.Context, op, rawEndpoint string, body any) (any, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, services.Wrap(services.ErrExtraction, "vision", op, "encode request", err)
	}

	endpoint, err := url.Parse(rawEndpoint)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "vision", op, "invalid endpoint", err)
	}
	q := endpoint.Query()
	q.Set("key", c.apiKey)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(encoded))
	if err != nil {
		return nil, services.Wrap(services.ErrExtraction, "vision", op, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrExtraction, "vision", op, "Google Vision OCR failed", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrExtraction, "vision", op, "read response", err)
	}
	if resp.StatusCode >= 300 {
		return nil, services.Wrap(services.ErrExtraction, "vision", op,
			fmt.Sprintf("Google Vision returned %d: %s", resp.StatusCode, snippet(data)), nil)
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, services.Wrap(services.ErrExtraction, "vision", op, "decode response", err)
	}
	if msg, err := jsonpath.JsonPathLookup(decoded, errorPath); err == nil {
		if s, ok := msg.(string); ok && s != "" {
			return nil, services.Wrap(services.ErrExtraction, "vision", op, "Google Vision error: "+s, nil)
		}
	}
	return decoded, nil
}

// filesEndpoint maps the images:annotate URL onto its files:annotate sibling.
func filesEndpoint(images string) string {
	if strings.Contains(images, "images:annotate") {
		return strings.Replace(images, "images:annotate", "files:annotate", 1)
	}
	return strings.TrimRight(images, "/") + "/files:annotate"
}

func snippet(data []byte) string {
	s := strings.Join(strings.Fields(string(data)), " ")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
