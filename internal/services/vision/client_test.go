package vision_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"rpanode/internal/config"
	"rpanode/internal/logging"
	"rpanode/internal/services"
	"rpanode/internal/services/vision"
)

func newClient(url, key string) *vision.Client {
	return vision.New(config.OCR{
		APIKey:         key,
		Endpoint:       url + "/v1/images:annotate",
		LanguageHints:  []string{"en", "es"},
		TimeoutSeconds: 5,
	}, logging.NewNop())
}

func TestRecognizeReturnsFullText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "k-1" {
			t.Errorf("missing api key, query=%q", r.URL.RawQuery)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		reqs := body["requests"].([]any)
		first := reqs[0].(map[string]any)
		image := first["image"].(map[string]any)["content"].(string)
		if raw, _ := base64.StdEncoding.DecodeString(image); string(raw) != "png-bytes" {
			t.Errorf("unexpected image payload %q", image)
		}
		features := first["features"].([]any)
		if features[0].(map[string]any)["type"] != "DOCUMENT_TEXT_DETECTION" {
			t.Errorf("unexpected features %v", features)
		}
		_, _ = w.Write([]byte(`{"responses":[{"fullTextAnnotation":{"text":"DOE, JANE 4W-12"}}]}`))
	}))
	defer server.Close()

	text, err := newClient(server.URL, "k-1").Recognize(context.Background(), []byte("png-bytes"))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if text != "DOE, JANE 4W-12" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestRecognizeEmptyAnnotation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"responses":[{}]}`))
	}))
	defer server.Close()

	text, err := newClient(server.URL, "k").Recognize(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty text, got %q", text)
	}
}

func TestRecognizeAPIErrorIsExtractionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"responses":[{"error":{"code":3,"message":"Bad image data."}}]}`))
	}))
	defer server.Close()

	_, err := newClient(server.URL, "k").Recognize(context.Background(), []byte("x"))
	if !errors.Is(err, services.ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}

func TestRecognizeHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusForbidden)
	}))
	defer server.Close()

	_, err := newClient(server.URL, "k").Recognize(context.Background(), []byte("x"))
	if !errors.Is(err, services.ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}

func TestRecognizeRequiresKey(t *testing.T) {
	_, err := newClient("http://127.0.0.1:1", "").Recognize(context.Background(), []byte("x"))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestRecognizeDocumentJoinsPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/files:annotate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Requests []struct {
				InputConfig struct {
					MimeType string `json:"mimeType"`
				} `json:"inputConfig"`
				Pages []int `json:"pages"`
			} `json:"requests"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if got := body.Requests[0].InputConfig.MimeType; got != "application/pdf" {
			t.Errorf("unexpected mime type %q", got)
		}
		if len(body.Requests[0].Pages) != 5 {
			t.Errorf("unexpected pages %v", body.Requests[0].Pages)
		}
		_, _ = w.Write([]byte(`{"responses":[{"responses":[
			{"fullTextAnnotation":{"text":"page one"}},
			{"fullTextAnnotation":{"text":"   "}},
			{},
			{"fullTextAnnotation":{"text":"page four"}}
		]}]}`))
	}))
	defer server.Close()

	text, err := newClient(server.URL, "k-1").RecognizeDocument(context.Background(), []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("RecognizeDocument: %v", err)
	}
	if text != "page one\npage four" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestRecognizeRejectsEmptyContent(t *testing.T) {
	_, err := newClient("http://127.0.0.1:1", "k").RecognizeDocument(context.Background(), nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
