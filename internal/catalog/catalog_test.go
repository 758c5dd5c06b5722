package catalog_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rpanode/internal/catalog"
	"rpanode/internal/services"
	"rpanode/internal/waiter"
)

func TestSampleCatalogParses(t *testing.T) {
	cat, err := catalog.Parse(catalog.Sample(), "/opt/rpanode")
	if err != nil {
		t.Fatalf("Parse sample: %v", err)
	}
	for _, hospital := range []string{"steward", "jackson", "baptist"} {
		if _, ok := cat.Hospital(hospital); !ok {
			t.Fatalf("sample is missing %s", hospital)
		}
	}
	if len(cat.Guards()) != 3 {
		t.Fatalf("expected 3 guards, got %d", len(cat.Guards()))
	}
	if cat.Checksum == "" {
		t.Fatal("expected checksum")
	}
}

func TestTemplateResolvesRelativeToCatalogAndFallsBackToCommon(t *testing.T) {
	cat, err := catalog.Parse(catalog.Sample(), "/opt/rpanode")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	tab, err := cat.Template("STEWARD", "tab")
	if err != nil {
		t.Fatalf("Template: %v", err)
	}
	if tab.Name != "tab" || tab.Path != filepath.Join("/opt/rpanode", "images/steward/tab.png") {
		t.Fatalf("unexpected template %+v", tab)
	}
	if tab.Confidence != catalog.DefaultConfidence {
		t.Fatalf("expected default confidence, got %v", tab.Confidence)
	}

	search, err := cat.Template("jackson", "patient_search")
	if err != nil {
		t.Fatalf("Template: %v", err)
	}
	if !strings.Contains(search.Path, "images/jackson/") {
		t.Fatalf("hospital template should win over common, got %s", search.Path)
	}
	search, err = cat.Template("baptist", "patient_search")
	if err != nil {
		t.Fatalf("Template: %v", err)
	}
	if !strings.Contains(search.Path, "images/common/") {
		t.Fatalf("expected common fallback, got %s", search.Path)
	}
}

func TestMissingTemplateIsConfigurationError(t *testing.T) {
	cat, err := catalog.Parse(catalog.Sample(), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	_, err = cat.Template("baptist", "no_such_button")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestTimeoutAndRescueOverrides(t *testing.T) {
	cat, err := catalog.Parse([]byte(`
hospitals:
  jackson:
    templates:
      header: { path: header.png }
    timeouts:
      app: 45
    rescue:
      attempts: 5
      settle_seconds: 20
      keys: [ctrl, w]
`), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := cat.Timeout("JACKSON", "app", time.Second); got != 45*time.Second {
		t.Fatalf("unexpected timeout %v", got)
	}
	if got := cat.Timeout("jackson", "missing", 7*time.Second); got != 7*time.Second {
		t.Fatalf("expected fallback, got %v", got)
	}

	policy := cat.Rescue("jackson", waiter.DefaultRescuePolicy())
	if policy.Attempts != 5 || policy.Settle != 20*time.Second {
		t.Fatalf("overrides not applied: %+v", policy)
	}
	if policy.AttemptTimeout != 10*time.Second || policy.Retries != 1 {
		t.Fatalf("untouched fields must keep defaults: %+v", policy)
	}
	if strings.Join(policy.Keys, "+") != "ctrl+w" {
		t.Fatalf("unexpected keys %v", policy.Keys)
	}
	if got := cat.Rescue("baptist", waiter.DefaultRescuePolicy()); got.Attempts != 3 {
		t.Fatalf("unknown hospital should keep defaults, got %+v", got)
	}
}

func TestValidateRejectsWatcherOverlapWithStepTemplate(t *testing.T) {
	_, err := catalog.Parse([]byte(`
hospitals:
  steward:
    templates:
      message_ok: { path: images/ok.png }
watcher:
  - template: stray_ok
    path: images/ok.png
`), "/cat")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if !strings.Contains(err.Error(), "steward.message_ok") {
		t.Fatalf("error should name the clashing step template: %v", err)
	}
}

func TestValidateRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"confidence": "hospitals:\n  jackson:\n    templates:\n      a: { path: a.png, confidence: 1.5 }\n",
		"path":       "hospitals:\n  jackson:\n    templates:\n      a: { confidence: 0.5 }\n",
		"timeout":    "hospitals:\n  jackson:\n    timeouts:\n      app: -1\n",
		"action":     "watcher:\n  - template: x\n    path: x.png\n    action: shout\n",
		"keys":       "watcher:\n  - template: x\n    path: x.png\n    action: keys\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := catalog.Parse([]byte(doc), ""); !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestGuardsCarryKeysOnlyForKeyAction(t *testing.T) {
	cat, err := catalog.Parse(catalog.Sample(), "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	guards := cat.Guards()
	if len(guards[0].Keys) != 0 {
		t.Fatalf("click guard must not carry keys: %+v", guards[0])
	}
	if strings.Join(guards[1].Keys, "+") != "esc" {
		t.Fatalf("unexpected keys %+v", guards[1])
	}
	if guards[2].Template.Confidence != 0.9 {
		t.Fatalf("unexpected confidence %v", guards[2].Template.Confidence)
	}
}

func TestLoadAndCreateSample(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "catalog.yaml")
	if err := catalog.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if err := catalog.CreateSample(path); err == nil {
		t.Fatal("expected refusal to overwrite an existing catalog")
	}
	cat, err := catalog.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tmpl, err := cat.Template("steward", "login_window")
	if err != nil {
		t.Fatalf("Template: %v", err)
	}
	if want := filepath.Join(dir, "nested", "images/steward/login_window.png"); tmpl.Path != want {
		t.Fatalf("path = %s, want %s", tmpl.Path, want)
	}
	if cat.SourceFile != path {
		t.Fatalf("unexpected source file %s", cat.SourceFile)
	}
	if _, err := catalog.Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat: %v", err)
	}
}
