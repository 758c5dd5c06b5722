package catalog

import (
	"crypto/sha256"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rpanode/internal/screen"
	"rpanode/internal/services"
	"rpanode/internal/waiter"
	"rpanode/internal/watcher"
)

//go:embed sample_catalog.yaml
var sampleCatalog []byte

// CommonSection holds templates shared by every hospital.
const CommonSection = "common"

// DefaultConfidence applies to entries that omit confidence.
const DefaultConfidence = 0.8

// Entry is one template image.
type Entry struct {
	Path       string  `yaml:"path"`
	Confidence float64 `yaml:"confidence"`
}

// RescueOverride replaces individual fields of the configured rescue policy.
type RescueOverride struct {
	Attempts       *int     `yaml:"attempts"`
	AttemptTimeout *int     `yaml:"attempt_timeout"`
	Retries        *int     `yaml:"retries"`
	SettleSeconds  *int     `yaml:"settle_seconds"`
	Keys           []string `yaml:"keys"`
}

// Hospital is one hospital section.
type Hospital struct {
	DisplayName string           `yaml:"display_name"`
	LobbyURL    string           `yaml:"lobby_url"`
	PrintOutput string           `yaml:"print_output"`
	Templates   map[string]Entry `yaml:"templates"`
	Timeouts    map[string]int   `yaml:"timeouts"`
	Rescue      *RescueOverride  `yaml:"rescue"`
}

// GuardEntry is a disruptive dialog the watcher dismisses. Action is "click"
// (default) or "keys".
type GuardEntry struct {
	Template    string   `yaml:"template"`
	Path        string   `yaml:"path"`
	Confidence  float64  `yaml:"confidence"`
	Description string   `yaml:"description"`
	Action      string   `yaml:"action"`
	Keys        []string `yaml:"keys"`
}

// Catalog is the parsed template catalog.
type Catalog struct {
	DefaultConfidence float64             `yaml:"default_confidence"`
	Hospitals         map[string]Hospital `yaml:"hospitals"`
	Watcher           []GuardEntry        `yaml:"watcher"`

	Checksum   string `yaml:"-"`
	SourceFile string `yaml:"-"`
}

// Load reads and validates the catalog at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	cat, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	cat.SourceFile = path
	return cat, nil
}

// Parse decodes catalog YAML, resolving relative image paths against dir.
func Parse(data []byte, dir string) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	cat.Checksum = fmt.Sprintf("%x", sha256.Sum256(data))
	cat.normalize(dir)
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

func (c *Catalog) normalize(dir string) {
	if c.DefaultConfidence <= 0 {
		c.DefaultConfidence = DefaultConfidence
	}
	normalized := make(map[string]Hospital, len(c.Hospitals))
	for name, h := range c.Hospitals {
		templates := make(map[string]Entry, len(h.Templates))
		for key, entry := range h.Templates {
			entry.Path = resolve(dir, entry.Path)
			if entry.Confidence == 0 {
				entry.Confidence = c.DefaultConfidence
			}
			templates[key] = entry
		}
		h.Templates = templates
		if h.PrintOutput != "" {
			h.PrintOutput = expandHome(h.PrintOutput)
		}
		normalized[strings.ToLower(strings.TrimSpace(name))] = h
	}
	c.Hospitals = normalized
	for i := range c.Watcher {
		g := &c.Watcher[i]
		g.Path = resolve(dir, g.Path)
		if g.Confidence == 0 {
			g.Confidence = c.DefaultConfidence
		}
		g.Action = strings.ToLower(strings.TrimSpace(g.Action))
		if g.Action == "" {
			g.Action = "click"
		}
	}
}

// Validate checks template entries, timeouts, and that no watcher guard
// shares an image with a step template.
func (c *Catalog) Validate() error {
	var problems []string
	stepPaths := make(map[string]string)
	for _, name := range c.hospitalNames() {
		h := c.Hospitals[name]
		for _, key := range sortedKeys(h.Templates) {
			entry := h.Templates[key]
			if strings.TrimSpace(entry.Path) == "" {
				problems = append(problems, fmt.Sprintf("%s.%s: path is required", name, key))
			}
			if entry.Confidence <= 0 || entry.Confidence > 1 {
				problems = append(problems, fmt.Sprintf("%s.%s: confidence must be in (0, 1]", name, key))
			}
			stepPaths[entry.Path] = name + "." + key
		}
		for step, secs := range h.Timeouts {
			if secs <= 0 {
				problems = append(problems, fmt.Sprintf("%s.timeouts.%s: must be positive", name, step))
			}
		}
	}
	seen := make(map[string]bool)
	for i, g := range c.Watcher {
		label := g.Template
		if label == "" {
			label = fmt.Sprintf("watcher[%d]", i)
			problems = append(problems, label+": template name is required")
		}
		if seen[g.Template] {
			problems = append(problems, label+": duplicate guard")
		}
		seen[g.Template] = true
		if strings.TrimSpace(g.Path) == "" {
			problems = append(problems, label+": path is required")
		}
		if g.Confidence <= 0 || g.Confidence > 1 {
			problems = append(problems, label+": confidence must be in (0, 1]")
		}
		switch g.Action {
		case "click":
		case "keys":
			if len(g.Keys) == 0 {
				problems = append(problems, label+": keys action needs at least one key")
			}
		default:
			problems = append(problems, fmt.Sprintf("%s: unknown action %q", label, g.Action))
		}
		if owner, clash := stepPaths[g.Path]; clash && g.Path != "" {
			problems = append(problems, fmt.Sprintf("%s: image is also the step template %s", label, owner))
		}
	}
	if len(problems) > 0 {
		return services.Wrap(services.ErrConfiguration, "catalog", "validate",
			strings.Join(problems, "; "), nil)
	}
	return nil
}

// Hospital returns the section for hospital, matched case-insensitively.
func (c *Catalog) Hospital(hospital string) (Hospital, bool) {
	h, ok := c.Hospitals[strings.ToLower(strings.TrimSpace(hospital))]
	return h, ok
}

// Template resolves name for hospital, falling back to the common section.
func (c *Catalog) Template(hospital, name string) (screen.Template, error) {
	for _, section := range []string{hospital, CommonSection} {
		h, ok := c.Hospital(section)
		if !ok {
			continue
		}
		if entry, ok := h.Templates[name]; ok {
			return screen.Template{Name: name, Path: entry.Path, Confidence: entry.Confidence}, nil
		}
	}
	return screen.Template{}, services.Wrap(services.ErrConfiguration, "catalog", "template",
		fmt.Sprintf("template %q not configured for %s", name, strings.ToLower(hospital)), nil)
}

// Timeout returns the configured wait for step, or fallback.
func (c *Catalog) Timeout(hospital, step string, fallback time.Duration) time.Duration {
	h, ok := c.Hospital(hospital)
	if !ok {
		return fallback
	}
	if secs, ok := h.Timeouts[step]; ok && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

// Rescue applies the hospital's overrides to defaults.
func (c *Catalog) Rescue(hospital string, defaults waiter.RescuePolicy) waiter.RescuePolicy {
	h, ok := c.Hospital(hospital)
	if !ok || h.Rescue == nil {
		return defaults
	}
	o := h.Rescue
	if o.Attempts != nil {
		defaults.Attempts = *o.Attempts
	}
	if o.AttemptTimeout != nil {
		defaults.AttemptTimeout = time.Duration(*o.AttemptTimeout) * time.Second
	}
	if o.Retries != nil {
		defaults.Retries = *o.Retries
	}
	if o.SettleSeconds != nil {
		defaults.Settle = time.Duration(*o.SettleSeconds) * time.Second
	}
	if len(o.Keys) > 0 {
		defaults.Keys = append([]string(nil), o.Keys...)
	}
	return defaults
}

// Guards converts the watcher section for the modal watcher.
func (c *Catalog) Guards() []watcher.Guard {
	guards := make([]watcher.Guard, 0, len(c.Watcher))
	for _, g := range c.Watcher {
		guard := watcher.Guard{
			Template:    screen.Template{Name: g.Template, Path: g.Path, Confidence: g.Confidence},
			Description: g.Description,
		}
		if g.Action == "keys" {
			guard.Keys = append([]string(nil), g.Keys...)
		}
		guards = append(guards, guard)
	}
	return guards
}

// Sample returns the embedded example catalog.
func Sample() []byte {
	return append([]byte(nil), sampleCatalog...)
}

// CreateSample writes the example catalog to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create catalog directory: %w", err)
		}
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("catalog already exists at %s", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat catalog: %w", err)
	}
	if err := os.WriteFile(path, sampleCatalog, 0o644); err != nil {
		return fmt.Errorf("write sample catalog: %w", err)
	}
	return nil
}

func (c *Catalog) hospitalNames() []string {
	names := make([]string, 0, len(c.Hospitals))
	for name := range c.Hospitals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func resolve(dir, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = expandHome(p)
	if filepath.IsAbs(p) || dir == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
