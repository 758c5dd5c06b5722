package extraction

import (
	"strings"
	"time"

	"rpanode/internal/config"
)

// Settings tune the cycle loop.
type Settings struct {
	Interval         time.Duration
	HospitalPause    time.Duration
	EmptyConfigRetry time.Duration
	TaskTimeout      time.Duration
	SkipPatientList  bool
	SkipSummaries    bool
	SkipInsurance    bool
	DisabledTypes    []string
}

// DefaultSettings matches the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		Interval:         time.Hour,
		HospitalPause:    5 * time.Second,
		EmptyConfigRetry: time.Minute,
		TaskTimeout:      2 * time.Hour,
	}
}

// SettingsFromConfig reads the workflow section.
func SettingsFromConfig(cfg *config.Config) Settings {
	w := cfg.Workflow
	return Settings{
		Interval:         config.Seconds(w.ExtractionInterval),
		HospitalPause:    config.Seconds(w.HospitalPause),
		EmptyConfigRetry: config.Seconds(w.EmptyConfigRetry),
		TaskTimeout:      config.Seconds(w.TaskTimeout),
		SkipPatientList:  w.SkipPatientList,
		SkipSummaries:    w.SkipBatchSummaries,
		SkipInsurance:    w.SkipBatchInsurance,
		DisabledTypes:    append([]string(nil), w.DisabledEMRTypes...),
	}
}

func (s Settings) disabled() map[string]struct{} {
	out := make(map[string]struct{}, len(s.DisabledTypes))
	for _, t := range s.DisabledTypes {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			out[t] = struct{}{}
		}
	}
	return out
}
