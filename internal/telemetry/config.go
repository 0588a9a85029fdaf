package telemetry

import (
	"os"
)

var (
	diagnosticsEnabled bool
	observeEnabled     bool
	featuresEnabled    bool
)

func init() {
	// Read once at process start. Mid-run environment changes have no effect.
	diagnosticsEnabled = os.Getenv("AGT_DIAGNOSTICS") == "1"

	// Observe: default to 1 when diagnostics=1 and AGT_OBSERVE_JSON is unset; honour explicit 0/1.
	if v, ok := os.LookupEnv("AGT_OBSERVE_JSON"); ok {
		observeEnabled = (v == "1")
	} else {
		observeEnabled = diagnosticsEnabled
	}

	// Text features: default to 1 when diagnostics=1 and AGT_TEXT_FEATURES is unset; honour explicit 0/1.
	if v, ok := os.LookupEnv("AGT_TEXT_FEATURES"); ok {
		featuresEnabled = (v == "1")
	} else {
		featuresEnabled = diagnosticsEnabled
	}
}

// DiagnosticsEnabled reports whether diagnostics mode was enabled at startup.
func DiagnosticsEnabled() bool { return diagnosticsEnabled }

// ObserveEnabled reports whether JSONL emission was enabled at startup, considering diagnostics defaults.
func ObserveEnabled() bool {
	// Preserve startup-evaluated default, but allow tests to enable mid-run via env override.
	if os.Getenv("AGT_OBSERVE_JSON") == "1" {
		return true
	}
	return observeEnabled
}

// FeaturesEnabled reports whether per-pass text feature events were enabled at startup.
func FeaturesEnabled() bool {
	if os.Getenv("AGT_TEXT_FEATURES") == "1" {
		return true
	}
	return featuresEnabled
}
