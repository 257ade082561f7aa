package ir

// Version constants.
const (
	// EngineVersion is the recsync engine version, recorded in audit entries.
	EngineVersion = "0.3.0"

	// SettingsVersion is the settings history payload version.
	SettingsVersion = "1"
)
