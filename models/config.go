package models

const (
	DefaultWindowSize = 50
	DefaultThreshold  = 3.0
	DefaultMinHistory = 2
)

// DetectorConfig is fixed for the lifetime of a classifier.
type DetectorConfig struct {
	WindowSize int     `json:"window_size" mapstructure:"window_size"`
	Threshold  float64 `json:"threshold" mapstructure:"threshold"`
	// MinHistory is the number of windowed samples required before a z-score
	// is computed. Zero selects DefaultMinHistory.
	MinHistory int `json:"min_history" mapstructure:"min_history"`
}

func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		WindowSize: DefaultWindowSize,
		Threshold:  DefaultThreshold,
		MinHistory: DefaultMinHistory,
	}
}
