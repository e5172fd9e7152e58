// ABOUTME: Resampler quality levels
// ABOUTME: Maps quality presets to default interpolators and parses them from config text
package resample

import "fmt"

// Quality selects a trade-off between CPU cost and interpolation accuracy
type Quality int

const (
	// QualityDefault is the zero value and behaves like QualityMedium
	QualityDefault Quality = iota
	QualityQuick
	QualityLow
	QualityMedium
	QualityHigh
)

// DefaultResampler returns the resampler used when no name is configured
func (q Quality) DefaultResampler() string {
	switch q {
	case QualityQuick:
		return "nearest"
	case QualityHigh:
		return "cubic"
	default:
		return "linear"
	}
}

func (q Quality) String() string {
	switch q {
	case QualityDefault:
		return "default"
	case QualityQuick:
		return "quick"
	case QualityLow:
		return "low"
	case QualityMedium:
		return "medium"
	case QualityHigh:
		return "high"
	default:
		return fmt.Sprintf("Quality(%d)", int(q))
	}
}

func (q *Quality) UnmarshalText(text []byte) error {
	switch string(text) {
	case "default", "":
		*q = QualityDefault
	case "quick":
		*q = QualityQuick
	case "low":
		*q = QualityLow
	case "medium":
		*q = QualityMedium
	case "high":
		*q = QualityHigh
	default:
		return fmt.Errorf("unknown resampler quality: %s", string(text))
	}
	return nil
}

func (q Quality) MarshalText() ([]byte, error) {
	switch q {
	case QualityDefault, QualityQuick, QualityLow, QualityMedium, QualityHigh:
		return []byte(q.String()), nil
	default:
		return nil, fmt.Errorf("unknown resampler quality: %v", int(q))
	}
}
