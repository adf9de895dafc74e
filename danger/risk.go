package danger

// RiskLevel represents how strongly an extension matches a danger signature.
type RiskLevel int

const (
	RiskNone RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

func (l RiskLevel) String() string {
	switch l {
	case RiskNone:
		return "none"
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Report contains the overall assessment for one extension.
type Report struct {
	Factors []RiskFactor
	Level   RiskLevel
}

// RiskFactor describes a single signature hit.
type RiskFactor struct {
	Description string
	Signature   string
	Level       RiskLevel
}

// Dangerous reports whether the extension must be quarantined.
// Only id-based hits reach this level.
func (r Report) Dangerous() bool {
	return r.Level >= RiskHigh
}

func (r *Report) add(f RiskFactor) {
	if f.Level <= RiskNone {
		return
	}
	r.Factors = append(r.Factors, f)
	if f.Level > r.Level {
		r.Level = f.Level
	}
}
