package osint

import "github.com/vulnverified/aegis/internal/engine"

// Threat signal weights. These are fixed policy.
const (
	WeightVulnerabilities = 30
	WeightMalicious       = 50
	WeightSuspicious      = 20
)

// Level thresholds.
const (
	HighThreshold   = 50
	MediumThreshold = 20
)

// ThreatSignals are the inputs to threat scoring.
type ThreatSignals struct {
	Vulnerabilities int
	Malicious       int
	Suspicious      int
}

// AssessThreat scores the signals and attaches the level's recommendations.
func AssessThreat(s ThreatSignals) engine.ThreatAssessment {
	score := 0
	warnings := []string{}

	if s.Vulnerabilities > 0 {
		score += WeightVulnerabilities
		warnings = append(warnings, "Vulnerabilities detected in Shodan")
	}
	if s.Malicious > 0 {
		score += WeightMalicious
		warnings = append(warnings, "Malicious detections in VirusTotal")
	}
	if s.Suspicious > 0 {
		score += WeightSuspicious
		warnings = append(warnings, "Suspicious detections in VirusTotal")
	}

	level := ClassifyThreat(score)
	return engine.ThreatAssessment{
		Score:           score,
		Level:           level,
		Warnings:        warnings,
		Recommendations: Recommendations(level),
	}
}

// ClassifyThreat maps a score to HIGH (>= 50), MEDIUM (>= 20) or LOW.
func ClassifyThreat(score int) engine.ThreatLevel {
	switch {
	case score >= HighThreshold:
		return engine.ThreatHigh
	case score >= MediumThreshold:
		return engine.ThreatMedium
	default:
		return engine.ThreatLow
	}
}

// Recommendations returns the fixed actions for a level.
func Recommendations(level engine.ThreatLevel) []string {
	switch level {
	case engine.ThreatHigh:
		return []string{
			"Immediate security assessment recommended",
			"Consider implementing WAF and IDS/IPS",
			"Monitor for suspicious activity",
			"Conduct penetration testing",
		}
	case engine.ThreatMedium:
		return []string{
			"Security review recommended",
			"Ensure regular vulnerability scanning",
			"Keep systems updated and patched",
		}
	default:
		return []string{
			"Maintain current security practices",
			"Continue regular monitoring",
			"Keep systems updated",
		}
	}
}
