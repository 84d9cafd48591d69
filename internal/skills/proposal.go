package skills

import "time"

// RiskLevel classifies how much autonomy a Proposal requires before it may
// run unattended (§4.14 decision policy, §4.15 fusion rules).
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Proposal is the structured suggestion a Skill hands to the manager by
// publishing a skill.proposal event; skills never execute actions
// directly (§4.13's closing note).
type Proposal struct {
	SkillName  string                 `json:"skill_name"`
	Intent     string                 `json:"intent"`
	Confidence float64                `json:"confidence"`
	Params     map[string]interface{} `json:"params"`
	Risk       RiskLevel              `json:"risk"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata"`
}
