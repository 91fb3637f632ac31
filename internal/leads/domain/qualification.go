package domain

import (
	"encoding/json"
	"fmt"
)

// The three criteria of the CPT qualification rubric.
const (
	CriterionChallenges = "challenges"
	CriterionPriority   = "priority"
	CriterionTiming     = "timing"
)

// Qualification recommendations, derived from the configured thresholds.
const (
	RecommendationProceed    = "proceed"
	RecommendationNurture    = "nurture"
	RecommendationDisqualify = "disqualify"
)

// DefaultQualifiedStatus is the status a proceed recommendation advances the
// lead to when the framework document does not name one.
const DefaultQualifiedStatus = "qualified"

// Thresholds split the score range into proceed / nurture / disqualify.
// Boundary values are inclusive toward the higher tier.
type Thresholds struct {
	Proceed int `json:"proceed"`
	Nurture int `json:"nurture"`
}

// QualificationQuestion is the prompt shown for one criterion.
type QualificationQuestion struct {
	Criterion string `json:"criterion"`
	Prompt    string `json:"prompt"`
}

// QualificationFramework is the settings document driving CPT scoring:
// per-criterion level→points weights plus the recommendation thresholds.
type QualificationFramework struct {
	Version         int                       `json:"version"`
	QualifiedStatus string                    `json:"qualified_status,omitempty"`
	Questions       []QualificationQuestion   `json:"questions,omitempty"`
	ScoreWeights    map[string]map[string]int `json:"score_weights"`
	Thresholds      Thresholds                `json:"thresholds"`
}

// ParseQualificationFramework decodes a raw settings document. A document
// without score_weights or thresholds is malformed.
func ParseQualificationFramework(raw json.RawMessage) (QualificationFramework, error) {
	var fw QualificationFramework
	if err := json.Unmarshal(raw, &fw); err != nil {
		return QualificationFramework{}, fmt.Errorf("decode qualification framework: %w", err)
	}
	if len(fw.ScoreWeights) == 0 {
		return QualificationFramework{}, fmt.Errorf("qualification framework is missing score_weights")
	}
	if fw.Thresholds == (Thresholds{}) {
		return QualificationFramework{}, fmt.Errorf("qualification framework is missing thresholds")
	}
	if fw.QualifiedStatus == "" {
		fw.QualifiedStatus = DefaultQualifiedStatus
	}
	return fw, nil
}

// CPTAnswers holds the selected level for each of the three criteria.
type CPTAnswers struct {
	Challenges string `json:"challenges"`
	Priority   string `json:"priority"`
	Timing     string `json:"timing"`
}

// ScoreBreakdown is the weighted score per criterion plus the total.
type ScoreBreakdown struct {
	ChallengesPoints int `json:"challengesPoints"`
	PriorityPoints   int `json:"priorityPoints"`
	TimingPoints     int `json:"timingPoints"`
	Total            int `json:"total"`
}

// CalculateScore computes the weighted sum over exactly the three configured
// criteria. It is pure and order-independent; omitting a criterion or
// selecting an unknown level is an error.
func CalculateScore(fw QualificationFramework, cpt CPTAnswers) (ScoreBreakdown, error) {
	challenges, err := criterionPoints(fw, CriterionChallenges, cpt.Challenges)
	if err != nil {
		return ScoreBreakdown{}, err
	}
	priority, err := criterionPoints(fw, CriterionPriority, cpt.Priority)
	if err != nil {
		return ScoreBreakdown{}, err
	}
	timing, err := criterionPoints(fw, CriterionTiming, cpt.Timing)
	if err != nil {
		return ScoreBreakdown{}, err
	}

	return ScoreBreakdown{
		ChallengesPoints: challenges,
		PriorityPoints:   priority,
		TimingPoints:     timing,
		Total:            challenges + priority + timing,
	}, nil
}

func criterionPoints(fw QualificationFramework, criterion, level string) (int, error) {
	if level == "" {
		return 0, fmt.Errorf("criterion %s must be answered", criterion)
	}
	weights, ok := fw.ScoreWeights[criterion]
	if !ok {
		return 0, fmt.Errorf("framework has no weights for criterion %s", criterion)
	}
	points, ok := weights[level]
	if !ok {
		return 0, fmt.Errorf("unknown level %q for criterion %s", level, criterion)
	}
	return points, nil
}

// Recommendation maps a total score onto the configured thresholds.
func Recommendation(t Thresholds, score int) string {
	switch {
	case score >= t.Proceed:
		return RecommendationProceed
	case score >= t.Nurture:
		return RecommendationNurture
	default:
		return RecommendationDisqualify
	}
}
