package conversation

import "time"

// Stage is one of the five ordered phases of a guided conversation.
type Stage int

const (
	StageOnboarding         Stage = 0
	StageWitness            Stage = 1
	StagePerspectiveStretch Stage = 2
	StageNeedMapping        Stage = 3
	StageStrategicRepair    Stage = 4
)

// Name returns the human-readable label for a stage.
func (s Stage) Name() string {
	switch s {
	case StageOnboarding:
		return "onboarding"
	case StageWitness:
		return "witness"
	case StagePerspectiveStretch:
		return "perspective stretch"
	case StageNeedMapping:
		return "need mapping"
	case StageStrategicRepair:
		return "strategic repair"
	default:
		return "unknown"
	}
}

// ProgressStatus describes a participant's standing within one stage.
type ProgressStatus string

const (
	ProgressNotStarted  ProgressStatus = "NOT_STARTED"
	ProgressInProgress  ProgressStatus = "IN_PROGRESS"
	ProgressGatePending ProgressStatus = "GATE_PENDING"
	ProgressCompleted   ProgressStatus = "COMPLETED"
)

// GateCompactSigned is the stage-0 gate key: the participant has signed the
// conversation compact.
const GateCompactSigned = "compactSigned"

// StageProgress is one record per (session, participant, stage). The
// highest-stage record determines the participant's current stage.
type StageProgress struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"sessionId"`
	UserID      string         `json:"userId"`
	Stage       Stage          `json:"stage"`
	Status      ProgressStatus `json:"status"`
	Gates       map[string]any `json:"gatesSatisfied,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// GateSatisfied reports whether the named gate is recorded as met. Gate
// values may be booleans or timestamps depending on the stage.
func (p StageProgress) GateSatisfied(key string) bool {
	if p.Gates == nil {
		return false
	}
	switch v := p.Gates[key].(type) {
	case bool:
		return v
	case string:
		return v != ""
	case time.Time:
		return !v.IsZero()
	default:
		return v != nil
	}
}

// EmpathyDraft holds a participant's in-progress empathy statement for a
// session. Content stays private until ReadyToShare is explicitly confirmed.
type EmpathyDraft struct {
	SessionID    string    `json:"sessionId"`
	UserID       string    `json:"userId"`
	Content      string    `json:"content"`
	ReadyToShare bool      `json:"readyToShare"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
