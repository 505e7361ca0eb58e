package intent

import "strings"

// Intent is the classified purpose of a user message.
type Intent string

const (
	CreateSession        Intent = "CREATE_SESSION"
	SwitchSession        Intent = "SWITCH_SESSION"
	ContinueConversation Intent = "CONTINUE_CONVERSATION"
	CheckStatus          Intent = "CHECK_STATUS"
	ListSessions         Intent = "LIST_SESSIONS"
	Help                 Intent = "HELP"
	Unknown              Intent = "UNKNOWN"
)

// Confidence grades how sure the classifier is about an intent.
type Confidence string

const (
	High   Confidence = "high"
	Medium Confidence = "medium"
	Low    Confidence = "low"
)

// Tone is the emotional register read from the message.
type Tone string

const (
	ToneNeutral    Tone = "neutral"
	ToneCalm       Tone = "calm"
	ToneUpset      Tone = "upset"
	ToneFrustrated Tone = "frustrated"
	ToneHopeful    Tone = "hopeful"
)

// Person carries identity fields extracted from a message.
type Person struct {
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	ContactInfo string `json:"contactInfo,omitempty"`
}

// Empty reports whether no identity field was extracted.
func (p Person) Empty() bool {
	return p.FirstName == "" && p.LastName == "" && p.ContactInfo == ""
}

// DetectionResult is the output contract of the intent classifier.
type DetectionResult struct {
	Intent           Intent     `json:"intent"`
	Confidence       Confidence `json:"confidence"`
	Tone             Tone       `json:"tone,omitempty"`
	SessionID        string     `json:"sessionId,omitempty"`
	Person           *Person    `json:"person,omitempty"`
	SessionContext   string     `json:"sessionContext,omitempty"`
	MissingInfo      []string   `json:"missingInfo,omitempty"`
	FollowUpQuestion string     `json:"followUpQuestion,omitempty"`
}

// ParseIntent clamps a free-form string to the closed intent enumeration,
// defaulting to Unknown.
func ParseIntent(raw string) Intent {
	switch Intent(strings.ToUpper(strings.TrimSpace(raw))) {
	case CreateSession:
		return CreateSession
	case SwitchSession:
		return SwitchSession
	case ContinueConversation:
		return ContinueConversation
	case CheckStatus:
		return CheckStatus
	case ListSessions:
		return ListSessions
	case Help:
		return Help
	default:
		return Unknown
	}
}

// ParseTone clamps a free-form string to the closed tone enumeration,
// defaulting to ToneNeutral.
func ParseTone(raw string) Tone {
	switch Tone(strings.ToLower(strings.TrimSpace(raw))) {
	case ToneCalm:
		return ToneCalm
	case ToneUpset:
		return ToneUpset
	case ToneFrustrated:
		return ToneFrustrated
	case ToneHopeful:
		return ToneHopeful
	default:
		return ToneNeutral
	}
}

// ParseConfidence clamps a free-form string to the closed confidence
// enumeration, defaulting to Low.
func ParseConfidence(raw string) Confidence {
	switch Confidence(strings.ToLower(strings.TrimSpace(raw))) {
	case High:
		return High
	case Medium:
		return Medium
	default:
		return Low
	}
}
