// Package projection derives user-facing status summaries from persisted
// session and stage state. Everything here is deterministic and
// side-effect-free: identical inputs always yield identical output.
package projection

import (
	"fmt"

	"github.com/halcyonlabs/accord/backend/internal/model/conversation"
)

// ParticipantState is one participant's resolved current stage and the
// status of that stage.
type ParticipantState struct {
	Stage  conversation.Stage
	Status conversation.ProgressStatus
}

// Input is everything needed to project a session's status for one viewer.
type Input struct {
	SessionStatus     conversation.Status
	CounterpartName   string
	Viewer            ParticipantState
	Counterpart       ParticipantState
	CounterpartJoined bool
}

// View is the projected, human-readable session status for the viewer.
type View struct {
	MyStage       conversation.Stage `json:"myStage"`
	MyStatus      string             `json:"myStatus"`
	TheirStage    conversation.Stage `json:"theirStage"`
	TheirStatus   string             `json:"theirStatus"`
	ActionNeeded  bool               `json:"actionNeeded"`
	WaitingOnThem bool               `json:"waitingOnThem"`
}

// stagePhrases maps (stage, in-progress-or-not) to the activity phrase used
// for active sessions.
var stagePhrases = map[conversation.Stage]string{
	conversation.StageOnboarding:         "getting set up",
	conversation.StageWitness:            "sharing your story",
	conversation.StagePerspectiveStretch: "crafting your empathy",
	conversation.StageNeedMapping:        "mapping what you need",
	conversation.StageStrategicRepair:    "working on repair steps",
}

var counterpartPhrases = map[conversation.Stage]string{
	conversation.StageOnboarding:         "getting set up",
	conversation.StageWitness:            "sharing their story",
	conversation.StagePerspectiveStretch: "crafting their empathy",
	conversation.StageNeedMapping:        "mapping what they need",
	conversation.StageStrategicRepair:    "working on repair steps",
}

// Project computes the viewer's status view for a session.
func Project(in Input) View {
	view := View{
		MyStage:    in.Viewer.Stage,
		TheirStage: in.Counterpart.Stage,
	}

	// Lifecycle states short-circuit to canned pairs before any stage
	// comparison.
	switch in.SessionStatus {
	case conversation.StatusCreated:
		view.MyStatus = "finishing your invitation"
		view.TheirStatus = fmt.Sprintf("%s hasn't been invited yet", in.CounterpartName)
		view.ActionNeeded = true
		return view
	case conversation.StatusInvited:
		view.MyStatus = "waiting for them to join"
		view.TheirStatus = fmt.Sprintf("%s hasn't joined yet", in.CounterpartName)
		view.WaitingOnThem = true
		return view
	case conversation.StatusPaused:
		view.MyStatus = "taking a break"
		view.TheirStatus = "taking a break"
		return view
	case conversation.StatusResolved:
		view.MyStatus = "conversation resolved"
		view.TheirStatus = "conversation resolved"
		return view
	case conversation.StatusAbandoned:
		view.MyStatus = "conversation closed"
		view.TheirStatus = "conversation closed"
		return view
	}

	view.MyStatus = viewerPhrase(in.Viewer)
	view.TheirStatus = counterpartPhrase(in.Counterpart, in.CounterpartName, in.CounterpartJoined)

	switch {
	case in.Viewer.Stage < in.Counterpart.Stage:
		// Behind: the viewer is holding things up.
		view.ActionNeeded = true
	case in.Viewer.Stage > in.Counterpart.Stage:
		// Ahead: nothing to do until they catch up.
		view.WaitingOnThem = true
	default:
		// Level: each side acts only on an unfinished stage.
		view.ActionNeeded = in.Viewer.Status != conversation.ProgressCompleted
		view.WaitingOnThem = in.Viewer.Status == conversation.ProgressCompleted &&
			in.Counterpart.Status != conversation.ProgressCompleted
	}

	return view
}

func viewerPhrase(p ParticipantState) string {
	phrase := stagePhrases[p.Stage]
	switch p.Status {
	case conversation.ProgressCompleted:
		return fmt.Sprintf("finished %s", phrase)
	case conversation.ProgressGatePending:
		return fmt.Sprintf("almost done %s", phrase)
	case conversation.ProgressNotStarted:
		return fmt.Sprintf("ready to start %s", phrase)
	default:
		return phrase
	}
}

func counterpartPhrase(p ParticipantState, name string, joined bool) string {
	if !joined {
		return fmt.Sprintf("%s hasn't joined yet", name)
	}
	phrase := counterpartPhrases[p.Stage]
	switch p.Status {
	case conversation.ProgressCompleted:
		return fmt.Sprintf("%s finished %s", name, phrase)
	case conversation.ProgressNotStarted:
		return fmt.Sprintf("%s hasn't started %s", name, phrase)
	default:
		return fmt.Sprintf("%s is %s", name, phrase)
	}
}
