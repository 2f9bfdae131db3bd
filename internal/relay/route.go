package relay

import (
	"time"

	"github.com/tutorbookapp/relay/internal/carrier"
	"github.com/tutorbookapp/relay/internal/models"
)

// recencyWindow is how fresh the correlated message must be for a reply to
// relay straight back without asking. Policy constant.
const recencyWindow = 5 * time.Minute

// Action is the routing verdict for one inbound reply.
type Action string

const (
	// ActionRelayDirect forwards the reply to the correspondent silently.
	ActionRelayDirect Action = "relay_direct"
	// ActionRelayToSupervisor escalates the reply to the location
	// supervisor with a confirmation auto-reply.
	ActionRelayToSupervisor Action = "relay_to_supervisor"
	// ActionAskWhoToRelay sends the disambiguation prompt and performs no
	// relay.
	ActionAskWhoToRelay Action = "ask_who_to_relay"
)

// Decision is the computed routing outcome. Target is nil only for
// ActionAskWhoToRelay; Prompt is empty for silent relays.
type Decision struct {
	Action Action
	Target *models.User
	Prompt string
}

// Decide applies the routing policy: recent exchanges continue
// uninterrupted; stale or unidentifiable threads escalate to a supervisor
// or require explicit disambiguation rather than silently guessing wrong.
func Decide(correspondent Correspondent, leg carrier.Leg, supervisor *models.User, now time.Time) Decision {
	human, ok := correspondent.Human()
	if !ok {
		return Decision{
			Action: ActionRelayToSupervisor,
			Target: supervisor,
			Prompt: ForwardedConfirmation(supervisor.Name, supervisor.Pronoun()),
		}
	}
	if now.Sub(leg.CreatedAt) <= recencyWindow {
		return Decision{Action: ActionRelayDirect, Target: human}
	}
	if human.UID == supervisor.UID {
		return Decision{Action: ActionRelayDirect, Target: human}
	}
	return Decision{
		Action: ActionAskWhoToRelay,
		Prompt: AskPrompt(supervisor.Name, human.Name),
	}
}
