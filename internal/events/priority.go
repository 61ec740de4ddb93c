package events

// Priority is the service-preference class assigned to an event.
type Priority int

const (
	// PriorityIgnore events are dropped before any queue.
	PriorityIgnore Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
)

// ServedPriorities lists the classes that own a queue and a worker, highest first.
var ServedPriorities = []Priority{PriorityHigh, PriorityNormal, PriorityLow}

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityIgnore:
		return "ignore"
	default:
		return "unknown"
	}
}

// Classify maps an event kind to its priority class. It only looks at the kind
// and is total: kinds not listed here are ignored.
func Classify(kind Kind) Priority {
	switch kind {
	case KindInteractionCreate, KindReady, KindResumed, KindGuildMemberAdd:
		return PriorityHigh

	case KindMessageCreate, KindMessageUpdate,
		KindGuildMemberUpdate, KindGuildMemberRemove,
		KindGuildRoleCreate, KindGuildRoleUpdate, KindGuildRoleDelete,
		KindChannelCreate, KindChannelUpdate, KindChannelDelete:
		return PriorityNormal

	case KindMessageDelete, KindMessageReactionAdd, KindMessageReactionRemove,
		KindGuildCreate, KindGuildUpdate:
		return PriorityLow

	case KindTypingStart, KindPresenceUpdate, KindVoiceStateUpdate:
		return PriorityIgnore

	default:
		return PriorityIgnore
	}
}
