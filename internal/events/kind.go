// Package events defines the inbound gateway event schema and its priority
// classification. The dispatch core only reads Kind; Payload stays opaque.
package events

import (
	"encoding/json"
	"time"
)

// Kind is the gateway dispatch type of an event (the "t" field on the wire).
type Kind string

const (
	KindReady                 Kind = "READY"
	KindResumed               Kind = "RESUMED"
	KindInteractionCreate     Kind = "INTERACTION_CREATE"
	KindGuildCreate           Kind = "GUILD_CREATE"
	KindGuildUpdate           Kind = "GUILD_UPDATE"
	KindGuildMemberAdd        Kind = "GUILD_MEMBER_ADD"
	KindGuildMemberUpdate     Kind = "GUILD_MEMBER_UPDATE"
	KindGuildMemberRemove     Kind = "GUILD_MEMBER_REMOVE"
	KindGuildRoleCreate       Kind = "GUILD_ROLE_CREATE"
	KindGuildRoleUpdate       Kind = "GUILD_ROLE_UPDATE"
	KindGuildRoleDelete       Kind = "GUILD_ROLE_DELETE"
	KindChannelCreate         Kind = "CHANNEL_CREATE"
	KindChannelUpdate         Kind = "CHANNEL_UPDATE"
	KindChannelDelete         Kind = "CHANNEL_DELETE"
	KindMessageCreate         Kind = "MESSAGE_CREATE"
	KindMessageUpdate         Kind = "MESSAGE_UPDATE"
	KindMessageDelete         Kind = "MESSAGE_DELETE"
	KindMessageReactionAdd    Kind = "MESSAGE_REACTION_ADD"
	KindMessageReactionRemove Kind = "MESSAGE_REACTION_REMOVE"
	KindTypingStart           Kind = "TYPING_START"
	KindPresenceUpdate        Kind = "PRESENCE_UPDATE"
	KindVoiceStateUpdate      Kind = "VOICE_STATE_UPDATE"
)

var allKinds = []Kind{
	KindReady,
	KindResumed,
	KindInteractionCreate,
	KindGuildCreate,
	KindGuildUpdate,
	KindGuildMemberAdd,
	KindGuildMemberUpdate,
	KindGuildMemberRemove,
	KindGuildRoleCreate,
	KindGuildRoleUpdate,
	KindGuildRoleDelete,
	KindChannelCreate,
	KindChannelUpdate,
	KindChannelDelete,
	KindMessageCreate,
	KindMessageUpdate,
	KindMessageDelete,
	KindMessageReactionAdd,
	KindMessageReactionRemove,
	KindTypingStart,
	KindPresenceUpdate,
	KindVoiceStateUpdate,
}

// AllKinds returns every known event kind.
func AllKinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// IsKnown reports whether k is one of the declared kinds.
func (k Kind) IsKnown() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Event is a single inbound gateway event.
type Event struct {
	Kind       Kind            `json:"t"`
	ID         string          `json:"id,omitempty"`
	GuildID    string          `json:"guild_id,omitempty"`
	Payload    json.RawMessage `json:"d,omitempty"`
	ReceivedAt time.Time       `json:"-"`
}

// Decode parses a gateway dispatch frame. ReceivedAt is set to now.
func Decode(data []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	evt.ReceivedAt = time.Now()
	return &evt, nil
}
