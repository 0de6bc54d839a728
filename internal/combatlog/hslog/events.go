// Package hslog implements the card-game power log grammar. Lines are
// classified at parse time into block/entity actions and tag attributes; the
// stateful game reconstruction happens at replay time in the report
// generator, driven by a hierarchical state machine.
package hslog

import (
	"time"

	json "github.com/goccy/go-json"

	"github.com/matchlog/matchlog/internal/combatlog"
)

// ActionKind enumerates the power log block/entity actions.
type ActionKind string

const (
	ActionCreateGame         ActionKind = "CREATE_GAME"
	ActionCreateGameEntity   ActionKind = "GAME_ENTITY"
	ActionCreatePlayerEntity ActionKind = "PLAYER_ENTITY"
	ActionFullEntity         ActionKind = "FULL_ENTITY"
	ActionShowEntity         ActionKind = "SHOW_ENTITY"
	ActionHideEntity         ActionKind = "HIDE_ENTITY"
	ActionTagChange          ActionKind = "TAG_CHANGE"
	ActionBlockStart         ActionKind = "BLOCK_START"
	ActionBlockEnd           ActionKind = "BLOCK_END"
	ActionShuffleDeck        ActionKind = "SHUFFLE_DECK"
	ActionMetadata           ActionKind = "META_DATA"
	ActionSubSpellStart      ActionKind = "SUB_SPELL_START"
	ActionSubSpellEnd        ActionKind = "SUB_SPELL_END"
	ActionCachedTag          ActionKind = "CACHED_TAG_FOR_DORMANT_CHANGE"
)

// parseActionKind maps the leading all-caps action word to its kind.
func parseActionKind(word string) (ActionKind, bool) {
	switch ActionKind(word) {
	case ActionCreateGame, ActionFullEntity, ActionShowEntity, ActionHideEntity,
		ActionTagChange, ActionBlockStart, ActionBlockEnd, ActionShuffleDeck,
		ActionMetadata, ActionSubSpellStart, ActionSubSpellEnd, ActionCachedTag:
		return ActionKind(word), true
	default:
		return "", false
	}
}

// EventType classifies a power log line.
type EventType string

const (
	// EventAction is a block or entity action with KEY=VALUE attributes.
	EventAction EventType = "action"

	// EventTagAttr is a "tag=X value=Y" line applied to the current action.
	EventTagAttr EventType = "tagAttr"

	// EventUnknown is any line neither an action nor a tag attribute.
	EventUnknown EventType = "unknown"
)

// Action is an action line's payload.
type Action struct {
	Kind  ActionKind        `json:"kind"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// TagAttr is a tag attribute line's payload.
type TagAttr struct {
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

// Event is the closed union of power log line classifications.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Action    *Action   `json:"action,omitempty"`
	Tag       *TagAttr  `json:"tag,omitempty"`
}

// Packet wraps a line for this game with partition identity and timestamp.
type Packet struct {
	PartitionID string         `json:"partitionId"`
	Time        time.Time      `json:"time"`
	Form        combatlog.Form `json:"form"`
	Raw         string         `json:"raw,omitempty"`
	Event       *Event         `json:"event,omitempty"`
}

// DecodePacket deserializes one stored NDJSON line.
func DecodePacket(line []byte) (*Packet, error) {
	var p Packet
	if err := json.Unmarshal(line, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
