// Package wowlog implements the raiding-game combat log grammar: a pure
// per-line parser producing a closed union of typed events, plus the packet
// codec the rest of the pipeline replays.
package wowlog

import (
	"time"

	json "github.com/goccy/go-json"

	"github.com/matchlog/matchlog/internal/combatlog"
)

// NilGUID is the all-zero unit identifier.
const NilGUID = "0000000000000000"

// FilterMe is the unit flag combination marking the log owner's own unit.
const FilterMe int64 = 0x511

// EventType enumerates the supported event tags.
type EventType string

const (
	EventCombatantAdded EventType = "combatantAdded"
	EventSpellCast      EventType = "spellCast"
	EventSpellSummon    EventType = "spellSummon"
	EventDamage         EventType = "damage"
	EventHeal           EventType = "heal"
	EventAura           EventType = "aura"
	EventUnitDied       EventType = "unitDied"
	EventEncounterStart EventType = "encounterStart"
	EventEncounterEnd   EventType = "encounterEnd"
	EventUnknown        EventType = "unknown"
)

// UnitRef identifies the source or destination unit of an event.
type UnitRef struct {
	GUID  string `json:"guid"`
	Name  string `json:"name"`
	Flags int64  `json:"flags"`
}

// AdvancedInfo carries the optional trailing unit/owner pair present when the
// client has advanced logging enabled.
type AdvancedInfo struct {
	UnitGUID  string `json:"unitGuid"`
	OwnerGUID string `json:"ownerGuid"`
}

// Combatant is the payload of a COMBATANT_ADDED line.
type Combatant struct {
	GUID   string `json:"guid"`
	Name   string `json:"name"`
	Flags  int64  `json:"flags"`
	SpecID int32  `json:"specId"`
	Team   int32  `json:"team"`
	Rating int32  `json:"rating"`
	Ilvl   int32  `json:"ilvl"`
}

// SpellInfo identifies a spell on cast/damage/heal/aura lines.
type SpellInfo struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	School int64  `json:"school,omitempty"`
}

// DamageInfo is the payload of damage lines.
type DamageInfo struct {
	Amount   int64 `json:"amount"`
	Periodic bool  `json:"periodic,omitempty"`
	Swing    bool  `json:"swing,omitempty"`
}

// HealInfo is the payload of heal lines.
type HealInfo struct {
	Amount   int64 `json:"amount"`
	Overheal int64 `json:"overheal"`
}

// AuraInfo is the payload of aura applied/removed lines.
type AuraInfo struct {
	AuraType string `json:"auraType"`
	Count    int64  `json:"count"`
	Applied  bool   `json:"applied"`
}

// EncounterInfo is the payload of encounter boundary lines.
type EncounterInfo struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Difficulty int32  `json:"difficulty"`
	GroupSize  int32  `json:"groupSize"`
	Success    bool   `json:"success,omitempty"`
}

// Event is the closed tagged union of combat log events. Exactly the payload
// matching Type is set; unknown tags produce Type == EventUnknown with no
// payload.
type Event struct {
	Type      EventType     `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Source    *UnitRef      `json:"source,omitempty"`
	Dest      *UnitRef      `json:"dest,omitempty"`
	Advanced  *AdvancedInfo `json:"advanced,omitempty"`
	Combatant *Combatant    `json:"combatant,omitempty"`
	Spell     *SpellInfo    `json:"spell,omitempty"`
	Damage    *DamageInfo   `json:"damage,omitempty"`
	Heal      *HealInfo     `json:"heal,omitempty"`
	Aura      *AuraInfo     `json:"aura,omitempty"`
	Encounter *EncounterInfo `json:"encounter,omitempty"`
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
