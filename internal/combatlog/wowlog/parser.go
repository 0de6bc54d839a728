package wowlog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/matchlog/matchlog/internal/combatlog"
)

// LineError is a per-line structural parse failure. It never aborts a batch;
// the sink logs the line and drops it from the Parsed output.
type LineError struct {
	Line string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("combat log line %q: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Grammar parses the pipe-delimited raiding-game combat log dialect:
// unix_ts|TAG|field|field|...
type Grammar struct{}

func NewGrammar() *Grammar { return &Grammar{} }

func (g *Grammar) Game() combatlog.Game { return combatlog.GameWow }

func (g *Grammar) ParseLine(partitionID, line string, state *combatlog.ParseState) (combatlog.Encoded, error) {
	ev, err := ParseEvent(line, state)
	if err != nil {
		return combatlog.Encoded{}, err
	}
	return encodePacket(&Packet{
		PartitionID: partitionID,
		Time:        ev.Timestamp,
		Form:        combatlog.FormParsed,
		Event:       ev,
	})
}

func (g *Grammar) FlushPacket(partitionID string) combatlog.Encoded {
	enc, _ := encodePacket(&Packet{
		PartitionID: partitionID,
		Time:        time.Now().UTC(),
		Form:        combatlog.FormFlush,
	})
	return enc
}

func (g *Grammar) RawPacket(partitionID string, tm time.Time, line string) combatlog.Encoded {
	enc, _ := encodePacket(&Packet{
		PartitionID: partitionID,
		Time:        tm,
		Form:        combatlog.FormRaw,
		Raw:         line,
	})
	return enc
}

func encodePacket(p *Packet) (combatlog.Encoded, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return combatlog.Encoded{}, fmt.Errorf("failed to encode packet: %w", err)
	}
	return combatlog.Encoded{Form: p.Form, Time: p.Time, Data: data}, nil
}

// ParseEvent maps one raw line to a typed event. Unknown tags yield an
// Unknown event; structurally malformed known tags yield a LineError.
func ParseEvent(line string, state *combatlog.ParseState) (*Event, error) {
	fields := strings.Split(line, "|")
	if len(fields) < 2 {
		return nil, &LineError{Line: line, Err: fmt.Errorf("expected at least 2 fields, got %d", len(fields))}
	}

	sec, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return nil, &LineError{Line: line, Err: fmt.Errorf("bad timestamp %q: %w", fields[0], err)}
	}
	tm := time.Unix(sec, 0).UTC()

	tag := fields[1]
	body := fields[2:]

	p := &lineParser{line: line, fields: body}
	ev := &Event{Timestamp: tm}

	advanced := state != nil && state.AdvancedLogging

	switch tag {
	case "COMBATANT_ADDED":
		p.want(7)
		ev.Type = EventCombatantAdded
		ev.Combatant = &Combatant{
			GUID:   p.str(0),
			Name:   p.str(1),
			Flags:  p.hex(2),
			SpecID: int32(p.dec(3)),
			Team:   int32(p.dec(4)),
			Rating: int32(p.dec(5)),
			Ilvl:   int32(p.dec(6)),
		}
	case "SPELL_CAST":
		p.want(5)
		ev.Type = EventSpellCast
		ev.Source = p.unit(0)
		ev.Spell = &SpellInfo{ID: p.dec(3), Name: p.str(4)}
	case "SPELL_SUMMON":
		p.want(8)
		ev.Type = EventSpellSummon
		ev.Source = p.unit(0)
		ev.Dest = p.unit(3)
		ev.Spell = &SpellInfo{ID: p.dec(6), Name: p.str(7)}
	case "SPELL_DAMAGE", "SPELL_PERIODIC_DAMAGE":
		n := 10
		if advanced {
			n = 12
		}
		p.want(n)
		ev.Type = EventDamage
		ev.Source = p.unit(0)
		ev.Dest = p.unit(3)
		ev.Spell = &SpellInfo{ID: p.dec(6), Name: p.str(7), School: p.hex(8)}
		ev.Damage = &DamageInfo{Amount: p.dec(9), Periodic: tag == "SPELL_PERIODIC_DAMAGE"}
		if advanced {
			ev.Advanced = &AdvancedInfo{UnitGUID: p.str(10), OwnerGUID: p.str(11)}
		}
	case "SWING_DAMAGE":
		n := 7
		if advanced {
			n = 9
		}
		p.want(n)
		ev.Type = EventDamage
		ev.Source = p.unit(0)
		ev.Dest = p.unit(3)
		ev.Damage = &DamageInfo{Amount: p.dec(6), Swing: true}
		if advanced {
			ev.Advanced = &AdvancedInfo{UnitGUID: p.str(7), OwnerGUID: p.str(8)}
		}
	case "SPELL_HEAL":
		n := 10
		if advanced {
			n = 12
		}
		p.want(n)
		ev.Type = EventHeal
		ev.Source = p.unit(0)
		ev.Dest = p.unit(3)
		ev.Spell = &SpellInfo{ID: p.dec(6), Name: p.str(7)}
		ev.Heal = &HealInfo{Amount: p.dec(8), Overheal: p.dec(9)}
		if advanced {
			ev.Advanced = &AdvancedInfo{UnitGUID: p.str(10), OwnerGUID: p.str(11)}
		}
	case "SPELL_AURA_APPLIED", "SPELL_AURA_REMOVED":
		// The trailing stack count is optional; absent means 1.
		if len(p.fields) == 9 {
			p.want(9)
		} else {
			p.want(10)
		}
		ev.Type = EventAura
		ev.Source = p.unit(0)
		ev.Dest = p.unit(3)
		ev.Spell = &SpellInfo{ID: p.dec(6), Name: p.str(7)}
		count := int64(1)
		if len(p.fields) > 9 {
			count = p.count(9)
		}
		ev.Aura = &AuraInfo{
			AuraType: p.str(8),
			Count:    count,
			Applied:  tag == "SPELL_AURA_APPLIED",
		}
	case "UNIT_DIED":
		p.want(3)
		ev.Type = EventUnitDied
		ev.Dest = p.unit(0)
	case "ENCOUNTER_START":
		p.want(4)
		ev.Type = EventEncounterStart
		ev.Encounter = &EncounterInfo{
			ID:         p.dec(0),
			Name:       p.str(1),
			Difficulty: int32(p.dec(2)),
			GroupSize:  int32(p.dec(3)),
		}
	case "ENCOUNTER_END":
		p.want(5)
		ev.Type = EventEncounterEnd
		ev.Encounter = &EncounterInfo{
			ID:         p.dec(0),
			Name:       p.str(1),
			Difficulty: int32(p.dec(2)),
			GroupSize:  int32(p.dec(3)),
			Success:    p.dec(4) != 0,
		}
	default:
		ev.Type = EventUnknown
	}

	if p.err != nil {
		return nil, &LineError{Line: line, Err: p.err}
	}
	return ev, nil
}

// lineParser accumulates the first field-level error instead of forcing a
// check after every access.
type lineParser struct {
	line   string
	fields []string
	err    error
}

func (p *lineParser) want(n int) {
	if p.err == nil && len(p.fields) != n {
		p.err = fmt.Errorf("expected %d fields, got %d", n, len(p.fields))
	}
}

func (p *lineParser) str(i int) string {
	if p.err != nil || i >= len(p.fields) {
		return ""
	}
	return p.fields[i]
}

func (p *lineParser) dec(i int) int64 {
	if p.err != nil || i >= len(p.fields) {
		return 0
	}
	v, err := strconv.ParseInt(p.fields[i], 10, 64)
	if err != nil {
		p.err = fmt.Errorf("bad decimal field %d %q: %w", i, p.fields[i], err)
		return 0
	}
	return v
}

func (p *lineParser) hex(i int) int64 {
	if p.err != nil || i >= len(p.fields) {
		return 0
	}
	raw := strings.TrimPrefix(p.fields[i], "0x")
	v, err := strconv.ParseInt(raw, 16, 64)
	if err != nil {
		p.err = fmt.Errorf("bad hex field %d %q: %w", i, p.fields[i], err)
		return 0
	}
	return v
}

// count parses a stack count as decimal, falling back to hex. Clients have
// been observed emitting both encodings for this one field; keep accepting
// both.
func (p *lineParser) count(i int) int64 {
	if p.err != nil || i >= len(p.fields) {
		return 0
	}
	if v, err := strconv.ParseInt(p.fields[i], 10, 64); err == nil {
		return v
	}
	v, err := strconv.ParseInt(p.fields[i], 16, 64)
	if err != nil {
		p.err = fmt.Errorf("bad count field %d %q: %w", i, p.fields[i], err)
		return 0
	}
	return v
}

func (p *lineParser) unit(i int) *UnitRef {
	return &UnitRef{
		GUID:  p.str(i),
		Name:  p.str(i + 1),
		Flags: p.hex(i + 2),
	}
}
