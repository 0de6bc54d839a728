package hs

import (
	"strconv"
	"strings"
	"time"

	"github.com/matchlog/matchlog/internal/combatlog/hslog"
	"github.com/matchlog/matchlog/internal/fsm"
)

// gameState is the reconstruction shared by every frame on the stack.
type gameState struct {
	entities     map[string]map[string]string
	players      []*Player
	gameEntityID string
	turns        int
	completed    bool
	start        time.Time
	end          time.Time
}

func newGameState() *gameState {
	return &gameState{entities: make(map[string]map[string]string)}
}

func (s *gameState) entity(id string) map[string]string {
	e, ok := s.entities[id]
	if !ok {
		e = make(map[string]string)
		s.entities[id] = e
	}
	return e
}

// resolveEntity maps a TAG_CHANGE entity reference to an entity id. The
// reference is either a numeric id, the literal GameEntity, a bracketed
// descriptor carrying id=N, or a player's name. A name not yet bound to a
// player claims the first unnamed player slot, which is how player names
// surface at all in this log dialect.
func (s *gameState) resolveEntity(ref string) string {
	if ref == "GameEntity" {
		return s.gameEntityID
	}
	if _, err := strconv.Atoi(ref); err == nil {
		return ref
	}

	if strings.HasPrefix(ref, "[") {
		if idx := strings.Index(ref, "id="); idx >= 0 {
			rest := ref[idx+3:]
			if end := strings.IndexAny(rest, " ]"); end >= 0 {
				return rest[:end]
			}
			return rest
		}
		return ref
	}

	for _, p := range s.players {
		if p.Name == ref {
			return p.EntityID
		}
	}
	for _, p := range s.players {
		if p.Name == "" {
			p.Name = ref
			return p.EntityID
		}
	}
	return ref
}

// applyTag writes one tag onto an entity and folds the few tags the match
// summary is built from.
func (s *gameState) applyTag(entityID, tag, value string) {
	if entityID == "" {
		return
	}
	s.entity(entityID)[tag] = value

	switch tag {
	case "TURN":
		if entityID == s.gameEntityID {
			if n, err := strconv.Atoi(value); err == nil {
				s.turns = n
			}
		}
	case "PLAYSTATE":
		if value == "WON" {
			for _, p := range s.players {
				if p.EntityID == entityID {
					p.Won = true
				}
			}
		}
	case "STATE":
		if value == "COMPLETE" && entityID == s.gameEntityID {
			s.completed = true
		}
	}
}

// stateFrame is the behavior shared by the game root, blocks and sub spell
// spans: it tracks which entity the trailing tag lines attach to.
type stateFrame struct {
	fsm.BaseFrame
	kind    string
	state   *gameState
	current string
}

func (f *stateFrame) Kind() string { return f.kind }

func (f *stateFrame) receive(ev *hslog.Event) {
	if ev.Type == hslog.EventTagAttr {
		f.state.applyTag(f.current, ev.Tag.Tag, ev.Tag.Value)
		return
	}
	if ev.Action == nil {
		return
	}

	attrs := ev.Action.Attrs
	switch ev.Action.Kind {
	case hslog.ActionCreateGameEntity:
		id := attrs["EntityID"]
		f.state.gameEntityID = id
		f.state.entity(id)
		f.current = id

	case hslog.ActionCreatePlayerEntity:
		id := attrs["EntityID"]
		playerID, _ := strconv.Atoi(attrs["PlayerID"])
		f.state.players = append(f.state.players, &Player{EntityID: id, PlayerID: playerID})
		f.state.entity(id)
		f.current = id

	case hslog.ActionFullEntity, hslog.ActionShowEntity:
		id := attrs["ID"]
		if id == "" {
			id = f.state.resolveEntity(attrs["Entity"])
		}
		if cardID := attrs["CardID"]; cardID != "" {
			f.state.applyTag(id, "CardID", cardID)
		}
		f.current = id

	case hslog.ActionHideEntity:
		id := f.state.resolveEntity(attrs["Entity"])
		if tag := attrs["tag"]; tag != "" {
			f.state.applyTag(id, tag, attrs["value"])
		}

	case hslog.ActionTagChange:
		id := f.state.resolveEntity(attrs["Entity"])
		f.state.applyTag(id, attrs["tag"], attrs["value"])
	}
}

// gameFrame is the root; it accepts everything and is never popped.
type gameFrame struct{ stateFrame }

func newGameFrame(state *gameState) *gameFrame {
	return &gameFrame{stateFrame{kind: "game", state: state}}
}

func (f *gameFrame) CanReceive(string) bool { return true }

// blockFrame spans BLOCK_START to its BLOCK_END, nested blocks included.
type blockFrame struct{ stateFrame }

func newBlockFrame(state *gameState) *blockFrame {
	return &blockFrame{stateFrame{kind: "block", state: state}}
}

func (f *blockFrame) CanReceive(string) bool { return true }

// subSpellFrame spans SUB_SPELL_START to SUB_SPELL_END. Some clients drop
// the end marker, so any block boundary also closes the span via the
// receive check.
type subSpellFrame struct{ stateFrame }

func newSubSpellFrame(state *gameState) *subSpellFrame {
	return &subSpellFrame{stateFrame{kind: "subspell", state: state}}
}

func (f *subSpellFrame) CanReceive(kind string) bool {
	switch hslog.ActionKind(kind) {
	case hslog.ActionBlockStart, hslog.ActionBlockEnd:
		return false
	default:
		return true
	}
}

// machine drives the frame stack over the classified event stream.
type machine struct {
	stack *fsm.Stack
	state *gameState
}

func newMachine() *machine {
	state := newGameState()
	return &machine{
		stack: fsm.NewStack(newGameFrame(state)),
		state: state,
	}
}

func (m *machine) apply(ev *hslog.Event) {
	if m.state.start.IsZero() || ev.Timestamp.Before(m.state.start) {
		m.state.start = ev.Timestamp
	}
	if ev.Timestamp.After(m.state.end) {
		m.state.end = ev.Timestamp
	}

	switch ev.Type {
	case hslog.EventTagAttr:
		m.settle("tagAttr")
		m.receive(ev)

	case hslog.EventAction:
		kind := ev.Action.Kind
		switch kind {
		case hslog.ActionBlockEnd:
			m.settle(string(kind))
			m.stack.Pop()
		case hslog.ActionSubSpellEnd:
			if m.stack.Current().Kind() == "subspell" {
				m.stack.Pop()
			}
		case hslog.ActionBlockStart:
			m.settle(string(kind))
			m.stack.Push(newBlockFrame(m.state))
		case hslog.ActionSubSpellStart:
			m.stack.Push(newSubSpellFrame(m.state))
		default:
			m.settle(string(kind))
			m.receive(ev)
		}
	}
}

// settle pops frames that cannot receive the incoming kind, stopping at the
// root.
func (m *machine) settle(kind string) {
	for m.stack.Depth() > 1 && !m.stack.Current().CanReceive(kind) {
		m.stack.Pop()
	}
}

func (m *machine) receive(ev *hslog.Event) {
	if f, ok := m.stack.Current().(interface{ receive(*hslog.Event) }); ok {
		f.receive(ev)
	}
}
