package hslog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/matchlog/matchlog/internal/combatlog"
)

var tagAttrRe = regexp.MustCompile(`^tag=(.*) value=(.*)$`)

// Grammar parses the pipe-framed power log dialect: unix_ts|<power line>.
// Classification is total: lines that are neither an action nor a tag
// attribute decode to an Unknown event so replay can log and skip them.
type Grammar struct{}

func NewGrammar() *Grammar { return &Grammar{} }

func (g *Grammar) Game() combatlog.Game { return combatlog.GameHs }

func (g *Grammar) ParseLine(partitionID, line string, state *combatlog.ParseState) (combatlog.Encoded, error) {
	parts := strings.SplitN(line, "|", 2)
	if len(parts) != 2 {
		return combatlog.Encoded{}, fmt.Errorf("power log line %q: missing timestamp delimiter", line)
	}

	sec, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return combatlog.Encoded{}, fmt.Errorf("power log line %q: bad timestamp: %w", line, err)
	}
	tm := time.Unix(sec, 0).UTC()

	ev := ClassifyLine(tm, parts[1])
	return encodePacket(&Packet{
		PartitionID: partitionID,
		Time:        tm,
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

// ClassifyLine determines whether a power line is an action, a tag
// attribute, or unknown. The GameEntity and Player entity creations are the
// two actions not written as an all-caps word, so they are matched first.
func ClassifyLine(tm time.Time, log string) *Event {
	ev := &Event{Timestamp: tm}

	if rest, ok := strings.CutPrefix(log, "GameEntity"); ok {
		ev.Type = EventAction
		ev.Action = &Action{Kind: ActionCreateGameEntity, Attrs: ParseAttributes(rest)}
		return ev
	}
	if rest, ok := strings.CutPrefix(log, "Player"); ok {
		ev.Type = EventAction
		ev.Action = &Action{Kind: ActionCreatePlayerEntity, Attrs: ParseAttributes(rest)}
		return ev
	}

	tokens := strings.Fields(log)
	if len(tokens) > 0 {
		if kind, ok := parseActionKind(tokens[0]); ok {
			ev.Type = EventAction
			ev.Action = &Action{Kind: kind, Attrs: ParseAttributes(strings.Join(tokens[1:], " "))}
			return ev
		}
	}

	if m := tagAttrRe.FindStringSubmatch(strings.TrimSpace(log)); m != nil {
		ev.Type = EventTagAttr
		ev.Tag = &TagAttr{Tag: m[1], Value: m[2]}
		return ev
	}

	ev.Type = EventUnknown
	return ev
}

// ParseAttributes splits a "KEY1=VALUE1 KEY2=VALUE2 ..." attribute string.
// Values may contain spaces, so splitting on whitespace is not safe; instead
// scan backwards from each equal sign to the preceding space to recover one
// token at a time. An equal sign inside [brackets] belongs to a value, not a
// key, so the scan skips past bracketed spans.
func ParseAttributes(attrs string) map[string]string {
	var tokens []string

	end := len(attrs)
	for end > 0 {
		rest := attrs[:end]
		eq := strings.LastIndex(rest, "=")
		if eq < 0 {
			break
		}

		lb := strings.LastIndex(rest, "[")
		rb := strings.LastIndex(rest, "]")
		if lb >= 0 && rb >= 0 && eq > lb && eq < rb {
			eq = strings.LastIndex(attrs[:lb], "=")
			if eq < 0 {
				break
			}
		}

		if ws := strings.LastIndex(attrs[:eq], " "); ws >= 0 {
			tokens = append(tokens, attrs[ws+1:end])
			end = ws
		} else {
			tokens = append(tokens, attrs[:end])
			end = 0
		}
	}

	ret := make(map[string]string, len(tokens))
	for _, tk := range tokens {
		split := strings.SplitN(tk, "=", 2)
		if len(split) != 2 {
			continue
		}
		ret[strings.TrimSpace(split[0])] = strings.TrimSpace(split[1])
	}
	return ret
}
