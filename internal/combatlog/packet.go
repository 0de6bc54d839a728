// Package combatlog defines the partition-scoped packet model shared by the
// ingest sink, the merge compiler, and the report generators. A packet wraps a
// single combat log line (raw echo, decoded event, or flush sentinel) with the
// partition it belongs to and a timestamp.
package combatlog

import (
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// FlushSentinel is the reserved raw line value marking the end of a logical
// session for a partition. The literal is part of the client wire format and
// must not change.
const FlushSentinel = "//SQUADOV_COMBAT_LOG_FLUSH"

// Form is the kind of packet, determining which cold-storage prefix it is
// written under.
type Form string

const (
	FormRaw    Form = "Raw"
	FormParsed Form = "Parsed"
	FormFlush  Form = "Flush"
)

// Game identifies one of the supported combat log dialects. The set is
// closed: adding a game means adding a grammar and a generator set.
type Game string

const (
	GameWow Game = "wow"
	GameHs  Game = "hs"
)

// SplitPartition decomposes a partition key of the form "{game}_{id}".
func SplitPartition(partitionID string) (Game, string, error) {
	idx := strings.Index(partitionID, "_")
	if idx <= 0 || idx == len(partitionID)-1 {
		return "", "", fmt.Errorf("malformed partition key: %q", partitionID)
	}

	game := Game(partitionID[:idx])
	switch game {
	case GameWow, GameHs:
		return game, partitionID[idx+1:], nil
	default:
		return "", "", fmt.Errorf("unsupported game in partition key: %q", partitionID)
	}
}

// ParseState is the per-partition context needed to interpret some lines.
// It lives in an external store; this core only reads it.
type ParseState struct {
	PartitionID     string `json:"partitionId"`
	BuildVersion    string `json:"buildVersion,omitempty"`
	AdvancedLogging bool   `json:"advancedLogging,omitempty"`
}

// DecodeParseState deserializes parse state stored as a JSON value.
func DecodeParseState(data []byte) (*ParseState, error) {
	var state ParseState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// EncodeParseState serializes parse state for storage.
func (s *ParseState) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// Encoded is one serialized packet ready for a stored object: a single JSON
// line (without the trailing newline) plus the metadata the sink needs for
// routing and raw-echo timestamps.
type Encoded struct {
	Form Form
	Time time.Time
	Data []byte
}

// Grammar is a per-game pure line parser. Implementations must be total:
// unknown tags decode to a catch-all event, only structurally malformed lines
// return an error. Implementations must not panic, but callers still isolate
// each line as its own unit of work.
type Grammar interface {
	Game() Game

	// ParseLine maps one raw line plus the partition's parse state to an
	// encoded Parsed packet.
	ParseLine(partitionID, line string, state *ParseState) (Encoded, error)

	// FlushPacket produces the synthetic end-of-batch packet.
	FlushPacket(partitionID string) Encoded

	// RawPacket echoes the original line as a Raw packet.
	RawPacket(partitionID string, tm time.Time, line string) Encoded
}
