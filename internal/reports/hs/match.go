// Package hs builds the report set for the card-game dialect. Unlike the
// raiding game, the power log is stateful: the match summary only exists
// after replaying every line through the block state machine.
package hs

import (
	"context"
	"database/sql"
	"time"

	json "github.com/goccy/go-json"

	"github.com/matchlog/matchlog/internal/combatlog/hslog"
	"github.com/matchlog/matchlog/internal/logging"
	"github.com/matchlog/matchlog/internal/reports"
)

// Player is one seat of the match.
type Player struct {
	EntityID string `json:"entityId"`
	PlayerID int    `json:"playerId"`
	Name     string `json:"name"`
	Won      bool   `json:"won"`
}

// MatchSummary is the static artifact of a replayed match.
type MatchSummary struct {
	PartitionID string    `json:"partitionId"`
	NumTurns    int       `json:"numTurns"`
	Completed   bool      `json:"completed"`
	MatchStart  time.Time `json:"matchStart"`
	MatchEnd    time.Time `json:"matchEnd"`
	Players     []*Player `json:"players"`
	NumEntities int       `json:"numEntities"`
}

// NewContainer wires the generator set for one match compilation.
func NewContainer(partitionID, workDir string, logger *logging.Logger) *reports.Container[hslog.Packet] {
	generators := []reports.Generator[hslog.Packet]{
		NewMatchGenerator(partitionID, workDir),
	}
	return reports.NewContainer(hslog.DecodePacket, generators, logger)
}

// MatchGenerator replays the power log through the frame stack and emits the
// match summary, both as a file and as a row.
type MatchGenerator struct {
	partitionID string
	workDir     string

	machine *machine

	finished []reports.Report
}

func NewMatchGenerator(partitionID, workDir string) *MatchGenerator {
	return &MatchGenerator{
		partitionID: partitionID,
		workDir:     workDir,
		machine:     newMachine(),
	}
}

func (g *MatchGenerator) Name() string { return "match" }

func (g *MatchGenerator) Handle(p *hslog.Packet) error {
	if p.Event == nil || p.Event.Type == hslog.EventUnknown {
		return nil
	}
	g.machine.apply(p.Event)
	return nil
}

func (g *MatchGenerator) Finalize() error {
	state := g.machine.state
	summary := &MatchSummary{
		PartitionID: g.partitionID,
		NumTurns:    state.turns,
		Completed:   state.completed,
		MatchStart:  state.start,
		MatchEnd:    state.end,
		Players:     state.players,
		NumEntities: len(state.entities),
	}

	static, err := reports.WriteJSONReport(g.workDir, "match", "summary.json", summary)
	if err != nil {
		return err
	}

	g.finished = []reports.Report{
		static,
		&summaryRow{partitionID: g.partitionID, summary: summary},
	}
	return nil
}

func (g *MatchGenerator) Reports() []reports.Report { return g.finished }

// summaryRow upserts the match summary keyed by partition.
type summaryRow struct {
	partitionID string
	summary     *MatchSummary
}

func (r *summaryRow) Kind() reports.Kind { return reports.Dynamic }
func (r *summaryRow) Canonical() string  { return "match" }
func (r *summaryRow) Name() string       { return "row" }

func (r *summaryRow) Apply(ctx context.Context, tx *sql.Tx) error {
	players, err := json.Marshal(r.summary.Players)
	if err != nil {
		return err
	}

	const stmt = `
		INSERT INTO hs_match_summaries
			(partition_id, match_start, match_end, num_turns, players)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (partition_id) DO UPDATE SET
			match_start = excluded.match_start,
			match_end = excluded.match_end,
			num_turns = excluded.num_turns,
			players = excluded.players`

	_, err = tx.ExecContext(ctx, stmt,
		r.partitionID, r.summary.MatchStart, r.summary.MatchEnd, r.summary.NumTurns, string(players))
	return err
}
