// Package wow builds the report set for the raiding-game dialect: the match
// roster, per-player throughput timelines, death recaps and encounter rows.
package wow

import (
	"github.com/matchlog/matchlog/internal/combatlog/wowlog"
	"github.com/matchlog/matchlog/internal/logging"
	"github.com/matchlog/matchlog/internal/reports"
)

// NewContainer wires the full generator set for one match compilation.
func NewContainer(partitionID, workDir string, logger *logging.Logger) *reports.Container[wowlog.Packet] {
	generators := []reports.Generator[wowlog.Packet]{
		NewCharactersGenerator(partitionID, workDir),
		NewStatsGenerator(partitionID, workDir),
		NewDeathsGenerator(partitionID, workDir),
		NewEncountersGenerator(partitionID),
	}
	return reports.NewContainer(wowlog.DecodePacket, generators, logger)
}
