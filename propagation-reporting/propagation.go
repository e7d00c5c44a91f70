package propagation_reporting

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"propagation-benchmark/datastructures"
)

// BuildRecords pairs the seal and import marker of every node+height.
// A height with only one of the two markers produces no record and is
// returned separately so the report can note it. An import stamp before
// the seal stamp is flagged anomalous and its delta truncated at zero.
func BuildRecords(events map[string][]datastructures.BlockEvent) ([]datastructures.PropagationRecord, []datastructures.BlockEvent) {
	var records []datastructures.PropagationRecord
	var incomplete []datastructures.BlockEvent

	for node, evs := range events {
		seals := make(map[uint64]time.Time)
		imports := make(map[uint64]time.Time)
		for _, e := range evs {
			var m map[uint64]time.Time
			switch e.Kind {
			case datastructures.MarkerSealed:
				m = seals
			case datastructures.MarkerImported:
				m = imports
			default:
				continue
			}
			if prev, ok := m[e.Height]; !ok || e.Timestamp.Before(prev) {
				m[e.Height] = e.Timestamp
			}
		}

		for height, sealed := range seals {
			imported, ok := imports[height]
			if !ok {
				incomplete = append(incomplete, datastructures.BlockEvent{
					Node: node, Height: height, Kind: datastructures.MarkerSealed, Timestamp: sealed,
				})
				continue
			}
			rec := datastructures.PropagationRecord{
				Node:     node,
				Height:   height,
				Sealed:   sealed,
				Imported: imported,
				Delta:    imported.Sub(sealed),
			}
			if rec.Delta < 0 {
				log.Warn().Str("node", node).Uint64("height", height).
					Dur("delta", rec.Delta).Msg("import stamp precedes seal stamp")
				rec.Anomalous = true
				rec.Delta = 0
			}
			records = append(records, rec)
		}
		for height, imported := range imports {
			if _, ok := seals[height]; !ok {
				incomplete = append(incomplete, datastructures.BlockEvent{
					Node: node, Height: height, Kind: datastructures.MarkerImported, Timestamp: imported,
				})
			}
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Node != records[j].Node {
			return records[i].Node < records[j].Node
		}
		return records[i].Height < records[j].Height
	})
	sort.Slice(incomplete, func(i, j int) bool {
		if incomplete[i].Node != incomplete[j].Node {
			return incomplete[i].Node < incomplete[j].Node
		}
		return incomplete[i].Height < incomplete[j].Height
	})
	return records, incomplete
}

// ComputeStats aggregates per-node deltas in milliseconds. Anomalous
// records stay in the report but are no measurement, so they are left
// out here. Nodes without any valid record get no entry.
func ComputeStats(records []datastructures.PropagationRecord) []datastructures.NodeStats {
	perNode := make(map[string][]datastructures.PropagationRecord)
	for _, r := range records {
		if r.Anomalous {
			continue
		}
		perNode[r.Node] = append(perNode[r.Node], r)
	}

	var stats []datastructures.NodeStats
	for node, recs := range perNode {
		deltas := Map(recs, func(r datastructures.PropagationRecord) uint64 {
			return uint64(r.Delta.Milliseconds())
		})
		stats = append(stats, datastructures.NodeStats{
			Node:   node,
			Amount: uint64(len(deltas)),
			Min:    Min(deltas),
			Max:    Max(deltas),
			Avg:    Mean(deltas),
			Med:    Median(deltas),
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Node < stats[j].Node })
	return stats
}
