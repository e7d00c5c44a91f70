package datastructures

import "time"

type MarkerKind int

const (
	MarkerUnknown MarkerKind = iota
	MarkerSealed
	MarkerImported
)

func (k MarkerKind) String() string {
	switch k {
	case MarkerSealed:
		return "sealed"
	case MarkerImported:
		return "imported"
	default:
		return "unknown"
	}
}

// LogLine is one raw log line after pattern matching. Kind is
// MarkerUnknown for lines that matched neither marker pattern.
type LogLine struct {
	Raw       string
	Timestamp time.Time
	Height    uint64
	Kind      MarkerKind
}

// BlockEvent is one recognized lifecycle marker of a block on a node.
type BlockEvent struct {
	Node      string
	Height    uint64
	Kind      MarkerKind
	Timestamp time.Time
}

// PropagationRecord pairs the seal and import marker of one block on one
// node. Anomalous marks records where the import stamp precedes the seal
// stamp (clock skew or log disorder); Delta is truncated at zero then.
type PropagationRecord struct {
	Node      string
	Height    uint64
	Sealed    time.Time
	Imported  time.Time
	Delta     time.Duration
	Anomalous bool
}

// NodeStats aggregates propagation deltas of one node, in milliseconds.
type NodeStats struct {
	Node   string
	Amount uint64
	Min    uint64
	Max    uint64
	Avg    uint64
	Med    uint64
}
