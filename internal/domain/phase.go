package domain

import "errors"

// SessionPhase is the readiness state of an in-memory torrent session.
// File listings and streaming are only valid once the session has reached
// PhaseMetadataReady.
type SessionPhase string

const (
	PhaseResolving     SessionPhase = "resolving"     // Metadata not yet fetched.
	PhaseMetadataReady SessionPhase = "metadataReady" // File list and sizes known.
	PhaseActive        SessionPhase = "active"        // At least one byte exchanged.
	PhaseRemoved       SessionPhase = "removed"       // Terminal; resources released.
)

var ErrInvalidTransition = errors.New("invalid phase transition")

// validTransitions defines the adjacency list of allowed phase transitions.
// PhaseRemoved is terminal and reachable from every other phase.
var validTransitions = map[SessionPhase][]SessionPhase{
	PhaseResolving:     {PhaseMetadataReady, PhaseRemoved},
	PhaseMetadataReady: {PhaseActive, PhaseRemoved},
	PhaseActive:        {PhaseRemoved},
	PhaseRemoved:       {},
}

// CanTransition reports whether a transition from one phase to another is valid.
func CanTransition(from, to SessionPhase) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Ready reports whether the session's metadata is available to callers.
func (p SessionPhase) Ready() bool {
	return p == PhaseMetadataReady || p == PhaseActive
}
