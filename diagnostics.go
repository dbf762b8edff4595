package reptree

// DiagnosticKind classifies a reported diagnostic event.
type DiagnosticKind int

const (
	// DiagnosticMissingPriorParent fires when the move engine's undo
	// step finds no recorded prior-parent entry for a move it is trying
	// to undo. The algorithm never produces this from well-formed ops;
	// seeing it indicates a bug or tampering (spec.md §7).
	DiagnosticMissingPriorParent DiagnosticKind = iota
	// DiagnosticCrdtKindMismatch fires when an incoming CRDT blob's kind
	// differs from the kind already stored for (vertex, key). The
	// incoming op still wins by LWW; this is informational.
	DiagnosticCrdtKindMismatch
	// DiagnosticCrdtMergeFailed fires when a registered CrdtMerger
	// returns an error while merging two blobs of the same kind.
	DiagnosticCrdtMergeFailed
)

// DiagnosticEvent is a best-effort report of a CRDT-kind switch, a
// failed CRDT merge, or a defensively-caught corrupted-state
// condition. None of these stop replication: the engine surfaces only
// hard structural errors (spec.md §7) to callers, everything else is
// resolved locally here and optionally reported through this sink.
type DiagnosticEvent struct {
	Kind    DiagnosticKind
	Message string
}

// DiagnosticSink receives diagnostic events. The zero value is a no-op
// sink, matching the teacher library's posture of carrying no logging
// dependency at all; embedders wire in whatever reporting they use.
type DiagnosticSink struct {
	fn func(DiagnosticEvent)
}

// NewDiagnosticSink wraps fn as a DiagnosticSink.
func NewDiagnosticSink(fn func(DiagnosticEvent)) DiagnosticSink {
	return DiagnosticSink{fn: fn}
}

func (s DiagnosticSink) report(event DiagnosticEvent) {
	if s.fn != nil {
		s.fn(event)
	}
}
