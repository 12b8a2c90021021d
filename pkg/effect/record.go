package effect

import (
	"context"
	"fmt"

	"coordinator/pkg/proto"
)

// RecordOutcomeEffect appends one reviewer verdict to the durable audit
// table. A runtime without an outcome sink drops the record silently; the
// verdict still lives in the actor's own context.
type RecordOutcomeEffect struct {
	Outcome proto.ReviewOutcome
}

// Execute records the verdict.
func (e *RecordOutcomeEffect) Execute(_ context.Context, runtime Runtime) error {
	sink := runtime.Outcomes()
	if sink == nil {
		return nil
	}
	if err := sink.Record(runtime.EntityKey(), e.Outcome); err != nil {
		return fmt.Errorf("recording %s verdict by %s: %w", e.Outcome.Decision, e.Outcome.Reviewer, err)
	}
	return nil
}

// Type returns the effect type identifier.
func (e *RecordOutcomeEffect) Type() string { return "record_outcome" }
