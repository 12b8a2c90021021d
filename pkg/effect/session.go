package effect

import (
	"context"
	"fmt"

	"coordinator/pkg/proto"
)

// DispatchSessionEffect launches a review or fix session for one reviewer.
// The session id comes back to the actor as a SESSION_STARTED event posted by
// the sandbox layer; the effect itself only launches.
type DispatchSessionEffect struct {
	Kind     SessionKind
	Reviewer proto.ReviewerConfig
	PRNumber int
	Feedback string // populated for fix sessions
}

// Execute launches the session through the sandbox capability.
func (e *DispatchSessionEffect) Execute(ctx context.Context, runtime Runtime) error {
	req := SessionRequest{
		Kind:           e.Kind,
		Entity:         runtime.EntityKey(),
		Reviewer:       e.Reviewer,
		PRNumber:       e.PRNumber,
		Feedback:       e.Feedback,
		IdempotencyKey: runtime.IdempotencyKey(),
	}

	sessionID, err := runtime.StartSession(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to start %s session for %s: %w", e.Kind, e.Reviewer.Agent, err)
	}

	runtime.Info("dispatched %s session %s to reviewer %s (PR #%d)",
		e.Kind, sessionID, e.Reviewer.Agent, e.PRNumber)
	return nil
}

// Type returns the effect type identifier.
func (e *DispatchSessionEffect) Type() string {
	return "dispatch_" + string(e.Kind) + "_session"
}

// NewReviewSessionEffect creates the effect that consults one reviewer.
func NewReviewSessionEffect(reviewer proto.ReviewerConfig, prNumber int) *DispatchSessionEffect {
	return &DispatchSessionEffect{Kind: SessionReview, Reviewer: reviewer, PRNumber: prNumber}
}

// NewFixSessionEffect creates the effect that addresses a reviewer's
// changes_requested feedback.
func NewFixSessionEffect(reviewer proto.ReviewerConfig, prNumber int, feedback string) *DispatchSessionEffect {
	return &DispatchSessionEffect{Kind: SessionFix, Reviewer: reviewer, PRNumber: prNumber, Feedback: feedback}
}
