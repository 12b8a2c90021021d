package effect

import (
	"context"
	"fmt"

	"coordinator/pkg/forge"
)

// MergeEffect merges a pull request through the capability gateway.
type MergeEffect struct {
	PRNumber int
	Method   string // merge, squash, rebase
	Forced   bool   // human force-merge vs. approved review sequence
}

// Execute merges the PR. A NotFound from the hosting API after a forced
// close/merge is tolerated: the human may already have merged through the UI.
func (e *MergeEffect) Execute(ctx context.Context, runtime Runtime) error {
	opts := forge.PRMergeOptions{Method: e.Method}
	if opts.Method == "" {
		opts.Method = "merge"
	}

	err := runtime.Gateway().MergePR(ctx, e.PRNumber, opts)
	if err != nil {
		if e.Forced && forge.KindOf(err) == forge.KindNotFound {
			runtime.Info("PR #%d already gone at forced merge; treating as merged", e.PRNumber)
			return nil
		}
		return fmt.Errorf("merge of PR #%d failed: %w", e.PRNumber, err)
	}

	runtime.Info("merged PR #%d (forced=%v)", e.PRNumber, e.Forced)
	return nil
}

// Type returns the effect type identifier.
func (e *MergeEffect) Type() string { return "merge" }

// CommentEffect posts a comment on an issue or pull request.
type CommentEffect struct {
	Number int
	Body   string
}

// Execute posts the comment.
func (e *CommentEffect) Execute(ctx context.Context, runtime Runtime) error {
	if _, err := runtime.Gateway().CreatePRComment(ctx, e.Number, e.Body); err != nil {
		return fmt.Errorf("comment on #%d failed: %w", e.Number, err)
	}
	return nil
}

// Type returns the effect type identifier.
func (e *CommentEffect) Type() string { return "comment" }

// LabelEffect adds labels to an issue or pull request.
type LabelEffect struct {
	Number int
	Labels []string
}

// Execute adds the labels.
func (e *LabelEffect) Execute(ctx context.Context, runtime Runtime) error {
	if err := runtime.Gateway().AddLabels(ctx, e.Number, e.Labels); err != nil {
		return fmt.Errorf("labeling #%d failed: %w", e.Number, err)
	}
	return nil
}

// Type returns the effect type identifier.
func (e *LabelEffect) Type() string { return "label" }
