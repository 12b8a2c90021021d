package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"coordinator/pkg/effect"
	"coordinator/pkg/logx"
	"coordinator/pkg/proto"
	"coordinator/pkg/review"
	"coordinator/pkg/session"
)

// Poster delivers events into actor queues. Satisfied by the actor runtime.
type Poster interface {
	Post(key proto.EntityKey, ev proto.Event)
}

// Config holds the launcher settings.
//
//nolint:govet // logical field grouping preferred over memory optimization
type Config struct {
	// Command is the session agent command line. The request details travel
	// in SESSION_* environment variables.
	Command []string

	// Opts are the executor options for every session. The timeout doubles
	// as the watchdog budget: sessions that outlive it come back as
	// synthetic timeout failures.
	Opts Opts

	// WorkRoot is the host directory sessions get their working copies
	// under.
	WorkRoot string
}

// Launcher starts sandbox sessions and translates their results into actor
// events. It implements effect.Sessions.
type Launcher struct {
	exec   Executor
	poster Poster
	cfg    Config
	logger *logx.Logger

	mu          sync.Mutex
	started     map[string]string // idempotency key -> session id
	transcripts map[string][]session.Frame
}

var _ effect.Sessions = (*Launcher)(nil)

// NewLauncher creates a launcher over the given executor.
func NewLauncher(executor Executor, poster Poster, cfg Config) *Launcher {
	return &Launcher{
		exec:        executor,
		poster:      poster,
		cfg:         cfg,
		logger:      logx.NewLogger("sandbox"),
		started:     make(map[string]string),
		transcripts: make(map[string][]session.Frame),
	}
}

// Transcript returns the recorded output frames of a finished session in
// wire order: stdout and stderr data frames followed by the closing control
// frame. The second return is false while the session is still running or
// if the id is unknown.
func (l *Launcher) Transcript(sessionID string) ([]session.Frame, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	frames, ok := l.transcripts[sessionID]
	return frames, ok
}

func (l *Launcher) record(sessionID string, frames ...session.Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transcripts[sessionID] = frames
}

// StartSession implements effect.Sessions. A request whose idempotency key
// was already launched returns the original session id without launching
// again; this is what makes re-executed effects after a crash harmless.
func (l *Launcher) StartSession(_ context.Context, req effect.SessionRequest) (string, error) {
	if len(l.cfg.Command) == 0 {
		return "", fmt.Errorf("no session command configured")
	}
	if req.Entity == "" {
		return "", fmt.Errorf("session request has no entity")
	}

	l.mu.Lock()
	if id, ok := l.started[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		l.mu.Unlock()
		return id, nil
	}
	sessionID := proto.GenerateSessionID()
	if req.IdempotencyKey != "" {
		l.started[req.IdempotencyKey] = sessionID
	}
	l.mu.Unlock()

	l.poster.Post(req.Entity, review.SessionStartedEvent{SessionID: sessionID})

	// The session outlives the dispatch that launched it; the executor's
	// own timeout is the watchdog.
	go l.run(context.Background(), sessionID, req)

	return sessionID, nil
}

func (l *Launcher) run(ctx context.Context, sessionID string, req effect.SessionRequest) {
	opts := l.cfg.Opts
	opts.WorkDir = l.cfg.WorkRoot
	opts.Env = append(opts.Env,
		"SESSION_ID="+sessionID,
		"SESSION_KIND="+string(req.Kind),
		"SESSION_ENTITY="+req.Entity.String(),
		fmt.Sprintf("SESSION_PR=%d", req.PRNumber),
		"REVIEWER_AGENT="+req.Reviewer.Agent,
		"REVIEWER_CREDENTIAL="+req.Reviewer.Credential,
		"SESSION_FEEDBACK="+req.Feedback,
	)

	result, err := l.exec.Run(ctx, l.cfg.Command, &opts)
	if err != nil {
		timeout := errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil
		l.logger.Error("session %s failed: %v", sessionID, err)
		l.record(sessionID, session.Frame{Control: &session.Control{Type: session.ControlError, Message: err.Error()}})
		l.poster.Post(req.Entity, review.SessionFailedEvent{
			SessionID: sessionID,
			Error:     err.Error(),
			Timeout:   timeout,
		})
		return
	}

	frames := make([]session.Frame, 0, 3)
	if result.Stdout != "" {
		frames = append(frames, session.Frame{Stream: session.StreamStdout, Data: []byte(result.Stdout)})
	}
	if result.Stderr != "" {
		frames = append(frames, session.Frame{Stream: session.StreamStderr, Data: []byte(result.Stderr)})
	}
	frames = append(frames, session.Frame{Control: &session.Control{Type: session.ControlExit, ExitCode: result.ExitCode}})
	l.record(sessionID, frames...)

	if result.ExitCode != 0 {
		l.poster.Post(req.Entity, review.SessionFailedEvent{
			SessionID: sessionID,
			Error:     fmt.Sprintf("session exited %d: %s", result.ExitCode, tail(result.Stderr)),
		})
		return
	}

	l.poster.Post(req.Entity, l.parseResult(sessionID, req, result.Stdout))
}

// sessionOutput is the JSON contract a session command prints as its last
// stdout line.
type sessionOutput struct {
	Decision string   `json:"decision,omitempty"`
	Body     string   `json:"body,omitempty"`
	Commits  []string `json:"commits,omitempty"`
}

// parseResult turns the session's final stdout line into the completion
// event for its kind. Unparseable output is a session failure, not a crash.
func (l *Launcher) parseResult(sessionID string, req effect.SessionRequest, stdout string) proto.Event {
	var out sessionOutput
	if err := json.Unmarshal([]byte(lastLine(stdout)), &out); err != nil {
		return review.SessionFailedEvent{
			SessionID: sessionID,
			Error:     fmt.Sprintf("unparseable session output: %v", err),
		}
	}

	if req.Kind == effect.SessionFix {
		return review.FixCompleteEvent{Commits: out.Commits}
	}

	decision := proto.ReviewDecision(out.Decision)
	if decision != proto.DecisionApproved && decision != proto.DecisionChangesRequested {
		return review.SessionFailedEvent{
			SessionID: sessionID,
			Error:     fmt.Sprintf("session returned unknown decision %q", out.Decision),
		}
	}
	return review.ReviewCompleteEvent{
		Reviewer: req.Reviewer.Agent,
		Decision: decision,
		Body:     out.Body,
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[len(s)-200:]
	}
	return s
}
