// Package flow implements the conversational state machines: the estimate,
// booking, troubleshoot and search-result flows. Each flow is a finite state
// machine keyed by the session's current step; a step handler interprets one
// line of user input, sends outbound prompts, and returns a Transition that
// the engine applies to the session.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gadgetcare/repairbot/internal/assistant"
	"github.com/gadgetcare/repairbot/internal/catalog"
	"github.com/gadgetcare/repairbot/internal/knowledge"
	"github.com/gadgetcare/repairbot/internal/messaging"
	"github.com/gadgetcare/repairbot/internal/models"
	"github.com/gadgetcare/repairbot/internal/session"
	"github.com/gadgetcare/repairbot/internal/store"
)

// modelPageSize is how many models are shown per page during selection.
const modelPageSize = 10

// searchLimit caps how many matches a global search presents.
const searchLimit = 5

// minIssueChars is the shortest troubleshoot problem description accepted.
const minIssueChars = 10

// Renderer produces a job-sheet document for a booked appointment and
// returns the rendered file path.
type Renderer interface {
	RenderJobSheet(a models.Appointment) (string, error)
}

// transitionKind enumerates what a step handler asks the engine to do next.
type transitionKind int

const (
	kindStay transitionKind = iota
	kindNext
	kindSwitch
	kindEnd
)

// Transition is the explicit outcome of one step handler. Handlers never
// mutate another flow's state directly; the engine loop interprets the
// returned transition against the session.
type Transition struct {
	kind transitionKind
	flow models.FlowType
	step models.StepType
}

// Stay keeps the session at its current step (re-prompt).
func Stay() Transition { return Transition{kind: kindStay} }

// Next advances the session to step within the current flow.
func Next(step models.StepType) Transition { return Transition{kind: kindNext, step: step} }

// Switch hands the session over to another flow at the given step, keeping
// accumulated data (the cross-flow handoff used by estimate -> booking).
func Switch(flow models.FlowType, step models.StepType) Transition {
	return Transition{kind: kindSwitch, flow: flow, step: step}
}

// End removes the session entirely.
func End() Transition { return Transition{kind: kindEnd} }

// Engine executes flow step handlers against sessions.
type Engine struct {
	sessions session.Repository
	catalog  *catalog.Catalog
	gateway  messaging.Gateway
	store    store.Store
	assist   assistant.Assistant // nil when no assistant is configured
	renderer Renderer            // nil when job sheets are disabled
	kb       *knowledge.Base
}

// Option configures an Engine.
type Option func(*Engine)

// WithAssistant wires the language assistant collaborator.
func WithAssistant(a assistant.Assistant) Option {
	return func(e *Engine) { e.assist = a }
}

// WithRenderer wires the job-sheet document renderer.
func WithRenderer(r Renderer) Option {
	return func(e *Engine) { e.renderer = r }
}

// WithKnowledgeBase overrides the built-in troubleshooting knowledge base.
func WithKnowledgeBase(kb *knowledge.Base) Option {
	return func(e *Engine) { e.kb = kb }
}

// NewEngine creates a flow engine with its required collaborators.
func NewEngine(sessions session.Repository, cat *catalog.Catalog, gateway messaging.Gateway, st store.Store, opts ...Option) *Engine {
	e := &Engine{
		sessions: sessions,
		catalog:  cat,
		gateway:  gateway,
		store:    st,
		kb:       knowledge.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleTurn processes one line of user input against an active session.
// The literal cancel/reset tokens end any flow before step dispatch. A
// returned error means the turn failed mid-step: the session is left at its
// current step so the user's next message retries from the same state.
func (e *Engine) HandleTurn(ctx context.Context, sess *models.Session, input string) error {
	input = strings.TrimSpace(input)
	lower := strings.ToLower(input)
	sess.LastActiveAt = time.Now()
	slog.Debug("Engine handling turn", "userID", sess.UserID, "flow", sess.Flow, "step", sess.Step)

	if lower == "cancel" || lower == "reset" {
		e.sessions.End(sess.UserID)
		return e.send(ctx, sess.UserID, "Cancelled. Type 'menu' to start again.")
	}

	var tr Transition
	var err error
	switch sess.Flow {
	case models.FlowEstimate:
		tr, err = e.estimateStep(ctx, sess, input)
	case models.FlowBooking:
		tr, err = e.bookingStep(ctx, sess, input)
	case models.FlowTroubleshoot:
		tr, err = e.troubleshootStep(ctx, sess, input)
	case models.FlowSearchResults:
		tr, err = e.searchStep(ctx, sess, input)
	default:
		tr, err = e.endUnknown(ctx, sess)
	}
	if err != nil {
		return err
	}
	e.apply(sess, tr)
	turnsTotal.WithLabelValues(string(sess.Flow)).Inc()
	return nil
}

// HandleImage processes an inbound image for an active session. Only the
// troubleshoot flow accepts images; they act as an alternate error-details
// input analyzed by the assistant's vision capability.
func (e *Engine) HandleImage(ctx context.Context, sess *models.Session, image []byte, mimeType, caption string) error {
	sess.LastActiveAt = time.Now()
	if sess.Flow != models.FlowTroubleshoot {
		return e.send(ctx, sess.UserID, "Thanks for the photo! I can only analyze images during troubleshooting. Type 'troubleshoot' to start.")
	}
	tr, err := e.troubleshootImage(ctx, sess, image, mimeType, caption)
	if err != nil {
		return err
	}
	e.apply(sess, tr)
	turnsTotal.WithLabelValues(string(sess.Flow)).Inc()
	return nil
}

// endUnknown is the universal catch-all for unrecognized flow/step values:
// a deliberate safe reset, not an error path.
func (e *Engine) endUnknown(ctx context.Context, sess *models.Session) (Transition, error) {
	slog.Warn("Engine ending session with unknown state", "userID", sess.UserID, "flow", sess.Flow, "step", sess.Step)
	if err := e.send(ctx, sess.UserID, "Session ended. Type 'menu' to start again."); err != nil {
		return Stay(), err
	}
	return End(), nil
}

func (e *Engine) apply(sess *models.Session, tr Transition) {
	switch tr.kind {
	case kindStay:
		// re-prompt; nothing to change
	case kindNext:
		slog.Debug("Engine step transition", "userID", sess.UserID, "flow", sess.Flow, "from", sess.Step, "to", tr.step)
		sess.Step = tr.step
	case kindSwitch:
		slog.Info("Engine flow handoff", "userID", sess.UserID, "fromFlow", sess.Flow, "toFlow", tr.flow, "toStep", tr.step)
		sess.Flow = tr.flow
		sess.Step = tr.step
	case kindEnd:
		e.sessions.End(sess.UserID)
	}
}

// send delivers one plain text prompt to the user.
func (e *Engine) send(ctx context.Context, userID, body string) error {
	if err := e.gateway.SendText(ctx, userID, body); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", userID, err)
	}
	return nil
}

// resolveOption resolves a 1-based numeric selection against options,
// returning ok=false for anything that is not a valid index.
func resolveOption(input string, options []string) (string, bool) {
	idx := 0
	for _, r := range input {
		if r < '0' || r > '9' {
			return "", false
		}
		idx = idx*10 + int(r-'0')
		if idx > len(options) {
			return "", false
		}
	}
	if input == "" || idx < 1 || idx > len(options) {
		return "", false
	}
	return options[idx-1], true
}

// isAffirmative matches the bare yes answers accepted at confirmation steps.
func isAffirmative(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
