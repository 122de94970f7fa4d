// Package router turns raw inbound messages into commands: it owns the menu
// vocabulary, decides when an active flow session gets the input, and falls
// back to the language assistant for anything it does not recognize.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gadgetcare/repairbot/internal/assistant"
	"github.com/gadgetcare/repairbot/internal/catalog"
	"github.com/gadgetcare/repairbot/internal/flow"
	"github.com/gadgetcare/repairbot/internal/messaging"
	"github.com/gadgetcare/repairbot/internal/models"
	"github.com/gadgetcare/repairbot/internal/session"
	"github.com/gadgetcare/repairbot/internal/store"
	"github.com/gadgetcare/repairbot/internal/util"
)

// Technician-mode pass phrases. They are matched anywhere in a message,
// case-insensitively, and every use is logged.
const (
	techUnlockPhrase = "unlock technician mode"
	techLockPhrase   = "lock technician mode"
)

// historyLimit caps the chat history passed to the assistant fallback.
const historyLimit = 10

const menuText = "Hi! 👋 I'm the GadgetCare repair assistant. I can help you with:\n" +
	"1) Repair cost estimate\n" +
	"2) Book an appointment\n" +
	"3) Software troubleshooting\n" +
	"4) Help\n\n" +
	"Reply with a number, or just tell me what you need."

const helpText = "I can do these:\n" +
	"• estimate — get repair cost by brand/model/issue\n" +
	"• book — book an appointment\n" +
	"• troubleshoot — fix a software problem\n" +
	"• find <device> — search our price list\n" +
	"• menu — show options\n" +
	"• cancel — stop current flow"

const fallbackText = "I didn't catch that. Type 'menu' to see options."

// Router dispatches one inbound message per call. It satisfies
// messaging.Handler.
type Router struct {
	sessions session.Repository
	engine   *flow.Engine
	catalog  *catalog.Catalog
	gateway  messaging.Gateway
	store    store.Store
	assist   assistant.Assistant // nil when no assistant is configured
}

// Option configures a Router.
type Option func(*Router)

// WithAssistant wires the language assistant used for freeform fallback.
func WithAssistant(a assistant.Assistant) Option {
	return func(r *Router) { r.assist = a }
}

// New creates a Router over its collaborators.
func New(sessions session.Repository, engine *flow.Engine, cat *catalog.Catalog, gateway messaging.Gateway, st store.Store, opts ...Option) *Router {
	r := &Router{
		sessions: sessions,
		engine:   engine,
		catalog:  cat,
		gateway:  gateway,
		store:    st,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleMessage routes one inbound message. Precedence, highest first:
// technician-mode phrases, the exit keyword, digit menu shortcuts, active
// session delegation (with a handful of explicit flow-restart overrides),
// the command vocabulary, and finally the assistant fallback.
func (r *Router) HandleMessage(ctx context.Context, in models.Incoming) error {
	if in.IsImage() {
		return r.handleImage(ctx, in)
	}
	text := strings.TrimSpace(in.Text)
	lower := strings.ToLower(text)
	slog.Debug("Routing message", "userID", in.From, "length", len(text))

	if strings.Contains(lower, techUnlockPhrase) {
		return r.setTechMode(ctx, in.From, true)
	}
	if strings.Contains(lower, techLockPhrase) {
		return r.setTechMode(ctx, in.From, false)
	}

	if lower == "exit" || strings.HasPrefix(lower, "exit ") {
		commandsTotal.WithLabelValues("exit").Inc()
		r.sessions.SoftClear(in.From)
		return r.send(ctx, in.From, "Okay, exiting. Type 'menu' anytime. 👋")
	}

	if r.sessions.IsActive(in.From) {
		if cmd, ok := overrideCommand(lower); ok {
			slog.Info("Flow override command during active session", "userID", in.From, "command", cmd)
			r.sessions.SoftClear(in.From)
			return r.dispatchCommand(ctx, in.From, cmd, text)
		}
		sess, _ := r.sessions.Get(in.From)
		return r.engine.HandleTurn(ctx, sess, text)
	}

	if cmd, arg, ok := r.matchCommand(lower, text); ok {
		return r.dispatchWithArg(ctx, in.From, cmd, arg)
	}

	return r.fallback(ctx, in.From, text)
}

// handleImage hands photos to the troubleshoot flow when one is active and
// otherwise explains what images are for.
func (r *Router) handleImage(ctx context.Context, in models.Incoming) error {
	if sess, ok := r.sessions.Get(in.From); ok && r.sessions.IsActive(in.From) {
		return r.engine.HandleImage(ctx, sess, in.Image, in.ImageMIME, in.Caption)
	}
	commandsTotal.WithLabelValues("image_idle").Inc()
	return r.send(ctx, in.From, "Thanks for the photo! 📸 If something's wrong with your device, type 'troubleshoot' and I'll take a look.")
}

// overrideCommand matches the few keywords that restart a flow even while
// another session is active.
func overrideCommand(lower string) (string, bool) {
	switch lower {
	case "menu":
		return "menu", true
	case "help":
		return "help", true
	case "estimate", "get estimate":
		return "estimate", true
	case "book", "appointment", "book appointment":
		return "book", true
	case "troubleshoot", "fix", "software":
		return "troubleshoot", true
	default:
		return "", false
	}
}

// matchCommand resolves the idle-state vocabulary. arg carries the free
// remainder for prefix commands (echo, find, price).
func (r *Router) matchCommand(lower, original string) (cmd, arg string, ok bool) {
	switch lower {
	case "1":
		return "estimate", "", true
	case "2":
		return "book", "", true
	case "3":
		return "troubleshoot", "", true
	case "4", "help":
		return "help", "", true
	case "hi", "hello", "hey", "menu", "start":
		return "menu", "", true
	case "estimate", "get estimate", "price":
		return "estimate", "", true
	case "book", "appointment", "book appointment":
		return "book", "", true
	case "troubleshoot", "fix", "software":
		return "troubleshoot", "", true
	case "cancel", "reset":
		return "cancel", "", true
	case "appointments":
		return "appointments", "", true
	}
	for _, prefix := range []string{"echo ", "find ", "search ", "price "} {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(prefix), strings.TrimSpace(original[len(prefix):]), true
		}
	}
	return "", "", false
}

// dispatchCommand runs a no-argument command.
func (r *Router) dispatchCommand(ctx context.Context, userID, cmd, original string) error {
	return r.dispatchWithArg(ctx, userID, cmd, "")
}

func (r *Router) dispatchWithArg(ctx context.Context, userID, cmd, arg string) error {
	commandsTotal.WithLabelValues(cmd).Inc()
	switch cmd {
	case "menu":
		return r.send(ctx, userID, menuText)
	case "help":
		return r.send(ctx, userID, helpText)
	case "estimate":
		return r.engine.StartEstimate(ctx, userID)
	case "book":
		return r.engine.StartBooking(ctx, userID)
	case "troubleshoot":
		return r.engine.StartTroubleshoot(ctx, userID)
	case "find", "search":
		return r.engine.StartSearch(ctx, userID, arg)
	case "echo":
		return r.send(ctx, userID, arg)
	case "price":
		return r.quickPrice(ctx, userID, arg)
	case "cancel":
		// Cancelling with nothing in progress is still acknowledged, so a
		// repeated cancel reads the same as the first.
		r.sessions.End(userID)
		return r.send(ctx, userID, "Okay, I've cancelled the current flow. Type 'menu' to start again.")
	case "appointments":
		return r.listAppointments(ctx, userID)
	default:
		return r.send(ctx, userID, fallbackText)
	}
}

// quickPrice answers "price <brand> <model...> <issue>" in one shot: the
// first token is the brand, the last the issue, everything between the
// model. Lookups are case-insensitive against the catalog.
func (r *Router) quickPrice(ctx context.Context, userID, arg string) error {
	tokens := strings.Fields(arg)
	if len(tokens) < 3 {
		return r.send(ctx, userID, "Try: price <brand> <model> <issue>, e.g. 'price apple iphone 12 screen'.")
	}
	brand, ok := matchFold(r.catalog.ListBrands(), tokens[0])
	if !ok {
		return r.send(ctx, userID, fmt.Sprintf("We don't list %s yet. Type 'estimate' to browse brands.", util.CapitalizeWords(tokens[0])))
	}
	model, ok := matchFold(r.catalog.ListModels(brand), strings.Join(tokens[1:len(tokens)-1], " "))
	if !ok {
		return r.send(ctx, userID, fmt.Sprintf("I don't see that %s model. Type 'estimate' to browse models.", brand))
	}
	issue, ok := matchFold(r.catalog.ListIssues(brand, model), tokens[len(tokens)-1])
	if !ok {
		return r.gateway.SendList(ctx, userID, fmt.Sprintf("For %s %s we repair:", brand, model), r.catalog.ListIssues(brand, model))
	}
	price, found := r.catalog.GetPrice(brand, model, issue)
	if !found {
		return r.send(ctx, userID, fallbackText)
	}
	return r.send(ctx, userID, fmt.Sprintf("%s repair for %s %s costs around ₹%s. Type 'book' to book an appointment.",
		issue, brand, model, util.FormatINR(price)))
}

// listAppointments is a technician-mode command showing the latest bookings.
func (r *Router) listAppointments(ctx context.Context, userID string) error {
	sess, ok := r.sessions.Get(userID)
	if !ok || !sess.TechMode {
		return r.fallback(ctx, userID, "appointments")
	}
	appts, err := r.store.ListAppointments()
	if err != nil {
		return fmt.Errorf("failed to list appointments for technician view: %w", err)
	}
	if len(appts) == 0 {
		return r.send(ctx, userID, "No appointments on file.")
	}
	if len(appts) > 5 {
		appts = appts[:5]
	}
	var b strings.Builder
	b.WriteString("Latest appointments:")
	for _, a := range appts {
		fmt.Fprintf(&b, "\n%s — %s, %s %s (%s) %s %s [%s]", a.ID, a.Name, a.Brand, a.Model, a.Issue, a.Date, a.Time, a.Status)
	}
	return r.send(ctx, userID, b.String())
}

// setTechMode flips the technician flag on the user's session, creating an
// idle session to carry the flag when none exists.
func (r *Router) setTechMode(ctx context.Context, userID string, on bool) error {
	commandsTotal.WithLabelValues("tech_mode").Inc()
	sess, ok := r.sessions.Get(userID)
	if !ok {
		sess = r.sessions.Begin(userID, models.FlowNone)
		sess.Step = models.StepIdle
	}
	sess.TechMode = on
	slog.Warn("Technician mode toggled", "userID", userID, "enabled", on)
	if on {
		return r.send(ctx, userID, "🔧 Technician mode unlocked. Type 'appointments' for the latest bookings.")
	}
	return r.send(ctx, userID, "Technician mode locked.")
}

// fallback asks the assistant with recent chat history and degrades to the
// static help line when the assistant is absent, errors, or has no answer.
func (r *Router) fallback(ctx context.Context, userID, text string) error {
	fallbacksTotal.Inc()
	if r.assist == nil {
		return r.send(ctx, userID, fallbackText)
	}
	history, err := r.store.ListMessages(userID, historyLimit)
	if err != nil {
		slog.Warn("Failed to load chat history for fallback", "userID", userID, "error", err)
		history = nil
	}
	answer, err := r.assist.AnswerFreeform(ctx, text, history)
	if err != nil {
		slog.Warn("Assistant fallback failed", "userID", userID, "error", err)
		return r.send(ctx, userID, fallbackText)
	}
	if answer == "" {
		return r.send(ctx, userID, fallbackText)
	}
	return r.send(ctx, userID, answer)
}

func (r *Router) send(ctx context.Context, userID, body string) error {
	if err := r.gateway.SendText(ctx, userID, body); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", userID, err)
	}
	return nil
}

// matchFold finds needle in options ignoring case.
func matchFold(options []string, needle string) (string, bool) {
	for _, opt := range options {
		if strings.EqualFold(opt, needle) {
			return opt, true
		}
	}
	return "", false
}
