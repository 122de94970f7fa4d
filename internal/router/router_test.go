package router

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gadgetcare/repairbot/internal/flow"
	"github.com/gadgetcare/repairbot/internal/messaging"
	"github.com/gadgetcare/repairbot/internal/models"
	"github.com/gadgetcare/repairbot/internal/session"
	"github.com/gadgetcare/repairbot/internal/store"
	"github.com/gadgetcare/repairbot/internal/testutil"
)

const testUser = "919876543210"

type harness struct {
	router   *Router
	gateway  *messaging.MockGateway
	sessions session.Repository
	store    *store.InMemoryStore
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		gateway:  messaging.NewMockGateway(),
		sessions: session.NewMemoryRepository(),
		store:    store.NewInMemoryStore(),
	}
	cat := testutil.NewCatalog()
	engine := flow.NewEngine(h.sessions, cat, h.gateway, h.store, engineOptions(opts)...)
	h.router = New(h.sessions, engine, cat, h.gateway, h.store, opts...)
	return h
}

// engineOptions mirrors the router's assistant option onto the engine so
// both layers see the same collaborator, as in production wiring.
func engineOptions(opts []Option) []flow.Option {
	probe := &Router{}
	for _, opt := range opts {
		opt(probe)
	}
	if probe.assist != nil {
		return []flow.Option{flow.WithAssistant(probe.assist)}
	}
	return nil
}

func (h *harness) say(t *testing.T, text string) {
	t.Helper()
	require.NoError(t, h.router.HandleMessage(context.Background(), models.Incoming{From: testUser, Text: text}))
}

func TestGreetingShowsMenu(t *testing.T) {
	h := newHarness(t)
	for _, greeting := range []string{"hi", "Hello", "HEY", "menu"} {
		h.gateway.Reset()
		h.say(t, greeting)
		assert.Contains(t, h.gateway.LastSent(), "1) Repair cost estimate", "greeting %q", greeting)
	}
}

func TestDigitShortcutsStartFlows(t *testing.T) {
	h := newHarness(t)

	h.say(t, "1")
	sess, ok := h.sessions.Get(testUser)
	require.True(t, ok)
	assert.Equal(t, models.FlowEstimate, sess.Flow)

	h.sessions.End(testUser)
	h.say(t, "2")
	sess, _ = h.sessions.Get(testUser)
	assert.Equal(t, models.FlowBooking, sess.Flow)

	h.sessions.End(testUser)
	h.say(t, "3")
	sess, _ = h.sessions.Get(testUser)
	assert.Equal(t, models.FlowTroubleshoot, sess.Flow)

	h.sessions.End(testUser)
	h.say(t, "4")
	assert.Contains(t, h.gateway.LastSent(), "I can do these:")
	assert.False(t, h.sessions.IsActive(testUser), "help opens no session")
}

func TestHelpListsCommands(t *testing.T) {
	h := newHarness(t)
	h.say(t, "help")
	assert.Contains(t, h.gateway.LastSent(), "estimate — get repair cost")
	assert.Contains(t, h.gateway.LastSent(), "cancel — stop current flow")
}

func TestIdleCancelIsAcknowledged(t *testing.T) {
	h := newHarness(t)
	const ack = "Okay, I've cancelled the current flow. Type 'menu' to start again."

	h.say(t, "cancel")
	assert.Equal(t, ack, h.gateway.LastSent())

	// Cancelling again with nothing in progress reads the same.
	h.say(t, "cancel")
	assert.Equal(t, ack, h.gateway.LastSent())

	h.say(t, "reset")
	assert.Equal(t, ack, h.gateway.LastSent())
	assert.False(t, h.sessions.IsActive(testUser))
}

func TestDigitsDelegateToActiveSession(t *testing.T) {
	h := newHarness(t)
	h.say(t, "estimate")
	h.say(t, "1") // must select Apple, not restart the estimate flow
	sess, _ := h.sessions.Get(testUser)
	assert.Equal(t, models.StepModel, sess.Step)
	assert.Equal(t, "Apple", sess.GetData(models.DataBrand))
}

func TestMenuOverridesActiveSession(t *testing.T) {
	h := newHarness(t)
	h.say(t, "book")
	h.say(t, "Asha")
	h.say(t, "menu") // mid-flow escape hatch
	assert.False(t, h.sessions.IsActive(testUser))
	assert.Contains(t, h.gateway.LastSent(), "1) Repair cost estimate")
}

func TestExitSoftClearsSession(t *testing.T) {
	h := newHarness(t)
	h.say(t, "estimate")
	h.say(t, "exit")
	assert.False(t, h.sessions.IsActive(testUser))
	assert.Contains(t, h.gateway.LastSent(), "exiting")
}

func TestEchoRepeatsText(t *testing.T) {
	h := newHarness(t)
	h.say(t, "echo Hello there!")
	assert.Equal(t, "Hello there!", h.gateway.LastSent())
}

func TestQuickPriceCommand(t *testing.T) {
	h := newHarness(t)
	h.say(t, "price apple iphone 12 screen")
	assert.Contains(t, h.gateway.LastSent(), "₹8,500")
	assert.False(t, h.sessions.IsActive(testUser), "one-shot command opens no session")
}

func TestQuickPriceUnknownIssueListsIssues(t *testing.T) {
	h := newHarness(t)
	h.say(t, "price apple iphone 12 antenna")
	assert.Contains(t, h.gateway.LastSent(), "1) Battery")
	assert.Contains(t, h.gateway.LastSent(), "2) Screen")
}

func TestQuickPriceTooFewTokens(t *testing.T) {
	h := newHarness(t)
	h.say(t, "price apple")
	assert.Contains(t, h.gateway.LastSent(), "price <brand> <model> <issue>")
}

func TestFindOpensSearchSession(t *testing.T) {
	h := newHarness(t)
	h.say(t, "find iphone")
	sess, ok := h.sessions.Get(testUser)
	require.True(t, ok)
	assert.Equal(t, models.FlowSearchResults, sess.Flow)
	assert.NotEmpty(t, sess.SearchResults)
}

func TestFallbackWithoutAssistant(t *testing.T) {
	h := newHarness(t)
	h.say(t, "do you sell chargers?")
	assert.Equal(t, "I didn't catch that. Type 'menu' to see options.", h.gateway.LastSent())
}

func TestFallbackUsesAssistant(t *testing.T) {
	assist := &testutil.MockAssistant{FreeformReply: "Yes, we stock chargers for most phones."}
	h := newHarness(t, WithAssistant(assist))
	h.say(t, "do you sell chargers?")
	assert.Equal(t, "Yes, we stock chargers for most phones.", h.gateway.LastSent())
	assert.Contains(t, assist.Calls, "AnswerFreeform")
}

func TestFallbackAssistantErrorDegrades(t *testing.T) {
	assist := &testutil.MockAssistant{Err: fmt.Errorf("rate limited")}
	h := newHarness(t, WithAssistant(assist))
	h.say(t, "do you sell chargers?")
	assert.Equal(t, "I didn't catch that. Type 'menu' to see options.", h.gateway.LastSent())
}

func TestTechModeUnlockAndAppointments(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.CreateAppointment(models.Appointment{
		CustomerWhatsApp: testUser, Name: "Asha", Brand: "Apple", Model: "iPhone 12",
		Issue: "Screen", Date: "2025-10-26", Time: "15:30", Status: models.AppointmentStatusPending,
	})
	require.NoError(t, err)

	h.say(t, "appointments")
	assert.Contains(t, h.gateway.LastSent(), "didn't catch that", "locked by default")

	h.say(t, "please unlock technician mode now")
	assert.Contains(t, h.gateway.LastSent(), "Technician mode unlocked")

	h.say(t, "appointments")
	assert.Contains(t, h.gateway.LastSent(), "Asha")

	h.say(t, "lock technician mode")
	h.say(t, "appointments")
	assert.Contains(t, h.gateway.LastSent(), "didn't catch that")
}

func TestTechModeSurvivesSoftClear(t *testing.T) {
	h := newHarness(t)
	h.say(t, "unlock technician mode")
	h.say(t, "estimate")
	h.say(t, "exit")
	sess, ok := h.sessions.Get(testUser)
	require.True(t, ok)
	assert.True(t, sess.TechMode)
}

func TestImageOutsideTroubleshootGetsGuidance(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.router.HandleMessage(context.Background(), models.Incoming{
		From: testUser, Image: []byte{0xFF, 0xD8}, ImageMIME: "image/jpeg",
	}))
	assert.Contains(t, h.gateway.LastSent(), "troubleshoot")
}

func TestImageDuringTroubleshootIsAnalyzed(t *testing.T) {
	assist := &testutil.MockAssistant{ImageReply: "That's a storage-full warning."}
	h := newHarness(t, WithAssistant(assist))
	h.say(t, "troubleshoot")
	h.say(t, "my phone shows a strange warning sign")
	h.say(t, "phone")
	require.NoError(t, h.router.HandleMessage(context.Background(), models.Incoming{
		From: testUser, Image: []byte{0xFF, 0xD8}, ImageMIME: "image/jpeg", Caption: "this one",
	}))
	assert.Contains(t, assist.Calls, "AnalyzeImage")
	sess, _ := h.sessions.Get(testUser)
	assert.Equal(t, models.StepAnalyze, sess.Step)
}
