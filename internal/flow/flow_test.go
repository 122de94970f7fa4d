package flow

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gadgetcare/repairbot/internal/catalog"
	"github.com/gadgetcare/repairbot/internal/messaging"
	"github.com/gadgetcare/repairbot/internal/models"
	"github.com/gadgetcare/repairbot/internal/session"
	"github.com/gadgetcare/repairbot/internal/store"
	"github.com/gadgetcare/repairbot/internal/testutil"
)

const testUser = "919876543210"

type harness struct {
	engine   *Engine
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
	h.engine = NewEngine(h.sessions, testutil.NewCatalog(), h.gateway, h.store, opts...)
	return h
}

// turn feeds one user input through the engine against the live session.
func (h *harness) turn(t *testing.T, input string) {
	t.Helper()
	sess, ok := h.sessions.Get(testUser)
	require.True(t, ok, "no active session for turn %q", input)
	require.NoError(t, h.engine.HandleTurn(context.Background(), sess, input))
}

func (h *harness) session(t *testing.T) *models.Session {
	t.Helper()
	sess, ok := h.sessions.Get(testUser)
	require.True(t, ok, "expected a session")
	return sess
}

func TestEstimateHappyPathHandsOffToBooking(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.StartEstimate(context.Background(), testUser))
	assert.Contains(t, h.gateway.LastSent(), "1) Apple")

	h.turn(t, "1") // Apple
	h.turn(t, "1") // iPhone 12
	h.turn(t, "1") // Battery (issues listed alphabetically)
	assert.Contains(t, h.gateway.LastSent(), "₹3,500")
	assert.Contains(t, h.gateway.LastSent(), "book an appointment")

	h.turn(t, "yes")
	sess := h.session(t)
	assert.Equal(t, models.FlowBooking, sess.Flow)
	assert.Equal(t, models.StepName, sess.Step)
	assert.Equal(t, "Apple", sess.GetData(models.DataBrand))
	assert.Equal(t, "iPhone 12", sess.GetData(models.DataModel))
	assert.Equal(t, "Battery", sess.GetData(models.DataIssue))
}

func TestEstimateTypedNamesResolve(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.StartEstimate(context.Background(), testUser))

	h.turn(t, "apple")     // capitalization is applied before lookup
	h.turn(t, "iPhone 13") // typed model, exact
	h.turn(t, "screen")
	assert.Contains(t, h.gateway.LastSent(), "₹10,500")
}

func TestEstimateDeclineEndsSession(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.StartEstimate(context.Background(), testUser))
	h.turn(t, "1")
	h.turn(t, "1")
	h.turn(t, "2")
	h.turn(t, "no")
	assert.False(t, h.sessions.IsActive(testUser))
}

func TestEstimateUnknownBrandCustomBranch(t *testing.T) {
	assist := &testutil.MockAssistant{RangeReply: "₹1,500–₹3,000"}
	h := newHarness(t, WithAssistant(assist))
	require.NoError(t, h.engine.StartEstimate(context.Background(), testUser))

	h.turn(t, "nokia")
	sess := h.session(t)
	assert.Equal(t, models.StepModelCustom, sess.Step)
	assert.Equal(t, "Nokia", sess.GetData(models.DataBrand))

	h.turn(t, "3310")
	h.turn(t, "screen cracked")
	assert.Contains(t, h.gateway.LastSent(), "₹1,500–₹3,000")
	assert.Equal(t, models.StepOfferBook, h.session(t).Step)
	assert.Contains(t, assist.Calls, "EstimateRange")
}

func TestEstimateCustomBranchWithoutAssistant(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.StartEstimate(context.Background(), testUser))
	h.turn(t, "Nokia")
	h.turn(t, "3310")
	h.turn(t, "screen cracked")
	// No range available, but the booking offer still goes out.
	assert.Contains(t, h.gateway.LastSent(), "book an appointment")
	assert.Equal(t, models.StepOfferBook, h.session(t).Step)
}

func TestEstimateInvalidBrandNumberReprompts(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.StartEstimate(context.Background(), testUser))
	h.turn(t, "7")
	sess := h.session(t)
	assert.Equal(t, models.StepBrand, sess.Step)
	assert.Contains(t, h.gateway.LastSent(), "pick a brand")
}

func TestModelPaginationWrapsAround(t *testing.T) {
	table := catalog.Table{"Acme": {}}
	for i := 1; i <= 11; i++ {
		table["Acme"][fmt.Sprintf("Model %02d", i)] = map[string]int{"Screen": 1000}
	}
	h := newHarness(t)
	h.engine.catalog = catalog.New(table)

	require.NoError(t, h.engine.StartEstimate(context.Background(), testUser))
	h.turn(t, "1")
	first := h.gateway.LastSent()
	assert.Contains(t, first, "10) Model 10")
	assert.NotContains(t, first, "Model 11")
	assert.Contains(t, first, "more")

	h.turn(t, "more")
	assert.Contains(t, h.gateway.LastSent(), "1) Model 11")

	h.turn(t, "more") // wraps back to the first page
	assert.Contains(t, h.gateway.LastSent(), "1) Model 01")

	h.turn(t, "more")
	h.turn(t, "1") // index resolves within the visible page
	assert.Equal(t, "Model 11", h.session(t).GetData(models.DataModel))
}

func TestBookingFullConfirmCommitsAppointment(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.StartBooking(context.Background(), testUser))

	h.turn(t, "asha")
	h.turn(t, "1")          // Apple
	h.turn(t, "iPhone 12")  // typed model
	h.turn(t, "2")          // Screen
	h.turn(t, "2025-10-26")
	h.turn(t, "15:30")
	assert.Contains(t, h.gateway.LastSent(), "Asha")
	assert.Contains(t, h.gateway.LastSent(), "₹8,500")

	h.turn(t, "yes")
	assert.False(t, h.sessions.IsActive(testUser))

	appts, err := h.store.ListAppointments()
	require.NoError(t, err)
	require.Len(t, appts, 1)
	a := appts[0]
	assert.Equal(t, "Asha", a.Name)
	assert.Equal(t, "Apple", a.Brand)
	assert.Equal(t, "iPhone 12", a.Model)
	assert.Equal(t, "Screen", a.Issue)
	require.NotNil(t, a.Estimate)
	assert.Equal(t, 8500, *a.Estimate)
	assert.Equal(t, "2025-10-26", a.Date)
	assert.Equal(t, "15:30", a.Time)
	assert.Equal(t, models.AppointmentStatusPending, a.Status)
	assert.Equal(t, testUser, a.CustomerWhatsApp)
}

func TestBookingHandoffSkipsDeviceSteps(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.StartEstimate(context.Background(), testUser))
	h.turn(t, "1")
	h.turn(t, "1")
	h.turn(t, "1")
	h.turn(t, "yes")

	h.turn(t, "Asha")
	sess := h.session(t)
	assert.Equal(t, models.StepDate, sess.Step, "device already known, go straight to scheduling")
}

func TestBookingDateAssistantFallback(t *testing.T) {
	assist := &testutil.MockAssistant{DateReply: "2025-11-07", TimeReply: "11:00"}
	h := newHarness(t, WithAssistant(assist))
	require.NoError(t, h.engine.StartBooking(context.Background(), testUser))
	h.turn(t, "Ravi")
	h.turn(t, "2")          // Samsung
	h.turn(t, "1")          // Galaxy S21
	h.turn(t, "1")          // Battery
	h.turn(t, "next friday")
	assert.Equal(t, "2025-11-07", h.session(t).GetData(models.DataDate))

	h.turn(t, "around eleven")
	assert.Equal(t, "11:00", h.session(t).GetData(models.DataTime))
	assert.Equal(t, models.StepConfirm, h.session(t).Step)
}

func TestBookingBadDateWithoutAssistantReprompts(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.StartBooking(context.Background(), testUser))
	h.turn(t, "Ravi")
	h.turn(t, "1")
	h.turn(t, "1")
	h.turn(t, "1")
	h.turn(t, "next friday")
	sess := h.session(t)
	assert.Equal(t, models.StepDate, sess.Step)
	assert.Contains(t, h.gateway.LastSent(), "YYYY-MM-DD")
}

func TestBookingDeclineAtConfirmCancels(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.StartBooking(context.Background(), testUser))
	h.turn(t, "Ravi")
	h.turn(t, "1")
	h.turn(t, "1")
	h.turn(t, "1")
	h.turn(t, "2025-10-26")
	h.turn(t, "15:30")
	h.turn(t, "no")
	assert.False(t, h.sessions.IsActive(testUser))
	appts, err := h.store.ListAppointments()
	require.NoError(t, err)
	assert.Empty(t, appts)
}

type failingStore struct {
	*store.InMemoryStore
}

func (f *failingStore) CreateAppointment(models.Appointment) (string, error) {
	return "", fmt.Errorf("disk on fire")
}

func TestBookingPersistFailureKeepsConfirmStep(t *testing.T) {
	h := newHarness(t)
	h.engine.store = &failingStore{h.store}
	require.NoError(t, h.engine.StartBooking(context.Background(), testUser))
	h.turn(t, "Ravi")
	h.turn(t, "1")
	h.turn(t, "1")
	h.turn(t, "1")
	h.turn(t, "2025-10-26")
	h.turn(t, "15:30")

	sess := h.session(t)
	err := h.engine.HandleTurn(context.Background(), sess, "yes")
	assert.Error(t, err)
	assert.Equal(t, models.StepConfirm, sess.Step, "session stays at confirm for retry")
	assert.True(t, h.sessions.IsActive(testUser))
	assert.Contains(t, h.gateway.LastSent(), "try again")
}

type stubRenderer struct {
	path string
	err  error
}

func (r *stubRenderer) RenderJobSheet(models.Appointment) (string, error) { return r.path, r.err }

func TestBookingJobSheetDelivered(t *testing.T) {
	h := newHarness(t, WithRenderer(&stubRenderer{path: "/tmp/sheet.pdf"}))
	require.NoError(t, h.engine.StartBooking(context.Background(), testUser))
	h.turn(t, "Ravi")
	h.turn(t, "1")
	h.turn(t, "1")
	h.turn(t, "1")
	h.turn(t, "2025-10-26")
	h.turn(t, "15:30")
	h.turn(t, "yes")
	assert.Contains(t, h.gateway.Sent(), "[document] /tmp/sheet.pdf")
}

func TestBookingJobSheetFailureIsSoftWarning(t *testing.T) {
	h := newHarness(t, WithRenderer(&stubRenderer{err: fmt.Errorf("font missing")}))
	require.NoError(t, h.engine.StartBooking(context.Background(), testUser))
	h.turn(t, "Ravi")
	h.turn(t, "1")
	h.turn(t, "1")
	h.turn(t, "1")
	h.turn(t, "2025-10-26")
	h.turn(t, "15:30")
	h.turn(t, "yes")

	appts, err := h.store.ListAppointments()
	require.NoError(t, err)
	assert.Len(t, appts, 1, "render failure never rolls the booking back")
	assert.False(t, h.sessions.IsActive(testUser))
	assert.Contains(t, h.gateway.LastSent(), "job sheet")
}

func TestCancelEndsAnyFlow(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.StartBooking(context.Background(), testUser))
	h.turn(t, "Ravi")
	h.turn(t, "cancel")
	assert.False(t, h.sessions.IsActive(testUser))
	assert.Contains(t, h.gateway.LastSent(), "Cancelled")
}

func TestTroubleshootKnowledgeBaseThenBookingHandoff(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.StartTroubleshoot(context.Background(), testUser))

	h.turn(t, "too short") // 9 chars, re-prompt
	assert.Equal(t, models.StepIssue, h.session(t).Step)

	h.turn(t, "my phone keeps restarting again and again")
	h.turn(t, "1") // phone
	h.turn(t, "apple logo shows then it reboots")
	sent := h.gateway.Sent()
	require.GreaterOrEqual(t, len(sent), 2)
	assert.Contains(t, sent[len(sent)-2], "boot loop")
	assert.Contains(t, sent[len(sent)-1], "Did that help?")

	h.turn(t, "book")
	sess := h.session(t)
	assert.Equal(t, models.FlowBooking, sess.Flow)
	assert.Equal(t, models.StepName, sess.Step)
}

func TestTroubleshootSolvedEndsSession(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.StartTroubleshoot(context.Background(), testUser))
	h.turn(t, "my phone keeps restarting again and again")
	h.turn(t, "phone")
	h.turn(t, "it loops on the logo")
	h.turn(t, "yes")
	assert.False(t, h.sessions.IsActive(testUser))
}

func TestTroubleshootWillTryEndsSession(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.StartTroubleshoot(context.Background(), testUser))
	h.turn(t, "my phone keeps restarting again and again")
	h.turn(t, "phone")
	h.turn(t, "it loops on the logo")
	h.turn(t, "try")
	assert.Contains(t, h.gateway.LastSent(), "glad it helped")
	assert.False(t, h.sessions.IsActive(testUser))
}

func TestTroubleshootAssistantFallbackWhenNoKBMatch(t *testing.T) {
	assist := &testutil.MockAssistant{DiagnoseReply: "Try reseating the SIM tray."}
	h := newHarness(t, WithAssistant(assist))
	require.NoError(t, h.engine.StartTroubleshoot(context.Background(), testUser))
	h.turn(t, "the sim card is never detected")
	h.turn(t, "phone")
	h.turn(t, "says no sim installed")
	sent := h.gateway.Sent()
	assert.Contains(t, sent[len(sent)-2], "SIM tray")
	assert.Contains(t, assist.Calls, "Diagnose")
}

func TestTroubleshootImageAnalyzed(t *testing.T) {
	assist := &testutil.MockAssistant{ImageReply: "That's a kernel panic screen. Force restart first."}
	h := newHarness(t, WithAssistant(assist))
	require.NoError(t, h.engine.StartTroubleshoot(context.Background(), testUser))
	h.turn(t, "my phone keeps crashing into a weird screen")
	h.turn(t, "phone")

	sess := h.session(t)
	require.NoError(t, h.engine.HandleImage(context.Background(), sess, []byte{0xFF, 0xD8}, "image/jpeg", "this screen"))
	sent := h.gateway.Sent()
	assert.Contains(t, sent[len(sent)-2], "kernel panic")
	assert.Equal(t, models.StepAnalyze, sess.Step)
}

func TestSearchFlowIntoEstimate(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.StartSearch(context.Background(), testUser, "iphone 12"))
	sess := h.session(t)
	assert.Equal(t, models.FlowSearchResults, sess.Flow)
	require.NotEmpty(t, sess.SearchResults)

	h.turn(t, "1")
	assert.Equal(t, models.StepChooseAction, h.session(t).Step)
	assert.Equal(t, "Apple", h.session(t).GetData(models.DataBrand))
	assert.Equal(t, "iPhone 12", h.session(t).GetData(models.DataModel))

	h.turn(t, "1") // get an estimate
	sess = h.session(t)
	assert.Equal(t, models.FlowEstimate, sess.Flow)
	assert.Equal(t, models.StepIssue, sess.Step)

	h.turn(t, "2") // Screen
	assert.Contains(t, h.gateway.LastSent(), "₹8,500")
}

func TestSearchFlowIntoBooking(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.StartSearch(context.Background(), testUser, "galaxy"))
	h.turn(t, "1")
	h.turn(t, "2")
	sess := h.session(t)
	assert.Equal(t, models.FlowBooking, sess.Flow)
	assert.Equal(t, models.StepName, sess.Step)
	assert.Equal(t, "Samsung", sess.GetData(models.DataBrand))
}

func TestSearchNoMatchesOpensNoSession(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.StartSearch(context.Background(), testUser, "zeppelin"))
	assert.False(t, h.sessions.IsActive(testUser))
	assert.Contains(t, h.gateway.LastSent(), "No matches")
}

func TestSearchSelectOutOfRangeReprompts(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.StartSearch(context.Background(), testUser, "iphone"))
	h.turn(t, "9")
	sess := h.session(t)
	assert.Equal(t, models.StepSelectResult, sess.Step)
	assert.Contains(t, h.gateway.LastSent(), "number between 1 and")
}

func TestUnknownStateEndsSessionSafely(t *testing.T) {
	h := newHarness(t)
	sess := h.sessions.Begin(testUser, models.FlowType("legacy"))
	sess.Step = models.StepType("gone")
	require.NoError(t, h.engine.HandleTurn(context.Background(), sess, "hello"))
	assert.False(t, h.sessions.IsActive(testUser))
	assert.Contains(t, h.gateway.LastSent(), "Session ended")
}
