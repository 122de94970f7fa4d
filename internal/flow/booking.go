package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gadgetcare/repairbot/internal/models"
	"github.com/gadgetcare/repairbot/internal/util"
)

// StartBooking opens a fresh booking session at the name step.
func (e *Engine) StartBooking(ctx context.Context, userID string) error {
	sess := e.sessions.Begin(userID, models.FlowBooking)
	sess.Step = models.StepName
	slog.Info("Booking flow started", "userID", userID)
	return e.send(ctx, userID, "Let's book an appointment! 📅 What's your name?")
}

// bookingStep dispatches one input line within the booking flow.
func (e *Engine) bookingStep(ctx context.Context, sess *models.Session, input string) (Transition, error) {
	switch sess.Step {
	case models.StepName:
		return e.bookingName(ctx, sess, input)
	case models.StepBrand:
		return e.bookingBrand(ctx, sess, input)
	case models.StepModel:
		return e.bookingModel(ctx, sess, input)
	case models.StepIssue:
		return e.bookingIssue(ctx, sess, input)
	case models.StepModelCustom:
		return e.bookingModelCustom(ctx, sess, input)
	case models.StepIssueCustom:
		return e.bookingIssueCustom(ctx, sess, input)
	case models.StepDate:
		return e.bookingDate(ctx, sess, input)
	case models.StepTime:
		return e.bookingTime(ctx, sess, input)
	case models.StepConfirm:
		return e.bookingConfirm(ctx, sess, input)
	default:
		return e.endUnknown(ctx, sess)
	}
}

// bookingName records the customer name. When the session already carries a
// device (handoff from estimate or search) the flow skips straight to
// scheduling; otherwise it collects brand/model/issue first.
func (e *Engine) bookingName(ctx context.Context, sess *models.Session, input string) (Transition, error) {
	name := strings.TrimSpace(input)
	if name == "" {
		return Stay(), e.send(ctx, sess.UserID, "Please tell me your name.")
	}
	sess.SetData(models.DataName, util.CapitalizeWords(name))

	brand := sess.GetData(models.DataBrand)
	model := sess.GetData(models.DataModel)
	if brand != "" && model != "" {
		if sess.GetData(models.DataIssue) != "" {
			if err := e.send(ctx, sess.UserID, fmt.Sprintf("Thanks %s! What date works for you? (YYYY-MM-DD, or just tell me)", sess.GetData(models.DataName))); err != nil {
				return Stay(), err
			}
			return Next(models.StepDate), nil
		}
		// Device known (search handoff) but no issue picked yet.
		if issues := e.catalog.ListIssues(brand, model); len(issues) > 0 {
			if err := e.gateway.SendList(ctx, sess.UserID, fmt.Sprintf("Thanks %s! What's the issue with your %s %s?", sess.GetData(models.DataName), brand, model), issues); err != nil {
				return Stay(), err
			}
			return Next(models.StepIssue), nil
		}
		if err := e.send(ctx, sess.UserID, fmt.Sprintf("Thanks %s! What's the issue with the device?", sess.GetData(models.DataName))); err != nil {
			return Stay(), err
		}
		return Next(models.StepIssueCustom), nil
	}

	if err := e.catalog.Reload(); err != nil {
		slog.Warn("Catalog reload failed, keeping previous snapshot", "error", err)
	}
	brands := e.catalog.ListBrands()
	if len(brands) == 0 {
		// No catalog at all; go straight to free-text device capture.
		if err := e.send(ctx, sess.UserID, fmt.Sprintf("Thanks %s! Which brand is your device?", sess.GetData(models.DataName))); err != nil {
			return Stay(), err
		}
		return Next(models.StepBrand), nil
	}
	if err := e.gateway.SendList(ctx, sess.UserID, fmt.Sprintf("Thanks %s! Which brand is your phone?", sess.GetData(models.DataName)), brands); err != nil {
		return Stay(), err
	}
	return Next(models.StepBrand), nil
}

// bookingBrand mirrors the estimate brand step, degrading to the custom
// branch for off-catalog brands.
func (e *Engine) bookingBrand(ctx context.Context, sess *models.Session, input string) (Transition, error) {
	brands := e.catalog.ListBrands()
	brand, ok := resolveOption(input, brands)
	if !ok {
		brand = util.CapitalizeWords(input)
	}
	if !e.catalog.HasBrand(brand) {
		if strings.TrimSpace(input) == "" || (isAllDigits(strings.TrimSpace(input)) && len(brands) > 0) {
			return Stay(), e.gateway.SendList(ctx, sess.UserID, "Please pick a brand:", brands)
		}
		sess.SetData(models.DataBrand, util.CapitalizeWords(input))
		if err := e.send(ctx, sess.UserID, "Got it. Which model is it?"); err != nil {
			return Stay(), err
		}
		return Next(models.StepModelCustom), nil
	}
	sess.SetData(models.DataBrand, brand)
	sess.ModelList = e.catalog.ListModels(brand)
	sess.SetData(models.DataModelPage, "0")
	return Next(models.StepModel), e.sendModelPage(ctx, sess)
}

// bookingModel resolves the model; an off-catalog model keeps the booking
// alive through the custom issue branch.
func (e *Engine) bookingModel(ctx context.Context, sess *models.Session, input string) (Transition, error) {
	if strings.EqualFold(strings.TrimSpace(input), "more") {
		e.advanceModelPage(sess)
		return Stay(), e.sendModelPage(ctx, sess)
	}
	page := e.modelPage(sess)
	model, ok := resolveOption(input, page)
	if !ok {
		model = strings.TrimSpace(input)
	}
	brand := sess.GetData(models.DataBrand)
	if !e.catalog.HasModel(brand, model) {
		if model == "" || isAllDigits(model) {
			return Stay(), e.sendModelPage(ctx, sess)
		}
		sess.SetData(models.DataModel, model)
		if err := e.send(ctx, sess.UserID, "Got it. What's the issue with the device?"); err != nil {
			return Stay(), err
		}
		return Next(models.StepIssueCustom), nil
	}
	sess.SetData(models.DataModel, model)
	issues := e.catalog.ListIssues(brand, model)
	return Next(models.StepIssue), e.gateway.SendList(ctx, sess.UserID, "What's the issue?", issues)
}

// bookingIssue resolves a catalog issue and records its fixed price.
func (e *Engine) bookingIssue(ctx context.Context, sess *models.Session, input string) (Transition, error) {
	brand := sess.GetData(models.DataBrand)
	model := sess.GetData(models.DataModel)
	issues := e.catalog.ListIssues(brand, model)
	issue, ok := resolveOption(input, issues)
	if !ok {
		issue = util.CapitalizeWords(input)
	}
	price, found := e.catalog.GetPrice(brand, model, issue)
	if !found {
		return Stay(), e.gateway.SendList(ctx, sess.UserID, "Please pick one of these issues:", issues)
	}
	sess.SetData(models.DataIssue, issue)
	sess.SetData(models.DataPrice, strconv.Itoa(price))
	body := fmt.Sprintf("Noted — %s, around ₹%s. What date works for you? (YYYY-MM-DD, or just tell me)", issue, util.FormatINR(price))
	if err := e.send(ctx, sess.UserID, body); err != nil {
		return Stay(), err
	}
	return Next(models.StepDate), nil
}

// bookingModelCustom collects a free-text model for an off-catalog brand.
func (e *Engine) bookingModelCustom(ctx context.Context, sess *models.Session, input string) (Transition, error) {
	if strings.TrimSpace(input) == "" {
		return Stay(), e.send(ctx, sess.UserID, "Which model is it?")
	}
	sess.SetData(models.DataModel, strings.TrimSpace(input))
	if err := e.send(ctx, sess.UserID, "Got it. What's the issue with the device?"); err != nil {
		return Stay(), err
	}
	return Next(models.StepIssueCustom), nil
}

// bookingIssueCustom records a free-text issue, attaching an assistant price
// range when one is available.
func (e *Engine) bookingIssueCustom(ctx context.Context, sess *models.Session, input string) (Transition, error) {
	if strings.TrimSpace(input) == "" {
		return Stay(), e.send(ctx, sess.UserID, "What's the issue with the device?")
	}
	sess.SetData(models.DataIssue, util.CapitalizeWords(input))
	body := "Noted. What date works for you? (YYYY-MM-DD, or just tell me)"
	if rng := e.assistantEstimateRange(ctx, sess); rng != "" {
		sess.SetData(models.DataEstimateRange, rng)
		body = fmt.Sprintf("Noted — rough estimate %s, exact price after inspection. What date works for you? (YYYY-MM-DD, or just tell me)", rng)
	}
	if err := e.send(ctx, sess.UserID, body); err != nil {
		return Stay(), err
	}
	return Next(models.StepDate), nil
}

// bookingDate accepts a strict YYYY-MM-DD date first and falls back to the
// assistant for natural phrasing ("next Friday").
func (e *Engine) bookingDate(ctx context.Context, sess *models.Session, input string) (Transition, error) {
	date := strings.TrimSpace(input)
	if !models.IsValidDateString(date) {
		date = e.assistantDate(ctx, sess.UserID, input)
	}
	if date == "" {
		return Stay(), e.send(ctx, sess.UserID, "Sorry, I didn't get that date. Please use YYYY-MM-DD (e.g., 2025-10-26).")
	}
	sess.SetData(models.DataDate, date)
	if err := e.send(ctx, sess.UserID, "And what time? (HH:MM, 24-hour — or just tell me)"); err != nil {
		return Stay(), err
	}
	return Next(models.StepTime), nil
}

// bookingTime accepts a strict HH:MM time first with the same assistant
// fallback, then presents the confirmation summary.
func (e *Engine) bookingTime(ctx context.Context, sess *models.Session, input string) (Transition, error) {
	t := strings.TrimSpace(input)
	if !models.IsValidTimeString(t) {
		t = e.assistantTime(ctx, sess.UserID, input)
	}
	if t == "" {
		return Stay(), e.send(ctx, sess.UserID, "Sorry, I didn't get that time. Please use HH:MM, 24-hour (e.g., 15:30).")
	}
	sess.SetData(models.DataTime, t)
	if err := e.send(ctx, sess.UserID, e.confirmSummary(sess)); err != nil {
		return Stay(), err
	}
	return Next(models.StepConfirm), nil
}

// bookingConfirm commits the appointment on yes and cancels on anything
// else. A persistence failure keeps the session at confirm so the next
// message retries; job-sheet delivery failures after a successful save only
// warn and never roll the booking back.
func (e *Engine) bookingConfirm(ctx context.Context, sess *models.Session, input string) (Transition, error) {
	if !isAffirmative(input) {
		if err := e.send(ctx, sess.UserID, "Okay, I've cancelled the booking. Type 'menu' if you need anything else."); err != nil {
			return Stay(), err
		}
		return End(), nil
	}

	appt := e.buildAppointment(sess)
	id, err := e.store.CreateAppointment(appt)
	if err != nil {
		slog.Error("Failed to save appointment", "userID", sess.UserID, "error", err)
		if sendErr := e.send(ctx, sess.UserID, "⚠️ I couldn't save your appointment just now. Reply 'yes' to try again."); sendErr != nil {
			return Stay(), sendErr
		}
		return Stay(), fmt.Errorf("failed to save appointment for %s: %w", sess.UserID, err)
	}
	appt.ID = id
	appointmentsBookedTotal.Inc()
	slog.Info("Appointment booked", "userID", sess.UserID, "appointmentID", id, "date", appt.Date, "time", appt.Time)

	confirmation := fmt.Sprintf("✅ Appointment booked!\nID: %s\n📅 %s at %s\n\nWe'll message you to confirm. Reply 'menu' anytime.", id, appt.Date, appt.Time)
	if err := e.send(ctx, sess.UserID, confirmation); err != nil {
		return End(), err
	}
	e.deliverJobSheet(ctx, sess.UserID, appt)
	return End(), nil
}

// deliverJobSheet renders and sends the PDF job sheet. Every failure here is
// a soft warning; the appointment is already committed.
func (e *Engine) deliverJobSheet(ctx context.Context, userID string, appt models.Appointment) {
	if e.renderer == nil {
		return
	}
	path, err := e.renderer.RenderJobSheet(appt)
	if err != nil {
		jobSheetFailuresTotal.Inc()
		slog.Warn("Job sheet render failed", "userID", userID, "appointmentID", appt.ID, "error", err)
		e.warnJobSheet(ctx, userID)
		return
	}
	if err := e.gateway.SendDocument(ctx, userID, path, fmt.Sprintf("Job sheet for %s", appt.ID)); err != nil {
		jobSheetFailuresTotal.Inc()
		slog.Warn("Job sheet delivery failed", "userID", userID, "appointmentID", appt.ID, "error", err)
		e.warnJobSheet(ctx, userID)
	}
}

func (e *Engine) warnJobSheet(ctx context.Context, userID string) {
	if err := e.send(ctx, userID, "(Couldn't attach your job sheet PDF — we'll have a copy ready at the shop.)"); err != nil {
		slog.Warn("Job sheet warning message failed", "userID", userID, "error", err)
	}
}

// buildAppointment assembles the appointment record from session data.
func (e *Engine) buildAppointment(sess *models.Session) models.Appointment {
	appt := models.Appointment{
		CustomerWhatsApp: sess.UserID,
		Name:             sess.GetData(models.DataName),
		Brand:            sess.GetData(models.DataBrand),
		Model:            sess.GetData(models.DataModel),
		Issue:            sess.GetData(models.DataIssue),
		EstimateRange:    sess.GetData(models.DataEstimateRange),
		Date:             sess.GetData(models.DataDate),
		Time:             sess.GetData(models.DataTime),
		Status:           models.AppointmentStatusPending,
	}
	if price, err := strconv.Atoi(sess.GetData(models.DataPrice)); err == nil {
		appt.Estimate = &price
	}
	return appt
}

// confirmSummary renders the pre-commit booking recap.
func (e *Engine) confirmSummary(sess *models.Session) string {
	estimate := "To be quoted at the shop"
	if p := sess.GetData(models.DataPrice); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			estimate = "₹" + util.FormatINR(n)
		}
	} else if rng := sess.GetData(models.DataEstimateRange); rng != "" {
		estimate = rng
	}
	return fmt.Sprintf("Please confirm your booking:\n👤 %s\n📱 %s %s\n🔧 %s\n💰 %s\n📅 %s\n🕒 %s\n\nReply 'yes' to confirm or 'no' to cancel.",
		sess.GetData(models.DataName),
		sess.GetData(models.DataBrand), sess.GetData(models.DataModel),
		sess.GetData(models.DataIssue),
		estimate,
		sess.GetData(models.DataDate), sess.GetData(models.DataTime))
}

// assistantDate asks the assistant to parse a natural-language date,
// treating absence and errors as "no date".
func (e *Engine) assistantDate(ctx context.Context, userID, text string) string {
	if e.assist == nil {
		return ""
	}
	date, err := e.assist.ParseNaturalDate(ctx, text)
	if err != nil {
		slog.Warn("Assistant date parse failed", "userID", userID, "error", err)
		return ""
	}
	if !models.IsValidDateString(date) {
		return ""
	}
	return date
}

// assistantTime mirrors assistantDate for times.
func (e *Engine) assistantTime(ctx context.Context, userID, text string) string {
	if e.assist == nil {
		return ""
	}
	t, err := e.assist.ParseNaturalTime(ctx, text)
	if err != nil {
		slog.Warn("Assistant time parse failed", "userID", userID, "error", err)
		return ""
	}
	if !models.IsValidTimeString(t) {
		return ""
	}
	return t
}
