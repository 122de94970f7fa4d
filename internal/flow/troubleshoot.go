package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gadgetcare/repairbot/internal/models"
)

// deviceTypes are the accepted answers at the device-type step.
var deviceTypes = []string{"phone", "laptop", "tablet", "other"}

// StartTroubleshoot opens a troubleshoot session at the issue step.
func (e *Engine) StartTroubleshoot(ctx context.Context, userID string) error {
	sess := e.sessions.Begin(userID, models.FlowTroubleshoot)
	sess.Step = models.StepIssue
	slog.Info("Troubleshoot flow started", "userID", userID)
	return e.send(ctx, userID, "I can help with software issues! 🛠️ Briefly describe the problem (a sentence or two).")
}

// troubleshootStep dispatches one input line within the troubleshoot flow.
func (e *Engine) troubleshootStep(ctx context.Context, sess *models.Session, input string) (Transition, error) {
	switch sess.Step {
	case models.StepIssue:
		return e.troubleshootIssue(ctx, sess, input)
	case models.StepDeviceType:
		return e.troubleshootDeviceType(ctx, sess, input)
	case models.StepErrorDetails:
		return e.troubleshootErrorDetails(ctx, sess, input)
	case models.StepAnalyze:
		return e.troubleshootAnalyze(ctx, sess, input)
	default:
		return e.endUnknown(ctx, sess)
	}
}

// troubleshootIssue collects the problem description, insisting on a
// minimally useful length.
func (e *Engine) troubleshootIssue(ctx context.Context, sess *models.Session, input string) (Transition, error) {
	desc := strings.TrimSpace(input)
	if len(desc) < minIssueChars {
		return Stay(), e.send(ctx, sess.UserID, "Could you describe the problem in a bit more detail? A sentence or two helps a lot.")
	}
	sess.SetData(models.DataIssue, desc)
	if err := e.gateway.SendList(ctx, sess.UserID, "What device is it?", deviceTypes); err != nil {
		return Stay(), err
	}
	return Next(models.StepDeviceType), nil
}

// troubleshootDeviceType records the device category.
func (e *Engine) troubleshootDeviceType(ctx context.Context, sess *models.Session, input string) (Transition, error) {
	choice, ok := resolveOption(strings.TrimSpace(input), deviceTypes)
	if !ok {
		choice = strings.ToLower(strings.TrimSpace(input))
	}
	valid := false
	for _, dt := range deviceTypes {
		if choice == dt {
			valid = true
			break
		}
	}
	if !valid {
		return Stay(), e.gateway.SendList(ctx, sess.UserID, "Please pick the device type:", deviceTypes)
	}
	sess.SetData(models.DataDeviceType, choice)
	if err := e.send(ctx, sess.UserID, "Any error message or code on the screen? Describe what you see — or send a photo. 📸"); err != nil {
		return Stay(), err
	}
	return Next(models.StepErrorDetails), nil
}

// troubleshootErrorDetails runs the diagnosis: the local knowledge base is
// consulted first, the assistant second, with a safe apology last.
func (e *Engine) troubleshootErrorDetails(ctx context.Context, sess *models.Session, input string) (Transition, error) {
	details := strings.TrimSpace(input)
	if details == "" {
		return Stay(), e.send(ctx, sess.UserID, "Describe what you see on the screen, or send a photo.")
	}
	sess.SetData(models.DataErrorDetails, details)

	diagnosis := e.diagnose(ctx, sess)
	if err := e.send(ctx, sess.UserID, diagnosis); err != nil {
		return Stay(), err
	}
	if err := e.send(ctx, sess.UserID, "Did that help? Reply 'yes' if it's sorted, or 'book' to book a repair with us."); err != nil {
		return Stay(), err
	}
	return Next(models.StepAnalyze), nil
}

// troubleshootAnalyze closes the loop: solved ends the session, unsolved
// hands over to booking.
func (e *Engine) troubleshootAnalyze(ctx context.Context, sess *models.Session, input string) (Transition, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes", "try", "sorted", "worked", "fixed":
		if err := e.send(ctx, sess.UserID, "Great, glad it helped! 🎉 Type 'menu' anytime you need us."); err != nil {
			return Stay(), err
		}
		return End(), nil
	case "book", "no", "n", "appointment":
		if err := e.send(ctx, sess.UserID, "Let's get it fixed properly. What's your name?"); err != nil {
			return Stay(), err
		}
		return Switch(models.FlowBooking, models.StepName), nil
	default:
		return Stay(), e.send(ctx, sess.UserID, "Reply 'yes' if the problem is sorted, or 'book' to book a repair.")
	}
}

// troubleshootImage handles a photo as an alternate error-details input. The
// assistant's vision capability produces the diagnosis; without it the flow
// falls back to the knowledge base over the typed description.
func (e *Engine) troubleshootImage(ctx context.Context, sess *models.Session, image []byte, mimeType, caption string) (Transition, error) {
	sess.SetData(models.DataErrorDetails, strings.TrimSpace("[photo] "+caption))

	var diagnosis string
	if e.assist != nil {
		result, err := e.assist.AnalyzeImage(ctx, image, mimeType, caption)
		if err != nil {
			slog.Warn("Assistant image analysis failed", "userID", sess.UserID, "error", err)
		} else {
			diagnosis = result
		}
	}
	if diagnosis == "" {
		diagnosis = e.diagnose(ctx, sess)
	}
	if err := e.send(ctx, sess.UserID, diagnosis); err != nil {
		return Stay(), err
	}
	if err := e.send(ctx, sess.UserID, "Did that help? Reply 'yes' if it's sorted, or 'book' to book a repair with us."); err != nil {
		return Stay(), err
	}
	return Next(models.StepAnalyze), nil
}

// diagnose tiers through the knowledge base, then the assistant, then an
// honest apology that still keeps the booking door open.
func (e *Engine) diagnose(ctx context.Context, sess *models.Session) string {
	text := sess.GetData(models.DataIssue) + " " + sess.GetData(models.DataErrorDetails)
	if solution, ok := e.kb.Match(text); ok {
		slog.Debug("Knowledge base matched troubleshoot query", "userID", sess.UserID)
		return solution
	}
	if e.assist != nil {
		result, err := e.assist.Diagnose(ctx, sess.GetData(models.DataIssue), sess.GetData(models.DataDeviceType), sess.GetData(models.DataErrorDetails))
		if err != nil {
			slog.Warn("Assistant diagnosis failed", "userID", sess.UserID, "error", err)
		} else if result != "" {
			return result
		}
	}
	return "I couldn't pin this one down remotely — it may need a hands-on look."
}
