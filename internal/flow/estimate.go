package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gadgetcare/repairbot/internal/models"
	"github.com/gadgetcare/repairbot/internal/util"
)

// StartEstimate reloads the catalog and opens a fresh estimate session at
// the brand step. Without any catalog data the flow refuses to start.
func (e *Engine) StartEstimate(ctx context.Context, userID string) error {
	if err := e.catalog.Reload(); err != nil {
		slog.Warn("Catalog reload failed, keeping previous snapshot", "error", err)
	}
	brands := e.catalog.ListBrands()
	if len(brands) == 0 {
		return e.send(ctx, userID, "Sorry, our price list isn't available right now. Please try again in a bit.")
	}
	sess := e.sessions.Begin(userID, models.FlowEstimate)
	sess.Step = models.StepBrand
	slog.Info("Estimate flow started", "userID", userID)
	return e.gateway.SendList(ctx, userID, "Sure! Which brand is your phone?", brands)
}

// estimateStep dispatches one input line within the estimate flow.
func (e *Engine) estimateStep(ctx context.Context, sess *models.Session, input string) (Transition, error) {
	switch sess.Step {
	case models.StepBrand:
		return e.estimateBrand(ctx, sess, input)
	case models.StepModel:
		return e.estimateModel(ctx, sess, input)
	case models.StepIssue:
		return e.estimateIssue(ctx, sess, input)
	case models.StepOfferBook:
		return e.estimateOfferBook(ctx, sess, input)
	case models.StepModelCustom:
		return e.estimateModelCustom(ctx, sess, input)
	case models.StepIssueCustom:
		return e.estimateIssueCustom(ctx, sess, input)
	default:
		return e.endUnknown(ctx, sess)
	}
}

// estimateBrand resolves the brand by 1-based index or typed name. A brand
// outside the catalog degrades to the custom branch instead of a dead end.
func (e *Engine) estimateBrand(ctx context.Context, sess *models.Session, input string) (Transition, error) {
	brands := e.catalog.ListBrands()
	brand, ok := resolveOption(input, brands)
	if !ok {
		brand = util.CapitalizeWords(input)
	}
	if !e.catalog.HasBrand(brand) {
		// Blank input and stray numbers re-prompt; only a typed name opens
		// the custom branch.
		if strings.TrimSpace(input) == "" || isAllDigits(strings.TrimSpace(input)) {
			return Stay(), e.gateway.SendList(ctx, sess.UserID, "Please pick a brand:", brands)
		}
		sess.SetData(models.DataBrand, util.CapitalizeWords(input))
		if err := e.send(ctx, sess.UserID, fmt.Sprintf("We don't list %s prices yet, but we can still help. Which model is it?", sess.GetData(models.DataBrand))); err != nil {
			return Stay(), err
		}
		return Next(models.StepModelCustom), nil
	}
	sess.SetData(models.DataBrand, brand)
	sess.ModelList = e.catalog.ListModels(brand)
	sess.SetData(models.DataModelPage, "0")
	return Next(models.StepModel), e.sendModelPage(ctx, sess)
}

// estimateModel resolves the model against the current page of the model
// list. "more" pages forward with wraparound.
func (e *Engine) estimateModel(ctx context.Context, sess *models.Session, input string) (Transition, error) {
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
		if err := e.send(ctx, sess.UserID, "Hmm, I don't see that model. Pick a number from the list, or reply 'more' for more models."); err != nil {
			return Stay(), err
		}
		return Stay(), nil
	}
	sess.SetData(models.DataModel, model)
	issues := e.catalog.ListIssues(brand, model)
	return Next(models.StepIssue), e.gateway.SendList(ctx, sess.UserID, fmt.Sprintf("%s %s — what's the issue?", brand, model), issues)
}

// estimateIssue resolves the issue and quotes the catalog price.
func (e *Engine) estimateIssue(ctx context.Context, sess *models.Session, input string) (Transition, error) {
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
	sess.SetData(models.DataPrice, fmt.Sprintf("%d", price))
	body := fmt.Sprintf("%s repair for %s %s costs around ₹%s.\n\nWould you like to book an appointment? (yes/no)",
		issue, brand, model, util.FormatINR(price))
	if err := e.send(ctx, sess.UserID, body); err != nil {
		return Stay(), err
	}
	return Next(models.StepOfferBook), nil
}

// estimateOfferBook hands the session to the booking flow on yes, carrying
// the collected device data so booking can skip straight to scheduling.
func (e *Engine) estimateOfferBook(ctx context.Context, sess *models.Session, input string) (Transition, error) {
	if isAffirmative(input) {
		if err := e.send(ctx, sess.UserID, "Great! What's your name?"); err != nil {
			return Stay(), err
		}
		return Switch(models.FlowBooking, models.StepName), nil
	}
	if err := e.send(ctx, sess.UserID, "No problem! Type 'menu' anytime if you need anything else. 😊"); err != nil {
		return Stay(), err
	}
	return End(), nil
}

// estimateModelCustom collects a free-text model for an off-catalog brand.
func (e *Engine) estimateModelCustom(ctx context.Context, sess *models.Session, input string) (Transition, error) {
	if strings.TrimSpace(input) == "" {
		return Stay(), e.send(ctx, sess.UserID, "Which model is it?")
	}
	sess.SetData(models.DataModel, strings.TrimSpace(input))
	if err := e.send(ctx, sess.UserID, "Got it. What's the issue you're facing?"); err != nil {
		return Stay(), err
	}
	return Next(models.StepIssueCustom), nil
}

// estimateIssueCustom produces an assistant price range for an off-catalog
// device. An unavailable assistant degrades to an in-person quote offer; the
// booking handoff stays available either way.
func (e *Engine) estimateIssueCustom(ctx context.Context, sess *models.Session, input string) (Transition, error) {
	if strings.TrimSpace(input) == "" {
		return Stay(), e.send(ctx, sess.UserID, "What's the issue you're facing?")
	}
	issue := util.CapitalizeWords(input)
	sess.SetData(models.DataIssue, issue)

	rng := e.assistantEstimateRange(ctx, sess)
	var body string
	if rng != "" {
		sess.SetData(models.DataEstimateRange, rng)
		body = fmt.Sprintf("For a %s %s with %s, a rough estimate is %s. The exact price depends on inspection.\n\nWould you like to book an appointment? (yes/no)",
			sess.GetData(models.DataBrand), sess.GetData(models.DataModel), issue, rng)
	} else {
		body = "I can't quote that without a quick look at the device, but our technicians can give you an exact price at the shop.\n\nWould you like to book an appointment? (yes/no)"
	}
	if err := e.send(ctx, sess.UserID, body); err != nil {
		return Stay(), err
	}
	return Next(models.StepOfferBook), nil
}

// assistantEstimateRange asks the assistant for a rough range, treating both
// an absent assistant and transport errors as "no range".
func (e *Engine) assistantEstimateRange(ctx context.Context, sess *models.Session) string {
	if e.assist == nil {
		return ""
	}
	rng, err := e.assist.EstimateRange(ctx, sess.GetData(models.DataBrand), sess.GetData(models.DataModel), sess.GetData(models.DataIssue))
	if err != nil {
		slog.Warn("Assistant estimate range failed", "userID", sess.UserID, "error", err)
		return ""
	}
	return rng
}

// modelPage returns the slice of models visible on the session's current page.
func (e *Engine) modelPage(sess *models.Session) []string {
	if len(sess.ModelList) == 0 {
		return nil
	}
	page := parsePage(sess.GetData(models.DataModelPage))
	start := page * modelPageSize
	if start >= len(sess.ModelList) {
		start = 0
		sess.SetData(models.DataModelPage, "0")
	}
	end := start + modelPageSize
	if end > len(sess.ModelList) {
		end = len(sess.ModelList)
	}
	return sess.ModelList[start:end]
}

// advanceModelPage moves to the next page, wrapping to the first page after
// the last.
func (e *Engine) advanceModelPage(sess *models.Session) {
	total := (len(sess.ModelList) + modelPageSize - 1) / modelPageSize
	if total <= 0 {
		total = 1
	}
	page := (parsePage(sess.GetData(models.DataModelPage)) + 1) % total
	sess.SetData(models.DataModelPage, fmt.Sprintf("%d", page))
}

// sendModelPage prompts with the current model page, advertising 'more'
// whenever additional pages exist.
func (e *Engine) sendModelPage(ctx context.Context, sess *models.Session) error {
	page := e.modelPage(sess)
	body := fmt.Sprintf("Which %s model?", sess.GetData(models.DataBrand))
	if len(sess.ModelList) > modelPageSize {
		body += " Reply 'more' to see more models."
	}
	return e.gateway.SendList(ctx, sess.UserID, body, page)
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parsePage(s string) int {
	page := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		page = page*10 + int(r-'0')
	}
	return page
}
