package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gadgetcare/repairbot/internal/models"
)

// StartSearch runs a global catalog search and, when it finds anything,
// opens a search-results session so the user can pick a device by number.
// With no matches nothing changes: no session is opened.
func (e *Engine) StartSearch(ctx context.Context, userID, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return e.send(ctx, userID, "What are you looking for? Try 'find iphone 12'.")
	}
	matches := e.catalog.SearchGlobally(query, searchLimit)
	if len(matches) == 0 {
		slog.Info("Global search found nothing", "userID", userID, "query", query)
		return e.send(ctx, userID, fmt.Sprintf("No matches for \"%s\". Type 'estimate' to browse all brands.", query))
	}
	sess := e.sessions.Begin(userID, models.FlowSearchResults)
	sess.Step = models.StepSelectResult
	sess.SearchResults = matches
	slog.Info("Global search opened results session", "userID", userID, "query", query, "matches", len(matches))

	options := make([]string, len(matches))
	for i, m := range matches {
		options[i] = fmt.Sprintf("%s %s (%s)", m.Brand, m.Model, strings.Join(m.Issues, ", "))
	}
	return e.gateway.SendList(ctx, userID, fmt.Sprintf("Here's what I found for \"%s\":", query), options)
}

// searchStep dispatches one input line within the search-results flow.
func (e *Engine) searchStep(ctx context.Context, sess *models.Session, input string) (Transition, error) {
	switch sess.Step {
	case models.StepSelectResult:
		return e.searchSelectResult(ctx, sess, input)
	case models.StepChooseAction:
		return e.searchChooseAction(ctx, sess, input)
	default:
		return e.endUnknown(ctx, sess)
	}
}

// searchSelectResult picks one match by 1-based number.
func (e *Engine) searchSelectResult(ctx context.Context, sess *models.Session, input string) (Transition, error) {
	n := len(sess.SearchResults)
	if n == 0 {
		return e.endUnknown(ctx, sess)
	}
	pick := strings.TrimSpace(input)
	if !isAllDigits(pick) || parsePage(pick) < 1 || parsePage(pick) > n {
		return Stay(), e.send(ctx, sess.UserID, fmt.Sprintf("Please reply with a number between 1 and %d.", n))
	}
	match := sess.SearchResults[parsePage(pick)-1]
	sess.SetData(models.DataBrand, match.Brand)
	sess.SetData(models.DataModel, match.Model)
	if err := e.gateway.SendList(ctx, sess.UserID, fmt.Sprintf("%s %s — what would you like?", match.Brand, match.Model), []string{"Get an estimate", "Book an appointment"}); err != nil {
		return Stay(), err
	}
	return Next(models.StepChooseAction), nil
}

// searchChooseAction routes the selected device into the estimate or
// booking flow with brand and model already filled in.
func (e *Engine) searchChooseAction(ctx context.Context, sess *models.Session, input string) (Transition, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "estimate", "get an estimate":
		brand := sess.GetData(models.DataBrand)
		model := sess.GetData(models.DataModel)
		issues := e.catalog.ListIssues(brand, model)
		if len(issues) == 0 {
			if err := e.send(ctx, sess.UserID, "Got it. What's the issue you're facing?"); err != nil {
				return Stay(), err
			}
			return Switch(models.FlowEstimate, models.StepIssueCustom), nil
		}
		if err := e.gateway.SendList(ctx, sess.UserID, fmt.Sprintf("%s %s — what's the issue?", brand, model), issues); err != nil {
			return Stay(), err
		}
		return Switch(models.FlowEstimate, models.StepIssue), nil
	case "2", "book", "appointment", "book an appointment":
		if err := e.send(ctx, sess.UserID, "Great! What's your name?"); err != nil {
			return Stay(), err
		}
		return Switch(models.FlowBooking, models.StepName), nil
	default:
		return Stay(), e.gateway.SendList(ctx, sess.UserID, "Please choose:", []string{"Get an estimate", "Book an appointment"})
	}
}
