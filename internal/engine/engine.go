// Package engine is the decision engine: a small state machine mapping one
// classification plus order-id presence plus run mode to exactly one terminal
// action, then applying that action's ticket side effects and writing exactly
// one audit record. No state re-enters the engine.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"cancelbot/internal/audit"
	"cancelbot/internal/classify"
	"cancelbot/internal/config"
	"cancelbot/internal/fulfill"
	"cancelbot/internal/logging"
	"cancelbot/internal/order"
	"cancelbot/internal/ticket"
)

// State is a terminal outcome. Exactly one is chosen per run.
type State string

const (
	StateNotedNotCancellation State = "noted_not_cancellation"
	StateNotedMissingOrderID  State = "noted_missing_order_id"
	StateNotedDryRunSimulated State = "noted_dry_run_simulated"
	StateCancelledSuccess     State = "cancelled_success"
	StateCancelledFailure     State = "cancelled_failure"
)

// tagCategory maps each terminal state to the configuration key whose tag
// set is applied to the ticket. Table-driven so operators can retarget tags
// in rules.yaml without code changes.
var tagCategory = map[State]string{
	StateNotedNotCancellation: "not_cancellation",
	StateNotedMissingOrderID:  "failure",
	StateNotedDryRunSimulated: "success",
	StateCancelledSuccess:     "success",
	StateCancelledFailure:     "failure",
}

// TicketService is the ticketing collaborator the engine drives.
type TicketService interface {
	FetchOneUnresolved(ctx context.Context) (*ticket.Context, error)
	PostPrivateNote(ctx context.Context, slug, text string) (bool, string)
	AddTags(ctx context.Context, slug string, tags []string) (bool, string)
	Assign(ctx context.Context, slug, assignee string) (bool, string)
}

// Classifier turns raw ticket text into a classification result.
type Classifier interface {
	Classify(ctx context.Context, text string) classify.Result
}

// Canceller performs the real cancellation call. May be nil when no
// fulfillment client could be constructed; the engine treats that as a
// setup failure if and when a real cancellation is required.
type Canceller interface {
	Cancel(ctx context.Context, orderID string) fulfill.Outcome
}

// Auditor persists the run's audit record.
type Auditor interface {
	LogAction(rec *audit.Record) error
}

// RunResult is the outcome of one engine run.
type RunResult struct {
	State          State
	Ticket         *ticket.Context
	Classification classify.Result
	OrderID        string
	NoteOK         bool
}

// Engine orchestrates one triage run.
type Engine struct {
	cfg        *config.Config
	tickets    TicketService
	classifier Classifier
	canceller  Canceller
	auditor    Auditor
	runID      string
	out        io.Writer
}

// New builds an engine. out receives the human-readable progress trace.
func New(cfg *config.Config, tickets TicketService, classifier Classifier, canceller Canceller, auditor Auditor, runID string, out io.Writer) *Engine {
	if out == nil {
		out = io.Discard
	}
	return &Engine{
		cfg:        cfg,
		tickets:    tickets,
		classifier: classifier,
		canceller:  canceller,
		auditor:    auditor,
		runID:      runID,
		out:        out,
	}
}

// Run processes at most one ticket start to finish. A nil result with a nil
// error means no unresolved ticket was found. Ticket mutations already
// applied are never rolled back if a later step fails.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	tc, err := e.tickets.FetchOneUnresolved(ctx)
	if err != nil {
		logging.EngineDebug("ticket fetch failed: %v", err)
		return nil, fmt.Errorf("ticket fetch failed: %w", err)
	}
	if tc == nil {
		fmt.Fprintln(e.out, "no unresolved conversations found")
		return nil, nil
	}
	fmt.Fprintf(e.out, "processing conversation %s: %s\n", tc.Slug, tc.Subject)

	result := e.classifier.Classify(ctx, tc.CombinedText())
	clsJSON, _ := json.MarshalIndent(result.Classification, "", "  ")
	fmt.Fprintf(e.out, "classification (%s): %s\n", result.Source, clsJSON)
	if result.Source == classify.SourceFallback {
		logging.Engine("classifier fell back to defaults: %s", result.FallbackReason)
	}

	orderID := order.Normalize(result.Classification.OrderID)

	run := &RunResult{Ticket: tc, Classification: result, OrderID: orderID}
	switch {
	case result.Classification.Intent != classify.IntentCancelOrder:
		e.noteNotCancellation(ctx, run, clsJSON)
	case orderID == "":
		e.noteMissingOrderID(ctx, run)
	case e.cfg.DryRun:
		e.noteDryRun(ctx, run, clsJSON)
	default:
		e.performCancel(ctx, run)
	}

	logging.Engine("run %s finished in state %s for %s", e.runID, run.State, tc.Slug)
	return run, nil
}

func (e *Engine) noteNotCancellation(ctx context.Context, run *RunResult, clsJSON []byte) {
	run.State = StateNotedNotCancellation
	note := fmt.Sprintf("Not a cancellation based on classifier.\n\nClassifier JSON:\n```json\n%s\n```", clsJSON)
	if run.Classification.Source == classify.SourceFallback {
		note += fmt.Sprintf("\n\nClassifier fell back to defaults: %s", run.Classification.FallbackReason)
	}
	ok := e.applyTicketEffects(ctx, run, note)
	run.NoteOK = ok
	e.writeAudit(run, ok, map[string]interface{}{
		"classifier": run.Classification.Classification,
	})
	fmt.Fprintf(e.out, "noted classification; tags added; assigned to %s\n", e.cfg.Assignee)
}

func (e *Engine) noteMissingOrderID(ctx context.Context, run *RunResult) {
	run.State = StateNotedMissingOrderID
	note := "Cancellation intent detected but no order id found.\nTagged for human review and assigned."
	ok := e.applyTicketEffects(ctx, run, note)
	run.NoteOK = ok
	e.writeAudit(run, false, map[string]interface{}{
		"error":      "missing_order_id",
		"classifier": run.Classification.Classification,
	})
	fmt.Fprintln(e.out, "missing order id; routed to human review")
}

func (e *Engine) noteDryRun(ctx context.Context, run *RunResult, clsJSON []byte) {
	run.State = StateNotedDryRunSimulated
	payload := fulfill.BuildCancelPayload(run.OrderID)
	payloadJSON, _ := json.MarshalIndent(payload, "", "  ")
	note := fmt.Sprintf(
		"[DRY RUN] Classified as cancellation.\nNo fulfillment call made. Here is the payload that WOULD be sent:\n\n```json\n%s\n```\nClassifier: %s",
		payloadJSON, clsJSON)
	ok := e.applyTicketEffects(ctx, run, note)
	run.NoteOK = ok
	e.writeAudit(run, true, map[string]interface{}{
		"dry_run":    true,
		"payload":    payload,
		"classifier": run.Classification.Classification,
	})
	fmt.Fprintln(e.out, "[dry run] note posted; tags added; assigned; logged")
}

func (e *Engine) performCancel(ctx context.Context, run *RunResult) {
	outcome := e.cancel(ctx, run.OrderID)
	if outcome.OK {
		run.State = StateCancelledSuccess
		note := fmt.Sprintf("Auto-cancel success for `%s`.\n\nResponse:\n```json\n%s\n```", run.OrderID, outcome.Payload)
		run.NoteOK = e.applyTicketEffects(ctx, run, note)
		e.writeAudit(run, true, map[string]interface{}{
			"ok":         true,
			"payload":    outcome.Payload,
			"classifier": run.Classification.Classification,
		})
		fmt.Fprintf(e.out, "cancellation succeeded for %s\n", run.OrderID)
		return
	}

	run.State = StateCancelledFailure
	note := fmt.Sprintf("Auto-cancel failed for `%s`.\n\nError:\n```\n%v\n```\nTagged for human review.", run.OrderID, outcome.Err)
	run.NoteOK = e.applyTicketEffects(ctx, run, note)
	e.writeAudit(run, false, map[string]interface{}{
		"ok":         false,
		"error":      outcome.Err.Error(),
		"classifier": run.Classification.Classification,
	})
	fmt.Fprintf(e.out, "cancellation failed for %s: %v\n", run.OrderID, outcome.Err)
}

func (e *Engine) cancel(ctx context.Context, orderID string) fulfill.Outcome {
	if e.canceller == nil {
		return fulfill.Outcome{Err: fmt.Errorf("%w: no fulfillment client configured", fulfill.ErrSetup)}
	}
	return e.canceller.Cancel(ctx, orderID)
}

// applyTicketEffects posts the note, applies the state's configured tag set
// and assigns the ticket. Tag and assign failures are logged but do not
// change the terminal state.
func (e *Engine) applyTicketEffects(ctx context.Context, run *RunResult, note string) bool {
	ok, detail := e.tickets.PostPrivateNote(ctx, run.Ticket.Slug, note)
	if !ok {
		logging.EngineDebug("note failed for %s: %s", run.Ticket.Slug, detail)
	}
	if tagsOK, tagDetail := e.tickets.AddTags(ctx, run.Ticket.Slug, e.cfg.TagsFor(tagCategory[run.State])); !tagsOK {
		logging.EngineDebug("tagging failed for %s: %s", run.Ticket.Slug, tagDetail)
	}
	if assignOK, assignDetail := e.tickets.Assign(ctx, run.Ticket.Slug, e.cfg.Assignee); !assignOK {
		logging.EngineDebug("assign failed for %s: %s", run.Ticket.Slug, assignDetail)
	}
	return ok
}

// writeAudit writes the run's single audit record. An audit write failure is
// logged but does not alter the terminal state: ticket mutations already
// applied are not retracted.
func (e *Engine) writeAudit(run *RunResult, success bool, result map[string]interface{}) {
	result["state"] = string(run.State)
	if run.Classification.Source == classify.SourceFallback {
		result["classifier_fallback"] = run.Classification.FallbackReason
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		resultJSON = []byte(fmt.Sprintf(`{"state":%q}`, run.State))
	}

	rec := &audit.Record{
		RunID:      e.runID,
		ConvoSlug:  run.Ticket.Slug,
		OrderID:    run.OrderID,
		Intent:     string(run.Classification.Classification.Intent),
		Success:    success,
		ResultJSON: string(resultJSON),
	}
	if err := e.auditor.LogAction(rec); err != nil {
		logging.EngineDebug("audit write failed for %s: %v", run.Ticket.Slug, err)
	}
}
