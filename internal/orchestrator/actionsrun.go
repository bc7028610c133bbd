package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/execengine"
	"github.com/ComputerAces/Genesis-AI-Agent/internal/models"
)

// maxObservationLength bounds the output text surfaced on action_output
// events. The text folded back into the conversation is not truncated.
const maxObservationLength = 4000

// actionObservation is one completed action's result, in completion order.
type actionObservation struct {
	name   string
	output string
}

// checkPermissions implements spec §4.1 step 12: every requested action
// must be permitted; the first one that isn't is returned so the caller can
// pause the turn on it.
func (o *Orchestrator) checkPermissions(ctx context.Context, userID, chatID string, requests []ActionRequest) (ActionRequest, bool) {
	for _, req := range requests {
		allowed, err := o.permissions.Check(ctx, userID, req.Name, chatID)
		if err != nil {
			o.logger.Warn("permission check failed", "action", req.Name, "error", err)
			allowed = false
		}
		if o.metrics != nil {
			decision := "granted"
			if !allowed {
				decision = "denied"
			}
			o.metrics.PermissionDecisions.WithLabelValues(decision).Inc()
		}
		if !allowed {
			return req, false
		}
	}
	return ActionRequest{}, true
}

// runActions implements spec §4.1 step 13: dispatch every permitted action
// onto the Execution Engine's shared worker pool, draining a shared
// progress channel into action_update/stream events while polling for
// completions, and appending a system ChatItem per completed action.
func (o *Orchestrator) runActions(ctx context.Context, userID, chatID string, requests []ActionRequest, events chan<- TurnEvent) []actionObservation {
	type completion struct {
		name   string
		result execengine.Result
	}

	progressCh := make(chan struct {
		name string
		data map[string]any
	}, 64)
	resultsCh := make(chan completion, len(requests))

	var wg sync.WaitGroup
	for _, req := range requests {
		wg.Add(1)
		go func(req ActionRequest) {
			defer wg.Done()

			action, plugin, ok := o.registry.GetAction(req.Name)
			if !ok {
				resultsCh <- completion{req.Name, execengine.Result{Status: execengine.StatusError, Error: "action not found"}}
				return
			}

			start := time.Now()
			result := o.engine.Execute(ctx, plugin, action, req.Args, execengine.Context{
				UserID:      userID,
				ChatID:      chatID,
				ExecutionID: uuid.New().String(),
			}, func(ev map[string]any) {
				progressCh <- struct {
					name string
					data map[string]any
				}{req.Name, ev}
			})
			if o.metrics != nil {
				o.metrics.ActionDuration.WithLabelValues(req.Name).Observe(time.Since(start).Seconds())
				o.metrics.ActionExecutions.WithLabelValues(req.Name, string(result.Status)).Inc()
			}
			resultsCh <- completion{req.Name, result}
		}(req)
	}

	go func() {
		wg.Wait()
		close(resultsCh)
		close(progressCh)
	}()

	observations := make([]actionObservation, 0, len(requests))
	progressOpen, resultsOpen := true, true
	for progressOpen || resultsOpen {
		select {
		case p, ok := <-progressCh:
			if !ok {
				progressOpen = false
				continue
			}
			status, _ := p.data["status"].(string)
			events <- TurnEvent{Kind: EventActionUpdate, ActionName: p.name, UpdateType: status, UpdateData: p.data}
			if msg, ok := p.data["message"].(string); ok && msg != "" {
				events <- TurnEvent{Kind: EventStream, Chunk: msg}
			}
		case c, ok := <-resultsCh:
			if !ok {
				resultsOpen = false
				continue
			}
			output := formatResultOutput(c.result)
			status := "success"
			if c.result.Status != execengine.StatusSuccess {
				status = "error"
			}
			events <- TurnEvent{Kind: EventActionOutput, ActionName: c.name, Status: status, Output: truncate(output, maxObservationLength)}

			if _, err := o.store.AppendItem(ctx, models.ChatItem{
				ChatID:  chatID,
				Role:    models.RoleSystem,
				Content: fmt.Sprintf("[Action Output: %s] %s", c.name, output),
			}); err != nil {
				o.logger.Warn("failed to append action output item", "action", c.name, "error", err)
			}

			observations = append(observations, actionObservation{name: c.name, output: output})
		}
	}

	return observations
}

// formatResultOutput renders an execengine.Result as model-facing text,
// including the partial-output-on-cancellation shape spec §5 prescribes.
func formatResultOutput(r execengine.Result) string {
	if r.Status != execengine.StatusSuccess {
		if r.PartialOutput != "" {
			return fmt.Sprintf("%s\n[Partial Output]: %s", r.Error, r.PartialOutput)
		}
		return r.Error
	}
	if s, ok := r.Output.(string); ok {
		return s
	}
	raw, err := json.Marshal(r.Output)
	if err != nil {
		return fmt.Sprintf("%v", r.Output)
	}
	return string(raw)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
