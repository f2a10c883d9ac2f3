// Package orchestrator sequences one conversation turn: measure the image,
// call the model with the ground truth embedded, validate every proposed tool
// call against that ground truth, execute the valid ones, verify the results,
// and persist what deserves to be learned from. One state machine pass per
// turn, no retries, no background work.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pixelnerd/internal/analysis"
	"pixelnerd/internal/logging"
	"pixelnerd/internal/results"
	"pixelnerd/internal/tools"
	"pixelnerd/internal/types"
	"pixelnerd/internal/validation"
)

// State names one phase of the turn state machine.
type State string

const (
	StateAnalyzingImage State = "analyzing_image"
	StateCallingModel   State = "calling_model"
	StateValidatingTool State = "validating_tool"
	StateExecuting      State = "executing"
	StateScoring        State = "scoring"
	StatePersisting     State = "persisting"
	StateDone           State = "done"
	StateErrored        State = "errored"
)

// historyLimit caps how many similar executions are fed to the validator.
const historyLimit = 5

// ContextStore is the persistence surface the orchestrator needs.
type ContextStore interface {
	SaveTurn(ctx context.Context, conversationID string, msgs []types.ChatMessage, img *types.ImageAnalysis) error
	StoreExecution(ctx context.Context, conversationID string, exec types.ToolExecution) (bool, error)
	FindSimilar(ctx context.Context, toolName string, img types.ImageAnalysis, limit int) ([]types.ToolExecution, error)
	GetContext(ctx context.Context, conversationID string) (*types.ConversationContext, error)
}

// ResultChecker verifies that an executed tool did what its class claims.
type ResultChecker interface {
	Validate(ctx context.Context, req results.Request) types.ResultValidation
}

// Orchestrator runs turns. All collaborators are injected; none are optional
// except the result checker.
type Orchestrator struct {
	analyzer     *analysis.Analyzer
	analysisOpts analysis.Options
	validator    *validation.Validator
	checker      ResultChecker
	executor     types.ToolExecutor
	llm          types.LLMClient
	store        ContextStore
}

// New wires an orchestrator. A nil checker skips post-execution verification.
func New(llm types.LLMClient, executor types.ToolExecutor, st ContextStore, checker ResultChecker) *Orchestrator {
	an := analysis.NewAnalyzer()
	return &Orchestrator{
		analyzer:  an,
		validator: validation.NewValidator(an),
		checker:   checker,
		executor:  executor,
		llm:       llm,
		store:     st,
	}
}

// SetUpscaleLimit overrides the validator's upscale output-area cap.
func (o *Orchestrator) SetUpscaleLimit(pixels int) {
	o.validator.SetMaxUpscalePixels(pixels)
}

// SetAnalysisOptions sets the analyzer options applied to every turn's image,
// such as a caller-known DPI or the dominant-color budget.
func (o *Orchestrator) SetAnalysisOptions(opts analysis.Options) {
	o.analysisOpts = opts
}

// Run executes one turn. It always returns a usable TurnResult: tool-level
// failures are reported per call as partial successes, and only an LLM
// transport failure aborts the turn (confidence 0, error classified).
func (o *Orchestrator) Run(ctx context.Context, req types.TurnRequest) types.TurnResult {
	turnID := uuid.NewString()
	result := types.TurnResult{TurnID: turnID}
	logging.Orchestrator("turn %s: starting (conversation %s)", turnID, req.ConversationID)

	// AnalyzingImage. A failed analysis degrades confidence but the turn
	// proceeds so the user still gets a response.
	o.setState(turnID, StateAnalyzingImage)
	img := o.analyzer.Analyze(ctx, req.ImageRef, o.analysisOpts)
	result.Analysis = &img
	if img.Confidence == 0 {
		logging.Orchestrator("turn %s: analysis failed, proceeding ungrounded", turnID)
	}

	priorContext, err := o.store.GetContext(ctx, req.ConversationID)
	if err != nil {
		logging.Orchestrator("turn %s: context load failed: %v", turnID, err)
		priorContext = nil
	}

	// CallingModel.
	o.setState(turnID, StateCallingModel)
	systemPrompt := buildSystemPrompt(img, priorContext)
	resp, err := o.llm.CompleteWithTools(ctx, systemPrompt, req.Message, tools.Definitions())
	if err != nil {
		result.ErrorClass = ClassifyError(err)
		result.Text = fmt.Sprintf("model call failed (%s): %v", result.ErrorClass, err)
		o.setState(turnID, StateErrored)
		logging.Orchestrator("turn %s: errored: %v (class %s)", turnID, err, result.ErrorClass)
		return result
	}
	result.Text = resp.Text

	// ValidatingTool and Executing, per call, in proposed order. Invalid
	// calls surface as failed outcomes with the validator's errors; they are
	// never executed and never silently dropped. One execution failure does
	// not abort the remaining calls.
	currentRef := req.ImageRef
	for _, call := range resp.ToolCalls {
		outcome := o.runToolCall(ctx, turnID, req.ConversationID, call, img, &currentRef)
		result.ToolOutcomes = append(result.ToolOutcomes, outcome)
	}

	// Scoring: the minimum across the analysis and every executed call's
	// validation confidence. Minimum, not average.
	o.setState(turnID, StateScoring)
	result.Confidence = img.Confidence
	for _, oc := range result.ToolOutcomes {
		if oc.Executed && oc.Validation.Confidence < result.Confidence {
			result.Confidence = oc.Validation.Confidence
		}
	}

	// Persisting: the turn always; executions only through the store's gate.
	o.setState(turnID, StatePersisting)
	o.persist(ctx, req, resp.Text, img, result)

	o.setState(turnID, StateDone)
	logging.Orchestrator("turn %s: done, confidence %.0f, %s", turnID, result.Confidence, result.Summary())
	return result
}

func (o *Orchestrator) runToolCall(ctx context.Context, turnID, conversationID string, call types.ToolCall, img types.ImageAnalysis, currentRef *string) types.ToolOutcome {
	o.setState(turnID, StateValidatingTool)

	history, err := o.store.FindSimilar(ctx, call.Name, img, historyLimit)
	if err != nil {
		logging.Orchestrator("turn %s: history lookup failed for %s: %v", turnID, call.Name, err)
		history = nil
	}

	outcome := types.ToolOutcome{Call: call}
	outcome.Validation = o.validator.Validate(ctx, call, img, *currentRef, history)
	if !outcome.Validation.IsValid {
		outcome.Err = fmt.Sprintf("rejected by validation: %v", outcome.Validation.Errors)
		return outcome
	}

	o.setState(turnID, StateExecuting)
	start := time.Now()
	output, err := o.executor.Execute(ctx, call, *currentRef)
	elapsed := time.Since(start)
	outcome.ElapsedMs = elapsed.Milliseconds()
	if err != nil {
		outcome.Err = err.Error()
		logging.Orchestrator("turn %s: %s failed after %v: %v", turnID, call.Name, elapsed, err)
		return outcome
	}
	outcome.Executed = true
	outcome.Output = output

	if o.checker != nil && tools.ClassOf(call.Name).Mutating() && output.ImageRef != "" {
		check := o.checker.Validate(ctx, results.Request{
			ToolName:  call.Name,
			BeforeRef: *currentRef,
			AfterRef:  output.ImageRef,
		})
		outcome.ResultCheck = &check
		if !check.Success {
			outcome.Err = fmt.Sprintf("result check failed: %v", check.Reasoning)
		}
	}

	// Later calls in the same turn operate on this call's output.
	if output.ImageRef != "" && outcome.Err == "" {
		*currentRef = output.ImageRef
	}
	return outcome
}

func (o *Orchestrator) persist(ctx context.Context, req types.TurnRequest, assistantText string, img types.ImageAnalysis, result types.TurnResult) {
	now := time.Now().UTC()
	msgs := []types.ChatMessage{
		{Role: "user", Content: req.Message, Timestamp: now},
		{Role: "assistant", Content: assistantText, Timestamp: now},
	}
	if err := o.store.SaveTurn(ctx, req.ConversationID, msgs, &img); err != nil {
		logging.Orchestrator("saving turn failed: %v", err)
	}

	for _, oc := range result.ToolOutcomes {
		exec := types.ToolExecution{
			ID:             uuid.NewString(),
			ConversationID: req.ConversationID,
			ToolName:       oc.Call.Name,
			Parameters:     oc.Call.Input,
			Success:        oc.Succeeded(),
			Confidence:     oc.Validation.Confidence,
			ImageSpecs:     img.Snapshot(),
			Timestamp:      now,
		}
		exec.Metrics = types.ResultMetrics{ExecutionTimeMs: oc.ElapsedMs}
		if oc.ResultCheck != nil {
			exec.Metrics.PixelsChanged = oc.ResultCheck.PixelsChanged
			exec.Metrics.PercentageChanged = oc.ResultCheck.PercentageChanged
			exec.Metrics.QualityScore = oc.ResultCheck.QualityScore
		}
		if _, err := o.store.StoreExecution(ctx, req.ConversationID, exec); err != nil {
			logging.Orchestrator("storing execution of %s failed: %v", oc.Call.Name, err)
		}
	}
}

func (o *Orchestrator) setState(turnID string, s State) {
	logging.OrchestratorDebug("turn %s: -> %s", turnID, s)
}
