// Package chat runs the conversational front of the guided flow: it keeps
// the message log, asks the next question, routes typed input to a local
// match or the AI parser, and re-asks missing required fields once.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"moveline/internal/ai"
	"moveline/internal/domain"
	"moveline/internal/engine"
	"moveline/internal/steps"
)

// ErrUnknownMode rejects an input mode other than guided or free_text.
var ErrUnknownMode = errors.New("unknown input mode")

// Controller is safe for concurrent use. The AI call runs without the lock
// held; its result is discarded when any mutation happened meanwhile.
type Controller struct {
	Now   func() time.Time
	NewID func() string

	mu       sync.Mutex
	engine   *engine.Engine
	parser   ai.Parser
	log      *zap.Logger
	messages []Message
	mode     InputMode
	loading  bool
	current  string
	recovery recovery
	ready    bool

	// seq is bumped by every mutation; pending is the token of the parse
	// that owns the loading flag.
	seq     uint64
	pending uint64
}

type recovery struct {
	active      bool
	stepID      string
	attempted   map[string]bool
	noticeShown bool
}

// New wraps eng. A nil parser disables free-text parsing.
func New(eng *engine.Engine, parser ai.Parser, log *zap.Logger) *Controller {
	if parser == nil {
		parser = ai.Disabled{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		Now:      time.Now,
		NewID:    uuid.NewString,
		engine:   eng,
		parser:   parser,
		log:      log,
		mode:     ModeGuided,
		recovery: recovery{attempted: map[string]bool{}},
	}
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Controller) add(m Message) {
	if c.NewID != nil {
		m.ID = c.NewID()
	} else {
		m.ID = uuid.NewString()
	}
	m.Timestamp = c.now()
	c.messages = append(c.messages, m)
}

func (c *Controller) system(text string) {
	c.add(Message{Role: RoleSystem, Content: text})
}

// InitializeChat greets the user and asks the first question. It does
// nothing when the conversation already has messages.
func (c *Controller) InitializeChat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) > 0 {
		return
	}
	c.system(welcomeText)
	c.showNext()
}

// HandleGuidedAnswer answers a catalog step or the pending recovery step.
func (c *Controller) HandleGuidedAnswer(stepID string, value any, display string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answer(stepID, value, display)
}

func (c *Controller) answer(stepID string, value any, display string) error {
	log := c.log.With(zap.String("step_id", stepID))
	if steps.IsRecovery(stepID) {
		st, ok := steps.RecoveryByID(stepID)
		if !ok || !c.recovery.active || c.recovery.stepID != stepID {
			return engine.UnknownStepError{StepID: stepID}
		}
		if err := c.engine.ApplyRecovery(st, value); err != nil {
			log.Debug("recovery answer rejected", zap.Error(err))
			return err
		}
		c.recovery.stepID = ""
	} else if err := c.engine.ProcessAnswer(stepID, value); err != nil {
		log.Debug("answer rejected", zap.Error(err))
		return err
	}
	c.seq++
	c.add(Message{Role: RoleUser, Content: display, StepID: stepID, Editable: !steps.IsRecovery(stepID)})
	c.showNext()
	return nil
}

// ShowNextStep asks the next pending question, enters recovery for missing
// required fields, or announces readiness.
func (c *Controller) ShowNextStep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.showNext()
}

func (c *Controller) showNext() {
	if st, ok := c.engine.CurrentStep(); ok {
		c.recovery.active = false
		c.recovery.stepID = ""
		c.ask(st)
		return
	}
	for _, m := range c.engine.MissingRequiredFields() {
		if c.recovery.attempted[m.Field] {
			continue
		}
		c.recovery.attempted[m.Field] = true
		st, ok := steps.Recovery(m.Field)
		if !ok {
			continue
		}
		if !c.recovery.active {
			c.recovery.active = true
			if !c.recovery.noticeShown {
				c.recovery.noticeShown = true
				c.system(recoveryNoticeText)
			}
		}
		c.recovery.stepID = st.ID
		c.ask(st)
		return
	}
	c.recovery.active = false
	c.recovery.stepID = ""
	c.current = ""
	if c.engine.CanSubmit() && !c.ready {
		c.ready = true
		c.system(readyText)
	}
}

func (c *Controller) ask(st steps.Step) {
	if st.Tip != nil {
		c.system(tipText(st.Tip))
	}
	c.add(Message{
		Role:    RoleSystem,
		Content: questionText(st),
		StepID:  st.ID,
		Input:   st.Input,
		Options: st.Options,
	})
	c.current = st.ID
}

// RevertToStep rolls the flow back to stepID, drops the log from that
// step's answer on and leaves recovery.
func (c *Controller) RevertToStep(stepID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revert(stepID)
}

func (c *Controller) revert(stepID string) error {
	if err := c.engine.RevertToStep(stepID); err != nil {
		return err
	}
	for i, m := range c.messages {
		if m.StepID == stepID && m.Role == RoleUser {
			c.messages = c.messages[:i:i]
			break
		}
	}
	c.recovery = recovery{attempted: map[string]bool{}}
	c.ready = false
	c.seq++
	c.showNext()
	return nil
}

// HandleFreeTextInput handles typed input. Option and plain-value matches
// for the pending step are answered locally; edit commands revert to the
// last answered step; anything substantial goes to the parser.
func (c *Controller) HandleFreeTextInput(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	c.mu.Lock()
	st, hasStep := c.pendingStep()
	if hasStep {
		if opt, ok := matchOption(st, text); ok {
			err := c.answer(st.ID, opt.Value, opt.Label)
			c.mu.Unlock()
			return err
		}
		if !st.HasOptions() && !ShouldCallAI(text, &st) && IsValidStepAnswer(text, st) {
			err := c.answer(st.ID, localValue(st, text), text)
			var invalid steps.InvalidAnswerError
			if err == nil || !errors.As(err, &invalid) {
				c.mu.Unlock()
				return err
			}
		}
	}
	if InferIntent(text) == IntentCommand {
		err := c.editLast()
		c.mu.Unlock()
		return err
	}
	var stp *steps.Step
	if hasStep {
		stp = &st
	}
	if !ShouldCallAI(text, stp) && (!hasStep || !IsValidStepAnswer(text, st)) {
		c.add(Message{Role: RoleUser, Content: text})
		if hasStep {
			c.system(clarifyText + "\n(" + optionHint(st) + ")")
		} else {
			c.system(clarifyText)
		}
		c.mu.Unlock()
		return nil
	}

	c.seq++
	token := c.seq
	c.pending = token
	c.loading = true
	c.add(Message{Role: RoleUser, Content: text})
	parser := c.parser
	log := c.log.With(zap.Uint64("request_token", token))
	c.mu.Unlock()

	res, err := parser.Parse(ctx, text)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		if c.pending == token {
			c.pending = 0
			c.loading = false
		}
	}()
	if c.seq != token {
		log.Info("discarding stale parse result", zap.Uint64("latest_token", c.seq))
		return nil
	}
	if err != nil {
		log.Warn("ai parse failed", zap.Error(err))
		c.system(apologyText)
		return nil
	}
	if !res.Success {
		log.Info("ai parse unsuccessful", zap.String("reason", res.Error))
		c.system(apologyText)
		return nil
	}
	if err := c.engine.ApplyExternalParse(res.Data, res.Confidence); err != nil {
		log.Warn("apply parse failed", zap.Error(err))
		c.system(apologyText)
		return nil
	}
	c.seq++
	msg := Message{Role: RoleAI, Content: res.Message}
	if msg.Content == "" {
		msg.Content = parsedDefaultText
	}
	if avg, ok := res.AverageConfidence(); ok {
		msg.Confidence = &avg
	}
	c.add(msg)
	log.Debug("applied parse", zap.Int("paths", len(res.Confidence)))
	c.showNext()
	return nil
}

// pendingStep resolves the step the conversation is waiting on.
func (c *Controller) pendingStep() (steps.Step, bool) {
	if c.recovery.active && c.recovery.stepID != "" {
		return steps.RecoveryByID(c.recovery.stepID)
	}
	if c.current == "" || steps.IsRecovery(c.current) {
		return steps.Step{}, false
	}
	if c.engine.IsCompleted(c.current) {
		return c.engine.CurrentStep()
	}
	st, ok := steps.ByID(c.current)
	if !ok || steps.IsSkipped(st.ID, c.engine.Schema()) {
		return c.engine.CurrentStep()
	}
	return st, true
}

// localValue shapes typed text into the value the step's transform takes.
func localValue(st steps.Step, text string) any {
	if st.Input == steps.InputPhoneVerify && st.Path == "contact" {
		return map[string]any{"phone": text}
	}
	return text
}

func (c *Controller) editLast() error {
	last, ok := c.engine.LastCompleted()
	if !ok {
		c.showNext()
		return nil
	}
	return c.revert(last.ID)
}

// SetInputMode switches between guided and free-text input.
func (c *Controller) SetInputMode(mode InputMode) error {
	if mode != ModeGuided && mode != ModeFreeText {
		return fmt.Errorf("%w %q", ErrUnknownMode, mode)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
	return nil
}

// ClearChat resets the conversation and starts a new record.
func (c *Controller) ClearChat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine.Reset()
	c.messages = nil
	c.mode = ModeGuided
	c.loading = false
	c.pending = 0
	c.current = ""
	c.recovery = recovery{attempted: map[string]bool{}}
	c.ready = false
	c.seq++
}

// SetFieldValue writes one path from outside the conversation.
func (c *Controller) SetFieldValue(path string, value any, source domain.ConfidenceSource) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.engine.SetFieldValue(path, value, source); err != nil {
		return err
	}
	c.seq++
	return nil
}

// MergeSchemaUpdates merges a patch from outside the conversation.
func (c *Controller) MergeSchemaUpdates(patch domain.Patch, source domain.ConfidenceSource) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.engine.MergeSchemaUpdates(patch, source); err != nil {
		return err
	}
	c.seq++
	return nil
}

// MarkSubmitted stamps the record as submitted.
func (c *Controller) MarkSubmitted() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.engine.MarkSubmitted(); err != nil {
		return err
	}
	c.seq++
	return nil
}

func (c *Controller) Schema() domain.Schema {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.Schema()
}

// Messages returns a copy of the log.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Controller) Mode() InputMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Loading reports whether a parse is in flight. Hosts should not submit
// more free text while it is true.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// CurrentStepID is the id of the last question asked and still pending.
func (c *Controller) CurrentStepID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Status summarises flow progress.
type Status struct {
	CompletionRate float64               `json:"completionRate"`
	StepProgress   float64               `json:"stepProgress"`
	Missing        []domain.MissingField `json:"missingRequired"`
	CanSubmit      bool                  `json:"canSubmit"`
	Completed      []string              `json:"completedSteps"`
	ActiveSteps    []string              `json:"activeSteps"`
	Recovering     bool                  `json:"recovering"`
	Attempted      []string              `json:"attemptedRecovery"`
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	active := c.engine.ActiveSteps()
	ids := make([]string, 0, len(active))
	for _, st := range active {
		ids = append(ids, st.ID)
	}
	completed := c.engine.Completed()
	done := make(map[string]bool, len(completed))
	for _, id := range completed {
		done[id] = true
	}
	return Status{
		CompletionRate: c.engine.CompletionRate(),
		StepProgress:   steps.Progress(done, c.engine.Schema()),
		Missing:        c.engine.MissingRequiredFields(),
		CanSubmit:      c.engine.CanSubmit(),
		Completed:      completed,
		ActiveSteps:    ids,
		Recovering:     c.recovery.active,
		Attempted:      sortedKeys(c.recovery.attempted),
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
