package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"moveline/internal/app"
	"moveline/internal/chat"
	"moveline/internal/domain"
	"moveline/internal/session"
	movelinesdk "moveline/sdk/go"
)

// view is what the terminal renders after every turn.
type view struct {
	SessionID   string
	Mode        string
	CurrentStep string
	Messages    []viewMessage
	Completion  float64
	CanSubmit   bool
}

type viewMessage struct {
	ID      string
	Role    string
	Content string
	StepID  string
	Input   string
	Options []viewOption
}

type viewOption struct {
	Label string
	Value string
}

// backend is a conversation the REPL drives, in process or over HTTP.
type backend interface {
	Start(ctx context.Context) (view, error)
	Answer(ctx context.Context, stepID string, value any, display string) (view, error)
	Message(ctx context.Context, text string) (view, error)
	Mode(ctx context.Context, mode string) (view, error)
	Revert(ctx context.Context, stepID string) (view, error)
	Set(ctx context.Context, path string, value any) (view, error)
	Save(ctx context.Context) (string, error)
	Submit(ctx context.Context) (string, error)
}

type localBackend struct {
	mgr *session.Manager
	id  string
}

func (b *localBackend) view(s *session.Session) view {
	c := s.Chat()
	st := c.Status()
	v := view{SessionID: s.ID, Mode: string(c.Mode()), CurrentStep: c.CurrentStepID(), Completion: st.CompletionRate, CanSubmit: st.CanSubmit}
	for _, m := range c.Messages() {
		vm := viewMessage{ID: m.ID, Role: string(m.Role), Content: m.Content, StepID: m.StepID, Input: string(m.Input)}
		for _, o := range m.Options {
			vm.Options = append(vm.Options, viewOption{Label: o.Label, Value: o.Value})
		}
		v.Messages = append(v.Messages, vm)
	}
	return v
}

func (b *localBackend) do(ctx context.Context, fn func(*session.Session) error) (view, error) {
	s, err := b.mgr.Do(ctx, b.id, fn)
	if s == nil {
		return view{}, err
	}
	return b.view(s), err
}

func (b *localBackend) Start(ctx context.Context) (view, error) {
	s, err := b.mgr.Create(ctx)
	if err != nil {
		return view{}, err
	}
	b.id = s.ID
	return b.view(s), nil
}

func (b *localBackend) Answer(ctx context.Context, stepID string, value any, display string) (view, error) {
	return b.do(ctx, func(s *session.Session) error { return s.Chat().HandleGuidedAnswer(stepID, value, display) })
}

func (b *localBackend) Message(ctx context.Context, text string) (view, error) {
	return b.do(ctx, func(s *session.Session) error { return s.Chat().HandleFreeTextInput(ctx, text) })
}

func (b *localBackend) Mode(ctx context.Context, mode string) (view, error) {
	return b.do(ctx, func(s *session.Session) error { return s.Chat().SetInputMode(chat.InputMode(mode)) })
}

func (b *localBackend) Revert(ctx context.Context, stepID string) (view, error) {
	return b.do(ctx, func(s *session.Session) error { return s.Chat().RevertToStep(stepID) })
}

func (b *localBackend) Set(ctx context.Context, path string, value any) (view, error) {
	return b.do(ctx, func(s *session.Session) error { return s.Chat().SetFieldValue(path, value, domain.ConfidenceForm) })
}

func (b *localBackend) Save(ctx context.Context) (string, error) {
	est, err := b.mgr.Save(ctx, b.id)
	return est.ID, err
}

func (b *localBackend) Submit(ctx context.Context) (string, error) {
	est, err := b.mgr.Submit(ctx, b.id)
	return est.ID, err
}

type remoteBackend struct {
	client *movelinesdk.Client
	id     string
}

func (b *remoteBackend) view(s movelinesdk.Session, err error) (view, error) {
	if err != nil {
		return view{}, err
	}
	v := view{SessionID: s.ID, Mode: s.Mode, CurrentStep: s.CurrentStep, Completion: s.Progress.CompletionRate, CanSubmit: s.Progress.CanSubmit}
	for _, m := range s.Messages {
		vm := viewMessage{ID: m.ID, Role: m.Role, Content: m.Content, StepID: m.StepID, Input: m.Input}
		for _, o := range m.Options {
			vm.Options = append(vm.Options, viewOption{Label: o.Label, Value: o.Value})
		}
		v.Messages = append(v.Messages, vm)
	}
	return v, nil
}

func (b *remoteBackend) Start(ctx context.Context) (view, error) {
	s, err := b.client.CreateSession(ctx)
	b.id = s.ID
	return b.view(s, err)
}

func (b *remoteBackend) Answer(ctx context.Context, stepID string, value any, display string) (view, error) {
	return b.view(b.client.Answer(ctx, b.id, stepID, value, display))
}

func (b *remoteBackend) Message(ctx context.Context, text string) (view, error) {
	return b.view(b.client.SendMessage(ctx, b.id, text))
}

func (b *remoteBackend) Mode(ctx context.Context, mode string) (view, error) {
	return b.view(b.client.SetMode(ctx, b.id, mode))
}

func (b *remoteBackend) Revert(ctx context.Context, stepID string) (view, error) {
	return b.view(b.client.Revert(ctx, b.id, stepID))
}

func (b *remoteBackend) Set(ctx context.Context, path string, value any) (view, error) {
	return b.view(b.client.SetField(ctx, b.id, path, value))
}

func (b *remoteBackend) Save(ctx context.Context) (string, error) {
	est, err := b.client.Save(ctx, b.id)
	return est.ID, err
}

func (b *remoteBackend) Submit(ctx context.Context) (string, error) {
	est, err := b.client.Submit(ctx, b.id)
	return est.ID, err
}

func chatCmd() *cobra.Command {
	var remote, token string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Fill in a moving request from the terminal",
		Long: `Starts a conversation. Answer the question shown, or type a command:
  /mode guided|free_text   switch input mode
  /back <step_id>          reopen a step
  /set <path>=<value>      write one field
  /save, /submit           persist the estimate
  /quit                    leave`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote != "" {
				client := movelinesdk.New(remote)
				client.BearerToken = token
				return runChat(cmd.Context(), &remoteBackend{client: client}, os.Stdin, os.Stdout)
			}
			return withRuntime(cmd.Context(), true, func(ctx context.Context, rt *app.Runtime) error {
				return runChat(ctx, &localBackend{mgr: rt.Sessions(nil)}, os.Stdin, os.Stdout)
			})
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "", "server URL; talk to a running API instead of in process")
	cmd.Flags().StringVar(&token, "token", "", "bearer token for --remote")
	return cmd
}

func runChat(ctx context.Context, b backend, in io.Reader, out io.Writer) error {
	v, err := b.Start(ctx)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	render(out, v, seen)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		next, quit, err := handleLine(ctx, b, v, line, out)
		if quit {
			return nil
		}
		if err != nil {
			fmt.Fprintln(out, "error:", err)
		}
		if next != nil {
			v = *next
			render(out, v, seen)
		}
	}
}

func handleLine(ctx context.Context, b backend, v view, line string, out io.Writer) (*view, bool, error) {
	var (
		next view
		err  error
	)
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return nil, true, nil
	case "/mode":
		next, err = b.Mode(ctx, arg)
	case "/back":
		next, err = b.Revert(ctx, arg)
	case "/set":
		path, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, false, fmt.Errorf("usage: /set <path>=<value>")
		}
		next, err = b.Set(ctx, strings.TrimSpace(path), parseScalar(strings.TrimSpace(raw)))
	case "/save", "/submit":
		var id string
		if cmd == "/save" {
			id, err = b.Save(ctx)
		} else {
			id, err = b.Submit(ctx)
		}
		if err == nil {
			verb := map[string]string{"/save": "saved", "/submit": "submitted"}[cmd]
			fmt.Fprintf(out, "estimate %s %s\n", id, verb)
		}
		return nil, false, err
	default:
		if v.Mode == string(chat.ModeFreeText) || v.CurrentStep == "" {
			next, err = b.Message(ctx, line)
		} else {
			q := question(v)
			next, err = b.Answer(ctx, v.CurrentStep, parseAnswer(line, q.Input, q.Options), line)
		}
	}
	if err != nil {
		return nil, false, err
	}
	return &next, false, nil
}

// question is the newest prompt for the current step.
func question(v view) viewMessage {
	for i := len(v.Messages) - 1; i >= 0; i-- {
		m := v.Messages[i]
		if m.Role == string(chat.RoleAI) && m.StepID == v.CurrentStep && m.Input != "" {
			return m
		}
	}
	return viewMessage{}
}

func render(out io.Writer, v view, seen map[string]bool) {
	for _, m := range v.Messages {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		if m.Role == string(chat.RoleUser) {
			continue
		}
		fmt.Fprintln(out, m.Content)
		for i, o := range m.Options {
			fmt.Fprintf(out, "  %d) %s\n", i+1, o.Label)
		}
	}
	fmt.Fprintf(out, "[%s | %.0f%% complete", v.Mode, v.Completion*100)
	if v.CanSubmit {
		fmt.Fprint(out, " | ready to /submit")
	}
	fmt.Fprintln(out, "]")
}

// parseAnswer turns terminal input into the value shape the step expects.
func parseAnswer(line, input string, options []viewOption) any {
	switch input {
	case "number":
		if n, err := strconv.Atoi(line); err == nil {
			return n
		}
		return line
	case "toggle_list":
		values := []string{}
		for _, part := range strings.Split(line, ",") {
			if part = strings.TrimSpace(part); part != "" {
				values = append(values, pickOption(part, options))
			}
		}
		return values
	case "phone_verify":
		name, phone, ok := strings.Cut(line, ",")
		if !ok {
			return map[string]any{"phone": strings.TrimSpace(line)}
		}
		return map[string]any{"name": strings.TrimSpace(name), "phone": strings.TrimSpace(phone)}
	}
	if len(options) > 0 {
		return pickOption(line, options)
	}
	return line
}

// pickOption accepts a 1-based index, a label or a raw value.
func pickOption(in string, options []viewOption) string {
	if n, err := strconv.Atoi(in); err == nil && n >= 1 && n <= len(options) {
		return options[n-1].Value
	}
	for _, o := range options {
		if strings.EqualFold(o.Label, in) {
			return o.Value
		}
	}
	return in
}

func parseScalar(raw string) any {
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	return raw
}
