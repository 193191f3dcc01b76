package chat

import (
	"moveline/internal/engine"
)

// State is the serialisable conversation, engine included.
type State struct {
	Messages   []Message       `json:"messages"`
	Mode       InputMode       `json:"mode"`
	Current    string          `json:"current,omitempty"`
	Recovery   RecoveryState   `json:"recovery"`
	ReadyShown bool            `json:"readyShown,omitempty"`
	Engine     engine.Snapshot `json:"engine"`
}

type RecoveryState struct {
	Active      bool     `json:"active"`
	StepID      string   `json:"stepId,omitempty"`
	Attempted   []string `json:"attempted"`
	NoticeShown bool     `json:"noticeShown"`
}

// Snapshot captures the conversation. An in-flight parse is not part of it.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]Message, len(c.messages))
	copy(msgs, c.messages)
	return State{
		Messages: msgs,
		Mode:     c.mode,
		Current:  c.current,
		Recovery: RecoveryState{
			Active:      c.recovery.active,
			StepID:      c.recovery.stepID,
			Attempted:   sortedKeys(c.recovery.attempted),
			NoticeShown: c.recovery.noticeShown,
		},
		ReadyShown: c.ready,
		Engine:     c.engine.Snapshot(),
	}
}

// Restore replaces the conversation with st.
func (c *Controller) Restore(st State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.engine.Restore(st.Engine); err != nil {
		return err
	}
	attempted := make(map[string]bool, len(st.Recovery.Attempted))
	for _, p := range st.Recovery.Attempted {
		attempted[p] = true
	}
	c.messages = append([]Message(nil), st.Messages...)
	c.mode = st.Mode
	if c.mode == "" {
		c.mode = ModeGuided
	}
	c.current = st.Current
	c.recovery = recovery{
		active:      st.Recovery.Active,
		stepID:      st.Recovery.StepID,
		attempted:   attempted,
		noticeShown: st.Recovery.NoticeShown,
	}
	c.ready = st.ReadyShown
	c.loading = false
	c.pending = 0
	c.seq++
	return nil
}
