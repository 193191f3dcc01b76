package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moveline/internal/domain"
	"moveline/internal/session"
	"moveline/internal/store"
)

func TestParseAnswer(t *testing.T) {
	opts := []viewOption{{Label: "원룸", Value: "one_room"}, {Label: "투룸", Value: "two_room"}}
	assert.Equal(t, "two_room", parseAnswer("2", "card", opts))
	assert.Equal(t, "one_room", parseAnswer("원룸", "card", opts))
	assert.Equal(t, "office", parseAnswer("office", "card", opts))
	assert.Equal(t, 3, parseAnswer("3", "number", nil))
	assert.Equal(t, "모름", parseAnswer("모름", "number", nil))
	assert.Equal(t, []string{"one_room", "cleaning"}, parseAnswer("1, cleaning", "toggle_list", opts))
	assert.Equal(t, []string{}, parseAnswer(" , ", "toggle_list", opts))
	assert.Equal(t, map[string]any{"name": "홍길동", "phone": "010-1234-5678"}, parseAnswer("홍길동, 010-1234-5678", "phone_verify", nil))
	assert.Equal(t, "2025-06-01", parseAnswer("2025-06-01", "calendar", nil))
}

func TestParseScalar(t *testing.T) {
	assert.Equal(t, 4, parseScalar("4"))
	assert.Equal(t, true, parseScalar("TRUE"))
	assert.Nil(t, parseScalar("null"))
	assert.Equal(t, "강남구", parseScalar("강남구"))
}

func TestRunChatLocal(t *testing.T) {
	st, err := store.OpenSQLite(context.Background(), t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	b := &localBackend{mgr: session.NewManager(session.Options{Store: st})}
	in := strings.NewReader("2025-06-01\n/set departure.address=강남구 역삼동\n/submit\n/save\n/quit\n")
	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), b, in, &out))

	text := out.String()
	assert.Contains(t, text, "error: estimate is not ready for submission")
	assert.Contains(t, text, "saved")

	items, err := st.List(context.Background(), domain.EstimateFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].Schema.Move.Schedule.Date)
	assert.Equal(t, "2025-06-01", *items[0].Schema.Move.Schedule.Date)
	require.NotNil(t, items[0].Schema.Departure.Address)
	assert.Equal(t, "강남구 역삼동", *items[0].Schema.Departure.Address)
}
