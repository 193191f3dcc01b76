package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moveline/internal/steps"
)

func step(t *testing.T, id string) steps.Step {
	t.Helper()
	st, ok := steps.ByID(id)
	require.True(t, ok, id)
	return st
}

func TestShouldCallAI(t *testing.T) {
	category := step(t, "move_category")
	cases := []struct {
		text string
		st   *steps.Step
		want bool
	}{
		{"", nil, false},
		{"네", nil, false},
		{"12 34 5", nil, false},
		{"nope", nil, false},
		{"다음주 토요일 이사", nil, true},
		{"빌라/주택이요", &category, false},
		{"강남구 역삼동", nil, false},
		{"서울 강남구에서 마포구로 이사해요", nil, true},
		{"서울특별시 강남구 역삼동에 살아요", nil, false},
		{"abcdefghijklmnopqrstuvwxyzabcdefgh", nil, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ShouldCallAI(tc.text, tc.st), tc.text)
	}
}

func TestIsValidStepAnswer(t *testing.T) {
	date := step(t, "move_date")
	assert.True(t, IsValidStepAnswer("2025-06-01", date))
	assert.False(t, IsValidStepAnswer("2025-13-01", date))
	assert.True(t, IsValidStepAnswer("다음주 토요일", date))
	assert.False(t, IsValidStepAnswer("hello", date))

	floor := step(t, "departure_floor")
	assert.True(t, IsValidStepAnswer("3층", floor))
	assert.True(t, IsValidStepAnswer("-1", floor))
	assert.False(t, IsValidStepAnswer("세 층", floor))

	addr := step(t, "departure_address")
	assert.False(t, IsValidStepAnswer("역삼", addr))
	assert.True(t, IsValidStepAnswer("강남구 역삼동", addr))

	category := step(t, "move_category")
	assert.True(t, IsValidStepAnswer("원룸", category))
	assert.True(t, IsValidStepAnswer("ONE_ROOM", category))
	assert.False(t, IsValidStepAnswer("궁전", category))

	contact := step(t, "contact_verification")
	assert.True(t, IsValidStepAnswer("010-1234-5678", contact))
	assert.False(t, IsValidStepAnswer("010-123", contact))

	assert.True(t, IsValidStepAnswer("냉장고", step(t, "extra_requests")))
	assert.False(t, IsValidStepAnswer("  ", step(t, "extra_requests")))
}

func TestInferIntent(t *testing.T) {
	assert.Equal(t, IntentQuestion, InferIntent("이거 뭐예요"))
	assert.Equal(t, IntentQuestion, InferIntent("사다리차 필요한가요?"))
	assert.Equal(t, IntentCommand, InferIntent("다시 할래요"))
	assert.Equal(t, IntentCommand, InferIntent("취소"))
	assert.Equal(t, IntentAnswer, InferIntent("강남구 역삼동"))
}

func TestMatchOption(t *testing.T) {
	slot := step(t, "time_slot")
	_, ok := matchOption(slot, "오전")
	assert.False(t, ok, "ambiguous containment")

	opt, ok := matchOption(slot, "시간 협의")
	require.True(t, ok)
	assert.Equal(t, "flexible", opt.Value)

	opt, ok = matchOption(slot, "MORNING")
	require.True(t, ok)
	assert.Equal(t, "morning", opt.Value)

	part := step(t, "customer_participation")
	opt, ok = matchOption(part, "응")
	require.True(t, ok)
	assert.Equal(t, "true", opt.Value)
	opt, ok = matchOption(part, "아뇨")
	require.True(t, ok)
	assert.Equal(t, "false", opt.Value)

	_, ok = matchOption(step(t, "departure_address"), "강남")
	assert.False(t, ok)
}
