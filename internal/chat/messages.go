package chat

import (
	"time"

	"moveline/internal/steps"
)

const (
	welcomeText        = "안녕하세요! 이사 견적을 도와드릴게요. 몇 가지 질문에 답해주시면 최적의 업체를 찾아드릴게요."
	readyText          = "모든 정보 입력이 완료되었어요! 아래 버튼을 눌러 견적을 요청해주세요."
	apologyText        = "죄송해요, 입력을 처리하는 중 오류가 발생했어요. 다시 시도해주세요."
	recoveryNoticeText = "아직 입력되지 않은 필수 정보가 있어요. 몇 가지만 더 여쭤볼게요."
	parsedDefaultText  = "정보를 입력받았어요!"
	clarifyText        = "조금 더 자세히 알려주시겠어요?"
)

type Role string

const (
	RoleUser   Role = "user"
	RoleSystem Role = "system"
	RoleAI     Role = "ai"
)

type InputMode string

const (
	ModeGuided   InputMode = "guided"
	ModeFreeText InputMode = "free_text"
)

// Message is one entry of the conversation log.
type Message struct {
	ID         string          `json:"id"`
	Role       Role            `json:"role"`
	Content    string          `json:"content"`
	StepID     string          `json:"stepId,omitempty"`
	Input      steps.InputKind `json:"input,omitempty"`
	Options    []steps.Option  `json:"options,omitempty"`
	Editable   bool            `json:"editable,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

func tipText(t *steps.TipCard) string {
	return "💡 " + t.Title + "\n" + t.Description
}

// questionText appends an inline hint so the step can be answered by typing.
func questionText(st steps.Step) string {
	if hint := optionHint(st); hint != "" {
		return st.Question + "\n(" + hint + ")"
	}
	return st.Question
}
