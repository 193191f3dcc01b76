package chat

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"moveline/internal/steps"
)

var movingKeywords = []string{
	"이사", "용달", "포장", "반포장", "보관",
	"원룸", "투룸", "쓰리룸", "오피스텔", "아파트", "빌라", "주택", "사무실",
	"에서", "으로", "까지", "층", "평",
	"월", "일", "주", "내일", "모레", "다음", "이번",
	"오전", "오후", "아침", "점심", "저녁",
	"짐", "가전", "가구", "냉장고", "세탁기", "침대", "옷장",
}

var dateKeywords = []string{"월", "일", "다음", "이번", "내일", "모레", "주말", "토", "일요일"}

var (
	simpleNumber = regexp.MustCompile(`^[\d\s]+$`)
	yesPattern   = regexp.MustCompile(`(?i)^(네|예|응|맞아|그래|좋아|ㅇㅇ|ok|yes)$`)
	noPattern    = regexp.MustCompile(`(?i)^(아니|아뇨|노|안|ㄴㄴ|no|nope)$`)
	isoDate      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// ShouldCallAI reports whether text carries enough information to be worth
// a model call. st may be nil when no step is pending.
func ShouldCallAI(text string, st *steps.Step) bool {
	trimmed := strings.TrimSpace(text)
	n := utf8.RuneCountInString(trimmed)
	if n < 5 {
		return false
	}
	if simpleNumber.MatchString(trimmed) || yesPattern.MatchString(trimmed) || noPattern.MatchString(trimmed) {
		return false
	}
	if st != nil && len(st.Options) > 0 {
		in := fold(trimmed)
		for _, opt := range st.Options {
			label := fold(opt.Label)
			if label == in || strings.Contains(label, in) || strings.Contains(in, label) {
				return false
			}
		}
	}
	keywords := countKeywords(trimmed)
	switch {
	case keywords >= 2:
		return true
	case n >= 20 && keywords >= 1:
		return true
	}
	return n >= 30
}

func countKeywords(text string) int {
	lower := fold(text)
	n := 0
	for _, k := range movingKeywords {
		if strings.Contains(lower, k) {
			n++
		}
	}
	return n
}

// IsValidStepAnswer reports whether text could plausibly answer st.
func IsValidStepAnswer(text string, st steps.Step) bool {
	trimmed := strings.TrimSpace(text)
	switch st.Input {
	case steps.InputCalendar:
		if isoDate.MatchString(trimmed) {
			_, err := time.Parse("2006-01-02", trimmed)
			return err == nil
		}
		for _, k := range dateKeywords {
			if strings.Contains(trimmed, k) {
				return true
			}
		}
		return false
	case steps.InputNumber:
		return leadingInt(trimmed)
	case steps.InputButtonList, steps.InputCard:
		in := fold(trimmed)
		for _, opt := range st.Options {
			if fold(opt.Value) == in || fold(opt.Label) == in {
				return true
			}
		}
		return false
	case steps.InputAddress:
		return utf8.RuneCountInString(trimmed) >= 5
	case steps.InputText, steps.InputToggleList, steps.InputSelect:
		return trimmed != ""
	case steps.InputPhoneVerify:
		digits := 0
		for _, r := range trimmed {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		return digits >= 10 && digits <= 11
	}
	return true
}

// leadingInt mirrors integer parsing that accepts trailing text ("3층").
func leadingInt(s string) bool {
	end := 0
	for i, r := range s {
		if (r == '-' || r == '+') && i == 0 {
			end = i + 1
			continue
		}
		if r < '0' || r > '9' {
			break
		}
		end = i + 1
	}
	_, err := strconv.Atoi(s[:end])
	return err == nil
}

// Intent is a coarse classification of free text.
type Intent string

const (
	IntentAnswer   Intent = "answer"
	IntentQuestion Intent = "question"
	IntentCommand  Intent = "command"
)

// InferIntent classifies text as a question, an edit command or an answer.
func InferIntent(text string) Intent {
	t := strings.ToLower(strings.TrimSpace(text))
	if strings.HasSuffix(t, "?") || strings.Contains(t, "뭐") || strings.Contains(t, "어떻게") || strings.Contains(t, "왜") {
		return IntentQuestion
	}
	for _, p := range []string{"다시", "취소", "수정"} {
		if strings.HasPrefix(t, p) {
			return IntentCommand
		}
	}
	return IntentAnswer
}
