package steps

import "strings"

// RecoveryPrefix marks step ids that belong to the recovery table.
const RecoveryPrefix = "recovery:"

var questionTemplates = map[string]string{
	"move.category":           "어떤 공간에서 이사하시나요?",
	"move.type":               "어떤 이사 서비스를 원하시나요?",
	"move.schedule":           "이사 예정일이 언제인가요?",
	"move.timeSlot":           "희망 시간대를 알려주세요",
	"departure.address":       "출발지 주소를 알려주세요",
	"departure.floor":         "출발지 층수를 알려주세요",
	"departure.hasElevator":   "출발지에 엘리베이터가 있나요?",
	"departure.squareFootage": "출발지 평수를 알려주세요",
	"arrival.address":         "도착지 주소를 알려주세요",
	"arrival.floor":           "도착지 층수를 알려주세요",
	"arrival.hasElevator":     "도착지에 엘리베이터가 있나요?",
	"contact.name":            "이름을 알려주세요",
	"contact.phone":           "연락처를 알려주세요",
}

// QuestionTemplate is the short question used when path is reported missing.
func QuestionTemplate(path string) string {
	if q, ok := questionTemplates[path]; ok {
		return q
	}
	return path + "을(를) 입력해주세요"
}

// FieldPriority ranks a missing field: 1 location, 2 schedule,
// 3 classification, 4 contact.
func FieldPriority(path string) int {
	switch {
	case strings.Contains(path, "floor"), strings.Contains(path, "Elevator"):
		return 1
	case strings.Contains(path, "schedule"):
		return 2
	case strings.Contains(path, "category"), strings.Contains(path, "type"):
		return 3
	case strings.Contains(path, "contact"):
		return 4
	}
	return 3
}

// Main catalog steps reused by recovery, keyed by required path.
var recoverySources = map[string]string{
	"move.category":           "move_category",
	"move.type":               "move_type",
	"move.schedule":           "move_date",
	"move.timeSlot":           "time_slot",
	"departure.address":       "departure_address",
	"departure.floor":         "departure_floor",
	"departure.hasElevator":   "departure_transport",
	"departure.squareFootage": "square_footage",
	"arrival.address":         "arrival_address",
	"arrival.floor":           "arrival_floor",
	"arrival.hasElevator":     "arrival_transport",
}

// Recovery returns the standalone step that re-asks a required path.
func Recovery(path string) (Step, bool) {
	q := QuestionTemplate(path)
	switch path {
	case "contact.name":
		return Step{
			ID:          RecoveryPrefix + path,
			Question:    q,
			Input:       InputText,
			Path:        path,
			Required:    true,
			Placeholder: "이름 입력",
		}, true
	case "contact.phone":
		return Step{
			ID:          RecoveryPrefix + path,
			Question:    q,
			Input:       InputPhoneVerify,
			Path:        path,
			Required:    true,
			Placeholder: "010-0000-0000",
		}, true
	}
	srcID, ok := recoverySources[path]
	if !ok {
		return Step{}, false
	}
	src, _ := ByID(srcID)
	return Step{
		ID:          RecoveryPrefix + path,
		Question:    q,
		Description: src.Description,
		Input:       src.Input,
		Options:     src.Options,
		Path:        src.Path,
		Required:    true,
		Placeholder: src.Placeholder,
		Strategy:    src.Strategy,
	}, true
}

// IsRecovery reports whether id names a recovery step.
func IsRecovery(id string) bool {
	return strings.HasPrefix(id, RecoveryPrefix)
}

// RecoveryByID resolves a recovery step id back to its step.
func RecoveryByID(id string) (Step, bool) {
	if !IsRecovery(id) {
		return Step{}, false
	}
	return Recovery(strings.TrimPrefix(id, RecoveryPrefix))
}
