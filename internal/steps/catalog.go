// Package steps defines the ordered question catalog of the guided flow, its
// skip predicates and answer transforms.
package steps

import (
	"strings"

	"moveline/internal/domain"
)

// InputKind tells the client which widget collects the answer.
type InputKind string

const (
	InputCalendar    InputKind = "calendar"
	InputSelect      InputKind = "select"
	InputCard        InputKind = "card"
	InputButtonList  InputKind = "button_list"
	InputAddress     InputKind = "address"
	InputNumber      InputKind = "number"
	InputToggleList  InputKind = "toggle_list"
	InputText        InputKind = "text"
	InputPhoneVerify InputKind = "phone_verify"
)

type Option struct {
	Label       string   `json:"label"`
	Value       string   `json:"value"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type TipCard struct {
	ID          string `json:"id"`
	Badge       string `json:"badge"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Step is one catalog entry. Strategy names the transform to apply; empty
// means the answer is written to Path as-is.
type Step struct {
	ID          string    `json:"id"`
	Number      int       `json:"number"`
	Question    string    `json:"question"`
	Description string    `json:"description,omitempty"`
	Input       InputKind `json:"input"`
	Options     []Option  `json:"options,omitempty"`
	Path        string    `json:"path"`
	Required    bool      `json:"required"`
	Tip         *TipCard  `json:"tip,omitempty"`
	Placeholder string    `json:"placeholder,omitempty"`
	Strategy    string    `json:"-"`
}

// HasOptions reports whether answers must be one of the step's option values.
func (s Step) HasOptions() bool {
	switch s.Input {
	case InputSelect, InputCard, InputButtonList:
		return len(s.Options) > 0
	}
	return false
}

// Option looks up an option by value.
func (s Step) Option(value string) (Option, bool) {
	for _, o := range s.Options {
		if o.Value == value {
			return o, true
		}
	}
	return Option{}, false
}

var tipCards = map[string]TipCard{
	"peak_season": {
		ID:          "peak_season",
		Badge:       "성수기 안내",
		Title:       "이 날짜는 이사 성수기예요",
		Description: "금요일·주말·공휴일 전날은 평일 대비 20~30% 비쌀 수 있어요",
	},
	"truck_count": {
		ID:          "truck_count",
		Badge:       "트럭 선택 팁",
		Title:       "아래 가구가 3개 이상이라면 2대가 적당해요",
		Description: "양문형 냉장고 / 옷장 / 더블 이상 침대 / 3인용 소파 중 3개",
	},
	"worker_participation": {
		ID:          "worker_participation",
		Badge:       "작업인원 팁",
		Title:       "무거운 짐을 함께 옮길 수 있다면 약 13만원 저렴해요",
		Description: "냉장고, 옷장, 침대, 소파 등",
	},
	"ladder_truck": {
		ID:          "ladder_truck",
		Badge:       "사다리차 안내",
		Title:       "3층 이상이고 엘리베이터가 없으면 사다리차를 추천해요",
		Description: "사다리차 비용: 5~15만원",
	},
}

func tip(id string) *TipCard {
	t := tipCards[id]
	return &t
}

var transportOptions = []Option{
	{Label: "엘리베이터", Value: "elevator", Description: "엘리베이터로 운반"},
	{Label: "계단", Value: "stairs", Description: "계단으로 운반"},
	{Label: "사다리차", Value: "ladder", Description: "사다리차 필요"},
}

func categoryOptions() []Option {
	order := []domain.MoveCategory{
		domain.CategoryOneRoom, domain.CategoryTwoRoom, domain.CategoryThreeRoomPlus,
		domain.CategoryOfficetel, domain.CategoryApartment, domain.CategoryVillaHouse,
		domain.CategoryOffice,
	}
	out := make([]Option, 0, len(order))
	for _, c := range order {
		out = append(out, Option{Label: domain.MoveCategoryLabels[c], Value: string(c)})
	}
	return out
}

var catalog = []Step{
	{
		ID:          "move_date",
		Number:      1,
		Question:    "이사 예정일이 언제인가요?",
		Description: "날짜가 확정되지 않았다면 대략적인 기간을 선택해주세요",
		Input:       InputCalendar,
		Path:        "move.schedule",
		Required:    true,
		Tip:         tip("peak_season"),
		Strategy:    "move_date",
	},
	{
		ID:       "move_category",
		Number:   2,
		Question: "어떤 곳에서 이사하시나요?",
		Input:    InputCard,
		Options:  categoryOptions(),
		Path:     "move.category",
		Required: true,
	},
	{
		ID:       "square_footage",
		Number:   3,
		Question: "현재 살고 계신 곳의 평수는 어떻게 되나요?",
		Input:    InputSelect,
		Options: []Option{
			{Label: "10평 이하", Value: "under_10"},
			{Label: "10~15평", Value: "10_15"},
			{Label: "15~25평", Value: "15_25"},
			{Label: "25~35평", Value: "25_35"},
			{Label: "35~45평", Value: "35_45"},
			{Label: "45평 이상", Value: "over_45"},
			{Label: "모르겠어요", Value: "unknown"},
		},
		Path:     "departure.squareFootage",
		Required: true,
	},
	{
		ID:          "move_type",
		Number:      4,
		Question:    "어떤 이사를 원하시나요?",
		Description: "서비스 범위에 따라 가격이 달라져요",
		Input:       InputCard,
		Options: []Option{
			{Label: "용달이사", Value: "truck", Description: "운반만 해드려요. 짐 포장과 정리는 직접 해야 해요", Tags: []string{"가장 저렴"}},
			{Label: "일반이사", Value: "general", Description: "운반 + 큰 가구 배치까지 해드려요", Tags: []string{"인기"}},
			{Label: "반포장이사", Value: "half_pack", Description: "큰 짐은 포장해드리고, 잔짐은 직접 포장해주세요"},
			{Label: "포장이사", Value: "full_pack", Description: "포장, 운반, 정리 모두 해드려요", Tags: []string{"프리미엄"}},
			{Label: "보관이사", Value: "storage", Description: "짐을 창고에 보관한 뒤 새 집으로 옮겨드려요"},
		},
		Path:     "move.type",
		Required: true,
	},
	{
		ID:       "time_slot",
		Number:   5,
		Question: "이사 시작 시간대를 선택해주세요",
		Input:    InputButtonList,
		Options: []Option{
			{Label: "오전 (이른) 06~09시", Value: "early_morning"},
			{Label: "오전 09~12시", Value: "morning"},
			{Label: "오후 (이른) 12~15시", Value: "early_afternoon"},
			{Label: "오후 (늦은) 15~18시", Value: "late_afternoon"},
			{Label: "시간 협의", Value: "flexible"},
		},
		Path:     "move.timeSlot",
		Required: true,
	},
	{
		ID:          "departure_address",
		Number:      6,
		Question:    "출발지 주소를 알려주세요",
		Description: "짐을 가져갈 현재 주소예요",
		Input:       InputAddress,
		Path:        "departure.address",
		Required:    true,
		Placeholder: "주소 검색 (예: 강남구 역삼동)",
	},
	{
		ID:       "departure_transport",
		Number:   7,
		Question: "출발지에서 짐을 어떻게 운반하나요?",
		Input:    InputButtonList,
		Options:  transportOptions,
		Path:     "departure.hasElevator",
		Required: true,
		Tip:      tip("ladder_truck"),
		Strategy: "departure_transport",
	},
	{
		ID:          "departure_floor",
		Number:      8,
		Question:    "출발지는 몇 층인가요?",
		Description: "지하는 -1, 반지하는 0으로 입력해주세요",
		Input:       InputNumber,
		Path:        "departure.floor",
		Required:    true,
		Placeholder: "층수 입력",
		Strategy:    "departure_floor",
	},
	{
		ID:          "arrival_address",
		Number:      9,
		Question:    "도착지 주소를 알려주세요",
		Description: "짐을 옮길 새 주소예요",
		Input:       InputAddress,
		Path:        "arrival.address",
		Required:    true,
		Placeholder: "주소 검색 (예: 마포구 합정동)",
	},
	{
		ID:       "arrival_transport",
		Number:   10,
		Question: "도착지에서 짐을 어떻게 운반하나요?",
		Input:    InputButtonList,
		Options:  transportOptions,
		Path:     "arrival.hasElevator",
		Required: true,
		Strategy: "arrival_transport",
	},
	{
		ID:          "arrival_floor",
		Number:      11,
		Question:    "도착지는 몇 층인가요?",
		Description: "지하는 -1, 반지하는 0으로 입력해주세요",
		Input:       InputNumber,
		Path:        "arrival.floor",
		Required:    true,
		Placeholder: "층수 입력",
		Strategy:    "arrival_floor",
	},
	{
		ID:          "vehicle_preference",
		Number:      12,
		Question:    "트럭은 몇 대가 필요하실까요?",
		Description: "짐 양에 따라 선택해주세요",
		Input:       InputButtonList,
		Options: []Option{
			{Label: "1대", Value: "1"},
			{Label: "2대", Value: "2"},
			{Label: "모르겠어요", Value: "unknown"},
		},
		Path: "conditions.vehiclePreference",
		Tip:  tip("truck_count"),
	},
	{
		ID:          "customer_participation",
		Number:      13,
		Question:    "짐 운반을 함께 도와주실 수 있나요?",
		Description: "무거운 가구를 함께 옮기면 비용이 절약돼요",
		Input:       InputButtonList,
		Options: []Option{
			{Label: "네, 함께 할게요", Value: "true"},
			{Label: "아니요, 업체분만 작업해요", Value: "false"},
		},
		Path:     "conditions.customerParticipation",
		Tip:      tip("worker_participation"),
		Strategy: "customer_participation",
	},
	{
		ID:          "extra_requests",
		Number:      14,
		Question:    "짐 정보나 요청사항을 자유롭게 적어주세요",
		Description: "냉장고, 세탁기, 침대 등 주요 짐과 특별히 조심해야 할 물건이 있다면 알려주세요",
		Input:       InputText,
		Path:        "conditions.extraRequests",
		Required:    true,
		Placeholder: "예: 냉장고 양문형 1대, 드럼세탁기 1대, 퀸침대 1개 있어요.",
	},
	{
		ID:          "additional_services",
		Number:      15,
		Question:    "추가로 필요한 서비스가 있으신가요?",
		Description: "선택하지 않아도 괜찮아요",
		Input:       InputToggleList,
		Options: []Option{
			{Label: "에어컨 이전 설치", Value: "airconInstall", Description: "에어컨 이설 서비스"},
			{Label: "입주 청소", Value: "cleaning", Description: "새 집 입주 전 청소"},
			{Label: "정리 정돈", Value: "organizing", Description: "짐 정리 도움"},
			{Label: "폐기물 처리", Value: "disposal", Description: "버릴 가구/짐 처리"},
		},
		Path:     "services",
		Strategy: "additional_services",
	},
	{
		ID:          "contact_verification",
		Number:      16,
		Question:    "마지막으로 연락처를 확인해주세요",
		Description: "견적을 받으실 연락처를 인증해주세요",
		Input:       InputPhoneVerify,
		Path:        "contact",
		Required:    true,
		Strategy:    "contact_verification",
	},
}

// SkipFunc reports whether a step is moot for the current record.
type SkipFunc func(domain.Schema) bool

func laborBundled(s domain.Schema) bool {
	switch s.Move.Type {
	case domain.MoveFullPack, domain.MoveHalfPack, domain.MoveStorage:
		return true
	}
	return false
}

var skips = map[string]SkipFunc{
	"vehicle_preference":     laborBundled,
	"customer_participation": laborBundled,
	"additional_services":    func(s domain.Schema) bool { return s.Move.Type == domain.MoveTruck },
}

var byID = func() map[string]int {
	m := make(map[string]int, len(catalog))
	for i, st := range catalog {
		m[st.ID] = i
	}
	return m
}()

// All returns the full catalog in order.
func All() []Step {
	out := make([]Step, len(catalog))
	copy(out, catalog)
	return out
}

// ByID looks up a catalog step.
func ByID(id string) (Step, bool) {
	i, ok := byID[id]
	if !ok {
		return Step{}, false
	}
	return catalog[i], true
}

// IsSkipped evaluates the step's skip predicate against s.
func IsSkipped(id string, s domain.Schema) bool {
	fn, ok := skips[id]
	return ok && fn(s)
}

// Active returns the catalog minus skipped steps, order preserved.
func Active(s domain.Schema) []Step {
	out := make([]Step, 0, len(catalog))
	for _, st := range catalog {
		if IsSkipped(st.ID, s) {
			continue
		}
		out = append(out, st)
	}
	return out
}

// ForPath finds the catalog step owning path, by exact match or because path
// lies under the step's path.
func ForPath(path string) (Step, bool) {
	for _, st := range catalog {
		if st.Path == path || strings.HasPrefix(path, st.Path+".") {
			return st, true
		}
	}
	return Step{}, false
}

// Progress is the share of active steps present in completed.
func Progress(completed map[string]bool, s domain.Schema) float64 {
	active := Active(s)
	if len(active) == 0 {
		return 0
	}
	done := 0
	for _, st := range active {
		if completed[st.ID] {
			done++
		}
	}
	return float64(done) / float64(len(active))
}
