package domain

var MoveCategoryLabels = map[MoveCategory]string{
	CategoryOneRoom:       "원룸",
	CategoryTwoRoom:       "투룸",
	CategoryThreeRoomPlus: "쓰리룸 이상",
	CategoryOfficetel:     "오피스텔",
	CategoryApartment:     "아파트",
	CategoryVillaHouse:    "빌라/주택",
	CategoryOffice:        "사무실",
	CategoryUnknown:       "모름",
}

var MoveTypeLabels = map[MoveType]string{
	MoveTruck:    "용달이사",
	MoveGeneral:  "일반이사",
	MoveHalfPack: "반포장이사",
	MoveFullPack: "포장이사",
	MoveStorage:  "보관이사",
	MoveUnknown:  "모름",
}

var TimeSlotLabels = map[TimeSlot]string{
	SlotEarlyMorning:   "오전 (이른) 06:00~09:00",
	SlotMorning:        "오전 09:00~12:00",
	SlotEarlyAfternoon: "오후 (이른) 12:00~15:00",
	SlotLateAfternoon:  "오후 (늦은) 15:00~18:00",
	SlotFlexible:       "시간 협의",
	SlotUnknown:        "모름",
}

var SquareFootageLabels = map[SquareFootage]string{
	SqUnder10: "10평 이하",
	Sq10to15:  "10~15평",
	Sq15to25:  "15~25평",
	Sq25to35:  "25~35평",
	Sq35to45:  "35~45평",
	SqOver45:  "45평 이상",
	SqUnknown: "모름",
}

var BoxRangeLabels = map[BoxRange]string{
	Boxes1to5:   "1~5개",
	Boxes6to10:  "6~10개",
	Boxes11to15: "11~15개",
	Boxes16to20: "16~20개",
	BoxesOver20: "20개 초과",
	BoxesNone:   "잔짐 없음",
	BoxesUnkn:   "모름",
}

var CarrierLabels = map[Carrier]string{
	CarrierSKT:  "SKT",
	CarrierKT:   "KT",
	CarrierLGU:  "LG U+",
	CarrierMVNO: "알뜰폰",
}

var ContactTimeLabels = map[ContactTime]string{
	ContactAnytime:   "언제든",
	ContactMorning:   "오전",
	ContactAfternoon: "오후",
	ContactEvening:   "저녁",
}

// ValidMoveCategory reports whether v is a known category, unknown included.
func ValidMoveCategory(v string) bool {
	_, ok := MoveCategoryLabels[MoveCategory(v)]
	return ok
}

func ValidMoveType(v string) bool {
	_, ok := MoveTypeLabels[MoveType(v)]
	return ok
}

func ValidTimeSlot(v string) bool {
	_, ok := TimeSlotLabels[TimeSlot(v)]
	return ok
}

func ValidSquareFootage(v string) bool {
	_, ok := SquareFootageLabels[SquareFootage(v)]
	return ok
}

func ValidCarrier(v string) bool {
	_, ok := CarrierLabels[Carrier(v)]
	return ok
}

func ValidContactTime(v string) bool {
	_, ok := ContactTimeLabels[ContactTime(v)]
	return ok
}

// BucketSquareFootage maps a pyeong count onto its range.
func BucketSquareFootage(pyeong float64) SquareFootage {
	switch {
	case pyeong <= 10:
		return SqUnder10
	case pyeong <= 15:
		return Sq10to15
	case pyeong <= 25:
		return Sq15to25
	case pyeong <= 35:
		return Sq25to35
	case pyeong <= 45:
		return Sq35to45
	default:
		return SqOver45
	}
}

// SquareFootageMidpoint is the representative pyeong count of a range.
func SquareFootageMidpoint(v SquareFootage) (int, bool) {
	switch v {
	case SqUnder10:
		return 10, true
	case Sq10to15:
		return 15, true
	case Sq15to25:
		return 20, true
	case Sq25to35:
		return 30, true
	case Sq35to45:
		return 40, true
	case SqOver45:
		return 50, true
	}
	return 0, false
}
