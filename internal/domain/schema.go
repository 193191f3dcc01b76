package domain

import "time"

// SchemaVersion is stamped into meta.version of every new record.
const SchemaVersion = "2.1"

const Unknown = "unknown"

type MoveCategory string

const (
	CategoryOneRoom       MoveCategory = "one_room"
	CategoryTwoRoom       MoveCategory = "two_room"
	CategoryThreeRoomPlus MoveCategory = "three_room_plus"
	CategoryOfficetel     MoveCategory = "officetel"
	CategoryApartment     MoveCategory = "apartment"
	CategoryVillaHouse    MoveCategory = "villa_house"
	CategoryOffice        MoveCategory = "office"
	CategoryUnknown       MoveCategory = Unknown
)

type MoveType string

const (
	MoveTruck    MoveType = "truck"
	MoveGeneral  MoveType = "general"
	MoveHalfPack MoveType = "half_pack"
	MoveFullPack MoveType = "full_pack"
	MoveStorage  MoveType = "storage"
	MoveUnknown  MoveType = Unknown
)

type DateType string

const (
	DateExact   DateType = "exact"
	DateRange   DateType = "range"
	DateUnknown DateType = Unknown
)

type TimeSlot string

const (
	SlotEarlyMorning   TimeSlot = "early_morning"
	SlotMorning        TimeSlot = "morning"
	SlotEarlyAfternoon TimeSlot = "early_afternoon"
	SlotLateAfternoon  TimeSlot = "late_afternoon"
	SlotFlexible       TimeSlot = "flexible"
	SlotUnknown        TimeSlot = Unknown
)

// YesNo is a tri-state answer.
type YesNo string

const (
	Yes       YesNo = "yes"
	No        YesNo = "no"
	YesNoUnkn YesNo = Unknown
)

// FloorStatus distinguishes a known floor from an explicit "don't know".
// A nil *FloorStatus means the question has not been answered yet.
type FloorStatus string

const (
	FloorKnown   FloorStatus = "known"
	FloorUnknown FloorStatus = Unknown
)

type SquareFootage string

const (
	SqUnder10 SquareFootage = "under_10"
	Sq10to15  SquareFootage = "10_15"
	Sq15to25  SquareFootage = "15_25"
	Sq25to35  SquareFootage = "25_35"
	Sq35to45  SquareFootage = "35_45"
	SqOver45  SquareFootage = "over_45"
	SqUnknown SquareFootage = Unknown
)

type BoxRange string

const (
	Boxes1to5   BoxRange = "1_5"
	Boxes6to10  BoxRange = "6_10"
	Boxes11to15 BoxRange = "11_15"
	Boxes16to20 BoxRange = "16_20"
	BoxesOver20 BoxRange = "over_20"
	BoxesNone   BoxRange = "none"
	BoxesUnkn   BoxRange = Unknown
)

type LadderTruck string

const (
	LadderRequired    LadderTruck = "required"
	LadderNotRequired LadderTruck = "not_required"
	LadderUnknown     LadderTruck = Unknown
)

type TransportMethod string

const (
	TransportElevator TransportMethod = "elevator"
	TransportStairs   TransportMethod = "stairs"
	TransportLadder   TransportMethod = "ladder"
	TransportUnknown  TransportMethod = Unknown
)

type ContactTime string

const (
	ContactAnytime   ContactTime = "anytime"
	ContactMorning   ContactTime = "morning"
	ContactAfternoon ContactTime = "afternoon"
	ContactEvening   ContactTime = "evening"
)

type Carrier string

const (
	CarrierSKT  Carrier = "SKT"
	CarrierKT   Carrier = "KT"
	CarrierLGU  Carrier = "LGU+"
	CarrierMVNO Carrier = "알뜰폰"
)

type VehiclePreference string

const (
	VehicleOne     VehiclePreference = "1"
	VehicleTwo     VehiclePreference = "2"
	VehicleUnknown VehiclePreference = Unknown
)

// InputSource records which surface produced the record.
type InputSource string

const (
	SourceGuided InputSource = "guided"
	SourceChat   InputSource = "chat"
	SourceForm   InputSource = "form"
	SourceMixed  InputSource = "mixed"
)

// ConfidenceSource records which surface produced a single value.
type ConfidenceSource string

const (
	ConfidenceGuided ConfidenceSource = "guided"
	ConfidenceChat   ConfidenceSource = "chat"
	ConfidenceForm   ConfidenceSource = "form"
	ConfidenceSystem ConfidenceSource = "system"
)

type Platform string

const (
	PlatformMobile  Platform = "mobile"
	PlatformDesktop Platform = "desktop"
)

// Schema is the canonical moving request. Every leaf is always present in
// its JSON form; dot-paths address that form.
type Schema struct {
	Meta       Meta       `json:"meta"`
	Move       Move       `json:"move"`
	Departure  Location   `json:"departure"`
	Arrival    Location   `json:"arrival"`
	Cargo      Cargo      `json:"cargo"`
	Services   Services   `json:"services"`
	Conditions Conditions `json:"conditions"`
	Contact    Contact    `json:"contact"`
	Status     Status     `json:"status"`
}

type Meta struct {
	RequestID string      `json:"requestId"`
	Source    InputSource `json:"source"`
	Platform  Platform    `json:"platform"`
	CreatedAt string      `json:"createdAt"`
	UpdatedAt string      `json:"updatedAt"`
	Version   string      `json:"version"`
}

type Move struct {
	Category MoveCategory `json:"category"`
	Type     MoveType     `json:"type"`
	Schedule Schedule     `json:"schedule"`
	TimeSlot TimeSlot     `json:"timeSlot"`
}

// Schedule dates are YYYY-MM-DD.
type Schedule struct {
	DateType DateType `json:"dateType"`
	Date     *string  `json:"date"`
	DateFrom *string  `json:"dateFrom"`
	DateTo   *string  `json:"dateTo"`
}

type Location struct {
	Address         *string         `json:"address"`
	DetailAddress   *string         `json:"detailAddress"`
	Floor           *int            `json:"floor"`
	FloorStatus     *FloorStatus    `json:"floorStatus"`
	HasElevator     YesNo           `json:"hasElevator"`
	TransportMethod TransportMethod `json:"transportMethod"`
	Parking         YesNo           `json:"parking"`
	SquareFootage   SquareFootage   `json:"squareFootage"`
}

type CargoItem struct {
	Has  bool   `json:"has"`
	Qty  int    `json:"qty"`
	Note string `json:"note"`
}

type SpecialItem struct {
	Has  bool   `json:"has"`
	Note string `json:"note"`
}

type CustomItem struct {
	Name string `json:"name"`
	Note string `json:"note"`
}

type Appliances struct {
	Refrigerator   CargoItem `json:"refrigerator"`
	Washer         CargoItem `json:"washer"`
	TV             CargoItem `json:"tv"`
	AirConditioner CargoItem `json:"airConditioner"`
	Dryer          CargoItem `json:"dryer"`
	Dishwasher     CargoItem `json:"dishwasher"`
}

type Furniture struct {
	Bed         CargoItem `json:"bed"`
	Wardrobe    CargoItem `json:"wardrobe"`
	Sofa        CargoItem `json:"sofa"`
	Desk        CargoItem `json:"desk"`
	Bookshelf   CargoItem `json:"bookshelf"`
	DiningTable CargoItem `json:"diningTable"`
}

type Special struct {
	Piano    SpecialItem  `json:"piano"`
	StoneBed SpecialItem  `json:"stoneBed"`
	Safe     SpecialItem  `json:"safe"`
	Aquarium SpecialItem  `json:"aquarium"`
	Custom   []CustomItem `json:"custom"`
}

type Boxes struct {
	Range      BoxRange `json:"range"`
	ExactCount *int     `json:"exactCount"`
}

type Cargo struct {
	Appliances Appliances `json:"appliances"`
	Furniture  Furniture  `json:"furniture"`
	Special    Special    `json:"special"`
	Boxes      Boxes      `json:"boxes"`
}

type AirconInstall struct {
	Needed bool `json:"needed"`
	Qty    int  `json:"qty"`
}

type Storage struct {
	Needed       bool `json:"needed"`
	DurationDays int  `json:"durationDays"`
}

type Services struct {
	LadderTruck   LadderTruck   `json:"ladderTruck"`
	AirconInstall AirconInstall `json:"airconInstall"`
	Cleaning      bool          `json:"cleaning"`
	Organizing    bool          `json:"organizing"`
	Storage       Storage       `json:"storage"`
	Disposal      bool          `json:"disposal"`
}

type Conditions struct {
	ExtraRequests         *string            `json:"extraRequests"`
	VehiclePreference     *VehiclePreference `json:"vehiclePreference"`
	CustomerParticipation *bool              `json:"customerParticipation"`
}

type Contact struct {
	Name          *string      `json:"name"`
	Phone         *string      `json:"phone"`
	Carrier       *Carrier     `json:"carrier"`
	PreferredTime *ContactTime `json:"preferredTime"`
}

// FieldConfidence is the provenance of one written value.
type FieldConfidence struct {
	Value      any              `json:"value"`
	Confidence float64          `json:"confidence"`
	Source     ConfidenceSource `json:"source"`
}

// MissingField is a required path that is still empty.
type MissingField struct {
	Field            string `json:"field"`
	Priority         int    `json:"priority"`
	QuestionTemplate string `json:"questionTemplate"`
}

type Status struct {
	CompletionRate  float64                    `json:"completionRate"`
	MissingRequired []MissingField             `json:"missingRequired"`
	FieldConfidence map[string]FieldConfidence `json:"fieldConfidence"`
	ReadyForSubmit  bool                       `json:"readyForSubmit"`
	SubmittedAt     *string                    `json:"submittedAt"`
}

// RequiredFields are the 13 paths that gate submission.
var RequiredFields = []string{
	"move.category",
	"move.type",
	"move.schedule",
	"move.timeSlot",
	"departure.address",
	"departure.floor",
	"departure.hasElevator",
	"departure.squareFootage",
	"arrival.address",
	"arrival.floor",
	"arrival.hasElevator",
	"contact.name",
	"contact.phone",
}

// Patch is a partial record: section -> field -> value. Each field replaces
// the existing value wholesale.
type Patch map[string]map[string]any

// Set adds one section.field entry, creating the section map on demand.
func (p Patch) Set(section, field string, value any) {
	if p[section] == nil {
		p[section] = map[string]any{}
	}
	p[section][field] = value
}

// Paths lists the section.field entries of the patch.
func (p Patch) Paths() []string {
	var out []string
	for section, fields := range p {
		for field := range fields {
			out = append(out, section+"."+field)
		}
	}
	return out
}

// NewSchema returns the all-defaults record.
func NewSchema(now time.Time, requestID string) Schema {
	ts := now.UTC().Format(time.RFC3339)
	s := Schema{
		Meta: Meta{
			RequestID: requestID,
			Source:    SourceGuided,
			Platform:  PlatformMobile,
			CreatedAt: ts,
			UpdatedAt: ts,
			Version:   SchemaVersion,
		},
	}
	s.Normalize()
	return s
}

func emptyLocation(l *Location) {
	if l.HasElevator == "" {
		l.HasElevator = YesNoUnkn
	}
	if l.TransportMethod == "" {
		l.TransportMethod = TransportUnknown
	}
	if l.Parking == "" {
		l.Parking = YesNoUnkn
	}
	if l.SquareFootage == "" {
		l.SquareFootage = SqUnknown
	}
}

// Normalize fills unset enums with their unknown sentinel and nil
// collections with empty ones.
func (s *Schema) Normalize() {
	if s.Meta.Source == "" {
		s.Meta.Source = SourceGuided
	}
	if s.Meta.Platform == "" {
		s.Meta.Platform = PlatformMobile
	}
	if s.Meta.Version == "" {
		s.Meta.Version = SchemaVersion
	}
	if s.Move.Category == "" {
		s.Move.Category = CategoryUnknown
	}
	if s.Move.Type == "" {
		s.Move.Type = MoveUnknown
	}
	if s.Move.Schedule.DateType == "" {
		s.Move.Schedule.DateType = DateUnknown
	}
	if s.Move.TimeSlot == "" {
		s.Move.TimeSlot = SlotUnknown
	}
	emptyLocation(&s.Departure)
	emptyLocation(&s.Arrival)
	if s.Cargo.Special.Custom == nil {
		s.Cargo.Special.Custom = []CustomItem{}
	}
	if s.Cargo.Boxes.Range == "" {
		s.Cargo.Boxes.Range = BoxesUnkn
	}
	if s.Services.LadderTruck == "" {
		s.Services.LadderTruck = LadderUnknown
	}
	if s.Status.MissingRequired == nil {
		s.Status.MissingRequired = []MissingField{}
	}
	if s.Status.FieldConfidence == nil {
		s.Status.FieldConfidence = map[string]FieldConfidence{}
	}
}

// Location returns the departure or arrival section by name.
func (s Schema) Location(section string) (Location, bool) {
	switch section {
	case "departure":
		return s.Departure, true
	case "arrival":
		return s.Arrival, true
	}
	return Location{}, false
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
