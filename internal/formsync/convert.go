package formsync

import (
	"fmt"
	"time"

	"moveline/internal/domain"
	"moveline/internal/steps"
)

type cargoSlot struct {
	key   string
	label string
}

var (
	applianceSlots = []cargoSlot{
		{"refrigerator", "냉장고"}, {"washer", "세탁기"}, {"tv", "TV"},
		{"airConditioner", "에어컨"}, {"dryer", "건조기"}, {"dishwasher", "식기세척기"},
	}
	furnitureSlots = []cargoSlot{
		{"bed", "침대"}, {"wardrobe", "옷장"}, {"sofa", "소파"},
		{"desk", "책상"}, {"bookshelf", "책장"}, {"diningTable", "식탁"},
	}
	specialSlots = []cargoSlot{
		{"piano", "피아노"}, {"stoneBed", "돌침대"}, {"safe", "금고"}, {"aquarium", "대형 어항"},
	}
)

func applianceItem(a *domain.Appliances, key string) *domain.CargoItem {
	switch key {
	case "refrigerator":
		return &a.Refrigerator
	case "washer":
		return &a.Washer
	case "tv":
		return &a.TV
	case "airConditioner":
		return &a.AirConditioner
	case "dryer":
		return &a.Dryer
	case "dishwasher":
		return &a.Dishwasher
	}
	return nil
}

func furnitureItem(f *domain.Furniture, key string) *domain.CargoItem {
	switch key {
	case "bed":
		return &f.Bed
	case "wardrobe":
		return &f.Wardrobe
	case "sofa":
		return &f.Sofa
	case "desk":
		return &f.Desk
	case "bookshelf":
		return &f.Bookshelf
	case "diningTable":
		return &f.DiningTable
	}
	return nil
}

func specialItem(s *domain.Special, key string) *domain.SpecialItem {
	switch key {
	case "piano":
		return &s.Piano
	case "stoneBed":
		return &s.StoneBed
	case "safe":
		return &s.Safe
	case "aquarium":
		return &s.Aquarium
	}
	return nil
}

// SchemaToForm renders the editable view of s.
func SchemaToForm(s domain.Schema) Form {
	f := Form{
		Move: MoveForm{
			Category: string(s.Move.Category),
			Type:     string(s.Move.Type),
			TimeSlot: string(s.Move.TimeSlot),
			Schedule: ScheduleForm{
				DateType: string(s.Move.Schedule.DateType),
				Date:     clone(s.Move.Schedule.Date),
				DateFrom: clone(s.Move.Schedule.DateFrom),
				DateTo:   clone(s.Move.Schedule.DateTo),
			},
		},
		Departure: locationToForm(s.Departure),
		Arrival:   locationToForm(s.Arrival),
		Services: ServicesForm{
			LadderTruckNeeded: ladderNeeded(s.Services.LadderTruck),
			AirconInstall:     s.Services.AirconInstall.Needed,
			AirconQty:         s.Services.AirconInstall.Qty,
			Cleaning:          s.Services.Cleaning,
			Organizing:        s.Services.Organizing,
			Storage:           s.Services.Storage.Needed,
			StorageDays:       s.Services.Storage.DurationDays,
			Disposal:          s.Services.Disposal,
		},
		Conditions: ConditionsForm{
			ExtraRequests:         clone(s.Conditions.ExtraRequests),
			CustomerParticipation: clone(s.Conditions.CustomerParticipation),
		},
		Contact: ContactForm{
			Name:  clone(s.Contact.Name),
			Phone: clone(s.Contact.Phone),
		},
	}
	if v := s.Conditions.VehiclePreference; v != nil {
		f.Conditions.VehiclePreference = domain.Ptr(string(*v))
	}
	if v := s.Contact.Carrier; v != nil {
		f.Contact.Carrier = domain.Ptr(string(*v))
	}
	if v := s.Contact.PreferredTime; v != nil {
		f.Contact.PreferredTime = domain.Ptr(string(*v))
	}

	cargo := s.Cargo
	f.Cargo = CargoForm{
		Appliances: []Item{},
		Furniture:  []Item{},
		Special:    []Item{},
		Custom:     []CustomEntry{},
		BoxRange:   string(cargo.Boxes.Range),
		BoxCount:   clone(cargo.Boxes.ExactCount),
	}
	for _, slot := range applianceSlots {
		if it := applianceItem(&cargo.Appliances, slot.key); it.Has {
			f.Cargo.Appliances = append(f.Cargo.Appliances, Item{Key: slot.key, Label: slot.label, Qty: it.Qty, Note: it.Note})
		}
	}
	for _, slot := range furnitureSlots {
		if it := furnitureItem(&cargo.Furniture, slot.key); it.Has {
			f.Cargo.Furniture = append(f.Cargo.Furniture, Item{Key: slot.key, Label: slot.label, Qty: it.Qty, Note: it.Note})
		}
	}
	for _, slot := range specialSlots {
		if it := specialItem(&cargo.Special, slot.key); it.Has {
			f.Cargo.Special = append(f.Cargo.Special, Item{Key: slot.key, Label: slot.label, Note: it.Note})
		}
	}
	for _, c := range cargo.Special.Custom {
		f.Cargo.Custom = append(f.Cargo.Custom, CustomEntry{Name: c.Name, Note: c.Note})
	}
	return f
}

func locationToForm(l domain.Location) LocationForm {
	lf := LocationForm{
		Address:       clone(l.Address),
		DetailAddress: clone(l.DetailAddress),
		Floor:         clone(l.Floor),
		HasElevator:   yesNoToBool(l.HasElevator),
		LadderTruck:   l.TransportMethod == domain.TransportLadder,
		Parking:       yesNoToBool(l.Parking),
	}
	if l.Floor == nil && l.FloorStatus != nil && *l.FloorStatus == domain.FloorUnknown {
		lf.FloorUnknown = true
	}
	if n, ok := domain.SquareFootageMidpoint(l.SquareFootage); ok {
		lf.SquareFootage = &n
	}
	return lf
}

// FormToSchema turns a form into a patch covering every user section.
// Lossy spots: transportMethod follows the elevator answer and the ladder
// checkbox, floorStatus is known whenever a floor is set, square footage
// is re-bucketed and unowned cargo items lose qty and note.
func FormToSchema(f Form) domain.Patch {
	p := domain.Patch{}

	p.Set("move", "category", orUnknown(f.Move.Category))
	p.Set("move", "type", orUnknown(f.Move.Type))
	p.Set("move", "timeSlot", orUnknown(f.Move.TimeSlot))
	p.Set("move", "schedule", domain.Schedule{
		DateType: domain.DateType(orUnknown(f.Move.Schedule.DateType)),
		Date:     clone(f.Move.Schedule.Date),
		DateFrom: clone(f.Move.Schedule.DateFrom),
		DateTo:   clone(f.Move.Schedule.DateTo),
	})

	dep := formToLocation(f.Departure)
	arr := formToLocation(f.Arrival)
	for field, v := range locationFields(dep) {
		p.Set("departure", field, v)
	}
	for field, v := range locationFields(arr) {
		p.Set("arrival", field, v)
	}

	ladder := domain.LadderUnknown
	if n := f.Services.LadderTruckNeeded; n != nil {
		ladder = domain.LadderNotRequired
		if *n {
			ladder = domain.LadderRequired
		}
	}
	if dep.TransportMethod == domain.TransportLadder || arr.TransportMethod == domain.TransportLadder {
		ladder = steps.LadderRequirement(dep.TransportMethod, arr.TransportMethod, ladder)
	}
	p.Set("services", "ladderTruck", ladder)
	p.Set("services", "airconInstall", domain.AirconInstall{Needed: f.Services.AirconInstall, Qty: f.Services.AirconQty})
	p.Set("services", "cleaning", f.Services.Cleaning)
	p.Set("services", "organizing", f.Services.Organizing)
	p.Set("services", "storage", domain.Storage{Needed: f.Services.Storage, DurationDays: f.Services.StorageDays})
	p.Set("services", "disposal", f.Services.Disposal)

	p.Set("conditions", "extraRequests", clone(f.Conditions.ExtraRequests))
	p.Set("conditions", "customerParticipation", clone(f.Conditions.CustomerParticipation))
	var vehicle *domain.VehiclePreference
	if f.Conditions.VehiclePreference != nil {
		vehicle = domain.Ptr(domain.VehiclePreference(*f.Conditions.VehiclePreference))
	}
	p.Set("conditions", "vehiclePreference", vehicle)

	p.Set("contact", "name", clone(f.Contact.Name))
	p.Set("contact", "phone", clone(f.Contact.Phone))
	var carrier *domain.Carrier
	if f.Contact.Carrier != nil {
		carrier = domain.Ptr(domain.Carrier(*f.Contact.Carrier))
	}
	p.Set("contact", "carrier", carrier)
	var preferred *domain.ContactTime
	if f.Contact.PreferredTime != nil {
		preferred = domain.Ptr(domain.ContactTime(*f.Contact.PreferredTime))
	}
	p.Set("contact", "preferredTime", preferred)

	var cargo domain.Cargo
	for _, it := range f.Cargo.Appliances {
		if slot := applianceItem(&cargo.Appliances, it.Key); slot != nil {
			*slot = domain.CargoItem{Has: true, Qty: it.Qty, Note: it.Note}
		}
	}
	for _, it := range f.Cargo.Furniture {
		if slot := furnitureItem(&cargo.Furniture, it.Key); slot != nil {
			*slot = domain.CargoItem{Has: true, Qty: it.Qty, Note: it.Note}
		}
	}
	for _, it := range f.Cargo.Special {
		if slot := specialItem(&cargo.Special, it.Key); slot != nil {
			*slot = domain.SpecialItem{Has: true, Note: it.Note}
		}
	}
	cargo.Special.Custom = []domain.CustomItem{}
	for _, c := range f.Cargo.Custom {
		cargo.Special.Custom = append(cargo.Special.Custom, domain.CustomItem{Name: c.Name, Note: c.Note})
	}
	cargo.Boxes = domain.Boxes{Range: domain.BoxRange(orUnknown(f.Cargo.BoxRange)), ExactCount: clone(f.Cargo.BoxCount)}
	p.Set("cargo", "appliances", cargo.Appliances)
	p.Set("cargo", "furniture", cargo.Furniture)
	p.Set("cargo", "special", cargo.Special)
	p.Set("cargo", "boxes", cargo.Boxes)
	return p
}

func formToLocation(lf LocationForm) domain.Location {
	l := domain.Location{
		Address:       clone(lf.Address),
		DetailAddress: clone(lf.DetailAddress),
		Floor:         clone(lf.Floor),
		HasElevator:   boolToYesNo(lf.HasElevator),
		Parking:       boolToYesNo(lf.Parking),
		SquareFootage: domain.SqUnknown,
	}
	switch {
	case lf.Floor != nil:
		l.FloorStatus = domain.Ptr(domain.FloorKnown)
	case lf.FloorUnknown:
		l.FloorStatus = domain.Ptr(domain.FloorUnknown)
	}
	switch {
	case lf.LadderTruck:
		l.TransportMethod = domain.TransportLadder
	case l.HasElevator == domain.Yes:
		l.TransportMethod = domain.TransportElevator
	case l.HasElevator == domain.No:
		l.TransportMethod = domain.TransportStairs
	default:
		l.TransportMethod = domain.TransportUnknown
	}
	if lf.SquareFootage != nil && *lf.SquareFootage > 0 {
		l.SquareFootage = domain.BucketSquareFootage(float64(*lf.SquareFootage))
	}
	return l
}

func locationFields(l domain.Location) map[string]any {
	return map[string]any{
		"address":         l.Address,
		"detailAddress":   l.DetailAddress,
		"floor":           l.Floor,
		"floorStatus":     l.FloorStatus,
		"hasElevator":     l.HasElevator,
		"transportMethod": l.TransportMethod,
		"parking":         l.Parking,
		"squareFootage":   l.SquareFootage,
	}
}

// FieldError names the form field Validate rejected.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string { return e.Field + ": " + e.Reason }

// Validate rejects enum values and dates the record cannot hold.
func (f Form) Validate() error {
	checks := []struct {
		field string
		value string
		ok    func(string) bool
	}{
		{"move.category", f.Move.Category, domain.ValidMoveCategory},
		{"move.type", f.Move.Type, domain.ValidMoveType},
		{"move.timeSlot", f.Move.TimeSlot, domain.ValidTimeSlot},
		{"cargo.boxRange", f.Cargo.BoxRange, validBoxRange},
		{"move.schedule.dateType", f.Move.Schedule.DateType, validDateType},
	}
	for _, c := range checks {
		if c.value != "" && !c.ok(c.value) {
			return FieldError{Field: c.field, Reason: fmt.Sprintf("invalid value %q", c.value)}
		}
	}
	for name, d := range map[string]*string{
		"move.schedule.date":     f.Move.Schedule.Date,
		"move.schedule.dateFrom": f.Move.Schedule.DateFrom,
		"move.schedule.dateTo":   f.Move.Schedule.DateTo,
	} {
		if d == nil {
			continue
		}
		if _, err := time.Parse("2006-01-02", *d); err != nil {
			return FieldError{Field: name, Reason: fmt.Sprintf("invalid date %q", *d)}
		}
	}
	if v := f.Conditions.VehiclePreference; v != nil {
		switch domain.VehiclePreference(*v) {
		case domain.VehicleOne, domain.VehicleTwo, domain.VehicleUnknown:
		default:
			return FieldError{Field: "conditions.vehiclePreference", Reason: fmt.Sprintf("invalid value %q", *v)}
		}
	}
	if v := f.Contact.Carrier; v != nil && !domain.ValidCarrier(*v) {
		return FieldError{Field: "contact.carrier", Reason: fmt.Sprintf("invalid value %q", *v)}
	}
	if v := f.Contact.PreferredTime; v != nil && !domain.ValidContactTime(*v) {
		return FieldError{Field: "contact.preferredTime", Reason: fmt.Sprintf("invalid value %q", *v)}
	}
	if v := f.Contact.Phone; v != nil && *v != "" && !steps.ValidPhone(*v) {
		return FieldError{Field: "contact.phone", Reason: "invalid phone number"}
	}
	for section, loc := range map[string]LocationForm{"departure": f.Departure, "arrival": f.Arrival} {
		if loc.Floor != nil && (*loc.Floor < -9 || *loc.Floor > 99) {
			return FieldError{Field: section + ".floor", Reason: fmt.Sprintf("out of range: %d", *loc.Floor)}
		}
	}
	if f.Services.AirconQty < 0 || f.Services.StorageDays < 0 {
		return FieldError{Field: "services", Reason: "quantities must not be negative"}
	}
	return nil
}

func validBoxRange(v string) bool {
	_, ok := domain.BoxRangeLabels[domain.BoxRange(v)]
	return ok
}

func validDateType(v string) bool {
	switch domain.DateType(v) {
	case domain.DateExact, domain.DateRange, domain.DateUnknown:
		return true
	}
	return false
}

func yesNoToBool(v domain.YesNo) *bool {
	switch v {
	case domain.Yes:
		return domain.Ptr(true)
	case domain.No:
		return domain.Ptr(false)
	}
	return nil
}

func boolToYesNo(b *bool) domain.YesNo {
	switch {
	case b == nil:
		return domain.YesNoUnkn
	case *b:
		return domain.Yes
	}
	return domain.No
}

func ladderNeeded(v domain.LadderTruck) *bool {
	switch v {
	case domain.LadderRequired:
		return domain.Ptr(true)
	case domain.LadderNotRequired:
		return domain.Ptr(false)
	}
	return nil
}

func orUnknown(v string) string {
	if v == "" {
		return domain.Unknown
	}
	return v
}

func clone[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
