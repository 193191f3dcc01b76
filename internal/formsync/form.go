// Package formsync keeps a flat edit form and the canonical record in step.
package formsync

// Form is the editable view of a record. Tri-state answers are *bool (nil
// means unknown), square footage is a representative pyeong count and cargo
// is listed as owned items only.
type Form struct {
	Move       MoveForm       `json:"move"`
	Departure  LocationForm   `json:"departure"`
	Arrival    LocationForm   `json:"arrival"`
	Cargo      CargoForm      `json:"cargo"`
	Services   ServicesForm   `json:"services"`
	Conditions ConditionsForm `json:"conditions"`
	Contact    ContactForm    `json:"contact"`
}

type MoveForm struct {
	Category string       `json:"category"`
	Type     string       `json:"type"`
	Schedule ScheduleForm `json:"schedule"`
	TimeSlot string       `json:"timeSlot"`
}

type ScheduleForm struct {
	DateType string  `json:"dateType"`
	Date     *string `json:"date"`
	DateFrom *string `json:"dateFrom"`
	DateTo   *string `json:"dateTo"`
}

// LocationForm replaces transportMethod with the elevator answer plus a
// ladder-truck checkbox.
type LocationForm struct {
	Address       *string `json:"address"`
	DetailAddress *string `json:"detailAddress"`
	Floor         *int    `json:"floor"`
	FloorUnknown  bool    `json:"floorUnknown"`
	HasElevator   *bool   `json:"hasElevator"`
	LadderTruck   bool    `json:"ladderTruck"`
	Parking       *bool   `json:"parking"`
	SquareFootage *int    `json:"squareFootage"`
}

type Item struct {
	Key   string `json:"key"`
	Label string `json:"label,omitempty"`
	Qty   int    `json:"qty,omitempty"`
	Note  string `json:"note,omitempty"`
}

type CustomEntry struct {
	Name string `json:"name"`
	Note string `json:"note,omitempty"`
}

type CargoForm struct {
	Appliances []Item        `json:"appliances"`
	Furniture  []Item        `json:"furniture"`
	Special    []Item        `json:"special"`
	Custom     []CustomEntry `json:"custom"`
	BoxRange   string        `json:"boxRange"`
	BoxCount   *int          `json:"boxCount"`
}

type ServicesForm struct {
	// LadderTruckNeeded is the shared flag when neither location asks for
	// a ladder.
	LadderTruckNeeded *bool `json:"ladderTruckNeeded"`
	AirconInstall     bool  `json:"airconInstall"`
	AirconQty         int   `json:"airconQty"`
	Cleaning          bool  `json:"cleaning"`
	Organizing        bool  `json:"organizing"`
	Storage           bool  `json:"storage"`
	StorageDays       int   `json:"storageDays"`
	Disposal          bool  `json:"disposal"`
}

type ConditionsForm struct {
	ExtraRequests         *string `json:"extraRequests"`
	VehiclePreference     *string `json:"vehiclePreference"`
	CustomerParticipation *bool   `json:"customerParticipation"`
}

type ContactForm struct {
	Name          *string `json:"name"`
	Phone         *string `json:"phone"`
	Carrier       *string `json:"carrier"`
	PreferredTime *string `json:"preferredTime"`
}
