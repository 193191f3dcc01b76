package steps

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"moveline/internal/domain"
	"moveline/internal/schemapath"
)

// InvalidAnswerError is returned when a value cannot answer a step.
type InvalidAnswerError struct {
	StepID string
	Reason string
}

func (e InvalidAnswerError) Error() string {
	return fmt.Sprintf("invalid answer for step %s: %s", e.StepID, e.Reason)
}

// TransformFunc turns an answer into a patch. Implementations are pure.
type TransformFunc func(value any, s domain.Schema) (domain.Patch, error)

var transforms = map[string]TransformFunc{
	"move_date":              transformMoveDate,
	"departure_transport":    transportTransform("departure"),
	"arrival_transport":      transportTransform("arrival"),
	"departure_floor":        floorTransform("departure"),
	"arrival_floor":          floorTransform("arrival"),
	"customer_participation": transformParticipation,
	"additional_services":    transformServices,
	"contact_verification":   transformContact,
}

// Apply answers step with value against s and returns the new record.
func Apply(step Step, value any, s domain.Schema) (domain.Schema, error) {
	if step.Strategy != "" {
		fn, ok := transforms[step.Strategy]
		if !ok {
			return domain.Schema{}, fmt.Errorf("step %s: unknown strategy %s", step.ID, step.Strategy)
		}
		patch, err := fn(value, s)
		if err != nil {
			return domain.Schema{}, withStep(err, step.ID)
		}
		return schemapath.Merge(s, patch)
	}
	v, err := directValue(step, value)
	if err != nil {
		return domain.Schema{}, err
	}
	out, err := schemapath.Set(s, step.Path, v)
	if err != nil {
		return domain.Schema{}, InvalidAnswerError{StepID: step.ID, Reason: err.Error()}
	}
	return out, nil
}

func withStep(err error, stepID string) error {
	if ia, ok := err.(InvalidAnswerError); ok && ia.StepID == "" {
		ia.StepID = stepID
		return ia
	}
	return err
}

func invalid(format string, args ...any) error {
	return InvalidAnswerError{Reason: fmt.Sprintf(format, args...)}
}

func directValue(step Step, value any) (any, error) {
	if step.HasOptions() {
		str, ok := asString(value)
		if !ok {
			return nil, InvalidAnswerError{StepID: step.ID, Reason: "expected an option value"}
		}
		if _, ok := step.Option(str); !ok {
			return nil, InvalidAnswerError{StepID: step.ID, Reason: fmt.Sprintf("%q is not an option", str)}
		}
		return str, nil
	}
	switch step.Input {
	case InputAddress, InputText:
		str, ok := asString(value)
		if !ok || strings.TrimSpace(str) == "" {
			return nil, InvalidAnswerError{StepID: step.ID, Reason: "expected non-empty text"}
		}
		return strings.TrimSpace(str), nil
	case InputPhoneVerify:
		str, ok := asString(value)
		if !ok || !ValidPhone(str) {
			return nil, InvalidAnswerError{StepID: step.ID, Reason: "expected a 10-11 digit phone number"}
		}
		return strings.TrimSpace(str), nil
	}
	return value, nil
}

func transformMoveDate(value any, _ domain.Schema) (domain.Patch, error) {
	sched, err := parseSchedule(value)
	if err != nil {
		return nil, err
	}
	return domain.Patch{"move": {"schedule": sched}}, nil
}

const dateLayout = "2006-01-02"

func validDate(v string) bool {
	_, err := time.Parse(dateLayout, v)
	return err == nil
}

func parseSchedule(value any) (domain.Schedule, error) {
	if str, ok := asString(value); ok {
		str = strings.TrimSpace(str)
		if isUnknownWord(str) {
			return domain.Schedule{DateType: domain.DateUnknown}, nil
		}
		if from, to, found := strings.Cut(str, "~"); found {
			from, to = strings.TrimSpace(from), strings.TrimSpace(to)
			if !validDate(from) || !validDate(to) {
				return domain.Schedule{}, invalid("invalid date range %q", str)
			}
			return domain.Schedule{DateType: domain.DateRange, DateFrom: &from, DateTo: &to}, nil
		}
		if !validDate(str) {
			return domain.Schedule{}, invalid("invalid date %q", str)
		}
		return domain.Schedule{DateType: domain.DateExact, Date: &str}, nil
	}
	var sched domain.Schedule
	if err := decodeInto(value, &sched); err != nil {
		return domain.Schedule{}, invalid("invalid schedule: %v", err)
	}
	switch sched.DateType {
	case domain.DateExact, domain.DateRange, domain.DateUnknown:
	case "":
		sched.DateType = domain.DateUnknown
	default:
		return domain.Schedule{}, invalid("unknown date type %q", sched.DateType)
	}
	for _, d := range []*string{sched.Date, sched.DateFrom, sched.DateTo} {
		if d != nil && !validDate(*d) {
			return domain.Schedule{}, invalid("invalid date %q", *d)
		}
	}
	return sched, nil
}

// ParseTransport accepts transport option values and the yes/no aliases.
func ParseTransport(v string) (domain.TransportMethod, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "elevator", "yes", "엘리베이터":
		return domain.TransportElevator, true
	case "stairs", "no", "계단":
		return domain.TransportStairs, true
	case "ladder", "사다리차":
		return domain.TransportLadder, true
	}
	return "", false
}

// LadderRequirement derives services.ladderTruck from both locations.
func LadderRequirement(dep, arr domain.TransportMethod, current domain.LadderTruck) domain.LadderTruck {
	if dep == domain.TransportLadder || arr == domain.TransportLadder {
		return domain.LadderRequired
	}
	if dep != domain.TransportUnknown || arr != domain.TransportUnknown {
		return domain.LadderNotRequired
	}
	return current
}

func transportTransform(section string) TransformFunc {
	return func(value any, s domain.Schema) (domain.Patch, error) {
		str, ok := asString(value)
		if !ok {
			return nil, invalid("expected a transport method")
		}
		method, ok := ParseTransport(str)
		if !ok {
			return nil, invalid("%q is not a transport method", str)
		}
		elevator := domain.No
		if method == domain.TransportElevator {
			elevator = domain.Yes
		}
		dep, arr := s.Departure.TransportMethod, s.Arrival.TransportMethod
		if section == "departure" {
			dep = method
		} else {
			arr = method
		}
		patch := domain.Patch{}
		patch.Set(section, "hasElevator", elevator)
		patch.Set(section, "transportMethod", method)
		patch.Set("services", "ladderTruck", LadderRequirement(dep, arr, s.Services.LadderTruck))
		return patch, nil
	}
}

func floorTransform(section string) TransformFunc {
	return func(value any, _ domain.Schema) (domain.Patch, error) {
		patch := domain.Patch{}
		if str, ok := asString(value); ok && isUnknownWord(str) {
			patch.Set(section, "floor", nil)
			patch.Set(section, "floorStatus", domain.FloorUnknown)
			return patch, nil
		}
		floor, ok := ParseFloor(value)
		if !ok {
			return nil, invalid("expected a floor number")
		}
		patch.Set(section, "floor", floor)
		patch.Set(section, "floorStatus", domain.FloorKnown)
		return patch, nil
	}
}

// ParseFloor reads a floor from numbers and from Korean forms such as
// "3층", "지하1층" or "반지하".
func ParseFloor(value any) (int, bool) {
	var floor int
	switch v := value.(type) {
	case int:
		floor = v
	case int64:
		floor = int(v)
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		floor = int(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		floor = int(n)
	case string:
		str := strings.ReplaceAll(strings.TrimSpace(v), " ", "")
		if str == "반지하" {
			return 0, true
		}
		negative := false
		if rest, ok := strings.CutPrefix(str, "지하"); ok {
			negative = true
			str = rest
		}
		str = strings.TrimSuffix(str, "층")
		n, err := strconv.Atoi(str)
		if err != nil {
			return 0, false
		}
		if negative {
			n = -n
		}
		floor = n
	default:
		return 0, false
	}
	if floor < -9 || floor > 99 {
		return 0, false
	}
	return floor, true
}

func transformParticipation(value any, _ domain.Schema) (domain.Patch, error) {
	b, ok := asBool(value)
	if !ok {
		return nil, invalid("expected true or false")
	}
	return domain.Patch{"conditions": {"customerParticipation": b}}, nil
}

var serviceToggles = []string{"airconInstall", "cleaning", "organizing", "disposal"}

func transformServices(value any, s domain.Schema) (domain.Patch, error) {
	selected := map[string]bool{}
	switch v := value.(type) {
	case nil:
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				selected[part] = true
			}
		}
	case []string:
		for _, part := range v {
			selected[part] = true
		}
	case []any:
		for _, part := range v {
			str, ok := part.(string)
			if !ok {
				return nil, invalid("service toggles must be strings")
			}
			selected[str] = true
		}
	case map[string]any:
		for k, raw := range v {
			b, ok := asBool(raw)
			if !ok {
				return nil, invalid("service %s must be a boolean", k)
			}
			if b {
				selected[k] = true
			}
		}
	case map[string]bool:
		for k, b := range v {
			if b {
				selected[k] = true
			}
		}
	default:
		return nil, invalid("unsupported service selection %T", value)
	}
	known := map[string]bool{}
	for _, k := range serviceToggles {
		known[k] = true
	}
	for k := range selected {
		if !known[k] {
			return nil, invalid("unknown service %q", k)
		}
	}
	aircon := s.Services.AirconInstall
	aircon.Needed = selected["airconInstall"]
	if aircon.Needed && aircon.Qty == 0 {
		aircon.Qty = 1
	}
	if !aircon.Needed {
		aircon.Qty = 0
	}
	return domain.Patch{"services": {
		"airconInstall": aircon,
		"cleaning":      selected["cleaning"],
		"organizing":    selected["organizing"],
		"disposal":      selected["disposal"],
	}}, nil
}

type contactAnswer struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Carrier       string `json:"carrier"`
	PreferredTime string `json:"preferredTime"`
}

func transformContact(value any, _ domain.Schema) (domain.Patch, error) {
	var ans contactAnswer
	if err := decodeInto(value, &ans); err != nil {
		return nil, invalid("expected contact details: %v", err)
	}
	ans.Phone = strings.TrimSpace(ans.Phone)
	if !ValidPhone(ans.Phone) {
		return nil, invalid("expected a 10-11 digit phone number")
	}
	patch := domain.Patch{}
	patch.Set("contact", "phone", ans.Phone)
	if name := strings.TrimSpace(ans.Name); name != "" {
		patch.Set("contact", "name", name)
	}
	if ans.Carrier != "" {
		if !domain.ValidCarrier(ans.Carrier) {
			return nil, invalid("unknown carrier %q", ans.Carrier)
		}
		patch.Set("contact", "carrier", ans.Carrier)
	}
	if ans.PreferredTime != "" {
		if !domain.ValidContactTime(ans.PreferredTime) {
			return nil, invalid("unknown contact time %q", ans.PreferredTime)
		}
		patch.Set("contact", "preferredTime", ans.PreferredTime)
	}
	return patch, nil
}

// ValidPhone accepts 10 or 11 digits, ignoring separators.
func ValidPhone(v string) bool {
	digits := 0
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '-' || r == ' ' || r == '+' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 10 && digits <= 11
}

var unknownWords = map[string]bool{
	"unknown": true, "모름": true, "모르겠어요": true, "몰라요": true, "잘 모르겠어요": true,
}

func isUnknownWord(v string) bool {
	return unknownWords[strings.ToLower(strings.TrimSpace(v))]
}

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case fmt.Stringer:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

func asBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y":
			return true, true
		case "false", "no", "n":
			return false, true
		}
	}
	return false, false
}

func decodeInto(value any, out any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
