package ai

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"moveline/internal/domain"
	"moveline/internal/steps"
)

// confidenceAliases re-keys model confidence paths onto record paths.
var confidenceAliases = map[string]string{
	"move.date": "move.schedule",
}

// Decode maps a model response onto a patch. Values that do not fit the
// record are dropped, and confidence is kept only for paths the patch sets.
func Decode(raw string) Result {
	body := stripFences(raw)
	if !gjson.Valid(body) {
		res := Failed("model returned invalid JSON")
		res.Raw = raw
		return res
	}
	doc := gjson.Parse(body)
	if !doc.IsObject() {
		res := Failed("model returned a non-object response")
		res.Raw = raw
		return res
	}

	patch := domain.Patch{}
	decodeMove(doc.Get("move"), patch)
	decodeLocation(doc.Get("departure"), "departure", patch, true)
	decodeLocation(doc.Get("arrival"), "arrival", patch, false)
	if v := strings.TrimSpace(doc.Get("conditions.extraRequests").String()); v != "" {
		patch.Set("conditions", "extraRequests", v)
	}
	if v := strings.TrimSpace(doc.Get("contact.name").String()); v != "" {
		patch.Set("contact", "name", v)
	}
	if v := strings.TrimSpace(doc.Get("contact.phone").String()); v != "" && steps.ValidPhone(v) {
		patch.Set("contact", "phone", v)
	}

	set := map[string]bool{}
	for _, p := range patch.Paths() {
		set[p] = true
	}
	confidence := map[string]float64{}
	doc.Get("confidence").ForEach(func(key, value gjson.Result) bool {
		if value.Type != gjson.Number {
			return true
		}
		path := key.String()
		if alias, ok := confidenceAliases[path]; ok {
			path = alias
		}
		if set[path] {
			confidence[path] = clamp01(value.Float())
		}
		return true
	})

	return Result{
		Success:    true,
		Data:       patch,
		Confidence: confidence,
		Message:    doc.Get("message").String(),
		Raw:        raw,
	}
}

func decodeMove(move gjson.Result, patch domain.Patch) {
	if !move.IsObject() {
		return
	}
	if v := move.Get("category").String(); v != "" && domain.ValidMoveCategory(v) {
		patch.Set("move", "category", v)
	}
	if v := move.Get("type").String(); v != "" && domain.ValidMoveType(v) {
		patch.Set("move", "type", v)
	}
	if v := move.Get("timeSlot").String(); v != "" && domain.ValidTimeSlot(v) {
		patch.Set("move", "timeSlot", v)
	}
	if v := move.Get("date").String(); v != "" {
		if _, err := time.Parse("2006-01-02", v); err == nil {
			patch.Set("move", "schedule", domain.Schedule{DateType: domain.DateExact, Date: &v})
		}
	}
}

func decodeLocation(loc gjson.Result, section string, patch domain.Patch, withFootage bool) {
	if !loc.IsObject() {
		return
	}
	if v := strings.TrimSpace(loc.Get("address").String()); v != "" {
		patch.Set(section, "address", v)
	}
	if f := loc.Get("floor"); f.Exists() && f.Type != gjson.Null {
		if floor, ok := steps.ParseFloor(f.Value()); ok {
			patch.Set(section, "floor", floor)
			patch.Set(section, "floorStatus", domain.FloorKnown)
		}
	}
	if e := loc.Get("hasElevator"); e.IsBool() {
		if e.Bool() {
			patch.Set(section, "hasElevator", domain.Yes)
			patch.Set(section, "transportMethod", domain.TransportElevator)
		} else {
			patch.Set(section, "hasElevator", domain.No)
			patch.Set(section, "transportMethod", domain.TransportStairs)
		}
	}
	if !withFootage {
		return
	}
	if sq := loc.Get("squareFootage"); sq.Type == gjson.Number && sq.Float() > 0 {
		patch.Set(section, "squareFootage", domain.BucketSquareFootage(sq.Float()))
	}
}

// stripFences removes a ```json fence some models wrap around output.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
