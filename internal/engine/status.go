package engine

import (
	"sort"
	"strings"

	"moveline/internal/domain"
	"moveline/internal/schemapath"
	"moveline/internal/steps"
)

// MissingRequiredFields lists the required paths that are still empty,
// ordered by ascending priority.
func MissingRequiredFields(s domain.Schema) []domain.MissingField {
	missing := []domain.MissingField{}
	for _, path := range domain.RequiredFields {
		v, _ := schemapath.Get(s, path)
		if !isEmpty(s, path, v) {
			continue
		}
		missing = append(missing, domain.MissingField{
			Field:            path,
			Priority:         steps.FieldPriority(path),
			QuestionTemplate: steps.QuestionTemplate(path),
		})
	}
	sort.SliceStable(missing, func(i, j int) bool { return missing[i].Priority < missing[j].Priority })
	return missing
}

// CompletionRate is the share of required fields that are filled.
func CompletionRate(s domain.Schema) float64 {
	total := len(domain.RequiredFields)
	rate := float64(total-len(MissingRequiredFields(s))) / float64(total)
	switch {
	case rate < 0:
		return 0
	case rate > 1:
		return 1
	}
	return rate
}

// CanSubmit reports whether s may be sent as an estimate request.
func CanSubmit(s domain.Schema) bool {
	if len(MissingRequiredFields(s)) > 0 {
		return false
	}
	if blank(s.Contact.Name) || blank(s.Contact.Phone) {
		return false
	}
	return s.Move.Schedule.DateType != domain.DateUnknown
}

// Recompute returns s with its derived status rebuilt. Provenance and the
// submission stamp are carried over.
func Recompute(s domain.Schema) domain.Schema {
	s.Normalize()
	missing := MissingRequiredFields(s)
	s.Status = domain.Status{
		CompletionRate:  CompletionRate(s),
		MissingRequired: missing,
		FieldConfidence: s.Status.FieldConfidence,
		ReadyForSubmit:  CanSubmit(s),
		SubmittedAt:     s.Status.SubmittedAt,
	}
	return s
}

func isEmpty(s domain.Schema, path string, v any) bool {
	switch path {
	case "departure.floor", "arrival.floor":
		section, _, _ := strings.Cut(path, ".")
		loc, _ := s.Location(section)
		if loc.FloorStatus != nil && *loc.FloorStatus == domain.FloorUnknown {
			return false
		}
		return loc.Floor == nil
	case "move.schedule":
		sched := s.Move.Schedule
		switch sched.DateType {
		case domain.DateExact:
			return blank(sched.Date)
		case domain.DateRange:
			return blank(sched.DateFrom) || blank(sched.DateTo)
		}
		return true
	}
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == domain.Unknown || strings.TrimSpace(t) == ""
	}
	return false
}

func blank(p *string) bool {
	return p == nil || strings.TrimSpace(*p) == ""
}
