package steps

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moveline/internal/domain"
)

func newSchema() domain.Schema {
	return domain.NewSchema(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), "req-1")
}

func mustApply(t *testing.T, id string, value any, s domain.Schema) domain.Schema {
	t.Helper()
	st, ok := ByID(id)
	require.Truef(t, ok, "step %s", id)
	out, err := Apply(st, value, s)
	require.NoError(t, err)
	return out
}

func TestCatalogShape(t *testing.T) {
	all := All()
	require.Len(t, all, 16)
	seen := map[string]bool{}
	for i, st := range all {
		assert.Equal(t, i+1, st.Number)
		assert.False(t, seen[st.ID], "duplicate id %s", st.ID)
		seen[st.ID] = true
		assert.Equal(t, i, byID[st.ID])
		if st.Strategy != "" {
			_, ok := transforms[st.Strategy]
			assert.Truef(t, ok, "missing transform %s", st.Strategy)
		}
	}
	_, ok := ByID("nope")
	assert.False(t, ok)
}

func TestSkipPredicates(t *testing.T) {
	s := newSchema()
	assert.Len(t, Active(s), 16)

	s.Move.Type = domain.MoveFullPack
	ids := activeIDs(Active(s))
	assert.NotContains(t, ids, "vehicle_preference")
	assert.NotContains(t, ids, "customer_participation")
	assert.Contains(t, ids, "additional_services")

	s.Move.Type = domain.MoveTruck
	ids = activeIDs(Active(s))
	assert.Contains(t, ids, "vehicle_preference")
	assert.NotContains(t, ids, "additional_services")
	assert.True(t, IsSkipped("additional_services", s))
	assert.False(t, IsSkipped("move_date", s))
}

func activeIDs(list []Step) []string {
	out := make([]string, 0, len(list))
	for _, st := range list {
		out = append(out, st.ID)
	}
	return out
}

func TestLadderTruckSharedFlag(t *testing.T) {
	s := newSchema()
	assert.Equal(t, domain.LadderUnknown, s.Services.LadderTruck)

	s = mustApply(t, "departure_transport", "ladder", s)
	assert.Equal(t, domain.LadderRequired, s.Services.LadderTruck)
	assert.Equal(t, domain.No, s.Departure.HasElevator)

	s = mustApply(t, "arrival_transport", "ladder", s)
	s = mustApply(t, "departure_transport", "elevator", s)
	assert.Equal(t, domain.Yes, s.Departure.HasElevator)
	assert.Equal(t, domain.LadderRequired, s.Services.LadderTruck, "arrival still needs the ladder truck")

	s = mustApply(t, "arrival_transport", "stairs", s)
	assert.Equal(t, domain.LadderNotRequired, s.Services.LadderTruck)
	assert.Equal(t, domain.TransportStairs, s.Arrival.TransportMethod)
}

func TestTransportAliases(t *testing.T) {
	s := mustApply(t, "departure_transport", "yes", newSchema())
	assert.Equal(t, domain.TransportElevator, s.Departure.TransportMethod)

	st, _ := ByID("departure_transport")
	_, err := Apply(st, "helicopter", newSchema())
	var invalid InvalidAnswerError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "departure_transport", invalid.StepID)
}

func TestFloorTransform(t *testing.T) {
	s := mustApply(t, "departure_floor", "지하1층", newSchema())
	assert.Equal(t, -1, *s.Departure.Floor)
	assert.Equal(t, domain.FloorKnown, *s.Departure.FloorStatus)

	s = mustApply(t, "departure_floor", float64(12), s)
	assert.Equal(t, 12, *s.Departure.Floor)

	s = mustApply(t, "departure_floor", "모름", s)
	assert.Nil(t, s.Departure.Floor)
	assert.Equal(t, domain.FloorUnknown, *s.Departure.FloorStatus)

	s = mustApply(t, "arrival_floor", "반지하", s)
	assert.Equal(t, 0, *s.Arrival.Floor)

	st, _ := ByID("arrival_floor")
	_, err := Apply(st, 2.5, s)
	assert.Error(t, err)
	_, err = Apply(st, "옥상", s)
	assert.Error(t, err)
}

func TestMoveDateTransform(t *testing.T) {
	s := mustApply(t, "move_date", "2025-06-01", newSchema())
	assert.Equal(t, domain.DateExact, s.Move.Schedule.DateType)
	assert.Equal(t, "2025-06-01", *s.Move.Schedule.Date)

	s = mustApply(t, "move_date", map[string]any{"dateType": "range", "dateFrom": "2025-06-01", "dateTo": "2025-06-07"}, s)
	assert.Equal(t, domain.DateRange, s.Move.Schedule.DateType)
	assert.Nil(t, s.Move.Schedule.Date)
	assert.Equal(t, "2025-06-07", *s.Move.Schedule.DateTo)

	s = mustApply(t, "move_date", "unknown", s)
	assert.Equal(t, domain.DateUnknown, s.Move.Schedule.DateType)

	st, _ := ByID("move_date")
	_, err := Apply(st, "next week", s)
	assert.Error(t, err)
}

func TestDirectSetValidatesOptions(t *testing.T) {
	s := mustApply(t, "move_type", "half_pack", newSchema())
	assert.Equal(t, domain.MoveHalfPack, s.Move.Type)

	st, _ := ByID("move_type")
	_, err := Apply(st, "teleport", s)
	assert.Error(t, err)

	st, _ = ByID("departure_address")
	_, err = Apply(st, "   ", s)
	assert.Error(t, err)
	s = mustApply(t, "departure_address", "  강남구 역삼동 ", s)
	assert.Equal(t, "강남구 역삼동", *s.Departure.Address)

	s = mustApply(t, "vehicle_preference", "2", s)
	assert.Equal(t, domain.VehicleTwo, *s.Conditions.VehiclePreference)
}

func TestServicesAndParticipation(t *testing.T) {
	s := mustApply(t, "additional_services", []any{"airconInstall", "cleaning"}, newSchema())
	assert.True(t, s.Services.AirconInstall.Needed)
	assert.Equal(t, 1, s.Services.AirconInstall.Qty)
	assert.True(t, s.Services.Cleaning)
	assert.False(t, s.Services.Disposal)

	s = mustApply(t, "additional_services", []string{}, s)
	assert.False(t, s.Services.AirconInstall.Needed)
	assert.False(t, s.Services.Cleaning)

	st, _ := ByID("additional_services")
	_, err := Apply(st, []any{"pianoTuning"}, s)
	assert.Error(t, err)

	s = mustApply(t, "customer_participation", "true", s)
	require.NotNil(t, s.Conditions.CustomerParticipation)
	assert.True(t, *s.Conditions.CustomerParticipation)
}

func TestContactTransform(t *testing.T) {
	s := mustApply(t, "contact_verification", map[string]any{
		"name": "홍길동", "phone": "010-1234-5678", "carrier": "KT",
	}, newSchema())
	assert.Equal(t, "홍길동", *s.Contact.Name)
	assert.Equal(t, "010-1234-5678", *s.Contact.Phone)
	assert.Equal(t, domain.CarrierKT, *s.Contact.Carrier)
	assert.Nil(t, s.Contact.PreferredTime)

	st, _ := ByID("contact_verification")
	_, err := Apply(st, map[string]any{"name": "홍길동", "phone": "1234"}, s)
	assert.Error(t, err)

	assert.True(t, ValidPhone("01012345678"))
	assert.False(t, ValidPhone("010-1234-567a"))
}

func TestForPath(t *testing.T) {
	cases := map[string]string{
		"move.schedule":          "move_date",
		"move.schedule.date":     "move_date",
		"departure.hasElevator":  "departure_transport",
		"contact.phone":          "contact_verification",
		"services.airconInstall": "additional_services",
	}
	for path, want := range cases {
		st, ok := ForPath(path)
		require.Truef(t, ok, "path %s", path)
		assert.Equal(t, want, st.ID, path)
	}
	_, ok := ForPath("cargo.boxes")
	assert.False(t, ok)
}

func TestProgress(t *testing.T) {
	s := newSchema()
	s.Move.Type = domain.MoveFullPack
	assert.Equal(t, 0.0, Progress(nil, s))
	assert.InDelta(t, 2.0/14.0, Progress(map[string]bool{"move_date": true, "vehicle_preference": true, "move_type": true}, s), 1e-9)
}

func TestRecoveryTable(t *testing.T) {
	for _, path := range domain.RequiredFields {
		st, ok := Recovery(path)
		require.Truef(t, ok, "no recovery step for %s", path)
		assert.Equal(t, RecoveryPrefix+path, st.ID)
		assert.Equal(t, QuestionTemplate(path), st.Question)
		assert.True(t, IsRecovery(st.ID))

		back, ok := RecoveryByID(st.ID)
		require.True(t, ok)
		assert.Equal(t, st.Path, back.Path)
	}

	st, _ := Recovery("departure.hasElevator")
	assert.Equal(t, "departure_transport", st.Strategy)
	assert.Len(t, st.Options, 3)

	st, _ = Recovery("contact.phone")
	_, err := Apply(st, "12", newSchema())
	assert.Error(t, err)
	s, err := Apply(st, "010-9999-0000", newSchema())
	require.NoError(t, err)
	assert.Equal(t, "010-9999-0000", *s.Contact.Phone)

	_, ok := Recovery("cargo.boxes")
	assert.False(t, ok)
}

func TestFieldPriority(t *testing.T) {
	assert.Equal(t, 1, FieldPriority("departure.floor"))
	assert.Equal(t, 1, FieldPriority("arrival.hasElevator"))
	assert.Equal(t, 2, FieldPriority("move.schedule"))
	assert.Equal(t, 3, FieldPriority("move.type"))
	assert.Equal(t, 3, FieldPriority("departure.address"))
	assert.Equal(t, 4, FieldPriority("contact.phone"))
	assert.Equal(t, "foo.bar을(를) 입력해주세요", QuestionTemplate("foo.bar"))
}
