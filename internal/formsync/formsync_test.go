package formsync

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moveline/internal/domain"
	"moveline/internal/engine"
	"moveline/internal/schemapath"
)

var now = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func fullSchema(t *testing.T) domain.Schema {
	t.Helper()
	patch := domain.Patch{
		"move": {
			"category": domain.CategoryApartment,
			"type":     domain.MoveFullPack,
			"timeSlot": domain.SlotEarlyMorning,
			"schedule": domain.Schedule{DateType: domain.DateRange, DateFrom: domain.Ptr("2025-06-01"), DateTo: domain.Ptr("2025-06-07")},
		},
		"departure": {
			"address":         "강남구 역삼동",
			"detailAddress":   "101동 1203호",
			"floor":           12,
			"floorStatus":     domain.FloorKnown,
			"hasElevator":     domain.No,
			"transportMethod": domain.TransportLadder,
			"parking":         domain.Yes,
			"squareFootage":   domain.Sq15to25,
		},
		"arrival": {
			"address":         "마포구 합정동",
			"floorStatus":     domain.FloorUnknown,
			"hasElevator":     domain.Yes,
			"transportMethod": domain.TransportElevator,
			"squareFootage":   domain.SqOver45,
		},
		"cargo": {
			"appliances": domain.Appliances{Refrigerator: domain.CargoItem{Has: true, Qty: 1, Note: "양문형"}},
			"furniture":  domain.Furniture{Bed: domain.CargoItem{Has: true, Qty: 2}},
			"special": domain.Special{
				Piano:  domain.SpecialItem{Has: true, Note: "업라이트"},
				Custom: []domain.CustomItem{{Name: "안마의자"}},
			},
			"boxes": domain.Boxes{Range: domain.Boxes6to10, ExactCount: domain.Ptr(8)},
		},
		"services": {
			"ladderTruck":   domain.LadderRequired,
			"airconInstall": domain.AirconInstall{Needed: true, Qty: 2},
			"cleaning":      true,
			"storage":       domain.Storage{Needed: true, DurationDays: 30},
		},
		"conditions": {
			"extraRequests":         "피아노 조심해주세요",
			"vehiclePreference":     domain.VehicleTwo,
			"customerParticipation": false,
		},
		"contact": {
			"name":          "홍길동",
			"phone":         "010-1234-5678",
			"carrier":       domain.CarrierSKT,
			"preferredTime": domain.ContactEvening,
		},
	}
	s, err := schemapath.Merge(domain.NewSchema(now, "req-1"), patch)
	require.NoError(t, err)
	return s
}

func roundTrip(t *testing.T, s domain.Schema) domain.Schema {
	t.Helper()
	out, err := schemapath.Merge(domain.NewSchema(now, "req-1"), FormToSchema(SchemaToForm(s)))
	require.NoError(t, err)
	return out
}

func TestRoundTripPreservesEveryField(t *testing.T) {
	s := fullSchema(t)
	got := roundTrip(t, s)
	opts := cmpopts.EquateEmpty()
	for name, pair := range map[string][2]any{
		"move":       {s.Move, got.Move},
		"departure":  {s.Departure, got.Departure},
		"arrival":    {s.Arrival, got.Arrival},
		"cargo":      {s.Cargo, got.Cargo},
		"services":   {s.Services, got.Services},
		"conditions": {s.Conditions, got.Conditions},
		"contact":    {s.Contact, got.Contact},
	} {
		if diff := cmp.Diff(pair[0], pair[1], opts); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestRoundTripDefaultSchema(t *testing.T) {
	s := domain.NewSchema(now, "req-1")
	got := roundTrip(t, s)
	if diff := cmp.Diff(s, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("default schema mismatch (-want +got):\n%s", diff)
	}
}

func TestSquareFootageBuckets(t *testing.T) {
	for _, sq := range []domain.SquareFootage{domain.SqUnder10, domain.Sq10to15, domain.Sq15to25, domain.Sq25to35, domain.Sq35to45, domain.SqOver45, domain.SqUnknown} {
		s := domain.NewSchema(now, "req-1")
		s.Departure.SquareFootage = sq
		assert.Equal(t, sq, roundTrip(t, s).Departure.SquareFootage, sq)
	}

	f := SchemaToForm(domain.NewSchema(now, "req-1"))
	assert.Nil(t, f.Departure.SquareFootage)
	for n, want := range map[int]domain.SquareFootage{8: domain.SqUnder10, 11: domain.Sq10to15, 25: domain.Sq15to25, 33: domain.Sq25to35, 45: domain.Sq35to45, 70: domain.SqOver45} {
		f.Departure.SquareFootage = domain.Ptr(n)
		assert.Equal(t, want, FormToSchema(f)["departure"]["squareFootage"], n)
	}
}

func TestDocumentedQuantization(t *testing.T) {
	s := domain.NewSchema(now, "req-1")
	s.Departure.HasElevator = domain.Yes
	s.Departure.TransportMethod = domain.TransportStairs
	s.Departure.Floor = domain.Ptr(3)
	s.Cargo.Appliances.Washer = domain.CargoItem{Has: false, Qty: 2, Note: "드럼"}

	got := roundTrip(t, s)
	assert.Equal(t, domain.TransportElevator, got.Departure.TransportMethod)
	require.NotNil(t, got.Departure.FloorStatus)
	assert.Equal(t, domain.FloorKnown, *got.Departure.FloorStatus)
	assert.Equal(t, domain.CargoItem{}, got.Cargo.Appliances.Washer)
}

func TestTriStateMapping(t *testing.T) {
	s := fullSchema(t)
	f := SchemaToForm(s)
	require.NotNil(t, f.Departure.HasElevator)
	assert.False(t, *f.Departure.HasElevator)
	assert.True(t, f.Departure.LadderTruck)
	require.NotNil(t, f.Arrival.HasElevator)
	assert.True(t, *f.Arrival.HasElevator)
	assert.True(t, f.Arrival.FloorUnknown)
	assert.Nil(t, SchemaToForm(domain.NewSchema(now, "x")).Departure.HasElevator)
	assert.Equal(t, []Item{{Key: "refrigerator", Label: "냉장고", Qty: 1, Note: "양문형"}}, f.Cargo.Appliances)
}

func TestValidate(t *testing.T) {
	f := SchemaToForm(fullSchema(t))
	require.NoError(t, f.Validate())

	bad := f
	bad.Move.Type = "teleport"
	assert.Error(t, bad.Validate())

	bad = f
	bad.Move.Schedule.DateFrom = domain.Ptr("2025-02-30")
	assert.Error(t, bad.Validate())

	bad = f
	bad.Contact.Carrier = domain.Ptr("Vodafone")
	assert.Error(t, bad.Validate())

	bad = f
	bad.Departure.Floor = domain.Ptr(120)
	assert.Error(t, bad.Validate())
}

func newEngine() *engine.Engine {
	eng := engine.New()
	eng.Now = func() time.Time { return now }
	eng.NewID = func() string { return "req-1" }
	eng.Reset()
	return eng
}

func TestBinderSkipsOwnEcho(t *testing.T) {
	eng := newEngine()
	b := NewBinder(eng)
	assert.Equal(t, SourceNone, b.LastSource())

	f := b.Form()
	f.Move.TimeSlot = string(domain.SlotMorning)
	f.Departure.SquareFootage = domain.Ptr(22)
	require.NoError(t, b.Submit(f))
	assert.Equal(t, SourceForm, b.LastSource())

	s := eng.Schema()
	assert.Equal(t, domain.SlotMorning, s.Move.TimeSlot)
	assert.Equal(t, domain.Sq15to25, s.Departure.SquareFootage)
	assert.Equal(t, domain.SourceForm, s.Meta.Source)

	got, changed := b.Sync(s)
	assert.False(t, changed)
	assert.Equal(t, 22, *got.Departure.SquareFootage, "the user's own value is kept")
	assert.Equal(t, SourceNone, b.LastSource())

	require.NoError(t, eng.SetFieldValue("arrival.address", "마포구 합정동", domain.ConfidenceChat))
	got, changed = b.Sync(eng.Schema())
	assert.True(t, changed)
	require.NotNil(t, got.Arrival.Address)
	assert.Equal(t, "마포구 합정동", *got.Arrival.Address)
	assert.Equal(t, 20, *got.Departure.SquareFootage)
	assert.Equal(t, SourceStore, b.LastSource())
}

func TestBinderUntouchedFormRecordsNothing(t *testing.T) {
	eng := newEngine()
	b := NewBinder(eng)
	require.NoError(t, b.Submit(b.Form()))
	assert.Empty(t, eng.Schema().Status.FieldConfidence)
	assert.Equal(t, domain.SourceGuided, eng.Schema().Meta.Source)
}

type failingStore struct {
	schema domain.Schema
}

func (f failingStore) Schema() domain.Schema { return f.schema }

func (failingStore) MergeSchemaUpdates(domain.Patch, domain.ConfidenceSource) error {
	return errors.New("store unavailable")
}

func TestBinderSubmitFailure(t *testing.T) {
	b := NewBinder(failingStore{domain.NewSchema(now, "req-1")})
	before := b.Form()
	f := before
	f.Move.Type = string(domain.MoveTruck)
	assert.Error(t, b.Submit(f))
	assert.Equal(t, before, b.Form())
	assert.Equal(t, SourceNone, b.LastSource())

	f.Move.Type = "teleport"
	assert.Error(t, b.Submit(f))
}
