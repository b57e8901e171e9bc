package admission

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/db"
)

// -- Mock Repository --

type mockRepo struct {
	admissions map[uuid.UUID]*Admission
}

func newMockRepo() *mockRepo {
	return &mockRepo{admissions: make(map[uuid.UUID]*Admission)}
}

func (m *mockRepo) Create(_ context.Context, a *Admission) error {
	a.ID = uuid.New()
	cp := *a
	m.admissions[a.ID] = &cp
	return nil
}

func (m *mockRepo) Update(_ context.Context, a *Admission) error {
	if _, ok := m.admissions[a.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *a
	m.admissions[a.ID] = &cp
	return nil
}

func (m *mockRepo) Get(_ context.Context, id uuid.UUID) (*Admission, error) {
	a, ok := m.admissions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Admission, error) {
	return m.Get(ctx, id)
}

func (m *mockRepo) FindOpenByPatient(_ context.Context, patientID uuid.UUID) (*Admission, error) {
	for _, a := range m.admissions {
		if a.PatientID == patientID && a.Status == StatusInProgress {
			cp := *a
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) List(_ context.Context, filter Filter, limit, offset int) ([]*Admission, int, error) {
	var out []*Admission
	for _, a := range m.admissions {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.PatientID != nil && a.PatientID != *filter.PatientID {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Admission, error) {
	var out []*Admission
	for _, a := range m.admissions {
		if a.PatientID == patientID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// -- Mock Bed Allocator --

type mockAllocator struct {
	beds map[uuid.UUID]string
}

func newMockAllocator() *mockAllocator {
	return &mockAllocator{beds: make(map[uuid.UUID]string)}
}

func (m *mockAllocator) addBed() uuid.UUID {
	id := uuid.New()
	m.beds[id] = "available"
	return id
}

func (m *mockAllocator) Assign(_ context.Context, bedID uuid.UUID) error {
	status, ok := m.beds[bedID]
	if !ok {
		return apperr.NotFound("bed")
	}
	if status == "occupied" {
		return apperr.Conflict("bed_occupied", "bed is already occupied")
	}
	m.beds[bedID] = "occupied"
	return nil
}

func (m *mockAllocator) Release(_ context.Context, bedID uuid.UUID) error {
	if _, ok := m.beds[bedID]; ok {
		m.beds[bedID] = "available"
	}
	return nil
}

// -- Mock Recorder --

type mockRecorder struct {
	successes []string
	failures  []string
}

func (m *mockRecorder) Success(_ context.Context, action, _ string, _ *uuid.UUID, _ string) {
	m.successes = append(m.successes, action)
}

func (m *mockRecorder) Failure(_ context.Context, action, _ string, _ *uuid.UUID, _, _ string) {
	m.failures = append(m.failures, action)
}

func newTestService() (*Service, *mockRepo, *mockAllocator, *mockRecorder) {
	repo := newMockRepo()
	beds := newMockAllocator()
	rec := &mockRecorder{}
	return NewService(repo, beds, db.PassthroughTxRunner(), rec), repo, beds, rec
}

func validParams() AdmitParams {
	return AdmitParams{
		PatientID:   uuid.New(),
		ClinicianID: uuid.New(),
		Type:        "emergency",
		Diagnosis:   "acute appendicitis",
		Reason:      "severe abdominal pain",
	}
}

func TestAdmitWithoutBed(t *testing.T) {
	svc, _, _, rec := newTestService()

	a, err := svc.Admit(context.Background(), validParams())
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if a.Status != StatusInProgress {
		t.Errorf("status = %q, want in_progress", a.Status)
	}
	if a.BedID != nil {
		t.Error("expected no bed attached")
	}
	if a.AdmittedAt.IsZero() {
		t.Error("admitted_at not set")
	}
	if len(rec.successes) == 0 || rec.successes[0] != "admission.admit" {
		t.Errorf("audit = %v, want admission.admit", rec.successes)
	}
}

func TestAdmitWithBedOccupiesIt(t *testing.T) {
	svc, _, beds, _ := newTestService()
	bedID := beds.addBed()

	params := validParams()
	params.BedID = &bedID
	a, err := svc.Admit(context.Background(), params)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if a.BedID == nil || *a.BedID != bedID {
		t.Error("bed not attached to admission")
	}
	if beds.beds[bedID] != "occupied" {
		t.Errorf("bed status = %q, want occupied", beds.beds[bedID])
	}
}

func TestAdmitSecondOpenAdmissionConflicts(t *testing.T) {
	svc, _, _, rec := newTestService()

	params := validParams()
	if _, err := svc.Admit(context.Background(), params); err != nil {
		t.Fatalf("first Admit: %v", err)
	}
	_, err := svc.Admit(context.Background(), params)
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("second Admit: got %v, want conflict", err)
	}
	if len(rec.failures) == 0 || rec.failures[0] != "admission.admit" {
		t.Errorf("failure audit = %v, want admission.admit", rec.failures)
	}
}

func TestAdmitAfterDischargeAllowed(t *testing.T) {
	svc, _, _, _ := newTestService()

	params := validParams()
	first, err := svc.Admit(context.Background(), params)
	if err != nil {
		t.Fatalf("first Admit: %v", err)
	}
	if _, err := svc.Discharge(context.Background(), first.ID, StatusMedicalDischarge); err != nil {
		t.Fatalf("Discharge: %v", err)
	}
	if _, err := svc.Admit(context.Background(), params); err != nil {
		t.Fatalf("readmission after discharge: %v", err)
	}
}

func TestAdmitOccupiedBedConflicts(t *testing.T) {
	svc, repo, beds, _ := newTestService()
	bedID := beds.addBed()
	beds.beds[bedID] = "occupied"

	params := validParams()
	params.BedID = &bedID
	_, err := svc.Admit(context.Background(), params)
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("got %v, want conflict", err)
	}
	if len(repo.admissions) != 0 {
		t.Error("no admission should be created when the bed claim fails")
	}
}

func TestAdmitValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*AdmitParams)
	}{
		{"missing patient", func(p *AdmitParams) { p.PatientID = uuid.Nil }},
		{"missing clinician", func(p *AdmitParams) { p.ClinicianID = uuid.Nil }},
		{"unknown type", func(p *AdmitParams) { p.Type = "walk_in" }},
		{"missing diagnosis", func(p *AdmitParams) { p.Diagnosis = " " }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, _, rec := newTestService()
			params := validParams()
			tc.mutate(&params)
			_, err := svc.Admit(context.Background(), params)
			if !apperr.IsKind(err, apperr.KindValidation) {
				t.Errorf("got %v, want validation error", err)
			}
			if len(rec.failures) != 1 || rec.failures[0] != "admission.admit" {
				t.Errorf("failure audit = %v, want exactly one admission.admit entry", rec.failures)
			}
			if len(rec.successes) != 0 {
				t.Errorf("unexpected success audit %v for a rejected admission", rec.successes)
			}
		})
	}
}

func TestReassignBed(t *testing.T) {
	svc, _, beds, rec := newTestService()
	oldBed := beds.addBed()
	newBed := beds.addBed()

	params := validParams()
	params.BedID = &oldBed
	a, err := svc.Admit(context.Background(), params)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}

	got, err := svc.ReassignBed(context.Background(), a.ID, newBed)
	if err != nil {
		t.Fatalf("ReassignBed: %v", err)
	}
	if got.BedID == nil || *got.BedID != newBed {
		t.Error("admission not moved to the new bed")
	}
	if beds.beds[newBed] != "occupied" {
		t.Error("new bed should be occupied")
	}
	if beds.beds[oldBed] != "available" {
		t.Error("old bed should be released")
	}
	found := false
	for _, action := range rec.successes {
		if action == "admission.reassign_bed" {
			found = true
		}
	}
	if !found {
		t.Error("expected an admission.reassign_bed audit entry")
	}
}

func TestReassignBedToOccupiedLeavesOldAssignment(t *testing.T) {
	svc, repo, beds, _ := newTestService()
	oldBed := beds.addBed()
	takenBed := beds.addBed()
	beds.beds[takenBed] = "occupied"

	params := validParams()
	params.BedID = &oldBed
	a, err := svc.Admit(context.Background(), params)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}

	_, err = svc.ReassignBed(context.Background(), a.ID, takenBed)
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("got %v, want conflict", err)
	}
	if beds.beds[oldBed] != "occupied" {
		t.Error("old bed must stay occupied after a failed reassignment")
	}
	current := repo.admissions[a.ID]
	if current.BedID == nil || *current.BedID != oldBed {
		t.Error("admission must keep its original bed after a failed reassignment")
	}
}

func TestReassignBedSameBedIsNoOp(t *testing.T) {
	svc, _, beds, rec := newTestService()
	bedID := beds.addBed()

	params := validParams()
	params.BedID = &bedID
	a, err := svc.Admit(context.Background(), params)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	got, err := svc.ReassignBed(context.Background(), a.ID, bedID)
	if err != nil {
		t.Fatalf("ReassignBed to same bed: %v", err)
	}
	if got.BedID == nil || *got.BedID != bedID {
		t.Error("bed assignment changed on a no-op reassignment")
	}
	reassigns := 0
	for _, action := range rec.successes {
		if action == "admission.reassign_bed" {
			reassigns++
		}
	}
	if reassigns != 1 {
		t.Errorf("reassign audit entries = %d, want exactly 1 for the no-op call", reassigns)
	}
}

func TestReassignBedClosedAdmissionConflicts(t *testing.T) {
	svc, _, beds, _ := newTestService()
	bedID := beds.addBed()

	a, err := svc.Admit(context.Background(), validParams())
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if _, err := svc.Discharge(context.Background(), a.ID, StatusReferred); err != nil {
		t.Fatalf("Discharge: %v", err)
	}
	_, err = svc.ReassignBed(context.Background(), a.ID, bedID)
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Errorf("got %v, want conflict", err)
	}
}

func TestDischargeReleasesBedAndSetsTimestamp(t *testing.T) {
	svc, _, beds, rec := newTestService()
	bedID := beds.addBed()
	dischargeTime := time.Date(2025, 4, 2, 16, 30, 0, 0, time.UTC)

	params := validParams()
	params.BedID = &bedID
	a, err := svc.Admit(context.Background(), params)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}

	svc.clock = func() time.Time { return dischargeTime }
	got, err := svc.Discharge(context.Background(), a.ID, StatusMedicalDischarge)
	if err != nil {
		t.Fatalf("Discharge: %v", err)
	}
	if got.Status != StatusMedicalDischarge {
		t.Errorf("status = %q, want medical_discharge", got.Status)
	}
	if got.DischargedAt == nil || !got.DischargedAt.Equal(dischargeTime) {
		t.Errorf("discharged_at = %v, want %v", got.DischargedAt, dischargeTime)
	}
	if beds.beds[bedID] != "available" {
		t.Error("bed should be released on discharge")
	}
	found := false
	for _, action := range rec.successes {
		if action == "admission.discharge" {
			found = true
		}
	}
	if !found {
		t.Error("expected an admission.discharge audit entry")
	}
}

func TestDischargeTwiceConflictsAndKeepsTimestamp(t *testing.T) {
	svc, repo, _, _ := newTestService()
	firstTime := time.Date(2025, 4, 2, 16, 30, 0, 0, time.UTC)

	a, err := svc.Admit(context.Background(), validParams())
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}

	svc.clock = func() time.Time { return firstTime }
	if _, err := svc.Discharge(context.Background(), a.ID, StatusVoluntaryDischarge); err != nil {
		t.Fatalf("first Discharge: %v", err)
	}

	svc.clock = func() time.Time { return firstTime.Add(2 * time.Hour) }
	_, err = svc.Discharge(context.Background(), a.ID, StatusMedicalDischarge)
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("second Discharge: got %v, want conflict", err)
	}

	stored := repo.admissions[a.ID]
	if stored.Status != StatusVoluntaryDischarge {
		t.Errorf("status changed to %q on the failed second discharge", stored.Status)
	}
	if stored.DischargedAt == nil || !stored.DischargedAt.Equal(firstTime) {
		t.Errorf("discharged_at changed to %v", stored.DischargedAt)
	}
}

func TestDischargeWithoutBed(t *testing.T) {
	svc, _, _, _ := newTestService()

	a, err := svc.Admit(context.Background(), validParams())
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if _, err := svc.Discharge(context.Background(), a.ID, StatusDeceased); err != nil {
		t.Fatalf("Discharge without bed: %v", err)
	}
}

func TestDischargeInvalidOutcome(t *testing.T) {
	svc, _, _, rec := newTestService()

	a, err := svc.Admit(context.Background(), validParams())
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	_, err = svc.Discharge(context.Background(), a.ID, "in_progress")
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("got %v, want validation error", err)
	}
	if len(rec.failures) != 1 || rec.failures[0] != "admission.discharge" {
		t.Errorf("failure audit = %v, want exactly one admission.discharge entry", rec.failures)
	}
}

func TestDischargeUnknownAdmission(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Discharge(context.Background(), uuid.New(), StatusReferred)
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("got %v, want not found", err)
	}
}
