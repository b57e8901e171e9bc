package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/db"
)

// -- Mock Repository --

type mockRepo struct {
	persons  map[uuid.UUID]*Person
	patients map[uuid.UUID]*Patient
	seq      map[int]int
	seqErr   error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		persons:  make(map[uuid.UUID]*Person),
		patients: make(map[uuid.UUID]*Patient),
		seq:      make(map[int]int),
	}
}

func (m *mockRepo) CreatePerson(_ context.Context, p *Person) error {
	p.ID = uuid.New()
	cp := *p
	m.persons[p.ID] = &cp
	return nil
}

func (m *mockRepo) UpdatePerson(_ context.Context, p *Person) error {
	if _, ok := m.persons[p.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *p
	m.persons[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetPerson(_ context.Context, id uuid.UUID) (*Person, error) {
	p, ok := m.persons[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) FindPersonsByDocument(_ context.Context, docType, documentNumber string) ([]*Person, error) {
	var out []*Person
	for _, p := range m.persons {
		if p.DocumentType == docType && p.DocumentNumber == documentNumber {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) CreatePatient(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockRepo) UpdatePatient(_ context.Context, p *Patient) error {
	if _, ok := m.patients[p.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockRepo) record(p *Patient) (*PatientRecord, error) {
	person, ok := m.persons[p.PersonID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &PatientRecord{Patient: *p, Person: *person}, nil
}

func (m *mockRepo) GetPatient(_ context.Context, id uuid.UUID) (*PatientRecord, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return m.record(p)
}

func (m *mockRepo) GetPatientByPerson(_ context.Context, personID uuid.UUID) (*PatientRecord, error) {
	for _, p := range m.patients {
		if p.PersonID == personID {
			return m.record(p)
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) ListPatients(_ context.Context, filter PatientFilter) ([]*PatientRecord, error) {
	var out []*PatientRecord
	for _, p := range m.patients {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.BloodGroup != "" && (p.BloodGroup == nil || *p.BloodGroup != filter.BloodGroup) {
			continue
		}
		rec, err := m.record(p)
		if err != nil {
			return nil, err
		}
		if filter.DocumentNumber != "" && rec.Person.DocumentNumber != filter.DocumentNumber {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *mockRepo) NextRecordNumber(_ context.Context, year int) (int, error) {
	if m.seqErr != nil {
		return 0, m.seqErr
	}
	m.seq[year]++
	return m.seq[year], nil
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

func (m *mockRecorder) has(list []string, action string) bool {
	for _, a := range list {
		if a == action {
			return true
		}
	}
	return false
}

func newTestService() (*Service, *mockRepo, *mockRecorder) {
	repo := newMockRepo()
	rec := &mockRecorder{}
	return NewService(repo, db.PassthroughTxRunner(), rec), repo, rec
}

func strptr(s string) *string { return &s }

func validPerson() *Person {
	birth := time.Date(1984, 6, 12, 0, 0, 0, 0, time.UTC)
	phone := "+1-555-0142"
	return &Person{
		DocumentType:   "national_id",
		DocumentNumber: "48291077",
		GivenName:      "Elena",
		FamilyName:     "Vargas",
		BirthDate:      &birth,
		Sex:            "female",
		Phone:          &phone,
	}
}

func TestRegisterPatientAssignsRecordNumber(t *testing.T) {
	svc, _, rec := newTestService()
	svc.clock = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }

	got, err := svc.RegisterPatient(context.Background(), validPerson(), &Patient{BloodGroup: strptr("O"), RhFactor: strptr("+")})
	if err != nil {
		t.Fatalf("RegisterPatient: %v", err)
	}
	if got.RecordNumber != "HC-2025-000001" {
		t.Errorf("record number = %q, want HC-2025-000001", got.RecordNumber)
	}
	if got.Patient.Status != PatientActive {
		t.Errorf("status = %q, want active", got.Patient.Status)
	}
	if got.Patient.PersonID != got.Person.ID {
		t.Error("patient not linked to created person")
	}
	if !rec.has(rec.successes, "patient.create") {
		t.Error("expected a patient.create audit entry")
	}
}

func TestRegisterPatientSequencePerYear(t *testing.T) {
	svc, _, _ := newTestService()
	svc.clock = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }

	first, err := svc.RegisterPatient(context.Background(), validPerson(), &Patient{})
	if err != nil {
		t.Fatalf("first RegisterPatient: %v", err)
	}
	second := validPerson()
	second.DocumentNumber = "99110234"
	rec2, err := svc.RegisterPatient(context.Background(), second, &Patient{})
	if err != nil {
		t.Fatalf("second RegisterPatient: %v", err)
	}
	if first.RecordNumber == rec2.RecordNumber {
		t.Errorf("record numbers must be unique, both %q", first.RecordNumber)
	}
	if rec2.RecordNumber != "HC-2025-000002" {
		t.Errorf("second record number = %q, want HC-2025-000002", rec2.RecordNumber)
	}

	svc.clock = func() time.Time { return time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC) }
	third := validPerson()
	third.DocumentNumber = "55002391"
	rec3, err := svc.RegisterPatient(context.Background(), third, &Patient{})
	if err != nil {
		t.Fatalf("third RegisterPatient: %v", err)
	}
	if rec3.RecordNumber != "HC-2026-000001" {
		t.Errorf("sequence should restart each year, got %q", rec3.RecordNumber)
	}
}

func TestRegisterPatientDuplicateDocument(t *testing.T) {
	svc, _, rec := newTestService()

	if _, err := svc.RegisterPatient(context.Background(), validPerson(), &Patient{}); err != nil {
		t.Fatalf("first RegisterPatient: %v", err)
	}
	_, err := svc.RegisterPatient(context.Background(), validPerson(), &Patient{})
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("duplicate document: got %v, want conflict", err)
	}
	if !rec.has(rec.failures, "patient.create") {
		t.Error("expected a failure audit entry for the duplicate")
	}
}

func TestRegisterPatientSameNumberDifferentType(t *testing.T) {
	svc, _, _ := newTestService()

	if _, err := svc.RegisterPatient(context.Background(), validPerson(), &Patient{}); err != nil {
		t.Fatalf("first RegisterPatient: %v", err)
	}
	other := validPerson()
	other.DocumentType = "passport"
	if _, err := svc.RegisterPatient(context.Background(), other, &Patient{}); err != nil {
		t.Fatalf("same number under a different document type should register: %v", err)
	}
}

func TestRegisterPatientValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Person)
	}{
		{"missing document number", func(p *Person) { p.DocumentNumber = "" }},
		{"unknown document type", func(p *Person) { p.DocumentType = "driver_license" }},
		{"missing given name", func(p *Person) { p.GivenName = "  " }},
		{"missing family name", func(p *Person) { p.FamilyName = "" }},
		{"unknown sex code", func(p *Person) { p.Sex = "unknown" }},
		{"future birth date", func(p *Person) {
			future := time.Now().AddDate(1, 0, 0)
			p.BirthDate = &future
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, rec := newTestService()
			p := validPerson()
			tc.mutate(p)
			_, err := svc.RegisterPatient(context.Background(), p, &Patient{})
			if !apperr.IsKind(err, apperr.KindValidation) {
				t.Errorf("got %v, want validation error", err)
			}
			if len(rec.failures) != 1 || rec.failures[0] != "patient.create" {
				t.Errorf("failure audit = %v, want exactly one patient.create entry", rec.failures)
			}
		})
	}
}

func TestRegisterPatientRecordNumberFailureIsAudited(t *testing.T) {
	svc, repo, rec := newTestService()
	repo.seqErr = errors.New("sequence unavailable")

	_, err := svc.RegisterPatient(context.Background(), validPerson(), &Patient{})
	if err == nil {
		t.Fatal("expected an error when the record number cannot be allocated")
	}
	if len(rec.failures) != 1 || rec.failures[0] != "patient.create" {
		t.Errorf("failure audit = %v, want exactly one patient.create entry", rec.failures)
	}
	if len(repo.patients) != 0 {
		t.Error("no patient may exist after a failed registration")
	}
}

func TestUpdatePatientPreservesImmutableFields(t *testing.T) {
	svc, _, _ := newTestService()

	created, err := svc.RegisterPatient(context.Background(), validPerson(), &Patient{BloodGroup: strptr("A")})
	if err != nil {
		t.Fatalf("RegisterPatient: %v", err)
	}

	update := created.Patient
	update.RecordNumber = "HC-1999-000042"
	update.PersonID = uuid.New()
	update.BloodGroup = strptr("AB")
	if err := svc.UpdatePatient(context.Background(), &update); err != nil {
		t.Fatalf("UpdatePatient: %v", err)
	}

	got, err := svc.GetPatient(context.Background(), created.Patient.ID)
	if err != nil {
		t.Fatalf("GetPatient: %v", err)
	}
	if got.RecordNumber != created.RecordNumber {
		t.Errorf("record number changed to %q", got.RecordNumber)
	}
	if got.PersonID != created.Person.ID {
		t.Error("person link changed")
	}
	if got.BloodGroup == nil || *got.BloodGroup != "AB" {
		t.Errorf("blood group = %v, want AB", got.BloodGroup)
	}
}

func TestUpdatePatientNotFound(t *testing.T) {
	svc, _, _ := newTestService()

	err := svc.UpdatePatient(context.Background(), &Patient{ID: uuid.New()})
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("got %v, want not found", err)
	}
}

func TestDeactivatePatient(t *testing.T) {
	svc, _, rec := newTestService()

	created, err := svc.RegisterPatient(context.Background(), validPerson(), &Patient{})
	if err != nil {
		t.Fatalf("RegisterPatient: %v", err)
	}
	if err := svc.DeactivatePatient(context.Background(), created.Patient.ID); err != nil {
		t.Fatalf("DeactivatePatient: %v", err)
	}
	got, err := svc.GetPatient(context.Background(), created.Patient.ID)
	if err != nil {
		t.Fatalf("GetPatient: %v", err)
	}
	if got.Patient.Status != PatientInactive {
		t.Errorf("status = %q, want inactive", got.Patient.Status)
	}
	if !rec.has(rec.successes, "patient.deactivate") {
		t.Error("expected a patient.deactivate audit entry")
	}

	// Already inactive is a no-op, not an error, but still an audited call.
	before := len(rec.successes)
	if err := svc.DeactivatePatient(context.Background(), created.Patient.ID); err != nil {
		t.Fatalf("second DeactivatePatient: %v", err)
	}
	if len(rec.successes) != before+1 {
		t.Errorf("audit entries after repeat deactivation = %d, want %d", len(rec.successes), before+1)
	}
}

func TestGetPatientIsAudited(t *testing.T) {
	svc, _, rec := newTestService()

	created, err := svc.RegisterPatient(context.Background(), validPerson(), &Patient{})
	if err != nil {
		t.Fatalf("RegisterPatient: %v", err)
	}
	if _, err := svc.GetPatient(context.Background(), created.Patient.ID); err != nil {
		t.Fatalf("GetPatient: %v", err)
	}
	if !rec.has(rec.successes, "patient.read") {
		t.Error("expected a patient.read audit entry")
	}
}

func registerNamed(t *testing.T, svc *Service, given, family, doc string) *PatientRecord {
	t.Helper()
	p := validPerson()
	p.GivenName = given
	p.FamilyName = family
	p.DocumentNumber = doc
	rec, err := svc.RegisterPatient(context.Background(), p, &Patient{})
	if err != nil {
		t.Fatalf("RegisterPatient(%s %s): %v", given, family, err)
	}
	return rec
}

func TestFindPatientsByNameSubstring(t *testing.T) {
	svc, _, rec := newTestService()

	registerNamed(t, svc, "Elena", "Vargas", "10000001")
	registerNamed(t, svc, "Marco", "Vargas", "10000002")
	registerNamed(t, svc, "Lucia", "Moreno", "10000003")

	got, total, err := svc.FindPatients(context.Background(), PatientFilter{NameSubstring: "varg"}, 10, 0)
	if err != nil {
		t.Fatalf("FindPatients: %v", err)
	}
	if total != 2 || len(got) != 2 {
		t.Fatalf("got %d/%d matches, want 2/2", len(got), total)
	}
	for _, r := range got {
		if !strings.Contains(strings.ToLower(r.Person.FamilyName), "varg") {
			t.Errorf("unexpected match %s %s", r.Person.GivenName, r.Person.FamilyName)
		}
	}
	if !rec.has(rec.successes, "patient.search") {
		t.Error("expected a patient.search audit entry")
	}
}

func TestFindPatientsStableOrderAndPaging(t *testing.T) {
	svc, _, _ := newTestService()

	registerNamed(t, svc, "Marco", "Vargas", "10000002")
	registerNamed(t, svc, "Lucia", "Moreno", "10000003")
	registerNamed(t, svc, "Elena", "Vargas", "10000001")

	page1, total, err := svc.FindPatients(context.Background(), PatientFilter{}, 2, 0)
	if err != nil {
		t.Fatalf("FindPatients page 1: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	if len(page1) != 2 || page1[0].Person.FamilyName != "Moreno" || page1[1].Person.GivenName != "Elena" {
		t.Errorf("page 1 order wrong: %+v", names(page1))
	}

	page2, _, err := svc.FindPatients(context.Background(), PatientFilter{}, 2, 2)
	if err != nil {
		t.Fatalf("FindPatients page 2: %v", err)
	}
	if len(page2) != 1 || page2[0].Person.GivenName != "Marco" {
		t.Errorf("page 2 order wrong: %+v", names(page2))
	}
}

func names(recs []*PatientRecord) []string {
	var out []string
	for _, r := range recs {
		out = append(out, r.Person.GivenName+" "+r.Person.FamilyName)
	}
	return out
}

func TestFindPatientsByDocumentNumber(t *testing.T) {
	svc, _, _ := newTestService()

	registerNamed(t, svc, "Elena", "Vargas", "10000001")
	registerNamed(t, svc, "Lucia", "Moreno", "10000003")

	got, total, err := svc.FindPatients(context.Background(), PatientFilter{DocumentNumber: "10000003"}, 10, 0)
	if err != nil {
		t.Fatalf("FindPatients: %v", err)
	}
	if total != 1 || got[0].Person.FamilyName != "Moreno" {
		t.Fatalf("document lookup returned %+v", names(got))
	}
}

func TestUpdatePersonDuplicateDocument(t *testing.T) {
	svc, _, _ := newTestService()

	first, err := svc.RegisterPatient(context.Background(), validPerson(), &Patient{})
	if err != nil {
		t.Fatalf("first RegisterPatient: %v", err)
	}
	second := validPerson()
	second.DocumentNumber = "99110234"
	if _, err := svc.RegisterPatient(context.Background(), second, &Patient{}); err != nil {
		t.Fatalf("second RegisterPatient: %v", err)
	}

	// Moving the second person onto the first person's document must fail.
	second.DocumentNumber = first.Person.DocumentNumber
	err = svc.UpdatePerson(context.Background(), second)
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Errorf("got %v, want conflict", err)
	}

	// Updating a person without changing the document is fine.
	first.Person.Phone = nil
	if err := svc.UpdatePerson(context.Background(), &first.Person); err != nil {
		t.Errorf("self update: %v", err)
	}
}
