// Package records provides patient record lookup, identity verification, and
// registration against the clinic patient dataset.
package records

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/CareLine/internal/dataset"
	"github.com/BTreeMap/CareLine/internal/models"
	"github.com/BTreeMap/CareLine/internal/phi"
	"github.com/BTreeMap/CareLine/internal/validation"
)

// Store holds the in-memory patient collection. Creation is guarded by a
// mutex so concurrent sessions cannot register duplicate patients.
type Store struct {
	mu       sync.Mutex
	patients []*models.Patient
	loader   *dataset.Loader
}

// NewStore loads patients from the dataset directory.
func NewStore(loader *dataset.Loader) (*Store, error) {
	patients, err := loader.LoadPatients()
	if err != nil {
		return nil, fmt.Errorf("failed to load patients: %w", err)
	}
	return &Store{patients: patients, loader: loader}, nil
}

// NewStoreWithPatients creates a store over the given records without a
// backing file. Used by tests and ephemeral deployments.
func NewStoreWithPatients(patients []*models.Patient) *Store {
	return &Store{patients: patients}
}

// GetPatientByID returns the patient record for an id.
func (s *Store) GetPatientByID(patientID string) (*models.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.findByID(patientID); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", models.ErrPatientNotFound, phi.MaskValue(patientID))
}

// Authenticate returns the patient matching the normalized name and date of
// birth, or false when no record matches. Name matching trims and lowercases;
// DOB matching compares calendar dates regardless of input format.
func (s *Store) Authenticate(name, dob string) (*models.Patient, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked(name, dob)
}

func (s *Store) lookupLocked(name, dob string) (*models.Patient, bool) {
	normName := normalizeName(name)
	normDOB := validation.NormalizeDate(dob)
	for _, p := range s.patients {
		if normalizeName(p.Name) == normName && validation.NormalizeDate(p.DOB) == normDOB {
			slog.Info("records.Authenticate: patient match", "patientID", p.ID)
			return p, true
		}
	}
	slog.Warn("records.Authenticate: no match", "name", phi.MaskValue(name), "dob", phi.MaskValue(dob))
	return nil, false
}

// CheckDuplicate reports whether a patient with the same normalized name and
// DOB already exists.
func (s *Store) CheckDuplicate(name, dob string) bool {
	_, ok := s.Authenticate(name, dob)
	return ok
}

// LabResults returns lab results for the patient.
func (s *Store) LabResults(patientID string) ([]models.LabResult, error) {
	p, err := s.GetPatientByID(patientID)
	if err != nil {
		return nil, err
	}
	return p.LabResults, nil
}

// Medications returns the medication list for the patient.
func (s *Store) Medications(patientID string) ([]models.Medication, error) {
	p, err := s.GetPatientByID(patientID)
	if err != nil {
		return nil, err
	}
	return p.Medications, nil
}

// UpcomingAppointments returns future, non-canceled appointments sorted by
// start time.
func (s *Store) UpcomingAppointments(patientID string, now time.Time) ([]*models.Appointment, error) {
	p, err := s.GetPatientByID(patientID)
	if err != nil {
		return nil, err
	}
	var upcoming []*models.Appointment
	for _, appt := range p.Appointments {
		if appt.Status == models.AppointmentCanceled {
			continue
		}
		start, err := time.Parse(time.RFC3339, appt.Datetime)
		if err != nil {
			start, err = time.Parse("2006-01-02T15:04:05", appt.Datetime)
		}
		if err != nil || start.Before(now) {
			continue
		}
		upcoming = append(upcoming, appt)
	}
	sort.Slice(upcoming, func(i, j int) bool { return upcoming[i].Datetime < upcoming[j].Datetime })
	return upcoming, nil
}

// AttachAppointment records a booked appointment on the patient.
func (s *Store) AttachAppointment(patientID string, appt *models.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.findByID(patientID)
	if p == nil {
		return fmt.Errorf("%w: %s", models.ErrPatientNotFound, phi.MaskValue(patientID))
	}
	p.Appointments = append(p.Appointments, appt)
	return nil
}

// CreatePatient validates inputs, rejects duplicates, assigns the next
// sequential id (P-1001 onward), and persists the updated collection.
func (s *Store) CreatePatient(name, dob, phone, email string) (*models.Patient, error) {
	cleanName, err := validation.ValidateName(name)
	if err != nil {
		return nil, err
	}
	normPhone, err := validation.ValidatePhone(phone)
	if err != nil {
		return nil, err
	}
	normEmail, err := validation.ValidateEmail(email)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.lookupLocked(cleanName, dob); exists {
		slog.Warn("records.CreatePatient: duplicate registration attempt", "name", phi.MaskValue(cleanName))
		return nil, models.ErrDuplicatePatient
	}

	patient := &models.Patient{
		ID:           s.nextPatientIDLocked(),
		Name:         cleanName,
		DOB:          dob,
		Contact:      models.Contact{Phone: normPhone, Email: normEmail},
		Appointments: []*models.Appointment{},
		Medications:  []models.Medication{},
		LabResults:   []models.LabResult{},
	}
	s.patients = append(s.patients, patient)

	if s.loader != nil {
		if err := s.loader.SavePatients(s.patients); err != nil {
			// Keep the in-memory record; persistence failure must not lose
			// the registration mid-call.
			slog.Error("records.CreatePatient: persist failed", "error", err, "patientID", patient.ID)
		}
	}

	slog.Info("records.CreatePatient: created", "patientID", patient.ID)
	return patient, nil
}

// nextPatientIDLocked generates the next sequential id, starting at P-1001.
func (s *Store) nextPatientIDLocked() string {
	maxID := 1000
	for _, p := range s.patients {
		if !strings.HasPrefix(p.ID, "P-") {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(p.ID, "P-")); err == nil && n > maxID {
			maxID = n
		}
	}
	return fmt.Sprintf("P-%d", maxID+1)
}

func (s *Store) findByID(patientID string) *models.Patient {
	for _, p := range s.patients {
		if p.ID == patientID {
			return p
		}
	}
	return nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
