// Package dataset loads the clinic data files (patients, schedule, FAQ).
//
// Data lives as JSON documents in a configurable directory. New patients are
// written back on creation; schedule mutations stay in memory.
package dataset

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BTreeMap/CareLine/internal/models"
)

// File names within the data directory.
const (
	PatientsFile = "patients.json"
	ScheduleFile = "schedule.json"
	FAQFile      = "faq.json"
)

// Loader reads and writes the clinic datasets.
type Loader struct {
	dir string
}

// NewLoader creates a loader rooted at the given data directory.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

type patientsDoc struct {
	Patients []*models.Patient `json:"patients"`
}

type faqDoc struct {
	FAQ []models.FAQEntry `json:"faq"`
}

// LoadPatients reads the patient records.
func (l *Loader) LoadPatients() ([]*models.Patient, error) {
	var doc patientsDoc
	if err := l.readJSON(PatientsFile, &doc); err != nil {
		return nil, err
	}
	slog.Debug("dataset.LoadPatients: loaded", "count", len(doc.Patients))
	return doc.Patients, nil
}

// SavePatients writes the full patient collection back to the data file.
func (l *Loader) SavePatients(patients []*models.Patient) error {
	path := filepath.Join(l.dir, PatientsFile)
	data, err := json.MarshalIndent(patientsDoc{Patients: patients}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal patients: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to save patients: %w", err)
	}
	slog.Debug("dataset.SavePatients: persisted", "count", len(patients), "path", path)
	return nil
}

// LoadSchedule reads the doctor schedule.
func (l *Loader) LoadSchedule() (*models.Schedule, error) {
	var schedule models.Schedule
	if err := l.readJSON(ScheduleFile, &schedule); err != nil {
		return nil, err
	}
	slog.Debug("dataset.LoadSchedule: loaded", "doctors", len(schedule.Doctors))
	return &schedule, nil
}

// LoadFAQ reads the FAQ entries.
func (l *Loader) LoadFAQ() ([]models.FAQEntry, error) {
	var doc faqDoc
	if err := l.readJSON(FAQFile, &doc); err != nil {
		return nil, err
	}
	slog.Debug("dataset.LoadFAQ: loaded", "count", len(doc.FAQ))
	return doc.FAQ, nil
}

func (l *Loader) readJSON(filename string, out any) error {
	path := filepath.Join(l.dir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("data file not found: %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	return nil
}
