// Package scheduling manages appointment availability, booking, rescheduling,
// and cancellation over the clinic schedule dataset.
package scheduling

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/CareLine/internal/dataset"
	"github.com/BTreeMap/CareLine/internal/models"
	"github.com/BTreeMap/CareLine/internal/util"
)

// Store holds the in-memory schedule and appointment index. Booking and
// cancellation are guarded by a mutex so concurrent sessions cannot double
// book a slot.
type Store struct {
	mu           sync.Mutex
	schedule     *models.Schedule
	appointments map[string]*models.Appointment
}

// NewStore loads the schedule from the dataset directory.
func NewStore(loader *dataset.Loader) (*Store, error) {
	schedule, err := loader.LoadSchedule()
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	return NewStoreWithSchedule(schedule), nil
}

// NewStoreWithSchedule creates a store over the given schedule. Used by tests.
func NewStoreWithSchedule(schedule *models.Schedule) *Store {
	return &Store{
		schedule:     schedule,
		appointments: make(map[string]*models.Appointment),
	}
}

// FindAvailableSlots returns available slots for the doctor (matched by id or
// name), optionally within [from, to], sorted by start time. Each returned
// slot is a copy annotated with the doctor name and id.
func (s *Store) FindAvailableSlots(doctor string, from, to *time.Time) ([]*models.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.findDoctorLocked(doctor)
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrDoctorNotFound, doctor)
	}

	var available []*models.Slot
	for _, slot := range entry.Availability {
		if slot.Status != models.SlotAvailable {
			continue
		}
		if from != nil || to != nil {
			start, err := parseSlotTime(slot.Start)
			if err != nil {
				continue
			}
			if from != nil && start.Before(*from) {
				continue
			}
			if to != nil && start.After(*to) {
				continue
			}
		}
		copied := *slot
		copied.Doctor = entry.Name
		copied.DoctorID = entry.ID
		available = append(available, &copied)
	}

	sort.Slice(available, func(i, j int) bool { return available[i].Start < available[j].Start })
	slog.Debug("scheduling.FindAvailableSlots", "doctor", entry.Name, "count", len(available))
	return available, nil
}

// BookAppointment books an available slot for the patient. Booking an
// already-booked slot returns ErrSlotBooked with the slot unchanged.
func (s *Store) BookAppointment(patientID, slotID string) (*models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doctor, slot := s.findSlotLocked(slotID)
	if slot == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrSlotNotFound, slotID)
	}
	if slot.Status == models.SlotBooked {
		return nil, fmt.Errorf("%w: %s", models.ErrSlotBooked, slotID)
	}

	appointmentID := slot.AppointmentID
	if appointmentID == "" {
		appointmentID = util.GenerateAppointmentID()
	}
	slot.Status = models.SlotBooked
	slot.PatientID = patientID
	slot.AppointmentID = appointmentID

	appt := &models.Appointment{
		AppointmentID: appointmentID,
		SlotID:        slot.SlotID,
		DoctorID:      doctor.ID,
		Doctor:        doctor.Name,
		PatientID:     patientID,
		Datetime:      slot.Start,
		Location:      slot.Location,
		Status:        models.AppointmentScheduled,
	}
	s.appointments[appointmentID] = appt

	slog.Info("scheduling.BookAppointment: booked", "appointmentID", appointmentID, "slotID", slot.SlotID, "doctor", doctor.Name)
	return appt, nil
}

// RescheduleAppointment moves an appointment to a new available slot. The old
// slot is freed and the new slot booked atomically under the store lock; on
// any error neither slot changes.
func (s *Store) RescheduleAppointment(appointmentID, newSlotID string) (*models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appointments[appointmentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrAppointmentNotFound, appointmentID)
	}
	newDoctor, newSlot := s.findSlotLocked(newSlotID)
	if newSlot == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrSlotNotFound, newSlotID)
	}
	if newSlot.Status == models.SlotBooked {
		return nil, fmt.Errorf("%w: %s", models.ErrSlotBooked, newSlotID)
	}

	if _, oldSlot := s.findSlotLocked(appt.SlotID); oldSlot != nil {
		oldSlot.Status = models.SlotAvailable
		oldSlot.PatientID = ""
		oldSlot.AppointmentID = ""
	}

	appt.SlotID = newSlot.SlotID
	appt.DoctorID = newDoctor.ID
	appt.Doctor = newDoctor.Name
	appt.Datetime = newSlot.Start
	appt.Location = newSlot.Location
	appt.Status = models.AppointmentScheduled

	newSlot.Status = models.SlotBooked
	newSlot.PatientID = appt.PatientID
	newSlot.AppointmentID = appointmentID

	slog.Info("scheduling.RescheduleAppointment: moved", "appointmentID", appointmentID, "newSlotID", newSlotID)
	return appt, nil
}

// CancelAppointment cancels the appointment and frees its slot.
func (s *Store) CancelAppointment(appointmentID string) (*models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appointments[appointmentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrAppointmentNotFound, appointmentID)
	}

	if _, slot := s.findSlotLocked(appt.SlotID); slot != nil {
		slot.Status = models.SlotAvailable
		slot.PatientID = ""
		slot.AppointmentID = ""
	}
	appt.Status = models.AppointmentCanceled

	slog.Info("scheduling.CancelAppointment: canceled", "appointmentID", appointmentID)
	return appt, nil
}

// GetAppointment returns a booked or canceled appointment by id.
func (s *Store) GetAppointment(appointmentID string) (*models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if appt, ok := s.appointments[appointmentID]; ok {
		return appt, nil
	}
	return nil, fmt.Errorf("%w: %s", models.ErrAppointmentNotFound, appointmentID)
}

// RestoreAppointment seeds the appointment index, for datasets that ship
// pre-booked slots.
func (s *Store) RestoreAppointment(appt *models.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments[appt.AppointmentID] = appt
}

func (s *Store) findDoctorLocked(ref string) *models.Doctor {
	for _, d := range s.schedule.Doctors {
		if d.ID == ref || d.Name == ref {
			return d
		}
	}
	return nil
}

func (s *Store) findSlotLocked(slotID string) (*models.Doctor, *models.Slot) {
	if slotID == "" {
		return nil, nil
	}
	for _, d := range s.schedule.Doctors {
		for _, slot := range d.Availability {
			if slot.SlotID == slotID {
				return d, slot
			}
		}
	}
	return nil, nil
}

func parseSlotTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", value)
}
