package scheduling

import (
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/CareLine/internal/models"
)

func testSchedule() *models.Schedule {
	return &models.Schedule{
		Doctors: []*models.Doctor{
			{
				ID:   "D-200",
				Name: "Dr. Maya Singh",
				Availability: []*models.Slot{
					{SlotID: "S-200-2", Start: "2026-09-08T14:00:00Z", Location: "Main Clinic, Suite 210", Status: models.SlotAvailable},
					{SlotID: "S-200-1", Start: "2026-09-07T09:30:00Z", Location: "Main Clinic, Suite 210", Status: models.SlotAvailable},
					{SlotID: "S-200-3", Start: "2026-09-09T11:00:00Z", Location: "Main Clinic, Suite 210", Status: models.SlotBooked},
				},
			},
			{
				ID:   "D-210",
				Name: "Dr. Ethan Cole",
				Availability: []*models.Slot{
					{SlotID: "S-210-1", Start: "2026-09-10T10:00:00Z", Status: models.SlotAvailable},
				},
			},
		},
	}
}

func TestFindAvailableSlots(t *testing.T) {
	s := NewStoreWithSchedule(testSchedule())

	slots, err := s.FindAvailableSlots("Dr. Maya Singh", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Booked slots are excluded and results sort by start time.
	if len(slots) != 2 {
		t.Fatalf("expected 2 available slots, got %d", len(slots))
	}
	if slots[0].SlotID != "S-200-1" || slots[1].SlotID != "S-200-2" {
		t.Errorf("wrong order: %s, %s", slots[0].SlotID, slots[1].SlotID)
	}
	// Returned slots are annotated with the doctor.
	if slots[0].Doctor != "Dr. Maya Singh" || slots[0].DoctorID != "D-200" {
		t.Errorf("slot not annotated: %+v", slots[0])
	}

	// Lookup works by doctor id as well.
	byID, err := s.FindAvailableSlots("D-210", nil, nil)
	if err != nil || len(byID) != 1 {
		t.Errorf("lookup by id failed: %v / %d slots", err, len(byID))
	}

	_, err = s.FindAvailableSlots("Dr. Nobody", nil, nil)
	if !errors.Is(err, models.ErrDoctorNotFound) {
		t.Errorf("expected ErrDoctorNotFound, got %v", err)
	}
}

func TestFindAvailableSlotsWindow(t *testing.T) {
	s := NewStoreWithSchedule(testSchedule())
	from := time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 9, 8, 23, 59, 0, 0, time.UTC)

	slots, err := s.FindAvailableSlots("Dr. Maya Singh", &from, &to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 1 || slots[0].SlotID != "S-200-2" {
		t.Errorf("expected only the in-window slot, got %+v", slots)
	}
}

func TestBookAppointment(t *testing.T) {
	s := NewStoreWithSchedule(testSchedule())

	appt, err := s.BookAppointment("P-1001", "S-200-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.Status != models.AppointmentScheduled {
		t.Errorf("expected scheduled status, got %q", appt.Status)
	}
	if appt.Doctor != "Dr. Maya Singh" || appt.PatientID != "P-1001" {
		t.Errorf("appointment missing details: %+v", appt)
	}
	if appt.Datetime != "2026-09-07T09:30:00Z" {
		t.Errorf("appointment datetime mismatch: %q", appt.Datetime)
	}

	// The slot is now booked and unavailable.
	slots, _ := s.FindAvailableSlots("Dr. Maya Singh", nil, nil)
	for _, slot := range slots {
		if slot.SlotID == "S-200-1" {
			t.Error("booked slot still listed as available")
		}
	}

	// Double booking fails.
	if _, err := s.BookAppointment("P-1002", "S-200-1"); !errors.Is(err, models.ErrSlotBooked) {
		t.Errorf("expected ErrSlotBooked, got %v", err)
	}
	// Unknown slot fails.
	if _, err := s.BookAppointment("P-1002", "S-999"); !errors.Is(err, models.ErrSlotNotFound) {
		t.Errorf("expected ErrSlotNotFound, got %v", err)
	}

	// The appointment is retrievable by id.
	got, err := s.GetAppointment(appt.AppointmentID)
	if err != nil || got.SlotID != "S-200-1" {
		t.Errorf("appointment not retrievable: %v", err)
	}
}

func TestCancelAppointment(t *testing.T) {
	s := NewStoreWithSchedule(testSchedule())
	appt, err := s.BookAppointment("P-1001", "S-200-1")
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}

	canceled, err := s.CancelAppointment(appt.AppointmentID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if canceled.Status != models.AppointmentCanceled {
		t.Errorf("expected canceled status, got %q", canceled.Status)
	}

	// The slot is released and bookable again.
	if _, err := s.BookAppointment("P-1002", "S-200-1"); err != nil {
		t.Errorf("released slot not bookable: %v", err)
	}

	if _, err := s.CancelAppointment("A-nope"); !errors.Is(err, models.ErrAppointmentNotFound) {
		t.Errorf("expected ErrAppointmentNotFound, got %v", err)
	}
}

func TestRescheduleAppointment(t *testing.T) {
	s := NewStoreWithSchedule(testSchedule())
	appt, err := s.BookAppointment("P-1001", "S-200-1")
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}

	moved, err := s.RescheduleAppointment(appt.AppointmentID, "S-210-1")
	if err != nil {
		t.Fatalf("reschedule failed: %v", err)
	}
	if moved.SlotID != "S-210-1" || moved.Doctor != "Dr. Ethan Cole" {
		t.Errorf("appointment not moved: %+v", moved)
	}

	// The old slot is free again.
	slots, _ := s.FindAvailableSlots("Dr. Maya Singh", nil, nil)
	found := false
	for _, slot := range slots {
		if slot.SlotID == "S-200-1" {
			found = true
		}
	}
	if !found {
		t.Error("old slot not released after reschedule")
	}
}

func TestRescheduleAppointmentAtomicOnFailure(t *testing.T) {
	s := NewStoreWithSchedule(testSchedule())
	appt, err := s.BookAppointment("P-1001", "S-200-1")
	if err != nil {
		t.Fatalf("booking failed: %v", err)
	}

	// Moving to an already-booked slot fails and leaves the original booking
	// intact.
	if _, err := s.RescheduleAppointment(appt.AppointmentID, "S-200-3"); !errors.Is(err, models.ErrSlotBooked) {
		t.Fatalf("expected ErrSlotBooked, got %v", err)
	}
	got, err := s.GetAppointment(appt.AppointmentID)
	if err != nil {
		t.Fatalf("appointment lost: %v", err)
	}
	if got.SlotID != "S-200-1" || got.Status != models.AppointmentScheduled {
		t.Errorf("original booking changed: %+v", got)
	}

	// Moving to an unknown slot also leaves it intact.
	if _, err := s.RescheduleAppointment(appt.AppointmentID, "S-999"); !errors.Is(err, models.ErrSlotNotFound) {
		t.Errorf("expected ErrSlotNotFound, got %v", err)
	}
	if _, err := s.RescheduleAppointment("A-nope", "S-210-1"); !errors.Is(err, models.ErrAppointmentNotFound) {
		t.Errorf("expected ErrAppointmentNotFound, got %v", err)
	}
}

func TestRestoreAppointment(t *testing.T) {
	s := NewStoreWithSchedule(testSchedule())
	s.RestoreAppointment(&models.Appointment{AppointmentID: "A-seed", SlotID: "S-200-3", Status: models.AppointmentScheduled})
	got, err := s.GetAppointment("A-seed")
	if err != nil || got.SlotID != "S-200-3" {
		t.Errorf("restored appointment not retrievable: %v", err)
	}
}
