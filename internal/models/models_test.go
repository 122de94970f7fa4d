package models

import (
	"errors"
	"testing"
)

func validAppointment() Appointment {
	price := 8500
	return Appointment{
		CustomerWhatsApp: "919876543210",
		Name:             "Asha",
		Brand:            "Apple",
		Model:            "iPhone 12",
		Issue:            "Screen",
		Estimate:         &price,
		Date:             "2025-10-26",
		Time:             "15:30",
		Status:           AppointmentStatusPending,
	}
}

func TestAppointmentValidate(t *testing.T) {
	valid := validAppointment()
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid appointment rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Appointment)
		want   error
	}{
		{"empty customer", func(a *Appointment) { a.CustomerWhatsApp = "" }, ErrEmptyCustomer},
		{"empty name", func(a *Appointment) { a.Name = "" }, ErrEmptyName},
		{"bad date", func(a *Appointment) { a.Date = "26-10-2025" }, ErrInvalidDate},
		{"impossible date", func(a *Appointment) { a.Date = "2025-02-30" }, ErrInvalidDate},
		{"bad time", func(a *Appointment) { a.Time = "3pm" }, ErrInvalidTime},
		{"bad status", func(a *Appointment) { a.Status = "maybe" }, ErrInvalidStatus},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := validAppointment()
			tc.mutate(&a)
			if err := a.Validate(); !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDateTimeValidators(t *testing.T) {
	if !IsValidDateString("2025-10-26") {
		t.Error("2025-10-26 should be valid")
	}
	for _, bad := range []string{"2025-13-01", "2025-1-1", "tomorrow", ""} {
		if IsValidDateString(bad) {
			t.Errorf("%q should be invalid", bad)
		}
	}
	if !IsValidTimeString("15:30") {
		t.Error("15:30 should be valid")
	}
	for _, bad := range []string{"25:00", "9:30", "late", ""} {
		if IsValidTimeString(bad) {
			t.Errorf("%q should be invalid", bad)
		}
	}
}

func TestSessionDataAccessors(t *testing.T) {
	s := &Session{UserID: "u1", Flow: FlowEstimate, Step: StepBrand}
	if got := s.GetData(DataBrand); got != "" {
		t.Errorf("empty session returned %q", got)
	}
	s.SetData(DataBrand, "Apple")
	if got := s.GetData(DataBrand); got != "Apple" {
		t.Errorf("got %q, want Apple", got)
	}
}

func TestIncomingIsImage(t *testing.T) {
	text := Incoming{Text: "hi"}
	if text.IsImage() {
		t.Error("text message reported as image")
	}
	photo := Incoming{Image: []byte{1}}
	if !photo.IsImage() {
		t.Error("image message not detected")
	}
}
