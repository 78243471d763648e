package scheduling

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"08:00", "08:00", false},
		{"23:59", "23:59", false},
		{"00:00", "00:00", false},
		{"09:30:00", "09:30", false},
		{" 14:00 ", "14:00", false},
		{"8:00", "", true},
		{"24:00", "", true},
		{"12:60", "", true},
		{"noon", "", true},
		{"", "", true},
		{"12:00:00:00", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, err := ParseClock(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %s", tt.in, c)
				}
				if !errors.Is(err, ErrInvalidClock) {
					t.Errorf("expected ErrInvalidClock, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c.String() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, c)
			}
		})
	}
}

func TestClock_Add(t *testing.T) {
	c := MustClock("08:30")
	if got := c.Add(90 * time.Minute).String(); got != "10:00" {
		t.Errorf("expected 10:00, got %s", got)
	}
}

func TestParseDate(t *testing.T) {
	d := mustDate(t, "2025-01-20")
	if d.Weekday() != time.Monday {
		t.Errorf("expected Monday, got %s", d.Weekday())
	}
	if _, err := ParseDate("20/01/2025"); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("expected ErrInvalidDate, got %v", err)
	}
}

func TestSameDate_IgnoresTimeAndZone(t *testing.T) {
	santiago := time.FixedZone("CLT", -3*3600)
	a := time.Date(2025, 1, 20, 23, 30, 0, 0, santiago)
	b := time.Date(2025, 1, 20, 1, 0, 0, 0, time.UTC)
	if !SameDate(a, b) {
		t.Error("expected same calendar date")
	}
	if FormatDate(a) != "2025-01-20" {
		t.Errorf("expected 2025-01-20, got %s", FormatDate(a))
	}
}

func TestValidateSlot(t *testing.T) {
	today := mustDate(t, "2025-01-15")
	rules := []Rule{
		{DoctorID: "d1", Weekday: time.Monday, Start: MustClock("08:00"), End: MustClock("12:00"), Active: true},
		{DoctorID: "d1", Weekday: time.Tuesday, Start: MustClock("14:00"), End: MustClock("16:00"), Active: false},
		{DoctorID: "d1", Weekday: time.Sunday, Start: MustClock("09:00"), End: MustClock("11:00"), Active: true},
	}

	tests := []struct {
		name    string
		date    string
		at      string
		kind    Kind
		wantErr string
	}{
		{"inside rule window", "2025-01-20", "09:00", KindAppointment, ""},
		{"last slot of window", "2025-01-20", "11:00", KindAppointment, ""},
		{"slot overruns window end", "2025-01-20", "11:30", KindAppointment, "outside"},
		{"outside rule window", "2025-01-20", "13:00", KindAppointment, "outside"},
		{"past date", "2025-01-14", "09:00", KindAppointment, "past"},
		{"today is allowed", "2025-01-15", "09:00", KindAppointment, ""},
		{"inactive rule falls back to default", "2025-01-21", "15:00", KindAppointment, ""},
		{"default gap at lunch", "2025-01-21", "13:00", KindAppointment, "outside"},
		{"sunday appointment", "2025-01-19", "09:00", KindAppointment, "closed"},
		{"sunday shift", "2025-01-19", "09:00", KindShift, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Slot{DoctorID: "d1", Date: mustDate(t, tt.date), Time: MustClock(tt.at)}
			err := ValidateSlot(today, s, rules, tt.kind, time.Hour)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidSlot) {
				t.Errorf("expected ErrInvalidSlot, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateSlot_PastDateIgnoresRules(t *testing.T) {
	today := mustDate(t, "2025-02-01")
	s := Slot{DoctorID: "d1", Date: mustDate(t, "2025-01-20"), Time: MustClock("09:00")}
	rules := []Rule{{DoctorID: "d1", Weekday: time.Monday, Start: MustClock("08:00"), End: MustClock("12:00"), Active: true}}
	err := ValidateSlot(today, s, rules, KindAppointment, time.Hour)
	if err == nil || !strings.Contains(err.Error(), "past") {
		t.Errorf("expected past-date error, got %v", err)
	}
}

func TestDefaultSlate_MatchesDefaultWindows(t *testing.T) {
	var expanded []string
	for _, w := range DefaultWindows {
		for c := w.Start; w.Fits(c, time.Hour); c = c.Add(time.Hour) {
			expanded = append(expanded, c.String())
		}
	}
	var slate []string
	for _, c := range DefaultSlate() {
		slate = append(slate, c.String())
	}
	if strings.Join(expanded, ",") != strings.Join(slate, ",") {
		t.Errorf("expected %v, got %v", slate, expanded)
	}
}
