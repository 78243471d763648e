package scheduling

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrCellTaken = errors.New("cell already assigned")

const lastMinute = Clock(24*60 - 1)

// Cell addresses one hour of the weekly shift grid.
type Cell struct {
	Weekday time.Weekday
	Hour    Clock
}

func (c Cell) String() string {
	return fmt.Sprintf("%s %s", c.Weekday, c.Hour)
}

// ShiftPlan is a shift to create from a grid assignment.
type ShiftPlan struct {
	DoctorID string
	Date     time.Time
	Start    Clock
	End      Clock
}

// WeekGrid maps grid cells to doctors for one week. It is not safe for
// concurrent use.
type WeekGrid struct {
	monday time.Time
	length time.Duration
	cells  map[Cell]string
}

// NewWeekGrid starts a grid for the week containing day. Weeks run Monday to
// Sunday. A non-positive length means one hour per cell.
func NewWeekGrid(day time.Time, length time.Duration) *WeekGrid {
	if length <= 0 {
		length = time.Hour
	}
	return &WeekGrid{
		monday: WeekStart(day),
		length: length,
		cells:  make(map[Cell]string),
	}
}

// WeekStart returns the Monday of the week containing day.
func WeekStart(day time.Time) time.Time {
	d := DateOf(day)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

func (g *WeekGrid) Monday() time.Time { return g.monday }

// DateOf returns the calendar date of weekday within the grid's week.
func (g *WeekGrid) DateOf(day time.Weekday) time.Time {
	return g.monday.AddDate(0, 0, (int(day)+6)%7)
}

// Assign places doctorID in cell. A cell holds one doctor; assigning it twice
// fails with ErrCellTaken, even for the same doctor.
func (g *WeekGrid) Assign(cell Cell, doctorID string) error {
	if doctorID == "" {
		return errors.New("doctor id is required")
	}
	if cell.Weekday < time.Sunday || cell.Weekday > time.Saturday {
		return fmt.Errorf("invalid weekday %d", cell.Weekday)
	}
	// Shifts end by 23:59; "24:00" is not a valid clock value.
	if cell.Hour < 0 || cell.Hour.Add(g.length) > lastMinute {
		return fmt.Errorf("invalid hour %s", cell.Hour)
	}
	if owner, ok := g.cells[cell]; ok {
		return fmt.Errorf("%w: %s is held by %s", ErrCellTaken, cell, owner)
	}
	g.cells[cell] = doctorID
	return nil
}

func (g *WeekGrid) Remove(cell Cell) {
	delete(g.cells, cell)
}

func (g *WeekGrid) Len() int { return len(g.cells) }

// Plans returns one shift per assigned cell, ordered by date, hour and doctor.
func (g *WeekGrid) Plans() []ShiftPlan {
	out := make([]ShiftPlan, 0, len(g.cells))
	for cell, doctor := range g.cells {
		out = append(out, ShiftPlan{
			DoctorID: doctor,
			Date:     g.DateOf(cell.Weekday),
			Start:    cell.Hour,
			End:      cell.Hour.Add(g.length),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].DoctorID < out[j].DoctorID
	})
	return out
}
