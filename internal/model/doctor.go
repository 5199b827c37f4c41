package model

import (
	"fmt"
	"strings"
)

// WorkingWindow is a half-open interval [Start, End) of a doctor's day.
type WorkingWindow struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

func (w WorkingWindow) Validate() error {
	if !w.Start.Valid() || !w.End.Valid() {
		return fmt.Errorf("window %s-%s out of range", w.Start, w.End)
	}
	if w.End <= w.Start {
		return fmt.Errorf("window end %s must follow start %s", w.End, w.Start)
	}
	return nil
}

type Doctor struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Specialization string          `json:"specialization"`
	Department     string          `json:"department"`
	WorkingHours   []WorkingWindow `json:"working_hours"`
}

// Initial is the first letter of the doctor's last name, used as token prefix.
func (d *Doctor) Initial() string {
	fields := strings.Fields(d.Name)
	if len(fields) == 0 {
		return ""
	}
	last := []rune(fields[len(fields)-1])
	return strings.ToUpper(string(last[0]))
}

// Validate checks every window and that no two windows overlap.
func (d *Doctor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("doctor id is required")
	}
	for i, w := range d.WorkingHours {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("doctor %s: %w", d.ID, err)
		}
		for _, o := range d.WorkingHours[i+1:] {
			if w.Start < o.End && o.Start < w.End {
				return fmt.Errorf("doctor %s: windows %s-%s and %s-%s overlap", d.ID, w.Start, w.End, o.Start, o.End)
			}
		}
	}
	return nil
}
