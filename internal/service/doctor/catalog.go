package doctor

import (
	"fmt"
	"strings"

	"github.com/jwalitptl/clinic-booking/internal/model"
)

// Catalog is the process-wide, read-only list of doctors.
type Catalog struct {
	doctors []model.Doctor
	byID    map[string]*model.Doctor
	byName  map[string]*model.Doctor
}

// NewCatalog validates the doctors and indexes them by id and name.
func NewCatalog(doctors []model.Doctor) (*Catalog, error) {
	c := &Catalog{
		doctors: make([]model.Doctor, len(doctors)),
		byID:    make(map[string]*model.Doctor, len(doctors)),
		byName:  make(map[string]*model.Doctor, len(doctors)),
	}
	copy(c.doctors, doctors)

	for i := range c.doctors {
		d := &c.doctors[i]
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate doctor id %q", d.ID)
		}
		c.byID[d.ID] = d
		c.byName[nameKey(d.Name)] = d
	}
	return c, nil
}

func nameKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func (c *Catalog) Get(id string) (*model.Doctor, bool) {
	d, ok := c.byID[id]
	return d, ok
}

// ByName resolves a display name as written in legacy sheets, ignoring case
// and an optional "Dr." title.
func (c *Catalog) ByName(name string) (*model.Doctor, bool) {
	key := nameKey(name)
	if d, ok := c.byName[key]; ok {
		return d, true
	}
	bare := strings.TrimPrefix(strings.TrimPrefix(key, "dr."), "dr ")
	bare = strings.TrimSpace(bare)
	for k, d := range c.byName {
		if strings.TrimSpace(strings.TrimPrefix(k, "dr.")) == bare {
			return d, true
		}
	}
	return nil, false
}

func (c *Catalog) List() []model.Doctor {
	out := make([]model.Doctor, len(c.doctors))
	copy(out, c.doctors)
	return out
}

func (c *Catalog) Len() int {
	return len(c.doctors)
}

func hours(spans ...string) []model.WorkingWindow {
	out := make([]model.WorkingWindow, 0, len(spans))
	for _, s := range spans {
		parts := strings.SplitN(s, "-", 2)
		out = append(out, model.WorkingWindow{
			Start: model.MustTimeOfDay(parts[0]),
			End:   model.MustTimeOfDay(parts[1]),
		})
	}
	return out
}

// Defaults is the clinic's built-in roster.
func Defaults() []model.Doctor {
	return []model.Doctor{
		{ID: "dr-smith", Name: "Dr. Sarah Smith", Specialization: "Cardiologist", Department: "Cardiology", WorkingHours: hours("10:00-13:00", "17:00-20:00")},
		{ID: "dr-johnson", Name: "Dr. Michael Johnson", Specialization: "Orthopedic Surgeon", Department: "Orthopedics", WorkingHours: hours("09:00-12:00", "16:00-19:00")},
		{ID: "dr-patel", Name: "Dr. Neha Patel", Specialization: "Pediatrician", Department: "Pediatrics", WorkingHours: hours("11:00-14:00", "18:00-21:00")},
		{ID: "dr-wilson", Name: "Dr. James Wilson", Specialization: "Neurologist", Department: "Neurology", WorkingHours: hours("08:00-11:00", "15:00-18:00")},
		{ID: "dr-chen", Name: "Dr. Li Chen", Specialization: "Gynecologist", Department: "Gynecology", WorkingHours: hours("09:30-12:30", "16:30-19:30")},
		{ID: "dr-brown", Name: "Dr. Robert Brown", Specialization: "General Practitioner", Department: "General Medicine", WorkingHours: hours("10:30-13:30", "17:30-20:30")},
	}
}
