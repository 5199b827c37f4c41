package slot

import (
	"fmt"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/clinic-booking/internal/model"
)

const DefaultGranularity = 30 * time.Minute

// Expand turns working windows into sorted, de-duplicated slot starts.
// Windows are half-open: a window's end is never emitted, and a window
// shorter than one granularity contributes no slots.
func Expand(windows []model.WorkingWindow, granularity time.Duration) []model.TimeOfDay {
	if granularity < time.Minute {
		granularity = DefaultGranularity
	}

	var out []model.TimeOfDay
	for _, w := range windows {
		if time.Duration(w.End-w.Start)*time.Minute < granularity {
			continue
		}
		for t := w.Start; t < w.End; t = t.Add(granularity) {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return []model.TimeOfDay{}
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	uniq := out[:1]
	for _, t := range out[1:] {
		if t != uniq[len(uniq)-1] {
			uniq = append(uniq, t)
		}
	}
	return uniq
}

// Grid memoizes expansions per doctor. Doctors are immutable for the process
// lifetime so entries never expire.
type Grid struct {
	granularity time.Duration
	cache       *cache.Cache
}

func NewGrid(granularity time.Duration) *Grid {
	if granularity < time.Minute {
		granularity = DefaultGranularity
	}
	return &Grid{
		granularity: granularity,
		cache:       cache.New(cache.NoExpiration, 0),
	}
}

func (g *Grid) Granularity() time.Duration {
	return g.granularity
}

// Slots returns the doctor's slot starts. Callers must not modify the result.
func (g *Grid) Slots(doctor *model.Doctor) []model.TimeOfDay {
	key := fmt.Sprintf("%s/%d", doctor.ID, int(g.granularity/time.Minute))
	if v, ok := g.cache.Get(key); ok {
		return v.([]model.TimeOfDay)
	}
	slots := Expand(doctor.WorkingHours, g.granularity)
	g.cache.Set(key, slots, cache.NoExpiration)
	return slots
}

// Contains reports whether t is one of the doctor's slot starts.
func (g *Grid) Contains(doctor *model.Doctor, t model.TimeOfDay) bool {
	slots := g.Slots(doctor)
	i := sort.Search(len(slots), func(i int) bool { return slots[i] >= t })
	return i < len(slots) && slots[i] == t
}
