package triage

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// Doctor is one provider with a weekly recurring schedule.
type Doctor struct {
	Name           string              `yaml:"name"`
	Subspecialties []Subspecialty      `yaml:"subspecialties"`
	Insurances     []string            `yaml:"insurances"`
	Schedule       map[string][]string `yaml:"schedule"` // "Mon".."Sun" -> "HH:MM" slots
}

func (d *Doctor) covers(code Subspecialty) bool {
	for _, s := range d.Subspecialties {
		if s == code {
			return true
		}
	}
	return false
}

func (d *Doctor) accepts(insurance string) bool {
	ins := strings.ToLower(strings.TrimSpace(insurance))
	if ins == "" || ins == "na" {
		return true
	}
	for _, accepted := range d.Insurances {
		if strings.ToLower(accepted) == ins {
			return true
		}
	}
	return false
}

// Roster is the full provider schedule.
type Roster struct {
	Doctors []Doctor `yaml:"doctors"`
}

// LoadRoster reads a roster YAML file. An empty path or a load failure falls
// back to the built-in roster; a roster file with no doctors is an error.
func LoadRoster(path string) (*Roster, error) {
	if path == "" {
		return DefaultRoster(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roster file: %w", err)
	}
	roster := new(Roster)
	if err := yaml.Unmarshal(data, roster); err != nil {
		return nil, fmt.Errorf("parsing roster file: %w", err)
	}
	if len(roster.Doctors) == 0 {
		return nil, fmt.Errorf("roster file %s lists no doctors", path)
	}
	return roster, nil
}

var weekdayNames = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

type scheduleSlot struct {
	day  string
	time string
	at   time.Time
}

// expandSchedule turns a weekly schedule into concrete slot times over the
// next days starting from start, earliest first.
func expandSchedule(schedule map[string][]string, start time.Time, days int) []scheduleSlot {
	var out []scheduleSlot
	for i := range days {
		d := start.AddDate(0, 0, i)
		weekday := weekdayNames[int(d.Weekday())]
		times, ok := schedule[weekday]
		if !ok {
			continue
		}
		for _, t := range times {
			var hh, mm int
			if _, err := fmt.Sscanf(t, "%d:%d", &hh, &mm); err != nil {
				continue
			}
			at := time.Date(d.Year(), d.Month(), d.Day(), hh, mm, 0, 0, d.Location())
			out = append(out, scheduleSlot{day: weekday, time: t, at: at})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })
	return out
}

func urgencyHorizon(urgency Urgency) int {
	switch urgency {
	case UrgencyEmergency:
		return 1
	case UrgencyUrgent:
		return 7
	}
	return 14
}

// Appointment is a selected slot with a provider.
type Appointment struct {
	DoctorName     string
	Subspecialty   Subspecialty
	Date           string // YYYY-MM-DD
	Time           string // HH:MM
	WaitDays       int
	PreferredMatch bool
}

// NoDoctorAvailable is the selection result when no provider matches.
var NoDoctorAvailable = Appointment{DoctorName: "No Doctor Available", Date: "TBD", WaitDays: -1}

// EmergencyReferral is the fixed referral for emergency cases; no scheduling
// happens for those.
func EmergencyReferral() Appointment {
	return Appointment{
		DoctorName:   "Emergency Department",
		Subspecialty: SubspecialtyEmergency,
		Date:         "IMMEDIATE",
		Time:         "NOW",
	}
}

// PickDoctor selects the earliest qualifying slot: subspecialty and insurance
// filters, an urgency-dependent search horizon, and a tie-break favoring the
// patient's preferred days.
func (r *Roster) PickDoctor(
	code Subspecialty,
	urgency Urgency,
	insurance string,
	preferredDays []time.Time,
	now time.Time,
) Appointment {
	horizon := urgencyHorizon(urgency)

	prefDays := map[string]struct{}{}
	for _, d := range preferredDays {
		prefDays[d.Format("2006-01-02")] = struct{}{}
	}

	best := NoDoctorAvailable
	best.Subspecialty = code
	var bestAt time.Time

	for i := range r.Doctors {
		doc := &r.Doctors[i]
		if !doc.covers(code) || !doc.accepts(insurance) {
			continue
		}
		for _, slot := range expandSchedule(doc.Schedule, now, horizon) {
			preferred := true
			if len(prefDays) > 0 {
				_, preferred = prefDays[slot.at.Format("2006-01-02")]
			}
			cand := Appointment{
				DoctorName:     doc.Name,
				Subspecialty:   code,
				Date:           slot.at.Format("2006-01-02"),
				Time:           slot.time,
				WaitDays:       daysBetween(now, slot.at),
				PreferredMatch: preferred,
			}
			if urgency == UrgencyEmergency {
				return cand
			}
			switch {
			case best.WaitDays < 0:
				best, bestAt = cand, slot.at
			case cand.PreferredMatch && !best.PreferredMatch:
				best, bestAt = cand, slot.at
			case cand.PreferredMatch == best.PreferredMatch && slot.at.Before(bestAt):
				best, bestAt = cand, slot.at
			}
		}
	}
	return best
}

// DoctorAvailability is one provider's upcoming openings, used when listing
// alternatives rather than auto-picking.
type DoctorAvailability struct {
	Name              string
	Subspecialty      Subspecialty
	InsuranceAccepted bool
	Slots             []Appointment // up to five, earliest first
	WaitDays          int
}

// AvailableDoctors lists qualifying providers with up to five upcoming slots
// each, sorted by shortest wait.
func (r *Roster) AvailableDoctors(code Subspecialty, insurance string, daysAhead int, now time.Time) []DoctorAvailability {
	var out []DoctorAvailability
	for i := range r.Doctors {
		doc := &r.Doctors[i]
		if !doc.covers(code) || !doc.accepts(insurance) {
			continue
		}
		slots := expandSchedule(doc.Schedule, now, daysAhead)
		if len(slots) == 0 {
			continue
		}
		if len(slots) > 5 {
			slots = slots[:5]
		}
		entry := DoctorAvailability{
			Name:              doc.Name,
			Subspecialty:      code,
			InsuranceAccepted: doc.accepts(insurance),
			WaitDays:          daysBetween(now, slots[0].at),
		}
		for _, slot := range slots {
			entry.Slots = append(entry.Slots, Appointment{
				DoctorName:   doc.Name,
				Subspecialty: code,
				Date:         slot.at.Format("2006-01-02"),
				Time:         slot.time,
				WaitDays:     daysBetween(now, slot.at),
			})
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].WaitDays < out[j].WaitDays })
	return out
}

func daysBetween(from, to time.Time) int {
	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	toDay := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, to.Location())
	return int(toDay.Sub(fromDay).Hours() / 24)
}

// DefaultRoster is the built-in provider schedule used when no roster file is
// configured.
func DefaultRoster() *Roster {
	return &Roster{Doctors: []Doctor{
		{
			Name:           "Dr. Alice Smith",
			Subspecialties: []Subspecialty{SubspecialtyGeneral, SubspecialtyMaternalFetal},
			Insurances:     []string{"aetna", "uhc", "bcbs"},
			Schedule: map[string][]string{
				"Mon": {"09:00", "10:00", "14:00", "15:00"},
				"Tue": {"09:00", "10:00", "11:00"},
				"Thu": {"09:00", "14:00", "15:00", "16:00"},
			},
		},
		{
			Name:           "Dr. Brian Lee",
			Subspecialties: []Subspecialty{SubspecialtyGeneral, SubspecialtyMinimallyInvasive},
			Insurances:     []string{"aetna", "cigna"},
			Schedule: map[string][]string{
				"Tue": {"10:00", "11:00", "14:00"},
				"Wed": {"09:00", "10:00", "14:00", "15:00"},
				"Fri": {"09:00", "10:00", "11:00"},
			},
		},
		{
			Name:           "Dr. Carol Chen",
			Subspecialties: []Subspecialty{SubspecialtyGeneral, SubspecialtyUrogynecology},
			Insurances:     []string{"aetna", "uhc", "medicare"},
			Schedule: map[string][]string{
				"Mon": {"10:00", "11:00", "15:00"},
				"Wed": {"09:00", "14:00", "15:00", "16:00"},
				"Fri": {"09:00", "10:00", "14:00"},
			},
		},
		{
			Name:           "Dr. David Patel",
			Subspecialties: []Subspecialty{SubspecialtyMaternalFetal},
			Insurances:     []string{"aetna", "uhc", "bcbs", "cigna"},
			Schedule: map[string][]string{
				"Mon": {"09:00", "10:00", "11:00", "14:00"},
				"Tue": {"09:00", "14:00", "15:00"},
			},
		},
		{
			Name:           "Dr. Emily Johnson",
			Subspecialties: []Subspecialty{SubspecialtyGynecologicOncology},
			Insurances:     []string{"aetna", "bcbs", "medicare"},
			Schedule: map[string][]string{
				"Wed": {"09:00", "10:00", "14:00"},
				"Thu": {"09:00", "10:00", "11:00", "14:00"},
			},
		},
		{
			Name:           "Dr. Frank Garcia",
			Subspecialties: []Subspecialty{SubspecialtyReproductiveEndo},
			Insurances:     []string{"uhc", "cigna"},
			Schedule: map[string][]string{
				"Wed": {"10:00", "11:00", "15:00", "16:00"},
			},
		},
		{
			Name:           "Dr. Grace Wong",
			Subspecialties: []Subspecialty{SubspecialtyGeneral, SubspecialtyMinimallyInvasive},
			Insurances:     []string{"aetna", "bcbs"},
			Schedule: map[string][]string{
				"Thu": {"10:00", "11:00", "14:00", "15:00"},
			},
		},
		{
			Name:           "Dr. Hannah Kim",
			Subspecialties: []Subspecialty{SubspecialtyGeneral, SubspecialtyMaternalFetal},
			Insurances:     []string{"aetna", "uhc", "bcbs", "medicare"},
			Schedule: map[string][]string{
				"Sat": {"09:00", "10:00", "11:00"},
			},
		},
		{
			Name:           "Dr. Kevin Miller",
			Subspecialties: []Subspecialty{SubspecialtyGeneral},
			Insurances:     []string{"uhc", "cigna", "bcbs"},
			Schedule: map[string][]string{
				"Mon": {"14:00", "15:00", "16:00"},
				"Fri": {"09:00", "10:00", "14:00"},
			},
		},
		{
			Name:           "Dr. Linda Lopez",
			Subspecialties: []Subspecialty{SubspecialtyUrogynecology},
			Insurances:     []string{"aetna", "medicare"},
			Schedule: map[string][]string{
				"Sat": {"09:00", "10:00"},
			},
		},
		{
			Name:           "Dr. Michael Zhang",
			Subspecialties: []Subspecialty{SubspecialtyGeneral, SubspecialtyReproductiveEndo},
			Insurances:     []string{"aetna", "uhc", "cigna"},
			Schedule: map[string][]string{
				"Tue": {"14:00", "15:00", "16:00"},
			},
		},
	}}
}
