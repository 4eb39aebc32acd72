package stats

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/natachasiqueira/clinicamentalize/internal/appointments"
)

var monthLabels = [...]string{"Jan", "Fev", "Mar", "Abr", "Mai", "Jun", "Jul", "Ago", "Set", "Out", "Nov", "Dez"}

// bands are inclusive upper bounds; the last one is open.
var bands = []struct {
	label string
	max   int
}{
	{"1-5", 5},
	{"6-10", 10},
	{"11-15", 15},
	{"16+", math.MaxInt},
}

// Compute builds the dashboard from snap as of now. It does not read the
// clock, so the same snapshot and now always give the same report.
func Compute(snap Snapshot, now time.Time, opts Options) Report {
	opts = opts.normalized()
	now = now.UTC()
	start := now.Add(-opts.Window)
	caseloadStart := now.Add(-opts.CaseloadWindow)

	type monthAgg struct {
		total, noShow int
		attended      map[uuid.UUID]int
	}
	months := map[string]*monthAgg{}
	perPsychologist := map[uuid.UUID]int{}
	caseload := map[uuid.UUID]map[uuid.UUID]struct{}{}
	completed := map[uuid.UUID]int{}

	for _, a := range snap.Appointments {
		at := a.ScheduledAt.UTC()
		if a.Status == appointments.StatusCompleted {
			completed[a.PatientID]++
		}
		if between(at, caseloadStart, now) && (a.Status.Holds() || a.Status == appointments.StatusCompleted) {
			set := caseload[a.PsychologistID]
			if set == nil {
				set = map[uuid.UUID]struct{}{}
				caseload[a.PsychologistID] = set
			}
			set[a.PatientID] = struct{}{}
		}
		if !between(at, start, now) {
			continue
		}

		key := at.Format("2006-01")
		m := months[key]
		if m == nil {
			m = &monthAgg{attended: map[uuid.UUID]int{}}
			months[key] = m
		}
		m.total++
		if a.Status == appointments.StatusNoShow {
			m.noShow++
		}
		if a.Status == appointments.StatusCompleted || a.Status == appointments.StatusConfirmed {
			m.attended[a.PatientID]++
		}
		perPsychologist[a.PsychologistID]++
	}

	keys := make([]string, 0, len(months))
	for k := range months {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	report := Report{
		GeneratedAt:         now,
		WindowStart:         start,
		WindowEnd:           now,
		Totals:              snap.Totals,
		MonthlyAppointments: make([]MonthCount, 0, len(keys)),
		Retention:           make([]MonthRate, 0, len(keys)),
		NoShow:              make([]MonthRate, 0, len(keys)),
		SessionFrequency:    make([]Band, len(bands)),
		Occupancy:           make([]PsychologistRate, 0, len(snap.Psychologists)),
		ActiveCaseload:      make([]PsychologistCount, 0, len(snap.Psychologists)),
	}

	for _, k := range keys {
		m := months[k]
		report.MonthlyAppointments = append(report.MonthlyAppointments, MonthCount{Month: k, Label: monthLabel(k), Total: m.total})

		returning := 0
		for _, n := range m.attended {
			if n >= 2 {
				returning++
			}
		}
		report.Retention = append(report.Retention, MonthRate{Month: k, Label: monthLabel(k), Rate: percent(returning, len(m.attended))})
		report.NoShow = append(report.NoShow, MonthRate{Month: k, Label: shortMonth(k), Rate: percent(m.noShow, m.total)})
	}

	for i, b := range bands {
		report.SessionFrequency[i].Band = b.label
	}
	for _, n := range completed {
		for i, b := range bands {
			if n <= b.max {
				report.SessionFrequency[i].Patients++
				break
			}
		}
	}

	people := append([]Person(nil), snap.Psychologists...)
	sort.Slice(people, func(i, j int) bool {
		if people[i].Name != people[j].Name {
			return people[i].Name < people[j].Name
		}
		return people[i].ID.String() < people[j].ID.String()
	})
	for _, p := range people {
		first := firstName(p.Name)
		report.Occupancy = append(report.Occupancy, PsychologistRate{
			PsychologistID: p.ID,
			Name:           p.Name,
			FirstName:      first,
			Rate:           round1(float64(perPsychologist[p.ID]) / opts.AvailableHours * 100),
		})
		report.ActiveCaseload = append(report.ActiveCaseload, PsychologistCount{
			PsychologistID: p.ID,
			Name:           p.Name,
			FirstName:      first,
			Patients:       len(caseload[p.ID]),
		})
	}
	return report
}

func between(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

// percent is part/whole x 100 to one decimal, or 0 when whole is 0.
func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return round1(float64(part) / float64(whole) * 100)
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

// monthLabel turns "2024-05" into "Mai".
func monthLabel(key string) string {
	t, err := time.Parse("2006-01", key)
	if err != nil {
		return key
	}
	return monthLabels[t.Month()-1]
}

// shortMonth turns "2024-05" into "05/24".
func shortMonth(key string) string {
	if len(key) != 7 {
		return key
	}
	return key[5:] + "/" + key[2:4]
}

func firstName(name string) string {
	if f := strings.Fields(name); len(f) > 0 {
		return f[0]
	}
	return ""
}
