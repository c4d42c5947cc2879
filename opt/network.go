// Package opt implements the CDST network optimization core: the problem
// builder, the five-objective fitness evaluator, the NSGA-II solver, and the
// result extractor. Scenario lifecycle lives in opt/scheduler; distance
// resolution in opt/routing.
package opt

import "time"

// Test urgency levels carried on demand records.
const (
	UrgencyRoutine = "routine"
	UrgencyUrgent  = "urgent"
	UrgencyStat    = "stat"
)

// Weekday keys for operational hours, matching the snapshot schema.
var weekdays = []string{
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
}

// OperationalWindow is an open interval for one weekday, "HH:MM" 24h clock.
// A window whose close precedes its open is clamped to midnight.
type OperationalWindow struct {
	Open  string `yaml:"open"`
	Close string `yaml:"close"`
}

// TestCapability describes one laboratory's handling of one test type.
type TestCapability struct {
	Available             bool    `yaml:"available"`
	ProcessingTimeMinutes float64 `yaml:"processing_time_minutes"`
	StaffRequired         int     `yaml:"staff_required"`
	EquipmentUtilization  float64 `yaml:"equipment_utilization"`
	CostPerTest           float64 `yaml:"cost_per_test"`
	QualityScore          float64 `yaml:"quality_score"`
}

// Laboratory is a facility that processes tests.
type Laboratory struct {
	ID                string                       `yaml:"id"`
	Name              string                       `yaml:"name"`
	Latitude          float64                      `yaml:"latitude"`
	Longitude         float64                      `yaml:"longitude"`
	MaxTestsPerDay    int                          `yaml:"max_tests_per_day"`
	MaxTestsPerMonth  int                          `yaml:"max_tests_per_month"`
	StaffCount        int                          `yaml:"staff_count"`
	UtilizationFactor float64                      `yaml:"utilization_factor"`
	OverheadCost      float64                      `yaml:"overhead_cost"`
	Capabilities      map[string]TestCapability    `yaml:"capabilities"`
	OperationalHours  map[string]OperationalWindow `yaml:"operational_hours"`
}

// ServiceArea is a geographic unit that generates test demand.
type ServiceArea struct {
	ID            string  `yaml:"id"`
	Name          string  `yaml:"name"`
	Latitude      float64 `yaml:"latitude"`
	Longitude     float64 `yaml:"longitude"`
	Population    int     `yaml:"population"`
	PriorityLevel int     `yaml:"priority_level"`
}

// TestDemand is one demand record: tests of one type from one area, optionally
// dated so a window can be aggregated.
type TestDemand struct {
	AreaID        string     `yaml:"area_id"`
	TestType      string     `yaml:"test_type"`
	Count         int        `yaml:"count"`
	PriorityLevel int        `yaml:"priority_level"`
	Urgency       string     `yaml:"urgency"`
	Date          *time.Time `yaml:"date"`
}

// Network is the snapshot the problem builder consumes.
type Network struct {
	ID                      string        `yaml:"id"`
	Name                    string        `yaml:"name"`
	Laboratories            []Laboratory  `yaml:"laboratories"`
	ServiceAreas            []ServiceArea `yaml:"service_areas"`
	TestTypes               []string      `yaml:"test_types"`
	Demands                 []TestDemand  `yaml:"demands"`
	CostPerKM               float64       `yaml:"cost_per_km"`
	MaxAcceptableDistanceKM float64       `yaml:"max_acceptable_distance_km"`
}

// DateWindow restricts demand aggregation. Zero values mean unbounded.
type DateWindow struct {
	From time.Time
	To   time.Time
}

// Days returns the window length in whole days, minimum 1. An unbounded
// window counts as one week, matching the weekly operational-hours base.
func (w DateWindow) Days() float64 {
	if w.From.IsZero() || w.To.IsZero() || !w.To.After(w.From) {
		return 7
	}
	return w.To.Sub(w.From).Hours() / 24
}

// Contains reports whether d falls inside the window. Undated demands are
// always included.
func (w DateWindow) Contains(d *time.Time) bool {
	if d == nil {
		return true
	}
	if !w.From.IsZero() && d.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && d.After(w.To) {
		return false
	}
	return true
}
