package settings

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SavedSetpoints is the persisted setpoint snapshot: glycol, heaters,
// and the time it was saved.
type SavedSetpoints struct {
	Glycol  float64
	Heaters float64
	SavedAt time.Time
}

// savedSetpointsDoc mirrors the on-disk shape:
// { Date: <ISO-8601 UTC>, Setpoints: { Glycol, Heaters } }.
type savedSetpointsDoc struct {
	Date      time.Time `yaml:"Date"`
	Setpoints struct {
		Glycol  float64 `yaml:"Glycol"`
		Heaters float64 `yaml:"Heaters"`
	} `yaml:"Setpoints"`
}

// IsValid reports whether both fields are finite
func (s SavedSetpoints) IsValid() bool {
	return !math.IsNaN(s.Glycol) && !math.IsInf(s.Glycol, 0) &&
		!math.IsNaN(s.Heaters) && !math.IsInf(s.Heaters, 0)
}

// LoadSavedSetpoints reads path and discards the record if it is malformed
// or older than maxAge seconds, returning a
// {NaN, NaN} snapshot in either case so callers can treat is_valid()==false
// uniformly.
func LoadSavedSetpoints(path string, maxAge time.Duration, now time.Time) SavedSetpoints {
	invalid := SavedSetpoints{Glycol: math.NaN(), Heaters: math.NaN()}

	data, err := os.ReadFile(path)
	if err != nil {
		return invalid
	}
	var doc savedSetpointsDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return invalid
	}
	if maxAge > 0 && now.Sub(doc.Date) > maxAge {
		return invalid
	}
	return SavedSetpoints{Glycol: doc.Setpoints.Glycol, Heaters: doc.Setpoints.Heaters, SavedAt: doc.Date}
}

// SaveSetpoints persists glycol/heaters to path with the current UTC
// time, as a small YAML file.
func SaveSetpoints(path string, glycol, heaters float64, now time.Time) error {
	doc := savedSetpointsDoc{Date: now.UTC()}
	doc.Setpoints.Glycol = glycol
	doc.Setpoints.Heaters = heaters
	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal saved setpoints: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("writing saved setpoints %q: %w", path, err)
	}
	return nil
}
