package scoring

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kalambet/sdr/internal/storage"
)

// CriteriaSeeder is the persistence needed to install default criteria.
type CriteriaSeeder interface {
	CriterionByName(name string) (storage.ScoringCriterion, error)
	CreateCriterion(c storage.ScoringCriterion) (storage.ScoringCriterion, error)
}

type defaultCriterion struct {
	name        string
	description string
	weight      float64
	rules       map[string]int
}

var defaultCriteria = []defaultCriterion{
	{
		name:        "Company Size",
		description: "Score based on company size and potential budget",
		weight:      3.0,
		rules:       map[string]int{"enterprise": 10, "large": 8, "medium": 6, "small": 3, "startup": 2},
	},
	{
		name:        "Job Title Authority",
		description: "Score based on decision-making authority",
		weight:      2.5,
		rules:       map[string]int{"c_level": 10, "vp_director": 8, "manager": 6, "individual_contributor": 3, "intern": 1},
	},
	{
		name:        "Industry Fit",
		description: "Score based on industry alignment with our solution",
		weight:      2.0,
		rules:       map[string]int{"technology": 10, "finance": 8, "healthcare": 7, "manufacturing": 6, "retail": 5, "other": 3},
	},
	{
		name:        "Engagement Level",
		description: "Score based on lead engagement and responsiveness",
		weight:      1.5,
		rules:       map[string]int{"high": 10, "medium": 6, "low": 3, "none": 1},
	},
}

// DefaultCriteria returns the built-in criteria set.
func DefaultCriteria() []storage.ScoringCriterion {
	out := make([]storage.ScoringCriterion, len(defaultCriteria))
	for i, d := range defaultCriteria {
		rules, _ := json.Marshal(d.rules)
		desc := d.description
		out[i] = storage.ScoringCriterion{
			Name:        d.name,
			Description: &desc,
			Weight:      d.weight,
			Rules:       string(rules),
			IsActive:    true,
		}
	}
	return out
}

// SeedDefaults creates each default criterion whose name is not yet taken and
// returns the ones it created.
func SeedDefaults(s CriteriaSeeder) ([]storage.ScoringCriterion, error) {
	var created []storage.ScoringCriterion
	for _, c := range DefaultCriteria() {
		_, err := s.CriterionByName(c.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return created, fmt.Errorf("checking criterion %q: %w", c.Name, err)
		}
		saved, err := s.CreateCriterion(c)
		if err != nil {
			return created, fmt.Errorf("creating criterion %q: %w", c.Name, err)
		}
		created = append(created, saved)
	}
	return created, nil
}
