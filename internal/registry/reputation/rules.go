// Package reputation scores a profile from the claims it has received.
package reputation

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"attestry/internal/registry/models"
)

// SecondsPerWeek is the tenure unit: one point per full week since joining.
const SecondsPerWeek = 7 * 24 * 60 * 60

// Rules maps claim types to the points an approved claim of that type is worth.
// Types missing from Points score Default.
type Rules struct {
	Points  map[string]uint32 `yaml:"points"`
	Default uint32            `yaml:"default"`
}

// DefaultRules is the built-in table.
func DefaultRules() Rules {
	return Rules{
		Points:  map[string]uint32{"job_completed": 10},
		Default: 5,
	}
}

// LoadRules reads a YAML rule table. An empty path returns DefaultRules.
//
//	points:
//	  job_completed: 10
//	default: 5
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read reputation rules: %w", err)
	}
	return ParseRules(raw)
}

func ParseRules(raw []byte) (Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse reputation rules: %w", err)
	}
	if rules.Points == nil {
		rules.Points = map[string]uint32{}
	}
	return rules, nil
}

// PointsFor returns the value of one approved claim of claimType.
func (r Rules) PointsFor(claimType string) uint32 {
	if p, ok := r.Points[claimType]; ok {
		return p
	}
	return r.Default
}

// Score sums points over approved claims and adds one per full week of tenure.
// A nil profile scores 0. The result saturates instead of wrapping.
func (r Rules) Score(profile *models.Profile, received []*models.Claim, now uint64) uint32 {
	if profile == nil {
		return 0
	}
	var total uint32
	for _, c := range received {
		if c == nil || c.Status != models.ClaimStatusApproved {
			continue
		}
		total = addSaturating(total, r.PointsFor(c.ClaimType))
	}
	if now > profile.JoinedAt {
		weeks := (now - profile.JoinedAt) / SecondsPerWeek
		if weeks > math.MaxUint32 {
			weeks = math.MaxUint32
		}
		total = addSaturating(total, uint32(weeks))
	}
	return total
}

func addSaturating(a, b uint32) uint32 {
	if a > math.MaxUint32-b {
		return math.MaxUint32
	}
	return a + b
}
