package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ReleasePlan is the declarative description of one release: what to
// ship, when to kick off, and which regression slots to run. Plans are
// accepted over the API as JSON or discovered on disk as
// releaseplan.yaml files.
type ReleasePlan struct {
	App       string     `yaml:"app" json:"app"`
	Version   string     `yaml:"version" json:"version"`
	Tenant    string     `yaml:"tenant,omitempty" json:"tenant,omitempty"`
	Platforms []Platform `yaml:"platforms" json:"platforms"`
	Branch    string     `yaml:"branch,omitempty" json:"branch,omitempty"`

	KickoffAt time.Time `yaml:"kickoffAt" json:"kickoffAt"`
	TargetAt  time.Time `yaml:"targetAt" json:"targetAt"`

	// BuildModes selects MANUAL or CI_CD per platform. Platforms not
	// listed default to MANUAL.
	BuildModes map[Platform]BuildSource `yaml:"buildModes,omitempty" json:"buildModes,omitempty"`

	// RegressionSlots are the dated slots regression cycles run in,
	// ascending.
	RegressionSlots []time.Time `yaml:"regressionSlots" json:"regressionSlots"`

	// Skip lists task types to create already SKIPPED (integration
	// not in use for this release).
	Skip []TaskType `yaml:"skip,omitempty" json:"skip,omitempty"`

	// AutoAdvance arms automatic transition into a stage once its
	// predecessor completes.
	AutoAdvance map[Stage]bool `yaml:"autoAdvance,omitempty" json:"autoAdvance,omitempty"`
}

func (p *ReleasePlan) Validate() error {
	if p.App == "" {
		return fmt.Errorf("plan: app is required")
	}
	if p.Version == "" {
		return fmt.Errorf("plan: version is required")
	}
	if len(p.Platforms) == 0 {
		return fmt.Errorf("plan: at least one platform is required")
	}
	seen := map[Platform]bool{}
	for _, pf := range p.Platforms {
		if !ValidPlatform(pf) {
			return fmt.Errorf("plan: unknown platform %q", pf)
		}
		if seen[pf] {
			return fmt.Errorf("plan: duplicate platform %q", pf)
		}
		seen[pf] = true
	}
	for pf, mode := range p.BuildModes {
		if !seen[pf] {
			return fmt.Errorf("plan: build mode for non-target platform %q", pf)
		}
		if mode != SourceManual && mode != SourceCICD {
			return fmt.Errorf("plan: unknown build mode %q for %q", mode, pf)
		}
	}
	if p.KickoffAt.IsZero() {
		return fmt.Errorf("plan: kickoffAt is required")
	}
	if !p.TargetAt.IsZero() && p.TargetAt.Before(p.KickoffAt) {
		return fmt.Errorf("plan: targetAt precedes kickoffAt")
	}
	if len(p.RegressionSlots) == 0 {
		return fmt.Errorf("plan: at least one regression slot is required")
	}
	for i := 1; i < len(p.RegressionSlots); i++ {
		if p.RegressionSlots[i].Before(p.RegressionSlots[i-1]) {
			return fmt.Errorf("plan: regression slots out of order at index %d", i)
		}
	}
	for _, tt := range p.Skip {
		if _, ok := Catalog[tt]; !ok {
			return fmt.Errorf("plan: unknown task type %q in skip list", tt)
		}
	}
	return nil
}

// Skips reports whether the plan marks a task type as skipped.
func (p *ReleasePlan) Skips(tt TaskType) bool {
	for _, s := range p.Skip {
		if s == tt {
			return true
		}
	}
	return false
}

// LoadPlan reads and validates a releaseplan.yaml file.
func LoadPlan(path string) (*ReleasePlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var plan ReleasePlan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &plan, nil
}

// DiscoverPlans scans a directory for subdirectories containing a
// releaseplan.yaml. Unparseable plans are skipped, not fatal.
func DiscoverPlans(dir string) ([]*ReleasePlan, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var plans []*ReleasePlan
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		plan, err := LoadPlan(filepath.Join(dir, entry.Name(), "releaseplan.yaml"))
		if err != nil {
			continue
		}
		plans = append(plans, plan)
	}
	return plans, nil
}
