package seed

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Plan sets how much demo data a run creates.
type Plan struct {
	Users               int   `yaml:"users"`
	Communities         int   `yaml:"communities"`
	MembersPerCommunity int   `yaml:"members_per_community"`
	Threads             int   `yaml:"threads"`
	RepliesPerThread    int   `yaml:"replies_per_thread"`
	MaxDepth            int   `yaml:"max_depth"`
	Clean               bool  `yaml:"clean"`
	RandSeed            int64 `yaml:"seed"`
}

// DefaultPlan is a small graph suitable for local development.
func DefaultPlan() Plan {
	return Plan{
		Users:               25,
		Communities:         5,
		MembersPerCommunity: 8,
		Threads:             60,
		RepliesPerThread:    4,
		MaxDepth:            4,
	}
}

// LoadPlan reads a YAML plan. Fields left out keep their DefaultPlan value;
// unknown fields are rejected.
func LoadPlan(path string) (Plan, error) {
	plan := DefaultPlan()
	raw, err := os.ReadFile(path)
	if err != nil {
		return plan, fmt.Errorf("read seed plan: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&plan); err != nil {
		return plan, fmt.Errorf("parse seed plan %s: %w", path, err)
	}
	return plan, plan.Validate()
}

// Validate rejects plans that cannot be satisfied.
func (p Plan) Validate() error {
	switch {
	case p.Users < 0, p.Communities < 0, p.Threads < 0, p.RepliesPerThread < 0, p.MembersPerCommunity < 0:
		return fmt.Errorf("seed plan counts must not be negative")
	case p.Users == 0 && (p.Communities > 0 || p.Threads > 0):
		return fmt.Errorf("seed plan needs users to create communities or threads")
	case p.MaxDepth < 1 && p.RepliesPerThread > 0:
		return fmt.Errorf("max_depth must be at least 1 when replies are requested")
	}
	return nil
}
