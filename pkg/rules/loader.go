package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"mercator-hq/pricegate/pkg/pricing"
)

// file is the on-disk layout of a rules file.
type file struct {
	Rules []yaml.Node `yaml:"rules"`
}

// defaultRule returns the values a rule starts from before the YAML
// document is decoded over it.
func defaultRule() pricing.Rule {
	return pricing.Rule{
		MinConfidence: 0,
		MaxConfidence: 1,
		Action:        pricing.ActionApplyWithApproval,
		Enabled:       true,
	}
}

// LoadFile reads and validates a YAML rules file.
func LoadFile(path string) ([]pricing.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}
	rules, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules file %q: %w", path, err)
	}
	return rules, nil
}

// Parse decodes and validates rules from YAML.
func Parse(data []byte) ([]pricing.Rule, error) {
	var doc file
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}

	rules := make([]pricing.Rule, 0, len(doc.Rules))
	for i := range doc.Rules {
		rule := defaultRule()
		if err := doc.Rules[i].Decode(&rule); err != nil {
			return nil, fmt.Errorf("rule #%d (line %d): %w", i+1, doc.Rules[i].Line, err)
		}
		rules = append(rules, rule)
	}

	if err := ValidateSet(rules); err != nil {
		return nil, err
	}
	pricing.SortRules(rules)
	return rules, nil
}
