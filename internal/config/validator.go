package config

import (
	"fmt"
	"strings"
)

// ValidationError is a configuration problem with enough context to fix it.
type ValidationError struct {
	Field       string
	Value       interface{}
	Problem     string
	Suggestion  string
	ValidValues []string
}

func (e ValidationError) Error() string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("%s: %v  # <-- %s", e.Field, e.Value, e.Problem))

	if e.Suggestion != "" {
		msg.WriteString(fmt.Sprintf("\n  did you mean '%s'?", e.Suggestion))
	}

	if len(e.ValidValues) > 0 {
		msg.WriteString(fmt.Sprintf("\n  valid options: %s", strings.Join(e.ValidValues, ", ")))
	}

	return msg.String()
}

// ValidationResult holds the errors and warnings found in one pass.
type ValidationResult struct {
	Errors   []error
	Warnings []string
}

// HasErrors returns true if there are any errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(err error) {
	r.Errors = append(r.Errors, err)
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(warning string) {
	r.Warnings = append(r.Warnings, warning)
}

// Validate checks every pipeline against the component registry: only
// registered types, required config keys present, and processors ordered
// so each stage runs after the stages that produce its inputs.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}
	for name, pipeline := range cfg.Pipelines {
		validatePipeline(name, pipeline, result)
	}
	return result
}

func validatePipeline(name string, p Pipeline, result *ValidationResult) {
	if p.Source.Type == "" {
		result.AddError(ValidationError{
			Field:       name + ".source.type",
			Value:       "",
			Problem:     "missing source type",
			ValidValues: Names(KindSource),
		})
	} else {
		validateComponent(name+".source", p.Source, KindSource, result)
	}

	if len(p.Processors) == 0 {
		result.AddWarning(fmt.Sprintf("Pipeline '%s': no processors configured, consumers will see the raw snapshot", name))
	}

	seen := make(map[string]bool, len(p.Processors))
	for i, proc := range p.Processors {
		field := fmt.Sprintf("%s.processors[%d]", name, i)
		validateComponent(field, proc, KindProcessor, result)

		if info, ok := registry[proc.Type]; ok {
			for _, upstream := range info.Upstream {
				if !seen[upstream] {
					result.AddWarning(fmt.Sprintf("Pipeline '%s': %s reads fields produced by %s, which does not run before it", name, proc.Type, upstream))
				}
			}
		}
		seen[proc.Type] = true
	}

	if len(p.Consumers) == 0 {
		result.AddWarning(fmt.Sprintf("Pipeline '%s': no consumers configured, output will not be persisted", name))
	}
	for i, cons := range p.Consumers {
		field := fmt.Sprintf("%s.consumers[%d]", name, i)
		validateComponent(field, cons, KindConsumer, result)
	}
}

func validateComponent(field string, c Component, kind ComponentKind, result *ValidationResult) {
	info, ok := registry[c.Type]
	if !ok || info.Kind != kind {
		result.AddError(ValidationError{
			Field:       field + ".type",
			Value:       c.Type,
			Problem:     fmt.Sprintf("unknown %s type", kind),
			Suggestion:  closestType(c.Type, kind),
			ValidValues: Names(kind),
		})
		return
	}

	for _, key := range info.RequiredKeys {
		if _, present := c.Config[key]; !present {
			result.AddError(ValidationError{
				Field:   field + ".config",
				Value:   c.Type,
				Problem: fmt.Sprintf("missing required key '%s'", key),
			})
		}
	}
}

// closestType suggests a registered type name for a near miss. Matching is
// by case-insensitive containment either way; ties go to the shortest name
// so the suggestion is deterministic.
func closestType(input string, kind ComponentKind) string {
	lower := strings.ToLower(input)
	best := ""
	for _, name := range Names(kind) {
		nameLower := strings.ToLower(name)
		if !strings.Contains(nameLower, lower) && !strings.Contains(lower, nameLower) {
			continue
		}
		if best == "" || len(name) < len(best) {
			best = name
		}
	}
	return best
}
