package processor

import (
	"fmt"
	"strings"
)

// SchemaError reports a required column missing from a raw relation. It is
// fatal: the run aborts before any derived output is written.
type SchemaError struct {
	Relation string
	Missing  []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("relation %q missing required columns: %s",
		e.Relation, strings.Join(e.Missing, ", "))
}

// NewSchemaError builds a SchemaError for a relation and its missing columns.
func NewSchemaError(relation string, missing []string) *SchemaError {
	return &SchemaError{Relation: relation, Missing: missing}
}

// DataQualityError reports a correctable defect in a raw relation, such as a
// duplicate primary key surviving exact-row dedup. It is logged and corrected
// by keeping the first occurrence; the run continues.
type DataQualityError struct {
	Relation string
	Key      string
	Detail   string
}

func (e *DataQualityError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("data quality issue in %q (key %s): %s", e.Relation, e.Key, e.Detail)
	}
	return fmt.Sprintf("data quality issue in %q: %s", e.Relation, e.Detail)
}

// InsufficientDataError reports that a model cannot be trained: too few rows
// or a single-class target. Fatal for the affected model only; the run
// continues with documented fallback outputs.
type InsufficientDataError struct {
	Model  string
	Rows   int
	Detail string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s model (%d rows): %s", e.Model, e.Rows, e.Detail)
}

// DegenerateClusterError reports fewer distinct feature vectors than
// requested clusters. Fatal for segmentation only.
type DegenerateClusterError struct {
	Requested int
	Distinct  int
}

func (e *DegenerateClusterError) Error() string {
	return fmt.Sprintf("cannot form %d clusters from %d distinct feature vectors",
		e.Requested, e.Distinct)
}
