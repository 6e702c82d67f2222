// Package observability provides metrics for the harness service.
package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod  = "method"
	attrPath    = "path"
	attrStatus  = "status"
	attrJobType = "job_type"
	attrOutcome = "outcome"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	return attribute.String(attrPath, path)
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func jobTypeAttr(jobType string) attribute.KeyValue {
	return attribute.String(attrJobType, jobType)
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(attrOutcome, outcome)
}
