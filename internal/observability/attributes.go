// Package observability provides metrics, tracing, and logging utilities.
package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"driverd/internal/driver"
)

// Attribute keys
const (
	attrMethod = "method"
	attrPath   = "path"
	attrStatus = "status"
	attrState  = "state"
	attrScheme = "scheme"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	// Normalize paths with IDs to reduce cardinality
	// /v1/drivers/abc123 -> /v1/drivers/{driverId}
	normalized := normalizePath(path)
	return attribute.String(attrPath, normalized)
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func stateAttr(state driver.State) attribute.KeyValue {
	return attribute.String(attrState, string(state))
}

func schemeAttr(scheme string) attribute.KeyValue {
	return attribute.String(attrScheme, scheme)
}

// normalizePath replaces dynamic path segments with placeholders.
func normalizePath(path string) string {
	// Simple normalization for /v1/drivers/{driverId}
	// More sophisticated routing-aware normalization would be better
	const prefix = "/v1/drivers/"
	if len(path) > len(prefix) && path[:len(prefix)] == prefix {
		return "/v1/drivers/{driverId}"
	}
	return path
}
