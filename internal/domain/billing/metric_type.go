package billing

import (
	"fmt"

	"github.com/subgov/backend/internal/domain/shared"
)

// MetricType is a metered resource
type MetricType string

const (
	MetricAPICalls     MetricType = "api_calls"
	MetricStorageBytes MetricType = "storage_bytes"
	MetricActiveUsers  MetricType = "active_users"
	MetricBranches     MetricType = "branches"
)

// AllMetricTypes returns every metric in display order
func AllMetricTypes() []MetricType {
	return []MetricType{MetricAPICalls, MetricStorageBytes, MetricActiveUsers, MetricBranches}
}

// String returns the string representation of MetricType
func (m MetricType) String() string {
	return string(m)
}

// IsValid returns true if the metric type is known
func (m MetricType) IsValid() bool {
	switch m {
	case MetricAPICalls, MetricStorageBytes, MetricActiveUsers, MetricBranches:
		return true
	}
	return false
}

// IsAccumulative is true for event counters that only make sense per period.
// The others are gauges of resources the tenant currently holds.
func (m MetricType) IsAccumulative() bool {
	return m == MetricAPICalls
}

// Unit returns the measurement unit for this metric
func (m MetricType) Unit() UsageUnit {
	switch m {
	case MetricStorageBytes:
		return UsageUnitBytes
	case MetricAPICalls:
		return UsageUnitRequests
	default:
		return UsageUnitCount
	}
}

// DisplayName returns a human-readable name for the metric
func (m MetricType) DisplayName() string {
	switch m {
	case MetricAPICalls:
		return "API Calls"
	case MetricStorageBytes:
		return "Storage"
	case MetricActiveUsers:
		return "Active Users"
	case MetricBranches:
		return "Branches"
	default:
		return string(m)
	}
}

// ParseMetricType parses a string into a MetricType
func ParseMetricType(s string) (MetricType, error) {
	m := MetricType(s)
	if !m.IsValid() {
		return "", shared.NewValidationError("INVALID_METRIC_TYPE", fmt.Sprintf("Unknown metric type: %s", s))
	}
	return m, nil
}

// UsageUnit represents the unit of measurement for usage
type UsageUnit string

const (
	UsageUnitRequests UsageUnit = "requests"
	UsageUnitBytes    UsageUnit = "bytes"
	UsageUnitCount    UsageUnit = "count"
)

// FormatValue formats a value with the appropriate unit suffix
func (u UsageUnit) FormatValue(value int64) string {
	if value == UnlimitedValue {
		return "Unlimited"
	}
	switch u {
	case UsageUnitBytes:
		return formatBytes(value)
	case UsageUnitRequests:
		return fmt.Sprintf("%d requests", value)
	default:
		return fmt.Sprintf("%d", value)
	}
}

func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.2f TB", float64(bytes)/TB)
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
