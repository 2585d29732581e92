package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a filter value that matched a SQL injection
// fingerprint.
type InjectionCheckResult struct {
	Fingerprint string
	FilterName  string
	FilterValue string
}

// CheckFilterForInjection screens a free-text filter value with libinjection.
// Filter values are always bound as positional parameters, so this is defense
// in depth against drivers or log tables we do not control. Returns nil when
// the value is clean.
func CheckFilterForInjection(filterName, value string) *InjectionCheckResult {
	if value == "" {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if isSQLi {
		return &InjectionCheckResult{
			Fingerprint: string(fingerprint),
			FilterName:  filterName,
			FilterValue: value,
		}
	}

	return nil
}
