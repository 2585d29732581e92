package sql

import "testing"

func TestCheckFilterForInjection(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		wantSQLi  bool
	}{
		{name: "empty value", value: "", wantSQLi: false},
		{name: "plain search term", value: "hydraulic pump", wantSQLi: false},
		{name: "term with apostrophe word", value: "o-ring", wantSQLi: false},
		{name: "classic injection", value: "'; DROP TABLE logs--", wantSQLi: true},
		{name: "boolean injection", value: "' OR '1'='1", wantSQLi: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckFilterForInjection("title_search", tt.value)
			if tt.wantSQLi && result == nil {
				t.Errorf("expected injection detection for %q", tt.value)
			}
			if !tt.wantSQLi && result != nil {
				t.Errorf("false positive for %q: fingerprint %s", tt.value, result.Fingerprint)
			}
			if tt.wantSQLi && result != nil {
				if result.FilterName != "title_search" || result.FilterValue != tt.value {
					t.Errorf("result not populated: %+v", result)
				}
			}
		})
	}
}
