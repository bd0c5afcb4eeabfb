package db

import "testing"

func TestValidateSchema(t *testing.T) {
	tests := []struct {
		name    string
		schema  string
		wantErr bool
	}{
		{"public", "public", false},
		{"underscore", "omop_export", false},
		{"leading digit", "1bad", true},
		{"injection", "public; DROP TABLE x", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchema(tt.schema)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSchema(%q) error = %v, wantErr %v", tt.schema, err, tt.wantErr)
			}
		})
	}
}

func TestSearchPath(t *testing.T) {
	if got := SearchPath("public"); got != "public" {
		t.Errorf("SearchPath(public) = %q", got)
	}
	if got := SearchPath(""); got != "public" {
		t.Errorf("SearchPath(\"\") = %q", got)
	}
	if got := SearchPath("clinical"); got != "clinical, public" {
		t.Errorf("SearchPath(clinical) = %q", got)
	}
}
