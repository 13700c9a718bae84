package model

import (
	"strings"
	"testing"
)

func validFields() ProfileFields {
	return ProfileFields{
		DisplayName:    "Field team SIM",
		Description:    "Tablet fleet",
		Provider:       "ATOM",
		ActivationCode: "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		SMDPServerURL:  "https://smdp.atom.com.mm",
	}
}

func TestValidateProfileAcceptsValidInput(t *testing.T) {
	if errs := ValidateProfile(validFields()); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestValidateProfileFieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ProfileFields)
		field  string
	}{
		{"empty display name", func(f *ProfileFields) { f.DisplayName = "   " }, "displayName"},
		{"long display name", func(f *ProfileFields) { f.DisplayName = strings.Repeat("x", 101) }, "displayName"},
		{"long description", func(f *ProfileFields) { f.Description = strings.Repeat("d", 501) }, "description"},
		{"missing activation code", func(f *ProfileFields) { f.ActivationCode = "" }, "activationCode"},
		{"relative url", func(f *ProfileFields) { f.SMDPServerURL = "not-a-url" }, "smdpServerUrl"},
		{"missing url", func(f *ProfileFields) { f.SMDPServerURL = "" }, "smdpServerUrl"},
		{"ftp url", func(f *ProfileFields) { f.SMDPServerURL = "ftp://smdp.example.com" }, "smdpServerUrl"},
		{"unknown provider", func(f *ProfileFields) { f.Provider = "INVALID_PROVIDER" }, "provider"},
		{"missing provider", func(f *ProfileFields) { f.Provider = "" }, "provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := validFields()
			tt.mutate(&fields)
			errs := ValidateProfile(fields)
			if _, ok := errs[tt.field]; !ok {
				t.Fatalf("expected error on %s, got %v", tt.field, errs)
			}
			if len(errs) != 1 {
				t.Fatalf("expected exactly one error, got %v", errs)
			}
		})
	}
}

func TestValidateProfileBoundaryLengths(t *testing.T) {
	fields := validFields()
	fields.DisplayName = strings.Repeat("n", 100)
	fields.Description = strings.Repeat("ä", 500)
	if errs := ValidateProfile(fields); len(errs) != 0 {
		t.Fatalf("expected limits to be inclusive, got %v", errs)
	}
}

func TestValidateProfileRoundTrip(t *testing.T) {
	p := &Profile{
		DisplayName:    "Round trip",
		Provider:       ProviderOoredoo,
		ActivationCode: "LPA:1$smdp.ooredoo.com.mm$XYZ789GHI012",
		SMDPServerURL:  "https://smdp.ooredoo.com.mm",
	}
	if errs := ValidateProfile(p.Fields()); len(errs) != 0 {
		t.Fatalf("stored profile fields should validate, got %v", errs)
	}
}

func TestParseProviderIsCaseInsensitive(t *testing.T) {
	for _, in := range []string{"Ooredoo", "mytel", " MPT ", "atom"} {
		if _, ok := ParseProvider(in); !ok {
			t.Errorf("expected %q to parse", in)
		}
	}
	if _, ok := ParseProvider("TELENOR"); ok {
		t.Error("unexpected provider accepted")
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range Statuses {
		if !s.Valid() {
			t.Errorf("status %q should be valid", s)
		}
	}
	if Status("deploying").Valid() {
		t.Error("deploying is not a lifecycle status")
	}
}

func TestProfileUpdateApply(t *testing.T) {
	name := "Renamed"
	u := ProfileUpdate{DisplayName: &name}
	got := u.Apply(validFields())
	if got.DisplayName != "Renamed" || got.Provider != "ATOM" {
		t.Fatalf("unexpected merge result %+v", got)
	}
	if u.Empty() {
		t.Fatal("update with a field is not empty")
	}
	if names := u.ChangedFields(); len(names) != 1 || names[0] != "displayName" {
		t.Fatalf("unexpected changed fields %v", names)
	}
}
