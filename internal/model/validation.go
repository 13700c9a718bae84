package model

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	MaxDisplayNameLength = 100
	MaxDescriptionLength = 500
)

// ValidateProfile checks the user-supplied fields of a profile and returns a
// map of field name to message. An empty map means the input is valid.
// It performs no I/O.
func ValidateProfile(fields ProfileFields) map[string]string {
	errs := make(map[string]string)

	name := strings.TrimSpace(fields.DisplayName)
	switch {
	case name == "":
		errs["displayName"] = "display name is required"
	case utf8.RuneCountInString(name) > MaxDisplayNameLength:
		errs["displayName"] = "display name must be at most 100 characters"
	}

	if utf8.RuneCountInString(fields.Description) > MaxDescriptionLength {
		errs["description"] = "description must be at most 500 characters"
	}

	if strings.TrimSpace(fields.ActivationCode) == "" {
		errs["activationCode"] = "activation code is required"
	}

	if strings.TrimSpace(fields.SMDPServerURL) == "" {
		errs["smdpServerUrl"] = "SM-DP+ server URL is required"
	} else if !isAbsoluteURL(fields.SMDPServerURL) {
		errs["smdpServerUrl"] = "SM-DP+ server URL must be an absolute http(s) URL"
	}

	if strings.TrimSpace(fields.Provider) == "" {
		errs["provider"] = "provider is required"
	} else if _, ok := ParseProvider(fields.Provider); !ok {
		errs["provider"] = "provider must be one of MPT, ATOM, OOREDOO, MYTEL"
	}

	return errs
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}
