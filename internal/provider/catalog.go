package provider

import (
	"regexp"

	"esim-service/internal/model"
)

// Transport is the wire protocol a carrier exposes for code validation
type Transport string

const (
	TransportTokenREST  Transport = "token-rest"
	TransportAPIKeyREST Transport = "apikey-rest"
	TransportSOAP       Transport = "soap"
	TransportForm       Transport = "form"
)

// Spec is the fixed, per-carrier description used for dispatch
type Spec struct {
	Provider        model.Provider `json:"provider"`
	Carrier         string         `json:"carrier"`
	MCC             string         `json:"mcc"`
	MNC             string         `json:"mnc"`
	Transport       Transport      `json:"transport"`
	PatternHint     string         `json:"patternHint"`
	DefaultEndpoint string         `json:"defaultEndpoint"`
	DefaultSMDP     string         `json:"defaultSmdp"`

	pattern   *regexp.Regexp
	minLength int
	maxLength int
}

var catalog = map[model.Provider]Spec{
	model.ProviderMPT: {
		Provider:        model.ProviderMPT,
		Carrier:         "Myanma Posts and Telecommunications",
		MCC:             "414",
		MNC:             "01",
		Transport:       TransportTokenREST,
		PatternHint:     "dash-grouped alphanumerics, e.g. ABCD-1234-EFGH-5678",
		DefaultEndpoint: "https://api.mpt.com.mm/esim",
		DefaultSMDP:     "https://smdp.mpt.com.mm",
		pattern:         regexp.MustCompile(`^[A-Z0-9]{4}(-[A-Z0-9]{4}){3,7}$`),
	},
	model.ProviderATOM: {
		Provider:        model.ProviderATOM,
		Carrier:         "ATOM Myanmar",
		MCC:             "414",
		MNC:             "06",
		Transport:       TransportAPIKeyREST,
		PatternHint:     "32-128 character base32 token",
		DefaultEndpoint: "https://api.atom.com.mm/esim",
		DefaultSMDP:     "https://smdp.atom.com.mm",
		pattern:         regexp.MustCompile(`^[A-Z2-7]{32,128}$`),
	},
	model.ProviderOoredoo: {
		Provider:        model.ProviderOoredoo,
		Carrier:         "Ooredoo Myanmar",
		MCC:             "414",
		MNC:             "05",
		Transport:       TransportSOAP,
		PatternHint:     "LPA URI, e.g. LPA:1$smdp.ooredoo.com.mm$MATCHINGID",
		DefaultEndpoint: "https://esim.ooredoo.com.mm/services/ActivationService",
		DefaultSMDP:     "https://smdp.ooredoo.com.mm",
		pattern:         regexp.MustCompile(`^LPA:1\$[A-Za-z0-9.\-]+(:[0-9]+)?\$[A-Za-z0-9\-]+(\$.*)?$`),
	},
	model.ProviderMytel: {
		Provider:        model.ProviderMytel,
		Carrier:         "Mytel",
		MCC:             "414",
		MNC:             "09",
		Transport:       TransportForm,
		PatternHint:     "20-50 character dash-separated token",
		DefaultEndpoint: "https://partner.mytel.com.mm",
		DefaultSMDP:     "https://smdp.mytel.com.mm",
		pattern:         regexp.MustCompile(`^[A-Za-z0-9]+(-[A-Za-z0-9]+)+$`),
		minLength:       20,
		maxLength:       50,
	},
}

// Lookup returns the catalog entry for a provider
func Lookup(p model.Provider) (Spec, bool) {
	spec, ok := catalog[p]
	return spec, ok
}

// Catalog returns every supported provider in display order
func Catalog() []Spec {
	specs := make([]Spec, 0, len(model.Providers))
	for _, p := range model.Providers {
		specs = append(specs, catalog[p])
	}
	return specs
}

// CheckFormat runs the local pattern check for the provider. It never touches the network.
func CheckFormat(p model.Provider, code string) error {
	spec, ok := catalog[p]
	if !ok {
		return &model.FormatError{Provider: p, Reason: "unsupported provider"}
	}
	if spec.minLength > 0 && len(code) < spec.minLength {
		return &model.FormatError{Provider: p, Reason: "code is too short; expected " + spec.PatternHint}
	}
	if spec.maxLength > 0 && len(code) > spec.maxLength {
		return &model.FormatError{Provider: p, Reason: "code is too long; expected " + spec.PatternHint}
	}
	if !spec.pattern.MatchString(code) {
		return &model.FormatError{Provider: p, Reason: "expected " + spec.PatternHint}
	}
	return nil
}
