// Package phone reports whether imported numbers are dialable.
// It never rewrites the stored dedup key.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is assumed for numbers without a leading '+'.
const DefaultRegion = "US"

// Result describes one checked number.
type Result struct {
	Valid  bool   `json:"valid" yaml:"valid"`
	E164   string `json:"e164,omitempty" yaml:"e164,omitempty"`
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
}

// Check parses number against region and reports its E.164 form when valid.
// An empty region means DefaultRegion.
func Check(number, region string) Result {
	number = strings.TrimSpace(number)
	if number == "" {
		return Result{}
	}
	if region == "" {
		region = DefaultRegion
	}

	parsed, err := phonenumbers.Parse(number, strings.ToUpper(region))
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return Result{}
	}

	return Result{
		Valid:  true,
		E164:   phonenumbers.Format(parsed, phonenumbers.E164),
		Region: phonenumbers.GetRegionCodeForNumber(parsed),
	}
}
