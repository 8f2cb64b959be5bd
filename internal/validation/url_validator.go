package validation

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

// Hostnames and path patterns the conversion backend accepts. Anything
// else is rejected before a single network call is made.
var sourcePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(https?://)?(www\.)?youtube\.com/watch\?v=[\w-]+`),
	regexp.MustCompile(`^(https?://)?(www\.)?youtu\.be/[\w-]+`),
	regexp.MustCompile(`^(https?://)?(www\.)?youtube\.com/shorts/[\w-]+`),
	regexp.MustCompile(`^(https?://)?music\.youtube\.com/watch\?v=[\w-]+`),
}

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("conversion_source", validateConversionSource)
}

// ValidateSourceURL checks a source URL against the allow-list of
// supported hosts.
func ValidateSourceURL(raw string) error {
	if err := validate.Var(raw, "required,conversion_source"); err != nil {
		return fmt.Errorf("unsupported source URL %q: %w", raw, err)
	}
	return nil
}

func validateConversionSource(fl validator.FieldLevel) bool {
	raw := fl.Field().String()

	for _, pattern := range sourcePatterns {
		if pattern.MatchString(raw) {
			return true
		}
	}
	return false
}
