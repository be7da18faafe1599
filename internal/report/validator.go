package report

import (
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	internalVersion "github.com/mailoreply/smoketest/internal/version"
)

var version = internalVersion.Version

var (
	versionRegex = regexp.MustCompile(`^(v\d+\.\d+\.\d+(\-\d+\-g[a-f0-9]{7})?)$`)
	argRegex     = regexp.MustCompile(`^\-\-[a-zA-Z]+(\=\PC*)?$`)
)

var customValidators = map[string]validator.Func{
	"smoketest_version": validateVersion,
	"args":              validateArgs,
}

func validateVersion(fl validator.FieldLevel) bool {
	version := fl.Field().String()

	// skip validation if empty or 'unknown' version
	if version == "" || version == "unknown" {
		return true
	}

	return versionRegex.MatchString(version)
}

func validateArgs(fl validator.FieldLevel) bool {
	args, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}

	for _, arg := range args {
		if !argRegex.MatchString(arg) {
			return false
		}
	}

	return true
}

// validateReportData checks the report document before it is written.
func validateReportData(reportData *jsonReport) error {
	validate := validator.New()
	for tag, validatorFunc := range customValidators {
		err := validate.RegisterValidation(tag, validatorFunc)
		if err != nil {
			return errors.Wrap(err, "couldn't build validator")
		}
	}

	err := validate.Struct(reportData)
	if err != nil {
		var validatorErr validator.ValidationErrors
		if errors.As(err, &validatorErr) {
			return &ValidationError{validatorErr}
		}

		return errors.Wrap(err, "couldn't validate report data")
	}

	return nil
}
