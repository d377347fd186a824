package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports field names by their mapstructure tag so failures
// read as option keys.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks struct constraints. Failures name the option key and the
// violated rule, e.g. "server.port: failed max=65535 (value 70000)".
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &Error{Err: err}
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		msgs = append(msgs, fmt.Sprintf("%s: failed %s (value %v)", optionKey(fe.Namespace()), rule, fe.Value()))
	}

	return &Error{
		Key: optionKey(verrs[0].Namespace()),
		Err: errors.New(strings.Join(msgs, "; ")),
	}
}

// optionKey strips the root type from a validator namespace:
// "Config.server.port" becomes "server.port".
func optionKey(namespace string) string {
	_, key, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}
	return key
}
