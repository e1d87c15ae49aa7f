package api

import (
	"reflect"
	"strings"
	"sync"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	flightCodeTag = "flightcode"
	iataTag       = "iata"
)

var registerOnce sync.Once

// RegisterValidators installs the custom tags on gin's validator and makes
// field errors report json names.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(jsonFieldName)
		_ = v.RegisterValidation(flightCodeTag, func(fl validator.FieldLevel) bool {
			return domain.ValidFlightCode(strings.ToUpper(fl.Field().String()))
		})
		_ = v.RegisterValidation(iataTag, func(fl validator.FieldLevel) bool {
			return domain.ValidAirportCode(strings.ToUpper(fl.Field().String()))
		})
	})
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}
