/*
validate.go - Per-item validation for scan events

PURPOSE:
  Checks the required fields of a ScanEvent before the server attempts
  persistence. Validation failures are item-level: one malformed scan is
  reported in the errors bucket and its siblings proceed unaffected.

REQUIRED FIELDS:
  clientId, busId, eventType (ingress|egress), localTimestamp

  routeId, geolocation, and deviceInfo are optional. subjectId is not
  validated here because it never appears in the payload; it comes from
  the authenticated principal.
*/
package scan

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator builds a validator that reports JSON field names, so that
// "missing required fields: busId" matches what the client actually sent.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateEvent checks the required fields of a scan event. Returns a
// *MissingFieldsError naming every offending field, or nil if the event
// is well-formed.
func ValidateEvent(ev ScanEvent) error {
	err := validate.Struct(ev)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return &MissingFieldsError{ClientID: ev.ClientID, Fields: fields}
}
