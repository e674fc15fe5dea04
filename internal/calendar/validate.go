package calendar

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"workcal/internal/model"
	"workcal/internal/recurrence"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.Split(f.Tag.Get("json"), ",")[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	v.RegisterStructValidation(eventStructLevel, model.CalendarEvent{})
	return v
}

// eventStructLevel holds the rules that span several fields.
func eventStructLevel(sl validator.StructLevel) {
	ev := sl.Current().Interface().(model.CalendarEvent)
	if ev.AllDay && !ev.StartTime.IsZero() && ev.EndTime.Equal(ev.StartTime) {
		sl.ReportError(ev.EndTime, "end_time", "EndTime", "allday_duration", "")
	}
}

var reasons = map[string]string{
	"required":        "is required",
	"notblank":        "must not be empty",
	"gtefield":        "must not be before %s",
	"unique":          "must not repeat %s",
	"oneof":           "must be one of %s",
	"allday_duration": "all-day event must have a positive duration",
}

// validateEvent checks ev and returns the first problem as a
// *ValidationError.
func validateEvent(ev model.CalendarEvent) error {
	if err := validate.Struct(ev); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fieldError(fieldErrs[0])
		}
		return invalid("", err.Error())
	}

	if ev.RecurrencePattern != nil {
		if err := recurrence.Validate(*ev.RecurrencePattern); err != nil {
			return invalid("recurrence_pattern", err.Error())
		}
	}
	return nil
}

// fieldError converts a validator failure into a *ValidationError named
// after the top-level JSON field, so "attendees[1].status" reports as
// "attendees".
func fieldError(fe validator.FieldError) error {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	if i := strings.IndexAny(field, ".["); i >= 0 {
		field = field[:i]
	}

	reason, ok := reasons[fe.Tag()]
	if !ok {
		return invalid(field, "failed "+fe.Tag())
	}
	if strings.Contains(reason, "%s") {
		param := fe.Param()
		if fe.Tag() == "gtefield" {
			param = "start_time"
		}
		reason = fmt.Sprintf(reason, param)
	}
	if field == "attendees" && fe.Field() != "attendees" {
		reason = fe.Field() + " " + reason
	}
	return invalid(field, reason)
}
