package models

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator with the agenda rules registered.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonName)
		validate.RegisterStructValidation(agendaWindow, AgendaConfig{})
	})
	return validate
}

func agendaWindow(sl validator.StructLevel) {
	c := sl.Current().Interface().(AgendaConfig)
	if c.EndTime <= c.StartTime {
		sl.ReportError(c.EndTime, "endTime", "EndTime", "gtfield", "StartTime")
		return
	}
	if c.MeetingDuration > 0 && int(c.EndTime-c.StartTime) < c.MeetingDuration {
		sl.ReportError(c.MeetingDuration, "meetingDuration", "MeetingDuration", "window", "")
	}
}

// jsonName makes validation errors name fields the way clients send them.
func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}
