package course

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/coursefactory/core"
)

var (
	courseModeTag  = "course_mode"
	courseModeText = "mode must be one of preview or publish"

	courseStatusTag  = "course_status"
	courseStatusText = "invalid status"
)

// InitValidators registers the course validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(courseModeTag, courseModeValidation)
	core.RegisterCustomTranslation(validate, translator, courseModeTag, courseModeText)

	_ = validate.RegisterValidation(courseStatusTag, courseStatusValidation)
	core.RegisterCustomTranslation(validate, translator, courseStatusTag, courseStatusText)
}

// Custom Validators

func courseModeValidation(fl validator.FieldLevel) bool {
	switch Mode(fl.Field().String()) {
	case ModePreview, ModePublish:
		return true
	}
	return false
}

func courseStatusValidation(fl validator.FieldLevel) bool {
	s := Status(fl.Field().String())
	for _, status := range Statuses {
		if s == status {
			return true
		}
	}
	return false
}
