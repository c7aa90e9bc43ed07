package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
)

// Validator wraps go-playground/validator with English messages keyed by JSON
// field names.
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// New builds a validator with the default English translations and the
// SCCMS custom tags registered.
func New() *Validator {
	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})

	v := &Validator{validate: validate, translator: translator}
	v.registerGender()
	return v
}

// RegisterEnum adds a tag accepting only the given values.
func (v *Validator) RegisterEnum(tag string, values ...string) {
	allowed := make(map[string]struct{}, len(values))
	for _, value := range values {
		allowed[value] = struct{}{}
	}
	_ = v.validate.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		_, ok := allowed[fl.Field().String()]
		return ok
	})
	v.registerTranslation(tag, "{0} must be one of ["+strings.Join(values, " ")+"]")
}

// Struct validates s and converts failures into a VALIDATION_ERROR carrying
// one message per failing field.
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, fe.Translate(v.translator))
	}
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid payload"), details...)
}

func (v *Validator) registerGender() {
	_ = v.validate.RegisterValidation("gender", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "M", "F":
			return true
		}
		return false
	})
	v.registerTranslation("gender", "{0} must be M or F")
}

func (v *Validator) registerTranslation(tag, text string) {
	_ = v.validate.RegisterTranslation(
		tag, v.translator,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}
