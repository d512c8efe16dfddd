package model

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// ServiceSlots are the bookable times: lunch then dinner.
var ServiceSlots = []string{
	"13:00", "13:30", "14:00", "14:30",
	"20:00", "20:30", "21:00", "21:30", "22:00",
}

// IsServiceSlot reports whether t is one of ServiceSlots.
func IsServiceSlot(t string) bool {
	for _, s := range ServiceSlots {
		if s == t {
			return true
		}
	}
	return false
}

// Party size bounds, inclusive.
const (
	MinPartySize = 1
	MaxPartySize = 12
)

var phonePattern = regexp.MustCompile(`^[0-9]{9}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("phone9", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("slot", func(fl validator.FieldLevel) bool {
		return IsServiceSlot(fl.Field().String())
	})
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(DateLayout, fl.Field().String())
		return err == nil
	})
	return v
}

var fieldMessages = map[string]string{
	"first_name": "first name is required",
	"last_name":  "last name is required",
	"phone":      "phone must be 9 digits",
	"date":       "date must be YYYY-MM-DD",
	"time":       "time must be one of the service slots",
	"party_size": "party size must be between 1 and 12",
}

// NewReservation is the input accepted by Store.Create.
type NewReservation struct {
	FirstName string `json:"first_name" validate:"required,max=80"`
	LastName  string `json:"last_name" validate:"required,max=120"`
	Phone     string `json:"phone" validate:"phone9"`
	Date      string `json:"date" validate:"isodate"`
	Time      string `json:"time" validate:"slot"`
	PartySize int    `json:"party_size" validate:"min=1,max=12"`
}

// Normalize trims names and strips whitespace from the phone number.
func (n NewReservation) Normalize() NewReservation {
	n.FirstName = strings.TrimSpace(n.FirstName)
	n.LastName = strings.TrimSpace(n.LastName)
	n.Phone = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, n.Phone)
	n.Date = strings.TrimSpace(n.Date)
	n.Time = strings.TrimSpace(n.Time)
	return n
}

// Validate checks the creation invariants.  today is the creation day
// (YYYY-MM-DD) in the restaurant's zone; the date may not precede it.
// The input is expected to be normalized.
func (n NewReservation) Validate(today string) error {
	fields := map[string]string{}
	if err := validate.Struct(n); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			name := fe.Field()
			if msg, ok := fieldMessages[name]; ok {
				fields[name] = msg
			} else {
				fields[name] = "failed " + fe.Tag()
			}
		}
	}
	if _, bad := fields["date"]; !bad && n.Date < today {
		fields["date"] = "date must not be in the past"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
