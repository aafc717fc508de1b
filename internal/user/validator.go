package user

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/apperr"
)

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

var (
	handlePattern  = regexp.MustCompile(`^[a-z0-9]+$`)
	lowerPattern   = regexp.MustCompile(`[a-z]`)
	digitPattern   = regexp.MustCompile(`[0-9]`)
	specialPattern = regexp.MustCompile(`[!@#$%^&*()_+\-=\[\]{};':"\\|,.<>/?]`)
)

// SignupInput is the registration payload. There is deliberately no role field.
type SignupInput struct {
	Handle   string
	Email    string
	Password string
}

type LoginInput struct {
	Email    string
	Password string
}

type fieldRules struct {
	field string
	value string
	rules []validation.Rule
}

// ValidateSignup checks the full credential policy and returns the first
// violated rule as a validation error. Fields are checked handle, email,
// password, after a presence check on all three.
func ValidateSignup(in SignupInput) error {
	required := validation.Required.Error("All fields are required")
	return firstViolation(
		fieldRules{"username", in.Handle, []validation.Rule{required}},
		fieldRules{"email", in.Email, []validation.Rule{required}},
		fieldRules{"password", in.Password, []validation.Rule{required}},
		fieldRules{"username", in.Handle, []validation.Rule{
			validation.Length(4, 0).Error("Username must have 4 characters"),
			validation.Match(handlePattern).Error("Only lowercase letters and numbers allowed"),
			validation.Length(0, 16).Error("Username cannot be longer than 16 characters"),
		}},
		fieldRules{"email", in.Email, []validation.Rule{
			is.Email.Error("Enter a valid email"),
		}},
		fieldRules{"password", in.Password, []validation.Rule{
			validation.RuneLength(6, 0).Error("Minimum password length is 6"),
			validation.Match(lowerPattern).Error("At least one lowercase letter required"),
			validation.Match(digitPattern).Error("At least one number required"),
			validation.Match(specialPattern).Error("At least one special character required"),
			validation.Length(0, maxPasswordBytes).Error("Password cannot be longer than 72 bytes"),
		}},
	)
}

// ValidateLogin applies the reduced login policy. It only screens out
// malformed requests before the store is consulted.
func ValidateLogin(in LoginInput) error {
	return firstViolation(
		fieldRules{"email", in.Email, []validation.Rule{
			validation.Required.Error("Please enter a valid email"),
			is.Email.Error("Please enter a valid email"),
		}},
		fieldRules{"password", in.Password, []validation.Rule{
			validation.Required.Error("Password must be at least 6 characters"),
			validation.RuneLength(6, 0).Error("Password must be at least 6 characters"),
		}},
	)
}

func firstViolation(checks ...fieldRules) error {
	for _, c := range checks {
		if err := validation.Validate(c.value, c.rules...); err != nil {
			return apperr.Validation(c.field, err.Error())
		}
	}
	return nil
}
