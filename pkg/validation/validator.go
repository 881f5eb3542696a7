package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/citytransfer/platform/pkg/common"
)

// Validate is the global validator instance
var Validate *validator.Validate

func init() {
	Validate = validator.New()

	_ = Validate.RegisterValidation("booking_status", validateBookingStatus)
	_ = Validate.RegisterValidation("payment_status", validatePaymentStatus)
	_ = Validate.RegisterValidation("payout_method", validatePayoutMethod)
	_ = Validate.RegisterValidation("user_role", validateUserRole)
	_ = Validate.RegisterValidation("currency", validateCurrency)
}

// ValidateStruct validates a struct and returns a validation AppError on failure
func ValidateStruct(s interface{}) error {
	err := Validate.Struct(s)
	if err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return common.NewValidationError(formatErrors(validationErrors))
		}
		return err
	}
	return nil
}

func formatErrors(errs validator.ValidationErrors) string {
	messages := make([]string, 0, len(errs))
	for _, fieldErr := range errs {
		messages = append(messages, fmt.Sprintf("%s failed on %s", strings.ToLower(fieldErr.Field()), fieldErr.Tag()))
	}
	return strings.Join(messages, "; ")
}

func validateBookingStatus(fl validator.FieldLevel) bool {
	status := fl.Field().String()
	valid := []string{"pending", "confirmed", "in_auction", "auction_awarded", "assigned", "in_progress", "completed", "cancelled"}
	return contains(valid, status)
}

func validatePaymentStatus(fl validator.FieldLevel) bool {
	status := fl.Field().String()
	valid := []string{"unpaid", "paid", "refunded"}
	return contains(valid, status)
}

func validatePayoutMethod(fl validator.FieldLevel) bool {
	method := fl.Field().String()
	valid := []string{"bank_transfer", "paypal", "card", "wire", "check"}
	return contains(valid, method)
}

func validateUserRole(fl validator.FieldLevel) bool {
	role := fl.Field().String()
	valid := []string{"customer", "partner", "admin"}
	return contains(valid, role)
}

func validateCurrency(fl validator.FieldLevel) bool {
	code := fl.Field().String()
	return len(code) == 3 && strings.ToUpper(code) == code
}

func contains(slice []string, item string) bool {
	item = strings.ToLower(strings.TrimSpace(item))
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// ValidateAmount validates a monetary amount
func ValidateAmount(amount float64) error {
	if amount < 0 {
		return fmt.Errorf("amount cannot be negative: %f", amount)
	}
	if amount > 1000000 {
		return fmt.Errorf("amount exceeds maximum allowed: %f", amount)
	}
	return nil
}

// ValidatePeriod checks that a settlement period is well formed
func ValidatePeriod(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("period start and end are required")
	}
	if !end.After(start) {
		return fmt.Errorf("period end must be after period start")
	}
	return nil
}
