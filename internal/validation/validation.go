// Package validation rejects malformed input before any repository or
// catalog call is made.
package validation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/commerce-service/internal/domain"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("name"); name != "" {
			return name
		}
		return f.Name
	})
	_ = v.RegisterValidation("objectid", func(fl validator.FieldLevel) bool {
		return primitive.IsValidObjectID(fl.Field().String())
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

type AddItemInput struct {
	UserID    string `name:"user_id" validate:"required,objectid"`
	ProductID string `name:"product_id" validate:"required,objectid"`
	Quantity  int    `name:"quantity" validate:"gt=0"`
}

type UpdateItemInput struct {
	UserID    string `name:"user_id" validate:"required,objectid"`
	ProductID string `name:"product_id" validate:"required,objectid"`
	Quantity  int    `name:"quantity" validate:"gte=0"`
}

type CartItemRef struct {
	UserID    string `name:"user_id" validate:"required,objectid"`
	ProductID string `name:"product_id" validate:"required,objectid"`
}

type RedeemInput struct {
	UserID      string `name:"user_id" validate:"required,objectid"`
	Points      int64  `name:"points" validate:"gt=0"`
	Description string `name:"description" validate:"notblank"`
}

type EarnInput struct {
	UserID      string `name:"user_id" validate:"required,objectid"`
	Points      int64  `name:"points" validate:"gt=0"`
	Description string `name:"description" validate:"notblank"`
	Reference   string `name:"reference" validate:"max=128"`
}

// Struct validates one of the input types above and returns the first
// violation as a *domain.ValidationError.
func Struct(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.Internal(err, "validate input")
	}
	fe := verrs[0]
	return &domain.ValidationError{Field: fe.Field(), Reason: reason(fe)}
}

// UserID checks a lone user identifier.
func UserID(id string) error {
	if !primitive.IsValidObjectID(id) {
		return &domain.ValidationError{Field: "user_id", Reason: "must be a 24 character hex object id"}
	}
	return nil
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "objectid":
		return "must be a 24 character hex object id"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return "is invalid"
	}
}
