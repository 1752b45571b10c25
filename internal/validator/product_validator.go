package validator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"storeapi/internal/usecase"

	"github.com/go-playground/validator/v10"
)

type productValidator struct {
	validate *validator.Validate
}

// Usecaseは interface を依存注入
func NewProductValidator() usecase.ProductInputValidator {
	return &productValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// 作成時の入力を検証
func (v *productValidator) ValidateCreate(in usecase.CreateProductInput) error {
	return formatErrors(v.validate.Struct(in))
}

// 部分更新の入力を検証（指定されたフィールドだけ）
func (v *productValidator) ValidateUpdate(in usecase.UpdateProductInput) error {
	return formatErrors(v.validate.Struct(in))
}

// フィールドごとのメッセージを1行にまとめる
func formatErrors(err error) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	sort.Strings(msgs)
	return errors.New(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := snakeCase(fe.Field())

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s may not be blank", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// RatingRate -> rating_rate
func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
