package usecase

import (
	"errors"
	"fmt"
	"net/http"

	repo "storeapi/internal/repository"
)

type ErrorCode string

const (
	CodeValidation  ErrorCode = "validation_error"
	CodeConflict    ErrorCode = "conflict"
	CodeNotFound    ErrorCode = "not_found"
	CodeUnavailable ErrorCode = "unavailable"
	CodeInternal    ErrorCode = "internal"
)

type HTTPError struct {
	Status  int
	Code    ErrorCode
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func NewHTTPError(status int, code ErrorCode, message string) error {
	return &HTTPError{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// IsCode は err が code の HTTPError かどうか。
func IsCode(err error, code ErrorCode) bool {
	he, ok := AsHTTPError(err)
	return ok && he.Code == code
}

func ValidationError(message string) error {
	return NewHTTPError(http.StatusBadRequest, CodeValidation, message)
}

// 重複も400で返す（既存クライアント互換）
func ConflictError(message string) error {
	return NewHTTPError(http.StatusBadRequest, CodeConflict, message)
}

func NotFoundError(message string) error {
	return NewHTTPError(http.StatusNotFound, CodeNotFound, message)
}

func UnavailableError(message string) error {
	return NewHTTPError(http.StatusServiceUnavailable, CodeUnavailable, message)
}

// ストレージ由来のエラーを呼び出し側に出せる形へ。生のDBエラーは出さない。
func storageError(err error) error {
	if errors.Is(err, repo.ErrUnavailable) {
		return UnavailableError("storage unavailable")
	}
	return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
}
