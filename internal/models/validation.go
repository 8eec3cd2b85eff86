package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// MaxFileSize is the largest file accepted for analysis
const MaxFileSize = 10 * 1024 * 1024

// SupportedFileTypes lists the mime types accepted for analysis
var SupportedFileTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"video/mp4",
	"video/webm",
	"application/pdf",
	"text/plain",
	"text/csv",
	"application/json",
}

var (
	ErrValidation          = errors.New("validation failed")
	ErrFileTooLarge        = errors.New("file too large")
	ErrUnsupportedFileType = errors.New("unsupported file type")
)

// ValidationError describes a malformed or out-of-range request field
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%v: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidation, e.Err}
	}
	return []error{ErrValidation}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// validatorInstance shares gin's "binding" tags so HTTP and bus payloads follow the same rules
func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.SetTagName("binding")
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate applies defaults and checks a request variant
func Validate(req Request) error {
	if req == nil || reflect.ValueOf(req).IsNil() {
		return &ValidationError{Reason: "request is nil"}
	}
	if d, ok := req.(defaulter); ok {
		d.setDefaults()
	}
	if err := validatorInstance().Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ValidationError{Field: fe.Namespace()[strings.Index(fe.Namespace(), ".")+1:], Reason: describeTag(fe)}
		}
		return &ValidationError{Reason: err.Error()}
	}
	if c, ok := req.(checker); ok {
		return c.check()
	}
	return nil
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q", fe.Tag())
	}
}

// CheckFileType rejects mime types outside the allow-list
func CheckFileType(mimeType string) error {
	for _, t := range SupportedFileTypes {
		if t == mimeType {
			return nil
		}
	}
	return &ValidationError{
		Field:  "type",
		Reason: fmt.Sprintf("%q is not supported; use an image, video, PDF, or text file", mimeType),
		Err:    ErrUnsupportedFileType,
	}
}

// CheckFileSize rejects payloads over MaxFileSize
func CheckFileSize(size int) error {
	if size > MaxFileSize {
		return &ValidationError{
			Field:  "file",
			Reason: fmt.Sprintf("size must be less than 10MB (got %d bytes)", size),
			Err:    ErrFileTooLarge,
		}
	}
	return nil
}

// CheckFile runs both file preconditions
func CheckFile(mimeType string, size int) error {
	if err := CheckFileType(mimeType); err != nil {
		return err
	}
	return CheckFileSize(size)
}
