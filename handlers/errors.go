// handlers/errors.go
package handlers

import (
	"bytes"
	"errors"
	"log"
	"reflect"
	"strings"

	"quest-service/apperr"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ErrorHandler renders every error as {"error": {code, message, details?}}.
// Causes of INTERNAL errors are logged and never sent.
func ErrorHandler(c *fiber.Ctx, err error) error {
	appErr, ok := apperr.As(err)
	if !ok {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			appErr = fromFiberError(fe)
		} else {
			appErr = apperr.Internal(err)
		}
	}

	if appErr.Code == apperr.CodeInternal {
		log.Printf("❌ [HTTP] %s %s: %v", c.Method(), c.Path(), err)
	}

	body := fiber.Map{
		"code":    appErr.Code,
		"message": appErr.Message,
	}
	if len(appErr.Details) > 0 {
		body["details"] = appErr.Details
	}
	return c.Status(appErr.HTTPStatus()).JSON(fiber.Map{"error": body})
}

func fromFiberError(fe *fiber.Error) *apperr.Error {
	switch {
	case fe.Code == fiber.StatusNotFound:
		return apperr.NotFound(fe.Message)
	case fe.Code == fiber.StatusUnauthorized || fe.Code == fiber.StatusForbidden:
		return apperr.Unauthorized(fe.Message)
	case fe.Code >= 500:
		return apperr.Internal(fe)
	default:
		return apperr.Validation(fe.Message)
	}
}

// bindJSON parses the body into dst and runs its validate tags.
func bindJSON(c *fiber.Ctx, dst interface{}) error {
	// Beacons arrive as text/plain (a CORS-safelisted type) or with no
	// content type at all; both carry JSON.
	ct := c.Request().Header.ContentType()
	if len(ct) == 0 || bytes.HasPrefix(bytes.ToLower(ct), []byte(fiber.MIMETextPlain)) {
		c.Request().Header.SetContentType(fiber.MIMEApplicationJSON)
	}
	if err := c.BodyParser(dst); err != nil {
		log.Printf("⚠️ [HTTP] %s %s: unparseable body: %v", c.Method(), c.Path(), err)
		return apperr.Validation("invalid request body")
	}
	return validateStruct(dst)
}

func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return apperr.Validation(err.Error())
	}
	details := make(map[string]interface{}, len(ves))
	for _, fe := range ves {
		field := fe.Field()
		if field == "" {
			field = fe.StructField()
		}
		details[field] = fe.Tag()
	}
	return apperr.Validation("request validation failed").WithDetails(details)
}
