package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/go-playground/validator/v10"

	"github.com/mbeoliero/huddle/pkg/errcode"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// bindJSON decodes the JSON body into req and validates it
func bindJSON(c *app.RequestContext, req any) error {
	if err := c.BindJSON(req); err != nil {
		return errcode.ErrInvalidParam.Wrap(err)
	}
	return check(req)
}

// bindQuery decodes the query string into req and validates it
func bindQuery(c *app.RequestContext, req any) error {
	if err := c.BindQuery(req); err != nil {
		return errcode.ErrInvalidParam.Wrap(err)
	}
	return check(req)
}

func check(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return errcode.ErrInvalidParam.Wrap(err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field(), fe.ActualTag()))
	}
	return errcode.ErrInvalidParam.Wrap(errors.New(strings.Join(msgs, ", ")))
}
