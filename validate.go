// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

const (
	// bcrypt ignores everything past 72 bytes, so we refuse it instead.
	maxPasswordBytes = 72
)

var (
	loginPattern = regexp.MustCompile(`^[_'.@A-Za-z0-9-]*$`)

	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("login", func(fl validator.FieldLevel) bool {
		return loginPattern.MatchString(fl.Field().String())
	})
	return v
}

func checkLogin(login string) error {
	return checkField("login", login, "required,max=50,login")
}

func checkEmail(email string) error {
	return checkField("email", email, "required,min=5,max=100,email")
}

func checkPassword(pass string) error {
	if err := checkField("password", pass, "required,min=4"); err != nil {
		return err
	}
	if len(pass) > maxPasswordBytes {
		return &FieldValidationError{
			Field:   "password",
			Message: fmt.Sprintf("must be at most %d bytes", maxPasswordBytes),
		}
	}
	return nil
}

func checkName(field, name string) error {
	return checkField(field, name, "max=50")
}

// checkLangKey allows an empty key, the default language is used then.
func checkLangKey(key string) error {
	return checkField("langKey", key, "omitempty,min=2,max=5")
}

func checkField(field, value, tag string) error {
	err := validate.Var(value, tag)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &FieldValidationError{Field: field, Message: describeTag(verrs[0])}
	}
	return &FieldValidationError{Field: field, Message: err.Error()}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be empty"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "email":
		return "is not a valid email address"
	case "login":
		return "may only contain letters, digits and _'.@-"
	}
	return fmt.Sprintf("failed %q check", fe.Tag())
}
