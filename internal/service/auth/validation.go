package auth

import (
	"strings"

	xerrors "kalpla-auth/internal/pkg/errors"

	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func (c *Coordinator) validateEmail(email string) error {
	if err := c.validate.Var(strings.TrimSpace(email), "required,email"); err != nil {
		return xerrors.InvalidInput("Please enter a valid email address.")
	}
	return nil
}

// validatePhone expects E.164, e.g. +15555550123
func (c *Coordinator) validatePhone(phone string) error {
	if err := c.validate.Var(phone, "required,e164"); err != nil {
		return xerrors.InvalidInput("Please enter a phone number in international format, e.g. +15555550123.")
	}
	return nil
}

func (c *Coordinator) validateCode(code string) error {
	if err := c.validate.Var(strings.TrimSpace(code), "required"); err != nil {
		return xerrors.InvalidInput("Please enter the verification code.")
	}
	return nil
}

func (c *Coordinator) validateRequired(value, message string) error {
	if err := c.validate.Var(value, "required"); err != nil {
		return xerrors.InvalidInput(message)
	}
	return nil
}
