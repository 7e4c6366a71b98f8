package clients

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

func (s *Service) normalise(form ClientForm) (ClientForm, error) {
	if err := httpx.Validate(s.validate, form); err != nil {
		return ClientForm{}, err
	}
	form.Name = strings.TrimSpace(form.Name)
	if form.Name == "" {
		return ClientForm{}, fmt.Errorf("%w: name: required", httpx.ErrValidation)
	}
	form.Address = strings.TrimSpace(form.Address)
	phone, err := shared.NormalizePhone(form.Phone, s.region)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidPhone) {
			return ClientForm{}, fmt.Errorf("%w: phone: %v", httpx.ErrValidation, err)
		}
		return ClientForm{}, err
	}
	form.Phone = phone
	if form.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*form.Email))
		if email == "" {
			form.Email = nil
		} else {
			form.Email = &email
		}
	}
	return form, nil
}
