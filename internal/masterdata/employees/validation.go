package employees

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

// NormalizeCPF strips punctuation and verifies the two check digits.
func NormalizeCPF(raw string) (string, error) {
	digits := make([]byte, 0, 11)
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= '0' && c <= '9':
			digits = append(digits, c)
		case c == '.' || c == '-' || c == ' ':
		default:
			return "", fmt.Errorf("%w: cpf: unexpected character %q", httpx.ErrValidation, c)
		}
	}
	if len(digits) != 11 {
		return "", fmt.Errorf("%w: cpf: must have 11 digits", httpx.ErrValidation)
	}
	allSame := true
	for _, d := range digits[1:] {
		if d != digits[0] {
			allSame = false
			break
		}
	}
	if allSame || cpfDigit(digits[:9]) != digits[9] || cpfDigit(digits[:10]) != digits[10] {
		return "", fmt.Errorf("%w: cpf: check digits do not match", httpx.ErrValidation)
	}
	return string(digits), nil
}

func cpfDigit(prefix []byte) byte {
	sum := 0
	weight := len(prefix) + 1
	for _, d := range prefix {
		sum += int(d-'0') * weight
		weight--
	}
	rest := sum % 11
	if rest < 2 {
		return '0'
	}
	return byte('0' + 11 - rest)
}

func (s *Service) normalise(form EmployeeForm) (EmployeeForm, error) {
	if err := httpx.Validate(s.validate, form); err != nil {
		return EmployeeForm{}, err
	}
	form.Name = strings.TrimSpace(form.Name)
	if form.Name == "" {
		return EmployeeForm{}, fmt.Errorf("%w: name: required", httpx.ErrValidation)
	}
	form.CPF = trimmed(form.CPF)
	if form.CPF != nil {
		cpf, err := NormalizeCPF(*form.CPF)
		if err != nil {
			return EmployeeForm{}, err
		}
		form.CPF = &cpf
	}
	form.Phone = trimmed(form.Phone)
	if form.Phone != nil {
		phone, err := shared.NormalizePhone(*form.Phone, s.region)
		if err != nil {
			if errors.Is(err, shared.ErrInvalidPhone) {
				return EmployeeForm{}, fmt.Errorf("%w: phone: %v", httpx.ErrValidation, err)
			}
			return EmployeeForm{}, err
		}
		form.Phone = &phone
	}
	form.Email = trimmed(form.Email)
	form.Position = trimmed(form.Position)
	form.Observations = trimmed(form.Observations)
	return form, nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
