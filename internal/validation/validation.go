// Package validation содержит функции валидации входных данных.
package validation

import (
	"unicode"

	"github.com/messops/mess-system/internal/identity"
)

// IsValidUsername проверяет имя пользователя: 3–30 символов, латиница,
// цифры, подчёркивание, точка и дефис.
func IsValidUsername(username string) bool {
	if len(username) < 3 || len(username) > 30 {
		return false
	}

	for _, ch := range username {
		switch {
		case ch >= 'A' && ch <= 'Z':
		case ch >= 'a' && ch <= 'z':
		case ch >= '0' && ch <= '9':
		case ch == '_' || ch == '.' || ch == '-':
		default:
			return false
		}
	}

	return true
}

// IsStrongPassword проверяет пароль: не короче восьми символов,
// хотя бы одна буква и хотя бы одна цифра.
func IsStrongPassword(password string) bool {
	if len(password) < 8 {
		return false
	}

	hasLetter := false
	hasDigit := false
	for _, ch := range password {
		if unicode.IsLetter(ch) {
			hasLetter = true
		}
		if unicode.IsDigit(ch) {
			hasDigit = true
		}
	}

	return hasLetter && hasDigit
}

// IsValidMemberToken проверяет формат членского токена (A1 … Z9999).
func IsValidMemberToken(token string) bool {
	_, _, err := identity.Parse(token)
	return err == nil
}
