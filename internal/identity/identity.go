// Package identity содержит логику выдачи членских токенов.
package identity

import (
	"errors"
	"fmt"
)

// maxNumber — наибольший номер в пределах одной буквенной серии.
const maxNumber = 9999

// ErrCapacityExhausted возвращается, когда серии токенов закончились.
var ErrCapacityExhausted = errors.New("member token capacity exhausted")

// ErrMalformedToken возвращается при разборе токена неверного формата.
var ErrMalformedToken = errors.New("malformed member token")

// NextToken вычисляет следующий членский токен по последнему выданному.
// Формат: заглавная буква и номер 1–9999 (A1 … A9999, B1 …). Пустая строка
// означает, что токены ещё не выдавались, и даёт A1. Токены строго растут
// в порядке (буква, номер); вычислять следующий нужно от действительно
// последнего выданного токена под блокировкой (см. repository).
func NextToken(last string) (string, error) {
	if last == "" {
		return "A1", nil
	}

	letter, number, err := Parse(last)
	if err != nil {
		return "", err
	}

	if number < maxNumber {
		return fmt.Sprintf("%c%d", letter, number+1), nil
	}

	if letter == 'Z' {
		return "", ErrCapacityExhausted
	}

	return fmt.Sprintf("%c1", letter+1), nil
}

// Parse разбирает членский токен на букву серии и номер.
func Parse(token string) (letter byte, number int, err error) {
	if len(token) < 2 || len(token) > 5 {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedToken, token)
	}

	letter = token[0]
	if letter < 'A' || letter > 'Z' {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedToken, token)
	}

	for i := 1; i < len(token); i++ {
		ch := token[i]
		if ch < '0' || ch > '9' {
			return 0, 0, fmt.Errorf("%w: %q", ErrMalformedToken, token)
		}
		number = number*10 + int(ch-'0')
	}

	if number < 1 || number > maxNumber || token[1] == '0' {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedToken, token)
	}

	return letter, number, nil
}
