// Package money хранит денежные суммы в минимальных единицах валюты (для JOD
// это два знака после запятой в данном приложении) и переводит их в
// десятичные строки только на границе системы.
package money

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale количество знаков дробной части (минимальная единица валюты)
const Scale = 2

var (
	ErrInvalid   = errors.New("amount is not a valid decimal number")
	ErrPrecision = errors.New("amount has more than two fractional digits")
	ErrRange     = errors.New("amount is out of range")
)

// Amount сумма в минимальных единицах валюты (0.01)
type Amount int64

// Zero нулевая сумма
const Zero Amount = 0

// Parse разбирает десятичную строку ("30", "30.5", "30.00") в Amount.
// Дробная часть длиннее двух знаков считается ошибкой, а не округляется.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalid
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalid
	}
	return FromDecimal(d)
}

// FromDecimal переводит decimal в минимальные единицы без потери точности
func FromDecimal(d decimal.Decimal) (Amount, error) {
	minor := d.Shift(Scale)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, ErrPrecision
	}
	if !minor.BigInt().IsInt64() {
		return 0, ErrRange
	}
	return Amount(minor.IntPart()), nil
}

// Decimal возвращает сумму как decimal
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -Scale)
}

// String форматирует сумму с двумя знаками: 7000 -> "70.00"
func (a Amount) String() string {
	return a.Decimal().StringFixed(Scale)
}

func (a Amount) IsPositive() bool { return a > 0 }

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON принимает как строку ("30.00"), так и число (30.00)
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	v, err := Parse(raw)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Text сумма из запроса в исходном виде. Клиенты присылают ее и строкой ("30.00"),
// и числом (30); разбор и проверка остаются за Parse.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	switch {
	case raw == "null":
		*t = ""
		return nil
	case strings.HasPrefix(raw, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	*t = Text(raw)
	return nil
}

// Value сохраняет сумму в NUMERIC колонку в виде текста
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan читает NUMERIC колонку (lib/pq отдает ее как []byte)
func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return a.scanString(string(v))
	case string:
		return a.scanString(v)
	case int64:
		*a = Amount(v * 100)
		return nil
	case nil:
		*a = 0
		return nil
	default:
		return fmt.Errorf("money: unsupported scan type %T", src)
	}
}

func (a *Amount) scanString(s string) error {
	v, err := Parse(s)
	if err != nil {
		return fmt.Errorf("money: scan %q: %w", s, err)
	}
	*a = v
	return nil
}
