// Package pricing содержит тарифную таблицу столовой.
package pricing

import "github.com/messops/mess-system/internal/model"

// Суммы хранятся в пайсах (сотых долях рупии), чтобы избежать ошибок
// округления при списаниях.
const (
	defaultMaleTwoTime   = 280000
	defaultFemaleTwoTime = 240000
	defaultMaleOneTime   = 150000
	defaultFemaleOneTime = 130000
)

// Table задаёт месячную плату в пайсах по полу и типу абонемента.
// Значения являются политикой заведения и могут быть переопределены
// конфигурацией, но никогда не пересчитываются из посещаемости.
type Table struct {
	MaleTwoTime   int64
	FemaleTwoTime int64
	MaleOneTime   int64
	FemaleOneTime int64
}

// DefaultTable возвращает тарифную таблицу со значениями по умолчанию.
func DefaultTable() Table {
	return Table{
		MaleTwoTime:   defaultMaleTwoTime,
		FemaleTwoTime: defaultFemaleTwoTime,
		MaleOneTime:   defaultMaleOneTime,
		FemaleOneTime: defaultFemaleOneTime,
	}
}

// PriceFor возвращает месячную плату и стоимость одного приёма пищи в пайсах.
// Функция тотальна: неизвестный пол трактуется как мужской, неизвестный
// тип абонемента — как двухразовый.
func (t Table) PriceFor(gender model.Gender, plan model.PlanType) (monthly, perMeal int64) {
	if plan == model.PlanOneTime {
		monthly = t.MaleOneTime
		if gender == model.GenderFemale {
			monthly = t.FemaleOneTime
		}
		return monthly, roundDiv(monthly, 30)
	}

	monthly = t.MaleTwoTime
	if gender == model.GenderFemale {
		monthly = t.FemaleTwoTime
	}
	return monthly, roundDiv(monthly, 60)
}

// roundDiv делит сумму в пайсах с округлением до ближайшего пайса.
func roundDiv(amount, divisor int64) int64 {
	return (amount + divisor/2) / divisor
}
