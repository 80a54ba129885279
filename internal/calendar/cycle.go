// Package calendar реализует чистую календарную арифметику биллинговых
// циклов: границы цикла, процент прорации, валидацию интервалов. Без
// побочных эффектов.
package calendar

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Dhoini/Billing-microservice/internal/domain"
)

// maxCycleIterations ограничивает итеративный обход границ цикла. Обход
// всегда конечен и возвращает ошибку вместо зацикливания.
const maxCycleIterations = 1200

// Validate проверяет пару интервал/количество до любой арифметики дат
func Validate(interval domain.Interval, count int) error {
	if count <= 0 {
		return domain.NewConfigurationError("interval_count", "must be at least 1")
	}
	switch interval {
	case domain.IntervalDay, domain.IntervalMonth, domain.IntervalMonthish, domain.IntervalYear:
		return nil
	default:
		return domain.NewConfigurationError("interval", "unknown interval "+string(interval))
	}
}

// daysInMonth возвращает число дней в месяце даты
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// daysInYear возвращает число дней в году
func daysInYear(year int) int {
	if time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC).YearDay() == 366 {
		return 366
	}
	return 365
}

// Date нормализует время к дате в UTC. Вся арифметика циклов работает с
// гранулярностью дня.
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AddMonthsClamped прибавляет месяцы, удерживая день привязки. День 31 в
// 30-дневном месяце сдвигается на последний день месяца, не перетекая в
// следующий.
func AddMonthsClamped(t time.Time, months int, anchorDay int) time.Time {
	year, month := t.Year(), int(t.Month())+months
	for month > 12 {
		month -= 12
		year++
	}
	for month < 1 {
		month += 12
		year--
	}

	day := anchorDay
	if dim := daysInMonth(year, time.Month(month)); day > dim {
		day = dim
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// boundary возвращает n-ю границу цикла от якоря. Граница 0 - сам якорь.
// Каждая граница считается напрямую от якоря, а не накоплением шагов,
// поэтому усечение коротких месяцев не накапливает дрейф.
func boundary(interval domain.Interval, count int, anchor time.Time, n int) time.Time {
	anchor = Date(anchor)
	if n == 0 {
		return anchor
	}

	switch interval {
	case domain.IntervalDay:
		return anchor.AddDate(0, 0, n*count)
	case domain.IntervalMonth:
		// Календарные месяцы: граница - первое число месяца группы
		first := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, time.UTC)
		return AddMonthsClamped(first, n*count, 1)
	case domain.IntervalMonthish:
		return AddMonthsClamped(anchor, n*count, anchor.Day())
	case domain.IntervalYear:
		// Календарные годы: граница - первое января
		return time.Date(anchor.Year()+n*count, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return anchor
}

// CycleStart возвращает начало цикла, содержащего референсную дату.
// Для дат внутри первого цикла это сам якорь.
func CycleStart(interval domain.Interval, count int, anchor, ref time.Time) (time.Time, error) {
	if err := Validate(interval, count); err != nil {
		return time.Time{}, err
	}

	anchor, ref = Date(anchor), Date(ref)
	if ref.Before(anchor) {
		return time.Time{}, domain.NewConfigurationError("reference_date",
			"reference date precedes the cycle anchor")
	}

	start := anchor
	for n := 1; ; n++ {
		if n > maxCycleIterations {
			return time.Time{}, domain.NewConfigurationError("interval",
				"cycle walk exceeded iteration guard")
		}
		next := boundary(interval, count, anchor, n)
		if next.After(ref) {
			return start, nil
		}
		start = next
	}
}

// CycleEnd возвращает последний день цикла, содержащего референсную дату.
// Установленный override заменяет естественную границу: более ранний
// усекает период, более поздний растягивает. Выравнивание последующих
// циклов от этого не ломается - следующий цикл начинается на следующий
// день после фактического конца.
func CycleEnd(interval domain.Interval, count int, anchor, ref time.Time, override *time.Time) (time.Time, error) {
	if override != nil {
		return Date(*override), nil
	}

	start, err := CycleStart(interval, count, anchor, ref)
	if err != nil {
		return time.Time{}, err
	}

	next, err := NextCycleStart(interval, count, anchor, start)
	if err != nil {
		return time.Time{}, err
	}
	return next.AddDate(0, 0, -1), nil
}

// NextCycleStart возвращает наименьшую границу цикла строго после даты
func NextCycleStart(interval domain.Interval, count int, anchor, after time.Time) (time.Time, error) {
	if err := Validate(interval, count); err != nil {
		return time.Time{}, err
	}

	anchor, after = Date(anchor), Date(after)
	for n := 1; n <= maxCycleIterations; n++ {
		next := boundary(interval, count, anchor, n)
		if next.After(after) {
			return next, nil
		}
	}
	return time.Time{}, domain.NewConfigurationError("interval",
		"cycle walk exceeded iteration guard")
}

// fullIntervalDays возвращает длину полного интервала в днях для периода,
// начинающегося в periodStart. Короткие и длинные месяцы нормализуются
// по фактической длине месяца, годы - по длине года.
func fullIntervalDays(interval domain.Interval, count int, periodStart time.Time) int {
	switch interval {
	case domain.IntervalDay:
		return count
	case domain.IntervalMonth:
		days := 0
		year, month := periodStart.Year(), periodStart.Month()
		for i := 0; i < count; i++ {
			days += daysInMonth(year, month)
			month++
			if month > 12 {
				month = 1
				year++
			}
		}
		return days
	case domain.IntervalMonthish:
		next := AddMonthsClamped(periodStart, count, periodStart.Day())
		return int(next.Sub(Date(periodStart)).Hours() / 24)
	case domain.IntervalYear:
		days := 0
		for i := 0; i < count; i++ {
			days += daysInYear(periodStart.Year() + i)
		}
		return days
	}
	return 0
}

// ProrationPercent возвращает долю полного интервала, покрытую периодом
// [periodStart, periodEnd] с включенными границами. Полный календарный год
// дает ровно 1.00, усеченный период - пропорционально меньшую долю.
// Растянутый через override период может дать долю больше единицы.
func ProrationPercent(interval domain.Interval, count int, periodStart, periodEnd time.Time) (decimal.Decimal, error) {
	if err := Validate(interval, count); err != nil {
		return decimal.Zero, err
	}

	periodStart, periodEnd = Date(periodStart), Date(periodEnd)
	if periodEnd.Before(periodStart) {
		return decimal.Zero, domain.NewConfigurationError("period",
			"period end precedes period start")
	}

	elapsed := int(periodEnd.Sub(periodStart).Hours()/24) + 1
	full := fullIntervalDays(interval, count, periodStart)
	if full <= 0 {
		return decimal.Zero, domain.NewConfigurationError("interval",
			"full interval has no days")
	}

	return decimal.NewFromInt(int64(elapsed)).
		DivRound(decimal.NewFromInt(int64(full)), 4), nil
}

// IsFullCycle сообщает, покрывает ли период ровно один полный интервал
func IsFullCycle(interval domain.Interval, count int, periodStart, periodEnd time.Time) bool {
	percent, err := ProrationPercent(interval, count, periodStart, periodEnd)
	if err != nil {
		return false
	}
	return percent.Equal(decimal.NewFromInt(1))
}
