package calendar

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/Billing-microservice/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestValidateRejectsNonPositiveCount(t *testing.T) {
	err := Validate(domain.IntervalMonth, 0)
	require.Error(t, err)
	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	err = Validate(domain.IntervalMonth, -3)
	require.Error(t, err)
}

func TestValidateRejectsUnknownInterval(t *testing.T) {
	err := Validate(domain.Interval("week"), 1)
	require.Error(t, err)
}

func TestCycleStartFirstCycleIsAnchor(t *testing.T) {
	anchor := date(2024, time.March, 10)

	start, err := CycleStart(domain.IntervalMonthish, 1, anchor, date(2024, time.March, 25))
	require.NoError(t, err)
	assert.Equal(t, anchor, start)
}

func TestCycleStartRejectsReferenceBeforeAnchor(t *testing.T) {
	anchor := date(2024, time.March, 10)

	_, err := CycleStart(domain.IntervalMonthish, 1, anchor, date(2024, time.March, 9))
	require.Error(t, err)
}

func TestCycleEndMonthAlignedToCalendarMonth(t *testing.T) {
	// Подписка с 10 марта, календарный месяц: первый цикл кончается 31 марта
	anchor := date(2024, time.March, 10)

	end, err := CycleEnd(domain.IntervalMonth, 1, anchor, anchor, nil)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.March, 31), end)
}

func TestCycleEndMonthishKeepsAnchorDay(t *testing.T) {
	anchor := date(2024, time.March, 10)

	end, err := CycleEnd(domain.IntervalMonthish, 1, anchor, anchor, nil)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.April, 9), end)
}

func TestCycleEndOverrideReplacesNaturalBoundary(t *testing.T) {
	anchor := date(2024, time.March, 1)
	override := date(2024, time.March, 15)

	end, err := CycleEnd(domain.IntervalMonth, 1, anchor, anchor, &override)
	require.NoError(t, err)
	assert.Equal(t, override, end)
}

func TestMonthishDay31ClampsWithoutDrift(t *testing.T) {
	// Привязка к 31 числу: короткие месяцы усекаются до последнего дня,
	// но день привязки не дрейфует
	anchor := date(2024, time.January, 31)

	b1, err := NextCycleStart(domain.IntervalMonthish, 1, anchor, anchor)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.February, 29), b1)

	b2, err := NextCycleStart(domain.IntervalMonthish, 1, anchor, b1)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.March, 31), b2)

	b3, err := NextCycleStart(domain.IntervalMonthish, 1, anchor, b2)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.April, 30), b3)
}

func TestMonthishTwelveCyclesNoDrift(t *testing.T) {
	anchor := date(2024, time.January, 15)

	cursor := anchor
	for i := 0; i < 12; i++ {
		next, err := NextCycleStart(domain.IntervalMonthish, 1, anchor, cursor)
		require.NoError(t, err)
		cursor = next
	}
	assert.Equal(t, date(2025, time.January, 15), cursor)
}

func TestProrationFullYearIsOne(t *testing.T) {
	percent, err := ProrationPercent(domain.IntervalYear, 1,
		date(2023, time.January, 1), date(2023, time.December, 31))
	require.NoError(t, err)
	assert.True(t, percent.Equal(decimal.NewFromInt(1)), "got %s", percent)
}

func TestProrationFullLeapYearIsOne(t *testing.T) {
	percent, err := ProrationPercent(domain.IntervalYear, 1,
		date(2024, time.January, 1), date(2024, time.December, 31))
	require.NoError(t, err)
	assert.True(t, percent.Equal(decimal.NewFromInt(1)), "got %s", percent)
}

func TestProrationHalfYear(t *testing.T) {
	// Полгода из невисокосного года: 181/365 = 0.4959
	percent, err := ProrationPercent(domain.IntervalYear, 1,
		date(2023, time.January, 1), date(2023, time.June, 30))
	require.NoError(t, err)
	assert.True(t, percent.GreaterThanOrEqual(decimal.RequireFromString("0.49")), "got %s", percent)
	assert.True(t, percent.LessThanOrEqual(decimal.RequireFromString("0.50")), "got %s", percent)
}

func TestProrationHalfMonth(t *testing.T) {
	// 1-15 ноября включительно: 15/30 = 0.5
	percent, err := ProrationPercent(domain.IntervalMonth, 1,
		date(2023, time.November, 1), date(2023, time.November, 15))
	require.NoError(t, err)
	assert.True(t, percent.Equal(decimal.RequireFromString("0.5")), "got %s", percent)
}

func TestProrationStretchedPeriodExceedsOne(t *testing.T) {
	// Растянутый через override период покрывает больше полного интервала
	percent, err := ProrationPercent(domain.IntervalMonth, 1,
		date(2023, time.November, 1), date(2023, time.December, 15))
	require.NoError(t, err)
	assert.True(t, percent.GreaterThan(decimal.NewFromInt(1)), "got %s", percent)
}

func TestProrationRejectsInvertedPeriod(t *testing.T) {
	_, err := ProrationPercent(domain.IntervalMonth, 1,
		date(2023, time.November, 15), date(2023, time.November, 1))
	require.Error(t, err)
}

func TestIsFullCycle(t *testing.T) {
	assert.True(t, IsFullCycle(domain.IntervalMonth, 1,
		date(2023, time.November, 1), date(2023, time.November, 30)))
	assert.False(t, IsFullCycle(domain.IntervalMonth, 1,
		date(2023, time.November, 1), date(2023, time.November, 15)))
}

func TestDayIntervalBoundaries(t *testing.T) {
	anchor := date(2024, time.May, 1)

	end, err := CycleEnd(domain.IntervalDay, 7, anchor, anchor, nil)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.May, 7), end)

	next, err := NextCycleStart(domain.IntervalDay, 7, anchor, anchor)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.May, 8), next)
}

func TestCycleStartIterationGuard(t *testing.T) {
	// Референсная дата дальше, чем может пройти обход границ
	anchor := date(2000, time.January, 1)
	far := anchor.AddDate(0, 0, (maxCycleIterations+10)*1)

	_, err := CycleStart(domain.IntervalDay, 1, anchor, far)
	require.Error(t, err)
}

func TestDateNormalizesToUTCMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	ts := time.Date(2024, time.March, 10, 23, 45, 1, 0, loc)

	normalized := Date(ts)
	assert.Equal(t, date(2024, time.March, 10), normalized)
}
