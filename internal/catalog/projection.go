package catalog

import (
	"math"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Projection — чистая функция проекции прогресса шага на его detail-метрики.
//
// Контракт: результат монотонен по progress, каждое значение лежит в [0, total]
// и равно total ровно при progress >= 100.
type Projection func(progress float64, metrics []domain.MetricDef) map[string]int

// Projections — таблица проекций stepID → Projection.
type Projections map[string]Projection

// LinearProjection вычисляет floor(progress/100 × total) для каждой метрики.
func LinearProjection(progress float64, metrics []domain.MetricDef) map[string]int {
	details := make(map[string]int, len(metrics))
	for _, m := range metrics {
		details[m.Name] = linear(progress, m.Total)
	}
	return details
}

// UnitProjection возвращает проекцию, в которой метрика unit растёт линейно,
// а остальные метрики растут только вместе с завершёнными единицами unit.
//
// Например, страницы отчёта появляются по мере готовности разделов.
// Если unit отсутствует в схеме или его total равен 0, проекция линейна.
func UnitProjection(unit string) Projection {
	return func(progress float64, metrics []domain.MetricDef) map[string]int {
		unitTotal := -1
		for _, m := range metrics {
			if m.Name == unit {
				unitTotal = m.Total
				break
			}
		}
		if unitTotal <= 0 {
			return LinearProjection(progress, metrics)
		}

		done := linear(progress, unitTotal)
		details := make(map[string]int, len(metrics))
		for _, m := range metrics {
			if m.Name == unit {
				details[m.Name] = done
				continue
			}
			details[m.Name] = done * m.Total / unitTotal
		}
		return details
	}
}

// linear — floor(progress × total / 100) с ограничением в [0, total].
// Умножение выполняется до деления, чтобы целые проценты давали точный результат.
func linear(progress float64, total int) int {
	if total <= 0 || progress <= 0 || math.IsNaN(progress) {
		return 0
	}
	if progress >= 100 {
		return total
	}
	v := int(math.Floor(progress * float64(total) / 100))
	return min(max(v, 0), total)
}
