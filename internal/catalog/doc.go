// Package catalog описывает неизменяемый каталог шагов pipeline.
//
// Каталог задаёт:
//   - порядок выполнения шагов
//   - номинальную длительность каждого шага
//   - схему detail-метрик (metric → total)
//   - таблицу проекций stepID → Projection
//
// Проекция — чистая функция (progress, metrics) → details. Встроенные:
//   - LinearProjection — floor(progress/100 × total)
//   - UnitProjection   — метрики растут вместе с завершёнными единицами
//
// Каталог загружается из YAML/JSON (Load, Parse) или берётся встроенный (Default).
package catalog
