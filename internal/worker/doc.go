// Package worker выполняет отдельные шаги pipeline.
//
// # Обзор
//
// Executor получает дескриптор шага и доводит его до конца, сообщая
// промежуточные snapshots (progress, details) через EmitFunc:
//
//	type Executor interface {
//	    Execute(ctx context.Context, req *Request, emit EmitFunc) error
//	}
//
// nil — шаг завершён (progress = 100). Ошибка — StepFailure.
// Решение о статусах шага и run принимает orchestrator, executor только
// сообщает прогресс.
//
// # Реализации
//
//   - SimulatedExecutor — делит номинальную длительность на фиксированное
//     число тиков (по умолчанию 50, т.е. +2% за тик) и пересчитывает метрики
//     через проекцию каталога. Никогда не падает сам по себе.
//   - HTTPExecutor — делегирует работу внешнему analysis engine: создаёт job
//     и опрашивает его статус, повторяя сетевые ошибки с exponential backoff.
//
// # Registry
//
// Registry сопоставляет ID шага и executor. Незарегистрированные шаги
// выполняет executor по умолчанию:
//
//	sim, _ := worker.NewSimulatedExecutor(worker.SimulatedConfig{Project: cat.Project})
//	registry := worker.NewRegistry(sim)
//	registry.Register("gap_analysis", httpExecutor)
//
// # Отмена
//
// Все executor'ы ждут кооперативно и прерываются по ctx.Done().
// Context отменяется при таймауте шага и при остановке процесса.
package worker
