// Package orchestrator управляет единственным pipeline run.
//
// Controller отвечает за:
//   - Guard единственного активного run (start отклоняется в RUNNING)
//   - Последовательное выполнение шагов каталога через executors
//   - Применение тиков: монотонный прогресс, ограничение detail-метрик
//   - Пересчёт overall progress и публикацию snapshots в sinks
//   - Переходы FAILED/COMPLETED и reset в IDLE
//   - Обработку команд pipeline.start / pipeline.reset из RabbitMQ
//
// Controller — единственный владелец PipelineRun: наружу уходят только
// копии в виде domain.Snapshot.
package orchestrator
