// Package scheduler запускает pipeline по cron-расписанию.
//
// На каждое срабатывание Scheduler смотрит на состояние run:
//   - IDLE, COMPLETED — запускает новый run с payload из конфигурации
//   - RUNNING — пропускает срабатывание
//   - FAILED — пропускает и пишет в лог: нужен явный reset
//
// Структура:
//   - scheduler.go — Scheduler (Tick, Start, Stop)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//   - payload.go   — источники payload для запланированных run
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Pipeline: ctrl,
//	    Cron:     "*/15 * * * *",
//	    Payload:  scheduler.StaticPayload([]string{"s3://bucket/report.pdf"}),
//	    Logger:   logger,
//	})
//	sched.Start(ctx)
//	defer sched.Stop()
package scheduler
