// Package cli реализует инструмент командной строки Conveyor.
//
// # Обзор
//
// CLI — клиентская утилита для conveyord. Работает через HTTP API;
// из внутренних пакетов импортирует только domain (Snapshot — контракт чтения).
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Conveyor API. Инкапсулирует HTTP-запросы,
// парсинг ответов (DataResponse, ErrorResponse) и обработку ошибок (*APIError).
//
//	client := cli.NewClient("http://localhost:8080")
//	snap, err := client.Snapshot(ctx)
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (go-pretty) с полосами прогресса — по умолчанию
//   - JSON (json.Encoder) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: conveyor status --json | jq .
//
// ## Commands
//
//   - status  — текущий snapshot
//   - start   — запуск run (--payload-file, --document, --input, --wait)
//   - reset   — сброс в IDLE
//   - watch   — вывод snapshot при каждой новой версии до завершения run
//   - catalog — каталог шагов
//
// Команды создаются фабричными функциями (NewStartCmd и т.д.),
// принимающими clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
