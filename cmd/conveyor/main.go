// Conveyor CLI — инструмент командной строки для управления
// analysis pipeline через HTTP API conveyord.
//
// Использование:
//
//	conveyor [--api-url URL] [--json] <command> [flags]
//
// Команды:
//
//	status   Текущее состояние pipeline
//	start    Запуск run
//	reset    Сброс в IDLE
//	watch    Наблюдение за run до завершения
//	catalog  Каталог шагов
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/Conveyor/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cli.NewRootCmd(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
