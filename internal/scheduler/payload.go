package scheduler

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Conveyor/internal/domain"
)

// SourceScheduler — значение AnalysisPayload.Source для запланированных run.
const SourceScheduler = "scheduler"

// PayloadFunc формирует payload для срабатывания в момент now.
type PayloadFunc func(now time.Time) (*domain.AnalysisPayload, error)

// StaticPayload возвращает PayloadFunc с фиксированным списком документов.
// ID payload строится из времени срабатывания.
func StaticPayload(documents []string) PayloadFunc {
	docs := append([]string(nil), documents...)
	return func(now time.Time) (*domain.AnalysisPayload, error) {
		return &domain.AnalysisPayload{
			ID:        scheduledID(now),
			Source:    SourceScheduler,
			Documents: append([]string(nil), docs...),
		}, nil
	}
}

// FilePayload возвращает PayloadFunc, читающий payload из JSON/YAML файла
// на каждом срабатывании. Пустые ID и Source заполняются.
func FilePayload(path string) PayloadFunc {
	return func(now time.Time) (*domain.AnalysisPayload, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}

		var payload domain.AnalysisPayload
		// YAML — надмножество JSON, поэтому один декодер читает оба формата.
		if err := yaml.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("parse payload %s: %w", path, err)
		}

		if payload.ID == "" {
			payload.ID = scheduledID(now)
		}
		if payload.Source == "" {
			payload.Source = SourceScheduler
		}
		return &payload, nil
	}
}

func scheduledID(now time.Time) string {
	return "scheduled-" + now.UTC().Format("20060102T150405Z")
}
