package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/Conveyor/internal/domain"
)

// SourceCLI — значение AnalysisPayload.Source для run, запущенных из CLI.
const SourceCLI = "cli"

// defaultPollInterval — интервал опроса API для watch и start --wait.
const defaultPollInterval = 500 * time.Millisecond

// NewStatusCmd создаёт команду вывода текущего состояния pipeline.
func NewStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := clientFn().Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			outputFn().Snapshot(snap)
			return nil
		},
	}
}

// NewStartCmd создаёт команду запуска run.
func NewStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var payloadFile string
	var payloadID string
	var documents []string
	var inputs []string
	var wait bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a new pipeline run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			payload, err := buildPayload(payloadFile, payloadID, documents, inputs)
			if err != nil {
				return err
			}

			snap, err := client.Start(cmd.Context(), payload)
			if err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Run started: %s", snap.RunID))

			if !wait {
				out.Snapshot(snap)
				return nil
			}

			final, err := waitForRun(cmd.Context(), client, interval, nil)
			if err != nil {
				return err
			}
			out.Snapshot(final)
			if final.State == domain.RunStateFailed {
				return fmt.Errorf("run %s failed: %s", final.RunID, final.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "Analysis payload file (JSON or YAML)")
	cmd.Flags().StringVar(&payloadID, "id", "", "Analysis ID")
	cmd.Flags().StringSliceVar(&documents, "document", nil, "Document reference (repeatable)")
	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Input values as KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the run completes or fails")
	cmd.Flags().DurationVar(&interval, "interval", defaultPollInterval, "Polling interval for --wait")

	return cmd
}

// NewResetCmd создаёт команду сброса pipeline.
func NewResetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset pipeline to IDLE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			snap, err := clientFn().Reset(cmd.Context())
			if err != nil {
				return err
			}

			out.Success("Pipeline reset")
			out.Snapshot(snap)
			return nil
		},
	}
}

// NewWatchCmd создаёт команду наблюдения за run.
//
// watch печатает snapshot при каждой новой версии и завершается,
// когда run переходит в COMPLETED или FAILED.
func NewWatchCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch pipeline progress until the run finishes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			_, err := waitForRun(cmd.Context(), clientFn(), interval, func(snap *domain.Snapshot) {
				out.Snapshot(snap)
			})
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", defaultPollInterval, "Polling interval")

	return cmd
}

// NewCatalogCmd создаёт команду вывода каталога шагов.
func NewCatalogCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Show step catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := clientFn().Catalog(cmd.Context())
			if err != nil {
				return err
			}
			outputFn().Catalog(cat)
			return nil
		},
	}
}

// waitForRun опрашивает API, пока run не станет COMPLETED или FAILED.
// onChange вызывается для каждой новой версии snapshot.
func waitForRun(ctx context.Context, client *Client, interval time.Duration, onChange func(*domain.Snapshot)) (*domain.Snapshot, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastVersion uint64
	seen := false
	for {
		snap, err := client.Snapshot(ctx)
		if err != nil {
			return nil, err
		}

		if onChange != nil && (!seen || snap.Version != lastVersion) {
			onChange(snap)
		}
		seen = true
		lastVersion = snap.Version

		if snap.State.IsTerminal() {
			return snap, nil
		}

		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ticker.C:
		}
	}
}

// buildPayload собирает payload из файла и флагов. Флаги дополняют файл.
func buildPayload(path, id string, documents, inputs []string) (*domain.AnalysisPayload, error) {
	payload := &domain.AnalysisPayload{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read payload file: %w", err)
		}
		if err := yaml.Unmarshal(data, payload); err != nil {
			return nil, fmt.Errorf("parse payload file %s: %w", path, err)
		}
	}

	if id != "" {
		payload.ID = id
	}
	if payload.Source == "" {
		payload.Source = SourceCLI
	}
	payload.Documents = append(payload.Documents, documents...)

	if len(inputs) > 0 {
		if payload.Inputs == nil {
			payload.Inputs = make(map[string]any, len(inputs))
		}
		for _, kv := range inputs {
			key, value, ok := strings.Cut(kv, "=")
			if !ok || key == "" {
				return nil, fmt.Errorf("invalid input format %q, expected KEY=VALUE", kv)
			}
			payload.Inputs[key] = value
		}
	}

	return payload, nil
}
