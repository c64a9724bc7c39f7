package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/shaiso/Conveyor/internal/domain"
)

// progressBarWidth — ширина полосы прогресса в символах.
const progressBarWidth = 20

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(os.Stdout, os.Stderr, jsonMode)
}

// NewOutputTo создаёт Output с заданными writers.
func NewOutputTo(w, errW io.Writer, jsonMode bool) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        w,
		errW:     errW,
	}
}

// Print выводит данные: таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows, nil)
}

// Table выводит данные в виде таблицы. Колонки из rightAligned выравниваются вправо.
func (o *Output) Table(headers []string, rows [][]string, rightAligned []int) {
	fmt.Fprintln(o.w, renderTable(headers, rows, rightAligned))
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

// Snapshot выводит состояние run и таблицу шагов.
func (o *Output) Snapshot(snap *domain.Snapshot) {
	if o.jsonMode {
		o.JSON(snap)
		return
	}

	fmt.Fprintf(o.w, "Run:      %s\n", runIDString(snap))
	fmt.Fprintf(o.w, "State:    %s\n", snap.State)
	fmt.Fprintf(o.w, "Overall:  %s\n", ProgressBar(snap.OverallProgress, progressBarWidth))
	if step, ok := snap.CurrentStep(); ok && snap.State == domain.RunStateRunning {
		fmt.Fprintf(o.w, "Current:  %s (%d/%d)\n", step.Name, snap.CurrentStepIndex+1, len(snap.Steps))
	}
	if snap.Error != "" {
		fmt.Fprintf(o.w, "Error:    %s\n", snap.Error)
	}

	headers := []string{"#", "STEP", "STATUS", "PROGRESS", "DETAILS", "DURATION"}
	rows := make([][]string, len(snap.Steps))
	for i, st := range snap.Steps {
		rows[i] = []string{
			strconv.Itoa(i + 1),
			st.Name,
			string(st.Status),
			ProgressBar(st.Progress, progressBarWidth),
			FormatDetails(st),
			stepDuration(st),
		}
	}
	o.Table(headers, rows, []int{0, 5})
}

// Catalog выводит каталог шагов.
func (o *Output) Catalog(cat *CatalogResponse) {
	if o.jsonMode {
		o.JSON(cat)
		return
	}

	headers := []string{"#", "ID", "NAME", "DURATION", "METRICS"}
	rows := make([][]string, len(cat.Steps))
	for i, s := range cat.Steps {
		metrics := make([]string, len(s.Details))
		for j, m := range s.Details {
			metrics[j] = fmt.Sprintf("%s/%d", m.Name, m.Total)
		}
		rows[i] = []string{
			strconv.Itoa(s.Index + 1),
			s.ID,
			s.Name,
			formatDuration(time.Duration(s.NominalDurationMs) * time.Millisecond),
			strings.Join(metrics, ", "),
		}
	}
	o.Table(headers, rows, []int{0, 3})
	fmt.Fprintf(o.w, "Total nominal duration: %s\n",
		formatDuration(time.Duration(cat.NominalDurationMs)*time.Millisecond))
}

// ProgressBar рисует полосу прогресса вида "[#####.....]  50.0%".
func ProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	filled := int(progress / 100 * float64(width))
	return fmt.Sprintf("[%s%s] %5.1f%%",
		strings.Repeat("#", filled),
		strings.Repeat(".", width-filled),
		progress,
	)
}

// FormatDetails выводит detail-метрики как "name value/total", в порядке каталога.
func FormatDetails(st domain.StepSnapshot) string {
	if len(st.Totals) == 0 {
		names := make([]string, 0, len(st.Details))
		for name := range st.Details {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = fmt.Sprintf("%s %d", name, st.Details[name])
		}
		return strings.Join(parts, ", ")
	}

	parts := make([]string, len(st.Totals))
	for i, m := range st.Totals {
		parts[i] = fmt.Sprintf("%s %d/%d", m.Name, st.Details[m.Name], m.Total)
	}
	return strings.Join(parts, ", ")
}

func renderTable(headers []string, rows [][]string, rightAligned []int) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	right := make(map[int]bool, len(rightAligned))
	for _, i := range rightAligned {
		right[i] = true
	}
	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if right[i] {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func runIDString(snap *domain.Snapshot) string {
	if snap.RunID == uuid.Nil {
		return "-"
	}
	return snap.RunID.String()
}

func stepDuration(st domain.StepSnapshot) string {
	if st.StartedAt == nil {
		return "-"
	}
	end := time.Now()
	if st.FinishedAt != nil {
		end = *st.FinishedAt
	}
	return formatDuration(end.Sub(*st.StartedAt))
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
