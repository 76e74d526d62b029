package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Output пишет данные команд в stdout (таблица или JSON) и сообщения
// для человека в stderr, чтобы вывод можно было передавать в pipe.
type Output struct {
	jsonMode bool
	stdout   io.Writer
	stderr   io.Writer
}

// NewOutput создаёт Output поверх os.Stdout и os.Stderr.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(os.Stdout, os.Stderr, jsonMode)
}

// NewOutputTo создаёт Output с заданными потоками.
func NewOutputTo(stdout, stderr io.Writer, jsonMode bool) *Output {
	return &Output{jsonMode: jsonMode, stdout: stdout, stderr: stderr}
}

// JSONMode сообщает, включён ли --json.
func (o *Output) JSONMode() bool {
	return o.jsonMode
}

// Writer возвращает поток данных.
func (o *Output) Writer() io.Writer {
	return o.stdout
}

// Print выводит rows таблицей или jsonData в JSON, в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит таблицу с подчёркнутыми заголовками.
// Без строк печатается только сообщение в stderr.
func (o *Output) Table(headers []string, rows [][]string) {
	if len(rows) == 0 {
		o.Note("no results")
		return
	}

	tw := tabwriter.NewWriter(o.stdout, 0, 0, 2, ' ', 0)
	underline := make([]string, len(headers))
	for i, h := range headers {
		underline[i] = strings.Repeat("-", len(h))
	}
	for _, row := range append([][]string{headers, underline}, rows...) {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}

// JSON выводит v с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// JSONLine выводит v одной строкой (поток событий).
func (o *Output) JSONLine(v any) {
	_ = json.NewEncoder(o.stdout).Encode(v)
}

// Line выводит строку данных.
func (o *Output) Line(format string, args ...any) {
	fmt.Fprintf(o.stdout, format+"\n", args...)
}

// Note выводит сообщение для человека в stderr.
func (o *Output) Note(msg string) {
	fmt.Fprintln(o.stderr, msg)
}
