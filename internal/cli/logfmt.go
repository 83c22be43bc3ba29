package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const (
	sourceRuntime    = "runtime"
	sourceSupervisor = "supervisor"
)

type logRecord struct {
	Timestamp time.Time `json:"ts"`
	Runtime   string    `json:"runtime"`
	Level     string    `json:"level"`
	Message   string    `json:"msg"`
	Source    string    `json:"source"`
}

// emitter renders runtime output and supervisor diagnostics, either raw or
// as JSON log records. It also satisfies the supervisor's Logger interface
// so diagnostics and output interleave on one stream.
type emitter struct {
	mu   sync.Mutex
	out  io.Writer
	enc  *json.Encoder
	name string
}

func newEmitter(out io.Writer, name string, jsonLogs bool) *emitter {
	e := &emitter{out: out, name: name}
	if jsonLogs {
		e.enc = json.NewEncoder(out)
	}
	return e
}

// Output forwards a chunk of the runtime's merged output stream.
func (e *emitter) Output(chunk []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enc == nil {
		e.out.Write(chunk)
		return
	}
	for _, line := range strings.Split(strings.TrimRight(string(chunk), "\n"), "\n") {
		e.encode(line, sourceRuntime)
	}
}

// Logf records one supervisor diagnostic line.
func (e *emitter) Logf(format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	if e.enc == nil {
		fmt.Fprintf(e.out, "[supervisor] %s\n", msg)
		return
	}
	e.encode(msg, sourceSupervisor)
}

func (e *emitter) encode(message, source string) {
	record := logRecord{
		Timestamp: time.Now(),
		Runtime:   e.name,
		Level:     "info",
		Message:   message,
		Source:    source,
	}
	if err := e.enc.Encode(&record); err != nil {
		fmt.Fprintf(e.out, "error: encode log: %v\n", err)
	}
}
