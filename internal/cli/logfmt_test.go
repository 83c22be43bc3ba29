package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestEmitterRawPassesOutputThrough(t *testing.T) {
	var buf bytes.Buffer
	emit := newEmitter(&buf, "beam", false)

	emit.Output([]byte("=== BEAM VM Started ===\n"))
	if got := buf.String(); got != "=== BEAM VM Started ===\n" {
		t.Fatalf("raw output = %q", got)
	}

	buf.Reset()
	emit.Logf("runtime started with pid %d", 42)
	if got := buf.String(); got != "[supervisor] runtime started with pid 42\n" {
		t.Fatalf("raw diagnostic = %q", got)
	}
}

func TestEmitterJSONSplitsLines(t *testing.T) {
	var buf bytes.Buffer
	emit := newEmitter(&buf, "beam", true)

	emit.Output([]byte("first\nsecond\n"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d records, want 2: %q", len(lines), buf.String())
	}
	for i, want := range []string{"first", "second"} {
		var record logRecord
		if err := json.Unmarshal([]byte(lines[i]), &record); err != nil {
			t.Fatalf("decode record %d: %v", i, err)
		}
		if record.Message != want {
			t.Fatalf("record %d message = %q, want %q", i, record.Message, want)
		}
		if record.Runtime != "beam" || record.Source != sourceRuntime {
			t.Fatalf("record %d = %+v, want runtime beam from runtime source", i, record)
		}
		if record.Timestamp.IsZero() {
			t.Fatalf("record %d missing timestamp", i)
		}
	}
}

func TestEmitterJSONDiagnosticSource(t *testing.T) {
	var buf bytes.Buffer
	emit := newEmitter(&buf, "beam", true)

	emit.Logf("stopping runtime pid %d", 42)

	var record logRecord
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record.Source != sourceSupervisor {
		t.Fatalf("source = %q, want %q", record.Source, sourceSupervisor)
	}
	if record.Message != "stopping runtime pid 42" {
		t.Fatalf("message = %q", record.Message)
	}
}
