package logger

import (
	"fmt"
	"testing"
)

type recorder struct {
	lines []string
}

func (r *recorder) record(level, message string, keyvals ...any) {
	r.lines = append(r.lines, fmt.Sprintf("%s %s %v", level, message, keyvals))
}

func (r *recorder) Log(m string, kv ...any)   { r.record("log", m, kv...) }
func (r *recorder) Debug(m string, kv ...any) { r.record("debug", m, kv...) }
func (r *recorder) Info(m string, kv ...any)  { r.record("info", m, kv...) }
func (r *recorder) Warn(m string, kv ...any)  { r.record("warn", m, kv...) }
func (r *recorder) Error(m string, kv ...any) { r.record("error", m, kv...) }
func (r *recorder) Fatal(m string, kv ...any) { r.record("fatal", m, kv...) }

func TestDispatchesToAllBackends(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Init(a, b)
	t.Cleanup(func() { singleton = nil })

	Info("[Poller] task found", "task_id", "job-1")
	Log("plain", "k", 1)

	for _, r := range []*recorder{a, b} {
		if len(r.lines) != 2 {
			t.Fatalf("expected 2 lines, got %d", len(r.lines))
		}
		if r.lines[0] != "info [Poller] task found [task_id job-1]" {
			t.Fatalf("unexpected line %q", r.lines[0])
		}
		if r.lines[1] != "log plain [k 1]" {
			t.Fatalf("keyvals dropped for Log: %q", r.lines[1])
		}
	}
}

func TestNoopBeforeInit(t *testing.T) {
	singleton = nil
	Info("nothing happens")
	Error("still nothing", "err", fmt.Errorf("boom"))
}
