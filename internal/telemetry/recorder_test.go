package telemetry

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestFileRecorderWritesStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.jsonl")
	rec, err := NewFileRecorder(path)
	if err != nil {
		t.Fatalf("NewFileRecorder error: %v", err)
	}
	if err := rec.Record("train/loss", 0.7, 0); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if err := rec.Record("val/acc_top1", 62.5, 0); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer f.Close()

	var metrics []Metric
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m Metric
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("line not valid JSON: %v", err)
		}
		metrics = append(metrics, m)
	}
	if len(metrics) != 2 {
		t.Fatalf("expected 2 metrics, got %d", len(metrics))
	}
	if metrics[0].Key != "train/loss" || metrics[0].Value != 0.7 || metrics[0].Step != 0 {
		t.Fatalf("unexpected first metric: %+v", metrics[0])
	}
	if metrics[1].Key != "val/acc_top1" || metrics[1].Value != 62.5 {
		t.Fatalf("unexpected second metric: %+v", metrics[1])
	}
}

func TestMultiRecorderFansOut(t *testing.T) {
	dir := t.TempDir()
	a, err := NewFileRecorder(filepath.Join(dir, "a.jsonl"))
	if err != nil {
		t.Fatalf("NewFileRecorder error: %v", err)
	}
	b, err := NewFileRecorder(filepath.Join(dir, "b.jsonl"))
	if err != nil {
		t.Fatalf("NewFileRecorder error: %v", err)
	}
	multi := MultiRecorder{a, b}
	if err := multi.Record("loss", 1.0, 3); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if err := multi.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	for _, name := range []string{"a.jsonl", "b.jsonl"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if len(data) == 0 {
			t.Fatalf("%s is empty", name)
		}
	}
}

func TestWriteSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.json")
	in := Summary{
		Hyperparams: map[string]interface{}{"model_name": "mlp", "epochs": 5},
		Metrics:     map[string]float64{"val_acc_top1": 62.5, "train_loss": 0.4},
	}
	if err := WriteSummary(path, in); err != nil {
		t.Fatalf("WriteSummary error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	var out Summary
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("summary not valid JSON: %v", err)
	}
	if out.Metrics["val_acc_top1"] != 62.5 {
		t.Fatalf("metrics not preserved: %+v", out.Metrics)
	}
	if out.Hyperparams["model_name"] != "mlp" {
		t.Fatalf("hyperparams not preserved: %+v", out.Hyperparams)
	}
}
