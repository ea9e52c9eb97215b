package perf

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/shopledger/shopledger/internal/allocation"
	jobmetrics "github.com/shopledger/shopledger/internal/jobs"
	"github.com/shopledger/shopledger/internal/ledger"
	"github.com/shopledger/shopledger/internal/stock"
	"github.com/shopledger/shopledger/internal/testing/memstore"
	"github.com/shopledger/shopledger/jobs"
)

func TestScanJobsThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	store := memstore.New()
	for i := 0; i < 200; i++ {
		store.AddProduct(stock.Product{Name: "Item", Department: "canteen", StockQty: i % 7, ReorderLevel: 3})
	}
	c := store.AddCustomer(ledger.Customer{Name: "Halima", Program: ledger.ProgramA})
	p := store.AddProduct(stock.Product{Name: "Soap", Department: "welfare", StockQty: 500})
	sched := allocation.NewScheduler(store.Allocations(), &memstore.Audit{}, nil, time.UTC)
	for i := 0; i < 50; i++ {
		_, err := sched.CreateAllocation(context.Background(), allocation.CreateInput{
			CustomerID: c.ID, ProductID: p.ID, Program: ledger.ProgramA, Quantity: 1,
			Frequency: allocation.FrequencyMonthly, Actor: cashier,
		})
		if err != nil {
			t.Fatalf("seed allocation: %v", err)
		}
	}

	lowStock := jobs.NewLowStockScanJob(stock.NewService(store.Stock(), &memstore.Audit{}, nil), nil, metrics)
	due := jobs.NewDueScanJob(sched, nil, metrics)
	ctx := context.Background()
	task, err := jobs.NewLowStockScanTask("canteen")
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	for i := 0; i < 30; i++ {
		if err := lowStock.Handle(ctx, task); err != nil {
			t.Fatalf("low stock scan: %v", err)
		}
		if err := due.Handle(ctx, jobs.NewAllocationsDueScanTask()); err != nil {
			t.Fatalf("due scan: %v", err)
		}
	}

	// A couple of simulated broker timeouts must surface as failures.
	for i := 0; i < 2; i++ {
		if err := metrics.Track(jobs.TaskLowStockScan).End(errors.New("timeout")); err == nil {
			t.Fatal("expected error to propagate")
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	success := metricValue(t, families, "shopledger_jobs_total", map[string]string{"job": jobs.TaskLowStockScan, "status": "success"})
	failure := metricValue(t, families, "shopledger_jobs_total", map[string]string{"job": jobs.TaskLowStockScan, "status": "failure"})
	if ratio := success / (success + failure); ratio < 0.9 {
		t.Fatalf("low stock scan success ratio too low: %f", ratio)
	}
	if got := metricValue(t, families, "shopledger_scan_findings", map[string]string{"kind": "allocations_never_given"}); got != 50 {
		t.Fatalf("expected 50 never-given allocations, got %f", got)
	}
	for _, job := range []string{jobs.TaskLowStockScan, jobs.TaskAllocationsDueScan} {
		if mean := histogramMean(t, families, "shopledger_job_duration_seconds", map[string]string{"job": job}); mean > 0.5 {
			t.Fatalf("%s mean duration above budget: %f", job, mean)
		}
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if !hasLabels(metric, labels) {
				continue
			}
			switch fam.GetType() {
			case dto.MetricType_COUNTER:
				return metric.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				return metric.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range metric.GetLabel() {
		want, ok := labels[lp.GetName()]
		if !ok {
			continue
		}
		if lp.GetValue() != want {
			return false
		}
		matched++
	}
	return matched == len(labels)
}
