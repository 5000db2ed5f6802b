// Package metrics holds Prometheus instruments that are used across the
// engine.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CalcIncompleteTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pdb_calc_incomplete_total",
			Help: "Calculations that could not resolve every tag.",
		})

	ResolverCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdb_resolver_cache_total",
			Help: "Dynamic field resolver cache lookups by result (hit, miss).",
		}, []string{"result"})

	RecomputeRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdb_recompute_records_total",
			Help: "Background recompute packets by outcome (updated, skipped, failed).",
		}, []string{"outcome"})

	RecomputeJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdb_recompute_jobs_total",
			Help: "Recompute batches by state transition (queued, complete).",
		}, []string{"state"})

	WriteQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdb_write_queries_total",
			Help: "INSERT and UPDATE statements by action and result (ok, warning, error).",
		}, []string{"action", "result"})

	ListQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pdb_list_queries_total",
			Help: "Admin list queries executed.",
		})

	FieldRegistryReloadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pdb_field_registry_reloads_total",
			Help: "Field definition snapshots loaded from the schema tables.",
		})
)

func init() {
	prometheus.MustRegister(
		CalcIncompleteTotal,
		ResolverCacheTotal,
		RecomputeRecordsTotal,
		RecomputeJobsTotal,
		WriteQueriesTotal,
		ListQueriesTotal,
		FieldRegistryReloadsTotal,
	)
}
