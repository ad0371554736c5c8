package prom

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric of the service.
const Namespace = "bank_statement_extractor"

// SessionCounter reports how many sessions are currently held.
type SessionCounter interface {
	Len() int
}

type Exporter struct {
	OracleCalls    *prometheus.Desc
	OracleErrors   *prometheus.Desc
	OracleTokens   *prometheus.Desc
	Extractions    *prometheus.Desc
	Transactions   *prometheus.Desc
	Exports        *prometheus.Desc
	ExportedRows   *prometheus.Desc
	ActiveSessions *prometheus.Desc
	stats          *Stats
	sessions       SessionCounter
}

func NewExporter(namespace string, stats *Stats, sessions SessionCounter) *Exporter {
	return &Exporter{
		OracleCalls: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "oracle", "api_calls"),
			"Count of extraction oracle calls",
			nil,
			nil,
		),
		OracleErrors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "oracle", "api_errors"),
			"Count of failed extraction oracle calls",
			[]string{"type"},
			nil,
		),
		OracleTokens: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "oracle", "tokens"),
			"Count of oracle tokens",
			[]string{"type"},
			nil,
		),
		Extractions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "extraction", "total"),
			"Count of finished extractions",
			[]string{"result"},
			nil,
		),
		Transactions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "extraction", "transactions"),
			"Count of transactions returned by successful extractions",
			nil,
			nil,
		),
		Exports: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "export", "total"),
			"Count of CSV exports",
			[]string{"entity"},
			nil,
		),
		ExportedRows: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "export", "rows"),
			"Count of rows written to CSV exports",
			nil,
			nil,
		),
		ActiveSessions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "session", "active"),
			"Sessions currently held in memory",
			nil,
			nil,
		),
		stats:    stats,
		sessions: sessions,
	}
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.OracleCalls
	ch <- e.OracleErrors
	ch <- e.OracleTokens
	ch <- e.Extractions
	ch <- e.Transactions
	ch <- e.Exports
	ch <- e.ExportedRows
	ch <- e.ActiveSessions
}

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	snap := e.stats.snapshot()

	ch <- prometheus.MustNewConstMetric(e.OracleCalls, prometheus.CounterValue, snap.oracleCalls)
	for kind, n := range snap.oracleErrors {
		ch <- prometheus.MustNewConstMetric(e.OracleErrors, prometheus.CounterValue, n, kind)
	}
	ch <- prometheus.MustNewConstMetric(e.OracleTokens, prometheus.CounterValue, snap.promptTokens, "prompt")
	ch <- prometheus.MustNewConstMetric(e.OracleTokens, prometheus.CounterValue, snap.completionTokens, "completion")
	ch <- prometheus.MustNewConstMetric(e.OracleTokens, prometheus.CounterValue, snap.totalTokens, "total")
	for result, n := range snap.extractions {
		ch <- prometheus.MustNewConstMetric(e.Extractions, prometheus.CounterValue, n, result)
	}
	ch <- prometheus.MustNewConstMetric(e.Transactions, prometheus.CounterValue, snap.transactions)
	for entity, n := range snap.exports {
		ch <- prometheus.MustNewConstMetric(e.Exports, prometheus.CounterValue, n, entity)
	}
	ch <- prometheus.MustNewConstMetric(e.ExportedRows, prometheus.CounterValue, snap.exportedRows)

	if e.sessions != nil {
		ch <- prometheus.MustNewConstMetric(e.ActiveSessions, prometheus.GaugeValue, float64(e.sessions.Len()))
	}
}
