// Package prom keeps the pipeline's counters and exposes them as a
// Prometheus collector.
package prom

import (
	"sync"
)

// Extraction outcomes.
const (
	ResultSuccess    = "success"
	ResultFailure    = "failure"
	ResultMalformed  = "malformed"
	ResultSuperseded = "superseded"
)

// Stats holds process-wide counters. The zero value is ready to use.
type Stats struct {
	mu sync.Mutex

	oracleCalls      float64
	oracleErrors     map[string]float64
	promptTokens     float64
	completionTokens float64
	totalTokens      float64
	extractions      map[string]float64
	transactions     float64
	exports          map[string]float64
	exportedRows     float64
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) OracleCall() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oracleCalls++
}

// OracleError counts a failed oracle call by kind (auth, quota, network, ...).
func (s *Stats) OracleError(kind string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.oracleErrors == nil {
		s.oracleErrors = make(map[string]float64)
	}
	s.oracleErrors[kind]++
}

func (s *Stats) Tokens(prompt, completion, total int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promptTokens += float64(prompt)
	s.completionTokens += float64(completion)
	s.totalTokens += float64(total)
}

// Extraction counts a finished extraction and, on success, its rows.
func (s *Stats) Extraction(result string, rows int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.extractions == nil {
		s.extractions = make(map[string]float64)
	}
	s.extractions[result]++
	s.transactions += float64(rows)
}

func (s *Stats) Export(entity string, rows int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exports == nil {
		s.exports = make(map[string]float64)
	}
	s.exports[entity]++
	s.exportedRows += float64(rows)
}

type snapshot struct {
	oracleCalls      float64
	oracleErrors     map[string]float64
	promptTokens     float64
	completionTokens float64
	totalTokens      float64
	extractions      map[string]float64
	transactions     float64
	exports          map[string]float64
	exportedRows     float64
}

func (s *Stats) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{
		oracleCalls:      s.oracleCalls,
		oracleErrors:     copyMap(s.oracleErrors),
		promptTokens:     s.promptTokens,
		completionTokens: s.completionTokens,
		totalTokens:      s.totalTokens,
		extractions:      copyMap(s.extractions),
		transactions:     s.transactions,
		exports:          copyMap(s.exports),
		exportedRows:     s.exportedRows,
	}
}

func copyMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
