// Package ingest provides the ingestion surface: loading raw threat
// intelligence documents, parsing them into domain models, and running them
// through the chunk-embed-index pipeline, either inline or via the NATS
// worker.
package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/GridwatchAI/gridwatch-mvp/engine/domain"
	"github.com/GridwatchAI/gridwatch-mvp/pkg/fn"
)

// Parser decodes raw JSON documents into validated domain models.
type Parser struct{}

// ParseAdvisory decodes and validates one advisory.
func (Parser) ParseAdvisory(data []byte) (domain.Advisory, error) {
	var a domain.Advisory
	if err := json.Unmarshal(data, &a); err != nil {
		return domain.Advisory{}, fmt.Errorf("ingest: decode advisory: %w", err)
	}
	if err := domain.ValidateAdvisory(a); err != nil {
		return domain.Advisory{}, err
	}
	return a, nil
}

// ParseThreatReport decodes and validates one threat report.
func (Parser) ParseThreatReport(data []byte) (domain.ThreatReport, error) {
	var r domain.ThreatReport
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.ThreatReport{}, fmt.Errorf("ingest: decode threat report: %w", err)
	}
	if err := domain.ValidateThreatReport(r); err != nil {
		return domain.ThreatReport{}, err
	}
	return r, nil
}

// ParseIncident decodes and validates one incident.
func (Parser) ParseIncident(data []byte) (domain.Incident, error) {
	var in domain.Incident
	if err := json.Unmarshal(data, &in); err != nil {
		return domain.Incident{}, fmt.Errorf("ingest: decode incident: %w", err)
	}
	if err := domain.ValidateIncident(in); err != nil {
		return domain.Incident{}, err
	}
	return in, nil
}

// ParseAdvisories decodes a batch, failing on the first invalid document.
func (p Parser) ParseAdvisories(docs [][]byte) ([]domain.Advisory, error) {
	return fn.MapErr(docs, p.ParseAdvisory)
}

// ParseThreatReports decodes a batch, failing on the first invalid document.
func (p Parser) ParseThreatReports(docs [][]byte) ([]domain.ThreatReport, error) {
	return fn.MapErr(docs, p.ParseThreatReport)
}

// ParseIncidents decodes a batch, failing on the first invalid document.
func (p Parser) ParseIncidents(docs [][]byte) ([]domain.Incident, error) {
	return fn.MapErr(docs, p.ParseIncident)
}
