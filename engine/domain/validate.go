package domain

import (
	"fmt"
	"strings"
)

const (
	minQueryLength = 5
	// MaxResults is the upper bound accepted on the query path.
	MaxResults = 50
)

// ValidateAdvisory validates an Advisory at the ingestion gate.
func ValidateAdvisory(a Advisory) error {
	if a.ID == "" {
		return NewValidationError("id", a.ID, ErrMissingID)
	}
	if strings.TrimSpace(a.Title) == "" {
		return NewValidationError("title", a.Title, ErrMissingTitle)
	}
	if a.Published.IsZero() {
		return NewValidationError("published", "", ErrMissingTimestamp)
	}
	if !ValidSeverities[a.Severity] {
		return NewValidationError("severity", string(a.Severity), ErrInvalidSeverity)
	}
	for _, p := range a.Protocols {
		if !ValidProtocols[p] {
			return NewValidationError("protocols", string(p), ErrInvalidProtocol)
		}
	}
	if strings.TrimSpace(a.Description) == "" {
		return NewValidationError("description", "", ErrMissingContent)
	}
	return nil
}

// ValidateThreatReport validates a ThreatReport at the ingestion gate.
func ValidateThreatReport(r ThreatReport) error {
	if r.ID == "" {
		return NewValidationError("id", r.ID, ErrMissingID)
	}
	if strings.TrimSpace(r.Title) == "" {
		return NewValidationError("title", r.Title, ErrMissingTitle)
	}
	if r.Published.IsZero() {
		return NewValidationError("published", "", ErrMissingTimestamp)
	}
	if !ValidThreatCategories[r.ThreatCategory] {
		return NewValidationError("threat_category", string(r.ThreatCategory), ErrInvalidCategory)
	}
	for _, t := range r.Targets {
		if !ValidAssetTypes[t] {
			return NewValidationError("targets", string(t), ErrInvalidAssetType)
		}
	}
	for _, p := range r.Protocols {
		if !ValidProtocols[p] {
			return NewValidationError("protocols", string(p), ErrInvalidProtocol)
		}
	}
	if strings.TrimSpace(r.Summary) == "" && strings.TrimSpace(r.Content) == "" {
		return NewValidationError("content", "", ErrMissingContent)
	}
	return nil
}

// ValidateIncident validates an Incident at the ingestion gate.
func ValidateIncident(in Incident) error {
	if in.ID == "" {
		return NewValidationError("id", in.ID, ErrMissingID)
	}
	if in.Reported.IsZero() {
		return NewValidationError("reported", "", ErrMissingTimestamp)
	}
	for _, a := range in.AssetTypes {
		if !ValidAssetTypes[a] {
			return NewValidationError("asset_types", string(a), ErrInvalidAssetType)
		}
	}
	for _, p := range in.Protocols {
		if !ValidProtocols[p] {
			return NewValidationError("protocols", string(p), ErrInvalidProtocol)
		}
	}
	if strings.TrimSpace(in.Description) == "" {
		return NewValidationError("description", "", ErrMissingContent)
	}
	return nil
}

// ValidateQuery validates the analyst query surface.
func ValidateQuery(question string, filters QueryFilters, maxResults int) error {
	if len(strings.TrimSpace(question)) < minQueryLength {
		return NewValidationError("question", question, ErrQueryTooShort)
	}
	if maxResults < 1 || maxResults > MaxResults {
		return NewValidationError("max_results", fmt.Sprintf("%d", maxResults), ErrInvalidMaxResults)
	}
	for _, s := range filters.Severity {
		if !ValidSeverities[s] {
			return NewValidationError("filters.severity", string(s), ErrInvalidSeverity)
		}
	}
	for _, p := range filters.Protocols {
		if !ValidProtocols[p] {
			return NewValidationError("filters.protocols", string(p), ErrInvalidProtocol)
		}
	}
	for _, a := range filters.AssetTypes {
		if !ValidAssetTypes[a] {
			return NewValidationError("filters.asset_types", string(a), ErrInvalidAssetType)
		}
	}
	for _, c := range filters.ThreatCategories {
		if !ValidThreatCategories[c] {
			return NewValidationError("filters.threat_categories", string(c), ErrInvalidCategory)
		}
	}
	if !filters.DateFrom.IsZero() && !filters.DateTo.IsZero() && filters.DateFrom.After(filters.DateTo) {
		return NewValidationError("filters.date_from", filters.DateFrom.String(), ErrInvalidDateRange)
	}
	return nil
}
