package ingest

import (
	"testing"

	"github.com/GridwatchAI/gridwatch-mvp/engine/domain"
)

func TestGenerateAdvisories(t *testing.T) {
	gen := NewCorpusGenerator(42)
	advs := gen.Advisories(10)
	if len(advs) != 10 {
		t.Fatalf("got %d advisories, want 10", len(advs))
	}
	seen := map[string]bool{}
	for _, a := range advs {
		if err := domain.ValidateAdvisory(a); err != nil {
			t.Errorf("advisory %s fails validation: %v", a.ID, err)
		}
		if seen[a.ID] {
			t.Errorf("duplicate advisory ID %s", a.ID)
		}
		seen[a.ID] = true
		if len(a.CVEIDs) == 0 || len(a.Mitigations) == 0 {
			t.Errorf("advisory %s missing CVEs or mitigations", a.ID)
		}
	}
}

func TestGenerateThreatReports(t *testing.T) {
	gen := NewCorpusGenerator(42)
	reports := gen.ThreatReports(10)
	if len(reports) != 10 {
		t.Fatalf("got %d reports, want 10", len(reports))
	}
	for _, r := range reports {
		if err := domain.ValidateThreatReport(r); err != nil {
			t.Errorf("report %s fails validation: %v", r.ID, err)
		}
		if r.ThreatCategory == domain.ThreatAPT && r.Actor == "" {
			t.Errorf("APT report %s has no actor", r.ID)
		}
		if r.ThreatCategory != domain.ThreatAPT && r.Actor != "" {
			t.Errorf("non-APT report %s attributes an actor", r.ID)
		}
		if len(r.TTPs) < 2 {
			t.Errorf("report %s has %d TTPs, want >= 2", r.ID, len(r.TTPs))
		}
	}
}

func TestGenerateIncidents(t *testing.T) {
	gen := NewCorpusGenerator(42)
	incidents := gen.Incidents(10, []string{"ICSA-2024-001", "ICSA-2024-002"})
	if len(incidents) != 10 {
		t.Fatalf("got %d incidents, want 10", len(incidents))
	}
	for _, in := range incidents {
		if err := domain.ValidateIncident(in); err != nil {
			t.Errorf("incident %s fails validation: %v", in.ID, err)
		}
		if len(in.RelatedAdvisoryIDs) > 2 {
			t.Errorf("incident %s links %d advisories, want <= 2", in.ID, len(in.RelatedAdvisoryIDs))
		}
	}
}

func TestGeneratorSeeded(t *testing.T) {
	a1 := NewCorpusGenerator(7).Advisories(5)
	a2 := NewCorpusGenerator(7).Advisories(5)
	for i := range a1 {
		if a1[i].ID != a2[i].ID || a1[i].Title != a2[i].Title {
			t.Fatalf("generation diverges at %d for equal seeds", i)
		}
	}
}

func TestWriteAll(t *testing.T) {
	dir := t.TempDir()
	gen := NewCorpusGenerator(42)
	if err := gen.WriteAll(dir, 3, 2, 2); err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}

	l := NewLoader(dir, nil, nil)
	var p Parser

	raw, err := l.LoadAdvisories()
	if err != nil {
		t.Fatalf("LoadAdvisories() error = %v", err)
	}
	if advs, err := p.ParseAdvisories(raw); err != nil || len(advs) != 3 {
		t.Errorf("round trip advisories = %d, %v", len(advs), err)
	}

	raw, err = l.LoadThreatReports()
	if err != nil {
		t.Fatalf("LoadThreatReports() error = %v", err)
	}
	if reps, err := p.ParseThreatReports(raw); err != nil || len(reps) != 2 {
		t.Errorf("round trip reports = %d, %v", len(reps), err)
	}

	raw, err = l.LoadIncidents()
	if err != nil {
		t.Fatalf("LoadIncidents() error = %v", err)
	}
	if incs, err := p.ParseIncidents(raw); err != nil || len(incs) != 2 {
		t.Errorf("round trip incidents = %d, %v", len(incs), err)
	}
}
