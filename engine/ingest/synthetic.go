package ingest

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/GridwatchAI/gridwatch-mvp/engine/domain"
)

// CorpusGenerator produces seeded synthetic OT threat intelligence for
// development and testing.
type CorpusGenerator struct {
	rng *rand.Rand
}

// NewCorpusGenerator creates a CorpusGenerator with a fixed seed.
func NewCorpusGenerator(seed int64) *CorpusGenerator {
	return &CorpusGenerator{rng: rand.New(rand.NewSource(seed))}
}

type vendorLine struct {
	vendor   string
	products []string
}

var vendorLines = []vendorLine{
	{"Siemens", []string{"SIMATIC S7-1500", "SIMATIC S7-1200", "SIMATIC S7-300", "SINUMERIK 840D", "SCALANCE X200"}},
	{"Schneider Electric", []string{"Modicon M340", "Modicon M580", "Modicon Premium", "EcoStruxure Control Expert", "PowerLogic PM8000"}},
	{"Rockwell Automation", []string{"ControlLogix 5580", "CompactLogix 5380", "MicroLogix 1400", "FactoryTalk View SE", "PowerFlex 755T"}},
	{"ABB", []string{"AC500 PLC", "Symphony Plus", "Ability 800xA", "REF615 Relay", "ACS880 Drive"}},
	{"Honeywell", []string{"ControlEdge PLC", "Experion PKS", "Safety Manager SC", "C300 Controller", "HC900 Controller"}},
	{"Emerson", []string{"DeltaV DCS", "ROC800 RTU", "AMS Device Manager", "Ovation DCS", "DeltaV SIS"}},
	{"GE Vernova", []string{"Mark VIe Controller", "PACSystems RX3i", "UR Relays", "OpShield", "CIMPLICITY HMI"}},
	{"Yokogawa", []string{"CENTUM VP DCS", "ProSafe-RS SIS", "STARDOM RTU", "FA-M3V PLC", "FAST/TOOLS SCADA"}},
	{"Mitsubishi Electric", []string{"MELSEC iQ-R", "MELSEC iQ-F", "GOT2000 HMI", "CC-Link IE", "GENESIS64 SCADA"}},
	{"Phoenix Contact", []string{"PLCnext Control", "mGuard Firewall", "FL SWITCH", "RFC 470S", "ILC 2050 BI"}},
}

var threatActors = []string{
	"VOLTZITE", "KAMACITE", "ELECTRUM", "COVELLITE", "XENOTIME",
	"CHRYSENE", "MAGNALLIUM", "DYMALLOY", "RASPITE", "WASSONITE",
}

var sectors = []string{
	"energy", "water", "manufacturing", "oil-and-gas", "chemical",
	"transportation", "pharmaceuticals", "food-and-beverage",
}

type technique struct {
	id, name string
}

var attackTechniques = []technique{
	{"T0800", "Activate Firmware Update Mode"},
	{"T0831", "Manipulation of Control"},
	{"T0855", "Unauthorized Command Message"},
	{"T0836", "Modify Parameter"},
	{"T0839", "Module Firmware"},
	{"T0821", "Modify Controller Tasking"},
	{"T0843", "Program Download"},
	{"T0809", "Data Destruction"},
	{"T0813", "Denial of Control"},
	{"T0826", "Loss of Availability"},
	{"T0827", "Loss of Control"},
	{"T0828", "Loss of Productivity and Revenue"},
	{"T0837", "Loss of Protection"},
	{"T0880", "Loss of Safety"},
	{"T0829", "Loss of View"},
	{"T0856", "Spoof Reporting Message"},
	{"T0862", "Supply Chain Compromise"},
	{"T0860", "Wireless Compromise"},
	{"T0866", "Exploitation of Remote Services"},
	{"T0886", "Remote Services"},
}

var vulnTypes = []string{
	"buffer overflow", "authentication bypass", "hard-coded credentials",
	"improper input validation", "path traversal", "command injection",
	"integer overflow", "use-after-free", "uncontrolled resource consumption",
	"improper access control", "cleartext transmission of sensitive data",
	"cross-site scripting", "SQL injection", "deserialization of untrusted data",
	"stack-based buffer overflow",
}

func allSeverities() []domain.Severity {
	return []domain.Severity{domain.SeverityCritical, domain.SeverityHigh, domain.SeverityMedium, domain.SeverityLow}
}

func allProtocols() []domain.Protocol {
	return []domain.Protocol{
		domain.ProtocolModbus, domain.ProtocolDNP3, domain.ProtocolOPCUA,
		domain.ProtocolEthernetIP, domain.ProtocolProfinet, domain.ProtocolBACnet,
		domain.ProtocolIEC61850, domain.ProtocolIEC104,
	}
}

func allAssetTypes() []domain.AssetType {
	return []domain.AssetType{
		domain.AssetPLC, domain.AssetRTU, domain.AssetHMI, domain.AssetSCADA,
		domain.AssetDCS, domain.AssetHistorian, domain.AssetEngineering,
		domain.AssetSafetySystem,
	}
}

func allCategories() []domain.ThreatCategory {
	return []domain.ThreatCategory{
		domain.ThreatRansomware, domain.ThreatAPT, domain.ThreatSupplyChain,
		domain.ThreatInsider, domain.ThreatVulnerability,
	}
}

func (g *CorpusGenerator) randomDate() time.Time {
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	days := int(end.Sub(start).Hours() / 24)
	return start.AddDate(0, 0, g.rng.Intn(days+1))
}

func sampleOf[T any](rng *rand.Rand, pool []T, k int) []T {
	if k > len(pool) {
		k = len(pool)
	}
	perm := rng.Perm(len(pool))
	out := make([]T, k)
	for i := 0; i < k; i++ {
		out[i] = pool[perm[i]]
	}
	return out
}

func pickOf[T any](rng *rand.Rand, pool []T) T {
	return pool[rng.Intn(len(pool))]
}

// titleCase uppercases the first letter of each space-separated word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func protocolNames(protocols []domain.Protocol) string {
	names := make([]string, len(protocols))
	for i, p := range protocols {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

// Advisories generates count synthetic ICS advisories.
func (g *CorpusGenerator) Advisories(count int) []domain.Advisory {
	out := make([]domain.Advisory, 0, count)
	for i := 1; i <= count; i++ {
		line := pickOf(g.rng, vendorLines)
		product := pickOf(g.rng, line.products)
		vuln := pickOf(g.rng, vulnTypes)
		severity := pickOf(g.rng, allSeverities())
		protocols := sampleOf(g.rng, allProtocols(), 1+g.rng.Intn(3))
		published := g.randomDate()

		outcome := "cause a denial of service condition"
		if severity == domain.SeverityCritical || severity == domain.SeverityHigh {
			outcome = "execute arbitrary code"
		}

		cves := make([]string, 1+g.rng.Intn(3))
		for j := range cves {
			cves[j] = fmt.Sprintf("CVE-%d-%d", published.Year(), 10000+g.rng.Intn(90000))
		}

		out = append(out, domain.Advisory{
			ID:        fmt.Sprintf("ICSA-%d-%03d", published.Year(), i),
			Title:     fmt.Sprintf("%s %s %s", line.vendor, product, titleCase(vuln)),
			Published: published,
			Severity:  severity,
			AffectedProducts: []domain.AffectedProduct{{
				Vendor:  line.vendor,
				Product: product,
				Version: fmt.Sprintf("<%d.%d.%d", 1+g.rng.Intn(10), g.rng.Intn(10), g.rng.Intn(10)),
			}},
			Protocols: protocols,
			CVEIDs:    cves,
			Description: fmt.Sprintf(
				"A %s vulnerability exists in %s %s. Successful exploitation of this vulnerability could allow an attacker to %s on the affected device. The vulnerability affects %s communication.",
				vuln, line.vendor, product, outcome, protocolNames(protocols)),
			Mitigations: []string{
				fmt.Sprintf("Update %s to the latest firmware version", product),
				"Minimize network exposure for all control system devices",
				fmt.Sprintf("Implement network segmentation to isolate %s traffic", protocolNames(protocols)),
				"Use VPN for remote access to control system networks",
				"Monitor network traffic for anomalous activity",
			},
			Source: pickOf(g.rng, []string{"ICS-CERT", "vendor", "CISA"}),
		})
	}
	return out
}

// ThreatReports generates count synthetic threat intelligence reports.
func (g *CorpusGenerator) ThreatReports(count int) []domain.ThreatReport {
	out := make([]domain.ThreatReport, 0, count)
	for i := 1; i <= count; i++ {
		actor := pickOf(g.rng, threatActors)
		category := pickOf(g.rng, allCategories())
		targets := sampleOf(g.rng, allAssetTypes(), 1+g.rng.Intn(4))
		protocols := sampleOf(g.rng, allProtocols(), 1+g.rng.Intn(3))
		techniques := sampleOf(g.rng, attackTechniques, 2+g.rng.Intn(5))
		published := g.randomDate()
		sector := pickOf(g.rng, sectors)

		ttps := make([]string, len(techniques))
		ttpLines := make([]string, len(techniques))
		for j, t := range techniques {
			ttps[j] = t.id
			ttpLines[j] = fmt.Sprintf("- %s: %s", t.id, t.name)
		}

		targetNames := make([]string, len(targets))
		for j, t := range targets {
			targetNames[j] = string(t)
		}

		descriptor := titleCase(string(category))
		if category == domain.ThreatAPT {
			descriptor = "APT group"
		}
		summary := fmt.Sprintf(
			"%s activity attributed to %s has been observed targeting %s sector infrastructure. The campaign focuses on %s assets using %s protocols.",
			descriptor, actor, sector,
			strings.Join(targetNames[:min(2, len(targetNames))], ", "),
			protocolNames(protocols[:min(2, len(protocols))]))

		content := fmt.Sprintf(
			"%s\n\n## Campaign Overview\n\n%s has been conducting operations against %s sector organizations since %s. The threat actor demonstrates deep knowledge of industrial control systems and operational technology environments.\n\n## Technical Details\n\nThe attack chain begins with initial access through spear-phishing emails targeting OT engineers. After establishing a foothold in the IT network, the actor performs lateral movement to reach the OT network. Key techniques observed include:\n\n%s\n\n## Impact Assessment\n\nThe campaign poses a significant risk to %s sector operations. Successful compromise could result in manipulation of %s systems, potentially causing physical damage or safety incidents.\n\n## Recommendations\n\nOrganizations in the %s sector should review their OT network segmentation, monitor for anomalous %s traffic, and ensure all industrial control systems are updated to the latest firmware versions.",
			summary, actor, sector, published.Format("January 2006"),
			strings.Join(ttpLines, "\n"),
			sector, strings.Join(targetNames, ", "),
			sector, protocolNames(protocols))

		iocs := make([]string, 0, 8)
		for j := 0; j < 2+g.rng.Intn(4); j++ {
			iocs = append(iocs, fmt.Sprintf("10.%d.%d.%d", g.rng.Intn(256), g.rng.Intn(256), 1+g.rng.Intn(254)))
		}
		for j := 0; j < 1+g.rng.Intn(3); j++ {
			iocs = append(iocs, g.hexString(64))
		}

		report := domain.ThreatReport{
			ID:             fmt.Sprintf("TR-%d-%03d", published.Year(), i),
			Title:          fmt.Sprintf("%s Campaign Targeting %s Sector %s Systems", actor, titleCase(sector), strings.ToUpper(string(targets[0]))),
			Published:      published,
			ThreatCategory: category,
			Targets:        targets,
			Protocols:      protocols,
			TTPs:           ttps,
			Summary:        summary,
			Content:        content,
			IOCs:           iocs,
		}
		if category == domain.ThreatAPT {
			report.Actor = actor
		}
		out = append(out, report)
	}
	return out
}

// Incidents generates count synthetic incident records, optionally linked to
// known advisory IDs.
func (g *CorpusGenerator) Incidents(count int, advisoryIDs []string) []domain.Incident {
	out := make([]domain.Incident, 0, count)
	for i := 1; i <= count; i++ {
		sector := pickOf(g.rng, sectors)
		assetTypes := sampleOf(g.rng, allAssetTypes(), 1+g.rng.Intn(3))
		protocols := sampleOf(g.rng, allProtocols(), 1+g.rng.Intn(2))
		reported := g.randomDate()

		var related []string
		if len(advisoryIDs) > 0 {
			related = sampleOf(g.rng, advisoryIDs, g.rng.Intn(3))
		}

		primaryAsset := strings.ToUpper(string(assetTypes[0]))
		impacts := []string{
			fmt.Sprintf("Temporary shutdown of %s systems for %d hours", primaryAsset, 1+g.rng.Intn(48)),
			fmt.Sprintf("Loss of visibility into %s operations for %d hours", sector, 1+g.rng.Intn(12)),
			fmt.Sprintf("Unauthorized modification of %s parameters detected and reversed", primaryAsset),
			fmt.Sprintf("Production disruption affecting %d facilities for %d hours", 1+g.rng.Intn(5), 1+g.rng.Intn(72)),
			fmt.Sprintf("Safety system %s requiring manual intervention", pickOf(g.rng, []string{"triggered", "bypassed", "disabled"})),
		}

		detection := "Anomalous activity"
		if g.rng.Float64() > 0.5 {
			detection = "Unauthorized access"
		}
		finding := "suspicious network traffic"
		if g.rng.Float64() > 0.5 {
			finding = "malware"
		}

		out = append(out, domain.Incident{
			ID:         fmt.Sprintf("INC-%d-%03d", reported.Year(), i),
			Reported:   reported,
			Sector:     sector,
			AssetTypes: assetTypes,
			Protocols:  protocols,
			Description: fmt.Sprintf(
				"%s detected in %s sector %s system. Investigation revealed %s affecting %s communications.",
				detection, sector, primaryAsset, finding, protocolNames(protocols)),
			Impact:             pickOf(g.rng, impacts),
			RelatedAdvisoryIDs: related,
		})
	}
	return out
}

func (g *CorpusGenerator) hexString(n int) string {
	const hexdigits = "abcdef0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = hexdigits[g.rng.Intn(len(hexdigits))]
	}
	return string(b)
}

// WriteAll generates the full corpus and writes one JSON file per document
// under dataDir/{advisories,threat_reports,incidents}.
func (g *CorpusGenerator) WriteAll(dataDir string, advisories, reports, incidents int) error {
	advs := g.Advisories(advisories)
	reps := g.ThreatReports(reports)

	advisoryIDs := make([]string, len(advs))
	for i, a := range advs {
		advisoryIDs[i] = a.ID
	}
	incs := g.Incidents(incidents, advisoryIDs)

	for _, a := range advs {
		if err := writeDoc(filepath.Join(dataDir, "advisories"), a.ID, a); err != nil {
			return err
		}
	}
	for _, r := range reps {
		if err := writeDoc(filepath.Join(dataDir, "threat_reports"), r.ID, r); err != nil {
			return err
		}
	}
	for _, in := range incs {
		if err := writeDoc(filepath.Join(dataDir, "incidents"), in.ID, in); err != nil {
			return err
		}
	}
	return nil
}

func writeDoc(dir, id string, doc any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ingest: create %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("ingest: marshal %s: %w", id, err)
	}
	path := filepath.Join(dir, id+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("ingest: write %s: %w", path, err)
	}
	return nil
}
