// Package domain defines core domain types, constants, and validation for the
// Gridwatch threat-intelligence pipeline. It acts as the validation gate at
// pipeline entry points.
package domain

import "time"

// SourceType identifies the kind of source document a chunk came from.
type SourceType string

const (
	SourceAdvisory     SourceType = "advisory"
	SourceThreatReport SourceType = "threat_report"
	SourceIncident     SourceType = "incident"
)

// ValidSourceTypes is the set of recognised source types.
var ValidSourceTypes = map[SourceType]bool{
	SourceAdvisory: true, SourceThreatReport: true, SourceIncident: true,
}

// Severity classifies advisory severity.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ValidSeverities is the set of recognised severities.
var ValidSeverities = map[Severity]bool{
	SeverityCritical: true, SeverityHigh: true,
	SeverityMedium: true, SeverityLow: true,
}

// Protocol identifies an ICS/OT communication protocol.
type Protocol string

const (
	ProtocolModbus     Protocol = "modbus"
	ProtocolDNP3       Protocol = "dnp3"
	ProtocolOPCUA      Protocol = "opc-ua"
	ProtocolEthernetIP Protocol = "ethernet-ip"
	ProtocolProfinet   Protocol = "profinet"
	ProtocolBACnet     Protocol = "bacnet"
	ProtocolIEC61850   Protocol = "iec-61850"
	ProtocolIEC104     Protocol = "iec-104"
)

// ValidProtocols is the set of recognised protocols.
var ValidProtocols = map[Protocol]bool{
	ProtocolModbus: true, ProtocolDNP3: true, ProtocolOPCUA: true,
	ProtocolEthernetIP: true, ProtocolProfinet: true, ProtocolBACnet: true,
	ProtocolIEC61850: true, ProtocolIEC104: true,
}

// AssetType identifies an ICS/OT asset class.
type AssetType string

const (
	AssetPLC          AssetType = "plc"
	AssetRTU          AssetType = "rtu"
	AssetHMI          AssetType = "hmi"
	AssetSCADA        AssetType = "scada"
	AssetDCS          AssetType = "dcs"
	AssetHistorian    AssetType = "historian"
	AssetEngineering  AssetType = "engineering-workstation"
	AssetSafetySystem AssetType = "safety-system"
)

// ValidAssetTypes is the set of recognised asset types.
var ValidAssetTypes = map[AssetType]bool{
	AssetPLC: true, AssetRTU: true, AssetHMI: true, AssetSCADA: true,
	AssetDCS: true, AssetHistorian: true, AssetEngineering: true,
	AssetSafetySystem: true,
}

// ThreatCategory classifies threat intelligence reports.
type ThreatCategory string

const (
	ThreatRansomware    ThreatCategory = "ransomware"
	ThreatAPT           ThreatCategory = "apt"
	ThreatSupplyChain   ThreatCategory = "supply-chain"
	ThreatInsider       ThreatCategory = "insider"
	ThreatVulnerability ThreatCategory = "vulnerability"
)

// ValidThreatCategories is the set of recognised threat categories.
var ValidThreatCategories = map[ThreatCategory]bool{
	ThreatRansomware: true, ThreatAPT: true, ThreatSupplyChain: true,
	ThreatInsider: true, ThreatVulnerability: true,
}

// AffectedProduct is a product named by an advisory.
type AffectedProduct struct {
	Vendor  string `json:"vendor"`
	Product string `json:"product"`
	Version string `json:"version,omitempty"`
}

// Advisory is an ICS-CERT-style security advisory.
type Advisory struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Published        time.Time         `json:"published"`
	Severity         Severity          `json:"severity"`
	AffectedProducts []AffectedProduct `json:"affected_products"`
	Protocols        []Protocol        `json:"protocols"`
	CVEIDs           []string          `json:"cve_ids"`
	Description      string            `json:"description"`
	Mitigations      []string          `json:"mitigations"`
	Source           string            `json:"source"`
}

// ThreatReport is a threat intelligence report.
type ThreatReport struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Published      time.Time      `json:"published"`
	ThreatCategory ThreatCategory `json:"threat_category"`
	Actor          string         `json:"actor,omitempty"`
	Targets        []AssetType    `json:"targets"`
	Protocols      []Protocol     `json:"protocols"`
	TTPs           []string       `json:"ttps,omitempty"` // MITRE ATT&CK technique IDs
	Summary        string         `json:"summary"`
	Content        string         `json:"content"`
	IOCs           []string       `json:"iocs,omitempty"`
}

// Incident is an OT security incident record.
type Incident struct {
	ID                 string      `json:"id"`
	Reported           time.Time   `json:"reported"`
	Sector             string      `json:"sector"`
	AssetTypes         []AssetType `json:"asset_types"`
	Protocols          []Protocol  `json:"protocols"`
	Description        string      `json:"description"`
	Impact             string      `json:"impact"`
	RelatedAdvisoryIDs []string    `json:"related_advisory_ids,omitempty"`
}

// Metadata carries the structured fields attached to a chunk. Field order is
// fixed; the index sidecar serialises chunks field-for-field.
type Metadata struct {
	Severity       string    `json:"severity,omitempty"`
	Protocols      []string  `json:"protocols,omitempty"`
	AssetTypes     []string  `json:"asset_types,omitempty"`
	Targets        []string  `json:"targets,omitempty"`
	ThreatCategory string    `json:"threat_category,omitempty"`
	Actor          string    `json:"actor,omitempty"`
	Sector         string    `json:"sector,omitempty"`
	CVEIDs         []string  `json:"cve_ids,omitempty"`
	TTPs           []string  `json:"ttps,omitempty"`
	Source         string    `json:"source,omitempty"`
	Published      time.Time `json:"published,omitempty"`
	ChunkIndex     int       `json:"chunk_index"`
}

// Chunk is a bounded text fragment of a source document, the unit of
// embedding and retrieval. Embedding is nil until the chunk is embedded.
type Chunk struct {
	ID         string     `json:"id"`
	SourceID   string     `json:"source_id"`
	SourceType SourceType `json:"source_type"`
	Content    string     `json:"content"`
	Metadata   Metadata   `json:"metadata"`
	Embedding  []float32  `json:"embedding,omitempty"`
}

// ScoredChunk pairs a chunk with a retrieval or reranking score.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`
}

// QueryFilters narrows search results. A nil/empty field means no constraint
// on that dimension.
type QueryFilters struct {
	Severity         []Severity       `json:"severity,omitempty"`
	Protocols        []Protocol       `json:"protocols,omitempty"`
	AssetTypes       []AssetType      `json:"asset_types,omitempty"`
	ThreatCategories []ThreatCategory `json:"threat_categories,omitempty"`
	DateFrom         time.Time        `json:"date_from,omitzero"`
	DateTo           time.Time        `json:"date_to,omitzero"`
}

// Empty reports whether no filter dimension is constrained.
func (f QueryFilters) Empty() bool {
	return len(f.Severity) == 0 && len(f.Protocols) == 0 &&
		len(f.AssetTypes) == 0 && len(f.ThreatCategories) == 0 &&
		f.DateFrom.IsZero() && f.DateTo.IsZero()
}

// Candidate is a ranking input from outside the retrieval path, e.g. for
// recommendation scoring.
type Candidate struct {
	SourceID         string    `json:"source_id"`
	Embedding        []float32 `json:"embedding"`
	Published        time.Time `json:"published"`
	Protocols        []string  `json:"protocols"`
	AssetTypes       []string  `json:"asset_types"`
	InteractionCount int       `json:"interaction_count"`
}
