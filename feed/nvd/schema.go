package nvd

// Wire types for the NVD JSON API 2.0. Only the fields the normalizer
// projects are declared; everything else is ignored on decode.

type response struct {
	ResultsPerPage  int             `json:"resultsPerPage"`
	StartIndex      int             `json:"startIndex"`
	TotalResults    int             `json:"totalResults"`
	Vulnerabilities []vulnerability `json:"vulnerabilities"`
}

type vulnerability struct {
	CVE cveItem `json:"cve"`
}

type cveItem struct {
	ID           string `json:"id"`
	Published    string `json:"published"`
	LastModified string `json:"lastModified"`

	// The cisa* fields are present when the record is in the KEV catalog.
	CISAExploitAdd        string `json:"cisaExploitAdd"`
	CISAActionDue         string `json:"cisaActionDue"`
	CISAVulnerabilityName string `json:"cisaVulnerabilityName"`

	Descriptions   []langString    `json:"descriptions"`
	Metrics        metrics         `json:"metrics"`
	Weaknesses     []weakness      `json:"weaknesses"`
	References     []reference     `json:"references"`
	Configurations []configuration `json:"configurations"`
}

type langString struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

type metrics struct {
	V31 []cvssMetricV3 `json:"cvssMetricV31"`
	V30 []cvssMetricV3 `json:"cvssMetricV30"`
	V2  []cvssMetricV2 `json:"cvssMetricV2"`
}

type cvssMetricV3 struct {
	CVSSData cvssDataV3 `json:"cvssData"`
}

type cvssDataV3 struct {
	BaseScore    float64 `json:"baseScore"`
	VectorString string  `json:"vectorString"`
	BaseSeverity string  `json:"baseSeverity"`
}

type cvssMetricV2 struct {
	CVSSData     cvssDataV2 `json:"cvssData"`
	BaseSeverity string     `json:"baseSeverity"`
}

type cvssDataV2 struct {
	BaseScore    float64 `json:"baseScore"`
	VectorString string  `json:"vectorString"`
}

type weakness struct {
	Description []langString `json:"description"`
}

type reference struct {
	URL  string   `json:"url"`
	Tags []string `json:"tags"`
}

type configuration struct {
	Nodes []node `json:"nodes"`
}

type node struct {
	CPEMatch []cpeMatch `json:"cpeMatch"`
}

type cpeMatch struct {
	Vulnerable bool   `json:"vulnerable"`
	Criteria   string `json:"criteria"`
}
