package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type              string   `json:"type"`
	ProtocolVersion   string   `json:"protocol_version"`
	SupportedVersions []string `json:"supported_versions,omitempty"`
	ClientName        string   `json:"client_name"`
	Auth              *Auth    `json:"auth,omitempty"`
}

type Auth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	Params          SessionParams  `json:"params"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type SessionParams struct {
	LootingRange   float64  `json:"looting_range"`
	AffixFlagValue uint32   `json:"affix_flag_value"`
	LootableTypes  []string `json:"lootable_types"`
	CellScan       string   `json:"cell_scan"`
	CellRetention  string   `json:"cell_retention"`
}

type CatalogDigests struct {
	FormsDigest     string `json:"forms_digest"`
	FormsCount      int    `json:"forms_count"`
	RecipesDigest   string `json:"recipes_digest"`
	RecipesCount    int    `json:"recipes_count"`
	InjectionDigest string `json:"injection_digest,omitempty"`
	TuningDigest    string `json:"tuning_digest,omitempty"`
}
