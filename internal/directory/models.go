package directory

// Entry is one terminal directory row for a (site, workplace) pair.
type Entry struct {
	Site       string
	Channel    string
	Workplace  string
	TerminalID string
	IP         string
}

// Policy gates what directory enrichment is allowed to derive.
type Policy struct {
	Enabled            bool
	RequireUniqueMatch bool
	WriteTID           bool
	WriteIP            bool
	TIDConfidence      float64
	IPConfidence       float64
}
