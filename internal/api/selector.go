package api

// Selector names a lookup subject: an IP, domain, hash and so on. It is the
// unit of work for enrichment, fetcher and action requests. Duplicates are not
// collapsed at this layer.
type Selector struct {
	Type           string `json:"type"`
	Value          string `json:"value"`
	Classification string `json:"classification,omitempty"`
}

func (s Selector) String() string {
	return s.Type + ":" + s.Value
}
