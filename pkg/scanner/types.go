package scanner

// Resource is one entry in the remote resource catalog.
type Resource struct {
	ID            string           `json:"id"`
	Type          string           `json:"type"`
	Name          string           `json:"name"`
	Metadata      ResourceMetadata `json:"metadata"`
	SensitiveData bool             `json:"sensitive_data"`
}

// ResourceMetadata carries the resource's region and creation marker.
type ResourceMetadata struct {
	Region    string `json:"region"`
	CreatedAt string `json:"created_at"`
}

// ResourcePage is one page of a paginated resource listing. Pages are
// 1-based and contiguous up to TotalPages.
type ResourcePage struct {
	Resources  []Resource `json:"resources"`
	Page       int        `json:"page"`
	TotalPages int        `json:"total_pages"`
	TotalItems int        `json:"total_items"`
}

// SensitiveReport is the result of a sensitive-resource scan. Percentage is
// the share of sensitive resources among everything scanned, rounded to one
// decimal place; it is 0 when the scan returned nothing.
type SensitiveReport struct {
	Resources    []Resource `json:"resources"`
	TotalScanned int        `json:"total_scanned"`
	Percentage   float64    `json:"sensitive_percentage"`
}
