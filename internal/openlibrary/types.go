package openlibrary

// SubjectResponse is the body returned by /subjects/<subject>.json.
// Works is nil when the "works" key is absent or null.
type SubjectResponse struct {
	Key       string `json:"key,omitempty"`
	Name      string `json:"name,omitempty"`
	WorkCount int    `json:"work_count,omitempty"`
	Works     []Work `json:"works"`
}

// Work is one entry of the subject's works list
type Work struct {
	Key     *string     `json:"key,omitempty"`
	Title   *string     `json:"title,omitempty"`
	Authors []AuthorRef `json:"authors,omitempty"`
}

// AuthorRef is an author reference nested under a work
type AuthorRef struct {
	Key  *string `json:"key,omitempty"`
	Name *string `json:"name,omitempty"`
}
