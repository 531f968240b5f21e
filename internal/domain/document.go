package domain

// Page is a paginated view of a document's text, available for
// page-structured sources such as PDFs.
type Page struct {
	Number int
	Text   string
}

// RawDocument is a cleaned source document handed to the ingestion
// pipeline. It is immutable once loaded; the pipeline is its only
// owner for the duration of one ingestion run.
type RawDocument struct {
	ID       string
	Title    string
	Path     string
	Pages    []Page
	FullText string
	Metadata map[string]string
}

// Text returns the document body. FullText wins when both views are
// populated; otherwise the pages are joined in order.
func (d *RawDocument) Text() string {
	if d.FullText != "" {
		return d.FullText
	}
	var out string
	for i, p := range d.Pages {
		if i > 0 {
			out += "\n\n"
		}
		out += p.Text
	}
	return out
}
