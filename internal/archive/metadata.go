package archive

const (
	TypePlugin  = "plugin"
	TypeTheme   = "theme"
	TypeGeneric = "generic"
)

// Metadata describes one package archive. The File* fields are filled in by
// whoever resolved the archive against its storage location.
type Metadata struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Version     string `json:"version"`
	Type        string `json:"type"`
	Author      string `json:"author,omitempty"`
	AuthorURI   string `json:"author_homepage,omitempty"`
	Homepage    string `json:"homepage,omitempty"`
	Description string `json:"description,omitempty"`
	Requires    string `json:"requires,omitempty"`
	Tested      string `json:"tested,omitempty"`
	RequiresPHP string `json:"requires_php,omitempty"`
	DetailsURL  string `json:"details_url,omitempty"`

	FileName         string `json:"file_name,omitempty"`
	FilePath         string `json:"file_path,omitempty"`
	FileSize         int64  `json:"file_size,omitempty"`
	FileLastModified int64  `json:"file_last_modified,omitempty"`
}
