// internal/model/template.go
package model

const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
)

type Template struct {
	ID        int64    `json:"id" yaml:"id"`
	Name      string   `json:"name" yaml:"name"`
	Subject   string   `json:"subject" yaml:"subject"`
	Content   string   `json:"content" yaml:"content"`
	Format    string   `json:"format,omitempty" yaml:"format"`
	Variables []string `json:"variables,omitempty" yaml:"variables"`
}

type RenderedTemplate struct {
	Subject string `json:"subject"`
	Content string `json:"content"`
}
