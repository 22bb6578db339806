// internal/model/contact.go
package model

type Contact struct {
	ID        int64    `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Tags      []string `json:"tags,omitempty"`
}

// TemplateVars are the variables a template is rendered with for this contact.
func (c *Contact) TemplateVars() map[string]string {
	return map[string]string{
		"email":     c.Email,
		"firstName": c.FirstName,
		"lastName":  c.LastName,
		"fullName":  c.FirstName + " " + c.LastName,
	}
}
