// ABOUTME: Fixture data served by the stub backend.
// ABOUTME: Two templates on the primary API and two users on system2.

package stub

// Template is a mail template as returned by the templates API.
// Body is only present on the detail endpoint.
type Template struct {
	TemplateID   int    `json:"template_id"`
	Account      int    `json:"account"`
	Valid        int    `json:"valid"`
	TemplateName string `json:"template_name"`
	ToAdr        string `json:"to_adr"`
	CcAdr        string `json:"cc_adr"`
	Subject      string `json:"subject"`
	Body         string `json:"body,omitempty"`
}

// User is a user record as returned by the system2 users API.
type User struct {
	UserID int    `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// TemplateList is the body of GET /templates.
type TemplateList struct {
	TemplateList []Template `json:"template_list"`
}

// UserList is the body of GET /users.
type UserList struct {
	UserList []User `json:"user_list"`
}

func defaultTemplates() []Template {
	return []Template{
		{
			TemplateID:   1,
			Account:      100,
			Valid:        1,
			TemplateName: "Template A",
			ToAdr:        "to@example.com",
			CcAdr:        "cc@example.com",
			Subject:      "Subject A",
			Body:         "This is the body of Template A.",
		},
		{
			TemplateID:   2,
			Account:      100,
			Valid:        1,
			TemplateName: "Template B",
			ToAdr:        "to2@example.com",
			CcAdr:        "",
			Subject:      "Subject B",
			Body:         "This is the body of Template B.",
		},
	}
}

func defaultUsers() []User {
	return []User{
		{UserID: 1, Name: "Alice", Email: "alice@example.com", Role: "admin"},
		{UserID: 2, Name: "Bob", Email: "bob@example.com", Role: "member"},
	}
}
