package catalog

import (
	"time"

	"magpie/internal/workflow"
)

// Workflow is an imported node graph in API format.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Graph       workflow.Graph `json:"apiJson"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// WorkflowSummary omits the graph for listings.
type WorkflowSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	NodeCount   int       `json:"nodeCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// LayoutModule toggles and labels one input control on a page.
type LayoutModule struct {
	ID      workflow.Module `json:"id"`
	Enabled bool            `json:"isEnabled"`
	Label   string          `json:"label"`
}

// Layout lists a page's input controls in display order.
type Layout struct {
	Modules []LayoutModule `json:"modules"`
}

// EnabledModules reports which modules are switched on. Modules absent from
// the layout are treated as disabled.
func (l Layout) EnabledModules() map[workflow.Module]bool {
	enabled := make(map[workflow.Module]bool, len(l.Modules))
	for _, m := range l.Modules {
		enabled[m.ID] = m.Enabled
	}
	return enabled
}

// ModelPreset is a selectable model value offered by a page.
type ModelPreset struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Page is a menu entry bound to a workflow with its input mappings.
type Page struct {
	ID            string            `json:"id"`
	Label         string            `json:"label"`
	Icon          string            `json:"icon"`
	PageTitle     string            `json:"pageTitle,omitempty"`
	PageDesc      string            `json:"pageDesc,omitempty"`
	WorkflowID    string            `json:"workflowId,omitempty"`
	Enabled       bool              `json:"isEnabled"`
	Layout        Layout            `json:"layout"`
	InputMappings workflow.Mappings `json:"inputMappings"`
	ModelPresets  []ModelPreset     `json:"modelPresets,omitempty"`
	OutputNodeID  string            `json:"outputNodeId,omitempty"`
}

// Backend is a remote graph-execution server.
type Backend struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	URL                string   `json:"url"`
	AllowedDepartments []string `json:"allowedDepartments"`
	Enabled            bool     `json:"isEnabled"`
}

// Usable reports whether the backend can receive jobs.
func (b Backend) Usable() bool {
	return b.Enabled && b.URL != ""
}

// Serves reports whether members of department may use the backend. An empty
// allow list admits everyone.
func (b Backend) Serves(department string) bool {
	if len(b.AllowedDepartments) == 0 {
		return true
	}
	for _, d := range b.AllowedDepartments {
		if d == department {
			return true
		}
	}
	return false
}

// Slide is one home page carousel entry.
type Slide struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Desc       string `json:"desc"`
	ButtonText string `json:"buttonText"`
	ButtonIcon string `json:"buttonIcon"`
	LinkTarget string `json:"linkTarget"`
	Gradient   string `json:"gradient"`
	BgImage    string `json:"bgImage,omitempty"`
}

// Feature is one home page feature card.
type Feature struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Desc       string `json:"desc"`
	Color      string `json:"color"`
	LinkTarget string `json:"linkTarget,omitempty"`
}

// HomePage holds the landing page content.
type HomePage struct {
	MainTitle string    `json:"mainTitle"`
	SubTitle  string    `json:"subTitle"`
	Slides    []Slide   `json:"slides"`
	Features  []Feature `json:"features"`
}

// Settings holds site-wide branding and the department list.
type Settings struct {
	Title          string    `json:"title"`
	EnglishTitle   string    `json:"englishTitle"`
	LogoURL        string    `json:"logoUrl,omitempty"`
	Announcement   string    `json:"announcement,omitempty"`
	AdminQRCodeURL string    `json:"adminQrCodeUrl,omitempty"`
	Departments    []string  `json:"departments"`
	HomePage       *HomePage `json:"homePage,omitempty"`
}

// Role is a user's permission level.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleUser       Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleUser:
		return true
	}
	return false
}

// IsAdmin reports whether r grants access to admin operations.
func (r Role) IsAdmin() bool {
	return r == RoleSuperAdmin || r == RoleAdmin
}

// User is a registered studio member. The password hash never leaves the store.
type User struct {
	Phone      string    `json:"phone"`
	Nickname   string    `json:"nickname,omitempty"`
	AvatarURL  string    `json:"avatarUrl,omitempty"`
	Department string    `json:"department,omitempty"`
	Role       Role      `json:"role"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Comment is a guestbook entry. Replies are one level deep.
type Comment struct {
	ID             string    `json:"id"`
	UserPhone      string    `json:"userPhone"`
	UserNickname   string    `json:"userNickname,omitempty"`
	UserAvatar     string    `json:"userAvatar,omitempty"`
	UserDepartment string    `json:"userDepartment,omitempty"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	Likes          int       `json:"likes"`
	Replies        []Comment `json:"replies"`
}
