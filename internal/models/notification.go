package models

// Notification variants.
const (
	VariantDefault     = "default"
	VariantDestructive = "destructive"
)

// Notification is the only user-facing success/error payload the core emits.
type Notification struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description"`
	Variant     string `json:"variant"`
}
