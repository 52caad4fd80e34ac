package shared

import "fmt"

// Reference points at the source document that caused a ledger mutation,
// e.g. {Kind: "sales_order", ID: "<order uuid>"}.
type Reference struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// NewReference creates a reference to a source document
func NewReference(kind, id string) Reference {
	return Reference{Kind: kind, ID: id}
}

// IsZero returns true if the reference is empty
func (r Reference) IsZero() bool {
	return r.Kind == "" && r.ID == ""
}

// String returns "kind:id"
func (r Reference) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}
