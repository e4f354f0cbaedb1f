package model

// Todo mirrors the remote API's item shape. The remote API is the source
// of truth; local copies only live in the read cache.
//
// Provisional marks items the remote API never actually stored (it
// acknowledges creates with a fabricated id). Updates to provisional
// items are applied to the local cache only.
type Todo struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Completed   bool   `json:"completed"`
	UserID      int    `json:"userId"`
	Provisional bool   `json:"provisional,omitempty"`
}

type TodoPage struct {
	Data  []Todo `json:"data"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}
