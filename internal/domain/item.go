package domain

// Item sort keys accepted by the list endpoint.
const (
	SortByName         = "name"
	SortByAvailableQty = "availableQty"

	SortOrderAsc  = "asc"
	SortOrderDesc = "desc"
)

// Item represents a catalog entry with its currently available stock.
// Timestamps are unix milliseconds.
type Item struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	AvailableQty int    `json:"availableQty"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`
}

// NormalizeSort resolves sort parameters to their defaults and reports
// whether the inputs were valid. Empty values select name ascending.
func NormalizeSort(sortBy, sortOrder string) (string, string, bool) {
	switch sortBy {
	case "":
		sortBy = SortByName
	case SortByName, SortByAvailableQty:
	default:
		return "", "", false
	}

	switch sortOrder {
	case "":
		sortOrder = SortOrderAsc
	case SortOrderAsc, SortOrderDesc:
	default:
		return "", "", false
	}

	return sortBy, sortOrder, true
}
