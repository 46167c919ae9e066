package access

import "strings"

// MenuItem is one navigation entry. An empty Roles set means visible to all.
type MenuItem struct {
	Title string
	Path  string
	Roles []string
}

// VisibleMenu is a pure derivation of the menu for a role: no session reads,
// no side effects, same input always yields the same output.
func VisibleMenu(items []MenuItem, role string) []MenuItem {
	out := make([]MenuItem, 0, len(items))
	for _, item := range items {
		if visibleTo(item, role) {
			out = append(out, item)
		}
	}

	return out
}

func visibleTo(item MenuItem, role string) bool {
	if len(item.Roles) == 0 {
		return true
	}

	for _, allowed := range item.Roles {
		if strings.EqualFold(strings.TrimSpace(allowed), strings.TrimSpace(role)) {
			return true
		}
	}

	return false
}
