package vcauth

import "strings"

// List splits a comma separated parameter, dropping empty items
func (p Params) List(key string) []string {
	var items []string
	for _, item := range strings.Split(p[key], ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Merge returns a copy of the parameters, overridden by more specific ones (e.g. per-root parameters)
func (p Params) Merge(overrides Params) Params {
	merged := make(Params, len(p)+len(overrides))
	for k, v := range p {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
