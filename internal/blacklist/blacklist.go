// Package blacklist implements the static model-scope denylist evaluated at
// request ingress, before any store is touched.
package blacklist

import "github.com/thebtf/semcache/pkg/models"

// List is a static set of normalised model names the adapter rejects
// outright, matched before pre-processing or embedding.
type List struct {
	set map[string]struct{}
}

// New builds a List from raw (possibly un-normalised) model names.
func New(models_ []string) *List {
	set := make(map[string]struct{}, len(models_))
	for _, m := range models_ {
		set[models.NormalizeModel(m)] = struct{}{}
	}
	return &List{set: set}
}

// Blocked reports whether the normalised model name is blacklisted.
func (l *List) Blocked(model string) bool {
	if l == nil {
		return false
	}
	_, ok := l.set[models.NormalizeModel(model)]
	return ok
}
