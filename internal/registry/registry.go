// Package registry holds the fixed set of models the proxy offers.
package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/YosriMlik/llm-wrapper/internal/models"
)

// freeSuffix marks OpenRouter free tier variants; it is hidden from display names.
const freeSuffix = ":free"

// ErrEmpty is returned when a registry is built without models.
var ErrEmpty = errors.New("model registry is empty")

// Registry is an immutable model set with a default member.
type Registry struct {
	ids          []string
	index        map[string]struct{}
	defaultModel string
}

// New builds a registry. An empty defaultID selects the first model; a
// defaultID outside ids is an error.
func New(ids []string, defaultID string) (*Registry, error) {
	if len(ids) == 0 {
		return nil, ErrEmpty
	}

	r := &Registry{
		ids:   make([]string, 0, len(ids)),
		index: make(map[string]struct{}, len(ids)),
	}
	for _, id := range ids {
		if _, dup := r.index[id]; dup || id == "" {
			continue
		}
		r.index[id] = struct{}{}
		r.ids = append(r.ids, id)
	}

	if defaultID == "" {
		defaultID = r.ids[0]
	}
	if _, ok := r.index[defaultID]; !ok {
		return nil, fmt.Errorf("default model %q is not registered", defaultID)
	}
	r.defaultModel = defaultID

	return r, nil
}

// IsValidModel reports whether id is registered.
func (r *Registry) IsValidModel(id string) bool {
	_, ok := r.index[id]
	return ok
}

// Default returns the default model id.
func (r *Registry) Default() string {
	return r.defaultModel
}

// Resolve returns requested, or the default when requested is empty.
func (r *Registry) Resolve(requested string) string {
	if requested == "" {
		return r.defaultModel
	}
	return requested
}

// Models lists the registered models in configuration order.
func (r *Registry) Models() []models.ModelInfo {
	out := make([]models.ModelInfo, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, models.ModelInfo{ID: id, Name: DisplayName(id)})
	}
	return out
}

// DisplayName strips the free tier suffix from a model id.
func DisplayName(id string) string {
	return strings.TrimSuffix(id, freeSuffix)
}
