// Package billing converts raw request counts into premium billing units
// and tracks consumption per conversation and per session lifetime.
package billing

import (
	"strings"

	"github.com/vinayprograms/agentkit/logging"
)

// DefaultMultiplier is charged when a model is not found in the catalog.
// Billing deliberately fails open: an unknown model undercounts instead of
// blocking the request.
const DefaultMultiplier = 1.0

// ModelInfo describes one entry in the model catalog.
type ModelInfo struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Multiplier  float64 `json:"multiplier"`
}

// Catalog maps model identifiers to billing multipliers. It is built once
// at process start from the runtime's model list and is immutable afterward.
type Catalog struct {
	models []ModelInfo
	logger *logging.Logger
}

// NewCatalog builds a catalog from the given model list.
func NewCatalog(models []ModelInfo) *Catalog {
	return &Catalog{
		models: models,
		logger: logging.New().WithComponent("billing"),
	}
}

// Models returns the catalog entries in their original order.
func (c *Catalog) Models() []ModelInfo {
	out := make([]ModelInfo, len(c.models))
	copy(out, c.models)
	return out
}

// Resolve returns the billing multiplier for a model identifier.
//
// Lookup order: exact id match, then case-insensitive substring match in
// either direction (catches versioned variants of the same family), then
// DefaultMultiplier with a warning. Never fails.
func (c *Catalog) Resolve(modelID string) float64 {
	for _, m := range c.models {
		if m.ID == modelID {
			return m.Multiplier
		}
	}

	lower := strings.ToLower(modelID)
	if lower != "" {
		for _, m := range c.models {
			id := strings.ToLower(m.ID)
			if strings.Contains(id, lower) || strings.Contains(lower, id) {
				return m.Multiplier
			}
		}
	}

	c.logger.Warn("model not in catalog, billing at default multiplier", map[string]interface{}{
		"model":      modelID,
		"multiplier": DefaultMultiplier,
	})
	return DefaultMultiplier
}
