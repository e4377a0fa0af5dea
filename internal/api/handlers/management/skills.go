// Copyright 2026 The Nyx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package management

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/traylinx/nyx/internal/skills"
)

// SkillsResponse represents the response for the skills endpoint.
type SkillsResponse struct {
	// Count is the total number of loaded skills
	Count int `json:"count"`

	// Skills contains metadata for all loaded skills
	Skills []SkillMetadata `json:"skills"`
}

// SkillMetadata is one skill plus its usage counters.
type SkillMetadata struct {
	skills.Descriptor
	Usage skills.Usage `json:"usage"`
}

// GetSkills handles GET /v0/management/skills.
//
// Response:
//   - 200: skill metadata with usage statistics
//   - 503: no skill registry configured
func (h *Handler) GetSkills(c *gin.Context) {
	if h == nil || h.skills == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "skill registry not available"})
		return
	}

	list := h.skills.List()
	usage := h.skills.UsageStats()

	metadata := make([]SkillMetadata, len(list))
	for i, desc := range list {
		metadata[i] = SkillMetadata{Descriptor: desc, Usage: usage[desc.Name]}
	}

	c.JSON(http.StatusOK, SkillsResponse{
		Count:  len(metadata),
		Skills: metadata,
	})
}
