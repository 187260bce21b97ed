package dto

import (
	"github.com/arkivo-io/arkivo/internal/models"
)

// StartScanRequest kicks off a catalog scan over a root path.
type StartScanRequest struct {
	RootPath string `json:"root_path" binding:"required"`
	ScanType string `json:"scan_type" binding:"omitempty,oneof=initial scheduled manual"`
}

// SearchFilesQuery filters catalog searches.
type SearchFilesQuery struct {
	PathPrefix     string `form:"path_prefix"`
	Name           string `form:"name"`
	Extension      string `form:"extension"`
	MinSize        *int64 `form:"min_size" binding:"omitempty,min=0"`
	MaxSize        *int64 `form:"max_size" binding:"omitempty,min=0"`
	Temperature    string `form:"temperature" binding:"omitempty,oneof=hot warm cold"`
	DuplicatesOnly bool   `form:"duplicates_only"`
	IncludeDeleted bool   `form:"include_deleted"`
	Limit          int    `form:"limit" binding:"omitempty,min=1,max=1000"`
	Offset         int    `form:"offset" binding:"omitempty,min=0"`
}

// ToFilter converts query parameters into the repository filter.
func (q SearchFilesQuery) ToFilter() models.FileFilter {
	filter := models.FileFilter{
		PathPrefix:     q.PathPrefix,
		NameContains:   q.Name,
		DuplicatesOnly: q.DuplicatesOnly,
		IncludeDeleted: q.IncludeDeleted,
		MinSize:        q.MinSize,
		MaxSize:        q.MaxSize,
		Limit:          q.Limit,
		Offset:         q.Offset,
	}
	if q.Extension != "" {
		ext := q.Extension
		filter.Extension = &ext
	}
	if q.Temperature != "" {
		tier := models.Tier(q.Temperature)
		filter.Temperature = &tier
	}
	return filter
}
