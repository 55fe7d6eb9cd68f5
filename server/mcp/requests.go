package mcp

import "time"

// ParseSpreadsheetRequest carries parse_spreadsheet arguments
type ParseSpreadsheetRequest struct {
	FilePath string `json:"filePath"`
	FileType string `json:"fileType"`
	Sheet    string `json:"sheet,omitempty"`
}

// TemplateElement is one element of a template layout
type TemplateElement struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// CreateTemplateRequest carries create_template arguments
type CreateTemplateRequest struct {
	Type     string            `json:"type"`
	Elements []TemplateElement `json:"elements"`
}

// GenerateContentRequest carries generate_content arguments
type GenerateContentRequest struct {
	TemplateID   string                   `json:"templateId"`
	Data         []map[string]interface{} `json:"data"`
	OutputFormat string                   `json:"outputFormat,omitempty"`
}

// ExportDesignsRequest carries export_designs arguments
type ExportDesignsRequest struct {
	Designs   []string `json:"designs"`
	Format    string   `json:"format"`
	OutputDir string   `json:"outputDir"`
}

// PostSchedule describes when posts go out
type PostSchedule struct {
	StartDate *time.Time `json:"startDate,omitempty"`
	Frequency string     `json:"frequency,omitempty"`
}

// SchedulePostsRequest carries schedule_posts arguments
type SchedulePostsRequest struct {
	Designs   []string     `json:"designs"`
	Platforms []string     `json:"platforms"`
	Schedule  PostSchedule `json:"schedule"`
}
