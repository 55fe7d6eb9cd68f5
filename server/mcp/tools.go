package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names exposed by the server.
const (
	ToolParseSpreadsheet = "parse_spreadsheet"
	ToolCreateTemplate   = "create_template"
	ToolGenerateContent  = "generate_content"
	ToolExportDesigns    = "export_designs"
	ToolSchedulePosts    = "schedule_posts"
)

var designFormats = []string{"png", "jpg", "pdf"}

// Tools returns every tool declaration in registration order.
func Tools() []mcp.Tool {
	return []mcp.Tool{
		parseSpreadsheetTool(),
		createTemplateTool(),
		generateContentTool(),
		exportDesignsTool(),
		schedulePostsTool(),
	}
}

func parseSpreadsheetTool() mcp.Tool {
	return mcp.NewTool(ToolParseSpreadsheet,
		mcp.WithDescription("Parse Excel or CSV files for content generation. Returns a JSON array with one object per data row, keyed by the header row."),
		mcp.WithString("filePath", mcp.Description("Path to the data file"), mcp.Required()),
		mcp.WithString("fileType", mcp.Description("Type of file"), mcp.Enum("excel", "csv"), mcp.Required()),
		mcp.WithString("sheet", mcp.Description("Sheet name (for Excel); defaults to the first sheet")),
	)
}

func createTemplateTool() mcp.Tool {
	return mcp.NewTool(ToolCreateTemplate,
		mcp.WithDescription("Create a new Canva template for content generation"),
		mcp.WithString("type", mcp.Description("Type of template"), mcp.Enum("social", "presentation", "document"), mcp.Required()),
		mcp.WithArray("elements",
			mcp.Description("Template elements"),
			mcp.Required(),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"type":       map[string]any{"type": "string", "enum": []string{"text", "image", "shape"}},
					"properties": map[string]any{"type": "object"},
				},
			}),
		),
	)
}

func generateContentTool() mcp.Tool {
	return mcp.NewTool(ToolGenerateContent,
		mcp.WithDescription("Generate multiple designs using template and data"),
		mcp.WithString("templateId", mcp.Description("Template ID"), mcp.Required()),
		mcp.WithArray("data",
			mcp.Description("Array of data objects"),
			mcp.Required(),
			mcp.Items(map[string]any{"type": "object"}),
		),
		mcp.WithString("outputFormat", mcp.Description("Output format"), mcp.Enum(designFormats...)),
	)
}

func exportDesignsTool() mcp.Tool {
	return mcp.NewTool(ToolExportDesigns,
		mcp.WithDescription("Export generated designs in bulk"),
		mcp.WithArray("designs",
			mcp.Description("Array of design IDs"),
			mcp.Required(),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("format", mcp.Description("Export format"), mcp.Enum(designFormats...), mcp.Required()),
		mcp.WithString("outputDir", mcp.Description("Output directory"), mcp.Required()),
	)
}

func schedulePostsTool() mcp.Tool {
	return mcp.NewTool(ToolSchedulePosts,
		mcp.WithDescription("Schedule content for social media posting"),
		mcp.WithArray("designs",
			mcp.Description("Array of design IDs"),
			mcp.Required(),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithArray("platforms",
			mcp.Description("Target platforms"),
			mcp.Required(),
			mcp.Items(map[string]any{
				"type": "string",
				"enum": []string{"instagram", "facebook", "twitter", "linkedin"},
			}),
		),
		mcp.WithObject("schedule",
			mcp.Description("Posting schedule"),
			mcp.Required(),
			mcp.Properties(map[string]any{
				"startDate": map[string]any{"type": "string", "format": "date-time"},
				"frequency": map[string]any{"type": "string", "enum": []string{"daily", "weekly", "custom"}},
			}),
		),
	)
}
