package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/coi-compliance-server/internal/domain"
)

// ServerName is reported to MCP clients.
const ServerName = "coi-compliance-server"

// NewMCPServer creates the MCP server with every compliance tool registered.
func NewMCPServer(handlers *ToolHandlers, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil)

	addTool(server, handlers.logger, ToolExtractCertificate,
		"Extract policies, limits, deductibles, endorsements and dates from insurance certificate text (Hebrew or English).",
		handlers.ExtractCertificate)
	addTool(server, handlers.logger, ToolAnalyzeCertificate,
		"Extract certificate text and score it against a stored or inline requirement template. Nothing is stored.",
		handlers.AnalyzeCertificate)
	addTool(server, handlers.logger, ToolRegisterDocument,
		"Store a certificate (text layer and/or base64 document bytes) for processing. Returns the document ID.",
		handlers.RegisterDocument)
	addTool(server, handlers.logger, ToolProcessDocument,
		"Extract a stored certificate. Scanned documents use the vision model when configured.",
		handlers.ProcessDocument)
	addTool(server, handlers.logger, ToolAnalyzeDocument,
		"Run and record a compliance analysis of a processed document against a requirement template.",
		handlers.AnalyzeDocument)
	addTool(server, handlers.logger, ToolGetAnalysis,
		"Fetch a recorded compliance analysis.",
		handlers.GetAnalysis)
	addTool(server, handlers.logger, ToolListTemplates,
		"List the available requirement templates.",
		handlers.ListTemplates)

	return server
}

// addTool adapts a typed handler to the SDK. Handler errors become tool results with
// IsError set so the client sees the message, not a protocol failure.
func addTool[In, Out any](server *mcp.Server, logger *logrus.Logger, name, description string, fn func(context.Context, In) (Out, error)) {
	handler := func(ctx context.Context, req *mcp.CallToolRequest, args In) (*mcp.CallToolResult, any, error) {
		start := time.Now()
		out, err := fn(ctx, args)

		entry := logger.WithFields(logrus.Fields{
			"tool":        name,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if err != nil {
			entry.WithError(err).Warn("Tool call failed")
			return errorResult(err), nil, nil
		}
		entry.Debug("Tool call completed")
		return jsonResult(out), nil, nil
	}

	mcp.AddTool[In, any](server, &mcp.Tool{Name: name, Description: description}, handler)
	logger.WithField("tool_name", name).Debug("Registered MCP tool")
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

func errorResult(err error) *mcp.CallToolResult {
	serviceErr := domain.NewServiceError(domain.ErrorCode(err), err.Error(), "", "")
	data, marshalErr := json.Marshal(serviceErr)
	if marshalErr != nil {
		data = []byte(err.Error())
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
