// SPDX-License-Identifier: AGPL-3.0-only
package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jolks/mcp-toolchat/internal/companieshouse"
	"github.com/jolks/mcp-toolchat/internal/configutil"
	"github.com/jolks/mcp-toolchat/internal/errors"
	"github.com/jolks/mcp-toolchat/internal/tools"
	"github.com/jolks/mcp-toolchat/internal/utils"
)

// extractParams decodes the request arguments into params. Keys are matched
// loosely so companyNumber fills a company_number field.
func (s *MCPServer) extractParams(toolName string, request *mcp.CallToolRequest, params interface{}) (missing []string, err error) {
	var raw []byte
	if request != nil && request.Params != nil {
		raw = request.Params.Arguments
	}
	var args map[string]any
	if err := utils.JsonUnmarshal(raw, &args); err != nil {
		return nil, errors.InvalidInput(fmt.Sprintf("invalid parameters: %v", err))
	}

	spec := s.specs[toolName]
	args = tools.Canonicalize(spec, args)
	if err := configutil.DecodeSettings(args, params); err != nil {
		return nil, errors.InvalidInput(fmt.Sprintf("invalid parameters: %v", err))
	}
	return tools.MissingRequired(spec, args), nil
}

// structuredResponse returns payload both as structured content and as JSON text.
func structuredResponse(payload map[string]any) (*mcp.CallToolResult, error) {
	text, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to marshal response: %w", err))
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: string(text)}},
		StructuredContent: payload,
	}, nil
}

func createSuccessResponse(data any) (*mcp.CallToolResult, error) {
	return structuredResponse(map[string]any{"status": "success", "data": data})
}

func (s *MCPServer) createGuidanceResponse(toolName string, missing []string) (*mcp.CallToolResult, error) {
	message := fmt.Sprintf("Missing required arguments: %v. Ask the user for them.", missing)
	if spec, ok := s.specs[toolName]; ok && spec.Guidance != nil {
		message = spec.Guidance(missing)
	}
	return structuredResponse(map[string]any{"status": "user_guidance", "message": message})
}

// createAPIErrorResponse reports a non-2xx answer from the registry.
func createAPIErrorResponse(resp *companieshouse.Response) (*mcp.CallToolResult, error) {
	return structuredResponse(map[string]any{
		"status":     "error",
		"statusCode": resp.StatusCode,
		"details":    string(resp.Body),
	})
}

// createErrorResponse reports a failure of the tool itself.
func createErrorResponse(err error) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}, nil
}

// registryResponse converts a registry answer into a tool result.
func registryResponse(resp *companieshouse.Response, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return createErrorResponse(err)
	}
	if !resp.OK() {
		return createAPIErrorResponse(resp)
	}
	data, err := resp.Decode()
	if err != nil {
		return createErrorResponse(err)
	}
	return createSuccessResponse(data)
}

func (s *MCPServer) handleListCompetitors(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.Debugf("Handling %s request", tools.ListAvailableCompetitors)
	competitors := make([]map[string]any, len(s.config.Competitors))
	for i, c := range s.config.Competitors {
		competitors[i] = map[string]any{"name": c.Name, "number": c.Number}
	}
	return createSuccessResponse(competitors)
}

// companyResource serves /company/{number}[/{purpose}].
func (s *MCPServer) companyResource(toolName, purpose string) toolHandler {
	return func(ctx context.Context, request *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var params tools.CompanyNumberParams
		missing, err := s.extractParams(toolName, request, &params)
		if err != nil {
			return createErrorResponse(err)
		}
		if len(missing) > 0 {
			return s.createGuidanceResponse(toolName, missing)
		}

		s.logger.Debugf("Handling %s request for company %s", toolName, params.CompanyNumber)
		return registryResponse(s.registry.Company(ctx, params.CompanyNumber, purpose, nil))
	}
}

func (s *MCPServer) handleLatestFiling(ctx context.Context, request *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params tools.CompanyNumberParams
	missing, err := s.extractParams(tools.GetCompanyLatestFiling, request, &params)
	if err != nil {
		return createErrorResponse(err)
	}
	if len(missing) > 0 {
		return s.createGuidanceResponse(tools.GetCompanyLatestFiling, missing)
	}

	s.logger.Debugf("Handling %s request for company %s", tools.GetCompanyLatestFiling, params.CompanyNumber)
	return registryResponse(s.registry.LatestFiling(ctx, params.CompanyNumber))
}

func (s *MCPServer) handleSearchBySIC(ctx context.Context, request *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params tools.SICSearchParams
	missing, err := s.extractParams(tools.SearchBySICCode, request, &params)
	if err != nil {
		return createErrorResponse(err)
	}
	if len(missing) > 0 {
		return s.createGuidanceResponse(tools.SearchBySICCode, missing)
	}

	s.logger.Debugf("Handling %s request for %v", tools.SearchBySICCode, params.SICCodes)
	return registryResponse(s.registry.SearchBySIC(ctx, params.SICCodes, params.Size))
}

func (s *MCPServer) handleSummariseCSV(_ context.Context, request *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params tools.CSVFileParams
	missing, err := s.extractParams(tools.SummariseCSVFile, request, &params)
	if err != nil {
		return createErrorResponse(err)
	}
	if len(missing) > 0 {
		return s.createGuidanceResponse(tools.SummariseCSVFile, missing)
	}

	s.logger.Debugf("Handling %s request for %s", tools.SummariseCSVFile, params.Filename)
	summary, err := s.data.SummariseCSV(params.Filename)
	if err != nil {
		return createErrorResponse(err)
	}
	return createSuccessResponse(map[string]any{
		"summary":  summary.String(),
		"filename": summary.Filename,
		"rows":     summary.Rows,
		"columns":  summary.Columns,
		"headers":  summary.Headers,
	})
}
