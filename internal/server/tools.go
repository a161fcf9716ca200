// SPDX-License-Identifier: AGPL-3.0-only
package server

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jolks/mcp-toolchat/internal/companieshouse"
	"github.com/jolks/mcp-toolchat/internal/tools"
)

type toolHandler = mcp.ToolHandler

// handlers maps catalog tool names to their implementation.
func (s *MCPServer) handlers() map[string]toolHandler {
	return map[string]toolHandler{
		tools.ListAvailableCompetitors:    s.handleListCompetitors,
		tools.GetCompanyProfile:           s.companyResource(tools.GetCompanyProfile, companieshouse.PurposeProfile),
		tools.GetCompanyOfficers:          s.companyResource(tools.GetCompanyOfficers, companieshouse.PurposeOfficers),
		tools.GetCompanyCharges:           s.companyResource(tools.GetCompanyCharges, companieshouse.PurposeCharges),
		tools.GetPersonSignificantControl: s.companyResource(tools.GetPersonSignificantControl, companieshouse.PurposePSC),
		tools.GetCompanyLatestFiling:      s.handleLatestFiling,
		tools.SearchBySICCode:             s.handleSearchBySIC,
		tools.SummariseCSVFile:            s.handleSummariseCSV,
	}
}

// registerTools adds every catalog tool that has a handler.
func (s *MCPServer) registerTools() {
	handlers := s.handlers()
	for _, spec := range tools.Catalog(s.config.Competitors) {
		handler, ok := handlers[spec.Name]
		if !ok {
			s.logger.Warnf("No handler for tool %s, skipping", spec.Name)
			continue
		}
		s.specs[spec.Name] = spec
		registerTool(s.server, spec, handler)
	}
}

func registerTool(srv *mcp.Server, spec tools.Spec, handler toolHandler) {
	srv.AddTool(&mcp.Tool{
		Name:        spec.Name,
		Description: spec.Description,
		InputSchema: spec.InputSchema(),
	}, handler)
}
