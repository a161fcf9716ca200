// SPDX-License-Identifier: AGPL-3.0-only
package tools

import (
	"fmt"
	"strings"

	"github.com/jolks/mcp-toolchat/internal/config"
)

// Tool names served by the companies registry and CSV endpoint.
const (
	SummariseCSVFile            = "summarise_csv_file"
	ListAvailableCompetitors    = "list_available_competitors"
	GetCompanyProfile           = "get_company_profile"
	GetCompanyOfficers          = "get_company_officers"
	GetCompanyCharges           = "get_company_charges"
	GetPersonSignificantControl = "get_person_significant_control"
	GetCompanyLatestFiling      = "get_company_latest_filing"
	SearchBySICCode             = "search_by_sic_code"
)

// CSVFileParams are the arguments of summarise_csv_file.
type CSVFileParams struct {
	Filename string `json:"filename" mapstructure:"filename" description:"Name of the CSV file in the data directory (e.g. 'sample.csv')"`
}

// CompanyNumberParams are the arguments of the per-company registry tools.
type CompanyNumberParams struct {
	CompanyNumber string `json:"company_number" mapstructure:"company_number" description:"Company number of a company registered at Companies House (e.g. '06440931')"`
}

// SICSearchParams are the arguments of search_by_sic_code.
type SICSearchParams struct {
	SICCodes []string `json:"sic_codes" mapstructure:"sic_codes" description:"Standard Industrial Classification codes to match (e.g. ['62020'])"`
	Size     int      `json:"size,omitempty" mapstructure:"size" description:"Number of results to return (default 10)"`
}

const listCompetitorsHint = "The company number is unknown. You should call the 'list_available_competitors' tool to get a list of companies and their numbers."

// Catalog returns the locally declared tools. competitors feeds the guidance
// for get_company_profile.
func Catalog(competitors []config.Competitor) []Spec {
	companyParams := SchemaFromStruct(CompanyNumberParams{})
	companyTool := func(name, description string) Spec {
		return Spec{
			Name:        name,
			Description: description,
			Params:      companyParams,
			Guidance:    func([]string) string { return listCompetitorsHint },
		}
	}

	return []Spec{
		{
			Name:        SummariseCSVFile,
			Description: "Summarise a CSV file by describing its content: number of rows, columns and the column headers.",
			Params:      SchemaFromStruct(CSVFileParams{}),
			Guidance: func([]string) string {
				return "The user did not provide a filename. You must ask the user for the name of the CSV file to summarise, for example 'sample.csv'."
			},
		},
		{
			Name:        ListAvailableCompetitors,
			Description: "Lists the known competitor companies with their Companies House numbers.",
		},
		{
			Name:        GetCompanyProfile,
			Description: "Provide a company profile from Companies House.",
			Params:      companyParams,
			Guidance: func([]string) string {
				return knownCompaniesGuidance(competitors)
			},
		},
		companyTool(GetCompanyOfficers, "Obtains information about the officers of a company from Companies House."),
		companyTool(GetCompanyCharges, "Obtains the charges registered against a company at Companies House."),
		companyTool(GetPersonSignificantControl, "Obtains the persons with significant control of a company from Companies House."),
		companyTool(GetCompanyLatestFiling, "Obtains the latest accounts filing of a company from Companies House."),
		{
			Name:        SearchBySICCode,
			Description: "Searches Companies House for companies registered under the given SIC codes.",
			Params:      SchemaFromStruct(SICSearchParams{}),
			Guidance: func([]string) string {
				return "No SIC code was supplied. Ask the user which SIC code to search for, for example 62020 (information technology consultancy)."
			},
		},
	}
}

// NewCatalogRegistry builds a registry holding Catalog(competitors).
func NewCatalogRegistry(competitors []config.Competitor) (*Registry, error) {
	r := NewRegistry()
	for _, spec := range Catalog(competitors) {
		if err := r.Register(spec); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func knownCompaniesGuidance(competitors []config.Competitor) string {
	if len(competitors) == 0 {
		return "A Company Number is required. Ask the user for the company number, or call the 'list_available_competitors' tool to get a list of companies and their numbers."
	}
	lines := make([]string, len(competitors))
	for i, c := range competitors {
		lines[i] = fmt.Sprintf("%s (Number: %s)", c.Name, c.Number)
	}
	return "A Company Number is required. Please ask the user to specify one of the following known companies:\n - " +
		strings.Join(lines, "\n - ")
}
