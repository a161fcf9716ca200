// SPDX-License-Identifier: AGPL-3.0-only
package configutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type companyArgs struct {
	CompanyNumber string   `mapstructure:"company_number"`
	SICCodes      []string `mapstructure:"sic_codes"`
	Size          int      `mapstructure:"size"`
}

func TestDecodeSettingsFoldsKeyCasing(t *testing.T) {
	for _, key := range []string{"company_number", "companyNumber", "CompanyNumber", "company-number"} {
		var out companyArgs
		require.NoError(t, DecodeSettings(map[string]any{key: "06440931"}, &out), key)
		require.Equal(t, "06440931", out.CompanyNumber, key)
	}
}

func TestDecodeSettingsWeakTypes(t *testing.T) {
	var out companyArgs
	err := DecodeSettings(map[string]any{
		"sic_codes": []any{"62020"},
		"size":      "25",
	}, &out)
	require.NoError(t, err)
	require.Equal(t, []string{"62020"}, out.SICCodes)
	require.Equal(t, 25, out.Size)
}

func TestDecodeSettingsEmptyInput(t *testing.T) {
	out := companyArgs{Size: 10}
	require.NoError(t, DecodeSettings(nil, &out))
	require.Equal(t, 10, out.Size)
}

func TestRequireString(t *testing.T) {
	require.NoError(t, RequireString("x", "field"))
	require.EqualError(t, RequireString("  ", "companies_house.api_key"), "companies_house.api_key is required")
}
