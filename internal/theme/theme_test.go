package theme

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.LeadingAnnex())
	assert.False(t, cfg.TrailingAnnex())
}

func TestLoadOverridesSelectedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "render.toml")
	blob := `
[colors]
primary = "#0f0"

[labels]
salutation = "Dear customer,"

[annex]
placement = "both"
`
	require.NoError(t, os.WriteFile(path, []byte(blob), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{G: 0xff, A: 0xff}, cfg.Primary())
	assert.Equal(t, "Dear customer,", cfg.Labels.Salutation)
	assert.Equal(t, "Ref:", cfg.Labels.RefLabel)
	assert.True(t, cfg.TrailingAnnex())
	assert.Equal(t, "FORMULAR DE OFERTA", cfg.Annex.Title)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"bad color":     "[colors]\ntext = \"blue\"\n",
		"bad placement": "[annex]\nplacement = \"middle\"\n",
		"bad scale":     "[raster]\nscale = 0\n",
		"bad toml":      "[colors\n",
	}
	for name, blob := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".toml")
			require.NoError(t, os.WriteFile(path, []byte(blob), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#1d4ed8")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0x1d, G: 0x4e, B: 0xd8, A: 0xff}, c)

	_, err = ParseHex("#12345")
	assert.Error(t, err)
}
