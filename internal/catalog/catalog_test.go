package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"inspection-bot/internal/domain"
)

const sample = `
companies:
  - PRIMA TYNK Janusz Pelc
  - Budimex S.A.
units:
  - "46/2"
  - "70/1"
blocks:
  - label: B5
    sub_units: ["1", "2"]
  - label: Szereg 7
    sub_units: ["7/1", "7/2", "7/3"]
photo_folders:
  units: Lokale
`

func mustParse(t *testing.T, raw string) *Catalog {
	t.Helper()
	c, err := Parse([]byte(raw))
	require.NoError(t, err)
	return c
}

func TestParse_HappyPath(t *testing.T) {
	c := mustParse(t, sample)
	require.Equal(t, []string{"PRIMA TYNK Janusz Pelc", "Budimex S.A."}, c.Companies())

	targets := c.Targets()
	require.Len(t, targets, 4)
	require.Equal(t, domain.ModeUnit, targets[0].Mode)
	require.Equal(t, domain.ModeBlock, targets[2].Mode)
	require.Equal(t, []string{"1", "2"}, targets[2].SubUnits)
}

func TestLoad_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	c, err := Load(path)
	require.NoError(t, err)
	require.Len(t, c.Targets(), 4)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParse_ValidationErrors(t *testing.T) {
	cases := map[string]string{
		"no companies":      "units: [a]",
		"blank company":     "companies: ['  ']\nunits: [a]",
		"no targets":        "companies: [x]",
		"duplicate target":  "companies: [x]\nunits: [a, A]",
		"empty block":       "companies: [x]\nblocks: [{label: B1}]",
		"duplicate subunit": "companies: [x]\nblocks: [{label: B1, sub_units: ['1', '1']}]",
		"bad yaml":          "companies: [x",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			require.Error(t, err)
		})
	}
}

func TestParse_ButtonPayloadLimit(t *testing.T) {
	// "target:" is 7 bytes, "sub:" is 4; payloads cap at 64 bytes.
	fits := strings.Repeat("a", 57)
	c := mustParse(t, "companies: [x]\nunits: ['"+fits+"']\nblocks: [{label: B1, sub_units: ['"+strings.Repeat("1", 60)+"']}]")
	require.Len(t, c.Targets(), 2)

	cases := map[string]string{
		"unit label":     "companies: [x]\nunits: ['" + strings.Repeat("a", 58) + "']",
		"block label":    "companies: [x]\nblocks: [{label: '" + strings.Repeat("b", 58) + "', sub_units: ['1']}]",
		"sub-unit label": "companies: [x]\nblocks: [{label: B1, sub_units: ['" + strings.Repeat("1", 61) + "']}]",
		// 29 two-byte runes: 58 bytes.
		"multibyte label": "companies: [x]\nunits: ['" + strings.Repeat("ł", 29) + "']",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			require.ErrorContains(t, err, "too long for a button")
		})
	}
}

func TestLookup(t *testing.T) {
	c := mustParse(t, sample)

	tgt, ok := c.Lookup("46/2")
	require.True(t, ok)
	require.Equal(t, domain.ModeUnit, tgt.Mode)

	tgt, ok = c.Lookup("Lokal 70/1")
	require.True(t, ok)
	require.Equal(t, "70/1", tgt.Label)

	tgt, ok = c.Lookup("b5")
	require.True(t, ok)
	require.Equal(t, domain.ModeBlock, tgt.Mode)

	tgt, ok = c.Lookup("SZEREG 7")
	require.True(t, ok)
	require.Equal(t, "Szereg 7", tgt.Label)

	_, ok = c.Lookup("99/9")
	require.False(t, ok)
}

func TestTarget_HasSubUnit(t *testing.T) {
	c := mustParse(t, sample)
	tgt, _ := c.Get("B5")
	require.True(t, tgt.HasSubUnit("2"))
	require.False(t, tgt.HasSubUnit("3"))
}

func TestPhotoFolder(t *testing.T) {
	c := mustParse(t, sample)
	unit, _ := c.Get("46/2")
	block, _ := c.Get("Szereg 7")
	require.Equal(t, "Lokale/46.2", c.PhotoFolder(unit))
	require.Equal(t, "Szeregi/SZEREG 7", c.PhotoFolder(block))
}
