// Package catalog loads the static reference data of an inspection site:
// canonical companies, inspectable units, blocks with their sub-units and the
// photo folder roots.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"inspection-bot/internal/domain"
)

const (
	defaultUnitsFolder  = "Lokale"
	defaultBlocksFolder = "Szeregi"

	// maxCallbackData is Telegram's limit on inline button payloads.
	maxCallbackData = 64
	// prefixes the bot puts in front of labels in button payloads.
	targetTokenPrefix  = "target:"
	subUnitTokenPrefix = "sub:"
)

type fileBlock struct {
	Label    string   `yaml:"label"`
	SubUnits []string `yaml:"sub_units"`
}

type fileFolders struct {
	Units  string `yaml:"units"`
	Blocks string `yaml:"blocks"`
}

type file struct {
	Companies    []string    `yaml:"companies"`
	Units        []string    `yaml:"units"`
	Blocks       []fileBlock `yaml:"blocks"`
	PhotoFolders fileFolders `yaml:"photo_folders"`
}

// Target is an inspectable unit or block. SubUnits is empty in unit mode.
type Target struct {
	Label    string
	Mode     domain.Mode
	SubUnits []string
}

// HasSubUnit reports whether label is one of the block's sub-units.
func (t Target) HasSubUnit(label string) bool {
	for _, s := range t.SubUnits {
		if s == label {
			return true
		}
	}
	return false
}

// Catalog is the validated, read-only set of companies and inspection targets.
type Catalog struct {
	companies    []string
	targets      []Target
	byKey        map[string]int
	unitsFolder  string
	blocksFolder string
}

// Load reads and validates a YAML catalog file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates catalog YAML.
func Parse(raw []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	return build(f)
}

func build(f file) (*Catalog, error) {
	if len(f.Companies) == 0 {
		return nil, errors.New("catalog: companies must not be empty")
	}
	c := &Catalog{
		byKey:        make(map[string]int),
		unitsFolder:  strings.TrimSpace(f.PhotoFolders.Units),
		blocksFolder: strings.TrimSpace(f.PhotoFolders.Blocks),
	}
	if c.unitsFolder == "" {
		c.unitsFolder = defaultUnitsFolder
	}
	if c.blocksFolder == "" {
		c.blocksFolder = defaultBlocksFolder
	}
	for _, name := range f.Companies {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, errors.New("catalog: company name must not be blank")
		}
		c.companies = append(c.companies, name)
	}
	for _, u := range f.Units {
		if err := c.add(Target{Label: strings.TrimSpace(u), Mode: domain.ModeUnit}); err != nil {
			return nil, err
		}
	}
	for _, b := range f.Blocks {
		if len(b.SubUnits) == 0 {
			return nil, fmt.Errorf("catalog: block %q has no sub-units", b.Label)
		}
		subs := make([]string, 0, len(b.SubUnits))
		seen := map[string]bool{}
		for _, s := range b.SubUnits {
			s = strings.TrimSpace(s)
			if s == "" || seen[s] {
				return nil, fmt.Errorf("catalog: block %q has a blank or duplicate sub-unit", b.Label)
			}
			if err := checkPayload(subUnitTokenPrefix, s); err != nil {
				return nil, err
			}
			seen[s] = true
			subs = append(subs, s)
		}
		if err := c.add(Target{Label: strings.TrimSpace(b.Label), Mode: domain.ModeBlock, SubUnits: subs}); err != nil {
			return nil, err
		}
	}
	if len(c.targets) == 0 {
		return nil, errors.New("catalog: at least one unit or block is required")
	}
	return c, nil
}

func (c *Catalog) add(t Target) error {
	if t.Label == "" {
		return errors.New("catalog: target label must not be blank")
	}
	if err := checkPayload(targetTokenPrefix, t.Label); err != nil {
		return err
	}
	k := key(t.Label)
	if _, dup := c.byKey[k]; dup {
		return fmt.Errorf("catalog: duplicate target %q", t.Label)
	}
	c.byKey[k] = len(c.targets)
	c.targets = append(c.targets, t)
	return nil
}

// Companies returns the canonical company list in file order.
func (c *Catalog) Companies() []string {
	out := make([]string, len(c.companies))
	copy(out, c.companies)
	return out
}

// Targets returns every unit followed by every block.
func (c *Catalog) Targets() []Target {
	out := make([]Target, len(c.targets))
	copy(out, c.targets)
	return out
}

// Get returns the target with exactly this label.
func (c *Catalog) Get(label string) (Target, bool) {
	i, ok := c.byKey[key(label)]
	if !ok {
		return Target{}, false
	}
	return c.targets[i], true
}

// prefixes users type in front of a label ("lokal 46/2", "szereg 5").
var prefixes = []string{"lokal", "unit", "szereg", "block", "blok"}

// Lookup matches free text against target labels, ignoring case, spacing and
// a leading unit/block keyword.
func (c *Catalog) Lookup(text string) (Target, bool) {
	if t, ok := c.Get(text); ok {
		return t, true
	}
	k := key(text)
	for _, p := range prefixes {
		if rest, found := strings.CutPrefix(k, p); found && rest != "" {
			if i, ok := c.byKey[rest]; ok {
				return c.targets[i], true
			}
		}
	}
	return Target{}, false
}

// PhotoFolder returns the slash-separated storage folder path for a target.
func (c *Catalog) PhotoFolder(t Target) string {
	if t.Mode == domain.ModeBlock {
		return c.blocksFolder + "/" + strings.ToUpper(strings.TrimSpace(t.Label))
	}
	return c.unitsFolder + "/" + strings.ReplaceAll(strings.TrimSpace(t.Label), "/", ".")
}

// checkPayload rejects labels whose button payload would exceed the
// callback data limit. Lengths are in bytes, not runes.
func checkPayload(prefix, label string) error {
	if n := len(prefix) + len(label); n > maxCallbackData {
		return fmt.Errorf("catalog: label %q is too long for a button (%d of %d bytes)", label, n, maxCallbackData)
	}
	return nil
}

func key(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(label)), "")
}
