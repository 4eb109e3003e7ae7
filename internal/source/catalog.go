package source

import (
	_ "embed"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/cad-ingest/internal/model"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// FeatureFields names the FeatureServer attributes that feed each raw field.
type FeatureFields struct {
	Time      string `yaml:"time"`
	Incident  string `yaml:"incident"`
	Location  string `yaml:"location"`
	Agency    string `yaml:"agency"`
	Status    string `yaml:"status"`
	Latitude  string `yaml:"latitude"`
	Longitude string `yaml:"longitude"`
}

// SourceConfig describes one upstream feed.
type SourceConfig struct {
	Name        model.Source `yaml:"name"`
	Kind        Kind         `yaml:"kind"`
	URL         string       `yaml:"url"`
	Enabled     *bool        `yaml:"enabled"`
	TimeoutSecs int          `yaml:"timeout_secs"`

	// Table sources.
	Columns    ColumnMap `yaml:"columns"`
	MinColumns int       `yaml:"min_columns"`

	// FeatureServer sources.
	Fields     FeatureFields `yaml:"fields"`
	PageSize   int           `yaml:"page_size"`
	MaxRecords int           `yaml:"max_records"`

	// Normalization.
	AgencyCodes   map[string]string `yaml:"agency_codes"`
	PoliceAgency  string            `yaml:"police_agency"`
	FireAgency    string            `yaml:"fire_agency"`
	DefaultStatus string            `yaml:"default_status"`

	ExpireStale   bool `yaml:"expire_stale"`
	RespectRobots bool `yaml:"respect_robots"`
}

// IsEnabled reports whether the source should run. Sources are enabled
// unless the catalog says otherwise.
func (c SourceConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Timeout returns the per-source fetch timeout, clamped to 3–15s.
func (c SourceConfig) Timeout() time.Duration {
	secs := c.TimeoutSecs
	switch {
	case secs <= 0:
		secs = 15
	case secs < 3:
		secs = 3
	case secs > 15:
		secs = 15
	}
	return time.Duration(secs) * time.Second
}

// LookupAgency resolves an agency code case-insensitively. Unknown codes are
// returned unchanged.
func (c SourceConfig) LookupAgency(code string) string {
	code = strings.TrimSpace(code)
	for k, v := range c.AgencyCodes {
		if strings.EqualFold(k, code) {
			return v
		}
	}
	return code
}

// Validate checks a single source entry.
func (c SourceConfig) Validate() error {
	if _, err := model.ParseSource(string(c.Name)); err != nil {
		return err
	}
	if !c.Kind.Valid() {
		return eris.Errorf("source %s: unknown kind %q", c.Name, c.Kind)
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return eris.Errorf("source %s: url must be http(s), got %q", c.Name, c.URL)
	}
	if c.PoliceAgency == "" || c.FireAgency == "" {
		return eris.Errorf("source %s: police_agency and fire_agency are required", c.Name)
	}

	switch c.Kind {
	case KindTable:
		if err := c.Columns.Validate(c.MinColumns); err != nil {
			return eris.Wrapf(err, "source %s", c.Name)
		}
	case KindFeatureServer:
		if c.Fields.Time == "" || c.Fields.Incident == "" || c.Fields.Location == "" {
			return eris.Errorf("source %s: fields.time, fields.incident and fields.location are required", c.Name)
		}
		if (c.Fields.Latitude == "") != (c.Fields.Longitude == "") {
			return eris.Errorf("source %s: fields.latitude and fields.longitude must be set together", c.Name)
		}
		if c.PageSize < 0 || c.MaxRecords < 0 {
			return eris.Errorf("source %s: page_size and max_records must not be negative", c.Name)
		}
	}
	return nil
}

// Catalog is the full set of configured sources plus the jurisdiction table
// used to bias geocoding queries.
type Catalog struct {
	DefaultJurisdiction string            `yaml:"default_jurisdiction"`
	Jurisdictions       map[string]string `yaml:"jurisdictions"`
	Sources             []SourceConfig    `yaml:"sources"`
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "source: decode catalog")
	}
	if c.DefaultJurisdiction == "" {
		c.DefaultJurisdiction = "Virginia"
	}
	for i := range c.Sources {
		if src, err := model.ParseSource(string(c.Sources[i].Name)); err == nil {
			c.Sources[i].Name = src
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadCatalog reads the catalog from path, or the embedded default when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read catalog %s", path)
	}
	return ParseCatalog(data)
}

// Validate checks every source and rejects duplicate names.
func (c *Catalog) Validate() error {
	if len(c.Sources) == 0 {
		return eris.New("source: catalog has no sources")
	}
	seen := make(map[model.Source]bool, len(c.Sources))
	for _, sc := range c.Sources {
		if seen[sc.Name] {
			return eris.Errorf("source: duplicate catalog entry %q", sc.Name)
		}
		seen[sc.Name] = true
		if err := sc.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the config for name.
func (c *Catalog) Get(name model.Source) (SourceConfig, bool) {
	for _, sc := range c.Sources {
		if sc.Name == name {
			return sc, true
		}
	}
	return SourceConfig{}, false
}

// Jurisdiction maps a resolved agency name to its "County/City, State"
// suffix, falling back to the default jurisdiction.
func (c *Catalog) Jurisdiction(agency string) string {
	agency = strings.TrimSpace(agency)
	for k, v := range c.Jurisdictions {
		if strings.EqualFold(k, agency) {
			return v
		}
	}
	return c.DefaultJurisdiction
}
