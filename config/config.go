package config

import (
	"encoding/json"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/mdsync/mdsync/mysqlurl"
	"github.com/mdsync/mdsync/snapstore"
	"github.com/mdsync/mdsync/tablemeta"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	DialectMySQL    = "mysql"
	DialectPostgres = "postgres"

	defaultPostgresPort = 5432
)

// Database describes how to reach the source database. Environment
// variables override values read from the file.
type Database struct {
	Dialect    string `json:"dialect,omitempty" yaml:"dialect,omitempty" env:"MDSYNC_DB_DIALECT" validate:"omitempty,oneof=mysql postgres"`
	HostName   string `json:"host_name" yaml:"host_name" env:"MDSYNC_DB_HOST" validate:"required_without=URL"`
	Port       int    `json:"port,omitempty" yaml:"port,omitempty" env:"MDSYNC_DB_PORT" validate:"gte=0,lte=65535"`
	UserName   string `json:"user_name" yaml:"user_name" env:"MDSYNC_DB_USER" validate:"required_without=URL"`
	Password   string `json:"password" yaml:"password" env:"MDSYNC_DB_PASSWORD"`
	DataSchema string `json:"data_schema" yaml:"data_schema" env:"MDSYNC_DB_SCHEMA" validate:"required_without=URL"`
	URL        string `json:"url,omitempty" yaml:"url,omitempty" env:"MDSYNC_DB_URL" validate:"omitempty,url"`
}

// Config is the sync configuration file. Tables maps every known table to
// whether it is synced; Metadata caches the key structure of synced tables.
type Config struct {
	Database Database        `json:"database" yaml:"database"`
	Tables   map[string]bool `json:"tables" yaml:"tables"`
	Metadata tablemeta.Block `json:"metadata" yaml:"metadata"`

	path string
	// fileDatabase is the database block as read, so overrides from the
	// environment are never written back.
	fileDatabase Database
}

type ValidationError struct {
	Field string
	Tag   string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: field " + e.Field + " failed " + e.Tag
}

func isYAML(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads and validates a configuration file, applying environment
// overrides to the database block.
func Load(p string) (*Config, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading configuration %s", p)
	}
	c, err := Parse(p, b)
	if err != nil {
		return nil, err
	}
	if err := env.Parse(&c.Database); err != nil {
		return nil, errors.Wrap(err, "error reading environment overrides")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse decodes a configuration document. The format follows the
// extension of p.
func Parse(p string, b []byte) (*Config, error) {
	c := &Config{path: p}
	var err error
	if isYAML(p) {
		err = yaml.Unmarshal(b, c)
	} else {
		err = json.Unmarshal(b, c)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error decoding configuration %s", p)
	}
	if c.Tables == nil {
		c.Tables = make(map[string]bool)
	}
	if c.Metadata == nil {
		c.Metadata = make(tablemeta.Block)
	}
	c.fileDatabase = c.Database
	return c, nil
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c.Database); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &ValidationError{Field: verrs[0].Namespace(), Tag: verrs[0].Tag()}
		}
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}

func (c *Config) Path() string {
	return c.path
}

// SelectedTables returns the tables flagged for syncing, sorted by name.
func (c *Config) SelectedTables() []string {
	var ret []string
	for name, sync := range c.Tables {
		if sync {
			ret = append(ret, name)
		}
	}
	sort.Strings(ret)
	return ret
}

// DiscoverTables registers every table with syncing disabled. Existing
// flags are kept.
func (c *Config) DiscoverTables(names []string) {
	for _, n := range names {
		if _, ok := c.Tables[n]; !ok {
			c.Tables[n] = false
		}
	}
}

// MetadataSet returns the cached metadata of the given tables and the
// tables without cached metadata.
func (c *Config) MetadataSet(tables []string) ([]tablemeta.Table, []string) {
	var found []tablemeta.Table
	var missing []string
	for _, name := range tables {
		e, ok := c.Metadata[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		found = append(found, e.Table(name))
	}
	return found, missing
}

// CacheMetadata stores the metadata of every table in s, replacing any
// earlier entry for the same table.
func (c *Config) CacheMetadata(s tablemeta.Set) {
	for _, t := range s.Tables() {
		c.Metadata[t.Name] = tablemeta.EntryFromTable(t)
	}
}

// ConnStr returns a connection URL for the database block.
func (c *Config) ConnStr() (string, error) {
	d := c.Database
	if d.URL != "" {
		return d.URL, nil
	}
	switch d.Dialect {
	case "", DialectMySQL:
		return mysqlurl.ConnStr(mysqlurl.FromParts(d.HostName, d.Port, d.UserName, d.Password, d.DataSchema)), nil
	case DialectPostgres:
		port := d.Port
		if port == 0 {
			port = defaultPostgresPort
		}
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(d.UserName, d.Password),
			Host:   net.JoinHostPort(d.HostName, strconv.Itoa(port)),
			Path:   "/" + d.DataSchema,
		}
		return u.String(), nil
	}
	return "", errors.Newf("unknown dialect %q", d.Dialect)
}

func (c *Config) Encode() ([]byte, error) {
	out := *c
	out.Database = c.fileDatabase
	if isYAML(c.path) {
		return yaml.Marshal(&out)
	}
	b, err := json.MarshalIndent(&out, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Save writes the configuration back to the file it was loaded from.
func (c *Config) Save(logger zerolog.Logger) error {
	b, err := c.Encode()
	if err != nil {
		return errors.Wrap(err, "error encoding configuration")
	}
	_, err = snapstore.WriteFile(logger, c.path, b)
	return err
}
