// Package config loads pipeline configuration from a TOML file.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
)

// Database selects the relational backend holding ingested rows.
type Database struct {
	Driver string `toml:"driver"` // "sqlite" (default) or "postgres"
	DSN    string `toml:"dsn"`
	Prefix string `toml:"prefix"` // optional table name prefix
}

// Paths names the directories the pipeline reads from and writes to.
type Paths struct {
	SessionData  string `toml:"session_data"`  // raw per-session source containers
	SessionStore string `toml:"session_store"` // encoded session containers
	SeriesStore  string `toml:"series_store"`  // encoded derived series containers
}

// Archive configures best-effort replication of encoded containers.
type Archive struct {
	Driver    string `toml:"driver"` // "fs" (default), "s3", or "memory"
	Root      string `toml:"root"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	PathStyle bool   `toml:"path_style"`
}

// Config is the full pipeline configuration.
type Config struct {
	Database Database `toml:"database"`
	Paths    Paths    `toml:"paths"`
	Archive  Archive  `toml:"archive"`
}

// Default returns a configuration suitable for local development.
func Default() Config {
	return Config{
		Database: Database{Driver: "sqlite", DSN: "icephys.db"},
		Paths: Paths{
			SessionData:  "./data/sessions",
			SessionStore: "./data/store/sessions",
			SeriesStore:  "./data/store/series",
		},
		Archive: Archive{Driver: "fs", Root: "./data/archive"},
	}
}

// Load reads a TOML configuration file, layering it over Default. A missing
// path is not an error; the defaults are returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrapf(err, "parse config %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.Newf("unknown config key %q in %s", undecoded[0].String(), path)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Database.Driver {
	case "", "sqlite", "postgres", "pgx":
	default:
		return errors.Newf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Archive.Driver {
	case "", "fs", "memory":
	case "s3":
		if c.Archive.Bucket == "" {
			return errors.New("archive driver s3 requires a bucket")
		}
	default:
		return errors.Newf("unknown archive driver %q", c.Archive.Driver)
	}
	return nil
}
