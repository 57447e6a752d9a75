package casemgr

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/tskcat/engine/ingest"
)

// Config is the on-disk case configuration: which backend to open, the
// connection parameters for it, and the default ingest options new
// IngestDrivers are seeded with.
type Config struct {
	Backend  string         `toml:"backend"`
	Location string         `toml:"location"`
	Host     string         `toml:"host"`
	Port     int            `toml:"port"`
	User     string         `toml:"user"`
	Password string         `toml:"password"`
	DBName   string         `toml:"dbname"`
	Ingest   IngestDefaults `toml:"ingest"`
}

// IngestDefaults mirrors ingest.Options' TOML-exposed subset.
type IngestDefaults struct {
	RecordBlockMap    bool  `toml:"record_block_map"`
	HashFiles         bool  `toml:"hash_files"`
	SkipFatOrphans    bool  `toml:"skip_fat_orphans"`
	RecordUnallocated bool  `toml:"record_unallocated"`
	MinChunkBytes     int64 `toml:"min_chunk_bytes"`
	MaxChunkBytes     int64 `toml:"max_chunk_bytes"`
	Timezone          string `toml:"timezone"`
}

// ToIngestOptions builds an ingest.Options from the configured defaults.
func (d IngestDefaults) ToIngestOptions() ingest.Options {
	opt := ingest.DefaultOptions()
	opt.RecordBlockMap = d.RecordBlockMap
	opt.HashFiles = d.HashFiles
	opt.SkipFatOrphans = d.SkipFatOrphans
	opt.RecordUnallocated = d.RecordUnallocated
	if d.MinChunkBytes != 0 {
		opt.MinChunkBytes = d.MinChunkBytes
	}
	if d.MaxChunkBytes != 0 {
		opt.MaxChunkBytes = d.MaxChunkBytes
	}
	opt.Timezone = d.Timezone
	return opt
}

// LoadConfig reads a TOML case configuration file, following the
// teacher's toml.Decode convention rather than a hand-rolled parser.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return Config{}, err
		}
		return Config{}, err
	}
	return cfg, nil
}

// WriteDefaultConfig writes cfg to path as TOML, replacing any existing file.
func WriteDefaultConfig(path string, cfg Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
