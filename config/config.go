// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

// DefaultConfigFile is read when no config file is named. It may be absent.
const DefaultConfigFile = "configs/linesort.ini"

// Config aggregates configuration for the application.
type Config struct {
	Sorter    SorterConfig    `mapstructure:"sorter"`
	Generator GeneratorConfig `mapstructure:"generator"`
}

type SorterConfig struct {
	MemoryLimit       string `mapstructure:"memory_limit"`
	InputPath         string `mapstructure:"input_path"`
	OutputPath        string `mapstructure:"output_path"`
	WorkDirectoryPath string `mapstructure:"work_directory_path"`
	RunFormat         string `mapstructure:"run_format"`
	Parallelism       int    `mapstructure:"parallelism"`
	MaxRecordBytes    string `mapstructure:"max_record_bytes"`
}

type GeneratorConfig struct {
	StringSize int    `mapstructure:"string_size"`
	BatchSize  int    `mapstructure:"batch_size"`
	FileSize   string `mapstructure:"file_size"`
	OutputPath string `mapstructure:"output_path"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Sorter: SorterConfig{
			MemoryLimit:       "100M",
			WorkDirectoryPath: filepath.Join(os.TempDir(), "linesort"),
			RunFormat:         "text",
			Parallelism:       1,
			MaxRecordBytes:    "0",
		},
		Generator: GeneratorConfig{
			StringSize: 100,
			BatchSize:  1000,
			FileSize:   "100M",
			OutputPath: "generated.txt",
		},
	}
}

// Load reads configuration from path and environment variables. The file
// type follows the extension (ini, yaml, toml, json). An empty path reads
// DefaultConfigFile if it exists; a named file must exist.
// Environment variables use the prefix "LINESORT" and the dot character
// in keys is replaced by an underscore. For example, "sorter.memory_limit"
// becomes "LINESORT_SORTER_MEMORY_LIMIT".
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("LINESORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	if _, err := os.Stat(path); err == nil || explicit {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat config: %w", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
