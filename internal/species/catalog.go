package species

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml"
)

// ParseDefinition decodes one TOML species file.
//
//	name = "Quercus robur"
//	common_name = "Oak"
//	aliases = ["oak"]
//
//	[[points]]
//	age = 10.0
//	rate = 1.0
//
//	[parameters]   # optional, skips fitting
//	scale = 1.78
//	rate = 0.0376
//	offset = 0.204
//	shift = 2.66
func ParseDefinition(data []byte) (Definition, error) {
	var def Definition
	if err := toml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("failed to decode species definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// LoadFile reads a species definition from a TOML file.
func LoadFile(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("failed to read species file: %w", err)
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return Definition{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return def, nil
}

// LoadDir reads every *.toml file in dir, in file name order.
func LoadDir(dir string) ([]Definition, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.toml"))
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	sort.Strings(files)

	defs := make([]Definition, 0, len(files))
	for _, path := range files {
		def, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Encode renders a definition in the catalog file format.
func Encode(def Definition) ([]byte, error) {
	data, err := toml.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("failed to encode species definition: %w", err)
	}
	return data, nil
}
