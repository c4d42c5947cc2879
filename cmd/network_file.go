package cmd

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cdst-optimize/cdst-optimize/opt"
)

// LoadNetwork parses a network snapshot file. Strict field checking: a typo
// in a key is an error, not a silently ignored setting.
func LoadNetwork(path string) (*opt.Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading network file: %w", err)
	}
	var net opt.Network
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&net); err != nil {
		return nil, fmt.Errorf("parsing network file %s: %w", path, err)
	}
	return &net, nil
}
