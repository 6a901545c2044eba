package main

import (
	"encoding/json"
	"os"
)

// Config for cy-echo-server. JSON config, when given via -c, overrides
// the command-line flags — same precedence kcptun's server uses.
type Config struct {
	Listen     string `json:"listen"`
	Log        string `json:"log"`
	DebugCSV   string `json:"debugcsv"`
	DebugEvery int    `json:"debugevery"`
	Quiet      bool   `json:"quiet"`
}

func parseJSONConfig(config *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(config)
}
