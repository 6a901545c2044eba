package main

import (
	"encoding/json"
	"os"
)

// Config for cy-echo-client.
type Config struct {
	Remote   string `json:"remote"`
	Log      string `json:"log"`
	Message  string `json:"message"`
	Interval int    `json:"interval"`
	RetryMs  int    `json:"retryms"`
}

func parseJSONConfig(config *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(config)
}
