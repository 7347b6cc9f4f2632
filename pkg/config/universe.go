package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ScannerParams tunes the technical scanner.
type ScannerParams struct {
	ShortMA    int     `yaml:"short_ma"`
	LongMA     int     `yaml:"long_ma"`
	RSIPeriod  int     `yaml:"rsi_period"`
	Oversold   float64 `yaml:"oversold"`
	SignalMode string  `yaml:"signal_mode"` // "or" (default) or "and"
	Interval   string  `yaml:"interval"`    // kline interval, e.g. "1"
}

// UniverseFile is the YAML layout of the universe configuration.
type UniverseFile struct {
	Symbols []string      `yaml:"symbols"`
	Scanner ScannerParams `yaml:"scanner"`
}

// LoadUniverse reads the symbol universe and scanner tuning from a YAML file.
func LoadUniverse(path string) (*UniverseFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file UniverseFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse universe file: %w", err)
	}
	if len(file.Symbols) == 0 {
		return nil, fmt.Errorf("universe file %s lists no symbols", path)
	}

	// Fill scanner defaults for fields the file omits.
	if file.Scanner.ShortMA <= 0 {
		file.Scanner.ShortMA = 5
	}
	if file.Scanner.LongMA <= 0 {
		file.Scanner.LongMA = 20
	}
	if file.Scanner.RSIPeriod <= 0 {
		file.Scanner.RSIPeriod = 14
	}
	if file.Scanner.Oversold <= 0 {
		file.Scanner.Oversold = 50
	}
	if file.Scanner.SignalMode != "and" {
		file.Scanner.SignalMode = "or"
	}
	if file.Scanner.Interval == "" {
		file.Scanner.Interval = "1"
	}
	return &file, nil
}
