// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ffutop/modbus-rtu-slave/internal/slave/model"
)

// SeedEntry sets one register, a run of registers or a float32 pair.
// Exactly one of Value, Values and Float must be given.
type SeedEntry struct {
	Address uint16   `yaml:"address"`
	Value   *uint16  `yaml:"value,omitempty"`
	Values  []uint16 `yaml:"values,omitempty"`
	Float   *float32 `yaml:"float,omitempty"`
}

// Seed is the initial content of the register table.
type Seed struct {
	Registers []SeedEntry `yaml:"registers"`
}

// LoadSeed reads a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes and checks seed YAML.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	for i, e := range seed.Registers {
		n := 0
		if e.Value != nil {
			n++
		}
		if len(e.Values) > 0 {
			n++
		}
		if e.Float != nil {
			n++
		}
		if n != 1 {
			return nil, fmt.Errorf("seed entry %d (address %d): need exactly one of value, values, float", i, e.Address)
		}
	}
	return &seed, nil
}

// Apply writes every entry into regs, stopping at the first failure.
func (s *Seed) Apply(regs *model.Registers) error {
	for i, e := range s.Registers {
		var err error
		switch {
		case e.Value != nil:
			err = regs.WriteOne(e.Address, *e.Value)
		case e.Float != nil:
			err = regs.WriteFloat32(e.Address, *e.Float)
		default:
			err = regs.WriteMany(e.Address, e.Values)
		}
		if err != nil {
			return fmt.Errorf("seed entry %d: %w", i, err)
		}
	}
	return nil
}
