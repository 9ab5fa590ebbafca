package reconciler

import (
	"fmt"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"
)

// MessagePools are the fixed text pools user-facing messages are drawn from.
type MessagePools struct {
	Hype    []string `yaml:"hype"`
	Offline []string `yaml:"offline"`
	Victory []string `yaml:"victory"`
}

// DefaultMessagePools returns the built-in pools.
func DefaultMessagePools() MessagePools {
	return MessagePools{
		Hype: []string{
			"UNSTOPPABLE!",
			"KEEP SMASHING!",
			"COMBO!",
			"ON FIRE!",
			"MORE POWER!",
			"LEGENDARY!",
		},
		Offline: []string{
			"Connection lost. Your vote didn't land.",
			"Server unreachable. Try again in a moment.",
			"Offline. Vote not counted.",
		},
		Victory: []string{
			"FLAWLESS VICTORY!",
			"THE CROWD GOES WILD!",
			"WHAT A MATCH!",
			"CHAMPIONS!",
		},
	}
}

// LoadMessagePools reads pools from a YAML file. Empty pools keep their defaults.
func LoadMessagePools(path string) (MessagePools, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return MessagePools{}, fmt.Errorf("failed to read messages file: %w", err)
	}

	var loaded MessagePools
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return MessagePools{}, fmt.Errorf("failed to parse messages file: %w", err)
	}

	return loaded.withDefaults(), nil
}

func (p MessagePools) withDefaults() MessagePools {
	defaults := DefaultMessagePools()
	if len(p.Hype) == 0 {
		p.Hype = defaults.Hype
	}
	if len(p.Offline) == 0 {
		p.Offline = defaults.Offline
	}
	if len(p.Victory) == 0 {
		p.Victory = defaults.Victory
	}
	return p
}

func pick(rng *rand.Rand, pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[rng.Intn(len(pool))]
}
