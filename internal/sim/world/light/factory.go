package light

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

var ErrUnknownGenerator = errors.New("unknown light generator")

type uniformParams struct {
	Sun        uint8 `yaml:"sun"`
	Ambient    uint8 `yaml:"ambient"`
	Artificial uint8 `yaml:"artificial"`
	Secondary  uint8 `yaml:"secondary"`
}

type sunParams struct {
	Ambient uint8 `yaml:"ambient"`
}

// New builds the light generator registered under name.
func New(name string, params *yaml.Node) (Generator, error) {
	decode := func(v any) error {
		if params == nil || params.Kind == 0 {
			return nil
		}
		if err := params.Decode(v); err != nil {
			return fmt.Errorf("light generator %q: %w", name, err)
		}
		return nil
	}
	switch name {
	case "uniform":
		p := uniformParams{Sun: 15, Ambient: 4}
		if err := decode(&p); err != nil {
			return nil, err
		}
		return Uniform(p), nil
	case "sun":
		p := sunParams{Ambient: 3}
		if err := decode(&p); err != nil {
			return nil, err
		}
		return Sun(p), nil
	}
	return nil, fmt.Errorf("light generator %q: %w", name, ErrUnknownGenerator)
}
