package config

import (
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/codewheel-dev/promptwheel/internal/domain/wheelerr"
)

var (
	validatorOnce sync.Once
	validatorInst *validator.Validate
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		validatorInst = validator.New()
	})
	return validatorInst
}

// Load reads a YAML config file at path, overlaying it onto Default(), then
// validates the result. A missing file is not an error: Default() alone is
// returned.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, wheelerr.Wrap(wheelerr.CodeFatalConfig, "reading config file", err).WithContext(map[string]interface{}{"path": path})
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, wheelerr.Wrap(wheelerr.CodeValidation, "parsing config file", err).WithContext(map[string]interface{}{"path": path})
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate runs the struct-tag validator over cfg and clamps knob
// interactions the tags alone cannot express.
func Validate(cfg Config) error {
	if err := validatorInstance().Struct(cfg); err != nil {
		return wheelerr.Wrap(wheelerr.CodeValidation, "config failed validation", err)
	}
	if cfg.Drill.MaxProposals < cfg.Drill.MinProposals {
		return wheelerr.New(wheelerr.CodeValidation, "drill.maxProposals must be >= drill.minProposals")
	}
	return nil
}
