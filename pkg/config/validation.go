package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/dittofd/pkg/vnode/device"
)

// validate is shared by every Validate call; validator caches struct
// metadata per type.
var validate = validator.New()

// consoleDevice is the console's mount name without the trailing colon.
var consoleDevice = strings.TrimSuffix(device.ConsoleName, ":")

// Validate checks struct tags first, then the cross-field rules tags cannot
// express:
//   - kernel.process_open_max must not exceed kernel.open_max
//   - mount names are unique
//   - "con" cannot be mounted while the console is enabled
//
// Log levels are accepted in either case; ApplyDefaults normalizes them.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateKernelLimits(cfg)
}

func validateKernelLimits(cfg *Config) error {
	if cfg.Kernel.ProcessOpenMax > cfg.Kernel.OpenMax {
		return fmt.Errorf("kernel: process_open_max (%d) exceeds open_max (%d)",
			cfg.Kernel.ProcessOpenMax, cfg.Kernel.OpenMax)
	}

	seen := make(map[string]int, len(cfg.Mounts))
	for i, m := range cfg.Mounts {
		if m.Name == consoleDevice && cfg.Kernel.ConsoleEnabled() {
			return fmt.Errorf("mounts[%d]: %q is reserved for the console", i, m.Name)
		}
		if first, dup := seen[m.Name]; dup {
			return fmt.Errorf("mounts[%d]: mount name %q already used by mounts[%d]", i, m.Name, first)
		}
		seen[m.Name] = i
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
