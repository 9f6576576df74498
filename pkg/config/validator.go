package config

import "fmt"

// Validator performs comprehensive validation on a loaded Config: plain
// fmt.Errorf checks per concern, fail-fast, rather than struct-tag-driven
// validation.
type Validator struct {
	cfg *Config
}

// NewValidator builds a Validator for cfg.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every concern's validation in order, returning on the
// first failure.
func (v *Validator) ValidateAll() error {
	if err := v.validateDefaults(); err != nil {
		return err
	}
	if err := v.validateServer(); err != nil {
		return err
	}
	if err := v.validateResolver(); err != nil {
		return err
	}
	if err := v.validateCredential(); err != nil {
		return err
	}
	return nil
}

func (v *Validator) validateDefaults() error {
	d := v.cfg.Defaults
	if d.BackendType == "" {
		return fmt.Errorf("%w: defaults.backend_type", ErrMissingRequiredField)
	}
	if d.SSETailSize < 1 {
		return fmt.Errorf("%w: defaults.sse_tail_size must be >= 1, got %d", ErrInvalidValue, d.SSETailSize)
	}
	if d.SSEQueueSize < 1 {
		return fmt.Errorf("%w: defaults.sse_queue_size must be >= 1, got %d", ErrInvalidValue, d.SSEQueueSize)
	}
	if d.RequestTimeout <= 0 {
		return fmt.Errorf("%w: defaults.request_timeout must be positive", ErrInvalidValue)
	}
	return nil
}

func (v *Validator) validateServer() error {
	s := v.cfg.Server
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("%w: server.port must be between 1 and 65535, got %d", ErrInvalidValue, s.Port)
	}
	if s.BodyLimitByte < 1 {
		return fmt.Errorf("%w: server.body_limit_bytes must be positive", ErrInvalidValue)
	}
	return nil
}

func (v *Validator) validateResolver() error {
	if v.cfg.Resolver.CacheTTL < 0 {
		return fmt.Errorf("%w: resolver.cache_ttl cannot be negative", ErrInvalidValue)
	}
	return nil
}

func (v *Validator) validateCredential() error {
	if v.cfg.Credential.TokenScope == "" {
		return fmt.Errorf("%w: credential.token_scope", ErrMissingRequiredField)
	}
	return nil
}
