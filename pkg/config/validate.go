package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce   sync.Once
	structValidator *validator.Validate
)

func getValidator() *validator.Validate {
	validatorOnce.Do(func() {
		structValidator = validator.New()
	})
	return structValidator
}

// ValidateTenant checks the tenant-prefix-containment invariant: every
// Router.prefix in cfg must equal the tenant's registered prefix or be
// a path descendant of it. This is enforced at write time by the admin
// collaborator in the full system; the core re-checks it here because
// State.BuildFrom must never silently serve a misrouted prefix.
func ValidateTenant(cfg Config, tenant Tenant) error {
	for _, r := range cfg.Routers {
		if r.Prefix != tenant.Prefix && !strings.HasPrefix(r.Prefix, tenant.Prefix+"/") {
			return fmt.Errorf("router prefix %q escapes tenant prefix %q", r.Prefix, tenant.Prefix)
		}
	}
	return nil
}

// ValidateStruct runs the go-playground/validator struct-tag checks
// declared on Config and its nested Router/HTTPServer/MCPServer/Tool
// fields (required names, oneof enums, URL shape) before a ConfigSource
// hands the document to State.BuildFrom. This catches a malformed
// document at load time instead of as a confusing per-prefix build
// failure.
func ValidateStruct(v any) error {
	return getValidator().Struct(v)
}
