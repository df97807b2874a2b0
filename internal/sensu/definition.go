package sensu

import (
	"sort"
	"strings"

	"github.com/nholik/sensu-hooks/internal/deployment"
	"github.com/rs/zerolog"
)

const (
	defaultInterval = 30
	defaultHandler  = "default"
	httpCheckPlugin = "check-http.rb"
	ttlTagPrefix    = "ttl_"
)

// declarationOnly lists properties consumed while rendering; they never reach Sensu.
var declarationOnly = map[string]struct{}{
	propName:            {},
	propHTTP:            {},
	propLocalScript:     {},
	propServerScript:    {},
	propScript:          {},
	propPlugin:          {},
	propScriptArguments: {},
}

// Definition is the document written for one check.
type Definition struct {
	Checks map[string]map[string]any `json:"checks"`
}

// HealthCheck renders a validated check into Sensu check properties.
type HealthCheck interface {
	Name() string
	Properties() map[string]any
}

type checkBase struct {
	check     Check
	serviceID string
	slice     string
	logger    zerolog.Logger
}

type httpCheck struct {
	checkBase
}

type scriptCheck struct {
	checkBase
}

// NewHealthCheck selects the rendering variant for the check's type.
// An empty slice means the deployment has no slice.
func NewHealthCheck(check Check, serviceID, slice string, logger zerolog.Logger) HealthCheck {
	base := checkBase{check: check, serviceID: serviceID, slice: slice, logger: logger}
	switch check.Type {
	case CheckTypeHTTP:
		return httpCheck{base}
	default:
		return scriptCheck{base}
	}
}

func (c checkBase) Name() string {
	return c.check.Name
}

func (c httpCheck) Properties() map[string]any {
	props := c.baseProperties(true)
	command, ok := c.command()
	if !ok {
		url, _ := stringProp(c.check.Properties, propHTTP)
		command = httpCheckPlugin + " --url " + url
	}
	props["command"] = command
	c.logger.Debug().Str("check_id", c.check.ID).Str("command", command).Msg("rendered http check")
	return props
}

func (c scriptCheck) Properties() map[string]any {
	// Server scripts are scheduled by the Sensu server, not the local client.
	standalone := !hasProp(c.check.Properties, propServerScript)
	props := c.baseProperties(standalone)
	command, _ := c.command()
	props["command"] = command
	c.logger.Debug().Str("check_id", c.check.ID).Str("command", command).Msg("rendered script check")
	return props
}

// command prefers a resolved script or plugin, then the declared command line.
func (c checkBase) command() (string, bool) {
	props := c.check.Properties
	if c.check.ScriptPath != "" {
		command := c.check.ScriptPath
		if args, ok := stringProp(props, propScriptArguments); ok && strings.TrimSpace(args) != "" {
			command += " " + strings.TrimSpace(args)
		}
		return command, true
	}
	if local, ok := stringProp(props, propLocalScript); ok {
		return local, true
	}
	if server, ok := stringProp(props, propServerScript); ok {
		return server, true
	}
	return "", false
}

func (c checkBase) baseProperties(defaultStandalone bool) map[string]any {
	props := make(map[string]any, len(c.check.Properties)+4)
	for key, value := range c.check.Properties {
		if _, skip := declarationOnly[key]; skip {
			continue
		}
		props[key] = value
	}

	if !hasProp(props, "interval") {
		props["interval"] = defaultInterval
	}
	if !hasProp(props, "handlers") {
		props["handlers"] = []string{defaultHandler}
	}

	standalone, hasStandalone := boolProp(props, propStandalone)
	aggregate, hasAggregate := boolProp(props, propAggregate)
	switch {
	case hasStandalone && !hasAggregate:
		props[propAggregate] = !standalone
	case hasAggregate && !hasStandalone:
		props[propStandalone] = !aggregate
	case !hasStandalone && !hasAggregate:
		props[propStandalone] = defaultStandalone
		props[propAggregate] = !defaultStandalone
	}

	if c.serviceID != "" {
		props["service_id"] = c.serviceID
	}
	if c.slice != "" {
		props["slice"] = c.slice
	}
	return props
}

// NormalizeSlice maps the literal "none" (any case) to no slice.
func NormalizeSlice(slice string) string {
	if strings.EqualFold(slice, noSlice) {
		return ""
	}
	return slice
}

// CustomInstanceTags drops tags whose key starts with the reserved prefix.
// An empty prefix keeps every tag.
func CustomInstanceTags(tags map[string]string, reservedPrefix string) map[string]string {
	custom := make(map[string]string, len(tags))
	for key, value := range tags {
		if reservedPrefix != "" && strings.HasPrefix(key, reservedPrefix) {
			continue
		}
		custom[key] = value
	}
	return custom
}

// applyTTLTags copies tags onto props as ttl_<lower(key)>, overwriting existing
// keys. Tags are applied in key order so case-colliding keys resolve the same
// way on every run.
func applyTTLTags(props map[string]any, tags map[string]string) {
	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		props[ttlTagPrefix+strings.ToLower(key)] = tags[key]
	}
}

// GenerateDefinition renders a validated check for the deployment, including
// the host's custom instance tags.
func GenerateDefinition(check Check, d *deployment.Deployment) Definition {
	hc := NewHealthCheck(check, d.Service.ID, NormalizeSlice(d.Service.Slice), d.Logger)
	props := hc.Properties()
	applyTTLTags(props, CustomInstanceTags(d.InstanceTags, d.ReservedTagPrefix))
	return Definition{Checks: map[string]map[string]any{hc.Name(): props}}
}
