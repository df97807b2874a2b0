package sensu

import "github.com/nholik/sensu-hooks/internal/appspec"

// Monitor is the monitor name health checks are declared under in a package.
const Monitor = "sensu"

// CheckType selects how a check is rendered for the Sensu agent.
type CheckType string

const (
	CheckTypeHTTP   CheckType = "http"
	CheckTypeScript CheckType = "script"
)

// Declaration property keys with meaning to this package.
const (
	propName            = "name"
	propHTTP            = "http"
	propLocalScript     = "local_script"
	propServerScript    = "server_script"
	propScript          = "script"
	propPlugin          = "plugin"
	propScriptArguments = "script_arguments"
	propStandalone      = "standalone"
	propAggregate       = "aggregate"
)

// Check is a declaration that passed validation.
type Check struct {
	ID         string
	Name       string
	Type       CheckType
	Properties map[string]any
	// ScriptPath is the absolute path resolved from the script or plugin
	// property, empty when the check declares neither.
	ScriptPath string
}

func typeOf(props map[string]any) CheckType {
	if _, ok := props[propHTTP]; ok {
		return CheckTypeHTTP
	}
	return CheckTypeScript
}

func stringProp(props map[string]any, key string) (string, bool) {
	value, ok := props[key].(string)
	return value, ok
}

func boolProp(props map[string]any, key string) (bool, bool) {
	value, ok := props[key].(bool)
	return value, ok
}

func hasProp(props map[string]any, key string) bool {
	_, ok := props[key]
	return ok
}

func declarationIDs(decls []appspec.Declaration) []string {
	ids := make([]string, 0, len(decls))
	for _, decl := range decls {
		ids = append(ids, decl.ID)
	}
	return ids
}
