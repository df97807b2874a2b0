package sensu

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nholik/sensu-hooks/internal/appspec"
	"github.com/nholik/sensu-hooks/internal/deployment"
)

var namePattern = regexp.MustCompile(`^[\w.-]+$`)

// ValidateChecks validates every declaration and then the set as a whole.
// Per-check rules run first so the most specific error is reported; the
// declarations themselves are left untouched and resolved script paths are
// returned on the resulting checks.
func ValidateChecks(decls []appspec.Declaration, baseDir string, d *deployment.Deployment) ([]Check, error) {
	checks := make([]Check, 0, len(decls))
	for _, decl := range decls {
		check, err := validateCheckProperties(decl)
		if err != nil {
			return nil, err
		}
		scriptPath, err := resolveCheckScript(decl, baseDir, d)
		if err != nil {
			return nil, err
		}
		check.ScriptPath = scriptPath
		checks = append(checks, check)
	}

	if err := validateUniqueIDs(checks); err != nil {
		return nil, err
	}
	if err := validateUniqueNames(checks); err != nil {
		return nil, err
	}
	return checks, nil
}

func validateCheckProperties(decl appspec.Declaration) (Check, error) {
	props := decl.Properties
	if err := validateSchema(props); err != nil {
		return Check{}, checkError(decl.ID, err)
	}

	name, _ := stringProp(props, propName)
	checkType := typeOf(props)

	if !namePattern.MatchString(name) {
		return Check{}, checkError(decl.ID, fmt.Errorf("%w: '%s'", ErrInvalidName, name))
	}
	if hasProp(props, propLocalScript) && hasProp(props, propServerScript) {
		return Check{}, checkError(decl.ID, ErrScriptConflict)
	}
	if !hasProp(props, propLocalScript) && !hasProp(props, propServerScript) && checkType != CheckTypeHTTP {
		return Check{}, checkError(decl.ID, ErrNoScript)
	}
	if hasProp(props, propStandalone) && hasProp(props, propAggregate) {
		standalone, _ := boolProp(props, propStandalone)
		aggregate, _ := boolProp(props, propAggregate)
		if standalone == aggregate {
			return Check{}, checkError(decl.ID, ErrStandaloneAggregate)
		}
	}

	return Check{
		ID:         decl.ID,
		Name:       name,
		Type:       checkType,
		Properties: props,
	}, nil
}

func resolveCheckScript(decl appspec.Declaration, baseDir string, d *deployment.Deployment) (string, error) {
	if script, ok := stringProp(decl.Properties, propScript); ok {
		path, err := ResolveScript(d.ArchiveDir, baseDir, script)
		if err != nil {
			return "", checkError(decl.ID, err)
		}
		return path, nil
	}
	if plugin, ok := stringProp(decl.Properties, propPlugin); ok {
		path, err := FindPlugin(d.Sensu.SearchPaths, plugin)
		if err != nil {
			return "", checkError(decl.ID, err)
		}
		return path, nil
	}
	return "", nil
}

func validateUniqueIDs(checks []Check) error {
	seen := make(map[string]bool, len(checks))
	for _, check := range checks {
		key := strings.ToLower(check.ID)
		if seen[key] {
			return &DeploymentError{CheckID: check.ID, Msg: fmt.Sprintf("duplicate check id '%s'", check.ID), Err: ErrDuplicateID}
		}
		seen[key] = true
	}
	return nil
}

func validateUniqueNames(checks []Check) error {
	seen := make(map[string]bool, len(checks))
	for _, check := range checks {
		key := strings.ToLower(check.Name)
		if seen[key] {
			return &DeploymentError{CheckID: check.ID, Msg: fmt.Sprintf("duplicate check name '%s'", check.Name), Err: ErrDuplicateName}
		}
		seen[key] = true
	}
	return nil
}
