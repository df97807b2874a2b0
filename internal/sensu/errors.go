package sensu

import "errors"

var (
	// ErrSchema indicates a declaration does not conform to the check schema.
	ErrSchema = errors.New("does not match the Sensu check schema")

	// ErrInvalidName indicates a check name outside the characters Sensu accepts.
	ErrInvalidName = errors.New(`name doesn't match required Sensu name expression /^[\w.-]+$/`)

	// ErrScriptConflict indicates both local_script and server_script were declared.
	ErrScriptConflict = errors.New("you can use either 'local_script' or 'server_script', but not both")

	// ErrNoScript indicates a non-HTTP check without local_script or server_script.
	ErrNoScript = errors.New("you need at least one of: 'local_script' or 'server_script'")

	// ErrStandaloneAggregate indicates standalone and aggregate were declared with the same value.
	ErrStandaloneAggregate = errors.New("'standalone' and 'aggregate' cannot be both true or both false")

	// ErrScriptNotFound indicates a bundled check script is missing from the package.
	ErrScriptNotFound = errors.New("couldn't find Sensu check script in package")

	// ErrPluginNotFound indicates a plugin is missing from every search path.
	ErrPluginNotFound = errors.New("couldn't find Sensu plugin script")

	// ErrDuplicateID indicates two checks share an id, ignoring case.
	ErrDuplicateID = errors.New("check definitions require unique ids (case insensitive)")

	// ErrDuplicateName indicates two checks share a name, ignoring case.
	ErrDuplicateName = errors.New("check definitions require unique names (case insensitive)")

	// ErrEncodeDefinition indicates a definition could not be serialised.
	ErrEncodeDefinition = errors.New("encode check definition")
)

// DeploymentError is the single fatal error kind raised by the Sensu stages.
// The orchestrator halts the deployment on any DeploymentError.
type DeploymentError struct {
	CheckID string
	Msg     string
	Err     error
}

func (e *DeploymentError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *DeploymentError) Unwrap() error {
	return e.Err
}

// checkError reports any failure that stops a check from being registered,
// whether it was rejected during validation or could not be written.
func checkError(checkID string, err error) *DeploymentError {
	return &DeploymentError{
		CheckID: checkID,
		Msg:     "failed to register Sensu check '" + checkID + "'",
		Err:     err,
	}
}
