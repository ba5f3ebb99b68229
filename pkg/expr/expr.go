package expr

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

const (
	VarFiles        = "files"
	VarDependencies = "dependencies"
	VarRequest      = "request"
)

// ErrNotBool is returned when an expression does not evaluate to a boolean.
var ErrNotBool = errors.New("expression did not return a bool")

// Protect CEL environment creation and compilation from concurrent access.
var celMutex sync.Mutex

// Environment provides a thread-safe wrapper around a [*cel.Env].
type Environment struct {
	env *cel.Env
}

// NewEnvironment creates an [Environment] declaring the guard variables and
// functions. Extra options are appended.
func NewEnvironment(opts ...cel.EnvOption) (*Environment, error) {
	celMutex.Lock()
	defer celMutex.Unlock()

	opts = append([]cel.EnvOption{
		cel.Variable(VarFiles, cel.ListType(cel.StringType)),
		cel.Variable(VarDependencies, cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable(VarRequest, cel.StringType),
		cel.Lib(&lib{}),
	}, opts...)

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &Environment{env: env}, nil
}

// MustNewEnvironment creates a new [Environment] and panics on error.
func MustNewEnvironment(opts ...cel.EnvOption) *Environment {
	env, err := NewEnvironment(opts...)
	if err != nil {
		panic(err)
	}

	return env
}

// Compile compiles a boolean CEL expression into a program.
//
//nolint:ireturn // Following CEL's function signature.
func (e *Environment) Compile(expression string) (cel.Program, error) {
	celMutex.Lock()
	defer celMutex.Unlock()

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: got %s", ErrNotBool, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("create program: %w", err)
	}

	return program, nil
}

// EvalBool evaluates program with vars. Evaluation errors and non-boolean
// results are reported as errors.
func EvalBool(program cel.Program, vars map[string]any) (bool, error) {
	result, _, err := program.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("evaluate expression: %w", err)
	}

	b, ok := result.Value().(bool)
	if !ok {
		return false, ErrNotBool
	}

	return b, nil
}
