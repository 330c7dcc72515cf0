package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a compilation failure.
type Kind string

const (
	KindVerbNotAllowed     Kind = "VerbNotAllowed"
	KindSkillCapabilityGap Kind = "SkillCapabilityGap"
	KindRobotCapabilityGap Kind = "RobotCapabilityGap"
)

// Sentinels matched by errors.Is against a *CompilationError of the same kind.
var (
	ErrVerbNotAllowed     = errors.New("verb not allowed")
	ErrSkillCapabilityGap = errors.New("skill capability gap")
	ErrRobotCapabilityGap = errors.New("robot capability gap")
)

// CompilationError reports why an envelope could not be compiled. It is
// fatal: no partial plan is produced.
type CompilationError struct {
	Kind     Kind
	Verb     string
	PolicyID string
	// Missing lists the required capabilities absent from the skill or robot.
	Missing []string
}

func (e *CompilationError) Error() string {
	switch e.Kind {
	case KindVerbNotAllowed:
		return fmt.Sprintf("compilation failed: verb %q is not allowed by policy %q", e.Verb, e.PolicyID)
	case KindSkillCapabilityGap:
		return "compilation failed: skill does not satisfy all required capabilities" + missingSuffix(e.Missing)
	case KindRobotCapabilityGap:
		return "compilation failed: robot does not satisfy all required capabilities" + missingSuffix(e.Missing)
	default:
		return "compilation failed: " + string(e.Kind)
	}
}

// Is lets errors.Is match the kind sentinels.
func (e *CompilationError) Is(target error) bool {
	switch target {
	case ErrVerbNotAllowed:
		return e.Kind == KindVerbNotAllowed
	case ErrSkillCapabilityGap:
		return e.Kind == KindSkillCapabilityGap
	case ErrRobotCapabilityGap:
		return e.Kind == KindRobotCapabilityGap
	}
	return false
}

func missingSuffix(missing []string) string {
	if len(missing) == 0 {
		return ""
	}
	return " (missing: " + strings.Join(missing, ", ") + ")"
}
