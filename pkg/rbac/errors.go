package rbac

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPermissionNotFound indicates an unknown permission id
	ErrPermissionNotFound = errors.New("rbac: permission not found")

	// ErrRoleNotFound indicates an unknown role id
	ErrRoleNotFound = errors.New("rbac: role not found")

	// ErrUserNotFound indicates an unknown or unauthenticated user
	ErrUserNotFound = errors.New("rbac: user not found")

	// ErrNotAssigned indicates a revocation of a role the user does not hold
	ErrNotAssigned = errors.New("rbac: role not assigned")

	// ErrCyclicHierarchy indicates a parent chain that revisits a role
	ErrCyclicHierarchy = errors.New("rbac: cyclic role hierarchy")

	// ErrHierarchyTooDeep indicates a parent chain longer than MaxHierarchyDepth
	ErrHierarchyTooDeep = errors.New("rbac: role hierarchy too deep")

	// ErrDuplicateID indicates two definitions claiming the same identity
	ErrDuplicateID = errors.New("rbac: duplicate id")

	// ErrUnknownPermission indicates a role referencing an undefined permission
	ErrUnknownPermission = errors.New("rbac: role references unknown permission")

	// ErrInvalidDefinition indicates a structurally malformed definition
	ErrInvalidDefinition = errors.New("rbac: invalid definition")

	// ErrContractViolation indicates a caller passed structurally invalid arguments
	ErrContractViolation = errors.New("rbac: contract violation")
)

// ConfigError describes one problem found while validating a definition table
type ConfigError struct {
	Kind   error
	IDs    []string
	Detail string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if len(e.IDs) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.IDs, ", "))
		b.WriteString("]")
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error {
	return e.Kind
}

func configErr(kind error, detail string, ids ...string) *ConfigError {
	return &ConfigError{Kind: kind, IDs: ids, Detail: detail}
}

// ContractError is raised for programmer errors such as empty identifiers
type ContractError struct {
	Operation string
	Detail    string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrContractViolation.Error(), e.Operation, e.Detail)
}

func (e *ContractError) Unwrap() error {
	return ErrContractViolation
}
