// Package executioncontext holds the identity every request to and from the
// Runtime is performed under.
package executioncontext

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var (
	// SystemTenant is the tenant used when no tenant has been resolved yet.
	SystemTenant = uuid.MustParse("08831584-e016-42f6-bc5e-c6f2a9e9c8b0")
	// DevelopmentTenant is the tenant used by local Runtime setups.
	DevelopmentTenant = uuid.MustParse("445f8ea8-1a6f-40d7-b2fc-796dba92dc44")
)

// Claim is a single key/value claim carried with the execution context.
type Claim struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	ValueType string `json:"valueType,omitempty"`
}

// Version identifies the running microservice build.
type Version struct {
	Major      int    `json:"major"`
	Minor      int    `json:"minor"`
	Patch      int    `json:"patch"`
	Build      int    `json:"build"`
	PreRelease string `json:"preRelease,omitempty"`
}

// NotSet is the version used when none is configured.
var NotSet = Version{}

func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.PreRelease != "" {
		s += "-" + v.PreRelease
	}
	if v.Build > 0 {
		s += "+" + strconv.Itoa(v.Build)
	}
	return s
}

// ParseVersion parses MAJOR.MINOR.PATCH[-PRERELEASE][+BUILD].
func ParseVersion(raw string) (Version, error) {
	var v Version
	rest := strings.TrimPrefix(strings.TrimSpace(raw), "v")
	if rest == "" {
		return v, fmt.Errorf("version: empty version")
	}
	if idx := strings.IndexByte(rest, '+'); idx >= 0 {
		build, err := strconv.Atoi(rest[idx+1:])
		if err != nil {
			return v, fmt.Errorf("version: invalid build number in %q: %w", raw, err)
		}
		v.Build = build
		rest = rest[:idx]
	}
	if idx := strings.IndexByte(rest, '-'); idx >= 0 {
		v.PreRelease = rest[idx+1:]
		rest = rest[:idx]
	}
	parts := strings.Split(rest, ".")
	if len(parts) != 3 {
		return v, fmt.Errorf("version: %q is not MAJOR.MINOR.PATCH", raw)
	}
	numbers := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return v, fmt.Errorf("version: invalid component %q in %q", part, raw)
		}
		numbers[i] = n
	}
	v.Major, v.Minor, v.Patch = numbers[0], numbers[1], numbers[2]
	return v, nil
}

// ExecutionContext is an immutable value. The For* methods return modified
// copies and leave every other field untouched.
type ExecutionContext struct {
	MicroserviceID uuid.UUID `json:"microserviceId"`
	TenantID       uuid.UUID `json:"tenantId"`
	Version        Version   `json:"version"`
	Environment    string    `json:"environment"`
	CorrelationID  uuid.UUID `json:"correlationId"`
	Claims         []Claim   `json:"claims,omitempty"`
}

// New returns an execution context for the microservice running under the
// system tenant.
func New(microservice uuid.UUID, version Version, environment string) ExecutionContext {
	return ExecutionContext{
		MicroserviceID: microservice,
		TenantID:       SystemTenant,
		Version:        version,
		Environment:    environment,
		CorrelationID:  uuid.New(),
	}
}

func (e ExecutionContext) ForTenant(tenant uuid.UUID) ExecutionContext {
	e.Claims = slices.Clone(e.Claims)
	e.TenantID = tenant
	return e
}

func (e ExecutionContext) ForCorrelation(correlation uuid.UUID) ExecutionContext {
	e.Claims = slices.Clone(e.Claims)
	e.CorrelationID = correlation
	return e
}

func (e ExecutionContext) ForClaims(claims ...Claim) ExecutionContext {
	e.Claims = slices.Clone(claims)
	return e
}
