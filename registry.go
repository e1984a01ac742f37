package goSession

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
)

// AuthMethod is the single contract every authentication strategy
// implements. A false result with a nil error means "these credentials did
// not authenticate here" — wrong password and "method does not apply" are
// deliberately indistinguishable to the caller.
type AuthMethod interface {
	Authenticate(ctx context.Context, username, password string) (bool, error)
}

// MethodDeps carries the shared collaborators merged into every method at
// instantiation time.
type MethodDeps struct {
	Directory UserDirectory
}

// MethodFactory builds an [AuthMethod] from shared deps and the method's
// parameter table.
type MethodFactory func(deps MethodDeps, params map[string]string) (AuthMethod, error)

// MethodSpec describes one configured auth method. Data-driven selection is
// preserved — the Driver string picks the implementation — but resolution
// goes through a static factory registry rather than runtime reflection.
type MethodSpec struct {
	ID       int
	Driver   string
	Priority int // ascending: lower priorities are tried first
	Active   bool
	Params   map[string]string
}

// Registry resolves configured auth methods to instances. Methods are
// instantiated lazily and cached; specs and drivers are immutable after
// construction.
//
//	Docs: docs/auth.md
type Registry struct {
	deps    MethodDeps
	drivers map[string]MethodFactory
	specs   map[int]MethodSpec
	order   []int // all method IDs, priority ascending

	mu    sync.Mutex
	cache map[int]AuthMethod
}

// NewRegistry builds a [Registry] from method specs and driver factories.
// Unknown drivers are rejected up front so misconfiguration fails at build
// time, not mid-login.
func NewRegistry(deps MethodDeps, specs []MethodSpec, drivers map[string]MethodFactory) (*Registry, error) {
	r := &Registry{
		deps:    deps,
		drivers: make(map[string]MethodFactory, len(drivers)),
		specs:   make(map[int]MethodSpec, len(specs)),
		cache:   make(map[int]AuthMethod),
	}
	for name, factory := range drivers {
		r.drivers[name] = factory
	}

	for _, spec := range specs {
		if _, dup := r.specs[spec.ID]; dup {
			return nil, fmt.Errorf("duplicate auth method id %d", spec.ID)
		}
		if _, ok := r.drivers[spec.Driver]; !ok {
			return nil, fmt.Errorf("%w: %q (method %d)", ErrUnknownDriver, spec.Driver, spec.ID)
		}
		r.specs[spec.ID] = spec
		r.order = append(r.order, spec.ID)
	}

	sort.SliceStable(r.order, func(i, j int) bool {
		return r.specs[r.order[i]].Priority < r.specs[r.order[j]].Priority
	})

	return r, nil
}

// AvailableMethods returns method IDs in ascending priority order,
// restricted to active methods when activeOnly is set.
//
// AvailableMethods does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (r *Registry) AvailableMethods(activeOnly bool) []int {
	out := make([]int, 0, len(r.order))
	for _, id := range r.order {
		if activeOnly && !r.specs[id].Active {
			continue
		}
		out = append(out, id)
	}
	return out
}

// LoadMethod instantiates the method with the given ID. An inactive method
// returns (nil, nil): absent, not an error — callers must distinguish "no
// such capability right now" from failure. An unknown ID is
// [ErrNoSuchMethod].
//
// LoadMethod may return an error when input validation, dependency calls, or security checks fail.
func (r *Registry) LoadMethod(id int) (AuthMethod, error) {
	spec, ok := r.specs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchMethod, id)
	}
	if !spec.Active {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.cache[id]; ok {
		return m, nil
	}

	factory := r.drivers[spec.Driver]
	m, err := factory(r.deps, spec.Params)
	if err != nil {
		return nil, fmt.Errorf("auth method %d (%s): %w", id, spec.Driver, err)
	}
	r.cache[id] = m

	return m, nil
}

// BuiltinDrivers returns the factory set shipped with the package:
// "password" (bcrypt against the user directory) and "ssh" (delegated
// authentication against a remote host).
func BuiltinDrivers() map[string]MethodFactory {
	return map[string]MethodFactory{
		"password": newPasswordMethod,
		"ssh":      newSSHMethod,
	}
}

// LoadMethodSpecs reads method descriptors and their parameter rows from
// the two side tables. Expected schemas:
//
//	<methods>(id, driver, priority, active)
//	<params>(method_id, name, value)
//
// Parameters are loaded once, at startup, and merged into the specs.
func LoadMethodSpecs(ctx context.Context, db *sql.DB, methodsTable, paramsTable string) ([]MethodSpec, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(
		"SELECT id, driver, priority, active FROM %s ORDER BY priority", methodsTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[int]*MethodSpec)
	var specs []MethodSpec
	for rows.Next() {
		var (
			spec   MethodSpec
			active int
		)
		if err := rows.Scan(&spec.ID, &spec.Driver, &spec.Priority, &active); err != nil {
			return nil, err
		}
		spec.Active = active != 0
		spec.Params = make(map[string]string)
		specs = append(specs, spec)
		byID[spec.ID] = &specs[len(specs)-1]
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := db.QueryContext(ctx, fmt.Sprintf(
		"SELECT method_id, name, value FROM %s", paramsTable))
	if err != nil {
		return nil, err
	}
	defer prows.Close()

	for prows.Next() {
		var (
			id          int
			name, value string
		)
		if err := prows.Scan(&id, &name, &value); err != nil {
			return nil, err
		}
		if spec, ok := byID[id]; ok {
			spec.Params[name] = value
		}
	}
	if err := prows.Err(); err != nil {
		return nil, err
	}

	return specs, nil
}
