package internal

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/strata"
	"go.uber.org/zap"
)

// visitState tracks a table through one resolution pass.
type visitState uint8

const (
	unvisited visitState = iota
	inProgress
	done
)

// TableResolver builds table definitions into physical tables, dependencies
// first, registering each table in the shared dictionary exactly once.
type TableResolver struct {
	dicts    *ResourceDictionaries
	metadata MetadataService
}

// NewTableResolver creates a resolver writing into dicts.PhysicalTables.
func NewTableResolver(dicts *ResourceDictionaries, metadata MetadataService) *TableResolver {
	return &TableResolver{dicts: dicts, metadata: metadata}
}

// resolution is the private state of one pass.
type resolution struct {
	id          string
	definitions map[string]TableDefinition
	state       map[string]visitState
	path        []string
	loaded      *OrderedSet[string]
	tables      []*PhysicalTable
}

// Resolve builds the named tables and everything they depend on. Tables that
// are already in the dictionary are reused rather than rebuilt. The result
// lists every table reached, dependencies before their dependents, in the
// order first discovered.
func (r *TableResolver) Resolve(ctx context.Context, definitions []TableDefinition, names []string) ([]*PhysicalTable, error) {
	unlock := r.dicts.PhysicalTables.lockBuild()
	defer unlock()

	res := &resolution{
		id:          uuid.NewString(),
		definitions: make(map[string]TableDefinition, len(definitions)),
		state:       make(map[string]visitState, len(definitions)),
		loaded:      NewOrderedSet[string](),
	}
	for _, def := range definitions {
		res.definitions[def.Name()] = def
	}

	start := time.Now()
	for _, name := range names {
		if err := r.visit(ctx, res, name); err != nil {
			zap.S().Errorw("physical table resolution failed", "resolution", res.id, "table", name, "error", err)
			return nil, err
		}
	}
	EmitResolutionLatency(ctx, time.Since(start).Milliseconds())
	zap.S().Infow("resolved physical tables", "resolution", res.id, "requested", names, "tables", res.loaded.Values())
	return res.tables, nil
}

func (r *TableResolver) visit(ctx context.Context, res *resolution, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if table, ok := r.dicts.PhysicalTables.Get(name); ok {
		if res.state[name] != done {
			zap.S().Debugw("reusing built physical table", "resolution", res.id, "table", name)
		}
		res.state[name] = done
		res.add(table)
		return nil
	}

	cycle := append(slices.Clone(res.path), name)
	if res.state[name] == inProgress {
		return strata.NewUnresolvedDependencyError(name, cycle)
	}
	def, ok := res.definitions[name]
	if !ok {
		return strata.NewUnresolvedDependencyError(name, cycle)
	}

	res.state[name] = inProgress
	res.path = append(res.path, name)
	for _, dep := range def.DependentTableNames() {
		if err := r.visit(ctx, res, dep); err != nil {
			return err
		}
	}
	res.path = res.path[:len(res.path)-1]

	table, err := def.Build(ctx, r.dicts, r.metadata)
	if err != nil {
		return strata.NewTableBuildError(name, err)
	}
	if table == nil {
		return strata.NewTableBuildRefusedError(name)
	}
	r.dicts.PhysicalTables.register(table)
	res.state[name] = done
	res.add(table)

	EmitTableBuilt(ctx, string(table.Kind()))
	zap.S().Infow("built physical table", "resolution", res.id, "table", name, "kind", table.Kind(),
		"dependencies", table.Dependencies())
	return nil
}

func (res *resolution) add(table *PhysicalTable) {
	if res.loaded.Add(table.Name()) {
		res.tables = append(res.tables, table)
	}
}
