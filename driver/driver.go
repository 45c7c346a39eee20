// Package driver is the public entry point: it wires internal/include,
// internal/validate and internal/build into the parse -> merge -> validate
// -> build pipeline of spec.md §4, against whatever host capability
// interfaces the caller supplies via Options. Modeled on
// engine.NewChainEngine's constructor-plus-Option shape, adapted to a
// stateless per-call pipeline instead of ChainEngine's long-lived,
// reloadable rule chain.
package driver

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/bittoy/platformdesc/diag"
	"github.com/bittoy/platformdesc/internal/build"
	"github.com/bittoy/platformdesc/internal/include"
	"github.com/bittoy/platformdesc/internal/store"
	"github.com/bittoy/platformdesc/internal/validate"
)

// Driver runs the full pipeline against one set of host capabilities. It
// holds no per-run state, so a single Driver can be reused across many
// ProcessFile/ProcessDescription calls, each against its own fresh
// store.VariableStore. Calls must not run concurrently: every run mutates
// the shared Machine.
type Driver struct {
	cfg *Config
}

// New builds a Driver from opts. WithTypeCatalog, WithObjectModel and
// WithMachine are required; everything else has a default.
func New(opts ...Option) (*Driver, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	return &Driver{cfg: cfg}, nil
}

// Result summarizes one completed run.
type Result struct {
	// RunID identifies this run in the driver's log lines, a fresh UUIDv4
	// per call.
	RunID string
	// EntryCount is the number of variables the run resolved, including
	// already-registered peripherals seeded from the Machine.
	EntryCount int
}

// ProcessFile reads path, resolves its `using` directives relative to its
// own directory by default, and runs the full pipeline.
func (d *Driver) ProcessFile(path string) (*Result, error) {
	return d.run(path, func(st *store.VariableStore) error {
		return include.ProcessFile(d.cfg.Resolver, st, path)
	})
}

// ProcessDescription runs the full pipeline over text as if it had been
// read from fileName, for callers that already hold the description in
// memory (e.g. embedded in another config format).
func (d *Driver) ProcessDescription(text, fileName string) (*Result, error) {
	return d.run(fileName, func(st *store.VariableStore) error {
		return include.ProcessDescription(d.cfg.Resolver, st, text, fileName)
	})
}

func (d *Driver) run(label string, parse func(*store.VariableStore) error) (res *Result, err error) {
	runID, uerr := uuid.NewV4()
	if uerr != nil {
		return nil, fmt.Errorf("driver: generating run id: %w", uerr)
	}
	runIDStr := runID.String()

	d.cfg.Logger.Infof("run %s: starting %s", runIDStr, label)
	defer func() {
		if err != nil {
			d.cfg.Logger.Errorf("run %s: failed: %v", runIDStr, err)
			code := diag.InternalError
			var derr *diag.Error
			if errors.As(err, &derr) {
				code = derr.Code
			}
			d.cfg.Metrics.Error(code)
		} else {
			d.cfg.Logger.Infof("run %s: completed", runIDStr)
		}
	}()

	st := store.New()
	for name, value := range d.cfg.Machine.RegisteredPeripherals() {
		st.SeedBuiltin(name, d.cfg.ObjectModel.TypeOf(value), value)
	}

	if err = d.timedPhase("parse", func() error { return parse(st) }); err != nil {
		return nil, err
	}

	var vres *validate.Result
	if err = d.timedPhase("validate", func() error {
		var verr error
		vres, verr = validate.Run(st, d.cfg.TypeCatalog, d.cfg.ObjectModel, d.cfg.Machine, d.cfg.InitHandler, d.cfg.DefaultNamespace)
		return verr
	}); err != nil {
		return nil, err
	}

	// build.Run already invokes machine.PostCreationActions() as its final
	// step, so there is nothing left to do here once it returns.
	if err = d.timedPhase("build", func() error {
		return build.Run(st, vres, d.cfg.ObjectModel, d.cfg.Machine, d.cfg.InitHandler, d.cfg.Metrics)
	}); err != nil {
		return nil, err
	}

	return &Result{RunID: runIDStr, EntryCount: len(vres.Plans)}, nil
}

func (d *Driver) timedPhase(phase string, fn func() error) error {
	start := time.Now()
	err := fn()
	d.cfg.Metrics.ObservePhase(phase, time.Since(start).Seconds())
	return err
}

// relativeFileResolver is the default hostmodel.UsingResolver: an include
// path is resolved relative to the directory of the file that names it,
// the common shell/Make convention for nested includes.
type relativeFileResolver struct{}

func (relativeFileResolver) Resolve(includePath, includingFile string) (string, error) {
	if filepath.IsAbs(includePath) {
		return includePath, nil
	}
	return filepath.Join(filepath.Dir(includingFile), includePath), nil
}
