package build

import (
	"github.com/bittoy/platformdesc/diag"
	"github.com/bittoy/platformdesc/internal/validate"
)

// runInitPhase is builder phase 5: run each entry's own init attribute, in
// registration order, via the init handler. There is no object-value init
// queue: an init attribute written inside an inline object value is
// accepted by the parser but not carried into any plan, so it never runs.
func (b *builder) runInitPhase(res *validate.Result, order []string) {
	for _, name := range order {
		plan := res.Plans[name]
		if plan == nil || plan.Init == nil {
			continue
		}
		v, _ := b.st.Lookup(name)
		if b.init == nil {
			continue
		}
		b.init.Execute(v.Value, plan.Init.Lines, func(err error) {
			diag.Wrap(diag.InitSectionValidationError, plan.Init.Pos, "", "executing init section of "+name, err)
		})
	}
}
