// file: driver_demo.go
package main

import (
	"fmt"
	"log"

	"github.com/bittoy/platformdesc/driver"
	"github.com/bittoy/platformdesc/hostmodel"
	"github.com/bittoy/platformdesc/metrics"
	"github.com/bittoy/platformdesc/nativecatalog"
	"github.com/prometheus/client_golang/prometheus"
)

// cpu and sysbus stand in for a host's real peripheral types, the way a
// real driver would register its own CPU/bus/interrupt-controller Go
// types with the catalog before calling driver.New.
type cpu struct {
	CpuType           string `native:"cpuType,settable"`
	PerformanceInMips int64  `native:"PerformanceInMips,settable"`
}

type sysbus struct{}

const platformDescription = `
cpu: CPU.ARMv7A @ sysbus
{
    cpuType: "cortex-a9"
    PerformanceInMips: 1
}
`

func main() {
	cat := nativecatalog.NewCatalog()
	_, nullType := cat.NullRegistrationPoint()

	cpuType := cat.RegisterType("CPU.ARMv7A", &cpu{}, hostmodel.KindOther, []hostmodel.CtorDescriptor{{
		Signature: "CPU.ARMv7A()",
		Invoke:    func(args []any) (any, error) { return &cpu{}, nil },
	}}, nil)

	cat.RegisterType("SysBus", &sysbus{}, hostmodel.KindOther, nil, []hostmodel.RegistrationInterface{{
		PeripheralType:               cpuType,
		RegistrationPointType:        nullType,
		AcceptsNullRegistrationPoint: true,
		Register: func(registerObj, peripheral, point any) error {
			return nil
		},
	}})

	machine := nativecatalog.NewMachine()
	machine.SeedRegistered("sysbus", &sysbus{})
	machine.SetInstance(machine, cat.MachineType())

	d, err := driver.New(
		driver.WithTypeCatalog(cat),
		driver.WithObjectModel(cat),
		driver.WithMachine(machine),
		driver.WithMetrics(metrics.NewRecorder(prometheus.DefaultRegisterer)),
	)
	if err != nil {
		log.Fatalf("driver.New: %v", err)
	}

	res, err := d.ProcessDescription(platformDescription, "demo.repl")
	if err != nil {
		log.Fatalf("ProcessDescription: %v", err)
	}
	fmt.Printf("run %s built %d entries\n", res.RunID, res.EntryCount)
}
