package junos_test

import (
	"context"
	"fmt"

	"github.com/damianoneill/junosmgr/junos"
	"github.com/damianoneill/junosmgr/junos/junostest"
	"github.com/damianoneill/junosmgr/junos/template"
)

func ExampleDeviceClient() {
	d, err := junostest.NewDevice(context.Background(), "localhost", 0, "root", "secret")
	if err != nil {
		panic(err)
	}
	defer d.Close()

	dc := junos.NewClient(d.Address(), "root", "secret")
	if err = dc.Open(context.Background()); err != nil {
		panic(err)
	}
	defer dc.Close() // nolint: errcheck

	facts, _ := dc.Facts()
	fmt.Println(facts[junos.FactHostname], facts[junos.FactModel])

	_ = dc.OpenConfig(junos.ModePrivate)
	_ = dc.LoadConfigTemplate("system { host-name {{ name }}; }", template.Vars{"name": "edge1"})
	diff, _ := dc.Diff()
	fmt.Println(diff)
	err = dc.CommitAndClose(junos.WithComment("rename"))
	fmt.Println(err, dc.ConfigState())

	// Output:
	// sim1 vsrx
	// [edit]
	// + system {
	// +     host-name edge1;
	// + }
	// <nil> Closed
}
