package commands

import (
	"context"
	"fmt"
)

type FeaturesCmd struct {
	OutputFlags
}

// Run needs no session, so it skips open.
func (f *FeaturesCmd) Run(ctx context.Context, globals *Globals) error {
	flags, err := loadFlags()
	if err != nil {
		return err
	}
	return f.run(ctx, &app{flags: flags, out: stdout()})
}

func (f *FeaturesCmd) run(_ context.Context, a *app) error {
	all := a.flags.All()
	if done, err := f.encode(a.out, all); done {
		return err
	}

	fmt.Fprintf(a.out, "%-30s %s\n", "FLAG", "ENABLED")
	rule(a.out, 38)
	for _, fl := range all {
		fmt.Fprintf(a.out, "%-30s %t\n", fl.Path, fl.Enabled)
	}
	return nil
}
