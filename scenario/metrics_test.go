// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package scenario_test

import (
	"strings"

	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	gc "gopkg.in/check.v1"

	"github.com/canonical/operator-sub000/ops"
	"github.com/canonical/operator-sub000/scenario"
	"github.com/canonical/operator-sub000/state"
)

func (s *scenarioSuite) TestRunsCounted(c *gc.C) {
	collector := scenario.NewMetricsCollector()
	registry := prometheus.NewPedanticRegistry()
	c.Assert(registry.Register(collector), jc.ErrorIsNil)

	ctx, err := scenario.NewContext(scenario.ContextConfig{
		NewCharm: handlers{
			"start": func(ev ops.Event) error {
				ev.Defer()
				return nil
			},
			"stop": func(ops.Event) error { return errors.New("boom") },
		}.newCharm,
		Meta:      s.meta,
		Actions:   s.actions,
		Clock:     s.clock,
		Collector: collector,
	})
	c.Assert(err, jc.ErrorIsNil)
	defer ctx.Close()

	_, err = ctx.Run(scenario.Start(), state.State{})
	c.Assert(err, jc.ErrorIsNil)
	_, err = ctx.Run(scenario.Stop(), state.State{})
	c.Assert(err, gc.ErrorMatches, "boom")
	_, err = ctx.Run(scenario.Action("snapshot", nil), state.State{})
	c.Assert(err, gc.NotNil)
	_, err = ctx.Run(scenario.Action("restore", nil), state.State{})
	c.Assert(err, gc.NotNil)

	expected := `
# HELP charmscenario_deferred_events The number of deferred events in the last output state.
# TYPE charmscenario_deferred_events gauge
charmscenario_deferred_events 1
# HELP charmscenario_runs_total The number of runs by event kind and outcome.
# TYPE charmscenario_runs_total counter
charmscenario_runs_total{kind="action",outcome="inconsistent"} 1
charmscenario_runs_total{kind="action",outcome="misuse"} 1
charmscenario_runs_total{kind="start",outcome="success"} 1
charmscenario_runs_total{kind="stop",outcome="charm-error"} 1
`
	err = testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"charmscenario_deferred_events", "charmscenario_runs_total")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(testutil.CollectAndCount(collector, "charmscenario_run_duration_seconds"), gc.Equals, 3)
}
