// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package state_test

import (
	"time"

	"github.com/canonical/pebble/client"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/canonical/operator-sub000/core/plan"
	"github.com/canonical/operator-sub000/core/secrets"
	"github.com/canonical/operator-sub000/core/status"
	"github.com/canonical/operator-sub000/state"
)

type stateSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&stateSuite{})

func sampleState() state.State {
	since := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	layer, err := plan.ParseLayer(1, "base", []byte(`
services:
  web:
    override: replace
    command: /bin/web
`))
	if err != nil {
		panic(err)
	}
	rel := state.NewRelation("db", 1, "postgresql")
	rel.RemoteAppData["host"] = "10.0.0.1"
	return state.State{
		Config:    map[string]interface{}{"port": 8080},
		Relations: []state.Relation{rel},
		Containers: []state.Container{{
			Name:       "foo",
			CanConnect: true,
			Layers:     map[string]*plan.Layer{"base": layer},
			ServiceStatuses: map[string]client.ServiceStatus{
				"web": client.StatusActive,
			},
			Files: map[string]state.File{"/etc/web.conf": {Content: "port=8080", Mode: 0644}},
			Execs: []state.Exec{{Command: []string{"ls"}, Stdout: "a\n"}},
		}},
		Secrets: []state.Secret{{
			ID:             "secret:9m4e2mr0ui3e8a215n4g",
			Owner:          secrets.OwnerApp,
			TrackedContent: map[string]string{"password": "s3cr3t"},
			Grants:         map[int]set.Strings{1: set.NewStrings("postgresql")},
		}},
		Leader:     true,
		UnitStatus: status.StatusInfo{Status: status.Active, Message: "ok", Since: &since},
	}
}

func (s *stateSuite) TestCopyIsIndependent(c *gc.C) {
	orig := sampleState()
	fork := orig.Copy()
	c.Assert(fork.Equal(orig), jc.IsTrue)

	fork.Relations[0].RemoteAppData["host"] = "changed"
	fork.Containers[0].Layers["base"].Services["web"] = &plan.Service{Command: "/bin/other"}
	fork.Containers[0].Files["/etc/web.conf"] = state.File{Content: "changed"}
	fork.Secrets[0].Grants[1].Add("other")
	fork.Config["port"] = 1
	*fork.UnitStatus.Since = time.Time{}

	c.Assert(orig.Equal(sampleState()), jc.IsTrue)
	c.Assert(orig.Relations[0].RemoteAppData["host"], gc.Equals, "10.0.0.1")
	c.Assert(orig.Secrets[0].Grants[1].Contains("other"), jc.IsFalse)
}

func (s *stateSuite) TestModifiersAreCopyOnWrite(c *gc.C) {
	orig := sampleState()
	snapshot := orig.Copy()

	rel := state.NewRelation("cache", 2, "redis")
	changed := orig.
		WithLeader(false).
		WithConfig(map[string]interface{}{"debug": true}).
		WithRelation(rel).
		WithContainer(state.Container{Name: "bar"}).
		WithStorage(state.Storage{Name: "data"}).
		WithSecret(state.NewSecret(map[string]string{"a": "b"}))

	c.Assert(orig.Equal(snapshot), jc.IsTrue)
	c.Assert(changed.Leader, jc.IsFalse)
	c.Assert(changed.Config, jc.DeepEquals, map[string]interface{}{"port": 8080, "debug": true})
	c.Assert(changed.Relations, gc.HasLen, 2)
	c.Assert(changed.Containers, gc.HasLen, 2)
	c.Assert(changed.Storages, gc.HasLen, 1)
	c.Assert(changed.Secrets, gc.HasLen, 2)

	replaced := changed.WithRelation(state.NewRelation("cache", 2, "memcached"))
	c.Assert(replaced.Relations, gc.HasLen, 2)
	got, err := replaced.Relation(2)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(got.RemoteAppName, gc.Equals, "memcached")
	c.Assert(changed.Relations[1].RemoteAppName, gc.Equals, "redis")
}

func (s *stateSuite) TestGettersNotFound(c *gc.C) {
	st := sampleState()
	_, err := st.Relation(42)
	c.Check(err, jc.ErrorIs, errors.NotFound)
	_, err = st.Container("missing")
	c.Check(err, gc.ErrorMatches, `container "missing" not found`)
	_, err = st.Secret("nope")
	c.Check(err, jc.ErrorIs, errors.NotFound)
	_, err = st.Storage("data", 0)
	c.Check(err, jc.ErrorIs, errors.NotFound)
}

func (s *stateSuite) TestSecretLookup(c *gc.C) {
	st := sampleState()
	secret := st.Secrets[0]
	secret.Label = "db-password"
	st = st.WithSecret(secret)

	byLabel, err := st.Secret("db-password")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(byLabel.ID, gc.Equals, secret.ID)

	uri, err := secrets.ParseURI(secret.ID)
	c.Assert(err, jc.ErrorIsNil)
	byBareID, err := st.Secret(uri.ID)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(byBareID.ID, gc.Equals, secret.ID)
}

func (s *stateSuite) TestSecretRefreshWithoutLatest(c *gc.C) {
	content := map[string]string{"a": "1"}
	trackedOnly := state.Secret{TrackedContent: content}
	sameLatest := state.Secret{TrackedContent: content, LatestContent: content}

	c.Assert(trackedOnly.Content(true), jc.DeepEquals, sameLatest.Content(true))
	c.Assert(trackedOnly.Content(false), jc.DeepEquals, sameLatest.Content(false))
	c.Assert(trackedOnly.Refreshed().Content(false), jc.DeepEquals, sameLatest.Refreshed().Content(false))
}

func (s *stateSuite) TestSecretRevisions(c *gc.C) {
	secret := state.Secret{
		TrackedContent:  map[string]string{"a": "1"},
		LatestContent:   map[string]string{"a": "2"},
		TrackedRevision: 3,
	}
	c.Assert(secret.Revision(), gc.Equals, 3)
	c.Assert(secret.LatestRevision(), gc.Equals, 4)
	c.Assert(secret.Content(false), jc.DeepEquals, map[string]string{"a": "1"})
	c.Assert(secret.Content(true), jc.DeepEquals, map[string]string{"a": "2"})

	refreshed := secret.Refreshed()
	c.Assert(refreshed.Revision(), gc.Equals, 4)
	c.Assert(refreshed.LatestContent, gc.IsNil)
	c.Assert(secret.Revision(), gc.Equals, 3)
}

func (s *stateSuite) TestMatchExecPrefersLongestPrefix(c *gc.C) {
	for _, execs := range [][]state.Exec{{
		{Command: []string{"ls", "-ll"}, Stdout: "long"},
		{Command: []string{"ls"}, Stdout: "short"},
	}, {
		{Command: []string{"ls"}, Stdout: "short"},
		{Command: []string{"ls", "-ll"}, Stdout: "long"},
	}} {
		container := state.Container{Execs: execs}
		exec, ok := container.MatchExec([]string{"ls", "-ll"})
		c.Assert(ok, jc.IsTrue)
		c.Assert(exec.Stdout, gc.Equals, "long")
		exec, ok = container.MatchExec([]string{"ls", "-la"})
		c.Assert(ok, jc.IsTrue)
		c.Assert(exec.Stdout, gc.Equals, "short")
		_, ok = container.MatchExec([]string{"cat"})
		c.Assert(ok, jc.IsFalse)
	}
}

func (s *stateSuite) TestMatchExecEmptyPrefix(c *gc.C) {
	container := state.Container{Execs: []state.Exec{{Command: nil, ReturnCode: 1}}}
	exec, ok := container.MatchExec([]string{"anything", "at", "all"})
	c.Assert(ok, jc.IsTrue)
	c.Assert(exec.ReturnCode, gc.Equals, 1)
}

func (s *stateSuite) TestContainerPlan(c *gc.C) {
	container := sampleState().Containers[0]
	p, err := container.Plan()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(p.Services["web"].Command, gc.Equals, "/bin/web")
	c.Assert(container.ServiceStatus("web"), gc.Equals, client.StatusActive)
	c.Assert(container.ServiceStatus("other"), gc.Equals, client.StatusInactive)
}

func (s *stateSuite) TestRemoteUnitNamesNaturalOrder(c *gc.C) {
	rel := state.Relation{
		RemoteAppName:   "db",
		RemoteUnitsData: map[int]state.DataBag{10: {}, 2: {}, 9: {}},
	}
	c.Assert(rel.RemoteUnitNames(), jc.DeepEquals, []string{"db/2", "db/9", "db/10"})
	c.Assert(rel.RemoteUnitIDs(), jc.DeepEquals, []int{2, 9, 10})
}

func (s *stateSuite) TestValidate(c *gc.C) {
	c.Assert(sampleState().Validate(), jc.ErrorIsNil)

	st := sampleState().WithRelation(state.NewRelation("db", 1, "mysql"))
	c.Assert(st.Validate(), jc.ErrorIsNil)

	st = sampleState()
	st.Relations = append(st.Relations, state.NewRelation("cache", 1, "redis"))
	c.Assert(st.Validate(), gc.ErrorMatches, `duplicate relation id 1 not valid`)

	st = sampleState()
	st.OpenedPorts = []state.Port{{Protocol: "sctp", Port: 1}}
	c.Assert(st.Validate(), gc.ErrorMatches, `protocol "sctp" not valid`)

	st = sampleState()
	st.Secrets[0].Owner = "someone"
	c.Assert(st.Validate(), jc.ErrorIs, errors.NotValid)
}

func (s *stateSuite) TestDiff(c *gc.C) {
	a := sampleState()
	c.Assert(state.Diff(a, a.Copy()), gc.HasLen, 0)
	b := a.WithLeader(false)
	c.Assert(state.Diff(a, b), gc.Not(gc.HasLen), 0)
}

func (s *stateSuite) TestYAMLSnapshot(c *gc.C) {
	orig := sampleState()
	data, err := state.Marshal(orig)
	c.Assert(err, jc.ErrorIsNil)

	got, err := state.Unmarshal(data)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(got.Leader, jc.IsTrue)
	c.Assert(got.Relations[0].RemoteAppData, jc.DeepEquals, state.DataBag{"host": "10.0.0.1"})
	layer := got.Containers[0].Layers["base"]
	c.Assert(layer.Label, gc.Equals, "base")
	c.Assert(layer.Order, gc.Equals, 1)
	c.Assert(layer.Services["web"].Name, gc.Equals, "web")
	c.Assert(layer.Services["web"].Command, gc.Equals, "/bin/web")
	c.Assert(got.Validate(), jc.ErrorIsNil)
	c.Assert(got.Containers[0].Execs[0].Command, jc.DeepEquals, []string{"ls"})
	c.Assert(got.Secrets[0].Grants[1].Contains("postgresql"), jc.IsTrue)
	c.Assert(got.UnitStatus.Since.Equal(*orig.UnitStatus.Since), jc.IsTrue)
}

func (s *stateSuite) TestUnmarshalRejectsInvalidLayer(c *gc.C) {
	_, err := state.Unmarshal([]byte(`
containers:
  - name: foo
    can-connect: true
    layers:
      base:
        order: 1
        services:
          web: {override: replace, command: /bin/web, bogus: 1}
`))
	c.Assert(err, gc.ErrorMatches, `(?s)decoding state: layer "base": cannot parse layer "base" section "services": .*bogus.*`)
}

func (s *stateSuite) TestUnmarshalRejectsUnknownFields(c *gc.C) {
	_, err := state.Unmarshal([]byte("leader: true\nbogus: 1\n"))
	c.Assert(err, gc.ErrorMatches, `(?s)decoding state: .*bogus.*`)
}
