// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package backend_test

import (
	"strings"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/version/v2"
	gc "gopkg.in/check.v1"

	"github.com/canonical/operator-sub000/core/charm"
	coreerrors "github.com/canonical/operator-sub000/core/errors"
	"github.com/canonical/operator-sub000/core/hooks"
	"github.com/canonical/operator-sub000/core/secrets"
	"github.com/canonical/operator-sub000/core/status"
	"github.com/canonical/operator-sub000/internal/backend"
	"github.com/canonical/operator-sub000/internal/vfs"
	"github.com/canonical/operator-sub000/state"
)

const testMeta = `
name: app
summary: test charm
requires:
  db:
    interface: mysql
peers:
  cluster:
    interface: cluster
extra-bindings:
  admin:
containers:
  workload:
    mounts:
      - storage: data
        location: /var/lib/data
storage:
  data:
    type: filesystem
    location: /srv/data
  logs:
    type: filesystem
    multiple:
      range: 1-3
resources:
  image:
    type: oci-image
`

const testConfig = `
options:
  port:
    type: int
    default: 8080
  name:
    type: string
`

const testActions = `
backup:
  description: back up the database
  params:
    target:
      type: string
      default: /backups
`

type backendSuite struct {
	testing.IsolationSuite

	meta    *charm.Meta
	config  *charm.Config
	actions *charm.Actions
	clock   *testclock.Clock
	journal *backend.Journal
	state   state.State
}

var _ = gc.Suite(&backendSuite{})

func (s *backendSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	var err error
	s.meta, err = charm.ReadMeta(strings.NewReader(testMeta))
	c.Assert(err, jc.ErrorIsNil)
	s.config, err = charm.ReadConfig(strings.NewReader(testConfig))
	c.Assert(err, jc.ErrorIsNil)
	s.actions, err = charm.ReadActionsYaml(strings.NewReader(testActions))
	c.Assert(err, jc.ErrorIsNil)
	s.clock = testclock.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s.journal = backend.NewJournal()

	db := state.NewRelation("db", 1, "mysql")
	db.RemoteAppData = state.DataBag{"host": "10.0.0.1"}
	db.RemoteUnitsData[0] = state.DataBag{"unit": "zero"}
	db.LocalAppData = state.DataBag{"user": "app"}
	s.state = state.State{
		Config:     map[string]interface{}{"name": "web"},
		Relations:  []state.Relation{db},
		Containers: []state.Container{{Name: "workload", CanConnect: true}},
		Resources:  map[string]string{"image": "/tmp/image.tar"},
	}
}

func (s *backendSuite) newBackend(c *gc.C, hook backend.HookInfo) *backend.Backend {
	b, err := backend.New(backend.Config{
		State:       &s.state,
		Meta:        s.meta,
		CharmConfig: s.config,
		Actions:     s.actions,
		AppName:     "app",
		UnitID:      0,
		Hook:        hook,
		Journal:     s.journal,
		Clock:       s.clock,
		JujuVersion: version.MustParse("3.6.0"),
	})
	c.Assert(err, jc.ErrorIsNil)
	return b
}

func (s *backendSuite) TestConfigValidation(c *gc.C) {
	cfg := backend.Config{}
	c.Assert(cfg.Validate(), jc.ErrorIs, errors.NotValid)
	cfg = backend.Config{State: &s.state, Meta: s.meta, AppName: "Bad_Name", Journal: s.journal, Clock: s.clock}
	c.Assert(cfg.Validate(), gc.ErrorMatches, `application name "Bad_Name" not valid`)
}

func (s *backendSuite) TestConfigGetMergesDefaults(c *gc.C) {
	b := s.newBackend(c, backend.HookInfo{Kind: hooks.ConfigChanged})
	settings, err := b.ConfigGet()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(settings, jc.DeepEquals, charm.Settings{"port": int64(8080), "name": "web"})
}

func (s *backendSuite) TestConfigGetUnknownKeyIsMisuse(c *gc.C) {
	s.state.Config["bogus"] = "x"
	b := s.newBackend(c, backend.HookInfo{Kind: hooks.ConfigChanged})
	_, err := b.ConfigGet()
	c.Assert(err, gc.NotNil)
	c.Assert(s.journal.Misuse, gc.HasLen, 1)
}

func (s *backendSuite) TestUnitName(c *gc.C) {
	b := s.newBackend(c, backend.HookInfo{Kind: hooks.Start})
	c.Assert(b.UnitName(), gc.Equals, "app/0")
	c.Assert(b.AppName(), gc.Equals, "app")
	units, err := b.PlannedUnits()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(units, gc.Equals, 1)
}

func (s *backendSuite) TestRelationGetRemote(c *gc.C) {
	b := s.newBackend(c, backend.HookInfo{Kind: hooks.Start})
	data, err := b.RelationGet(1, "mysql")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(data, jc.DeepEquals, map[string]string{"host": "10.0.0.1"})
	data, err = b.RelationGet(1, "mysql/0")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(data, jc.DeepEquals, map[string]string{"unit": "zero"})
	_, err = b.RelationGet(1, "other/0")
	c.Assert(err, jc.ErrorIs, coreerrors.NotFound)
}

func (s *backendSuite) TestRelationGetLocalAppNeedsLeader(c *gc.C) {
	b := s.newBackend(c, backend.HookInfo{Kind: hooks.Start})
	_, err := b.RelationGet(1, "app")
	c.Assert(err, jc.ErrorIs, coreerrors.PermissionDenied)

	s.state.Leader = true
	data, err := b.RelationGet(1, "app")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(data, jc.DeepEquals, map[string]string{"user": "app"})
}

func (s *backendSuite) TestRelationSet(c *gc.C) {
	b := s.newBackend(c, backend.HookInfo{Kind: hooks.Start})
	err := b.RelationSet(1, "app/0", map[string]string{"a": "b"})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(s.state.Relations[0].LocalUnitData, jc.DeepEquals, state.DataBag{"a": "b"})

	err = b.RelationSet(1, "app/0", map[string]string{"a": ""})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(s.state.Relations[0].LocalUnitData, gc.HasLen, 0)

	err = b.RelationSet(1, "app", map[string]string{"a": "b"})
	c.Assert(err, jc.ErrorIs, coreerrors.PermissionDenied)
	err = b.RelationSet(1, "mysql", map[string]string{"a": "b"})
	c.Assert(err, jc.ErrorIs, coreerrors.PermissionDenied)
}

func (s *backendSuite) TestRelationBroken(c *gc.C) {
	b := s.newBackend(c, backend.HookInfo{Kind: hooks.RelationBroken, Scope: "db", RelationID: 1})
	units, err := b.RelationList(1)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(units, gc.HasLen, 0)
	err = b.RelationSet(1, "app/0", map[string]string{"a": "b"})
	c.Assert(err, jc.ErrorIs, coreerrors.PermissionDenied)
}

func (s *backendSuite) TestRelationIDsUndeclared(c *gc.C) {
	b := s.newBackend(c, backend.HookInfo{Kind: hooks.Start})
	ids, err := b.RelationIDs("db")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(ids, jc.DeepEquals, []int{1})
	_, err = b.RelationIDs("nope")
	c.Assert(err, jc.ErrorIs, coreerrors.NotDeclared)
	c.Assert(coreerrors.IsMisuse(s.journal.Misuse[0]), jc.IsTrue)
}

func (s *backendSuite) TestStatusSet(c *gc.C) {
	b := s.newBackend(c, backend.HookInfo{Kind: hooks.Start})
	err := b.StatusSet(status.StatusInfo{Status: status.Maintenance, Message: "installing"}, false)
	c.Assert(err, jc.ErrorIsNil)
	err = b.StatusSet(status.StatusInfo{Status: status.Active}, false)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(s.state.UnitStatus.Status, gc.Equals, status.Active)
	c.Assert(*s.state.UnitStatus.Since, gc.Equals, s.clock.Now())
	c.Assert(s.journal.UnitStatusHistory, gc.HasLen, 1)
	c.Assert(s.journal.UnitStatusHistory[0].Message, gc.Equals, "installing")

	err = b.StatusSet(status.StatusInfo{Status: status.Error}, false)
	c.Assert(err, jc.ErrorIs, errors.NotValid)
	err = b.StatusSet(status.StatusInfo{Status: status.Active}, true)
	c.Assert(err, jc.ErrorIs, coreerrors.PermissionDenied)
}

func (s *backendSuite) TestPorts(c *gc.C) {
	b := s.newBackend(c, backend.HookInfo{Kind: hooks.Start})
	c.Assert(b.OpenPort("tcp", 8080), jc.ErrorIsNil)
	c.Assert(b.OpenPort("tcp", 80), jc.ErrorIsNil)
	c.Assert(b.OpenPort("tcp", 80), jc.ErrorIsNil)
	c.Assert(b.OpenPort("icmp", 0), jc.ErrorIsNil)
	ports, err := b.OpenedPorts()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(ports, jc.DeepEquals, []state.Port{
		{Protocol: "icmp"}, {Protocol: "tcp", Port: 80}, {Protocol: "tcp", Port: 8080},
	})
	c.Assert(b.ClosePort("tcp", 80), jc.ErrorIsNil)
	c.Assert(s.state.OpenedPorts, gc.HasLen, 2)
	c.Assert(b.OpenPort("sctp", 1), jc.ErrorIs, errors.NotValid)
	c.Assert(b.OpenPort("tcp", 70000), jc.ErrorIs, errors.NotValid)
}

func (s *backendSuite) TestSecretLifecycle(c *gc.C) {
	b := s.newBackend(c, backend.HookInfo{Kind: hooks.Start})
	id, err := b.SecretAdd(backend.SecretAddArgs{
		Owner:   secrets.OwnerUnit,
		Content: map[string]string{"password": "one"},
		Label:   "creds",
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(s.state.Secrets, gc.HasLen, 1)

	content, err := b.SecretGet(backend.SecretRef{Label: "creds"}, false, false)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(content, jc.DeepEquals, map[string]string{"password": "one"})

	err = b.SecretSet(id, backend.SecretUpdateArgs{Content: map[string]string{"password": "two"}})
	c.Assert(err, jc.ErrorIsNil)
	info, err := b.SecretInfoGet(backend.SecretRef{ID: id})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(info.Revision, gc.Equals, 2)
	c.Assert(info.Label, gc.Equals, "creds")

	c.Assert(b.SecretRemove(id, 1), jc.ErrorIsNil)
	c.Assert(s.journal.RemovedSecretRevisions, jc.DeepEquals, []backend.SecretRevision{{ID: id, Revision: 1}})
	c.Assert(b.SecretRemove(id, 0), jc.ErrorIsNil)
	c.Assert(s.state.Secrets, gc.HasLen, 0)
}

func (s *backendSuite) TestSecretAddAppNeedsLeader(c *gc.C) {
	b := s.newBackend(c, backend.HookInfo{Kind: hooks.Start})
	_, err := b.SecretAdd(backend.SecretAddArgs{Owner: secrets.OwnerApp, Content: map[string]string{"a": "b"}})
	c.Assert(err, jc.ErrorIs, coreerrors.PermissionDenied)
}

func (s *backendSuite) TestSecretPeekAndRefresh(c *gc.C) {
	secret := state.NewSecret(map[string]string{"a": "1"})
	secret.LatestContent = map[string]string{"a": "2"}
	s.state.Secrets = []state.Secret{secret}
	b := s.newBackend(c, backend.HookInfo{Kind: hooks.SecretChanged, SecretID: secret.ID})

	content, err := b.SecretGet(backend.SecretRef{ID: secret.ID}, false, false)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(content, jc.DeepEquals, map[string]string{"a": "1"})

	content, err = b.SecretGet(backend.SecretRef{ID: secret.ID}, true, false)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(content, jc.DeepEquals, map[string]string{"a": "2"})
	c.Assert(s.state.Secrets[0].TrackedRevision, gc.Equals, 1)

	content, err = b.SecretGet(backend.SecretRef{ID: secret.ID, Label: "mine"}, false, true)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(content, jc.DeepEquals, map[string]string{"a": "2"})
	c.Assert(s.state.Secrets[0].TrackedRevision, gc.Equals, 2)
	c.Assert(s.state.Secrets[0].Label, gc.Equals, "mine")
}

func (s *backendSuite) TestSecretManageOnlyByOwner(c *gc.C) {
	secret := state.NewSecret(map[string]string{"a": "1"})
	s.state.Secrets = []state.Secret{secret}
	b := s.newBackend(c, backend.HookInfo{Kind: hooks.Start})
	_, err := b.SecretInfoGet(backend.SecretRef{ID: secret.ID})
	c.Assert(err, jc.ErrorIs, coreerrors.PermissionDenied)
	err = b.SecretSet(secret.ID, backend.SecretUpdateArgs{Content: map[string]string{"a": "2"}})
	c.Assert(err, jc.ErrorIs, coreerrors.PermissionDenied)
	_, err = b.SecretGet(backend.SecretRef{ID: "secret:unknown"}, false, false)
	c.Assert(err, jc.ErrorIs, coreerrors.NotFound)
}

func (s *backendSuite) TestSecretGrantRevoke(c *gc.C) {
	s.state.Leader = true
	b := s.newBackend(c, backend.HookInfo{Kind: hooks.Start})
	id, err := b.SecretAdd(backend.SecretAddArgs{Owner: secrets.OwnerApp, Content: map[string]string{"a": "b"}})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(b.SecretGrant(id, 1, ""), jc.ErrorIsNil)
	c.Assert(b.SecretGrant(id, 1, "mysql/0"), jc.ErrorIsNil)
	c.Assert(s.state.Secrets[0].Grants[1].SortedValues(), jc.DeepEquals, []string{"mysql", "mysql/0"})
	c.Assert(b.SecretGrant(id, 9, ""), jc.ErrorIs, coreerrors.NotFound)
	c.Assert(b.SecretGrant(id, 1, "mysql/5"), jc.ErrorIs, coreerrors.NotFound)

	c.Assert(b.SecretRevoke(id, 1, "mysql/0"), jc.ErrorIsNil)
	c.Assert(b.SecretRevoke(id, 1, ""), jc.ErrorIsNil)
	c.Assert(s.state.Secrets[0].Grants, gc.IsNil)
}

func (s *backendSuite) TestSecretsNeedJuju3(c *gc.C) {
	b, err := backend.New(backend.Config{
		State:       &s.state,
		Meta:        s.meta,
		AppName:     "app",
		Journal:     s.journal,
		Clock:       s.clock,
		JujuVersion: version.MustParse("2.9.44"),
	})
	c.Assert(err, jc.ErrorIsNil)
	_, err = b.SecretIDs()
	c.Assert(err, jc.ErrorIs, coreerrors.NotSupported)
}

func (s *backendSuite) TestActionsOutsideAction(c *gc.C) {
	b := s.newBackend(c, backend.HookInfo{Kind: hooks.Start})
	err := b.ActionLog("hello")
	c.Assert(err, jc.ErrorIs, backend.ErrRestrictedContext)
	_, err = b.ActionGet()
	c.Assert(err, jc.ErrorIs, backend.ErrRestrictedContext)
}

func (s *backendSuite) TestActionOperations(c *gc.C) {
	b := s.newBackend(c, backend.HookInfo{
		Kind:         hooks.Action,
		Scope:        "backup",
		ActionID:     "1",
		ActionParams: map[string]interface{}{"extra": true},
	})
	params, err := b.ActionGet()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(params, jc.DeepEquals, map[string]interface{}{"extra": true, "target": "/backups"})

	c.Assert(b.ActionLog("starting"), jc.ErrorIsNil)
	c.Assert(b.ActionSetResults(map[string]interface{}{"out.path": "/x", "out.size": 3}), jc.ErrorIsNil)
	c.Assert(b.ActionSetResults(map[string]interface{}{"Bad": 1}), jc.ErrorIs, errors.NotValid)
	c.Assert(b.ActionSetResults(map[string]interface{}{"stdout": 1}), jc.ErrorIs, errors.NotValid)
	c.Assert(s.journal.ActionLogs, jc.DeepEquals, []string{"starting"})
	c.Assert(s.journal.ActionResults, jc.DeepEquals, map[string]interface{}{
		"out": map[string]interface{}{"path": "/x", "size": 3},
	})

	c.Assert(b.ActionFail(""), jc.ErrorIsNil)
	c.Assert(s.journal.ActionFailed, jc.IsTrue)
	c.Assert(s.journal.ActionFailureMessage, gc.Equals, "action failed without reason given, check action for errors")
}

func (s *backendSuite) TestStorage(c *gc.C) {
	s.state.Storages = []state.Storage{{Name: "logs", Index: 0, Location: "/tmp/logs-0"}}
	b := s.newBackend(c, backend.HookInfo{Kind: hooks.Start})
	list, err := b.StorageList("logs")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(list, gc.HasLen, 1)
	location, err := b.StorageLocation("logs", 0)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(location, gc.Equals, "/tmp/logs-0")

	c.Assert(b.StorageAdd("logs", 2), jc.ErrorIsNil)
	c.Assert(s.journal.RequestedStorages, jc.DeepEquals, map[string]int{"logs": 2})
	c.Assert(b.StorageAdd("logs", 1), jc.ErrorIs, errors.NotValid)
	_, err = b.StorageList("cache")
	c.Assert(err, jc.ErrorIs, coreerrors.NotDeclared)
}

func (s *backendSuite) TestContainer(c *gc.C) {
	b := s.newBackend(c, backend.HookInfo{Kind: hooks.Start})
	client, err := b.Container("workload")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(client.Name(), gc.Equals, "workload")
	again, err := b.Container("workload")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(again, gc.Equals, client)

	_, err = b.Container("sidecar")
	c.Assert(err, jc.ErrorIs, coreerrors.NotDeclared)
}

func (s *backendSuite) TestContainerMissingFromState(c *gc.C) {
	s.state.Containers = nil
	b := s.newBackend(c, backend.HookInfo{Kind: hooks.Start})
	_, err := b.Container("workload")
	c.Assert(err, jc.ErrorIs, coreerrors.Inconsistent)
}

func (s *backendSuite) TestCloseSavesFiles(c *gc.C) {
	b := s.newBackend(c, backend.HookInfo{Kind: hooks.Start})
	client, err := b.Container("workload")
	c.Assert(err, jc.ErrorIsNil)
	err = client.Push("/etc/app.conf", []byte("port: 80"), vfs.PushOptions{MakeDirs: true})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(b.Close(), jc.ErrorIsNil)
	file, ok := s.state.Containers[0].Files["/etc/app.conf"]
	c.Assert(ok, jc.IsTrue)
	c.Assert(file.Content, gc.Equals, "port: 80")
}

func (s *backendSuite) TestNetworkGet(c *gc.C) {
	b := s.newBackend(c, backend.HookInfo{Kind: hooks.Start})
	network, err := b.NetworkGet("admin", nil)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(network, jc.DeepEquals, state.DefaultNetwork())
	_, err = b.NetworkGet("bogus", nil)
	c.Assert(err, jc.ErrorIs, coreerrors.NotDeclared)
}

func (s *backendSuite) TestResourceGet(c *gc.C) {
	b := s.newBackend(c, backend.HookInfo{Kind: hooks.Start})
	path, err := b.ResourceGet("image")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(path, gc.Equals, "/tmp/image.tar")
	_, err = b.ResourceGet("other")
	c.Assert(err, jc.ErrorIs, coreerrors.NotDeclared)
}

func (s *backendSuite) TestJujuLog(c *gc.C) {
	b := s.newBackend(c, backend.HookInfo{Kind: hooks.Start})
	c.Assert(b.JujuLog("WARNING", "careful"), jc.ErrorIsNil)
	c.Assert(s.journal.JujuLogs, jc.DeepEquals, []backend.LogLine{{Level: "WARNING", Message: "careful"}})
	c.Assert(b.JujuLog("LOUD", "x"), jc.ErrorIs, errors.NotValid)
}

func (s *backendSuite) TestHookInfoSnapshotRoundTrip(c *gc.C) {
	info := backend.HookInfo{
		Kind:       hooks.RelationChanged,
		Scope:      "db",
		RelationID: 1,
		RemoteApp:  "mysql",
		RemoteUnit: "mysql/0",
	}
	restored, err := backend.HookInfoFromSnapshot(info.Snapshot())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(restored, jc.DeepEquals, info)
}
