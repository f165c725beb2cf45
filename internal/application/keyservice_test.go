package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/keyhub/internal/application"
	"github.com/ericfisherdev/keyhub/internal/domain/model"
	"github.com/ericfisherdev/keyhub/internal/domain/port/driven"
)

var alice = model.Owner{ID: 101, Nickname: "alice"}
var bob = model.Owner{ID: 202, Nickname: "bob"}

type testEnv struct {
	owners  *fakeOwnerStore
	ledger  *fakeLedger
	outline *fakeOutline
	events  *recordingEvents
	svc     *application.KeyService
}

func newTestEnv(t *testing.T, records []model.KeyRecord, remotes []model.RemoteKey, opts ...application.KeyServiceOption) *testEnv {
	t.Helper()

	env := &testEnv{
		owners:  newFakeOwnerStore(alice, bob),
		ledger:  newFakeLedger(fixedClock, records...),
		outline: newFakeOutline(remotes...),
		events:  &recordingEvents{},
	}
	opts = append([]application.KeyServiceOption{
		application.WithClock(fixedClock),
		application.WithKeyEvents(env.events),
	}, opts...)
	env.svc = application.NewKeyService(env.owners, env.ledger, env.outline, opts...)
	return env
}

// --- Read path ---

func TestGetAccessKeys_UnscopedIncludesOrphans(t *testing.T) {
	env := newTestEnv(t,
		[]model.KeyRecord{{ID: "k1", OwnerID: alice.ID, RemoteID: "1"}},
		[]model.RemoteKey{remoteKey("1"), remoteKey("2")},
	)
	env.outline.usage["1"] = 4096

	keys, err := env.svc.GetAccessKeys(context.Background(), application.KeyFilter{}, false)
	require.NoError(t, err)
	require.Len(t, keys, 2)

	assert.Equal(t, "k1", keys[0].ID)
	require.NotNil(t, keys[0].Owner)
	assert.Equal(t, alice.ID, keys[0].Owner.ID)
	assert.Equal(t, int64(4096), keys[0].DataUsage)

	assert.True(t, keys[1].IsOrphan())
	assert.Nil(t, keys[1].Owner)
	assert.Zero(t, keys[1].DataUsage)

	assert.Equal(t, 1, env.outline.listCalls)
	assert.Equal(t, 1, env.outline.metricsCalls)
}

func TestGetAccessKeys_OwnerWithSeveralKeysFiltersFullList(t *testing.T) {
	env := newTestEnv(t,
		[]model.KeyRecord{
			{ID: "a1", OwnerID: alice.ID, RemoteID: "1"},
			{ID: "a2", OwnerID: alice.ID, RemoteID: "2"},
			{ID: "b1", OwnerID: bob.ID, RemoteID: "3"},
		},
		[]model.RemoteKey{remoteKey("1"), remoteKey("2"), remoteKey("3"), remoteKey("4")},
	)

	keys, err := env.svc.GetAccessKeys(context.Background(), application.KeyFilter{Owner: model.OwnerByNickname("alice")}, false)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "a1", keys[0].ID)
	assert.Equal(t, "a2", keys[1].ID)
	assert.Equal(t, 1, env.outline.listCalls)
	assert.Zero(t, env.outline.getCalls)
}

func TestGetAccessKeys_SingleRecordUsesSingleLookup(t *testing.T) {
	env := newTestEnv(t,
		[]model.KeyRecord{{ID: "b1", OwnerID: bob.ID, RemoteID: "3"}},
		[]model.RemoteKey{remoteKey("1"), remoteKey("3")},
	)

	keys, err := env.svc.GetAccessKeys(context.Background(), application.KeyFilter{Owner: model.OwnerByID(bob.ID)}, false)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "3", keys[0].RemoteID)
	assert.Equal(t, 1, env.outline.getCalls)
	assert.Zero(t, env.outline.listCalls)
	assert.Equal(t, 1, env.outline.metricsCalls)
}

func TestGetAccessKeys_NoRecordsNoRemoteCalls(t *testing.T) {
	env := newTestEnv(t, nil, []model.RemoteKey{remoteKey("1")})

	keys, err := env.svc.GetAccessKeys(context.Background(), application.KeyFilter{Owner: model.OwnerByID(alice.ID)}, false)
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Zero(t, env.outline.listCalls)
	assert.Zero(t, env.outline.getCalls)
	assert.Zero(t, env.outline.metricsCalls)
}

func TestGetAccessKeys_UnknownOwnerIsEmpty(t *testing.T) {
	env := newTestEnv(t, nil, []model.RemoteKey{remoteKey("1")})

	keys, err := env.svc.GetAccessKeys(context.Background(), application.KeyFilter{Owner: model.OwnerByNickname("mallory")}, false)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestGetAccessKeys_IDWithoutOwner(t *testing.T) {
	env := newTestEnv(t,
		[]model.KeyRecord{
			{ID: "a1", OwnerID: alice.ID, RemoteID: "1"},
			{ID: "b1", OwnerID: bob.ID, RemoteID: "2"},
		},
		[]model.RemoteKey{remoteKey("1"), remoteKey("2")},
	)

	keys, err := env.svc.GetAccessKeys(context.Background(), application.KeyFilter{ID: "b1"}, false)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, bob.ID, keys[0].Owner.ID)
}

func TestGetAccessKeys_RemoteMissingDropsKey(t *testing.T) {
	env := newTestEnv(t,
		[]model.KeyRecord{{ID: "a1", OwnerID: alice.ID, RemoteID: "gone"}},
		nil,
	)

	key, err := env.svc.GetAccessKey(context.Background(), model.OwnerByID(alice.ID), "a1", false)
	require.NoError(t, err)
	assert.Nil(t, key)
	assert.Zero(t, env.outline.metricsCalls, "usage is only fetched when there are keys")
}

func TestGetAccessKeys_RemoteErrorPropagates(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.outline.listErr = errTransport

	_, err := env.svc.GetAccessKeys(context.Background(), application.KeyFilter{}, false)
	assert.ErrorIs(t, err, errTransport)
}

func TestGetAccessKeys_ExpiredKeysAreReaped(t *testing.T) {
	env := newTestEnv(t,
		[]model.KeyRecord{
			{ID: "old1", OwnerID: alice.ID, RemoteID: "1", ExpiresAt: timePtr(testNow.Add(-time.Hour))},
			{ID: "old2", OwnerID: alice.ID, RemoteID: "2", ExpiresAt: timePtr(testNow)},
			{ID: "live", OwnerID: alice.ID, RemoteID: "3", ExpiresAt: timePtr(testNow.Add(time.Hour))},
		},
		[]model.RemoteKey{remoteKey("1"), remoteKey("2"), remoteKey("3")},
	)

	keys, err := env.svc.GetAccessKeys(context.Background(), application.KeyFilter{Owner: model.OwnerByID(alice.ID)}, false)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "live", keys[0].ID)

	assert.ElementsMatch(t, []string{"1", "2"}, env.outline.deletes, "one remote delete per expired key")
	assert.ElementsMatch(t, []string{"old1", "old2"}, env.ledger.deletes, "one ledger delete per expired key")
	assert.Len(t, env.events.deleted, 2)
}

func TestGetAccessKeys_AllowExpiredKeepsExpired(t *testing.T) {
	env := newTestEnv(t,
		[]model.KeyRecord{{ID: "old", OwnerID: alice.ID, RemoteID: "1", ExpiresAt: timePtr(testNow.Add(-time.Hour))}},
		[]model.RemoteKey{remoteKey("1")},
	)

	keys, err := env.svc.GetAccessKeys(context.Background(), application.KeyFilter{}, true)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.True(t, keys[0].IsExpired(testNow))
	assert.Empty(t, env.outline.deletes)
	assert.True(t, env.ledger.has("old"))
}

func TestGetAccessKey_OneHourExpiredReadReturnsNothing(t *testing.T) {
	env := newTestEnv(t,
		[]model.KeyRecord{{ID: "k1", OwnerID: alice.ID, RemoteID: "1", ExpiresAt: timePtr(testNow.Add(-time.Hour))}},
		[]model.RemoteKey{remoteKey("1")},
	)

	keys, err := env.svc.GetAccessKeys(context.Background(), application.KeyFilter{Owner: model.OwnerByID(alice.ID), ID: "k1"}, false)
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.False(t, env.ledger.has("k1"))
	assert.False(t, env.outline.has("1"))
}

func TestGetAccessKeys_AppliesPrefixThenResolver(t *testing.T) {
	remote := remoteKey("1")
	remote.Port = 22

	var seen string
	resolver := func(k model.AccessKey) string {
		seen = k.AccessURL
		return "resolved:" + k.ID
	}
	env := newTestEnv(t,
		[]model.KeyRecord{{ID: "k1", OwnerID: alice.ID, RemoteID: "1"}},
		[]model.RemoteKey{remote},
		application.WithAccessURLResolver(resolver),
	)

	key, err := env.svc.GetAccessKey(context.Background(), model.OwnerByID(alice.ID), "k1", false)
	require.NoError(t, err)
	require.NotNil(t, key)
	assert.Equal(t, "resolved:k1", key.AccessURL)
	assert.Contains(t, seen, "prefix=SSH-2.0%0D%0A", "resolver sees the prefixed URL")
}

func TestGetAccessKeys_NegativeRemoteLimitIsUnlimited(t *testing.T) {
	remote := remoteKey("1")
	remote.DataLimit = int64Ptr(-1)
	env := newTestEnv(t, nil, []model.RemoteKey{remote})

	keys, err := env.svc.GetAccessKeys(context.Background(), application.KeyFilter{}, false)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Nil(t, keys[0].DataLimit)
}

// --- Create ---

func TestCreateAccessKey_AliceScenario(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	key, err := env.svc.CreateAccessKey(ctx, model.OwnerByNickname("alice"), application.NewKey{Name: "phone"})
	require.NoError(t, err)
	require.NotNil(t, key)

	require.NotNil(t, key.Owner)
	assert.Equal(t, int64(101), key.Owner.ID)
	assert.Equal(t, "phone", key.Name)
	assert.Zero(t, key.DataUsage)
	assert.False(t, key.IsExpired(testNow))
	assert.Len(t, key.ID, 22)

	require.Len(t, env.events.created, 1)
	assert.Equal(t, key.ID, env.events.created[0].ID)

	deleted, err := env.svc.DeleteExpiredAccessKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, deleted)

	got, err := env.svc.GetAccessKey(ctx, model.OwnerByID(101), key.ID, false)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, key.RemoteID, got.RemoteID)
}

func TestCreateAccessKey_RoundTripsExpiryAndRemote(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	expires := testNow.Add(30 * 24 * time.Hour)

	key, err := env.svc.CreateAccessKey(ctx, model.OwnerByID(bob.ID), application.NewKey{
		Name:      "laptop",
		DataLimit: int64Ptr(5_000_000_000),
		ExpiresAt: &expires,
	})
	require.NoError(t, err)

	got, err := env.svc.GetAccessKey(ctx, model.OwnerByNickname("bob"), key.ID, false)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, key.RemoteID, got.RemoteID)
	assert.Equal(t, bob.ID, got.Owner.ID)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, expires.Equal(*got.ExpiresAt))
	require.NotNil(t, got.DataLimit)
	assert.Equal(t, int64(5_000_000_000), *got.DataLimit)
}

func TestCreateAccessKey_DistinctLocalIDs(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()

	first, err := env.svc.CreateAccessKey(ctx, model.OwnerByID(alice.ID), application.NewKey{})
	require.NoError(t, err)
	second, err := env.svc.CreateAccessKey(ctx, model.OwnerByID(alice.ID), application.NewKey{})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCreateAccessKey_InvalidOwner(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	_, err := env.svc.CreateAccessKey(context.Background(), model.OwnerByNickname("mallory"), application.NewKey{})
	assert.ErrorIs(t, err, application.ErrInvalidOwner)
	assert.Empty(t, env.outline.keys, "nothing is created remotely for an unknown owner")

	_, err = env.svc.CreateAccessKey(context.Background(), model.OwnerRef{}, application.NewKey{})
	assert.ErrorIs(t, err, application.ErrInvalidOwner)
}

func TestCreateAccessKey_EmptyRemoteResponse(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.outline.createNil = true

	_, err := env.svc.CreateAccessKey(context.Background(), model.OwnerByID(alice.ID), application.NewKey{})
	assert.ErrorIs(t, err, application.ErrInvalidRemoteResponse)
	assert.Empty(t, env.ledger.records)
}

func TestCreateAccessKey_RemoteError(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.outline.createErr = errTransport

	_, err := env.svc.CreateAccessKey(context.Background(), model.OwnerByID(alice.ID), application.NewKey{})
	assert.ErrorIs(t, err, errTransport)
	assert.Empty(t, env.events.created)
}

func TestCreateAccessKey_LedgerFailureLeavesRemoteKey(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.ledger.createErr = errors.New("disk full")

	_, err := env.svc.CreateAccessKey(context.Background(), model.OwnerByID(alice.ID), application.NewKey{})
	require.Error(t, err)
	assert.Len(t, env.outline.keys, 1)
	assert.Empty(t, env.events.created)
}

func TestCreateAccessKey_LedgerCollisionFails(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.ledger.createErr = driven.ErrKeyRecordExists

	_, err := env.svc.CreateAccessKey(context.Background(), model.OwnerByID(alice.ID), application.NewKey{})
	assert.ErrorIs(t, err, driven.ErrKeyRecordExists)
}

// --- Patch ---

func TestPatchAccessKeys_RemoteFailsLedgerSucceedsCountsAll(t *testing.T) {
	env := newTestEnv(t,
		[]model.KeyRecord{
			{ID: "a1", OwnerID: alice.ID, RemoteID: "1"},
			{ID: "a2", OwnerID: alice.ID, RemoteID: "2"},
			{ID: "a3", OwnerID: alice.ID, RemoteID: "3"},
		},
		[]model.RemoteKey{remoteKey("1"), remoteKey("2"), remoteKey("3")},
	)
	for _, id := range []string{"1", "2", "3"} {
		env.outline.patchErr[id] = errTransport
	}

	expires := testNow.Add(48 * time.Hour)
	n, err := env.svc.PatchAccessKeys(context.Background(),
		application.KeyFilter{Owner: model.OwnerByID(alice.ID)},
		application.KeyPatch{Name: strPtr("renamed"), SetExpiry: true, ExpiresAt: &expires},
	)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []string{"a1", "a2", "a3"}, env.ledger.updates)
}

func TestPatchAccessKeys_TransportErrorDoesNotAbortBatch(t *testing.T) {
	env := newTestEnv(t,
		[]model.KeyRecord{
			{ID: "k1", OwnerID: alice.ID, RemoteID: "1"},
			{ID: "k2", OwnerID: alice.ID, RemoteID: "2"},
		},
		[]model.RemoteKey{remoteKey("1"), remoteKey("2")},
	)
	env.outline.patchErr["1"] = errTransport

	n, err := env.svc.PatchAccessKeys(context.Background(),
		application.KeyFilter{Owner: model.OwnerByID(alice.ID)},
		application.KeyPatch{DataLimit: int64Ptr(5_000_000)},
	)
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, errTransport)
	assert.Equal(t, []string{"2"}, env.outline.patches, "k2 is patched after k1 failed")
}

func TestPatchAccessKey_SingleLedgerOnlySuccess(t *testing.T) {
	env := newTestEnv(t,
		[]model.KeyRecord{{ID: "k1", OwnerID: alice.ID, RemoteID: "1"}},
		[]model.RemoteKey{remoteKey("1")},
	)
	env.outline.patchErr["1"] = errTransport

	ok, err := env.svc.PatchAccessKey(context.Background(), model.OwnerByID(alice.ID), "k1",
		application.KeyPatch{DataLimit: int64Ptr(5_000_000), SetExpiry: true, ExpiresAt: timePtr(testNow.Add(time.Hour))})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPatchAccessKey_ExtendsExpiredKey(t *testing.T) {
	env := newTestEnv(t,
		[]model.KeyRecord{{ID: "k1", OwnerID: alice.ID, RemoteID: "1", ExpiresAt: timePtr(testNow.Add(-time.Minute))}},
		[]model.RemoteKey{remoteKey("1")},
	)

	ok, err := env.svc.PatchAccessKey(context.Background(), model.OwnerByID(alice.ID), "k1",
		application.KeyPatch{SetExpiry: true, ExpiresAt: timePtr(testNow.Add(time.Hour))})
	require.NoError(t, err)
	assert.True(t, ok)

	key, err := env.svc.GetAccessKey(context.Background(), model.OwnerByID(alice.ID), "k1", false)
	require.NoError(t, err)
	require.NotNil(t, key, "extended key survives the next read")
}

func TestPatchAccessKey_Missing(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	ok, err := env.svc.PatchAccessKey(context.Background(), model.OwnerByID(alice.ID), "nope", application.KeyPatch{Name: strPtr("x")})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPatchAccessKeys_BothSidesFail(t *testing.T) {
	env := newTestEnv(t,
		[]model.KeyRecord{{ID: "k1", OwnerID: alice.ID, RemoteID: "1"}},
		[]model.RemoteKey{remoteKey("1")},
	)
	env.outline.patchErr["1"] = errTransport
	env.ledger.updateErr = errors.New("database is locked")

	n, err := env.svc.PatchAccessKeys(context.Background(), application.KeyFilter{ID: "k1"},
		application.KeyPatch{Name: strPtr("x"), SetExpiry: true})
	assert.Zero(t, n)
	require.Error(t, err)
	assert.ErrorIs(t, err, errTransport)
	assert.ErrorContains(t, err, "database is locked")
}

func TestPatchAccessKeys_CanceledContextStops(t *testing.T) {
	env := newTestEnv(t,
		[]model.KeyRecord{
			{ID: "k1", OwnerID: alice.ID, RemoteID: "1"},
			{ID: "k2", OwnerID: alice.ID, RemoteID: "2"},
		},
		[]model.RemoteKey{remoteKey("1"), remoteKey("2")},
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := env.svc.PatchAccessKeys(ctx, application.KeyFilter{Owner: model.OwnerByID(alice.ID)}, application.KeyPatch{Name: strPtr("x")})
	assert.Zero(t, n)
	assert.ErrorIs(t, err, context.Canceled)
}

// --- Delete ---

func TestDeleteAccessKey_DeletesBothSidesOnce(t *testing.T) {
	env := newTestEnv(t,
		[]model.KeyRecord{{ID: "k1", OwnerID: alice.ID, RemoteID: "1"}},
		[]model.RemoteKey{remoteKey("1")},
	)
	ctx := context.Background()

	key, err := env.svc.DeleteAccessKey(ctx, model.OwnerByID(alice.ID), "k1")
	require.NoError(t, err)
	require.NotNil(t, key)
	assert.Equal(t, "k1", key.ID)
	assert.Equal(t, []string{"1"}, env.outline.deletes)
	assert.Equal(t, []string{"k1"}, env.ledger.deletes)
	assert.Len(t, env.events.deleted, 1)

	again, err := env.svc.DeleteAccessKeys(ctx, application.KeyFilter{Owner: model.OwnerByID(alice.ID), ID: "k1"})
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Len(t, env.events.deleted, 1)
}

func TestDeleteAccessKeys_OrphanDeletesRemoteOnly(t *testing.T) {
	env := newTestEnv(t, nil, []model.RemoteKey{remoteKey("9")})

	keys, err := env.svc.DeleteAccessKeys(context.Background(), application.KeyFilter{})
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, []string{"9"}, env.outline.deletes)
	assert.Empty(t, env.ledger.deletes)
}

func TestDeleteExpiredAccessKeys(t *testing.T) {
	env := newTestEnv(t,
		[]model.KeyRecord{
			{ID: "old", OwnerID: alice.ID, RemoteID: "1", ExpiresAt: timePtr(testNow.Add(-time.Hour))},
			{ID: "dangling", OwnerID: bob.ID, RemoteID: "gone", ExpiresAt: timePtr(testNow.Add(-time.Hour))},
			{ID: "live", OwnerID: alice.ID, RemoteID: "2"},
		},
		[]model.RemoteKey{remoteKey("1"), remoteKey("2"), remoteKey("3")},
	)

	deleted, err := env.svc.DeleteExpiredAccessKeys(context.Background())
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, "old", deleted[0].ID)

	assert.False(t, env.ledger.has("dangling"), "expired entries without a remote key are dropped")
	assert.True(t, env.ledger.has("live"))
	assert.True(t, env.outline.has("3"), "orphans are not swept")
}

// --- Raw URL ---

func TestGetRawAccessURL(t *testing.T) {
	remote := remoteKey("1")
	remote.Port = 443
	env := newTestEnv(t,
		[]model.KeyRecord{{ID: "k1", OwnerID: alice.ID, RemoteID: "1"}},
		[]model.RemoteKey{remote},
		application.WithAccessURLResolver(application.RelayURLResolver("https://relay.example.com")),
	)

	raw, err := env.svc.GetRawAccessURL(context.Background(), model.ParseOwnerRef("alice"), "k1")
	require.NoError(t, err)
	assert.Contains(t, raw, "ss://c2VjcmV0@vpn.example.com:8388/")
	assert.Contains(t, raw, "prefix=", "the prefix is applied")
	assert.NotContains(t, raw, "ssconf://", "the resolver is not applied")
}

func TestGetRawAccessURL_Missing(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	raw, err := env.svc.GetRawAccessURL(context.Background(), model.OwnerByID(alice.ID), "k1")
	require.NoError(t, err)
	assert.Empty(t, raw)

	raw, err = env.svc.GetRawAccessURL(context.Background(), model.OwnerByNickname("mallory"), "k1")
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestGetRawAccessURL_ExpiredIsDeleted(t *testing.T) {
	env := newTestEnv(t,
		[]model.KeyRecord{{ID: "k1", OwnerID: model.SystemOwnerID, RemoteID: "1", ExpiresAt: timePtr(testNow.Add(-time.Second))}},
		[]model.RemoteKey{remoteKey("1")},
	)

	raw, err := env.svc.GetRawAccessURL(context.Background(), model.OwnerByID(model.SystemOwnerID), "k1")
	require.NoError(t, err)
	assert.Empty(t, raw)
	assert.False(t, env.ledger.has("k1"))
	assert.False(t, env.outline.has("1"))
}

// --- Server ---

func TestGetServerInfo(t *testing.T) {
	env := newTestEnv(t,
		[]model.KeyRecord{{ID: "old", OwnerID: alice.ID, RemoteID: "1", ExpiresAt: timePtr(testNow.Add(-time.Hour))}},
		[]model.RemoteKey{remoteKey("1"), remoteKey("2")},
	)
	env.outline.usage["1"] = 100
	env.outline.usage["2"] = 250
	env.outline.server.DataLimit = int64Ptr(-1)

	info, err := env.svc.GetServerInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "vpn.example.com", info.Hostname)
	assert.Len(t, info.AccessKeys, 2, "expired keys are listed, not reaped")
	assert.Equal(t, int64(350), info.DataUsage())
	assert.Nil(t, info.DataLimit)
	assert.Empty(t, env.outline.deletes)
}

func TestPatchServerInfo(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	err := env.svc.PatchServerInfo(context.Background(), model.ServerPatch{Name: strPtr("edge")})
	require.NoError(t, err)
	require.Len(t, env.outline.serverPatch, 1)
	assert.Equal(t, "edge", *env.outline.serverPatch[0].Name)
}
