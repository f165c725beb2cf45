package application_test

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ericfisherdev/keyhub/internal/domain/model"
	"github.com/ericfisherdev/keyhub/internal/domain/port/driven"
)

// --- Owner store ---

type fakeOwnerStore struct {
	mu     sync.Mutex
	owners map[int64]model.Owner
}

func newFakeOwnerStore(owners ...model.Owner) *fakeOwnerStore {
	s := &fakeOwnerStore{owners: map[int64]model.Owner{
		model.SystemOwnerID: {ID: model.SystemOwnerID, Nickname: "_"},
	}}
	for _, o := range owners {
		s.owners[o.ID] = o
	}
	return s
}

func (s *fakeOwnerStore) Create(_ context.Context, o model.Owner) (model.Owner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owners[o.ID]; ok {
		return model.Owner{}, driven.ErrOwnerExists
	}
	if o.Nickname == "" {
		o.Nickname = strconv.FormatInt(o.ID, 10)
	}
	s.owners[o.ID] = o
	return o, nil
}

func (s *fakeOwnerStore) GetByID(_ context.Context, id int64) (*model.Owner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.owners[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *fakeOwnerStore) GetByNickname(_ context.Context, nickname string) (*model.Owner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.owners {
		if o.Nickname == nickname {
			return &o, nil
		}
	}
	return nil, nil
}

func (s *fakeOwnerStore) ListByIDs(_ context.Context, ids []int64) ([]model.Owner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Owner
	for _, id := range ids {
		if o, ok := s.owners[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeOwnerStore) ListAll(_ context.Context) ([]model.Owner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Owner, 0, len(s.owners))
	for _, o := range s.owners {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeOwnerStore) Delete(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.owners[id]
	delete(s.owners, id)
	return ok, nil
}

// --- Ledger ---

type fakeLedger struct {
	mu      sync.Mutex
	now     func() time.Time
	records []model.KeyRecord

	createErr error
	updateErr error

	deletes []string
	updates []string
}

func newFakeLedger(now func() time.Time, records ...model.KeyRecord) *fakeLedger {
	return &fakeLedger{now: now, records: records}
}

func (l *fakeLedger) Create(_ context.Context, rec model.KeyRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.createErr != nil {
		return l.createErr
	}
	for _, r := range l.records {
		if r.ID == rec.ID && r.OwnerID == rec.OwnerID {
			return driven.ErrKeyRecordExists
		}
	}
	l.records = append(l.records, rec)
	return nil
}

func (l *fakeLedger) Get(_ context.Context, ownerID int64, id string) (*model.KeyRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.records {
		if r.ID == id && r.OwnerID == ownerID {
			return &r, nil
		}
	}
	return nil, nil
}

func (l *fakeLedger) ListByOwner(_ context.Context, ownerID int64) ([]model.KeyRecord, error) {
	return l.filter(func(r model.KeyRecord) bool { return r.OwnerID == ownerID }), nil
}

func (l *fakeLedger) ListAll(_ context.Context) ([]model.KeyRecord, error) {
	return l.filter(func(model.KeyRecord) bool { return true }), nil
}

func (l *fakeLedger) ListExpired(_ context.Context) ([]model.KeyRecord, error) {
	now := l.now()
	return l.filter(func(r model.KeyRecord) bool { return r.IsExpired(now) }), nil
}

func (l *fakeLedger) UpdateExpiry(_ context.Context, ownerID int64, id string, expiresAt *time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.updateErr != nil {
		return false, l.updateErr
	}
	for i, r := range l.records {
		if r.ID == id && r.OwnerID == ownerID {
			l.records[i].ExpiresAt = expiresAt
			l.updates = append(l.updates, id)
			return true, nil
		}
	}
	return false, nil
}

func (l *fakeLedger) Delete(_ context.Context, ownerID int64, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, r := range l.records {
		if r.ID == id && r.OwnerID == ownerID {
			l.records = append(l.records[:i], l.records[i+1:]...)
			l.deletes = append(l.deletes, id)
			return true, nil
		}
	}
	return false, nil
}

func (l *fakeLedger) filter(keep func(model.KeyRecord) bool) []model.KeyRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.KeyRecord
	for _, r := range l.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (l *fakeLedger) has(id string) bool {
	return len(l.filter(func(r model.KeyRecord) bool { return r.ID == id })) > 0
}

// --- Outline ---

var errTransport = errors.New("connection reset by peer")

type fakeOutline struct {
	mu     sync.Mutex
	keys   []model.RemoteKey
	usage  map[string]int64
	nextID int

	server model.ServerConfig

	createNil  bool
	createErr  error
	patchErr   map[string]error // by remote id
	listErr    error
	metricsErr error

	listCalls    int
	getCalls     int
	metricsCalls int
	deletes      []string
	patches      []string
	serverPatch  []model.ServerPatch
}

func newFakeOutline(keys ...model.RemoteKey) *fakeOutline {
	return &fakeOutline{
		keys:     keys,
		usage:    map[string]int64{},
		nextID:   100,
		patchErr: map[string]error{},
		server:   model.ServerConfig{ID: "srv", Name: "Outline", Hostname: "vpn.example.com", Port: 443},
	}
}

func (o *fakeOutline) GetServerInfo(_ context.Context) (*model.ServerConfig, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	cfg := o.server
	return &cfg, nil
}

func (o *fakeOutline) PatchServerInfo(_ context.Context, p model.ServerPatch) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.serverPatch = append(o.serverPatch, p)
	return nil
}

func (o *fakeOutline) GetAccessKeys(_ context.Context) ([]model.RemoteKey, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listCalls++
	if o.listErr != nil {
		return nil, o.listErr
	}
	return append([]model.RemoteKey(nil), o.keys...), nil
}

func (o *fakeOutline) GetAccessKey(_ context.Context, id string) (*model.RemoteKey, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.getCalls++
	for _, k := range o.keys {
		if k.ID == id {
			return &k, nil
		}
	}
	return nil, nil
}

func (o *fakeOutline) CreateAccessKey(_ context.Context, spec model.RemoteKeySpec) (*model.RemoteKey, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.createErr != nil {
		return nil, o.createErr
	}
	if o.createNil {
		return nil, nil
	}
	id := strconv.Itoa(o.nextID)
	o.nextID++
	port := spec.Port
	if port <= 0 {
		port = 443
	}
	key := model.RemoteKey{
		ID:        id,
		Name:      spec.Name,
		Password:  "secret" + id,
		Port:      port,
		Method:    "chacha20-ietf-poly1305",
		AccessURL: "ss://Y2hhY2hhMjA@vpn.example.com:" + strconv.Itoa(port) + "/?outline=1",
		DataLimit: spec.DataLimit,
	}
	o.keys = append(o.keys, key)
	return &key, nil
}

func (o *fakeOutline) PatchAccessKey(_ context.Context, id string, p model.RemoteKeyPatch) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.patchErr[id]; err != nil {
		return false, err
	}
	for i, k := range o.keys {
		if k.ID == id {
			if p.Name != nil {
				o.keys[i].Name = *p.Name
			}
			if p.DataLimit != nil {
				if *p.DataLimit < 0 {
					o.keys[i].DataLimit = nil
				} else {
					limit := *p.DataLimit
					o.keys[i].DataLimit = &limit
				}
			}
			o.patches = append(o.patches, id)
			return true, nil
		}
	}
	return false, nil
}

func (o *fakeOutline) DeleteAccessKey(_ context.Context, id string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, k := range o.keys {
		if k.ID == id {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			o.deletes = append(o.deletes, id)
			return true, nil
		}
	}
	return false, nil
}

func (o *fakeOutline) GetTransferMetrics(_ context.Context) (map[string]int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.metricsCalls++
	if o.metricsErr != nil {
		return nil, o.metricsErr
	}
	out := make(map[string]int64, len(o.usage))
	for k, v := range o.usage {
		out[k] = v
	}
	return out, nil
}

func (o *fakeOutline) has(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, k := range o.keys {
		if k.ID == id {
			return true
		}
	}
	return false
}

// --- Events ---

type recordingEvents struct {
	mu      sync.Mutex
	created []model.AccessKey
	deleted []model.AccessKey
}

func (e *recordingEvents) KeyCreated(key model.AccessKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created = append(e.created, key)
}

func (e *recordingEvents) KeyDeleted(key model.AccessKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deleted = append(e.deleted, key)
}

// --- Helpers ---

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func timePtr(t time.Time) *time.Time { return &t }

func int64Ptr(v int64) *int64 { return &v }

func strPtr(v string) *string { return &v }

func remoteKey(id string) model.RemoteKey {
	return model.RemoteKey{
		ID:        id,
		Name:      "key " + id,
		Port:      8388,
		Method:    "chacha20-ietf-poly1305",
		AccessURL: "ss://c2VjcmV0@vpn.example.com:8388/?outline=1#" + id,
	}
}
