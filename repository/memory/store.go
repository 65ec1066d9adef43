// Package memory is an in-process implementation of the repository ports.
// Units of work are serialized and run against a copy of the data set that
// replaces the committed state only when the body succeeds.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/repository"
)

type meterKey struct {
	tenant domain.TenantID
	ean    string
}

type seriesKey struct {
	tenant domain.TenantID
	owner  string
}

type dataset struct {
	nextID int64

	communities map[string]domain.TenantID
	users       map[string]domain.CallerID
	members     map[domain.TenantID]map[domain.CallerID]domain.Role

	meters         map[meterKey]domain.Meter
	configurations []domain.MeterConfiguration
	operations     map[int64]domain.SharingOperation
	allocationKeys map[int64]domain.AllocationKey
	operationKeys  []domain.SharingOperationKey
	series         map[seriesKey]map[int64]domain.ConsumptionSample
}

func newDataset() *dataset {
	return &dataset{
		communities:    make(map[string]domain.TenantID),
		users:          make(map[string]domain.CallerID),
		members:        make(map[domain.TenantID]map[domain.CallerID]domain.Role),
		meters:         make(map[meterKey]domain.Meter),
		operations:     make(map[int64]domain.SharingOperation),
		allocationKeys: make(map[int64]domain.AllocationKey),
		series:         make(map[seriesKey]map[int64]domain.ConsumptionSample),
	}
}

func (d *dataset) id() int64 {
	d.nextID++
	return d.nextID
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	c.nextID = d.nextID
	for k, v := range d.communities {
		c.communities[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for t, m := range d.members {
		inner := make(map[domain.CallerID]domain.Role, len(m))
		for k, v := range m {
			inner[k] = v
		}
		c.members[t] = inner
	}
	for k, v := range d.meters {
		c.meters[k] = v
	}
	c.configurations = make([]domain.MeterConfiguration, len(d.configurations))
	for i, cfg := range d.configurations {
		cfg.EndDate = copyTime(cfg.EndDate)
		c.configurations[i] = cfg
	}
	for k, v := range d.operations {
		c.operations[k] = v
	}
	for k, v := range d.allocationKeys {
		c.allocationKeys[k] = v
	}
	c.operationKeys = make([]domain.SharingOperationKey, len(d.operationKeys))
	for i, key := range d.operationKeys {
		key.EndDate = copyTime(key.EndDate)
		c.operationKeys[i] = key
	}
	for k, rows := range d.series {
		inner := make(map[int64]domain.ConsumptionSample, len(rows))
		for ts, row := range rows {
			inner[ts] = row
		}
		c.series[k] = inner
	}
	return c
}

// Calls counts repository round trips so tests can assert batching.
type Calls struct {
	Lookups int
	Writes  int
}

// Store holds the committed state.
type Store struct {
	mu    sync.Mutex
	data  *dataset
	calls Calls

	failWritesAfter int
	failWith        error
}

func New() *Store {
	return &Store{data: newDataset(), failWritesAfter: -1}
}

// FailWritesAfter makes consumption batch writes fail with err once n of
// them have succeeded. A negative n disables the fault.
func (s *Store) FailWritesAfter(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWritesAfter = n
	s.failWith = err
}

// Calls returns the round trips recorded so far.
func (s *Store) Calls() Calls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Store) AddCommunity(externalID, name string) domain.TenantID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := domain.TenantID(s.data.id())
	s.data.communities[externalID] = id
	return id
}

func (s *Store) AddUser(externalID string) domain.CallerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := domain.CallerID(s.data.id())
	s.data.users[externalID] = id
	return id
}

func (s *Store) AddMember(tenant domain.TenantID, caller domain.CallerID, role domain.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.members[tenant] == nil {
		s.data.members[tenant] = make(map[domain.CallerID]domain.Role)
	}
	s.data.members[tenant][caller] = role
}

func (s *Store) AddMeter(tenant domain.TenantID, ean string) domain.Meter {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := domain.Meter{ID: s.data.id(), TenantID: tenant, EAN: ean, CreatedAt: time.Now()}
	s.data.meters[meterKey{tenant, ean}] = m
	return m
}

func (s *Store) AddSharingOperation(tenant domain.TenantID, name string, typ domain.OperationType) domain.SharingOperation {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := domain.SharingOperation{ID: s.data.id(), TenantID: tenant, Name: name, Type: typ, CreatedAt: time.Now()}
	s.data.operations[op.ID] = op
	return op
}

func (s *Store) AddAllocationKey(tenant domain.TenantID, name string) domain.AllocationKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.AllocationKey{ID: s.data.id(), TenantID: tenant, Name: name}
	s.data.allocationKeys[key.ID] = key
	return key
}

// OperationKeys returns every committed association of one operation, in
// insertion order, regardless of tenant.
func (s *Store) OperationKeys(operationID int64) []domain.SharingOperationKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SharingOperationKey, 0)
	for _, k := range s.data.operationKeys {
		if k.SharingOperationID == operationID {
			k.EndDate = copyTime(k.EndDate)
			out = append(out, k)
		}
	}
	return out
}

// SeriesLen returns the committed row count of one series.
func (s *Store) SeriesLen(tenant domain.TenantID, owner domain.ConsumptionOwner) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.series[seriesKey{tenant, owner.String()}])
}

type txKey struct{}

type activeTx struct {
	tenant domain.TenantID
	tx     *tx
}

// Run executes fn against a private copy of the data and commits the copy
// when fn returns nil. Nested calls through the context passed to fn join
// the running unit of work.
func (s *Store) Run(ctx context.Context, tenant domain.TenantID, fn repository.TxFunc) error {
	if outer, ok := ctx.Value(txKey{}).(*activeTx); ok {
		if outer.tenant != tenant {
			return domain.WrapError(domain.ErrCodeForbidden, "nested unit of work crosses communities", nil)
		}
		return fn(ctx, outer.tx)
	}
	if !tenant.Valid() {
		return domain.ErrNotAuthorized
	}
	if err := ctx.Err(); err != nil {
		return domain.WrapError(domain.ErrCodeTransient, "unit of work cancelled", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := &tx{store: s, tenant: tenant, data: s.data.clone()}
	if err := fn(context.WithValue(ctx, txKey{}, &activeTx{tenant: tenant, tx: work}), work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return domain.WrapError(domain.ErrCodeTransient, "unit of work cancelled", err)
	}
	s.data = work.data
	return nil
}

var _ repository.UnitOfWork = (*Store)(nil)

// tx is bound to one tenant; every lookup filters on it.
type tx struct {
	store  *Store
	tenant domain.TenantID
	data   *dataset
}

func (t *tx) Meters() repository.MeterRepository                       { return meterRepo{t} }
func (t *tx) SharingOperations() repository.SharingOperationRepository { return sharingRepo{t} }
func (t *tx) Consumption() repository.ConsumptionRepository            { return consumptionRepo{t} }

type meterRepo struct{ *tx }

func (r meterRepo) GetByEAN(_ context.Context, ean string) (*domain.Meter, error) {
	m, ok := r.data.meters[meterKey{r.tenant, ean}]
	if !ok {
		return nil, domain.ErrMeterNotFound
	}
	return &m, nil
}

func (r meterRepo) ListConfigurations(_ context.Context, ean string) ([]domain.MeterConfiguration, error) {
	out := make([]domain.MeterConfiguration, 0)
	for _, cfg := range r.data.configurations {
		if cfg.TenantID == r.tenant && cfg.EAN == ean {
			cfg.EndDate = copyTime(cfg.EndDate)
			out = append(out, cfg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.After(out[j].StartDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r meterRepo) HasConfigurationStarting(_ context.Context, ean string, start time.Time) (bool, error) {
	for _, cfg := range r.data.configurations {
		if cfg.TenantID == r.tenant && cfg.EAN == ean && domain.DayOf(cfg.StartDate).Equal(domain.DayOf(start)) {
			return true, nil
		}
	}
	return false, nil
}

func (r meterRepo) InsertConfiguration(_ context.Context, cfg *domain.MeterConfiguration) error {
	if cfg == nil {
		return domain.ErrInvalidPayload
	}
	if _, ok := r.data.meters[meterKey{r.tenant, cfg.EAN}]; !ok {
		return domain.WrapError(domain.ErrCodeNotFound, "referenced row not found", fmt.Errorf("meter %s", cfg.EAN))
	}
	cfg.ID = r.data.id()
	cfg.TenantID = r.tenant
	cfg.CreatedAt = time.Now()
	stored := *cfg
	stored.EndDate = copyTime(cfg.EndDate)
	r.data.configurations = append(r.data.configurations, stored)
	return nil
}

func (r meterRepo) CloseOpenConfigurations(_ context.Context, ean string, at time.Time) (int64, error) {
	var n int64
	for i := range r.data.configurations {
		cfg := &r.data.configurations[i]
		if cfg.TenantID == r.tenant && cfg.EAN == ean && cfg.EndDate == nil && cfg.StartDate.Before(at) {
			cfg.EndDate = copyTime(&at)
			n++
		}
	}
	return n, nil
}

type sharingRepo struct{ *tx }

func (r sharingRepo) Get(_ context.Context, id int64) (*domain.SharingOperation, error) {
	op, ok := r.data.operations[id]
	if !ok || op.TenantID != r.tenant {
		return nil, domain.ErrOperationNotFound
	}
	return &op, nil
}

func (r sharingRepo) Lock(ctx context.Context, id int64) error {
	_, err := r.Get(ctx, id)
	return err
}

func (r sharingRepo) AllocationKeyExists(_ context.Context, keyID int64) (bool, error) {
	key, ok := r.data.allocationKeys[keyID]
	return ok && key.TenantID == r.tenant, nil
}

func (r sharingRepo) ListKeys(_ context.Context, operationID int64) ([]domain.SharingOperationKey, error) {
	out := make([]domain.SharingOperationKey, 0)
	for _, k := range r.data.operationKeys {
		if k.TenantID == r.tenant && k.SharingOperationID == operationID {
			k.EndDate = copyTime(k.EndDate)
			out = append(out, k)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.After(out[j].StartDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r sharingRepo) OpenKey(ctx context.Context, operationID, keyID int64) (*domain.SharingOperationKey, error) {
	keys, _ := r.ListKeys(ctx, operationID)
	for _, k := range keys {
		if k.KeyID == keyID && k.Open() {
			return &k, nil
		}
	}
	return nil, domain.ErrAssociationNotFound
}

func (r sharingRepo) HasOpenPending(_ context.Context, operationID int64) (bool, error) {
	for _, k := range r.data.operationKeys {
		if k.TenantID == r.tenant && k.SharingOperationID == operationID && k.Status == domain.KeyPending && k.Open() {
			return true, nil
		}
	}
	return false, nil
}

func (r sharingRepo) InsertKey(_ context.Context, key *domain.SharingOperationKey) error {
	if key == nil {
		return domain.ErrInvalidPayload
	}
	if op, ok := r.data.operations[key.SharingOperationID]; !ok || op.TenantID != r.tenant {
		return domain.WrapError(domain.ErrCodeNotFound, "referenced row not found", fmt.Errorf("sharing operation %d", key.SharingOperationID))
	}
	if ak, ok := r.data.allocationKeys[key.KeyID]; !ok || ak.TenantID != r.tenant {
		return domain.WrapError(domain.ErrCodeNotFound, "referenced row not found", fmt.Errorf("allocation key %d", key.KeyID))
	}
	if key.Status == domain.KeyApproved && key.EndDate == nil && r.hasOpenApproved(key.SharingOperationID, 0) {
		return domain.NewError(domain.ErrCodeConflict, "uniqueness constraint violated")
	}
	key.ID = r.data.id()
	key.TenantID = r.tenant
	key.CreatedAt = time.Now()
	stored := *key
	stored.EndDate = copyTime(key.EndDate)
	r.data.operationKeys = append(r.data.operationKeys, stored)
	return nil
}

func (r sharingRepo) CloseApprovedKeys(_ context.Context, operationID int64, at time.Time, exceptID int64) (int64, error) {
	var n int64
	for i := range r.data.operationKeys {
		k := &r.data.operationKeys[i]
		if k.TenantID == r.tenant && k.SharingOperationID == operationID && k.Status == domain.KeyApproved && k.Open() && k.ID != exceptID {
			k.EndDate = copyTime(&at)
			n++
		}
	}
	return n, nil
}

func (r sharingRepo) TransitionKey(_ context.Context, id int64, from, to domain.KeyStatus, end *time.Time) error {
	k := r.find(id)
	if k == nil || k.Status != from || !k.Open() {
		return domain.ErrAssociationNotOpen
	}
	if to == domain.KeyApproved && end == nil && r.hasOpenApproved(k.SharingOperationID, id) {
		return domain.NewError(domain.ErrCodeConflict, "uniqueness constraint violated")
	}
	k.Status = to
	if end != nil {
		k.EndDate = copyTime(end)
	}
	return nil
}

func (r sharingRepo) CloseKey(_ context.Context, id int64, at time.Time) error {
	k := r.find(id)
	if k == nil || !k.Open() {
		return domain.ErrAssociationNotFound
	}
	k.EndDate = copyTime(&at)
	return nil
}

func (r sharingRepo) find(id int64) *domain.SharingOperationKey {
	for i := range r.data.operationKeys {
		k := &r.data.operationKeys[i]
		if k.ID == id && k.TenantID == r.tenant {
			return k
		}
	}
	return nil
}

func (r sharingRepo) hasOpenApproved(operationID, exceptID int64) bool {
	for _, k := range r.data.operationKeys {
		if k.SharingOperationID == operationID && k.Status == domain.KeyApproved && k.Open() && k.ID != exceptID {
			return true
		}
	}
	return false
}

type consumptionRepo struct{ *tx }

func (r consumptionRepo) OwnerExists(_ context.Context, owner domain.ConsumptionOwner) (bool, error) {
	if err := owner.Validate(); err != nil {
		return false, err
	}
	if owner.Kind == domain.OwnerMeter {
		_, ok := r.data.meters[meterKey{r.tenant, owner.EAN}]
		return ok, nil
	}
	op, ok := r.data.operations[owner.OperationID]
	return ok && op.TenantID == r.tenant, nil
}

func (r consumptionRepo) FindByTimestamps(_ context.Context, owner domain.ConsumptionOwner, timestamps []time.Time) ([]domain.ConsumptionSample, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	r.store.calls.Lookups++
	rows := r.data.series[seriesKey{r.tenant, owner.String()}]
	out := make([]domain.ConsumptionSample, 0)
	for _, ts := range timestamps {
		if row, ok := rows[domain.ConsumptionSample{Timestamp: ts}.TimeKey()]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r consumptionRepo) SaveBatch(_ context.Context, owner domain.ConsumptionOwner, samples []domain.ConsumptionSample) error {
	if err := owner.Validate(); err != nil {
		return err
	}
	if r.store.failWritesAfter >= 0 && r.store.calls.Writes >= r.store.failWritesAfter {
		return r.store.failWith
	}
	r.store.calls.Writes++

	key := seriesKey{r.tenant, owner.String()}
	if r.data.series[key] == nil {
		r.data.series[key] = make(map[int64]domain.ConsumptionSample)
	}
	rows := r.data.series[key]
	for i := range samples {
		s := &samples[i]
		s.Timestamp = s.Timestamp.UTC().Truncate(domain.TimestampPrecision)
		if s.ID == 0 {
			if _, dup := rows[s.TimeKey()]; dup {
				return domain.NewError(domain.ErrCodeConflict, "uniqueness constraint violated")
			}
			s.ID = r.data.id()
		}
		rows[s.TimeKey()] = *s
	}
	return nil
}

func (r consumptionRepo) Range(_ context.Context, owner domain.ConsumptionOwner, from, to time.Time) ([]domain.ConsumptionSample, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	out := make([]domain.ConsumptionSample, 0)
	for _, row := range r.data.series[seriesKey{r.tenant, owner.String()}] {
		if !row.Timestamp.Before(from) && row.Timestamp.Before(to) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
