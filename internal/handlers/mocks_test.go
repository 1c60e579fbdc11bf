package handlers

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/ukydev/pool-service/internal/db"
	"github.com/ukydev/pool-service/internal/events"
	"github.com/ukydev/pool-service/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// passthroughTx runs the function without a session.
type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type txKey struct{}

// recordingTx marks the context it hands to fn and keeps the outcome, so
// tests can check which writes shared a transaction and whether it aborted.
type recordingTx struct {
	calls int
	err   error
}

func (t *recordingTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	t.err = fn(context.WithValue(ctx, txKey{}, true))
	return t.err
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

type mockClients struct{ mock.Mock }

func (m *mockClients) InsertClient(ctx context.Context, c *models.Client) error {
	args := m.Called(ctx, c)
	if args.Error(0) == nil && c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	return args.Error(0)
}

func (m *mockClients) FindClientByID(ctx context.Context, id primitive.ObjectID) (*models.Client, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Client), args.Error(1)
}

func (m *mockClients) FindClientByEmail(ctx context.Context, email string) (*models.Client, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Client), args.Error(1)
}

func (m *mockClients) FindClients(ctx context.Context, filter db.ClientFilter, page db.Page) ([]models.Client, int64, error) {
	args := m.Called(ctx, filter, page)
	return args.Get(0).([]models.Client), args.Get(1).(int64), args.Error(2)
}

func (m *mockClients) UpdateClient(ctx context.Context, c *models.Client) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockClients) SetClientActive(ctx context.Context, id primitive.ObjectID, active bool) error {
	return m.Called(ctx, id, active).Error(0)
}

func (m *mockClients) SetClientLastService(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *mockClients) DeleteClient(ctx context.Context, id primitive.ObjectID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockClients) CountClients(ctx context.Context, scope db.Scope, activeOnly bool) (int64, error) {
	args := m.Called(ctx, scope, activeOnly)
	return args.Get(0).(int64), args.Error(1)
}

type mockPools struct{ mock.Mock }

func (m *mockPools) InsertPool(ctx context.Context, p *models.Pool) error {
	args := m.Called(ctx, p)
	if args.Error(0) == nil && p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	return args.Error(0)
}

func (m *mockPools) FindPoolByID(ctx context.Context, id primitive.ObjectID) (*models.Pool, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Pool), args.Error(1)
}

func (m *mockPools) FindPools(ctx context.Context, filter db.PoolFilter) ([]models.Pool, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]models.Pool), args.Error(1)
}

func (m *mockPools) UpdatePool(ctx context.Context, p *models.Pool) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockPools) SetPoolLastService(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *mockPools) DeletePool(ctx context.Context, id primitive.ObjectID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockPools) CountPools(ctx context.Context, filter db.PoolFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockPools) CountPoolsByClient(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]int, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(map[primitive.ObjectID]int), args.Error(1)
}

func (m *mockPools) FindOrphanedPools(ctx context.Context) ([]models.Pool, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Pool), args.Error(1)
}

type mockTechnicians struct{ mock.Mock }

func (m *mockTechnicians) InsertTechnician(ctx context.Context, t *models.Technician) error {
	args := m.Called(ctx, t)
	if args.Error(0) == nil && t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	return args.Error(0)
}

func (m *mockTechnicians) FindTechnicianByID(ctx context.Context, id string) (*models.Technician, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Technician), args.Error(1)
}

func (m *mockTechnicians) FindTechnicianByEmail(ctx context.Context, email string) (*models.Technician, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Technician), args.Error(1)
}

func (m *mockTechnicians) FindTechnicianByClient(ctx context.Context, clientID primitive.ObjectID) (*models.Technician, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Technician), args.Error(1)
}

func (m *mockTechnicians) FindTechnicians(ctx context.Context, filter db.TechnicianFilter) ([]models.Technician, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]models.Technician), args.Error(1)
}

func (m *mockTechnicians) UpdateTechnician(ctx context.Context, t *models.Technician) error {
	return m.Called(ctx, t).Error(0)
}

func (m *mockTechnicians) SetTechnicianActive(ctx context.Context, id primitive.ObjectID, active bool) error {
	return m.Called(ctx, id, active).Error(0)
}

func (m *mockTechnicians) DeleteTechnician(ctx context.Context, id primitive.ObjectID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockTechnicians) UpdateLastLogin(ctx context.Context, id primitive.ObjectID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockTechnicians) AssignClient(ctx context.Context, techID, clientID primitive.ObjectID) error {
	return m.Called(ctx, techID, clientID).Error(0)
}

func (m *mockTechnicians) RemoveClient(ctx context.Context, techID, clientID primitive.ObjectID) error {
	return m.Called(ctx, techID, clientID).Error(0)
}

func (m *mockTechnicians) UnassignClient(ctx context.Context, clientID primitive.ObjectID) error {
	return m.Called(ctx, clientID).Error(0)
}

func (m *mockTechnicians) CountTechnicians(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type mockVisits struct{ mock.Mock }

func (m *mockVisits) InsertVisit(ctx context.Context, v *models.ServiceVisit) error {
	args := m.Called(ctx, v)
	if args.Error(0) == nil && v.ID.IsZero() {
		v.ID = primitive.NewObjectID()
	}
	return args.Error(0)
}

func (m *mockVisits) FindVisitByID(ctx context.Context, id primitive.ObjectID) (*models.ServiceVisit, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ServiceVisit), args.Error(1)
}

func (m *mockVisits) FindVisits(ctx context.Context, filter db.VisitFilter, page db.Page) ([]models.ServiceVisit, int64, error) {
	args := m.Called(ctx, filter, page)
	return args.Get(0).([]models.ServiceVisit), args.Get(1).(int64), args.Error(2)
}

func (m *mockVisits) UpdateVisit(ctx context.Context, v *models.ServiceVisit) error {
	return m.Called(ctx, v).Error(0)
}

func (m *mockVisits) SetVisitStatus(ctx context.Context, id primitive.ObjectID, status string, completedAt *time.Time) error {
	return m.Called(ctx, id, status, completedAt).Error(0)
}

func (m *mockVisits) DeleteVisit(ctx context.Context, id primitive.ObjectID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockVisits) CountVisits(ctx context.Context, filter db.VisitFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockVisits) UsageByItem(ctx context.Context, start, end time.Time) ([]models.UsageRow, error) {
	args := m.Called(ctx, start, end)
	return args.Get(0).([]models.UsageRow), args.Error(1)
}

type mockFollowUps struct{ mock.Mock }

func (m *mockFollowUps) InsertFollowUp(ctx context.Context, f *models.FollowUp) error {
	args := m.Called(ctx, f)
	if args.Error(0) == nil && f.ID.IsZero() {
		f.ID = primitive.NewObjectID()
	}
	return args.Error(0)
}

func (m *mockFollowUps) FindFollowUpByID(ctx context.Context, id primitive.ObjectID) (*models.FollowUp, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FollowUp), args.Error(1)
}

func (m *mockFollowUps) FindFollowUpByVisit(ctx context.Context, visitID primitive.ObjectID) (*models.FollowUp, error) {
	args := m.Called(ctx, visitID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FollowUp), args.Error(1)
}

func (m *mockFollowUps) FindFollowUps(ctx context.Context, filter db.FollowUpFilter) ([]models.FollowUp, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]models.FollowUp), args.Error(1)
}

func (m *mockFollowUps) UpdateFollowUp(ctx context.Context, f *models.FollowUp) error {
	return m.Called(ctx, f).Error(0)
}

type mockBilling struct{ mock.Mock }

func (m *mockBilling) InsertBilling(ctx context.Context, b *models.PendingBilling) error {
	args := m.Called(ctx, b)
	if args.Error(0) == nil && b.ID.IsZero() {
		b.ID = primitive.NewObjectID()
	}
	return args.Error(0)
}

func (m *mockBilling) FindBillingByID(ctx context.Context, id primitive.ObjectID) (*models.PendingBilling, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PendingBilling), args.Error(1)
}

func (m *mockBilling) FindBillings(ctx context.Context, filter db.BillingFilter, page db.Page) ([]models.PendingBilling, int64, error) {
	args := m.Called(ctx, filter, page)
	return args.Get(0).([]models.PendingBilling), args.Get(1).(int64), args.Error(2)
}

func (m *mockBilling) UpdateBilling(ctx context.Context, b *models.PendingBilling) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockBilling) Summary(ctx context.Context, filter db.BillingFilter) ([]models.BillingSummary, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]models.BillingSummary), args.Error(1)
}

func (m *mockBilling) UnbilledTotals(ctx context.Context, clientID *primitive.ObjectID, start, end *time.Time) ([]models.UnbilledTotal, error) {
	args := m.Called(ctx, clientID, start, end)
	return args.Get(0).([]models.UnbilledTotal), args.Error(1)
}

func (m *mockBilling) FindBilledVisitIDs(ctx context.Context, ids []primitive.ObjectID, statuses []string) ([]primitive.ObjectID, error) {
	args := m.Called(ctx, ids, statuses)
	return args.Get(0).([]primitive.ObjectID), args.Error(1)
}

type mockInventory struct{ mock.Mock }

func (m *mockInventory) InsertItem(ctx context.Context, item *models.InventoryItem) error {
	args := m.Called(ctx, item)
	if args.Error(0) == nil && item.ID.IsZero() {
		item.ID = primitive.NewObjectID()
	}
	return args.Error(0)
}

func (m *mockInventory) FindItemByID(ctx context.Context, id primitive.ObjectID) (*models.InventoryItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InventoryItem), args.Error(1)
}

func (m *mockInventory) FindItemByName(ctx context.Context, name string) (*models.InventoryItem, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InventoryItem), args.Error(1)
}

func (m *mockInventory) FindItems(ctx context.Context, filter db.InventoryFilter) ([]models.InventoryItem, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]models.InventoryItem), args.Error(1)
}

func (m *mockInventory) UpdateItem(ctx context.Context, item *models.InventoryItem) error {
	return m.Called(ctx, item).Error(0)
}

func (m *mockInventory) AdjustQuantity(ctx context.Context, id primitive.ObjectID, delta float64) (*models.InventoryItem, error) {
	args := m.Called(ctx, id, delta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InventoryItem), args.Error(1)
}

type mockRouteStatuses struct{ mock.Mock }

func (m *mockRouteStatuses) UpsertRouteStatus(ctx context.Context, rs *models.RouteStatus) error {
	args := m.Called(ctx, rs)
	if args.Error(0) == nil && rs.ID.IsZero() {
		rs.ID = primitive.NewObjectID()
	}
	return args.Error(0)
}

func (m *mockRouteStatuses) FindRouteStatuses(ctx context.Context, filter db.RouteStatusFilter) ([]models.RouteStatus, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]models.RouteStatus), args.Error(1)
}

func (m *mockRouteStatuses) DeleteRouteStatuses(ctx context.Context, filter db.RouteStatusFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) PublishRouteStatus(ctx context.Context, ev events.RouteStatusChanged) error {
	return m.Called(ctx, ev).Error(0)
}

func (m *mockPublisher) Close() {}
