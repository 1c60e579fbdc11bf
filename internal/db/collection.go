package db

import (
	"context"
	"time"

	"github.com/ukydev/pool-service/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Scope restricts a query to a set of client ids. A nil Scope means no
// restriction; an empty non-nil one matches nothing.
type Scope []primitive.ObjectID

// ClientFilter selects clients for listing. Scope also serves to fetch a
// known set of clients by id.
type ClientFilter struct {
	Scope      Scope
	Search     string
	ClientType string
	IsActive   *bool
	ServiceDay string
}

// ClientCollection defines the interface for client data operations.
type ClientCollection interface {
	InsertClient(ctx context.Context, client *models.Client) error
	FindClientByID(ctx context.Context, id primitive.ObjectID) (*models.Client, error)
	FindClientByEmail(ctx context.Context, email string) (*models.Client, error)
	FindClients(ctx context.Context, filter ClientFilter, page Page) ([]models.Client, int64, error)
	UpdateClient(ctx context.Context, client *models.Client) error
	SetClientActive(ctx context.Context, id primitive.ObjectID, active bool) error
	SetClientLastService(ctx context.Context, id primitive.ObjectID, at time.Time) error
	DeleteClient(ctx context.Context, id primitive.ObjectID) error
	CountClients(ctx context.Context, scope Scope, activeOnly bool) (int64, error)
}

// PoolFilter selects pools for listing.
type PoolFilter struct {
	Scope    Scope
	ClientID *primitive.ObjectID
	IsActive *bool
}

// PoolCollection defines the interface for pool data operations.
type PoolCollection interface {
	InsertPool(ctx context.Context, pool *models.Pool) error
	FindPoolByID(ctx context.Context, id primitive.ObjectID) (*models.Pool, error)
	FindPools(ctx context.Context, filter PoolFilter) ([]models.Pool, error)
	UpdatePool(ctx context.Context, pool *models.Pool) error
	SetPoolLastService(ctx context.Context, id primitive.ObjectID, at time.Time) error
	DeletePool(ctx context.Context, id primitive.ObjectID) error
	CountPools(ctx context.Context, filter PoolFilter) (int64, error)
	CountPoolsByClient(ctx context.Context, clientIDs []primitive.ObjectID) (map[primitive.ObjectID]int, error)
	FindOrphanedPools(ctx context.Context) ([]models.Pool, error)
}

// TechnicianFilter selects technicians for listing.
type TechnicianFilter struct {
	Role     string
	IsActive *bool
}

// TechnicianCollection defines the interface for technician data operations.
type TechnicianCollection interface {
	InsertTechnician(ctx context.Context, tech *models.Technician) error
	FindTechnicianByID(ctx context.Context, id string) (*models.Technician, error)
	FindTechnicianByEmail(ctx context.Context, email string) (*models.Technician, error)
	FindTechnicianByClient(ctx context.Context, clientID primitive.ObjectID) (*models.Technician, error)
	FindTechnicians(ctx context.Context, filter TechnicianFilter) ([]models.Technician, error)
	UpdateTechnician(ctx context.Context, tech *models.Technician) error
	SetTechnicianActive(ctx context.Context, id primitive.ObjectID, active bool) error
	DeleteTechnician(ctx context.Context, id primitive.ObjectID) error
	UpdateLastLogin(ctx context.Context, id primitive.ObjectID) error
	AssignClient(ctx context.Context, techID, clientID primitive.ObjectID) error
	RemoveClient(ctx context.Context, techID, clientID primitive.ObjectID) error
	UnassignClient(ctx context.Context, clientID primitive.ObjectID) error
	CountTechnicians(ctx context.Context) (int64, error)
}

// VisitFilter selects visits for listing.
type VisitFilter struct {
	IDs              []primitive.ObjectID
	Scope            Scope
	ClientID         *primitive.ObjectID
	PoolID           *primitive.ObjectID
	TechnicianID     *primitive.ObjectID
	Status           string
	ServiceType      string
	Start            *time.Time
	End              *time.Time
	FollowUpRequired *bool
}

// VisitCollection defines the interface for service visit data operations.
type VisitCollection interface {
	InsertVisit(ctx context.Context, visit *models.ServiceVisit) error
	FindVisitByID(ctx context.Context, id primitive.ObjectID) (*models.ServiceVisit, error)
	FindVisits(ctx context.Context, filter VisitFilter, page Page) ([]models.ServiceVisit, int64, error)
	UpdateVisit(ctx context.Context, visit *models.ServiceVisit) error
	SetVisitStatus(ctx context.Context, id primitive.ObjectID, status string, completedAt *time.Time) error
	DeleteVisit(ctx context.Context, id primitive.ObjectID) error
	CountVisits(ctx context.Context, filter VisitFilter) (int64, error)
	UsageByItem(ctx context.Context, start, end time.Time) ([]models.UsageRow, error)
}

// FollowUpFilter selects stored follow-ups.
type FollowUpFilter struct {
	Scope    Scope
	ClientID *primitive.ObjectID
}

// FollowUpCollection defines the interface for follow-up data operations.
type FollowUpCollection interface {
	InsertFollowUp(ctx context.Context, f *models.FollowUp) error
	FindFollowUpByID(ctx context.Context, id primitive.ObjectID) (*models.FollowUp, error)
	FindFollowUpByVisit(ctx context.Context, visitID primitive.ObjectID) (*models.FollowUp, error)
	FindFollowUps(ctx context.Context, filter FollowUpFilter) ([]models.FollowUp, error)
	UpdateFollowUp(ctx context.Context, f *models.FollowUp) error
}

// BillingFilter selects billing records.
type BillingFilter struct {
	ClientID *primitive.ObjectID
	Status   string
}

// BillingCollection defines the interface for pending billing operations.
type BillingCollection interface {
	InsertBilling(ctx context.Context, b *models.PendingBilling) error
	FindBillingByID(ctx context.Context, id primitive.ObjectID) (*models.PendingBilling, error)
	FindBillings(ctx context.Context, filter BillingFilter, page Page) ([]models.PendingBilling, int64, error)
	UpdateBilling(ctx context.Context, b *models.PendingBilling) error
	Summary(ctx context.Context, filter BillingFilter) ([]models.BillingSummary, error)
	UnbilledTotals(ctx context.Context, clientID *primitive.ObjectID, start, end *time.Time) ([]models.UnbilledTotal, error)
	FindBilledVisitIDs(ctx context.Context, ids []primitive.ObjectID, statuses []string) ([]primitive.ObjectID, error)
}

// InventoryFilter selects inventory items.
type InventoryFilter struct {
	Category string
	LowStock bool
}

// InventoryCollection defines the interface for inventory data operations.
type InventoryCollection interface {
	InsertItem(ctx context.Context, item *models.InventoryItem) error
	FindItemByID(ctx context.Context, id primitive.ObjectID) (*models.InventoryItem, error)
	FindItemByName(ctx context.Context, name string) (*models.InventoryItem, error)
	FindItems(ctx context.Context, filter InventoryFilter) ([]models.InventoryItem, error)
	UpdateItem(ctx context.Context, item *models.InventoryItem) error
	AdjustQuantity(ctx context.Context, id primitive.ObjectID, delta float64) (*models.InventoryItem, error)
}

// RouteStatusFilter selects route status overrides for one day.
type RouteStatusFilter struct {
	Date         string
	TechnicianID *primitive.ObjectID
	ClientID     *primitive.ObjectID
}

// RouteStatusCollection defines the interface for route status overrides.
type RouteStatusCollection interface {
	UpsertRouteStatus(ctx context.Context, rs *models.RouteStatus) error
	FindRouteStatuses(ctx context.Context, filter RouteStatusFilter) ([]models.RouteStatus, error)
	DeleteRouteStatuses(ctx context.Context, filter RouteStatusFilter) (int64, error)
}
