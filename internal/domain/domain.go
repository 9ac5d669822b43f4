package domain

// PaymentStatus is the lifecycle state of an order. Once PAID the order never
// leaves that state; FAILED is terminal too (a retry means a brand-new order).
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentPaid || s == PaymentFailed
}

// SessionMode distinguishes a real gateway session from the demo fallback that
// is used when no gateway credentials are configured.
type SessionMode string

const (
	SessionGateway SessionMode = "gateway"
	SessionDemo    SessionMode = "demo"
)

// PaymentSession is the broker's answer at order creation. In demo mode Ref
// and RedirectURL are empty and the client is expected to drive the
// demo-complete flow instead of redirecting to the gateway.
type PaymentSession struct {
	Mode        SessionMode `json:"mode" enum:"gateway,demo"`
	Ref         string      `json:"ref,omitempty"`
	RedirectURL string      `json:"redirect_url,omitempty"`
}

// Real reports whether the session points at an actual gateway transaction.
func (s PaymentSession) Real() bool { return s.Mode == SessionGateway }

type Subject struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Icon         string `json:"icon,omitempty"`
	ProjectCount int    `json:"project_count"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Project struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Description      string `json:"description,omitempty"`
	SubjectID        string `json:"subject_id"`
	SubjectName      string `json:"subject_name"`
	Price            int64  `json:"price"`
	FileName         string `json:"file_name"`
	OriginalFileName string `json:"original_file_name,omitempty"`
	CreatedAt        string `json:"created_at" format:"date-time"`
}

// Order is one purchase attempt. The project_* and amount fields are a
// snapshot taken at creation time and never follow later catalog edits.
type Order struct {
	OrderID           string        `json:"order_id"`
	ProjectID         string        `json:"project_id"`
	ProjectTitle      string        `json:"project_title"`
	SubjectName       string        `json:"subject_name"`
	Amount            int64         `json:"amount"`
	CustomerName      string        `json:"customer_name"`
	CustomerEmail     string        `json:"customer_email"`
	CustomerPhone     string        `json:"customer_phone"`
	PaymentStatus     PaymentStatus `json:"payment_status" enum:"PENDING,PAID,FAILED"`
	PaymentSessionRef *string       `json:"payment_session_ref,omitempty"`
	FulfilledAt       *string       `json:"fulfilled_at,omitempty" format:"date-time"`
	CreatedAt         string        `json:"created_at" format:"date-time"`
	UpdatedAt         string        `json:"updated_at" format:"date-time"`
}

// Fulfilled reports whether delivery already happened for this order.
func (o Order) Fulfilled() bool { return o.FulfilledAt != nil }

type Admin struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// DashboardStats are the aggregate counts shown on the admin dashboard.
type DashboardStats struct {
	TotalSubjects int     `json:"total_subjects"`
	TotalProjects int     `json:"total_projects"`
	TotalOrders   int     `json:"total_orders"`
	PaidOrders    int     `json:"paid_orders"`
	TotalRevenue  int64   `json:"total_revenue"`
	RecentOrders  []Order `json:"recent_orders"`
}
