package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"projectkart/internal/assets"
	"projectkart/internal/db"
	"projectkart/internal/domain"
	"projectkart/internal/gateway"
	"projectkart/internal/migrate"
	"projectkart/internal/repo"
)

type stubGateway struct {
	mu          sync.Mutex
	configured  bool
	status      string
	createErr   error
	statusErr   error
	sessions    int
	statusCalls int
}

func (g *stubGateway) Configured() bool { return g.configured }

func (g *stubGateway) CreateSession(ctx context.Context, p gateway.SessionParams) (gateway.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return gateway.Session{}, g.createErr
	}
	g.sessions++
	ref := fmt.Sprintf("sess_%d", g.sessions)
	return gateway.Session{Ref: ref, RedirectURL: "https://gateway.test/pay/" + ref}, nil
}

func (g *stubGateway) SessionStatus(ctx context.Context, ref string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusCalls++
	if g.statusErr != nil {
		return "", g.statusErr
	}
	return g.status, nil
}

type stubMailer struct {
	mu   sync.Mutex
	sent int
	err  error
}

func (m *stubMailer) SendProjectPDF(ctx context.Context, order domain.Order, pdf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent++
	return nil
}

func newTestEngine(t *testing.T, gw Gateway, m Mailer) Engine {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store, err := assets.New(workspace + "/uploads")
	if err != nil {
		t.Fatalf("assets store: %v", err)
	}
	return New(conn, gw, m, store, log.New(io.Discard, "", 0))
}

func seedProject(t *testing.T, e Engine, price int64) domain.Project {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Format(time.RFC3339)
	subject := domain.Subject{ID: "subj-1", Name: "Computer Science", CreatedAt: now}
	if err := e.Repo.InsertSubject(ctx, subject); err != nil {
		t.Fatalf("insert subject: %v", err)
	}
	project := domain.Project{
		ID:          "proj-1",
		Title:       "Compiler Basics",
		SubjectID:   subject.ID,
		SubjectName: subject.Name,
		Price:       price,
		FileName:    "proj-1.pdf",
		CreatedAt:   now,
	}
	if err := e.Repo.InsertProject(ctx, project); err != nil {
		t.Fatalf("insert project: %v", err)
	}
	if err := e.Assets.Save(project.FileName, strings.NewReader("%PDF-1.4 test")); err != nil {
		t.Fatalf("save asset: %v", err)
	}
	return project
}

func buyer(projectID string) CreateOrderParams {
	return CreateOrderParams{
		ProjectID:     projectID,
		CustomerName:  "Asha Patel",
		CustomerEmail: "asha@example.com",
		CustomerPhone: "9876543210",
	}
}

func TestCreateOrderSnapshotsCatalog(t *testing.T) {
	e := newTestEngine(t, &stubGateway{}, &stubMailer{})
	ctx := context.Background()
	project := seedProject(t, e, 499)

	order, session, err := e.CreateOrder(ctx, buyer(project.ID))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Amount != 499 || order.ProjectTitle != project.Title || order.SubjectName != project.SubjectName {
		t.Fatalf("bad snapshot: %+v", order)
	}
	if order.PaymentStatus != domain.PaymentPending {
		t.Fatalf("expected PENDING, got %s", order.PaymentStatus)
	}
	if session.Mode != domain.SessionDemo {
		t.Fatalf("expected demo session without gateway, got %s", session.Mode)
	}
	if !strings.HasPrefix(order.OrderID, "ORD_") {
		t.Fatalf("unexpected order id %s", order.OrderID)
	}

	// Later catalog edits must not leak into the stored order.
	newPrice := int64(999)
	if err := e.Repo.UpdateProject(ctx, domain.Project{
		ID: project.ID, Title: "Compiler Basics v2", SubjectID: project.SubjectID,
		SubjectName: project.SubjectName, Price: newPrice, FileName: project.FileName,
		CreatedAt: project.CreatedAt,
	}); err != nil {
		t.Fatalf("update project: %v", err)
	}
	got, err := e.GetOrder(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Amount != 499 || got.ProjectTitle != "Compiler Basics" {
		t.Fatalf("snapshot drifted: %+v", got)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	e := newTestEngine(t, &stubGateway{}, &stubMailer{})
	project := seedProject(t, e, 100)

	cases := []struct {
		name  string
		p     CreateOrderParams
		field string
	}{
		{"empty name", CreateOrderParams{ProjectID: project.ID, CustomerName: "  ", CustomerEmail: "a@b.co", CustomerPhone: "9876543210"}, "customer_name"},
		{"bad email", CreateOrderParams{ProjectID: project.ID, CustomerName: "A", CustomerEmail: "not-an-email", CustomerPhone: "9876543210"}, "customer_email"},
		{"short phone", CreateOrderParams{ProjectID: project.ID, CustomerName: "A", CustomerEmail: "a@b.co", CustomerPhone: "12345"}, "customer_phone"},
		{"alpha phone", CreateOrderParams{ProjectID: project.ID, CustomerName: "A", CustomerEmail: "a@b.co", CustomerPhone: "987654321x"}, "customer_phone"},
	}
	for _, tc := range cases {
		_, _, err := e.CreateOrder(context.Background(), tc.p)
		var ve ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.name, err)
		}
		if ve.Field != tc.field {
			t.Fatalf("%s: expected field %s, got %s", tc.name, tc.field, ve.Field)
		}
	}

	if _, _, err := e.CreateOrder(context.Background(), buyer("missing")); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for unknown project, got %v", err)
	}
}

func TestCreateOrderDegradesToDemoWhenGatewayUnreachable(t *testing.T) {
	gw := &stubGateway{configured: true, createErr: fmt.Errorf("%w: connection refused", gateway.ErrUnavailable)}
	e := newTestEngine(t, gw, &stubMailer{})
	project := seedProject(t, e, 250)

	order, session, err := e.CreateOrder(context.Background(), buyer(project.ID))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if session.Mode != domain.SessionDemo {
		t.Fatalf("expected demo fallback, got %s", session.Mode)
	}
	if order.PaymentSessionRef != nil {
		t.Fatalf("demo order must not carry a session ref")
	}
}

func TestCreateOrderGatewayRejectionFails(t *testing.T) {
	gw := &stubGateway{configured: true, createErr: errors.New("gateway rejected request: status 400")}
	e := newTestEngine(t, gw, &stubMailer{})
	project := seedProject(t, e, 250)

	_, _, err := e.CreateOrder(context.Background(), buyer(project.ID))
	if err == nil {
		t.Fatal("expected error on active gateway rejection")
	}
}

func TestDemoCompleteLifecycle(t *testing.T) {
	m := &stubMailer{}
	e := newTestEngine(t, &stubGateway{}, m)
	ctx := context.Background()
	project := seedProject(t, e, 300)

	order, _, err := e.CreateOrder(ctx, buyer(project.ID))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	// Verify on a demo-mode PENDING order is a no-op.
	got, err := e.Verify(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("verify pending: %v", err)
	}
	if got.PaymentStatus != domain.PaymentPending {
		t.Fatalf("expected PENDING, got %s", got.PaymentStatus)
	}

	got, err = e.DemoComplete(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("demo complete: %v", err)
	}
	if got.PaymentStatus != domain.PaymentPaid || !got.Fulfilled() {
		t.Fatalf("expected fulfilled PAID order, got %+v", got)
	}
	if m.sent != 1 {
		t.Fatalf("expected 1 email, got %d", m.sent)
	}

	// Idempotent repeat.
	again, err := e.DemoComplete(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("repeat demo complete: %v", err)
	}
	if again.PaymentStatus != domain.PaymentPaid {
		t.Fatalf("expected PAID, got %s", again.PaymentStatus)
	}
	if m.sent != 1 {
		t.Fatalf("repeat completion re-sent email: %d", m.sent)
	}
}

func TestDemoCompleteRefusedForGatewayOrder(t *testing.T) {
	gw := &stubGateway{configured: true, status: "created"}
	e := newTestEngine(t, gw, &stubMailer{})
	ctx := context.Background()
	project := seedProject(t, e, 300)

	order, session, err := e.CreateOrder(ctx, buyer(project.ID))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if session.Mode != domain.SessionGateway {
		t.Fatalf("expected gateway session, got %s", session.Mode)
	}
	if _, err := e.DemoComplete(ctx, order.OrderID); !errors.Is(err, ErrDemoNotAllowed) {
		t.Fatalf("expected ErrDemoNotAllowed, got %v", err)
	}
}

func TestVerifyResolvesGatewayStatus(t *testing.T) {
	gw := &stubGateway{configured: true, status: "created"}
	m := &stubMailer{}
	e := newTestEngine(t, gw, m)
	ctx := context.Background()
	project := seedProject(t, e, 450)

	order, _, err := e.CreateOrder(ctx, buyer(project.ID))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	// Unknown gateway status keeps the order pollable.
	got, err := e.Verify(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.PaymentStatus != domain.PaymentPending {
		t.Fatalf("expected PENDING, got %s", got.PaymentStatus)
	}

	gw.status = "paid"
	got, err = e.Verify(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("verify paid: %v", err)
	}
	if got.PaymentStatus != domain.PaymentPaid || !got.Fulfilled() {
		t.Fatalf("expected fulfilled PAID order, got %+v", got)
	}
	if m.sent != 1 {
		t.Fatalf("expected 1 email, got %d", m.sent)
	}

	// Terminal orders short-circuit without touching the gateway.
	calls := gw.statusCalls
	if _, err := e.Verify(ctx, order.OrderID); err != nil {
		t.Fatalf("verify terminal: %v", err)
	}
	if gw.statusCalls != calls {
		t.Fatalf("terminal verify called the gateway")
	}
}

func TestPaidIsSticky(t *testing.T) {
	gw := &stubGateway{configured: true, status: "paid"}
	e := newTestEngine(t, gw, &stubMailer{})
	ctx := context.Background()
	project := seedProject(t, e, 450)

	order, _, err := e.CreateOrder(ctx, buyer(project.ID))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := e.Verify(ctx, order.OrderID); err != nil {
		t.Fatalf("verify: %v", err)
	}

	// Gateway now claims expiry; the terminal state must not move.
	gw.status = "expired"
	got, err := e.Verify(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("verify after expiry claim: %v", err)
	}
	if got.PaymentStatus != domain.PaymentPaid {
		t.Fatalf("PAID order moved to %s", got.PaymentStatus)
	}
}

func TestFailedOrderStaysFailed(t *testing.T) {
	gw := &stubGateway{configured: true, status: "failed"}
	m := &stubMailer{}
	e := newTestEngine(t, gw, m)
	ctx := context.Background()
	project := seedProject(t, e, 450)

	order, _, err := e.CreateOrder(ctx, buyer(project.ID))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	got, err := e.Verify(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.PaymentStatus != domain.PaymentFailed {
		t.Fatalf("expected FAILED, got %s", got.PaymentStatus)
	}
	if m.sent != 0 {
		t.Fatalf("failed order triggered email")
	}

	// A retried payment means a brand-new order; the failed one is frozen.
	gw.status = "paid"
	got, err = e.Verify(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("verify after failure: %v", err)
	}
	if got.PaymentStatus != domain.PaymentFailed {
		t.Fatalf("FAILED order moved to %s", got.PaymentStatus)
	}
}

func TestConcurrentVerifyFulfillsOnce(t *testing.T) {
	gw := &stubGateway{configured: true, status: "paid"}
	m := &stubMailer{}
	e := newTestEngine(t, gw, m)
	ctx := context.Background()
	project := seedProject(t, e, 450)

	order, _, err := e.CreateOrder(ctx, buyer(project.ID))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Verify(ctx, order.OrderID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent verify: %v", err)
	}

	if m.sent != 1 {
		t.Fatalf("expected exactly one email, got %d", m.sent)
	}
	events, err := e.Repo.LatestEvents(ctx, 50, "order", order.OrderID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	fulfilled, paid := 0, 0
	for _, ev := range events {
		switch ev.Type {
		case "order.fulfilled":
			fulfilled++
		case "order.paid":
			paid++
		}
	}
	if fulfilled != 1 || paid != 1 {
		t.Fatalf("expected single paid+fulfilled event, got paid=%d fulfilled=%d", paid, fulfilled)
	}
}

func TestFulfillmentRetriesAfterAssetFailure(t *testing.T) {
	gw := &stubGateway{configured: true, status: "paid"}
	m := &stubMailer{}
	e := newTestEngine(t, gw, m)
	ctx := context.Background()
	project := seedProject(t, e, 450)
	if err := e.Assets.Remove(project.FileName); err != nil {
		t.Fatalf("remove asset: %v", err)
	}

	order, _, err := e.CreateOrder(ctx, buyer(project.ID))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := e.Verify(ctx, order.OrderID); !errors.Is(err, ErrAssetUnavailable) {
		t.Fatalf("expected ErrAssetUnavailable, got %v", err)
	}

	// Payment landed; delivery is still owed.
	got, err := e.GetOrder(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.PaymentStatus != domain.PaymentPaid || got.Fulfilled() {
		t.Fatalf("expected unfulfilled PAID order, got %+v", got)
	}

	if err := e.Assets.Save(project.FileName, strings.NewReader("%PDF-1.4 restored")); err != nil {
		t.Fatalf("restore asset: %v", err)
	}
	got, err = e.Verify(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("verify retry: %v", err)
	}
	if !got.Fulfilled() {
		t.Fatalf("expected fulfillment on retry")
	}
	if m.sent != 1 {
		t.Fatalf("expected 1 email, got %d", m.sent)
	}
}

func TestEmailFailureDoesNotBlockFulfillment(t *testing.T) {
	m := &stubMailer{err: errors.New("smtp: connection reset")}
	e := newTestEngine(t, &stubGateway{}, m)
	ctx := context.Background()
	project := seedProject(t, e, 300)

	order, _, err := e.CreateOrder(ctx, buyer(project.ID))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	got, err := e.DemoComplete(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("demo complete: %v", err)
	}
	if got.PaymentStatus != domain.PaymentPaid || !got.Fulfilled() {
		t.Fatalf("email failure blocked fulfillment: %+v", got)
	}
}

func TestDownloadGatedOnPayment(t *testing.T) {
	e := newTestEngine(t, &stubGateway{}, &stubMailer{})
	ctx := context.Background()
	project := seedProject(t, e, 300)

	order, _, err := e.CreateOrder(ctx, buyer(project.ID))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, _, err := e.Download(ctx, order.OrderID); !errors.Is(err, ErrNotPaid) {
		t.Fatalf("expected ErrNotPaid, got %v", err)
	}
	if _, err := e.DemoComplete(ctx, order.OrderID); err != nil {
		t.Fatalf("demo complete: %v", err)
	}
	rc, filename, err := e.Download(ctx, order.OrderID)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("empty download")
	}
	if filename != project.Title+".pdf" {
		t.Fatalf("unexpected filename %s", filename)
	}
}

func TestVerifyBySessionRef(t *testing.T) {
	gw := &stubGateway{configured: true, status: "paid"}
	e := newTestEngine(t, gw, &stubMailer{})
	ctx := context.Background()
	project := seedProject(t, e, 300)

	order, session, err := e.CreateOrder(ctx, buyer(project.ID))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	got, err := e.VerifyBySessionRef(ctx, session.Ref)
	if err != nil {
		t.Fatalf("verify by session ref: %v", err)
	}
	if got.OrderID != order.OrderID || got.PaymentStatus != domain.PaymentPaid {
		t.Fatalf("unexpected order %+v", got)
	}
	if _, err := e.VerifyBySessionRef(ctx, "sess_unknown"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
