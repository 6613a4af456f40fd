package notify

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/Myenum2412/app.client.proultima-sub003/internal/auth"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/httperr"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/models"
	"github.com/Myenum2412/app.client.proultima-sub003/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap/zaptest"
)

func TestNotifyHandlers(t *testing.T) {
	svc, db := newTestService(t, &fakeMailer{})
	staff := testutil.CreateUser(t, db, "Meera", "meera@example.com", models.RoleStaff, true)
	admin := testutil.CreateUser(t, db, "Ravi", "ravi@example.com", models.RoleAdmin, true)
	tx := storedTx(t, db, staff.ID, models.VerificationPending)

	app := fiber.New(fiber.Config{ErrorHandler: httperr.Handler(zaptest.NewLogger(t))})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.CtxUserIDKey, admin.ID)
		c.Locals(auth.CtxUserRoleKey, models.RoleAdmin)
		return c.Next()
	})
	app.Post("/notifications/notify", NotifyHandler(svc))
	app.Get("/notifications", ListHandler(svc))
	app.Post("/notifications/:id/view", MarkViewedHandler(svc))

	resp := testutil.Do(t, app, http.MethodPost, "/notifications/notify", map[string]any{
		"scenario":    "pending",
		"transaction": map[string]any{"id": tx.ID, "branch": "ignored"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("notify status = %d", resp.StatusCode)
	}
	var out Outcome
	testutil.Decode(t, resp, &out)
	if !out.Success || out.Count != 1 {
		t.Fatalf("notify outcome = %+v", out)
	}

	resp = testutil.Do(t, app, http.MethodPost, "/notifications/notify", map[string]any{"transaction": map[string]any{"id": tx.ID}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing scenario status = %d, want 400", resp.StatusCode)
	}
	resp = testutil.Do(t, app, http.MethodPost, "/notifications/notify", map[string]any{"scenario": "pending", "transaction": map[string]any{}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing id status = %d, want 400", resp.StatusCode)
	}

	resp = testutil.Do(t, app, http.MethodGet, "/notifications?unviewed=true", nil)
	var list []models.Notification
	testutil.Decode(t, resp, &list)
	if len(list) != 1 || list[0].Message == "" {
		t.Fatalf("list = %+v", list)
	}
	if list[0].Metadata["branch"] != "Kochi" {
		t.Errorf("stored transaction should win over payload, metadata = %v", list[0].Metadata)
	}

	resp = testutil.Do(t, app, http.MethodPost, fmt.Sprintf("/notifications/%d/view", list[0].ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("view status = %d", resp.StatusCode)
	}
	resp = testutil.Do(t, app, http.MethodPost, "/notifications/abc/view", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", resp.StatusCode)
	}
}

func TestComposeMessages(t *testing.T) {
	note := "duplicate"
	tx := models.CashTransaction{
		Branch: "Kochi", VoucherNo: "CO004", CashOut: mustDec("200"),
		AttachmentURLs: []string{"a.jpg"}, VerificationNotes: &note,
	}

	c := compose(models.ScenarioRejected, tx, "Meera")
	want := "The Expense of ₹200.00 at Kochi (voucher CO004) recorded by Meera was rejected. Reason: duplicate"
	if c.Message != want {
		t.Errorf("message = %q\nwant      %q", c.Message, want)
	}
	if c.Metadata["has_proof"] != true || c.Metadata["amount"] != "200.00" {
		t.Errorf("metadata = %v", c.Metadata)
	}

	c = compose(models.ScenarioPending, models.CashTransaction{Branch: "Kochi", CashIn: mustDec("50")}, "")
	if c.Message != "A staff member recorded an Income of ₹50.00 at Kochi. No proof attached." {
		t.Errorf("pending message = %q", c.Message)
	}
}
