package notify

import (
	"fmt"
	"strings"

	"github.com/Myenum2412/app.client.proultima-sub003/internal/models"

	"gorm.io/datatypes"
)

type content struct {
	Type     string
	Title    string
	Message  string
	Metadata datatypes.JSONMap
}

func compose(scenario models.NotificationScenario, tx models.CashTransaction, staffName string) content {
	if strings.TrimSpace(staffName) == "" {
		staffName = "A staff member"
	}

	kind := tx.KindLabel()
	amount := "₹" + tx.Amount().StringFixed(2)
	proof := "No proof attached."
	if tx.HasProof() {
		proof = "Proof attached."
	}
	subject := fmt.Sprintf("%s of %s at %s", kind, amount, tx.Branch)
	if tx.VoucherNo != "" {
		subject += fmt.Sprintf(" (voucher %s)", tx.VoucherNo)
	}

	c := content{
		Metadata: datatypes.JSONMap{
			"branch":            tx.Branch,
			"amount":            tx.Amount().StringFixed(2),
			"transaction_type":  strings.ToLower(kind),
			"has_proof":         tx.HasProof(),
			"requires_approval": scenario == models.ScenarioPending,
			"voucher_no":        tx.VoucherNo,
		},
	}

	switch scenario {
	case models.ScenarioPending:
		c.Type = models.NotificationTypeCashbookPending
		c.Title = "Cashbook entry awaiting approval"
		c.Message = fmt.Sprintf("%s recorded an %s. %s", staffName, subject, proof)
	case models.ScenarioAutoApproved:
		c.Type = models.NotificationTypeCashbookAutoApproved
		c.Title = "Cashbook entry auto-approved"
		c.Message = fmt.Sprintf("%s recorded an %s. It was approved automatically. %s", staffName, subject, proof)
	case models.ScenarioApproved:
		c.Type = models.NotificationTypeCashbookApproved
		c.Title = "Cashbook entry approved"
		c.Message = fmt.Sprintf("The %s recorded by %s was approved.", subject, staffName)
	case models.ScenarioRejected:
		c.Type = models.NotificationTypeCashbookRejected
		c.Title = "Cashbook entry rejected"
		c.Message = fmt.Sprintf("The %s recorded by %s was rejected.", subject, staffName)
		if tx.VerificationNotes != nil && strings.TrimSpace(*tx.VerificationNotes) != "" {
			c.Message += " Reason: " + strings.TrimSpace(*tx.VerificationNotes)
			c.Metadata["reason"] = strings.TrimSpace(*tx.VerificationNotes)
		}
	}

	return c
}
