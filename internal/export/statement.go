// Package export renders account statements as XML documents.
package export

import (
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/mlebedev/payflow/internal/models"
)

// BuildStatement builds an XML statement for one account: current balance,
// the full schedule sequence with positions, and the last payment record
// when one exists.
func BuildStatement(account string, balance decimal.Decimal, schedules []models.PaymentSchedule, last *models.TransactionRecord, generatedAt time.Time) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	stmt := doc.CreateElement("Statement")
	stmt.CreateAttr("account", account)
	stmt.CreateAttr("generatedAt", generatedAt.UTC().Format(time.RFC3339))
	stmt.CreateElement("Balance").SetText(balance.String())

	list := stmt.CreateElement("Schedules")
	for i, s := range schedules {
		el := list.CreateElement("Schedule")
		el.CreateAttr("index", strconv.Itoa(i))
		el.CreateElement("Recipient").SetText(s.Recipient)
		el.CreateElement("Amount").SetText(s.Amount.String())
		el.CreateElement("Frequency").SetText(strconv.FormatInt(s.Frequency, 10))
		el.CreateElement("NextExecutionTime").SetText(strconv.FormatInt(s.NextExecutionTime, 10))
		if s.OpenEnded() {
			el.CreateElement("EndTime").SetText("none")
		} else {
			el.CreateElement("EndTime").SetText(strconv.FormatInt(s.EndTime, 10))
		}
	}

	if last != nil {
		tx := stmt.CreateElement("LastTransaction")
		tx.CreateElement("Recipient").SetText(last.Recipient)
		tx.CreateElement("Amount").SetText(last.Amount.String())
		tx.CreateElement("ExecutedAt").SetText(strconv.FormatInt(last.ExecutedAt, 10))
	}

	return doc
}
