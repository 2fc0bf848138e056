package calculator

import (
	"github.com/mmynk/posrecon/internal/models"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func stmt(id, date, net, ref string) *models.BankStatement {
	s := &models.BankStatement{
		ID:              id,
		TransactionDate: models.MustDate(date),
		ReferenceNumber: ref,
		Status:          models.StatusPending,
	}
	amount := dec(net)
	if amount.IsNegative() {
		s.DebitAmount = amount.Neg()
	} else {
		s.CreditAmount = amount
	}
	return s
}

func agg(id, date, nett, ref string) *models.AggregatedTransaction {
	return &models.AggregatedTransaction{
		ID:              id,
		TransactionDate: models.MustDate(date),
		NettAmount:      dec(nett),
		GrossAmount:     dec(nett),
		ReferenceNumber: ref,
		PaymentMethod:   "QRIS",
	}
}
