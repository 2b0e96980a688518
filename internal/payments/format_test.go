package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func amountPtr(v int64) *int64 { return &v }

func TestFormatCurrency(t *testing.T) {
	tests := []struct {
		amount *int64
		want   string
	}{
		{nil, "Unknown"},
		{amountPtr(0), "$0.00"},
		{amountPtr(5), "$0.05"},
		{amountPtr(2500), "$25.00"},
		{amountPtr(123456), "$1,234.56"},
		{amountPtr(100000000), "$1,000,000.00"},
		{amountPtr(-1999), "-$19.99"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCurrency(tt.amount))
	}
}

func TestMessages(t *testing.T) {
	f := paymentFacts{Email: "ana@example.com", Amount: amountPtr(2500), Plan: "Growth", ObjectID: "pi_1"}

	m := customerPaymentReceived(f, "Carolina Growth")
	assert.Equal(t, "Payment received", m.Subject)
	assert.Equal(t, "Hi there,\n\nThanks for your payment with Carolina Growth.\nAmount: $25.00\nPlan: Growth\n\nWe will follow up shortly.", m.Body)

	admin := adminPaymentFailed(f)
	assert.Equal(t, "Stripe payment failed", admin.Subject)
	assert.Contains(t, admin.Body, "Name: Unknown")
	assert.Contains(t, admin.Body, "Reason: Unknown")

	assert.Equal(t, "Stripe payment succeeded\nPlan: Growth\nAmount: 2500\nPayment intent: pi_1", leadDetailsPayment(f))
	assert.Contains(t, leadDetailsInvoice(paymentFacts{Plan: "P", ObjectID: "in_1"}), "Subscription: n/a")
	assert.Contains(t, leadDetailsInvoice(paymentFacts{Plan: "P", ObjectID: "in_1"}), "Amount paid: Unknown")
}
