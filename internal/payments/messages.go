package payments

import (
	"fmt"
	"strings"
)

// message is a rendered notification.
type message struct {
	Subject string
	Body    string
}

func lines(parts ...string) string {
	return strings.Join(parts, "\n")
}

func greeting(name string) string {
	return fmt.Sprintf("Hi %s,", orDefault(name, "there"))
}

type paymentFacts struct {
	Email          string
	Name           string
	Amount         *int64
	Plan           string
	ObjectID       string
	SubscriptionID string
	Reason         string
}

func customerPaymentReceived(f paymentFacts, brand string) message {
	return message{
		Subject: "Payment received",
		Body: lines(
			greeting(f.Name),
			"",
			fmt.Sprintf("Thanks for your payment with %s.", brand),
			"Amount: "+FormatCurrency(f.Amount),
			"Plan: "+f.Plan,
			"",
			"We will follow up shortly.",
		),
	}
}

func adminPaymentReceived(f paymentFacts) message {
	return message{
		Subject: "Stripe payment received",
		Body: lines(
			"New Stripe payment",
			"Email: "+orDefault(f.Email, "Unknown"),
			"Name: "+orDefault(f.Name, "Unknown"),
			"Amount: "+FormatCurrency(f.Amount),
			"Plan: "+f.Plan,
			"Payment intent: "+f.ObjectID,
		),
	}
}

func leadDetailsPayment(f paymentFacts) string {
	return lines(
		"Stripe payment succeeded",
		"Plan: "+f.Plan,
		"Amount: "+formatAmountRaw(f.Amount),
		"Payment intent: "+f.ObjectID,
	)
}

func customerPaymentFailed(f paymentFacts, brand string) message {
	return message{
		Subject: "Payment failed",
		Body: lines(
			greeting(f.Name),
			"",
			"We were unable to process your payment.",
			"Amount: "+FormatCurrency(f.Amount),
			"Please retry or contact us if you need help.",
			"",
			"— "+brand,
		),
	}
}

func adminPaymentFailed(f paymentFacts) message {
	return message{
		Subject: "Stripe payment failed",
		Body: lines(
			"Stripe payment failed",
			"Email: "+orDefault(f.Email, "Unknown"),
			"Name: "+orDefault(f.Name, "Unknown"),
			"Amount: "+FormatCurrency(f.Amount),
			"Payment intent: "+f.ObjectID,
			"Reason: "+orDefault(f.Reason, "Unknown"),
		),
	}
}

func customerInvoicePaid(f paymentFacts, brand string) message {
	return message{
		Subject: "Subscription payment received",
		Body: lines(
			greeting(f.Name),
			"",
			fmt.Sprintf("Thanks for your subscription payment with %s.", brand),
			"Amount: "+FormatCurrency(f.Amount),
			"Plan: "+f.Plan,
			"",
			"We will follow up shortly.",
		),
	}
}

func adminInvoicePaid(f paymentFacts) message {
	return message{
		Subject: "Stripe subscription payment",
		Body: lines(
			"Stripe subscription payment received",
			"Email: "+orDefault(f.Email, "Unknown"),
			"Name: "+orDefault(f.Name, "Unknown"),
			"Amount: "+FormatCurrency(f.Amount),
			"Plan: "+f.Plan,
			"Invoice: "+f.ObjectID,
			"Subscription: "+orDefault(f.SubscriptionID, "n/a"),
		),
	}
}

func leadDetailsInvoice(f paymentFacts) string {
	return lines(
		"Stripe invoice paid",
		"Plan: "+f.Plan,
		"Amount paid: "+formatAmountRaw(f.Amount),
		"Invoice: "+f.ObjectID,
		"Subscription: "+orDefault(f.SubscriptionID, "n/a"),
	)
}

func customerInvoiceFailed(f paymentFacts, brand string) message {
	return message{
		Subject: "Invoice payment failed",
		Body: lines(
			greeting(f.Name),
			"",
			"We were unable to collect your invoice payment.",
			"Amount: "+FormatCurrency(f.Amount),
			"Please update your payment method or contact us for help.",
			"",
			"— "+brand,
		),
	}
}

func adminInvoiceFailed(f paymentFacts) message {
	return message{
		Subject: "Stripe invoice payment failed",
		Body: lines(
			"Stripe invoice payment failed",
			"Email: "+orDefault(f.Email, "Unknown"),
			"Name: "+orDefault(f.Name, "Unknown"),
			"Amount: "+FormatCurrency(f.Amount),
			"Invoice: "+f.ObjectID,
			"Reason: "+orDefault(f.Reason, "Unknown"),
		),
	}
}

func alertStorageMissing() message {
	return message{
		Subject: "Stripe transaction storage missing",
		Body:    "LEDGER_DATABASE_URL is not configured in production. Webhook aborted.",
	}
}

func alertStorageFailure(eventID string) message {
	return message{
		Subject: "Stripe transaction storage failure",
		Body:    fmt.Sprintf("Failed to store Stripe transaction event %s.", eventID),
	}
}
