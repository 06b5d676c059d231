package notify

import (
	"fmt"

	"github.com/subwatch/subwatch/internal/models"
)

// Notification types understood by the engine. The catalog is closed:
// sweeps and the admin broadcast path only ever emit these tags.
const (
	TypeRenewalUpcoming     = "renewal_upcoming"
	TypeSubscriptionExpired = "subscription_expired"
	TypePaymentDue          = "payment_due"
	TypeInvoiceOverdue      = "invoice_overdue"
	TypeBroadcast           = "broadcast"
)

var knownTypes = map[string]struct{}{
	TypeRenewalUpcoming:     {},
	TypeSubscriptionExpired: {},
	TypePaymentDue:          {},
	TypeInvoiceOverdue:      {},
	TypeBroadcast:           {},
}

// IsKnownType reports whether the supplied tag is part of the catalog.
func IsKnownType(eventType string) bool {
	_, ok := knownTypes[eventType]
	return ok
}

// Types lists every catalogued notification type.
func Types() []string {
	return []string{
		TypeRenewalUpcoming,
		TypeSubscriptionExpired,
		TypePaymentDue,
		TypeInvoiceOverdue,
		TypeBroadcast,
	}
}

// Content is the rendered display text plus deep link for one notification.
type Content struct {
	Title   string
	Message string
	URL     string
}

// EventData parameterises the catalog templates.
type EventData struct {
	Username         string
	SubscriptionID   string
	SubscriptionName string
	InvoiceID        string
	InvoiceNumber    string
	Amount           float64
	Currency         string
	DaysLeft         int
	DaysOverdue      int
}

// Render produces the display content for an event type and audience.
// Admin copies name the affected user since admin records have no owner.
func Render(eventType, audience string, data EventData) (Content, error) {
	admin := audience == models.AudienceAdmin

	switch eventType {
	case TypeRenewalUpcoming:
		c := Content{URL: subscriptionURL(data.SubscriptionID)}
		switch {
		case admin:
			c.Title = "Subscription renewal due"
			c.Message = fmt.Sprintf("%s: subscription %q renews in %s.",
				data.Username, data.SubscriptionName, days(data.DaysLeft))
		default:
			c.Title = "Your subscription renews soon"
			c.Message = fmt.Sprintf("Your %q subscription renews in %s.",
				data.SubscriptionName, days(data.DaysLeft))
		}
		return c, nil

	case TypeSubscriptionExpired:
		c := Content{URL: subscriptionURL(data.SubscriptionID)}
		if admin {
			c.Title = "Subscription expired"
			c.Message = fmt.Sprintf("%s: subscription %q expired today.",
				data.Username, data.SubscriptionName)
		} else {
			c.Title = "Your subscription has expired"
			c.Message = fmt.Sprintf("Your %q subscription expired today.", data.SubscriptionName)
		}
		return c, nil

	case TypePaymentDue:
		c := Content{URL: invoiceURL(data.InvoiceID)}
		if admin {
			c.Title = "Payment due"
			c.Message = fmt.Sprintf("%s: invoice %s (%s) is due in %s.",
				data.Username, data.InvoiceNumber, money(data.Amount, data.Currency), days(data.DaysLeft))
		} else {
			c.Title = "Payment due soon"
			c.Message = fmt.Sprintf("Invoice %s (%s) is due in %s.",
				data.InvoiceNumber, money(data.Amount, data.Currency), days(data.DaysLeft))
		}
		return c, nil

	case TypeInvoiceOverdue:
		c := Content{URL: invoiceURL(data.InvoiceID)}
		if admin {
			c.Title = "Invoice overdue"
			c.Message = fmt.Sprintf("%s: invoice %s (%s) is %s overdue.",
				data.Username, data.InvoiceNumber, money(data.Amount, data.Currency), days(data.DaysOverdue))
		} else {
			c.Title = "Invoice overdue"
			c.Message = fmt.Sprintf("Invoice %s (%s) is %s overdue. Please arrange payment.",
				data.InvoiceNumber, money(data.Amount, data.Currency), days(data.DaysOverdue))
		}
		return c, nil

	case TypeBroadcast:
		// Broadcast content is caller-supplied; the catalog only vouches
		// for the type tag and has no template.
		return Content{}, nil

	default:
		return Content{}, fmt.Errorf("unknown notification type %q", eventType)
	}
}

func subscriptionURL(id string) string {
	return "/subscriptions/" + id
}

func invoiceURL(id string) string {
	return "/invoices/" + id
}

func days(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

func money(amount float64, currency string) string {
	if currency == "" {
		currency = "USD"
	}
	return fmt.Sprintf("%.2f %s", amount, currency)
}
