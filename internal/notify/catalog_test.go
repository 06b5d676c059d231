package notify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/subwatch/subwatch/internal/models"
)

func TestIsKnownType(t *testing.T) {
	for _, typ := range Types() {
		require.True(t, IsKnownType(typ), typ)
	}
	require.False(t, IsKnownType("mystery_event"))
	require.False(t, IsKnownType(""))
}

func TestRenderRenewalUpcoming(t *testing.T) {
	data := EventData{
		Username:         "alice",
		SubscriptionID:   "sub-1",
		SubscriptionName: "Netflix",
		DaysLeft:         3,
	}

	user, err := Render(TypeRenewalUpcoming, models.AudienceUser, data)
	require.NoError(t, err)
	require.Equal(t, "Your subscription renews soon", user.Title)
	require.Contains(t, user.Message, "Netflix")
	require.Contains(t, user.Message, "3 days")
	require.Equal(t, "/subscriptions/sub-1", user.URL)

	admin, err := Render(TypeRenewalUpcoming, models.AudienceAdmin, data)
	require.NoError(t, err)
	require.Contains(t, admin.Message, "alice")
	require.NotEqual(t, user.Message, admin.Message)
}

func TestRenderSingularDay(t *testing.T) {
	content, err := Render(TypeRenewalUpcoming, models.AudienceUser, EventData{
		SubscriptionName: "Spotify",
		DaysLeft:         1,
	})
	require.NoError(t, err)
	require.Contains(t, content.Message, "1 day.")
}

func TestRenderInvoiceOverdue(t *testing.T) {
	content, err := Render(TypeInvoiceOverdue, models.AudienceUser, EventData{
		InvoiceID:     "inv-9",
		InvoiceNumber: "INV-2026-009",
		Amount:        49.9,
		Currency:      "EUR",
		DaysOverdue:   5,
	})
	require.NoError(t, err)
	require.Equal(t, "Invoice overdue", content.Title)
	require.Contains(t, content.Message, "INV-2026-009")
	require.Contains(t, content.Message, "49.90 EUR")
	require.Contains(t, content.Message, "5 days overdue")
	require.Equal(t, "/invoices/inv-9", content.URL)
}

func TestRenderDefaultsCurrency(t *testing.T) {
	content, err := Render(TypePaymentDue, models.AudienceUser, EventData{
		InvoiceNumber: "INV-1",
		Amount:        10,
		DaysLeft:      3,
	})
	require.NoError(t, err)
	require.Contains(t, content.Message, "10.00 USD")
}

func TestRenderBroadcastHasNoTemplate(t *testing.T) {
	content, err := Render(TypeBroadcast, models.AudienceUser, EventData{})
	require.NoError(t, err)
	require.Empty(t, content.Title)
	require.Empty(t, content.Message)
}

func TestRenderUnknownType(t *testing.T) {
	_, err := Render("mystery_event", models.AudienceUser, EventData{})
	require.Error(t, err)
}
