package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	key, err := ParseKey("  CRM.Customers.Contact.Read ")
	require.NoError(t, err)
	assert.Equal(t, Key("crm.customers.contact.read"), key)

	for _, raw := range []string{"", "  ", "single", "double..dot", ".leading", "trailing."} {
		_, err := ParseKey(raw)
		assert.ErrorIs(t, err, ErrInvalidKey, "raw=%q", raw)
	}
}

func TestKeyAccessors(t *testing.T) {
	key := Key("fi.invoices.invoice.create")
	assert.Equal(t, "fi", key.Module())
	assert.Equal(t, "create", key.Action())
	assert.Equal(t, []string{"fi", "invoices", "invoice", "create"}, key.Segments())
}

func TestHasPrefix_SegmentBoundaries(t *testing.T) {
	key := Key("crm.customers.contact.read")

	assert.True(t, key.HasPrefix("crm"))
	assert.True(t, key.HasPrefix("crm.customers"))
	assert.True(t, key.HasPrefix("crm.customers.contact.read"))

	assert.False(t, key.HasPrefix("crm.customersx"))
	assert.False(t, key.HasPrefix("crm.cust"))
	assert.False(t, key.HasPrefix(""))
}
