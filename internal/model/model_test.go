package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringListRoundTripsThroughColumn(t *testing.T) {
	v, err := StringList{"firstName", "contact.company"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["firstName","contact.company"]`, v)

	var l StringList
	require.NoError(t, l.Scan([]byte(`["a","b"]`)))
	assert.Equal(t, StringList{"a", "b"}, l)
}

func TestStringListNilAndEmpty(t *testing.T) {
	v, err := StringList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	var l StringList
	require.NoError(t, l.Scan(nil))
	assert.Equal(t, StringList{}, l)

	require.NoError(t, l.Scan(""))
	assert.Equal(t, StringList{}, l)

	assert.Error(t, l.Scan(42))
}

func TestNormalizeTags(t *testing.T) {
	assert.Equal(t, StringList{"lead", "vip"}, NormalizeTags([]string{" vip", "lead", "vip ", "", "lead"}))
	assert.Equal(t, StringList{}, NormalizeTags(nil))
}

func TestContactVariablesSupplyAllFourKeys(t *testing.T) {
	c := Contact{Email: "ana@example.com", FirstName: "Ana"}
	assert.Equal(t, map[string]string{
		"firstName": "Ana",
		"lastName":  "",
		"email":     "ana@example.com",
		"company":   "",
	}, c.Variables())

	company := "Acme"
	c.Company = &company
	assert.Equal(t, "Acme", c.Variables()["company"])
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, CampaignPartiallySent.Valid())
	assert.False(t, CampaignStatus("Archived").Valid())
	assert.True(t, CampaignScheduled.Editable())
	assert.False(t, CampaignSending.Editable())

	assert.True(t, RecipientScheduled.Pending())
	assert.True(t, RecipientDraft.Pending())
	assert.False(t, RecipientSent.Pending())
	assert.True(t, RecipientBounced.Valid())
	assert.False(t, RecipientStatus("Queued").Valid())
}
