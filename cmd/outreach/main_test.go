package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach/pkg/persistence"
)

func openTestStore(t *testing.T) *persistence.Store {
	t.Helper()
	store, err := persistence.Open(filepath.Join(t.TempDir(), "outreach.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedCampaign(t *testing.T, store *persistence.Store) (int64, int64) {
	t.Helper()
	campaignID, err := store.CreateCampaign("spring_launch", "out/spring_launch.csv")
	require.NoError(t, err)
	recipientID, err := store.AddRecipient(&persistence.Recipient{
		CampaignID:  campaignID,
		ContactName: "Dee Dunn",
		Email:       "dee@acme.bio",
		Company:     "Acme Bio",
	})
	require.NoError(t, err)
	return campaignID, recipientID
}

func TestRunEventAdvancesRecipient(t *testing.T) {
	store := openTestStore(t)
	campaignID, recipientID := seedCampaign(t, store)

	err := runEvent(store, &options{recipient: recipientID, kind: "sent"})
	require.NoError(t, err)

	recipients, err := store.GetRecipients(campaignID)
	require.NoError(t, err)
	require.Len(t, recipients, 1)
	assert.Equal(t, "sent", recipients[0].Status)
	assert.Equal(t, 1, recipients[0].Stage)
}

func TestRunEventValidatesFlags(t *testing.T) {
	store := openTestStore(t)

	err := runEvent(store, &options{kind: "sent"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-recipient")

	err = runEvent(store, &options{recipient: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-kind")
}

func TestRunReportUnknownCampaign(t *testing.T) {
	store := openTestStore(t)

	err := runReport(store, "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no campaign")

	require.Error(t, runReport(store, ""))
}

func TestRunReportListsRecipients(t *testing.T) {
	store := openTestStore(t)
	seedCampaign(t, store)

	require.NoError(t, runReport(store, "spring_launch"))
}

func TestRunFollowupListsDueRecipients(t *testing.T) {
	store := openTestStore(t)
	_, recipientID := seedCampaign(t, store)
	require.NoError(t, store.LogEvent(recipientID, "sent", ""))

	// daysSince 0 makes the just-sent recipient due immediately.
	require.NoError(t, runFollowup(store, 1, 0))
	require.NoError(t, runFollowup(store, 2, 0))
}

func TestSplitCompanies(t *testing.T) {
	assert.Equal(t, []string{"Acme", "Globex"}, splitCompanies(" Acme , Globex ,"))
	assert.Nil(t, splitCompanies(" , "))
}
