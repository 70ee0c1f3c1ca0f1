package persistence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "outreach.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestProspectSearchLifecycle(t *testing.T) {
	store := openTestStore(t)

	id, err := store.CreateProspectSearch("session-1", "find CSOs at 5 biotechs")
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	require.NoError(t, store.FinishProspectSearch(id, "done"))
}

func TestAddProspectDeduplicatesByEmailCaseInsensitively(t *testing.T) {
	store := openTestStore(t)
	searchID, err := store.CreateProspectSearch("s", "r")
	require.NoError(t, err)

	first, err := store.AddProspect(&Prospect{
		SearchID: searchID, ContactName: "Ann Abel",
		Email: "ann@acme.bio", Company: "Acme", Status: "high",
	})
	require.NoError(t, err)
	require.Greater(t, first, int64(0))

	dup, err := store.AddProspect(&Prospect{
		SearchID: searchID, ContactName: "Ann T. Abel",
		Email: "ANN@ACME.BIO", Company: "ACME", Status: "verified",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), dup)

	// Same address at a different company is a distinct prospect.
	other, err := store.AddProspect(&Prospect{
		SearchID: searchID, ContactName: "Ann Abel",
		Email: "ann@acme.bio", Company: "Acme Ventures", Status: "high",
	})
	require.NoError(t, err)
	assert.Greater(t, other, int64(0))
}

func TestAddProspectDedupScopedToSearch(t *testing.T) {
	store := openTestStore(t)
	s1, err := store.CreateProspectSearch("a", "r")
	require.NoError(t, err)
	s2, err := store.CreateProspectSearch("b", "r")
	require.NoError(t, err)

	p := Prospect{ContactName: "Ann Abel", Email: "ann@acme.bio", Company: "Acme", Status: "high"}
	p.SearchID = s1
	id1, err := store.AddProspect(&p)
	require.NoError(t, err)
	require.Greater(t, id1, int64(0))

	p.SearchID = s2
	id2, err := store.AddProspect(&p)
	require.NoError(t, err)
	assert.Greater(t, id2, int64(0))
}

func TestAddProspectNameFallbackWhenEmailMissing(t *testing.T) {
	store := openTestStore(t)
	searchID, err := store.CreateProspectSearch("s", "r")
	require.NoError(t, err)

	id, err := store.AddProspect(&Prospect{
		SearchID: searchID, ContactName: "Bob Birch", Company: "Globex", Status: "high",
	})
	require.NoError(t, err)
	require.Greater(t, id, int64(0))

	dup, err := store.AddProspect(&Prospect{
		SearchID: searchID, ContactName: "bob birch", Company: "globex", Status: "high",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), dup)

	// An email row does not collide with the email-less one.
	withEmail, err := store.AddProspect(&Prospect{
		SearchID: searchID, ContactName: "Bob Birch",
		Email: "bob@globex.com", Company: "Globex", Status: "high",
	})
	require.NoError(t, err)
	assert.Greater(t, withEmail, int64(0))
}

func TestGetProspectsReturnsInsertionOrder(t *testing.T) {
	store := openTestStore(t)
	searchID, err := store.CreateProspectSearch("s", "r")
	require.NoError(t, err)

	names := []string{"Ann Abel", "Bob Birch", "Cay Cole"}
	for i, name := range names {
		_, err := store.AddProspect(&Prospect{
			SearchID: searchID, ContactName: name,
			Email: string(rune('a'+i)) + "@acme.bio", Company: "Acme", Status: "high",
		})
		require.NoError(t, err)
	}

	rows, err := store.GetProspects(searchID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, name := range names {
		assert.Equal(t, name, rows[i].ContactName)
	}
}

func TestCampaignLifecycle(t *testing.T) {
	store := openTestStore(t)

	id, err := store.CreateCampaign("spring-launch", "/out/spring-launch.csv")
	require.NoError(t, err)

	// Names are unique.
	_, err = store.CreateCampaign("spring-launch", "/out/other.csv")
	assert.Error(t, err)

	c, err := store.GetCampaign("spring-launch")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "draft", c.Status)
	assert.Equal(t, "/out/spring-launch.csv", c.CSVPath)

	missing, err := store.GetCampaign("no-such-campaign")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// Empty fields leave stored values untouched.
	require.NoError(t, store.UpdateCampaign(id, "https://sheets.example/1", "", "uploaded"))
	require.NoError(t, store.UpdateCampaign(id, "", "gmass-42", "sending"))

	c, err = store.GetCampaign("spring-launch")
	require.NoError(t, err)
	assert.Equal(t, "https://sheets.example/1", c.SheetURL)
	assert.Equal(t, "gmass-42", c.GMassID)
	assert.Equal(t, "sending", c.Status)
}

func TestLogEventAdvancesRecipientStatus(t *testing.T) {
	store := openTestStore(t)
	campaignID, err := store.CreateCampaign("events", "c.csv")
	require.NoError(t, err)
	recipientID, err := store.AddRecipient(&Recipient{
		CampaignID: campaignID, ContactName: "Ann Abel",
		Email: "ann@acme.bio", Company: "Acme", Language: "en",
	})
	require.NoError(t, err)

	recipient := func() Recipient {
		rows, err := store.GetRecipients(campaignID)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		return rows[0]
	}

	assert.Equal(t, "pending", recipient().Status)

	require.NoError(t, store.LogEvent(recipientID, "sent", ""))
	r := recipient()
	assert.Equal(t, "sent", r.Status)
	assert.Equal(t, 1, r.Stage)

	require.NoError(t, store.LogEvent(recipientID, "open", "pixel"))
	assert.Equal(t, "opened", recipient().Status)

	require.NoError(t, store.LogEvent(recipientID, "reply", "positive"))
	assert.Equal(t, "replied", recipient().Status)

	// Unknown events are recorded but do not move the status.
	require.NoError(t, store.LogEvent(recipientID, "forwarded", ""))
	assert.Equal(t, "replied", recipient().Status)
}

func TestRecipientsNeedingFollowup(t *testing.T) {
	store := openTestStore(t)
	campaignID, err := store.CreateCampaign("followups", "c.csv")
	require.NoError(t, err)

	sent, err := store.AddRecipient(&Recipient{
		CampaignID: campaignID, ContactName: "Ann Abel",
		Email: "ann@acme.bio", Company: "Acme", Language: "en",
	})
	require.NoError(t, err)
	replied, err := store.AddRecipient(&Recipient{
		CampaignID: campaignID, ContactName: "Bob Birch",
		Email: "bob@globex.com", Company: "Globex", Language: "en",
	})
	require.NoError(t, err)

	require.NoError(t, store.LogEvent(sent, "sent", ""))
	require.NoError(t, store.LogEvent(replied, "sent", ""))
	require.NoError(t, store.LogEvent(replied, "reply", ""))

	// daysSince 0 makes "just sent" old enough; replied contacts never
	// qualify.
	due, err := store.RecipientsNeedingFollowup(1, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "ann@acme.bio", due[0].Email)
}
