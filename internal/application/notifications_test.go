package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filetrack/internal/domain"
)

func pendingFor(userID string, ids ...string) []domain.FileRecord {
	files := make([]domain.FileRecord, 0, len(ids))
	for _, id := range ids {
		files = append(files, domain.FileRecord{ID: id, Name: "Name " + id, Status: domain.StatusPending, AssignedTo: []string{userID}})
	}
	return files
}

func TestDetector_FirstObservationIsBaseline(t *testing.T) {
	d := NewDetector()
	notes := d.Observe(pendingFor("user-2", "A", "B"), "user-2", seededAt)
	assert.Empty(t, notes)
}

func TestDetector_EmitsOnlyNewPendingFiles(t *testing.T) {
	d := NewDetector()
	d.Observe(pendingFor("user-2", "A", "B"), "user-2", seededAt)

	notes := d.Observe(pendingFor("user-2", "A", "B", "C"), "user-2", seededAt)
	require.Len(t, notes, 1)
	assert.Equal(t, "C", notes[0].FileID)
	assert.Equal(t, `New file assigned: "Name C"`, notes[0].Message)
	assert.Equal(t, "notif-C-1717405200000", notes[0].ID)

	assert.Empty(t, d.Observe(pendingFor("user-2", "A", "B", "C"), "user-2", seededAt))
}

func TestDetector_IgnoresOtherUsersAndStatuses(t *testing.T) {
	d := NewDetector()
	d.Observe(nil, "user-2", seededAt)

	files := append(pendingFor("user-3", "X"), domain.FileRecord{ID: "Y", Status: domain.StatusSeen, AssignedTo: []string{"user-2"}})
	assert.Empty(t, d.Observe(files, "user-2", seededAt))
}

func TestInbox_ExpiresAndDismisses(t *testing.T) {
	b := NewInbox(5 * time.Second)
	b.Push(
		domain.Notification{ID: "n1", CreatedAt: seededAt},
		domain.Notification{ID: "n2", CreatedAt: seededAt.Add(2 * time.Second)},
	)

	assert.Len(t, b.Active(seededAt.Add(4*time.Second)), 2)

	active := b.Active(seededAt.Add(5 * time.Second))
	require.Len(t, active, 1)
	assert.Equal(t, "n2", active[0].ID)

	assert.True(t, b.Dismiss("n2"))
	assert.False(t, b.Dismiss("n2"))
	assert.Empty(t, b.Active(seededAt.Add(5*time.Second)))
}

func TestNotificationCenter_NotifiesOnNewAssignment(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.center.Watch(f.ctx, officerB.ID))

	require.NoError(t, f.center.Refresh(f.ctx))
	assert.Empty(t, f.center.Active(officerB.ID), "already pending files never notify")

	_, err := f.files.Forward(f.ctx, adminUser, "file-1", []string{officerB.ID})
	require.NoError(t, err)
	require.NoError(t, f.center.Refresh(f.ctx))

	active := f.center.Active(officerB.ID)
	require.Len(t, active, 1)
	assert.Equal(t, "file-1", active[0].FileID)

	assert.True(t, f.center.Dismiss(officerB.ID, active[0].ID))
	assert.Empty(t, f.center.Active(officerB.ID))

	f.center.Unwatch(officerB.ID)
	assert.False(t, f.center.Dismiss(officerB.ID, "anything"))
	assert.Empty(t, f.center.Active(officerB.ID))
}

func TestNotificationCenter_ExpiresAfterTTL(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.center.Watch(f.ctx, officerB.ID))
	_, err := f.files.Forward(f.ctx, adminUser, "file-1", []string{officerB.ID})
	require.NoError(t, err)
	require.NoError(t, f.center.Refresh(f.ctx))
	require.Len(t, f.center.Active(officerB.ID), 1)

	f.now = f.now.Add(DefaultNotificationTTL)
	assert.Empty(t, f.center.Active(officerB.ID))
}
