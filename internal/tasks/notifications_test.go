package tasks

import (
	"testing"
	"time"

	"github.com/desertthunder/a2s/internal/models"
	tu "github.com/desertthunder/a2s/internal/testing"
)

func TestNotificationCenter(t *testing.T) {
	t.Run("Dismissed After TTL", func(t *testing.T) {
		c := NewNotificationCenter(10*time.Millisecond, nil)
		defer c.Close()

		c.Success("Transcription completed for a.mp3")
		if n := len(c.Active()); n != 1 {
			t.Fatalf("expected 1 active notification, got %d", n)
		}
		tu.Eventually(t, time.Second, func() bool { return len(c.Active()) == 0 }, "notification should expire")
	})

	t.Run("Dismiss Early", func(t *testing.T) {
		c := NewNotificationCenter(time.Minute, nil)
		defer c.Close()

		n := c.Error("Upload failed")
		c.Info("kept")

		if !c.Dismiss(n.ID) {
			t.Error("expected Dismiss to report removal")
		}
		if c.Dismiss(n.ID) {
			t.Error("second Dismiss must be a no-op")
		}

		active := c.Active()
		if len(active) != 1 || active[0].Message != "kept" {
			t.Errorf("unexpected active notifications: %+v", active)
		}
	})

	t.Run("OnPost And Close", func(t *testing.T) {
		var posted []models.Notification
		c := NewNotificationCenter(time.Minute, func(n models.Notification) { posted = append(posted, n) })

		c.Info("one")
		c.Close()
		c.Info("two")

		if len(posted) != 1 || posted[0].Severity != models.SeverityInfo {
			t.Errorf("expected one posted info notification, got %+v", posted)
		}
		if n := len(c.Active()); n != 0 {
			t.Errorf("expected no notifications after Close, got %d", n)
		}
	})
}
