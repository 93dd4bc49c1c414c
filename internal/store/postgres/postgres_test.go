//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/meetsign/meetsign/internal/config"
	"github.com/meetsign/meetsign/internal/store"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func testEmbedding(seed float32) []float32 {
	emb := make([]float32, 512)
	for i := range emb {
		emb[i] = seed + float32(i)/512.0
	}
	return emb
}

func seedMeeting(t *testing.T, pool *Pool, repo *MeetingRepository, meetingID string, userIDs ...string) {
	t.Helper()
	ctx := context.Background()

	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)
	_, err := pool.Exec(ctx, `
		INSERT INTO meetings (id, name, sign_start, sign_end)
		VALUES ($1, $2, $3, $4)
	`, meetingID, "standup "+meetingID, start, end)
	if err != nil {
		t.Fatalf("Failed to insert meeting: %v", err)
	}

	for i, userID := range userIDs {
		if err := repo.SaveTemplate(ctx, userID, "User "+userID, testEmbedding(float32(i))); err != nil {
			t.Fatalf("Failed to save template: %v", err)
		}
		if err := repo.AddAttendee(ctx, meetingID, userID); err != nil {
			t.Fatalf("Failed to add attendee: %v", err)
		}
	}
}

func TestMeetingRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewMeetingRepository(pool)
	seedMeeting(t, pool, repo, "m1", "U1", "U2")

	t.Run("GetMeeting", func(t *testing.T) {
		m, err := repo.GetMeeting(ctx, "m1")
		if err != nil {
			t.Fatalf("GetMeeting() error: %v", err)
		}
		if m.ID != "m1" {
			t.Errorf("meeting ID = %q, want m1", m.ID)
		}
		if !m.SignEnd.After(m.SignStart) {
			t.Error("sign window is inverted")
		}
	})

	t.Run("GetMeetingNotFound", func(t *testing.T) {
		_, err := repo.GetMeeting(ctx, "nope")
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("GetAttendeeTemplates", func(t *testing.T) {
		templates, err := repo.GetAttendeeTemplates(ctx, "m1")
		if err != nil {
			t.Fatalf("GetAttendeeTemplates() error: %v", err)
		}
		if len(templates) != 2 {
			t.Fatalf("got %d templates, want 2", len(templates))
		}
		for _, tpl := range templates {
			if len(tpl.Embedding) != 512 {
				t.Errorf("template %s has %d dims, want 512", tpl.UserID, len(tpl.Embedding))
			}
		}
	})

	t.Run("LatestTemplateWins", func(t *testing.T) {
		updated := testEmbedding(42)
		if err := repo.SaveTemplate(ctx, "U1", "User U1", updated); err != nil {
			t.Fatalf("SaveTemplate() error: %v", err)
		}

		templates, err := repo.GetAttendeeTemplates(ctx, "m1")
		if err != nil {
			t.Fatalf("GetAttendeeTemplates() error: %v", err)
		}
		for _, tpl := range templates {
			if tpl.UserID == "U1" && tpl.Embedding[0] != updated[0] {
				t.Errorf("U1 template not refreshed: first dim = %v, want %v", tpl.Embedding[0], updated[0])
			}
		}
	})

	t.Run("SaveSignInFirstWriteWins", func(t *testing.T) {
		first := store.SignInRow{
			MeetingID:  "m1",
			UserID:     "U1",
			Similarity: 0.91,
			SignTime:   time.Now().Truncate(time.Second),
		}
		if err := repo.SaveSignIn(ctx, first); err != nil {
			t.Fatalf("SaveSignIn() error: %v", err)
		}

		second := first
		second.Similarity = 0.50
		if err := repo.SaveSignIn(ctx, second); err != nil {
			t.Fatalf("repeated SaveSignIn() error: %v", err)
		}

		var similarity float64
		err := pool.QueryRow(ctx,
			`SELECT similarity FROM sign_ins WHERE meeting_id = $1 AND user_id = $2`,
			"m1", "U1").Scan(&similarity)
		if err != nil {
			t.Fatalf("query sign-in: %v", err)
		}
		if similarity != 0.91 {
			t.Errorf("similarity = %v, want the first write's 0.91", similarity)
		}
	})

	t.Run("UpdateSignEvidence", func(t *testing.T) {
		if err := repo.UpdateSignEvidence(ctx, "m1", "U1", "m1_U1_frame.jpg"); err != nil {
			t.Fatalf("UpdateSignEvidence() error: %v", err)
		}

		var ref string
		err := pool.QueryRow(ctx,
			`SELECT evidence_ref FROM sign_ins WHERE meeting_id = $1 AND user_id = $2`,
			"m1", "U1").Scan(&ref)
		if err != nil {
			t.Fatalf("query sign-in: %v", err)
		}
		if ref != "m1_U1_frame.jpg" {
			t.Errorf("evidence_ref = %q", ref)
		}
	})

	t.Run("FindUserByNameNormalized", func(t *testing.T) {
		if err := repo.SaveTemplate(ctx, "U9", "Jan Novák", testEmbedding(9)); err != nil {
			t.Fatalf("SaveTemplate() error: %v", err)
		}

		u, err := repo.FindUserByName(ctx, "jan-novak")
		if err != nil {
			t.Fatalf("FindUserByName() error: %v", err)
		}
		if u.ID != "U9" {
			t.Errorf("found user %q, want U9", u.ID)
		}

		if _, err := repo.FindUserByName(ctx, "nobody at all"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DeleteTemplates", func(t *testing.T) {
		if err := repo.SaveTemplate(ctx, "U8", "Temp User", testEmbedding(8)); err != nil {
			t.Fatalf("SaveTemplate() error: %v", err)
		}
		if err := repo.SaveTemplate(ctx, "U8", "Temp User", testEmbedding(8.5)); err != nil {
			t.Fatalf("SaveTemplate() error: %v", err)
		}

		n, err := repo.DeleteTemplates(ctx, "U8")
		if err != nil {
			t.Fatalf("DeleteTemplates() error: %v", err)
		}
		if n != 2 {
			t.Errorf("deleted %d templates, want 2", n)
		}

		n, err = repo.DeleteTemplates(ctx, "U8")
		if err != nil {
			t.Fatalf("repeated DeleteTemplates() error: %v", err)
		}
		if n != 0 {
			t.Errorf("deleted %d templates on empty user, want 0", n)
		}
	})
}
