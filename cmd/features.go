package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/meetsign/meetsign/internal/config"
	"github.com/meetsign/meetsign/internal/embedding"
	"github.com/meetsign/meetsign/internal/store"
	"github.com/meetsign/meetsign/internal/store/postgres"
)

var featuresCmd = &cobra.Command{
	Use:   "features <meetingID>",
	Short: "Export a meeting's face features to a JSON file",
	Long: `Export the reference face embeddings of a meeting's attendees as a
JSON file for offline check-in devices. The payload matches the
/meetings/{id}/features API endpoint.`,
	Args: cobra.ExactArgs(1),
	RunE: runFeatures,
}

func init() {
	rootCmd.AddCommand(featuresCmd)

	featuresCmd.Flags().String("out", "features.json", "Output file path")
}

// featuresFile mirrors the features API payload.
type featuresFile struct {
	MeetingID   string            `json:"meeting_id"`
	MeetingName string            `json:"meeting_name"`
	Count       int               `json:"count"`
	Features    map[string]string `json:"features"`
}

func runFeatures(cmd *cobra.Command, args []string) error {
	meetingID := args[0]
	outPath := mustGetString(cmd, "out")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	repo := postgres.NewMeetingRepository(pool)
	ctx := context.Background()

	meeting, err := repo.GetMeeting(ctx, meetingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("meeting %s not found", meetingID)
		}
		return fmt.Errorf("loading meeting: %w", err)
	}

	templates, err := repo.GetAttendeeTemplates(ctx, meetingID)
	if err != nil {
		return fmt.Errorf("loading attendee templates: %w", err)
	}
	if len(templates) == 0 {
		return fmt.Errorf("meeting %q has no attendees with registered faces", meeting.Name)
	}

	bar := progressbar.NewOptions(len(templates),
		progressbar.OptionSetDescription("Encoding features"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("attendees"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	features := make(map[string]string, len(templates))
	for _, t := range templates {
		features[t.UserID] = embedding.EncodeBase64(t.Embedding)
		bar.Add(1)
	}
	fmt.Println()

	payload := featuresFile{
		MeetingID:   meeting.ID,
		MeetingName: meeting.Name,
		Count:       len(features),
		Features:    features,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding features: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}

	fmt.Printf("Exported %d features for meeting %q to %s\n", payload.Count, meeting.Name, outPath)
	return nil
}
