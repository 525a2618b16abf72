package poster

import (
	"context"
	"log/slog"
)

// DryRunID is returned in place of a real post id when nothing is sent.
const DryRunID = "dry_run_id"

// DryRun logs what would be posted and reports success.
type DryRun struct {
	logger *slog.Logger
}

func NewDryRun(niche string, logger *slog.Logger) *DryRun {
	return &DryRun{logger: logger.With("niche", niche, "component", "poster", "dry_run", true)}
}

func (d *DryRun) Post(_ context.Context, text, mediaPath string) (string, error) {
	d.logger.Info("dry run post", "text", text, "media_path", mediaPath)
	return DryRunID, nil
}

func (d *DryRun) Repost(_ context.Context, postID string) error {
	d.logger.Info("dry run repost", "post_id", postID)
	return nil
}
