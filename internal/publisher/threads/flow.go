package threads

import (
	"context"

	"threadq/internal/task"
)

// Post runs the publish flow on an open session: confirm the session, upload
// the optional image, then configure the post.
func Post(ctx context.Context, s *Session, t task.Task, deviceID string) (string, error) {
	me, err := s.CurrentUser(ctx)
	if err != nil {
		return "", err
	}
	var uploadID string
	if t.ImageURL != "" {
		if uploadID, err = s.UploadImage(ctx, t.ImageURL); err != nil {
			return "", err
		}
	}
	return s.ConfigureTextPost(ctx, TextPost{
		UserID:    me.ID,
		DeviceID:  deviceID,
		Text:      t.Text,
		ReplyToID: t.ReplyToID,
		UploadID:  uploadID,
	})
}
