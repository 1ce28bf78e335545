package archive

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/supabase-go"

	"github.com/Tharindu1527/sample-doc-ai/pkg/logging"
)

// Config locates the Supabase project and bucket holding archived utterances.
type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// SupabaseArchiver keeps a copy of every finished utterance in object
// storage. Archival is an offline concern; the conversation never waits on it.
type SupabaseArchiver struct {
	client *supabase.Client
	bucket string
	log    *logging.Logger
	now    func() time.Time
}

func NewSupabase(cfg Config, log *logging.Logger) (*SupabaseArchiver, error) {
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	if log == nil {
		log = logging.Default()
	}
	return &SupabaseArchiver{
		client: client,
		bucket: cfg.Bucket,
		log:    log.WithComponent("archive"),
		now:    time.Now,
	}, nil
}

// ArchiveUtterance uploads one raw utterance and returns its object key.
// Keys are time-prefixed so a bucket listing reads chronologically.
func (a *SupabaseArchiver) ArchiveUtterance(payload []byte) (string, error) {
	key := fmt.Sprintf("utterances/%s-%s.pcm",
		a.now().UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
	if _, err := a.client.Storage.UploadFile(a.bucket, key, bytes.NewReader(payload)); err != nil {
		return "", fmt.Errorf("upload utterance %s: %w", key, err)
	}
	a.log.Info("utterance uploaded", "bucket", a.bucket, "key", key, "bytes", len(payload))
	return key, nil
}
