package build

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"sync"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/domain"
)

const fallbackContentType = "application/octet-stream"

// UploadOutcome is the result of uploading one file.
type UploadOutcome struct {
	Rel         string
	Key         string
	ContentType string
	Size        int64
	Err         error
}

// BatchSummary aggregates the outcomes of one upload batch.
type BatchSummary struct {
	Index    int
	Outcomes []UploadOutcome
	Uploaded int
	Failed   int
}

// UploadReport aggregates every batch of a build.
type UploadReport struct {
	Batches  []BatchSummary
	Uploaded int
	Failed   int
}

// Failures returns every failed outcome in upload order.
func (r UploadReport) Failures() []UploadOutcome {
	var out []UploadOutcome
	for _, b := range r.Batches {
		for _, o := range b.Outcomes {
			if o.Err != nil {
				out = append(out, o)
			}
		}
	}
	return out
}

// contentType infers the MIME type from the file extension.
func contentType(rel string) string {
	if ct := mime.TypeByExtension(path.Ext(rel)); ct != "" {
		return ct
	}
	return fallbackContentType
}

// upload stores files in batches. Uploads inside a batch run concurrently; a
// batch starts only after the previous one resolved. Per-file failures are
// recorded and never stop later batches. The returned error is non-nil only
// when the build context ended before every batch ran.
func (r *run) upload(ctx context.Context, files []File) (UploadReport, error) {
	var report UploadReport
	size := r.svc.opts.BatchSize
	for start, index := 0, 0; start < len(files); start, index = start+size, index+1 {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("upload interrupted after %d batches: %w", index, err)
		}
		end := min(start+size, len(files))
		summary := r.uploadBatch(ctx, index, files[start:end])
		report.Batches = append(report.Batches, summary)
		report.Uploaded += summary.Uploaded
		report.Failed += summary.Failed
		if summary.Failed > 0 {
			r.logger.Warn("upload batch had failures", "batch", index, "failed", summary.Failed, "uploaded", summary.Uploaded)
		}
	}
	return report, nil
}

func (r *run) uploadBatch(ctx context.Context, index int, batch []File) BatchSummary {
	outcomes := make([]UploadOutcome, len(batch))
	var wg sync.WaitGroup
	for i, f := range batch {
		wg.Add(1)
		go func(i int, f File) {
			defer wg.Done()
			outcomes[i] = r.uploadFile(ctx, f)
		}(i, f)
	}
	wg.Wait()

	summary := BatchSummary{Index: index, Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Err != nil {
			summary.Failed++
			continue
		}
		summary.Uploaded++
	}
	return summary
}

func (r *run) uploadFile(ctx context.Context, f File) UploadOutcome {
	outcome := UploadOutcome{
		Rel:         f.Rel,
		Key:         domain.StorageKey(r.req.ProjectID, f.Rel),
		ContentType: contentType(f.Rel),
		Size:        f.Size,
	}
	r.publish("uploading " + f.Rel)
	outcome.Err = r.put(ctx, f, outcome.Key, outcome.ContentType)
	if outcome.Err != nil {
		r.logger.Warn("upload failed", "key", outcome.Key, "error", outcome.Err)
		r.publish(fmt.Sprintf("upload failed %s: %v", f.Rel, outcome.Err))
		return outcome
	}
	r.publish("uploaded " + f.Rel)
	return outcome
}

func (r *run) put(ctx context.Context, f File, key, contentType string) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Rel, err)
	}
	defer file.Close()
	if err := r.svc.store.Put(ctx, key, file, f.Size, contentType); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
